// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigil-works/vigil/lib/archive"
	"github.com/vigil-works/vigil/lib/schema"
)

// exportSampleLimit overrides the daemon's default query cap. An
// export should carry everything in range, not a page of it.
const exportSampleLimit = 1 << 20

type exportParams struct {
	connectFlags
	workspaceID string
	from        string
	to          string
	out         string
	compress    string
}

func exportCommand() *command {
	var params exportParams

	return &command{
		Name:    "export",
		Summary: "Export usage history to an archive file",
		Description: `Write recorded usage samples to a CBOR archive, optionally
compressed. Archives outlive the daemon's retention window and are
read back with 'vigil history --archive'.

Exports span all workspaces unless --workspace narrows them to one.
Time bounds accept Go durations (1h, 7d) or timestamps; an empty
--from means everything still retained.`,
		Usage: "vigil export --out FILE [flags]",
		Examples: []example{
			{
				Description: "A week of history, zstd-compressed",
				Command:     "vigil export --from 7d --out week.vigil",
			},
			{
				Description: "One workspace, uncompressed",
				Command:     "vigil export --workspace ~/src/parser --out parser.vigil --compress none",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			params.connectFlags.register(flagSet)
			flagSet.StringVar(&params.workspaceID, "workspace", "", "limit the export to one workspace ID")
			flagSet.StringVar(&params.from, "from", "", "start of time range (duration or timestamp)")
			flagSet.StringVar(&params.to, "to", "", "end of time range (duration or timestamp)")
			flagSet.StringVar(&params.out, "out", "", "output file (required)")
			flagSet.StringVar(&params.compress, "compress", "zstd", "compression: zstd, lz4, or none")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if params.out == "" {
				return fmt.Errorf("--out is required")
			}
			compression, err := archive.ParseCompression(params.compress)
			if err != nil {
				return fmt.Errorf("--compress: %w", err)
			}
			fromNanos, err := parseTimeFlag(params.from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			toNanos, err := parseTimeFlag(params.to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			client := params.client(cfg)

			ctx, cancel := callContext(ctx)
			defer cancel()

			var samples []schema.UsageSample
			err = client.Call(ctx, "history", map[string]any{
				"workspace_id": params.workspaceID,
				"from_nanos":   fromNanos,
				"to_nanos":     toNanos,
				"limit":        exportSampleLimit,
			}, &samples)
			if err != nil {
				return err
			}
			if len(samples) == 0 {
				logger.Info("no samples in range; writing an empty archive")
			}

			createdAt := time.Now().UnixNano()
			effectiveTo := toNanos
			if effectiveTo == 0 {
				// Open upper bound: the export time is the bound.
				effectiveTo = createdAt
			}
			arch := &archive.Archive{
				WorkspaceID: params.workspaceID,
				From:        fromNanos,
				To:          effectiveTo,
				CreatedAt:   createdAt,
				Samples:     samples,
			}
			if err := archive.WriteFile(params.out, arch, compression); err != nil {
				return err
			}

			info, err := os.Stat(params.out)
			if err != nil {
				return fmt.Errorf("statting archive: %w", err)
			}
			fmt.Printf("Exported %d samples to %s (%s, %s)\n",
				len(samples), params.out, compression, formatBytes(info.Size()))
			return nil
		},
	}
}
