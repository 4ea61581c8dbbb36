// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package contextmeter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// WorkspaceSettings are the per-workspace overrides read from the
// agent's settings files. Both files are optional; the local file
// wins field-by-field over the shared one.
type WorkspaceSettings struct {
	// Model pins the model name used for context-window lookup.
	Model string `json:"model"`

	// ContextWindow overrides the context-window size in tokens.
	ContextWindow uint64 `json:"contextWindow"`
}

var settingsFiles = []string{
	filepath.Join(".claude", "settings.json"),
	filepath.Join(".claude", "settings.local.json"),
}

// loadWorkspaceSettings reads the workspace's settings files in
// precedence order. The files are hand-edited, so comments and
// trailing commas are tolerated. A missing or malformed file
// contributes nothing; settings are advisory.
func (c *Calculator) loadWorkspaceSettings(workspacePath string) WorkspaceSettings {
	var merged WorkspaceSettings
	if workspacePath == "" {
		return merged
	}

	for _, relative := range settingsFiles {
		path := filepath.Join(workspacePath, relative)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("reading workspace settings",
					"path", path,
					"error", err)
			}
			continue
		}

		var settings WorkspaceSettings
		if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
			c.logger.Warn("parsing workspace settings",
				"path", path,
				"error", err)
			continue
		}

		if settings.Model != "" {
			merged.Model = settings.Model
		}
		if settings.ContextWindow > 0 {
			merged.ContextWindow = settings.ContextWindow
		}
	}
	return merged
}
