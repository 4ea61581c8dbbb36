// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vigil-works/vigil/lib/codec"
	"github.com/vigil-works/vigil/lib/schema"
)

// Compression identifies the algorithm applied to an archive payload.
// Only the name string (see [Compression.String]) appears on disk.
type Compression uint8

const (
	// CompressionNone stores the payload uncompressed. Also the
	// fallback when the requested algorithm cannot shrink the data.
	CompressionNone Compression = 0

	// CompressionLZ4 uses LZ4 block compression. Fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses zstd at the default level. Best ratio for
	// sample data, which is repetitive CBOR; the export default.
	CompressionZstd Compression = 2
)

// String returns the name recorded in archive headers.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as written in archive
// headers and accepted by the export --compress flag.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("archive: unknown compression %q", name)
	}
}

// Archive is the logical content of a history archive.
type Archive struct {
	// WorkspaceID is the workspace the export was filtered to, empty
	// when the archive spans all workspaces.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// From and To bound the exported range, unix nanoseconds.
	From int64 `json:"from"`
	To   int64 `json:"to"`

	// CreatedAt is when the archive was written, unix nanoseconds.
	CreatedAt int64 `json:"created_at"`

	// Samples are ordered by timestamp, as returned by the history
	// store.
	Samples []schema.UsageSample `json:"samples"`
}

// archiveMagic guards against feeding arbitrary CBOR files to the
// reader. formatVersion gates incompatible envelope changes.
const (
	archiveMagic  = "vigil-history"
	formatVersion = 1
)

// envelope is the on-disk framing. CBOR only, never JSON.
type envelope struct {
	Magic            string `cbor:"magic"`
	Version          int    `cbor:"version"`
	Compression      string `cbor:"compression"`
	UncompressedSize uint64 `cbor:"uncompressed_size"`
	Payload          []byte `cbor:"payload"`
}

// Write encodes the archive to w using the requested compression. When
// the payload turns out incompressible the archive is written with
// compression "none"; the header always records what was actually used.
func Write(w io.Writer, arch *Archive, requested Compression) error {
	payload, err := codec.Marshal(arch)
	if err != nil {
		return fmt.Errorf("archive: encoding samples: %w", err)
	}

	compressed, used, err := compress(payload, requested)
	if err != nil {
		return err
	}

	env := envelope{
		Magic:            archiveMagic,
		Version:          formatVersion,
		Compression:      used.String(),
		UncompressedSize: uint64(len(payload)),
		Payload:          compressed,
	}
	if err := codec.NewEncoder(w).Encode(env); err != nil {
		return fmt.Errorf("archive: writing envelope: %w", err)
	}
	return nil
}

// Read decodes one archive from r and reports which compression the
// header recorded.
func Read(r io.Reader) (*Archive, Compression, error) {
	var env envelope
	if err := codec.NewDecoder(r).Decode(&env); err != nil {
		return nil, 0, fmt.Errorf("archive: reading envelope: %w", err)
	}
	if env.Magic != archiveMagic {
		return nil, 0, fmt.Errorf("archive: not a history archive (magic %q)", env.Magic)
	}
	if env.Version != formatVersion {
		return nil, 0, fmt.Errorf("archive: unsupported format version %d", env.Version)
	}

	comp, err := ParseCompression(env.Compression)
	if err != nil {
		return nil, 0, err
	}

	payload, err := decompress(env.Payload, comp, int(env.UncompressedSize))
	if err != nil {
		return nil, 0, err
	}

	var arch Archive
	if err := codec.Unmarshal(payload, &arch); err != nil {
		return nil, 0, fmt.Errorf("archive: decoding samples: %w", err)
	}
	return &arch, comp, nil
}

// WriteFile writes the archive to path. A failed write removes the
// partial file.
func WriteFile(path string, arch *Archive, requested Compression) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive: creating %s: %w", path, err)
	}
	if err := Write(file, arch, requested); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("archive: closing %s: %w", path, err)
	}
	return nil
}

// ReadFile reads one archive from path.
func ReadFile(path string) (*Archive, Compression, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("archive: opening %s: %w", path, err)
	}
	defer file.Close()
	return Read(file)
}

// errIncompressible reports that compression produced output at least
// as large as the input. Write falls back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

func compress(data []byte, requested Compression) ([]byte, Compression, error) {
	var compressed []byte
	var err error

	switch requested {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		compressed, err = compressLZ4(data)
	case CompressionZstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("archive: unsupported compression %d", requested)
	}

	if errors.Is(err, errIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, requested, nil
}

// decompress verifies the recorded uncompressed size exactly; a
// mismatch means truncation or corruption.
func decompress(compressed []byte, comp Compression, uncompressedSize int) ([]byte, error) {
	switch comp {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("archive: payload size %d does not match recorded %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("archive: unsupported compression %d", comp)
	}
}
