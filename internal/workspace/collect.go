package workspace

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSnapshot is one file's content at collection time. Path is
// forward-slash separated and relative to the working-copy root.
type FileSnapshot struct {
	Path    string
	Content string
}

// maxSnapshotSize caps how large a file may be and still be sent as
// context.
const maxSnapshotSize = 512 * 1024

// binaryProbeSize is how many leading bytes are checked for a NUL byte.
const binaryProbeSize = 8 * 1024

// skippedDirs are never descended into during collection.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// Collect walks the working copy and returns a snapshot of every readable
// text file, skipping version-control metadata, dependency caches, secret
// files, oversized files, and binaries. The order is the deterministic
// lexical order of filepath.WalkDir, so identical trees produce identical
// context.
func Collect(root string) ([]FileSnapshot, error) {
	var snapshots []FileSnapshot

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".env") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() || info.Size() > maxSnapshotSize {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if isBinary(data) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}

		snapshots = append(snapshots, FileSnapshot{
			Path:    filepath.ToSlash(rel),
			Content: string(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect context from %s: %w", root, err)
	}

	return snapshots, nil
}

// isBinary treats any NUL byte in the leading probe window as binary.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
