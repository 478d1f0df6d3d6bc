package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrPathEscape reports an operation whose path resolves outside the
// working-copy root after normalization.
var ErrPathEscape = errors.New("path escapes working copy root")

// Applier executes parsed operations against a working copy. All side
// effects stay under the root; version-control metadata is never touched.
type Applier struct {
	root string
}

// NewApplier creates an Applier rooted at dir. dir must exist. The root
// is resolved through symlinks once here so containment checks compare
// real paths.
func NewApplier(dir string) (*Applier, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working copy root %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("working copy root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working copy root %s is not a directory", abs)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working copy root %s: %w", abs, err)
	}
	return &Applier{root: real}, nil
}

// Apply executes ops in order and returns the number of operations that
// took effect on disk. Sequential application gives last-write-wins
// semantics when several operations target the same path.
//
// The first operation whose path escapes the root aborts the whole apply
// step with ErrPathEscape. Operations applied before the failure remain on
// disk; the caller decides whether the working copy is committed.
func (a *Applier) Apply(ops []Operation) (int, error) {
	applied := 0
	for _, op := range ops {
		target, err := a.resolve(op.Path)
		if err != nil {
			return applied, fmt.Errorf("operation %s %q: %w", op.Kind, op.Path, err)
		}

		switch op.Kind {
		case OpWrite:
			if err := writeFileAtomic(target, []byte(op.Content)); err != nil {
				return applied, fmt.Errorf("failed to write %s: %w", op.Path, err)
			}
			log.Debug().Str("path", op.Path).Int("bytes", len(op.Content)).Msg("wrote file")
			applied++

		case OpDelete:
			err := os.Remove(target)
			if errors.Is(err, os.ErrNotExist) {
				// Idempotent: deleting an absent file changes nothing.
				continue
			}
			if err != nil {
				return applied, fmt.Errorf("failed to delete %s: %w", op.Path, err)
			}
			log.Debug().Str("path", op.Path).Msg("deleted file")
			applied++

		default:
			return applied, fmt.Errorf("unknown operation kind %q for %s", op.Kind, op.Path)
		}
	}
	return applied, nil
}

// resolve maps a relative wire-format path to an absolute path under the
// root, enforcing the containment invariant. The lexical check catches
// ".." traversal; the symlink check catches a linked directory inside the
// working copy that points outside it.
func (a *Applier) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path: %w", ErrPathEscape)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", ErrPathEscape
	}
	target := filepath.Clean(filepath.Join(a.root, filepath.FromSlash(rel)))
	if target == a.root {
		// The root itself is not a writable or deletable file.
		return "", ErrPathEscape
	}
	if !strings.HasPrefix(target, a.root+string(filepath.Separator)) {
		return "", ErrPathEscape
	}

	// Resolve the deepest existing ancestor through symlinks and re-check
	// containment against the real root.
	ancestor := filepath.Dir(target)
	for {
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		ancestor = parent
	}
	real, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", rel, err)
	}
	if real != a.root && !strings.HasPrefix(real, a.root+string(filepath.Separator)) {
		return "", ErrPathEscape
	}

	return target, nil
}

// writeFileAtomic writes content to a temporary file in the target's
// directory and renames it into place, so readers never observe a partial
// write. Missing intermediate directories are created.
func writeFileAtomic(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".forgehand-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
