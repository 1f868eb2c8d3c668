package fsutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot indicates a path that resolves outside the confinement root.
var ErrOutsideRoot = errors.New("fsutil: path escapes data root")

// Confine checks that every path resolves inside root. Symlinks are resolved
// for the longest existing prefix of each path, so a link inside root that
// points elsewhere is rejected even when the final file does not exist yet.
func Confine(root string, paths ...string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	canonRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		canon, err := canonical(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(canonRoot, canon)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("%w: %s is outside %s", ErrOutsideRoot, p, root)
		}
	}
	return nil
}

// canonical returns p as an absolute path with symlinks resolved in its
// longest existing prefix.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest), nil
		}
		if parent := filepath.Dir(dir); parent == dir {
			return abs, nil
		}
	}
}
