// Package security confines client-supplied file paths to the data directory.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the allowed root.
var ErrOutsideRoot = errors.New("path is outside the data directory")

// canonical resolves p to an absolute path with symlinks evaluated. For a
// path that does not exist yet, the deepest existing ancestor is resolved
// and the remainder appended, so a symlinked parent cannot be used to escape.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
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

// ResolveWithin returns the canonical form of p after checking it lies
// inside root. Relative paths are taken relative to the working directory.
func ResolveWithin(root, p string) (string, error) {
	if p == "" {
		return "", errors.New("path is empty")
	}
	canonRoot, err := canonical(root)
	if err != nil {
		return "", err
	}
	canonPath, err := canonical(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(canonRoot, canonPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return canonPath, nil
}

// SanitizeFilename makes a safe file name from an identifier such as a
// session id. Runs of other characters collapse to one underscore.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
