package server

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 255

// SanitizeFilename reduces a client-supplied name to a bare, safe file
// name: path separators and traversal sequences are stripped, control
// characters removed, and overlong names truncated ahead of their
// extension.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	// keep only the last path element, whichever separator the client used
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`<>:"|?*`, r) {
			continue
		}
		b.WriteRune(r)
	}
	name = strings.Trim(b.String(), ". ")
	if name == "" {
		return "unnamed"
	}
	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

// SafeJoin joins name onto base and guarantees the result stays inside
// base, rejecting traversal however it is encoded.
func SafeJoin(base, name string) (string, error) {
	cleanBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	joined, err := filepath.Abs(filepath.Join(cleanBase, name))
	if err != nil {
		return "", err
	}
	if !IsWithinAllowed(cleanBase, joined) {
		return "", fmt.Errorf("path %q escapes %q", name, base)
	}
	return joined, nil
}

// IsWithinAllowed reports whether path is base itself or a descendant of
// it. Both arguments must already be absolute.
func IsWithinAllowed(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
