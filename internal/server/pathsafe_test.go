package server

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "video.mp4", "video.mp4"},
		{"unix path stripped", "/etc/passwd", "passwd"},
		{"windows path stripped", `C:\Users\x\clip.mp4`, "clip.mp4"},
		{"traversal removed", "../../secret.mp4", "secret.mp4"},
		{"embedded traversal", "a..b.mp4", "ab.mp4"},
		{"control chars removed", "cl\x00ip\x1f.mp4", "clip.mp4"},
		{"reserved chars removed", `cl<i>p:"x".mp4`, "clipx.mp4"},
		{"dots trimmed", "...clip.mp4.", "clip.mp4"},
		{"empty becomes placeholder", "", "unnamed"},
		{"only junk becomes placeholder", "../..", "unnamed"},
		{"spaces trimmed", "  clip.mp4  ", "clip.mp4"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", 300) + ".mp4"
	got := SanitizeFilename(long)
	if len(got) > maxFilenameLen {
		t.Errorf("len = %d, want <= %d", len(got), maxFilenameLen)
	}
	if !strings.HasSuffix(got, ".mp4") {
		t.Errorf("extension lost: %q", got)
	}
}

func TestSafeJoin(t *testing.T) {
	t.Parallel()
	base := t.TempDir()

	p, err := SafeJoin(base, "clip.mp4")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	if filepath.Dir(p) != base {
		t.Errorf("joined path %q not directly under %q", p, base)
	}

	for _, bad := range []string{"../outside.mp4", "../../etc/passwd", "a/../../b"} {
		if _, err := SafeJoin(base, bad); err == nil {
			t.Errorf("SafeJoin(%q) accepted a traversal", bad)
		}
	}
}

func TestIsWithinAllowed(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	if !IsWithinAllowed(base, base) {
		t.Error("base itself rejected")
	}
	if !IsWithinAllowed(base, filepath.Join(base, "sub", "clip.mp4")) {
		t.Error("descendant rejected")
	}
	if IsWithinAllowed(base, filepath.Dir(base)) {
		t.Error("parent accepted")
	}
	// sibling with the base as a name prefix must not pass
	if IsWithinAllowed(base, base+"2") {
		t.Error("prefix sibling accepted")
	}
}
