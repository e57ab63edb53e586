package transcript

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mediacut/highlightd/internal/types"
)

func TestMergeKeepsSubmissionOrder(t *testing.T) {
	t.Parallel()
	trs := []VideoTranscript{
		{Video: "zebra.mp4", Sentences: []types.Sentence{{StartSec: 0, EndSec: 2, Text: "last alphabetically"}}},
		{Video: "alpha.mp4", Sentences: []types.Sentence{{StartSec: 1, EndSec: 3, Text: "first alphabetically"}}},
	}
	merged := Merge(trs)

	zi := strings.Index(merged, "=== zebra ===")
	ai := strings.Index(merged, "=== alpha ===")
	if zi < 0 || ai < 0 {
		t.Fatalf("headers missing:\n%s", merged)
	}
	if zi > ai {
		t.Errorf("merge reordered videos:\n%s", merged)
	}
	if !strings.Contains(merged, "[00:00:00.000 - 00:00:02.000] last alphabetically") {
		t.Errorf("line format wrong:\n%s", merged)
	}
}

func TestMergeSkipsEmptyAndReturnsEmpty(t *testing.T) {
	t.Parallel()
	trs := []VideoTranscript{
		{Video: "silent.mp4"},
		{Video: "talky.mp4", Sentences: []types.Sentence{{StartSec: 0, EndSec: 1, Text: "hi"}}},
	}
	merged := Merge(trs)
	if strings.Contains(merged, "silent") {
		t.Errorf("empty transcript produced a header:\n%s", merged)
	}

	if got := Merge([]VideoTranscript{{Video: "silent.mp4"}}); got != "" {
		t.Errorf("all-empty merge = %q, want empty", got)
	}
}

func TestFallbackOrder(t *testing.T) {
	t.Parallel()
	trs := []VideoTranscript{
		{Video: "b.mp4", Sentences: []types.Sentence{{StartSec: 2, EndSec: 5}, {StartSec: 8, EndSec: 12}}},
		{Video: "quiet.mp4"},
		{Video: "a.mp4", Sentences: []types.Sentence{{StartSec: 0, EndSec: 30}}},
	}
	got := FallbackOrder(trs)
	if len(got) != 2 {
		t.Fatalf("got %d ranges, want 2", len(got))
	}
	if got[0].Video != "b" || got[0].StartSec != 2 || got[0].EndSec != 12 {
		t.Errorf("first range = %+v", got[0])
	}
	if got[1].Video != "a" {
		t.Errorf("submission order lost: %+v", got)
	}
}

func TestWriteReadSentences(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tr.json")
	in := []types.Sentence{{StartSec: 1.5, EndSec: 3.25, Text: "hello"}}
	if err := WriteSentences(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadSentences(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("round trip = %+v", out)
	}
}

func TestFormatClipOrder(t *testing.T) {
	t.Parallel()
	got := FormatClipOrder([]types.ClipRange{
		{Video: "a", StartSec: 0, EndSec: 5},
		{Video: "b", StartSec: 10, EndSec: 12.5},
	})
	want := "a\t00:00:00.000\t00:00:05.000\nb\t00:00:10.000\t00:00:12.500\n"
	if got != want {
		t.Errorf("FormatClipOrder = %q, want %q", got, want)
	}
}
