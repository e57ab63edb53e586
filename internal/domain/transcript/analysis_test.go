package transcript

import (
	"testing"

	"github.com/mediacut/highlightd/internal/types"
)

const sampleAnalysis = `
=== gameplay ===
[00:01:00.000 - 00:01:10.000] clutch play
=== interview ===
[00:00:05.000 - 00:00:15.000] reaction
=== gameplay ===
[00:00:20.000 - 00:00:30.000] opening fight
`

func TestParseAnalysisPreservesLineOrder(t *testing.T) {
	t.Parallel()
	got := ParseAnalysis(sampleAnalysis, 0.8)
	want := []types.ClipRange{
		{Video: "gameplay", StartSec: 60, EndSec: 70},
		{Video: "interview", StartSec: 5, EndSec: 15},
		{Video: "gameplay", StartSec: 20, EndSec: 30},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ranges: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseAnalysisDropsNearDuplicates(t *testing.T) {
	t.Parallel()
	text := `=== v ===
[00:00:00.000 - 00:00:10.000] original
[00:00:01.000 - 00:00:10.000] ninety percent overlap of the shorter
[00:00:08.000 - 00:00:20.000] tail overlap only
`
	got := ParseAnalysis(text, 0.8)
	if len(got) != 2 {
		t.Fatalf("got %d ranges, want 2: %+v", len(got), got)
	}
	if got[1].StartSec != 8 {
		t.Errorf("survivor = %+v", got[1])
	}

	// threshold disabled keeps everything
	if got := ParseAnalysis(text, 0); len(got) != 3 {
		t.Errorf("dedupe disabled got %d ranges", len(got))
	}
}

func TestParseAnalysisDedupePerVideo(t *testing.T) {
	t.Parallel()
	text := `=== a ===
[00:00:00.000 - 00:00:10.000] x
=== b ===
[00:00:00.000 - 00:00:10.000] same span, different video
`
	if got := ParseAnalysis(text, 0.8); len(got) != 2 {
		t.Errorf("cross-video span dropped: %+v", got)
	}
}

func TestParseAnalysisIgnoresMalformed(t *testing.T) {
	t.Parallel()
	text := `preamble the model added
=== v ===
[not a timestamp] junk
[00:00:05.000 - 00:00:02.000] inverted
[00:00:05.000] missing separator
[00:00:01.000 - 00:00:04.000] good
some commentary
`
	got := ParseAnalysis(text, 0.8)
	if len(got) != 1 || got[0].StartSec != 1 || got[0].EndSec != 4 {
		t.Fatalf("got %+v, want only the good line", got)
	}
}

func TestParseAnalysisRangeBeforeHeaderIgnored(t *testing.T) {
	t.Parallel()
	text := "[00:00:01.000 - 00:00:04.000] orphan\n"
	if got := ParseAnalysis(text, 0.8); len(got) != 0 {
		t.Errorf("orphan range accepted: %+v", got)
	}
}
