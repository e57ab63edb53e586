package transcript

import (
	"strings"

	"github.com/mediacut/highlightd/internal/types"
)

// ParseAnalysis extracts the clip order from an analyzer response.
//
// The response interleaves "=== name ===" headers with
// "[start - end] text" lines. Ranges are emitted strictly in the order
// the lines appear: the analyzer's ordering is an editorial decision, so
// this function never sorts, groups, or otherwise reshuffles.
//
// Near-duplicate suppression: a range whose overlap with an
// already-accepted range of the same video exceeds overlapDedupe of the
// shorter range is dropped. The threshold is a heuristic carried from
// production tuning, not a guaranteed behavior; pass <= 0 to disable.
func ParseAnalysis(text string, overlapDedupe float64) []types.ClipRange {
	var out []types.ClipRange
	video := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "==="):
			video = strings.TrimSpace(strings.Trim(line, "= "))
		case strings.HasPrefix(line, "[") && video != "":
			r, ok := parseRangeLine(video, line)
			if !ok {
				continue
			}
			if overlapDedupe > 0 && isNearDuplicate(out, r, overlapDedupe) {
				continue
			}
			out = append(out, r)
		}
	}
	return out
}

func parseRangeLine(video, line string) (types.ClipRange, bool) {
	end := strings.Index(line, "]")
	if end < 0 {
		return types.ClipRange{}, false
	}
	span := line[1:end]
	startStr, endStr, ok := strings.Cut(span, " - ")
	if !ok {
		return types.ClipRange{}, false
	}
	startSec, err := ParseTimestamp(startStr)
	if err != nil {
		return types.ClipRange{}, false
	}
	endSec, err := ParseTimestamp(endStr)
	if err != nil {
		return types.ClipRange{}, false
	}
	if startSec >= endSec {
		return types.ClipRange{}, false
	}
	return types.ClipRange{Video: video, StartSec: startSec, EndSec: endSec}, true
}

func isNearDuplicate(accepted []types.ClipRange, r types.ClipRange, threshold float64) bool {
	for _, a := range accepted {
		if a.Video != r.Video {
			continue
		}
		overlapStart := max(r.StartSec, a.StartSec)
		overlapEnd := min(r.EndSec, a.EndSec)
		if overlapStart >= overlapEnd {
			continue
		}
		shorter := min(r.EndSec-r.StartSec, a.EndSec-a.StartSec)
		if (overlapEnd-overlapStart)/shorter > threshold {
			return true
		}
	}
	return false
}
