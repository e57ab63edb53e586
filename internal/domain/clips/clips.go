// Package clips shapes an ordered clip sequence before cutting: merging
// adjacent ranges, padding endings, and validating against source
// durations. None of its operations change the sequence order.
package clips

import (
	"fmt"

	"github.com/mediacut/highlightd/internal/types"
)

// MergeAdjacent collapses consecutive ranges of the same video whose gap
// is at most gapSec into one range, then pads every resulting end time
// by padSec. Only neighbors in the sequence are considered, so the
// playback order is preserved exactly.
func MergeAdjacent(ranges []types.ClipRange, gapSec, padSec float64) []types.ClipRange {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]types.ClipRange, 0, len(ranges))
	cur := ranges[0]
	for _, next := range ranges[1:] {
		if next.Video == cur.Video && next.StartSec-cur.EndSec <= gapSec && next.StartSec >= cur.StartSec {
			// a contained range must never shrink the merged clip
			if next.EndSec > cur.EndSec {
				cur.EndSec = next.EndSec
			}
			continue
		}
		cur.EndSec += padSec
		out = append(out, cur)
		cur = next
	}
	cur.EndSec += padSec
	out = append(out, cur)
	return out
}

// Validate checks each range against the probed duration of its source
// video, returning one message per problem. A missing duration (probe
// failed) skips the length checks for that range.
func Validate(ranges []types.ClipRange, durations map[string]float64) []string {
	var errs []string
	for i, r := range ranges {
		if r.StartSec >= r.EndSec {
			errs = append(errs, fmt.Sprintf("segment %d: start %.3f is not before end %.3f", i+1, r.StartSec, r.EndSec))
			continue
		}
		dur, ok := durations[r.Video]
		if !ok {
			continue
		}
		if r.StartSec >= dur {
			errs = append(errs, fmt.Sprintf("segment %d: start %.3f is past the end of %s (%.3fs)", i+1, r.StartSec, r.Video, dur))
		}
	}
	return errs
}

// ClampEnd limits endSec to the source duration, tolerating padded ends
// that run slightly past it.
func ClampEnd(endSec, duration float64) float64 {
	if duration > 0 && endSec > duration {
		return duration
	}
	return endSec
}
