// Package transcript owns the textual transcript formats flowing through
// the pipeline: per-video sentence files, the merged transcript handed to
// the analyzer, and the clip order parsed back out of its response.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediacut/highlightd/internal/types"
)

// VideoTranscript pairs a video's display name with its transcribed
// sentences. Collections of these are always kept in submission order.
type VideoTranscript struct {
	Video     string
	Sentences []types.Sentence
}

// Base returns the video name without its extension, the form used in
// merged-transcript headers and clip orders.
func (v VideoTranscript) Base() string {
	return strings.TrimSuffix(v.Video, filepath.Ext(v.Video))
}

// WriteSentences persists one video's sentences as JSON next to the
// other per-job temp artifacts.
func WriteSentences(path string, sentences []types.Sentence) error {
	b, err := json.MarshalIndent(sentences, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadSentences loads a per-video transcript written by WriteSentences.
func ReadSentences(path string) ([]types.Sentence, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []types.Sentence
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// Merge renders the merged transcript text in the exact order the videos
// appear in trs. That order is the submission order; it is also the
// fallback playback order when analysis fails, so it must not be sorted
// by name or anything else. Returns "" when no video has sentences.
func Merge(trs []VideoTranscript) string {
	var b strings.Builder
	wrote := false
	for _, tr := range trs {
		if len(tr.Sentences) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n=== %s ===\n", tr.Base())
		for _, s := range tr.Sentences {
			fmt.Fprintf(&b, "[%s - %s] %s\n", FormatTimestamp(s.StartSec), FormatTimestamp(s.EndSec), s.Text)
		}
		wrote = true
	}
	if !wrote {
		return ""
	}
	return b.String()
}

// FallbackOrder treats each whole video as one segment, in submission
// order. Used when the analyzer fails so the caller still gets a merged
// reel instead of nothing.
func FallbackOrder(trs []VideoTranscript) []types.ClipRange {
	var out []types.ClipRange
	for _, tr := range trs {
		if len(tr.Sentences) == 0 {
			continue
		}
		out = append(out, types.ClipRange{
			Video:    tr.Base(),
			StartSec: tr.Sentences[0].StartSec,
			EndSec:   tr.Sentences[len(tr.Sentences)-1].EndSec,
		})
	}
	return out
}

// FormatClipOrder renders clip ranges as the tab-separated clip_order
// artifact, one range per line in playback order.
func FormatClipOrder(ranges []types.ClipRange) string {
	var b strings.Builder
	for _, r := range ranges {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", r.Video, FormatTimestamp(r.StartSec), FormatTimestamp(r.EndSec))
	}
	return b.String()
}
