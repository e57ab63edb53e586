package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mediacut/highlightd/internal/ports"
)

func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Adapter implements ports.VideoTool on top of the ffmpeg and ffprobe
// binaries.
type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// ExtractAudio produces 16 kHz mono MP3, the format the transcription
// service expects.
func (a *Adapter) ExtractAudio(ctx context.Context, videoPath, outAudioPath string) error {
	b, err := run(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-ab", "160k",
		outAudioPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

// CutSegment copies the stream without re-encoding; keyframe-inexact
// boundaries are acceptable for highlight cuts and keep large inputs
// fast.
func (a *Adapter) CutSegment(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error {
	b, err := run(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-ss", fmtSeconds(startSec),
		"-to", fmtSeconds(endSec),
		"-c", "copy",
		"-avoid_negative_ts", "1",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg cut segment: %w\n%s", err, string(b))
	}
	return nil
}

// MergeClips concatenates the given clips in the given order via the
// concat demuxer. The order of clipPaths is the playback order.
func (a *Adapter) MergeClips(ctx context.Context, clipPaths []string, outPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to merge")
	}
	listPath := filepath.Join(filepath.Dir(outPath), ".concat_list.txt")
	var b strings.Builder
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		// single quotes in paths are escaped for the concat demuxer
		abs = strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return err
	}
	defer os.Remove(listPath)

	out, err := run(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg merge clips: %w\n%s", err, string(out))
	}
	return nil
}

// BurnSubtitles re-encodes with the subtitles filter applied.
func (a *Adapter) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outPath string) error {
	b, err := run(ctx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vf", "subtitles="+escapeFilterPath(subtitlePath),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg burn subtitles: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	b, err := run(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

var _ ports.VideoTool = (*Adapter)(nil)

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
