package ports

import (
	"context"
	"errors"

	"github.com/mediacut/highlightd/internal/types"
)

// ErrNoSpeech is returned by ASR implementations when the audio contains
// no transcribable content. Callers treat it as a skip, not a failure.
var ErrNoSpeech = errors.New("no transcribable speech")

// VideoTool wraps the media codec operations the pipeline needs.
// Implementations shell out to external tools; the context only abandons
// the wait, it does not guarantee the tool is killed mid-write.
type VideoTool interface {
	ExtractAudio(ctx context.Context, videoPath, outAudioPath string) error
	CutSegment(ctx context.Context, videoPath string, startSec, endSec float64, outPath string) error
	MergeClips(ctx context.Context, clipPaths []string, outPath string) error
	BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outPath string) error
	ProbeDuration(ctx context.Context, videoPath string) (float64, error)
}

// ASR transcribes one audio file via a remote speech-recognition
// service.
type ASR interface {
	Transcribe(ctx context.Context, audioPath string) ([]types.Sentence, error)
}

// Analyzer selects and orders highlight segments from a merged
// transcript. The returned order is an editorial decision and is
// preserved exactly by everything downstream.
type Analyzer interface {
	SelectSegments(ctx context.Context, transcript, hint string) ([]types.ClipRange, error)
}

// Notifier is the push channel back to the job's caller. Implementations
// must not block the pipeline.
type Notifier interface {
	Notify(n types.Notification)
}
