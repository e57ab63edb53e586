// Package usecase runs one job's pipeline from raw videos to the merged
// highlight reel. The stage order is fixed; cancellation is cooperative
// and only observed at stage boundaries, because every stage wraps an
// external process or network call that cannot be killed mid-write.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mediacut/highlightd/internal/domain/clips"
	"github.com/mediacut/highlightd/internal/domain/subtitles"
	"github.com/mediacut/highlightd/internal/domain/transcript"
	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/ports"
	"github.com/mediacut/highlightd/internal/types"
)

// ErrCancelled is returned by Run when the cancellation token fires at a
// stage boundary.
var ErrCancelled = errors.New("job cancelled")

// CancelToken is the executor's view of the controller's cancellation
// signal. Requested must be safe to call from the executor's goroutine.
type CancelToken interface {
	Requested() bool
}

// Deps are the collaborators one executor run needs. Persist receives a
// snapshot after every stage and must not fail the pipeline; Notify is
// the push channel back to the caller and must not block.
type Deps struct {
	Video    ports.VideoTool
	ASR      ports.ASR
	Analyzer ports.Analyzer
	Notifier ports.Notifier
	Log      *logger.Logger
	Persist  func(job types.Job)

	// Clip shaping, in seconds.
	AdjacentGapSec float64
	EndPaddingSec  float64
}

type Executor struct {
	deps Deps
}

func New(deps Deps) *Executor {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	return &Executor{deps: deps}
}

// Result is what a successful run produced.
type Result struct {
	OutputPath string
	Captioned  bool
}

// Run executes the full stage sequence for job, writing artifacts under
// job.OutputDir. It mutates job.Progress as stages complete. Returns
// ErrCancelled if cancel fires at a checkpoint and the context error if
// the deadline expires there.
func (e *Executor) Run(ctx context.Context, job *types.Job, cancel CancelToken) (Result, error) {
	log := e.deps.Log.With("job", job.ID)

	tempDir := filepath.Join(job.OutputDir, "temp")
	cutsDir := filepath.Join(job.OutputDir, "cuts")
	for _, dir := range []string{tempDir, cutsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create work dir: %w", err)
		}
	}
	if err := writeInfo(job); err != nil {
		log.Warn("write info.json failed", "error", err)
	}

	// stage 1: map each video reference to an existing local file
	if err := e.checkpoint(ctx, cancel); err != nil {
		return Result{}, err
	}
	videos := e.mapVideos(job)
	if len(videos) == 0 {
		return Result{}, errors.New("no input video could be found")
	}
	e.report(job, "mapping", fmt.Sprintf("%d/%d videos found", len(videos), len(job.Payload.Videos)))

	// stage 2: per-video audio extraction and transcription
	trs, err := e.transcribeAll(ctx, cancel, job, videos, tempDir, log)
	if err != nil {
		return Result{}, err
	}
	e.report(job, "transcription", fmt.Sprintf("%d/%d videos transcribed", countWithSentences(trs), len(videos)))

	// stage 3: merge transcripts in submission order
	if err := e.checkpoint(ctx, cancel); err != nil {
		return Result{}, err
	}
	merged := transcript.Merge(trs)
	if merged == "" {
		return Result{}, errors.New("merged transcript is empty, nothing to analyze")
	}
	mergedPath := filepath.Join(job.OutputDir, "merged_transcripts.txt")
	if err := os.WriteFile(mergedPath, []byte(merged), 0o644); err != nil {
		return Result{}, fmt.Errorf("write merged transcript: %w", err)
	}
	e.report(job, "merge_transcripts", mergedPath)

	// stage 4: content analysis, whole-video fallback on failure
	if err := e.checkpoint(ctx, cancel); err != nil {
		return Result{}, err
	}
	order := e.analyze(ctx, job, merged, trs, log)
	if err := os.WriteFile(filepath.Join(job.OutputDir, "clip_order.txt"),
		[]byte(transcript.FormatClipOrder(order)), 0o644); err != nil {
		log.Warn("write clip_order.txt failed", "error", err)
	}
	e.report(job, "analysis", fmt.Sprintf("%d segments selected", len(order)))

	// stage 5: cut the selected segments
	cutPaths, err := e.cutAll(ctx, cancel, job, videos, order, cutsDir, log)
	if err != nil {
		return Result{}, err
	}
	if len(cutPaths) == 0 {
		return Result{}, errors.New("no segment could be cut")
	}
	e.report(job, "cut", fmt.Sprintf("%d/%d segments cut", len(cutPaths), len(order)))

	// stage 6: merge cuts in analysis order
	if err := e.checkpoint(ctx, cancel); err != nil {
		return Result{}, err
	}
	outPath := filepath.Join(job.OutputDir, "merged_highlights.mp4")
	if err := e.deps.Video.MergeClips(ctx, cutPaths, outPath); err != nil {
		return Result{}, fmt.Errorf("merge clips: %w", err)
	}
	e.report(job, "merge_video", outPath)

	res := Result{OutputPath: outPath}

	// stage 7: optional caption burn-in, never fatal
	if job.Payload.CaptionEnabled {
		if err := e.checkpoint(ctx, cancel); err != nil {
			return Result{}, err
		}
		if captioned, err := e.caption(ctx, job, trs, order, outPath, tempDir); err != nil {
			log.Warn("captioning failed, returning uncaptioned output", "error", err)
			e.report(job, "caption", "failed, kept uncaptioned output")
		} else {
			res.OutputPath = captioned
			res.Captioned = true
			e.report(job, "caption", captioned)
		}
	}

	return res, nil
}

// checkpoint is the only place cancellation and timeout are observed.
func (e *Executor) checkpoint(ctx context.Context, cancel CancelToken) error {
	if cancel != nil && cancel.Requested() {
		return ErrCancelled
	}
	return ctx.Err()
}

// mapVideos drops payload entries whose file is missing, reporting each
// one individually, and returns the survivors in submission order.
func (e *Executor) mapVideos(job *types.Job) []types.VideoRef {
	var out []types.VideoRef
	for _, v := range job.Payload.Videos {
		if info, err := os.Stat(v.Path); err != nil || info.IsDir() {
			e.notify(job, types.EventError, fmt.Sprintf("video not found: %s", v.Filename))
			continue
		}
		out = append(out, v)
	}
	return out
}

// transcribeAll runs extract+transcribe per video. One video failing
// skips that video only. The returned slice keeps submission order and
// has one entry per surviving video, possibly with zero sentences.
func (e *Executor) transcribeAll(ctx context.Context, cancel CancelToken, job *types.Job, videos []types.VideoRef, tempDir string, log *logger.Logger) ([]transcript.VideoTranscript, error) {
	trs := make([]transcript.VideoTranscript, 0, len(videos))
	for _, v := range videos {
		if err := e.checkpoint(ctx, cancel); err != nil {
			return nil, err
		}
		tr := transcript.VideoTranscript{Video: v.Filename}
		base := tr.Base()

		audioPath := filepath.Join(tempDir, base+"_audio.mp3")
		if err := e.deps.Video.ExtractAudio(ctx, v.Path, audioPath); err != nil {
			log.Warn("audio extraction failed", "video", v.Filename, "error", err)
			e.notify(job, types.EventError, fmt.Sprintf("audio extraction failed: %s", v.Filename))
			trs = append(trs, tr)
			continue
		}

		sentences, err := e.deps.ASR.Transcribe(ctx, audioPath)
		os.Remove(audioPath)
		if err != nil {
			if errors.Is(err, ports.ErrNoSpeech) {
				log.Info("no speech in video", "video", v.Filename)
			} else {
				log.Warn("transcription failed", "video", v.Filename, "error", err)
				e.notify(job, types.EventError, fmt.Sprintf("transcription failed: %s", v.Filename))
			}
			trs = append(trs, tr)
			continue
		}
		tr.Sentences = sentences

		trPath := filepath.Join(tempDir, base+"_transcript.json")
		if err := transcript.WriteSentences(trPath, sentences); err != nil {
			log.Warn("persist transcript failed", "video", v.Filename, "error", err)
		}
		trs = append(trs, tr)
	}
	return trs, nil
}

// analyze asks the analyzer for the clip order and falls back to whole
// videos in submission order when it fails. The analyzer's raw choice is
// kept as the important_dialogues artifact.
func (e *Executor) analyze(ctx context.Context, job *types.Job, merged string, trs []transcript.VideoTranscript, log *logger.Logger) []types.ClipRange {
	order, err := e.deps.Analyzer.SelectSegments(ctx, merged, job.Payload.Text)
	if err != nil {
		log.Warn("analysis failed, falling back to whole videos", "error", err)
		e.notify(job, types.EventError, "analysis failed, using whole videos in submission order")
		return transcript.FallbackOrder(trs)
	}
	if err := os.WriteFile(filepath.Join(job.OutputDir, "important_dialogues.txt"),
		[]byte(transcript.FormatClipOrder(order)), 0o644); err != nil {
		log.Warn("write important_dialogues.txt failed", "error", err)
	}
	return order
}

// cutAll validates and shapes the clip order, then cuts each segment.
// An individual cut failure skips that segment. The returned paths are
// in playback order.
func (e *Executor) cutAll(ctx context.Context, cancel CancelToken, job *types.Job, videos []types.VideoRef, order []types.ClipRange, cutsDir string, log *logger.Logger) ([]string, error) {
	paths := make(map[string]string, len(videos))
	durations := make(map[string]float64, len(videos))
	for _, v := range videos {
		base := transcript.VideoTranscript{Video: v.Filename}.Base()
		paths[base] = v.Path
		if d, err := e.deps.Video.ProbeDuration(ctx, v.Path); err == nil {
			durations[base] = d
		} else {
			log.Warn("probe duration failed", "video", v.Filename, "error", err)
		}
	}

	for _, w := range clips.Validate(order, durations) {
		log.Warn("clip order warning", "detail", w)
	}
	shaped := clips.MergeAdjacent(order, e.deps.AdjacentGapSec, e.deps.EndPaddingSec)

	var cutPaths []string
	for i, r := range shaped {
		if err := e.checkpoint(ctx, cancel); err != nil {
			return nil, err
		}
		src, ok := paths[r.Video]
		if !ok {
			log.Warn("segment references unknown video", "video", r.Video)
			continue
		}
		end := r.EndSec
		if d, ok := durations[r.Video]; ok {
			end = clips.ClampEnd(end, d)
		}
		outPath := filepath.Join(cutsDir, fmt.Sprintf("clip_%03d.mp4", i+1))
		if err := e.deps.Video.CutSegment(ctx, src, r.StartSec, end, outPath); err != nil {
			log.Warn("cut failed", "video", r.Video, "start", r.StartSec, "error", err)
			e.notify(job, types.EventError, fmt.Sprintf("cut failed: %s [%s - %s]",
				r.Video, transcript.FormatTimestamp(r.StartSec), transcript.FormatTimestamp(end)))
			continue
		}
		cutPaths = append(cutPaths, outPath)
	}
	return cutPaths, nil
}

// caption projects each clip's sentences onto the merged-reel timeline,
// renders them as ASS, and burns them into a captioned copy.
func (e *Executor) caption(ctx context.Context, job *types.Job, trs []transcript.VideoTranscript, order []types.ClipRange, mergedPath, tempDir string) (string, error) {
	byVideo := make(map[string][]types.Sentence, len(trs))
	for _, tr := range trs {
		byVideo[tr.Base()] = tr.Sentences
	}

	var projected []types.Sentence
	offset := 0.0
	shaped := clips.MergeAdjacent(order, e.deps.AdjacentGapSec, e.deps.EndPaddingSec)
	for _, r := range shaped {
		for _, s := range byVideo[r.Video] {
			if s.EndSec <= r.StartSec || s.StartSec >= r.EndSec {
				continue
			}
			projected = append(projected, types.Sentence{
				StartSec: max(s.StartSec-r.StartSec, 0) + offset,
				EndSec:   min(s.EndSec, r.EndSec) - r.StartSec + offset,
				Text:     s.Text,
			})
		}
		offset += r.EndSec - r.StartSec
	}
	if len(projected) == 0 {
		return "", errors.New("no sentences overlap the selected segments")
	}

	assPath := filepath.Join(tempDir, "captions.ass")
	if err := os.WriteFile(assPath, []byte(subtitles.Render(projected)), 0o644); err != nil {
		return "", fmt.Errorf("write subtitles: %w", err)
	}

	outPath := filepath.Join(job.OutputDir, "merged_highlights_captioned.mp4")
	if err := e.deps.Video.BurnSubtitles(ctx, mergedPath, assPath, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// report records stage completion on the job, persists a snapshot, and
// pushes a progress notification.
func (e *Executor) report(job *types.Job, stage, detail string) {
	if job.Progress == nil {
		job.Progress = make(map[string]string)
	}
	job.Progress[stage] = detail
	if e.deps.Persist != nil {
		e.deps.Persist(*job)
	}
	e.notify(job, types.EventProgress, stage+": "+detail)
}

func (e *Executor) notify(job *types.Job, typ types.EventType, msg string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Notify(types.Notification{Type: typ, JobID: job.ID, Message: msg})
}

func countWithSentences(trs []transcript.VideoTranscript) int {
	n := 0
	for _, tr := range trs {
		if len(tr.Sentences) > 0 {
			n++
		}
	}
	return n
}

// writeInfo snapshots the job request next to its artifacts so a run can
// be understood (and re-run) without the database.
func writeInfo(job *types.Job) error {
	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(job.OutputDir, "info.json"), b, 0o644)
}
