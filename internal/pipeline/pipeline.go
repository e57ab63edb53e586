// Package pipeline wires the adapters together for a one-shot local
// run: no server, no scheduler, one job processed start to finish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/ports/adapters/deepseek"
	"github.com/mediacut/highlightd/internal/ports/adapters/ffmpeg"
	"github.com/mediacut/highlightd/internal/ports/adapters/filetrans"
	"github.com/mediacut/highlightd/internal/types"
	"github.com/mediacut/highlightd/internal/usecase"
)

type Config struct {
	Inputs         []string
	OutDir         string
	Text           string
	CaptionEnabled bool
	Timeout        time.Duration
	Log            *logger.Logger

	FFmpegPath  string
	FFprobePath string

	ASRBaseURL      string
	ASRAppKey       string
	ASRPollInterval time.Duration
	ASRMaxPollTries int

	LLMAPIKey       string
	LLMBaseURL      string
	LLMAllowedHosts []string
	LLMModel        string
	LLMSystemPrompt string

	AdjacentGapSec float64
	EndPaddingSec  float64
	OverlapDedupe  float64
}

func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return errors.New("no input files")
	}
	for _, in := range c.Inputs {
		if _, err := os.Stat(in); err != nil {
			return fmt.Errorf("stat input: %w", err)
		}
	}
	if c.ASRBaseURL == "" || c.ASRAppKey == "" {
		return errors.New("ASR_BASE_URL and ASR_APP_KEY are required")
	}
	if c.LLMAPIKey == "" {
		return errors.New("AI_API_KEY is required")
	}
	return deepseek.ValidateBaseURL(c.LLMBaseURL, c.LLMAllowedHosts)
}

// Run processes the inputs into one highlight reel and returns the path
// of the final video.
func Run(ctx context.Context, cfg Config) (string, error) {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	exec := usecase.New(usecase.Deps{
		Video:          ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		ASR:            filetrans.New(cfg.ASRBaseURL, cfg.ASRAppKey, cfg.ASRPollInterval, cfg.ASRMaxPollTries),
		Analyzer:       deepseek.New(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, cfg.LLMSystemPrompt, cfg.OverlapDedupe),
		Notifier:       logNotifier{log},
		Log:            log,
		AdjacentGapSec: cfg.AdjacentGapSec,
		EndPaddingSec:  cfg.EndPaddingSec,
	})

	job := types.Job{
		ID:        uuid.NewString(),
		Status:    types.JobStatusProcessing,
		CreatedAt: time.Now(),
	}
	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	job.OutputDir = filepath.Join(outDir, job.ID)
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return "", err
	}
	for _, in := range cfg.Inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", err
		}
		job.Payload.Videos = append(job.Payload.Videos, types.VideoRef{
			Filename: filepath.Base(abs),
			Path:     abs,
		})
	}
	job.Payload.Text = cfg.Text
	job.Payload.CaptionEnabled = cfg.CaptionEnabled

	res, err := exec.Run(ctx, &job, nil)
	if err != nil {
		return "", err
	}
	return res.OutputPath, nil
}

// logNotifier surfaces push notifications on the local log, there is no
// caller to stream them to.
type logNotifier struct {
	log *logger.Logger
}

func (n logNotifier) Notify(ev types.Notification) {
	switch ev.Type {
	case types.EventError:
		n.log.Warn(ev.Message, "job", ev.JobID)
	default:
		n.log.Info(ev.Message, "job", ev.JobID)
	}
}
