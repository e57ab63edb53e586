package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediacut/highlightd/internal/config"
	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/ports/adapters/deepseek"
	"github.com/mediacut/highlightd/internal/ports/adapters/ffmpeg"
	"github.com/mediacut/highlightd/internal/ports/adapters/filetrans"
	"github.com/mediacut/highlightd/internal/scheduler"
	"github.com/mediacut/highlightd/internal/server"
	"github.com/mediacut/highlightd/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the processing service (HTTP API + WebSocket)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg := config.Load()

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.LLMAPIKey != "" {
		if err := deepseek.ValidateBaseURL(cfg.LLMBaseURL, cfg.LLMAllowedHosts); err != nil {
			return err
		}
	}

	st := store.Disabled()
	if cfg.PersistEnabled {
		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
	} else {
		log.Warn("persistence disabled, jobs will not survive a restart")
	}

	hub := server.NewHub()
	sched := scheduler.New(scheduler.Options{
		Video:             ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath),
		ASR:               filetrans.New(cfg.ASRBaseURL, cfg.ASRAppKey, cfg.ASRPollInterval, cfg.ASRMaxPollTries),
		Analyzer:          deepseek.New(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, cfg.LLMSystemPrompt, cfg.OverlapDedupe),
		Notifier:          hub,
		Store:             st,
		Log:               log,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		OutputRoot:        cfg.OutputDir,
		RetentionWindow:   cfg.RetentionWindow,
		CleanupInterval:   cfg.CleanupInterval,
		AdjacentGapSec:    cfg.ClipAdjacentGap.Seconds(),
		EndPaddingSec:     cfg.ClipEndPadding.Seconds(),
	})
	sched.Start()

	srv := server.New(cfg, sched, hub, log)
	api := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Router()}
	ws := &http.Server{Addr: cfg.WSAddr, Handler: srv.WSRouter()}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http api listening", "addr", cfg.HTTPAddr)
		errCh <- api.ListenAndServe()
	}()
	go func() {
		log.Info("websocket listening", "addr", cfg.WSAddr)
		errCh <- ws.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = api.Shutdown(shutdownCtx)
	_ = ws.Shutdown(shutdownCtx)
	sched.Stop()
	return nil
}
