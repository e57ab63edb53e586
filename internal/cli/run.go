package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mediacut/highlightd/internal/config"
	"github.com/mediacut/highlightd/internal/logger"
	"github.com/mediacut/highlightd/internal/pipeline"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <video>...",
		Short: "Process local video files without starting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, args)
		},
	}
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().String("text", "", "Hint for segment selection")
	cmd.Flags().Bool("caption", false, "Burn subtitles into the final video")
	return cmd
}

func runLocal(cmd *cobra.Command, inputs []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	text, _ := cmd.Flags().GetString("text")
	caption, _ := cmd.Flags().GetBool("caption")

	cfg := config.Load()

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	pcfg := pipeline.Config{
		Inputs:         inputs,
		OutDir:         outDir,
		Text:           text,
		CaptionEnabled: caption,
		Timeout:        cfg.JobTimeout,
		Log:            log,

		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,

		ASRBaseURL:      cfg.ASRBaseURL,
		ASRAppKey:       cfg.ASRAppKey,
		ASRPollInterval: cfg.ASRPollInterval,
		ASRMaxPollTries: cfg.ASRMaxPollTries,

		LLMAPIKey:       cfg.LLMAPIKey,
		LLMBaseURL:      cfg.LLMBaseURL,
		LLMAllowedHosts: cfg.LLMAllowedHosts,
		LLMModel:        cfg.LLMModel,
		LLMSystemPrompt: cfg.LLMSystemPrompt,

		AdjacentGapSec: cfg.ClipAdjacentGap.Seconds(),
		EndPaddingSec:  cfg.ClipEndPadding.Seconds(),
		OverlapDedupe:  cfg.OverlapDedupe,
	}
	if err := pcfg.Validate(); err != nil {
		return err
	}

	out, err := pipeline.Run(context.Background(), pcfg)
	if err != nil {
		return err
	}
	log.Info("highlight reel ready", "output", out)
	cmd.Println(out)
	return nil
}
