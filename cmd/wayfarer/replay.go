package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emberforge/wayfarer/internal/app"
	"github.com/emberforge/wayfarer/internal/config"
	"github.com/emberforge/wayfarer/internal/replay"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Inspect, re-run, or continue recorded sessions",
	}
	cmd.AddCommand(newReplayViewCmd())
	cmd.AddCommand(newReplayPlayCmd())
	cmd.AddCommand(newReplayContinueCmd())
	return cmd
}

func newReplayViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "Print the header and contents summary of a replay file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			printReplaySummary(args[0], f)
			return nil
		},
	}
}

func newReplayPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <file> [speed]",
		Short: "Re-run a recorded session deterministically from its call cache",
		Long: "Play rebuilds the session from the recorded seed and answers every\n" +
			"LLM call from the replay's call cache, so no backend is needed and\n" +
			"the event stream matches the original run. speed is the playback\n" +
			"frame rate (default 60).",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fps := 60.0
			if len(args) == 2 {
				v, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("%w: speed %q is not a number", errConfig, args[1])
				}
				fps = v
			}

			f, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			if f.Header.FrameCount == 0 {
				fmt.Println("replay holds no frames, nothing to play")
				return nil
			}

			cfg := config.Default()
			cfg.Game.Seed = f.Header.GameSeed
			cfg.Game.Theme = f.Header.Theme
			cfg.LLM.Model = f.Header.Model
			cfg.Game.FPS = fps
			cfg.Game.MaxFrames = f.Header.FrameCount
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("%w: %w", errConfig, err)
			}

			return runSession(cmd.Context(), cfg, "", app.WithReplayCache(f.Cache()))
		},
	}
	return cmd
}

func newReplayContinueCmd() *cobra.Command {
	var configPath, out string
	cmd := &cobra.Command{
		Use:   "continue <file>",
		Short: "Resume a recorded session from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			cfg.Game.Theme = f.Header.Theme
			if cmd.Flags().Changed("out") {
				cfg.Replay.Dir = out
			}

			return runSession(cmd.Context(), cfg, "", app.WithResume(f))
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	cmd.Flags().StringVar(&out, "out", "", "directory the continued run's replay is written into")
	return cmd
}

func printReplaySummary(path string, f *replay.File) {
	h := f.Header
	fmt.Printf("replay %s\n", path)
	fmt.Printf("  version     %s\n", h.Version)
	fmt.Printf("  recorded    %s\n", h.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  seed        %d\n", h.GameSeed)
	fmt.Printf("  theme       %s\n", h.Theme)
	if h.Model != "" {
		fmt.Printf("  model       %s\n", h.Model)
	}
	fmt.Printf("  frames      %d\n", h.FrameCount)
	fmt.Printf("  events      %d\n", h.EventCount)
	fmt.Printf("  llm calls   %d\n", h.LLMCallCount)
	fmt.Printf("  checkpoints %d\n", h.CheckpointCount)

	if cp := f.LastCheckpoint(); cp != nil {
		fmt.Printf("  resumable from frame %d\n", cp.Frame)
	}

	counts := map[string]int{}
	for _, ev := range f.Events {
		counts[ev.Type]++
	}
	if len(counts) > 0 {
		fmt.Println("  event breakdown:")
		for _, ev := range f.Events {
			if n, ok := counts[ev.Type]; ok {
				fmt.Printf("    %-28s %d\n", ev.Type, n)
				delete(counts, ev.Type)
			}
		}
	}
}
