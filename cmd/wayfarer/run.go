package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberforge/wayfarer/internal/app"
	"github.com/emberforge/wayfarer/internal/config"
	"github.com/emberforge/wayfarer/internal/observe"
)

// shutdownTimeout bounds the graceful teardown after the run ends.
const shutdownTimeout = 15 * time.Second

// runFlags are the command-line overrides applied on top of the config
// file. Only flags the user actually set take effect.
type runFlags struct {
	configPath string
	seed       int64
	theme      string
	player     string
	model      string
	frames     int64
	fps        float64
	out        string
	listen     string
	requireLLM bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an autonomous game session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, watchPath, err := resolveConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cfg, watchPath)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", defaultConfigPath, "path to the YAML configuration file")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "master seed (0 picks one)")
	cmd.Flags().StringVar(&f.theme, "theme", "", "world generation theme")
	cmd.Flags().StringVar(&f.player, "player", "", "protagonist name")
	cmd.Flags().StringVar(&f.model, "model", "", "LLM model name")
	cmd.Flags().Int64Var(&f.frames, "frames", 0, "stop after this many frames (0 = unbounded)")
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "autonomous frames per second")
	cmd.Flags().StringVar(&f.out, "out", "", "replay output directory")
	cmd.Flags().StringVar(&f.listen, "listen", "", "websocket observer listen address")
	cmd.Flags().BoolVar(&f.requireLLM, "require-llm", false, "refuse to start when the LLM backend is unreachable")
	return cmd
}

// resolveConfig loads the config file and layers the changed flags on
// top. It returns the watch path when a real file backs the config.
func resolveConfig(cmd *cobra.Command, f *runFlags) (*config.Config, string, error) {
	explicit := cmd.Flags().Changed("config")
	cfg, err := loadConfig(f.configPath, explicit)
	if err != nil {
		return nil, "", err
	}

	set := cmd.Flags().Changed
	if set("seed") {
		cfg.Game.Seed = f.seed
	}
	if set("theme") {
		cfg.Game.Theme = f.theme
	}
	if set("player") {
		cfg.Game.PlayerName = f.player
	}
	if set("model") {
		cfg.LLM.Model = f.model
	}
	if set("frames") {
		cfg.Game.MaxFrames = f.frames
	}
	if set("fps") {
		cfg.Game.FPS = f.fps
	}
	if set("out") {
		cfg.Replay.Dir = f.out
	}
	if set("listen") {
		cfg.Server.ListenAddr = f.listen
	}
	if set("require-llm") {
		cfg.LLM.Require = f.requireLLM
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("%w: %w", errConfig, err)
	}

	watchPath := ""
	if _, statErr := os.Stat(f.configPath); statErr == nil {
		watchPath = f.configPath
	}
	return cfg, watchPath, nil
}

// runSession wires the application and drives it until the game ends or
// a signal arrives.
func runSession(parent context.Context, cfg *config.Config, watchPath string, opts ...app.Option) error {
	setupLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "wayfarer"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	if watchPath != "" {
		opts = append(opts, app.WithConfigWatch(watchPath))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	printStartupSummary(cfg, application.Session().Seed())
	slog.Info("engine ready — press Ctrl+C to stop")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
