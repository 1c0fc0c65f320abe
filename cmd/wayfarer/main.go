// Command wayfarer runs the autonomous role-playing engine: it
// generates a world, lets the protagonist play it out frame by frame,
// and records every run into a replay file.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberforge/wayfarer/internal/app"
	"github.com/emberforge/wayfarer/internal/config"
)

// defaultConfigPath is tried when --config is not given. A missing file
// at the default path is not an error; the built-in defaults apply.
const defaultConfigPath = "wayfarer.yaml"

// errConfig marks configuration failures so main can map them to their
// own exit code.
var errConfig = errors.New("configuration error")

// Exit codes: 0 clean run, 1 generic failure (including corrupt replay
// files), 2 bad arguments or configuration, 3 LLM backend unavailable
// at startup under --require-llm.
func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		switch {
		case errors.Is(err, app.ErrBackendUnavailable):
			return 3
		case errors.Is(err, errConfig):
			return 2
		default:
			return 1
		}
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wayfarer",
		Short:         "Headless autonomous role-playing engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newReplayCmd())
	return root
}

// loadConfig reads the config file at path, falling back to built-in
// defaults when the default path does not exist. explicit marks a path
// the user asked for; those must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// setupLogger installs the default slog logger at the configured level.
func setupLogger(level config.LogLevel) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.Slog(),
	})))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, seed int64) {
	backend := cfg.LLM.Provider
	if backend == "" {
		backend = "(offline fallbacks)"
	} else if cfg.LLM.Model != "" {
		backend = cfg.LLM.Provider + " / " + cfg.LLM.Model
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Wayfarer — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Backend", backend)
	printRow("Theme", cfg.Game.Theme)
	printRow("Seed", fmt.Sprintf("%d", seed))
	printRow("FPS", fmt.Sprintf("%.1f", cfg.Game.FPS))
	if cfg.Game.MaxFrames > 0 {
		printRow("Frame budget", fmt.Sprintf("%d", cfg.Game.MaxFrames))
	} else {
		printRow("Frame budget", "unbounded")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Observers", cfg.Server.ListenAddr)
	}
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	}
	printRow("Replay dir", cfg.Replay.Dir)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}
