package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/timvw/panetone/internal/config"
	"github.com/timvw/panetone/internal/mux"
)

// Version is stamped by the release build.
var Version = "dev"

var (
	// Global flags.
	flagMux    string
	flagPoll   string
	flagReplay string
)

var rootCmd = &cobra.Command{
	Use:   "panetone",
	Short: "Bridge terminal panes running AI coding agents to a Telegram forum group",
	Long: `panetone mirrors AI coding-agent sessions running in terminal multiplexer
panes into a Telegram forum group: one topic per tab, one bot identity per
agent harness. Replies typed in a topic are routed back to the right pane
as keyboard input.

Supported harnesses: Claude Code and Codex. Supported multiplexers:
wezterm and tmux.

Configuration is loaded from .panetone.yaml or environment variables.
See the README for all configuration options.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagMux, "mux", envOrDefault("PANETONE_MUX", ""), "terminal multiplexer: wezterm, tmux (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&flagPoll, "poll", "", "session log poll interval, e.g. 2s (default: from config)")
	rootCmd.PersistentFlags().StringVar(&flagReplay, "replay", "", "first-sight cursor position: end, start (default: from config)")
}

// loadConfig loads the layered configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagMux != "" {
		cfg.Mux = flagMux
	}
	if flagReplay != "" {
		if flagReplay != config.ReplayEnd && flagReplay != config.ReplayStart {
			return nil, fmt.Errorf("invalid replay mode %q (supported: end, start)", flagReplay)
		}
		cfg.Replay = flagReplay
	}
	if flagPoll != "" {
		d, err := time.ParseDuration(flagPoll)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid poll interval %q", flagPoll)
		}
		cfg.Poll = flagPoll
		cfg.PollInterval = d
	}
	return cfg, nil
}

// getMultiplexer returns the configured or auto-detected multiplexer.
func getMultiplexer(cfg *config.Config) (mux.Multiplexer, error) {
	if cfg.Mux != "" {
		return mux.FromName(cfg.Mux)
	}
	return mux.Detect()
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
