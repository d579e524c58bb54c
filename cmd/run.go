package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timvw/panetone/internal/bridge"
	"github.com/timvw/panetone/internal/config"
	"github.com/timvw/panetone/internal/harness"
	telem "github.com/timvw/panetone/internal/otel"
	"github.com/timvw/panetone/internal/tail"
	"github.com/timvw/panetone/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge daemon",
	Long: `Run the bridge: scan panes, mirror new session-log output into the
forum group, and route replies and commands back into panes.

Requires at least the Claude bot token and the group chat id. The Codex
harness is only activated when a Codex bot token is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBridge()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBridge() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "config: loaded %s\n", cfg.ConfigFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	}
	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
		defer tel.Shutdown(context.Background())
	}

	m, err := getMultiplexer(cfg)
	if err != nil {
		return fmt.Errorf("no supported terminal multiplexer found: %w", err)
	}
	fmt.Fprintf(os.Stderr, "multiplexer: %s\n", m.Name())

	claudeBot := telegram.NewClient(cfg.ClaudeToken)
	bots := map[string]bridge.PostClient{
		string(harness.KindClaude): claudeBot,
	}
	if cfg.CodexToken != "" {
		bots[string(harness.KindCodex)] = telegram.NewClient(cfg.CodexToken)
	}

	hs := harness.DefaultSet(cfg.CodexToken != "")

	tailer := tail.NewTailer(tail.NewCursorStore())
	tailer.ReplayStart = cfg.Replay == config.ReplayStart

	registry := bridge.NewRegistry(claudeBot, cfg.ChatID, metrics)
	poster := bridge.NewPoster(cfg.ChatID, bots, registry, metrics)
	router := bridge.NewRouter(registry, m, claudeBot, cfg.ChatID, cfg.OwnerID, metrics)

	b := bridge.New(cfg.ChatID, cfg.PollInterval, m, hs, tailer, registry, poster, router, claudeBot, metrics)
	return b.Run(ctx)
}
