package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/timvw/panetone/internal/telegram"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, bot credentials, and the multiplexer",
	Long: `Check everything the daemon needs before it starts: the config file,
each configured bot token (via a live getMe call), and the terminal
multiplexer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if cfg.ConfigFile != "" {
			fmt.Printf("config: %s\n", cfg.ConfigFile)
		} else {
			fmt.Println("config: defaults + environment (no config file found)")
		}

		failed := false

		if cfg.ChatID == 0 {
			fmt.Println("chat: MISSING: set PANETONE_CHAT or chat_id")
			failed = true
		} else {
			fmt.Printf("chat: %d\n", cfg.ChatID)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if !checkBot(ctx, "claude", cfg.ClaudeToken, true) {
			failed = true
		}
		if !checkBot(ctx, "codex", cfg.CodexToken, false) {
			failed = true
		}

		if m, err := getMultiplexer(cfg); err != nil {
			fmt.Printf("multiplexer: FAILED: %v\n", err)
			failed = true
		} else if panes, err := m.ListPanes(ctx); err != nil {
			fmt.Printf("multiplexer: %s, list FAILED: %v\n", m.Name(), err)
			failed = true
		} else {
			fmt.Printf("multiplexer: %s, %d panes\n", m.Name(), len(panes))
		}

		if failed {
			return fmt.Errorf("check failed")
		}
		return nil
	},
}

// checkBot verifies one bot credential with a live getMe call. Missing
// optional tokens are reported but do not fail the check.
func checkBot(ctx context.Context, kind, token string, required bool) bool {
	if token == "" {
		if required {
			fmt.Printf("bot %s: MISSING: set PANETONE_TOKEN_%s\n", kind, strings.ToUpper(kind))
			return false
		}
		fmt.Printf("bot %s: not configured (harness disabled)\n", kind)
		return true
	}
	me, err := telegram.NewClient(token).GetMe(ctx)
	if err != nil {
		fmt.Printf("bot %s: FAILED: %v\n", kind, err)
		return false
	}
	fmt.Printf("bot %s: @%s\n", kind, me.Username)
	return true
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
