package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/timvw/panetone/internal/bridge"
	"github.com/timvw/panetone/internal/harness"
)

var (
	styleTab     = lipgloss.NewStyle().Bold(true)
	styleClaude  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fab283"))
	styleCodex   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5c9cf5"))
	styleNoAgent = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List panes and the harness each would be bridged as",
	Long: `Run one discovery scan and print every pane that would be tracked,
with the harness kind claiming it. Panes running a plain shell are
omitted, matching what the daemon tracks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg)
		if err != nil {
			return fmt.Errorf("no supported terminal multiplexer found: %w", err)
		}

		hs := harness.DefaultSet(true)
		b := bridge.New(0, time.Second, m, hs, nil, nil, nil, nil, nil, nil)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		panes, err := b.Discover(ctx)
		if err != nil {
			return fmt.Errorf("failed to scan panes: %w", err)
		}

		for _, p := range panes {
			kind := "-"
			style := styleNoAgent
			switch harness.Kind(p.Harness) {
			case harness.KindClaude:
				kind, style = p.Harness, styleClaude
			case harness.KindCodex:
				kind, style = p.Harness, styleCodex
			}
			fmt.Printf("%s  %s  %s  %s\n",
				style.Render(fmt.Sprintf("%-6s", kind)),
				styleTab.Render(p.TabTitle),
				p.ID,
				styleNoAgent.Render(p.Title))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
