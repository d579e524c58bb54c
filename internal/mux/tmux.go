package mux

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/timvw/panetone/internal/model"
)

// Tmux implements the Multiplexer interface for tmux. A tmux window plays
// the role of a tab: panes in the same window share a topic.
type Tmux struct{}

// NewTmux creates a new tmux multiplexer.
func NewTmux() *Tmux {
	return &Tmux{}
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// ListPanes returns all tmux panes grouped by window.
func (t *Tmux) ListPanes(ctx context.Context) ([]model.Pane, error) {
	// Format: pane_id \t session:window \t window_name \t current_command \t current_path
	format := "#{pane_id}\t#{session_name}:#{window_index}\t#{window_name}\t#{pane_current_command}\t#{pane_current_path}"
	out, err := t.run(ctx, "list-panes", "-a", "-F", format)
	if err != nil {
		return nil, fmt.Errorf("tmux list-panes: %w", err)
	}
	return parseTmuxList(out), nil
}

// parseTmuxList parses the tab-separated list-panes output.
func parseTmuxList(out string) []model.Pane {
	var panes []model.Pane
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 5)
		if len(parts) != 5 {
			continue
		}
		panes = append(panes, model.Pane{
			ID:       parts[0],
			TabID:    parts[1],
			TabTitle: parts[2],
			Title:    parts[3],
			CWD:      parts[4],
		})
	}
	return panes
}

// SendText sends text in literal mode, then Enter with retry. The pause
// before Enter lets the paste settle; Enter is retried because tmux
// occasionally drops it right after a large literal send.
func (t *Tmux) SendText(ctx context.Context, paneID, text string) error {
	if _, err := t.run(ctx, "send-keys", "-t", paneID, "-l", text); err != nil {
		return fmt.Errorf("tmux send-keys to pane %s: %w", paneID, err)
	}
	time.Sleep(100 * time.Millisecond)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		if _, err := t.run(ctx, "send-keys", "-t", paneID, "Enter"); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("tmux send Enter to pane %s after 3 attempts: %w", paneID, lastErr)
}

// run executes a tmux command and returns its stdout.
func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
		}
		return "", err
	}
	return string(out), nil
}
