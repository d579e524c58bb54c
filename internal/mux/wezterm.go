package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/timvw/panetone/internal/model"
)

// Wezterm implements the Multiplexer interface for wezterm.
type Wezterm struct{}

// NewWezterm creates a new wezterm multiplexer.
func NewWezterm() *Wezterm {
	return &Wezterm{}
}

// Name returns "wezterm".
func (w *Wezterm) Name() string {
	return "wezterm"
}

// weztermPane is one entry of `wezterm cli list --format json`.
type weztermPane struct {
	PaneID   int    `json:"pane_id"`
	TabID    int    `json:"tab_id"`
	Title    string `json:"title"`
	TabTitle string `json:"tab_title"`
	CWD      string `json:"cwd"`
}

// ListPanes returns all wezterm panes with tab grouping.
func (w *Wezterm) ListPanes(ctx context.Context) ([]model.Pane, error) {
	out, err := w.run(ctx, nil, "cli", "list", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("wezterm cli list: %w", err)
	}
	return parseWeztermList([]byte(out))
}

// parseWeztermList decodes the JSON pane listing into model panes.
func parseWeztermList(data []byte) ([]model.Pane, error) {
	var raw []weztermPane
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode wezterm pane list: %w", err)
	}

	panes := make([]model.Pane, 0, len(raw))
	for _, p := range raw {
		panes = append(panes, model.Pane{
			ID:       strconv.Itoa(p.PaneID),
			TabID:    strconv.Itoa(p.TabID),
			Title:    p.Title,
			TabTitle: p.TabTitle,
			CWD:      parseCWD(p.CWD),
		})
	}
	return panes, nil
}

// parseCWD strips the file:// scheme wezterm reports for working
// directories (e.g., "file://host/home/user/proj" -> "/home/user/proj").
func parseCWD(cwd string) string {
	if !strings.HasPrefix(cwd, "file://") {
		return cwd
	}
	u, err := url.Parse(cwd)
	if err != nil {
		return cwd
	}
	return u.Path
}

// SendText pastes text into the pane, then submits it with a raw carriage
// return. The pause between the two lets the paste land before the return
// is processed.
func (w *Wezterm) SendText(ctx context.Context, paneID, text string) error {
	if _, err := w.run(ctx, strings.NewReader(text), "cli", "send-text", "--pane-id", paneID); err != nil {
		return fmt.Errorf("wezterm send-text to pane %s: %w", paneID, err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := w.run(ctx, strings.NewReader("\r"), "cli", "send-text", "--pane-id", paneID, "--no-paste"); err != nil {
		return fmt.Errorf("wezterm send-text return to pane %s: %w", paneID, err)
	}
	return nil
}

// run executes a wezterm command and returns its stdout.
func (w *Wezterm) run(ctx context.Context, stdin *strings.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "wezterm", args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: %s", err, string(exitErr.Stderr))
		}
		return "", err
	}
	return string(out), nil
}
