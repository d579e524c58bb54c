// Package mux provides an abstraction over terminal multiplexers
// (wezterm, tmux).
//
// This package is pure transport: it enumerates panes grouped by tab and
// injects text into a pane's foreground process. It never interprets pane
// content — harness detection happens in the harness package, against
// session files rather than screen scrapes.
package mux

import (
	"context"

	"github.com/timvw/panetone/internal/model"
)

// Multiplexer abstracts terminal multiplexer operations.
// Implementations exist for wezterm and tmux.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "wezterm", "tmux").
	Name() string

	// ListPanes returns all panes across all tabs, with tab grouping and
	// working directories resolved.
	ListPanes(ctx context.Context) ([]model.Pane, error)

	// SendText injects text into a pane's foreground process as typed
	// input, followed by a carriage return to submit it.
	SendText(ctx context.Context, paneID, text string) error
}
