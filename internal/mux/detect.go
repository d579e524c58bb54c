package mux

import (
	"fmt"
	"os"
	"os/exec"
)

// Detect auto-detects the active terminal multiplexer.
// It checks environment variables first, then falls back to checking
// if the multiplexer binary exists and has a running server.
func Detect() (Multiplexer, error) {
	// Check environment variables first.
	if os.Getenv("WEZTERM_PANE") != "" || os.Getenv("WEZTERM_UNIX_SOCKET") != "" {
		return NewWezterm(), nil
	}
	if os.Getenv("TMUX") != "" {
		return NewTmux(), nil
	}

	// Fall back to probing for a reachable server.
	if path, err := exec.LookPath("wezterm"); err == nil && path != "" {
		if err := exec.Command("wezterm", "cli", "list").Run(); err == nil {
			return NewWezterm(), nil
		}
	}
	if path, err := exec.LookPath("tmux"); err == nil && path != "" {
		if err := exec.Command("tmux", "list-sessions").Run(); err == nil {
			return NewTmux(), nil
		}
	}

	return nil, fmt.Errorf("no supported terminal multiplexer detected (set $WEZTERM_PANE or $TMUX, or start wezterm/tmux)")
}

// FromName creates a Multiplexer by name.
func FromName(name string) (Multiplexer, error) {
	switch name {
	case "wezterm":
		return NewWezterm(), nil
	case "tmux":
		return NewTmux(), nil
	default:
		return nil, fmt.Errorf("unknown multiplexer: %q (supported: wezterm, tmux)", name)
	}
}
