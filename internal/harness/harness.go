// Package harness provides session-log integration for known AI coding
// agents.
//
// Each harness knows two things about its agent: where the agent writes
// its append-only JSONL session log for a given working directory, and how
// to turn one log record into renderable text. The set of kinds is closed —
// adding an agent means adding a type here, checked at compile time.
package harness

import (
	"os"
	"path/filepath"
)

// Kind identifies a supported harness.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
)

// Entry is one normalized renderable record from a session log.
type Entry struct {
	// Author is the normalized role tag ("assistant", "tool").
	Author string
	// Text is the renderable body, never empty.
	Text string
}

// Harness recognizes a specific agent's session logs.
type Harness interface {
	// Kind returns the harness identifier.
	Kind() Kind

	// FindSession returns the path of the agent's most recent session log
	// for the given working directory, or "" when none exists.
	FindSession(cwd string) string

	// ParseRecord converts one JSONL record into a renderable entry.
	// Returns ok=false for internal/control records with nothing to show.
	ParseRecord(line []byte) (Entry, bool)
}

// Set holds the harnesses active for this run, in deterministic order
// (claude before codex). Only kinds with a configured bot credential are
// included.
type Set struct {
	harnesses []Harness
}

// NewSet creates a set with the given harnesses, preserving order.
func NewSet(harnesses ...Harness) *Set {
	return &Set{harnesses: harnesses}
}

// DefaultSet returns the harnesses for the standard on-disk locations.
// withCodex controls whether the codex harness is included (it is only
// useful when a codex bot credential exists).
func DefaultSet(withCodex bool) *Set {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	hs := []Harness{
		NewClaude(filepath.Join(home, ".claude", "projects")),
	}
	if withCodex {
		hs = append(hs, NewCodex(filepath.Join(home, ".codex", "sessions")))
	}
	return NewSet(hs...)
}

// All returns the harnesses in order.
func (s *Set) All() []Harness {
	return s.harnesses
}

// ByKind returns the harness for a kind, or nil.
func (s *Set) ByKind(kind Kind) Harness {
	for _, h := range s.harnesses {
		if h.Kind() == kind {
			return h
		}
	}
	return nil
}

// newestFile returns the path in paths with the latest mtime, or "".
func newestFile(paths []string) string {
	var best string
	var bestMtime int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); best == "" || mt > bestMtime {
			best, bestMtime = p, mt
		}
	}
	return best
}

// truncate caps s at n bytes.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
