package bridge

import "fmt"

// CollabMode is the collaboration forwarding mode for one tab's topic.
type CollabMode int

const (
	// CollabOff disables forwarding.
	CollabOff CollabMode = iota
	// CollabIndefinite forwards until explicitly toggled off.
	CollabIndefinite
	// CollabCounting forwards for a fixed number of rounds, then reverts
	// to off.
	CollabCounting
)

// CollabState is the per-topic collaboration state machine. The zero value
// is off.
type CollabState struct {
	Mode CollabMode
	// Rounds is the remaining round count. Only meaningful in
	// CollabCounting mode.
	Rounds int
}

// Active reports whether forwarding is currently enabled.
func (s CollabState) Active() bool {
	return s.Mode != CollabOff
}

// Consume spends one forwarding round. Indefinite mode never decrements.
// Returns the successor state and whether this consumption turned the
// mode off.
func (s CollabState) Consume() (CollabState, bool) {
	if s.Mode != CollabCounting {
		return s, false
	}
	s.Rounds--
	if s.Rounds <= 0 {
		return CollabState{}, true
	}
	return s, false
}

func (s CollabState) String() string {
	switch s.Mode {
	case CollabIndefinite:
		return "collab on"
	case CollabCounting:
		return fmt.Sprintf("collab on (%d rounds)", s.Rounds)
	default:
		return "collab off"
	}
}
