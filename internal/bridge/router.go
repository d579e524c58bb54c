package bridge

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/timvw/panetone/internal/model"
	telem "github.com/timvw/panetone/internal/otel"
)

// Injector injects text into a pane as typed input. Implemented by the
// multiplexer layer.
type Injector interface {
	SendText(ctx context.Context, paneID, text string) error
}

// Router consumes inbound platform events: it enforces the owner lock,
// dispatches recognized commands, and injects everything else into the
// pane its topic routes to.
type Router struct {
	registry *Registry
	inject   Injector
	reply    PostClient // primary bot, for command replies
	chatID   int64
	ownerID  int64 // 0 disables the owner lock
	metrics  *telem.Metrics
}

// NewRouter creates a router. reply is the bot used for command replies
// and rejection notices.
func NewRouter(registry *Registry, inject Injector, reply PostClient, chatID, ownerID int64, metrics *telem.Metrics) *Router {
	return &Router{
		registry: registry,
		inject:   inject,
		reply:    reply,
		chatID:   chatID,
		ownerID:  ownerID,
		metrics:  metrics,
	}
}

// Handle routes one inbound event. Events outside a topic or with no text
// are ignored.
func (r *Router) Handle(ctx context.Context, ev model.Inbound) {
	if ev.ThreadID == 0 || ev.Text == "" {
		return
	}
	if r.ownerID != 0 && ev.Sender != r.ownerID {
		// Not the owner: dropped without side effects.
		r.metrics.RecordInbound(ctx, "rejected")
		return
	}

	if cmd, args, ok := parseCommand(ev.Text); ok {
		r.metrics.RecordInbound(ctx, "command")
		switch cmd {
		case "/list":
			r.handleList(ctx, ev)
		case "/collab":
			r.handleCollab(ctx, ev, args)
		case "/refresh":
			r.handleRefresh(ctx, ev)
		}
		return
	}

	r.routeText(ctx, ev)
}

// parseCommand recognizes the supported command tokens. Unrecognized
// leading-slash tokens are NOT commands; they route as ordinary input.
// A "@botname" suffix on the token is stripped (group chats add it).
func parseCommand(text string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	cmd = fields[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	switch cmd {
	case "/list", "/collab", "/refresh":
		return cmd, fields[1:], true
	}
	return "", nil, false
}

// routeText resolves the event's topic to a pane and injects the text.
func (r *Router) routeText(ctx context.Context, ev model.Inbound) {
	// A reply to a specific bot message routes to the pane that
	// produced it.
	if ev.ReplyTo != 0 {
		if paneID, ok := r.registry.PaneForMessage(ev.ReplyTo); ok {
			if _, tracked := r.registry.Pane(paneID); tracked {
				r.injectText(ctx, paneID, ev.Text)
				r.metrics.RecordInbound(ctx, "injected")
				return
			}
		}
	}

	tabID, ok := r.registry.TabForTopic(ev.ThreadID)
	if !ok {
		r.metrics.RecordInbound(ctx, "dropped")
		return
	}

	panes := r.registry.PanesForTab(tabID)
	if len(panes) == 0 {
		r.metrics.RecordInbound(ctx, "dropped")
		return
	}

	// Collaboration mode broadcasts the input to every harness pane in
	// the tab.
	if r.registry.Collab(tabID).Active() {
		delivered := false
		for _, p := range panes {
			if p.Harness == "" {
				continue
			}
			r.injectText(ctx, p.ID, ev.Text)
			delivered = true
		}
		if delivered {
			r.metrics.RecordInbound(ctx, "injected")
			return
		}
	}

	target := pickTarget(panes, r.registry.LastActive)
	if target == "" {
		r.metrics.RecordInbound(ctx, "dropped")
		return
	}
	r.injectText(ctx, target, ev.Text)
	r.metrics.RecordInbound(ctx, "injected")
}

// pickTarget chooses the pane inbound text goes to: the most recently
// active harness pane, harness-kind order breaking ties, falling back to
// any tracked pane in the tab.
func pickTarget(panes []model.Pane, lastActive func(string) time.Time) string {
	var best string
	var bestTime time.Time
	for _, p := range panes {
		if p.Harness == "" {
			continue
		}
		t := lastActive(p.ID)
		if best == "" || t.After(bestTime) {
			best, bestTime = p.ID, t
		}
	}
	if best != "" {
		return best
	}
	if len(panes) > 0 {
		return panes[0].ID
	}
	return ""
}

func (r *Router) injectText(ctx context.Context, paneID, text string) {
	if err := r.inject.SendText(ctx, paneID, text); err != nil {
		fmt.Fprintf(os.Stderr, "warning: inject into pane %s: %v\n", paneID, err)
	}
}

// handleList replies with the tracked pane/harness/topic listing.
func (r *Router) handleList(ctx context.Context, ev model.Inbound) {
	panes := r.registry.Tracked()
	if len(panes) == 0 {
		r.replyTo(ctx, ev.ThreadID, "no panes")
		return
	}
	var b strings.Builder
	for _, p := range panes {
		kind := p.Harness
		if kind == "" {
			kind = "--"
		}
		fmt.Fprintf(&b, "%-6s  %s  %s\n", kind, p.TabTitle, p.Title)
	}
	r.replyTo(ctx, ev.ThreadID, strings.TrimRight(b.String(), "\n"))
}

// handleCollab toggles collaboration mode for the event's tab. With an
// argument it arms a finite round counter instead of indefinite mode.
func (r *Router) handleCollab(ctx context.Context, ev model.Inbound, args []string) {
	tabID, ok := r.registry.TabForTopic(ev.ThreadID)
	if !ok {
		r.replyTo(ctx, ev.ThreadID, "no tab tracked for this topic")
		return
	}

	if r.registry.Collab(tabID).Active() {
		r.registry.SetCollab(tabID, CollabState{})
		r.replyTo(ctx, ev.ThreadID, "collab off")
		return
	}

	state := CollabState{Mode: CollabIndefinite}
	if len(args) > 0 {
		rounds, err := strconv.Atoi(args[0])
		if err != nil || rounds <= 0 {
			r.replyTo(ctx, ev.ThreadID, "usage: /collab [rounds], rounds must be a positive integer")
			return
		}
		state = CollabState{Mode: CollabCounting, Rounds: rounds}
	}
	r.registry.SetCollab(tabID, state)
	r.replyTo(ctx, ev.ThreadID, state.String())
}

// handleRefresh tears down the event's topic and rebinds the tab to a
// fresh one.
func (r *Router) handleRefresh(ctx context.Context, ev model.Inbound) {
	newID, err := r.registry.Refresh(ctx, ev.ThreadID)
	if err != nil {
		r.replyTo(ctx, ev.ThreadID, fmt.Sprintf("refresh failed: %v", err))
		return
	}
	r.replyTo(ctx, newID, "topic refreshed")
}

func (r *Router) replyTo(ctx context.Context, threadID int64, text string) {
	if _, err := r.reply.SendMessage(ctx, r.chatID, threadID, text); err != nil {
		fmt.Fprintf(os.Stderr, "warning: reply to thread %d: %v\n", threadID, err)
	}
}
