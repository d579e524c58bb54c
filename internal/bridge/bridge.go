package bridge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/timvw/panetone/internal/harness"
	"github.com/timvw/panetone/internal/model"
	"github.com/timvw/panetone/internal/mux"
	telem "github.com/timvw/panetone/internal/otel"
	"github.com/timvw/panetone/internal/tail"
	"github.com/timvw/panetone/internal/telegram"
)

// BotAPI is the full platform surface the bridge consumes from its
// primary bot: topic lifecycle, posting, and the inbound update stream.
type BotAPI interface {
	TopicClient
	PostClient
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error)
}

// shellTitles lists foreground process names that mark a pane as a plain
// shell or utility. Such panes never get a topic of their own.
var shellTitles = map[string]bool{
	"zsh": true, "bash": true, "fish": true, "sh": true, "dash": true,
	"node": true, "uv": true, "python": true, "python3": true, "ruby": true,
	"nvim": true, "vim": true, "nano": true, "htop": true, "top": true,
	"less": true, "man": true,
}

// updateTimeout is the getUpdates long-poll duration in seconds.
const updateTimeout = 50

// Bridge drives the whole system: it scans the multiplexer, keeps the
// registry in sync, polls session logs, posts output, forwards in collab
// mode, and feeds inbound updates to the router.
type Bridge struct {
	chatID       int64
	pollInterval time.Duration

	mux       mux.Multiplexer
	harnesses *harness.Set
	tailer    *tail.Tailer
	registry  *Registry
	poster    *Poster
	router    *Router
	primary   BotAPI
	metrics   *telem.Metrics
}

// New assembles a bridge from its parts. primary is the bot used for
// topic lifecycle, notices, and the update stream.
func New(chatID int64, pollInterval time.Duration, m mux.Multiplexer, hs *harness.Set, tailer *tail.Tailer, registry *Registry, poster *Poster, router *Router, primary BotAPI, metrics *telem.Metrics) *Bridge {
	return &Bridge{
		chatID:       chatID,
		pollInterval: pollInterval,
		mux:          m,
		harnesses:    hs,
		tailer:       tailer,
		registry:     registry,
		poster:       poster,
		router:       router,
		primary:      primary,
		metrics:      metrics,
	}
}

// Run drives the poll ticker and the inbound update loop until ctx is
// cancelled, then waits for in-flight posts to drain.
func (b *Bridge) Run(ctx context.Context) error {
	b.poster.Start(ctx)
	go b.updatesLoop(ctx)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			b.poster.Wait()
			return nil
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick runs one scan-sync-poll cycle.
func (b *Bridge) tick(ctx context.Context) {
	scanned, err := b.Discover(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: pane scan: %v\n", err)
		return
	}

	// A tab whose topic cannot be resolved stays untracked this tick and
	// is retried on the next one.
	tracked := scanned[:0]
	resolved := map[string]bool{}
	for _, p := range scanned {
		ok, seen := resolved[p.TabID]
		if !seen {
			_, err := b.registry.ResolveTopic(ctx, p.TabID, p.TabTitle)
			ok = err == nil
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: resolve topic for tab %s: %v\n", p.TabID, err)
			}
			resolved[p.TabID] = ok
		}
		if ok {
			tracked = append(tracked, p)
		}
	}

	for _, stream := range b.registry.Sync(ctx, tracked) {
		b.tailer.Forget(stream)
	}

	for _, p := range tracked {
		if p.Harness == "" {
			continue
		}
		b.pollPane(ctx, p)
	}
}

// pollPane reads new session-log records for one harness pane and
// dispatches them: posted to the topic, and forwarded to peer panes when
// collaboration mode is on.
func (b *Bridge) pollPane(ctx context.Context, p model.Pane) {
	h := b.harnesses.ByKind(harness.Kind(p.Harness))
	if h == nil {
		return
	}
	msgs, err := b.tailer.Poll(p, h)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: poll %s/%s: %v\n", p.ID, p.Harness, err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	b.registry.MarkActive(p.ID)
	b.metrics.RecordParsed(ctx, p.Harness, int64(len(msgs)))

	for _, msg := range msgs {
		b.poster.Post(msg)
		if b.registry.Collab(p.TabID).Active() {
			b.forward(ctx, p, msg.Text)
		}
	}
}

// forward injects msg text into the peer harness panes of the same tab.
// Forwarding runs detached so a slow pane never delays posting; round
// accounting happens here, with a notice when the counter empties.
func (b *Bridge) forward(ctx context.Context, from model.Pane, text string) {
	var peers []model.Pane
	for _, peer := range b.registry.PanesForTab(from.TabID) {
		if peer.ID == from.ID || peer.Harness == "" {
			continue
		}
		peers = append(peers, peer)
	}
	if len(peers) == 0 {
		return
	}

	go func() {
		for _, peer := range peers {
			if err := b.router.inject.SendText(ctx, peer.ID, text); err != nil {
				fmt.Fprintf(os.Stderr, "warning: forward to pane %s: %v\n", peer.ID, err)
				continue
			}
			b.metrics.RecordForward(ctx)
		}
	}()

	if b.registry.ConsumeCollabRound(from.TabID) {
		if topicID, ok := b.registry.TopicForTab(from.TabID); ok {
			if _, err := b.primary.SendMessage(ctx, b.chatID, topicID, "collab done"); err != nil {
				fmt.Fprintf(os.Stderr, "warning: collab notice: %v\n", err)
			}
		}
	}
}

// Discover scans the multiplexer and classifies panes: each harness kind
// claims at most one pane per tab (the one whose working directory has
// the freshest session log), plain shell panes are dropped, and anything
// else is tracked harness-less as an input-only target.
func (b *Bridge) Discover(ctx context.Context) ([]model.Pane, error) {
	panes, err := b.mux.ListPanes(ctx)
	if err != nil {
		return nil, err
	}

	claimed := map[string]string{} // pane id -> harness kind
	byTab := map[string][]int{}
	var tabs []string
	for i, p := range panes {
		if _, seen := byTab[p.TabID]; !seen {
			tabs = append(tabs, p.TabID)
		}
		byTab[p.TabID] = append(byTab[p.TabID], i)
	}

	for _, tab := range tabs {
		for _, h := range b.harnesses.All() {
			best, bestTime := -1, time.Time{}
			for _, i := range byTab[tab] {
				p := panes[i]
				if claimed[p.ID] != "" || p.CWD == "" {
					continue
				}
				session := h.FindSession(p.CWD)
				if session == "" {
					continue
				}
				fi, err := os.Stat(session)
				if err != nil {
					continue
				}
				if best == -1 || fi.ModTime().After(bestTime) {
					best, bestTime = i, fi.ModTime()
				}
			}
			if best >= 0 {
				claimed[panes[best].ID] = string(h.Kind())
			}
		}
	}

	var out []model.Pane
	for _, p := range panes {
		kind := claimed[p.ID]
		if kind == "" && shellTitles[strings.ToLower(p.Title)] {
			continue
		}
		p.Harness = kind
		out = append(out, p)
	}
	return out, nil
}

// drainBacklog discards every update queued before startup and returns
// the offset of the first live update. getUpdates pages at 100 updates
// per call, so it keeps fetching until a page comes back empty; stopping
// after one page would replay the rest of the backlog into panes.
func (b *Bridge) drainBacklog(ctx context.Context) int64 {
	var offset int64
	for {
		backlog, err := b.primary.GetUpdates(ctx, offset, 0)
		if err != nil || len(backlog) == 0 {
			return offset
		}
		for _, u := range backlog {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
		}
	}
}

// updatesLoop long-polls the platform for inbound messages and hands
// them to the router. The backlog present at startup is drained without
// processing so stale messages never replay into panes.
func (b *Bridge) updatesLoop(ctx context.Context) {
	offset := b.drainBacklog(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		updates, err := b.primary.GetUpdates(ctx, offset, updateTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "warning: getUpdates: %v\n", err)
			sleepCtx(ctx, 2*time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			m := u.Message
			if m == nil || m.From == nil || m.Chat.ID != b.chatID || m.MessageThreadID == 0 {
				continue
			}
			ev := model.Inbound{
				UpdateID: u.UpdateID,
				Sender:   m.From.ID,
				ThreadID: m.MessageThreadID,
				Text:     m.Text,
				Time:     time.Unix(m.Date, 0),
			}
			if m.ReplyToMessage != nil {
				ev.ReplyTo = m.ReplyToMessage.MessageID
			}
			b.router.Handle(ctx, ev)
		}
	}
}
