// Package bridge is the routing and session-tailing engine: it maps panes
// to forum topics, converts session log appends into posts under the right
// bot identity, and routes replies and commands back into panes.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timvw/panetone/internal/model"
	telem "github.com/timvw/panetone/internal/otel"
)

// TopicClient is the topic-lifecycle subset of the platform API.
type TopicClient interface {
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	DeleteForumTopic(ctx context.Context, chatID, threadID int64) error
	CloseForumTopic(ctx context.Context, chatID, threadID int64) error
}

// msgPaneCap bounds the reply-routing map. Old entries age out FIFO; a
// reply to a message older than the window falls back to recency routing.
const msgPaneCap = 512

// Registry owns the pane/tab/topic mapping, collaboration state, and
// topic lifecycle. All mutation goes through its serialized API; topic
// creation is additionally serialized per tab so concurrent resolution
// never creates two topics for one tab.
type Registry struct {
	client  TopicClient
	chatID  int64
	metrics *telem.Metrics

	mu       sync.Mutex
	tabTopic map[string]int64
	topicTab map[int64]string
	tabTitle map[string]string
	panes    map[string]model.Pane
	active   map[string]time.Time // paneID -> last output activity
	collab   map[string]CollabState

	msgPane  map[int]string // message id -> pane id, reply routing
	msgOrder []int

	creating map[string]*sync.Mutex // per-tab topic creation locks
}

// NewRegistry creates a registry posting topics into chatID.
func NewRegistry(client TopicClient, chatID int64, metrics *telem.Metrics) *Registry {
	return &Registry{
		client:   client,
		chatID:   chatID,
		metrics:  metrics,
		tabTopic: make(map[string]int64),
		topicTab: make(map[int64]string),
		tabTitle: make(map[string]string),
		panes:    make(map[string]model.Pane),
		active:   make(map[string]time.Time),
		collab:   make(map[string]CollabState),
		msgPane:  make(map[int]string),
		creating: make(map[string]*sync.Mutex),
	}
}

// ResolveTopic returns the topic for a tab, creating it if needed.
// Idempotent per tab: concurrent calls for the same tab serialize on a
// per-tab lock and the loser reuses the winner's topic. On creation
// failure the tab stays unmapped and the next call retries.
func (r *Registry) ResolveTopic(ctx context.Context, tabID, title string) (int64, error) {
	r.mu.Lock()
	r.tabTitle[tabID] = title
	if id, ok := r.tabTopic[tabID]; ok {
		r.mu.Unlock()
		return id, nil
	}
	lock, ok := r.creating[tabID]
	if !ok {
		lock = &sync.Mutex{}
		r.creating[tabID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Re-check: another caller may have created it while we waited.
	r.mu.Lock()
	if id, ok := r.tabTopic[tabID]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	id, err := r.client.CreateForumTopic(ctx, r.chatID, model.TopicTitle(title, tabID))
	if err != nil {
		return 0, fmt.Errorf("create topic for tab %s: %w", tabID, err)
	}
	r.metrics.RecordTopicOp(ctx, "create")

	r.mu.Lock()
	r.tabTopic[tabID] = id
	r.topicTab[id] = tabID
	r.mu.Unlock()
	return id, nil
}

// Refresh deletes the topic backing a thread and creates a replacement
// bound to the same tab, clearing all prior messages. Pane and harness
// associations for the tab are untouched. On failure the registry is left
// consistent: delete failure keeps the old mapping, create failure leaves
// the tab unmapped until the next resolution.
func (r *Registry) Refresh(ctx context.Context, threadID int64) (int64, error) {
	r.mu.Lock()
	tabID, ok := r.topicTab[threadID]
	if !ok {
		r.mu.Unlock()
		return 0, fmt.Errorf("no tab tracked for thread %d", threadID)
	}
	title := r.tabTitle[tabID]
	r.mu.Unlock()

	if err := r.client.DeleteForumTopic(ctx, r.chatID, threadID); err != nil {
		return 0, fmt.Errorf("delete topic %d: %w", threadID, err)
	}
	r.metrics.RecordTopicOp(ctx, "delete")

	r.mu.Lock()
	delete(r.tabTopic, tabID)
	delete(r.topicTab, threadID)
	r.mu.Unlock()

	return r.ResolveTopic(ctx, tabID, title)
}

// Sync reconciles the pane bookkeeping with a discovery scan. Panes no
// longer present are dropped; tabs with no remaining panes get their topic
// closed (best-effort) and unmapped. Returns the stream keys of removed
// harness panes so the caller can forget their cursors.
func (r *Registry) Sync(ctx context.Context, scanned []model.Pane) []string {
	activePanes := make(map[string]bool, len(scanned))
	activeTabs := make(map[string]bool, len(scanned))
	for _, p := range scanned {
		activePanes[p.ID] = true
		activeTabs[p.TabID] = true
	}

	r.mu.Lock()
	for _, p := range scanned {
		r.panes[p.ID] = p
	}

	var removed []string
	for id, p := range r.panes {
		if activePanes[id] {
			continue
		}
		if p.Harness != "" {
			removed = append(removed, id+"/"+p.Harness)
		}
		delete(r.panes, id)
		delete(r.active, id)
	}

	var staleTopics []int64
	for tabID, topicID := range r.tabTopic {
		if activeTabs[tabID] {
			continue
		}
		staleTopics = append(staleTopics, topicID)
		delete(r.tabTopic, tabID)
		delete(r.topicTab, topicID)
		delete(r.tabTitle, tabID)
		delete(r.collab, tabID)
	}
	r.mu.Unlock()

	// Closing is best-effort: the tab is already gone, a failed close
	// just leaves a dead topic open.
	for _, topicID := range staleTopics {
		if err := r.client.CloseForumTopic(ctx, r.chatID, topicID); err == nil {
			r.metrics.RecordTopicOp(ctx, "close")
		}
	}

	sort.Strings(removed)
	return removed
}

// Tracked returns the tracked panes ordered by tab, then harness kind,
// then pane id. Deterministic for the /list command.
func (r *Registry) Tracked() []model.Pane {
	r.mu.Lock()
	defer r.mu.Unlock()
	panes := make([]model.Pane, 0, len(r.panes))
	for _, p := range r.panes {
		panes = append(panes, p)
	}
	sort.Slice(panes, func(i, j int) bool {
		if panes[i].TabID != panes[j].TabID {
			return panes[i].TabID < panes[j].TabID
		}
		if panes[i].Harness != panes[j].Harness {
			return panes[i].Harness < panes[j].Harness
		}
		return panes[i].ID < panes[j].ID
	})
	return panes
}

// Pane returns a tracked pane by id.
func (r *Registry) Pane(paneID string) (model.Pane, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.panes[paneID]
	return p, ok
}

// PanesForTab returns the tracked panes of one tab, harness panes first
// in kind order.
func (r *Registry) PanesForTab(tabID string) []model.Pane {
	var panes []model.Pane
	for _, p := range r.Tracked() {
		if p.TabID == tabID {
			panes = append(panes, p)
		}
	}
	return panes
}

// TopicForTab returns the topic mapped to a tab.
func (r *Registry) TopicForTab(tabID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.tabTopic[tabID]
	return id, ok
}

// TabForTopic returns the tab mapped to a topic.
func (r *Registry) TabForTopic(threadID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab, ok := r.topicTab[threadID]
	return tab, ok
}

// MarkActive records output activity for a pane, used as the recency
// tie-break when routing inbound text to a tab with several harnesses.
func (r *Registry) MarkActive(paneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[paneID] = time.Now()
}

// LastActive returns when a pane last produced output.
func (r *Registry) LastActive(paneID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[paneID]
}

// SetCollab replaces a tab's collaboration state.
func (r *Registry) SetCollab(tabID string, state CollabState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.Active() {
		r.collab[tabID] = state
	} else {
		delete(r.collab, tabID)
	}
}

// Collab returns a tab's collaboration state.
func (r *Registry) Collab(tabID string) CollabState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collab[tabID]
}

// ConsumeCollabRound spends one forwarding round for a tab and reports
// whether the mode just reverted to off.
func (r *Registry) ConsumeCollabRound(tabID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, done := r.collab[tabID].Consume()
	if next.Active() {
		r.collab[tabID] = next
	} else {
		delete(r.collab, tabID)
	}
	return done
}

// RecordMessagePane remembers which pane produced a posted message, for
// reply routing. The map is bounded; the oldest entry ages out.
func (r *Registry) RecordMessagePane(messageID int, paneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgPane[messageID]; !ok {
		r.msgOrder = append(r.msgOrder, messageID)
		if len(r.msgOrder) > msgPaneCap {
			delete(r.msgPane, r.msgOrder[0])
			r.msgOrder = r.msgOrder[1:]
		}
	}
	r.msgPane[messageID] = paneID
}

// PaneForMessage resolves a posted message id back to its source pane.
func (r *Registry) PaneForMessage(messageID int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paneID, ok := r.msgPane[messageID]
	return paneID, ok
}
