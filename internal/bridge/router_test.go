package bridge

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/timvw/panetone/internal/model"
)

type injected struct {
	PaneID string
	Text   string
}

type fakeInjector struct {
	mu    sync.Mutex
	calls []injected
}

func (f *fakeInjector) SendText(ctx context.Context, paneID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, injected{PaneID: paneID, Text: text})
	return nil
}

func (f *fakeInjector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeInjector) last() injected {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// routerFixture tracks one tab with a claude pane, a codex pane, and a
// harness-less pane, topic already resolved.
func routerFixture(t *testing.T, ownerID int64) (*Router, *Registry, *fakeAPI, *fakeInjector, int64) {
	t.Helper()
	api := &fakeAPI{}
	reg := NewRegistry(api, -100, nil)
	topicID, err := reg.ResolveTopic(context.Background(), "1", "my-project")
	if err != nil {
		t.Fatal(err)
	}
	reg.Sync(context.Background(), []model.Pane{
		{ID: "4", TabID: "1", TabTitle: "my-project", Title: "claude", Harness: "claude"},
		{ID: "7", TabID: "1", TabTitle: "my-project", Title: "codex", Harness: "codex"},
		{ID: "9", TabID: "1", TabTitle: "my-project", Title: "psql"},
	})
	inj := &fakeInjector{}
	return NewRouter(reg, inj, api, -100, ownerID, nil), reg, api, inj, topicID
}

func event(topicID int64, sender int64, text string) model.Inbound {
	return model.Inbound{Sender: sender, ThreadID: topicID, Text: text}
}

func TestRouterOwnerLock(t *testing.T) {
	r, _, api, inj, topicID := routerFixture(t, 42)

	r.Handle(context.Background(), event(topicID, 7, "hello"))
	if inj.count() != 0 {
		t.Error("non-owner text must not be injected")
	}
	if api.sentCount() != 0 {
		t.Error("non-owner text must not produce a reply")
	}

	r.Handle(context.Background(), event(topicID, 42, "hello"))
	if inj.count() != 1 {
		t.Fatal("owner text must be injected")
	}
}

func TestRouterRoutesByRecency(t *testing.T) {
	r, reg, _, inj, topicID := routerFixture(t, 0)
	reg.MarkActive("7")

	r.Handle(context.Background(), event(topicID, 1, "continue"))
	if inj.count() != 1 {
		t.Fatal("expected one injection")
	}
	if got := inj.last(); got.PaneID != "7" || got.Text != "continue" {
		t.Errorf("injected %+v, want pane 7", got)
	}
}

func TestRouterReplyRoutesToSourcePane(t *testing.T) {
	r, reg, _, inj, topicID := routerFixture(t, 0)
	reg.MarkActive("7") // recency points elsewhere
	reg.RecordMessagePane(100, "4")

	ev := event(topicID, 1, "looks wrong, retry")
	ev.ReplyTo = 100
	r.Handle(context.Background(), ev)

	if inj.count() != 1 {
		t.Fatal("expected one injection")
	}
	if got := inj.last(); got.PaneID != "4" {
		t.Errorf("injected into pane %s, want 4 (reply target)", got.PaneID)
	}
}

func TestRouterDropsUnknownThread(t *testing.T) {
	r, _, _, inj, _ := routerFixture(t, 0)

	r.Handle(context.Background(), event(99999, 1, "hello"))
	if inj.count() != 0 {
		t.Error("text for an untracked thread must be dropped")
	}
}

func TestRouterUnrecognizedSlashRoutesAsText(t *testing.T) {
	r, _, _, inj, topicID := routerFixture(t, 0)

	r.Handle(context.Background(), event(topicID, 1, "/compact keep the tests"))
	if inj.count() != 1 {
		t.Fatal("unrecognized slash token must route as input text")
	}
	if got := inj.last(); got.Text != "/compact keep the tests" {
		t.Errorf("injected %q, want the raw text", got.Text)
	}
}

func TestRouterListCommand(t *testing.T) {
	r, _, api, inj, topicID := routerFixture(t, 0)

	r.Handle(context.Background(), event(topicID, 1, "/list"))
	if inj.count() != 0 {
		t.Error("/list must not inject")
	}
	if api.sentCount() != 1 {
		t.Fatal("/list must reply")
	}
	reply := api.sent[0].Text
	for _, want := range []string{"claude", "codex", "my-project"} {
		if !strings.Contains(reply, want) {
			t.Errorf("listing missing %q:\n%s", want, reply)
		}
	}
}

func TestRouterCollabToggle(t *testing.T) {
	r, reg, api, _, topicID := routerFixture(t, 0)
	ctx := context.Background()

	r.Handle(ctx, event(topicID, 1, "/collab"))
	if got := reg.Collab("1"); got.Mode != CollabIndefinite {
		t.Fatalf("after /collab: %+v", got)
	}

	r.Handle(ctx, event(topicID, 1, "/collab"))
	if reg.Collab("1").Active() {
		t.Fatal("second /collab must toggle off")
	}

	r.Handle(ctx, event(topicID, 1, "/collab 3"))
	if got := reg.Collab("1"); got.Mode != CollabCounting || got.Rounds != 3 {
		t.Fatalf("after /collab 3: %+v", got)
	}

	if api.sentCount() != 3 {
		t.Errorf("expected a reply per command, got %d", api.sentCount())
	}
}

func TestRouterCollabRejectsBadArgument(t *testing.T) {
	r, reg, api, _, topicID := routerFixture(t, 0)
	ctx := context.Background()

	for _, arg := range []string{"x", "0", "-2"} {
		r.Handle(ctx, event(topicID, 1, "/collab "+arg))
		if reg.Collab("1").Active() {
			t.Errorf("/collab %s must not enable collab", arg)
		}
	}
	if api.sentCount() != 3 {
		t.Fatalf("expected 3 usage replies, got %d", api.sentCount())
	}
	if !strings.Contains(api.sent[0].Text, "usage") {
		t.Errorf("reply %q is not a usage error", api.sent[0].Text)
	}
}

func TestRouterCollabBroadcastsInput(t *testing.T) {
	r, reg, _, inj, topicID := routerFixture(t, 0)
	reg.SetCollab("1", CollabState{Mode: CollabIndefinite})

	r.Handle(context.Background(), event(topicID, 1, "both of you: stop"))
	if inj.count() != 2 {
		t.Fatalf("expected both harness panes injected, got %d", inj.count())
	}
	inj.mu.Lock()
	defer inj.mu.Unlock()
	got := map[string]bool{}
	for _, c := range inj.calls {
		got[c.PaneID] = true
	}
	if !got["4"] || !got["7"] || got["9"] {
		t.Errorf("injected panes %v, want exactly {4, 7}", got)
	}
}

func TestRouterRefreshCommand(t *testing.T) {
	r, reg, api, _, topicID := routerFixture(t, 0)

	r.Handle(context.Background(), event(topicID, 1, "/refresh"))

	newID, ok := reg.TopicForTab("1")
	if !ok || newID == topicID {
		t.Fatalf("refresh did not rebind the tab: %d, %v", newID, ok)
	}
	if api.sentCount() != 1 || api.sent[0].ThreadID != newID {
		t.Errorf("confirmation must land in the new topic, sent = %v", api.sent)
	}
}

func TestRouterStripsBotMention(t *testing.T) {
	cmd, _, ok := parseCommand("/list@panetone_bot")
	if !ok || cmd != "/list" {
		t.Fatalf("parseCommand = %q, %v", cmd, ok)
	}
}
