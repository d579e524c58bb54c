package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timvw/panetone/internal/harness"
	"github.com/timvw/panetone/internal/model"
	"github.com/timvw/panetone/internal/telegram"
)

type fakeMux struct {
	panes []model.Pane
	inj   *fakeInjector
}

func (f *fakeMux) Name() string { return "fake" }

func (f *fakeMux) ListPanes(ctx context.Context) ([]model.Pane, error) {
	return f.panes, nil
}

func (f *fakeMux) SendText(ctx context.Context, paneID, text string) error {
	return f.inj.SendText(ctx, paneID, text)
}

// fakeKindHarness claims a session file per working directory.
type fakeKindHarness struct {
	kind     harness.Kind
	sessions map[string]string // cwd -> session path
}

func (f *fakeKindHarness) Kind() harness.Kind { return f.kind }

func (f *fakeKindHarness) FindSession(cwd string) string { return f.sessions[cwd] }

func (f *fakeKindHarness) ParseRecord(line []byte) (harness.Entry, bool) {
	return harness.Entry{}, false
}

func writeSession(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverClassifiesPanes(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	fresh := writeSession(t, dir, "fresh.jsonl", now)
	stale := writeSession(t, dir, "stale.jsonl", now.Add(-time.Hour))
	codexSess := writeSession(t, dir, "codex.jsonl", now)

	claude := &fakeKindHarness{kind: harness.KindClaude, sessions: map[string]string{
		"/work/alpha": fresh,
		"/work/beta":  stale,
	}}
	codex := &fakeKindHarness{kind: harness.KindCodex, sessions: map[string]string{
		"/work/beta": codexSess,
	}}

	m := &fakeMux{panes: []model.Pane{
		{ID: "1", TabID: "t1", Title: "node", CWD: "/work/alpha"},
		{ID: "2", TabID: "t1", Title: "node", CWD: "/work/beta"},
		{ID: "3", TabID: "t1", Title: "zsh", CWD: "/tmp"},
		{ID: "4", TabID: "t1", Title: "psql", CWD: "/tmp"},
	}}

	b := New(-100, time.Second, m, harness.NewSet(claude, codex), nil, nil, nil, nil, nil, nil)
	got, err := b.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	byID := map[string]model.Pane{}
	for _, p := range got {
		byID[p.ID] = p
	}
	if len(got) != 3 {
		t.Fatalf("got %d panes, want 3: %v", len(got), got)
	}
	// Claude claims the pane with the freshest session.
	if byID["1"].Harness != "claude" {
		t.Errorf("pane 1 harness = %q, want claude", byID["1"].Harness)
	}
	// The other candidate is free for codex to claim.
	if byID["2"].Harness != "codex" {
		t.Errorf("pane 2 harness = %q, want codex", byID["2"].Harness)
	}
	if _, ok := byID["3"]; ok {
		t.Error("shell pane must be dropped")
	}
	// Non-shell, session-less pane stays tracked as input-only.
	if p, ok := byID["4"]; !ok || p.Harness != "" {
		t.Errorf("pane 4 = %+v, want tracked harness-less", p)
	}
}

func TestDiscoverOneClaimPerKindPerTab(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	newer := writeSession(t, dir, "newer.jsonl", now)
	older := writeSession(t, dir, "older.jsonl", now.Add(-time.Minute))

	claude := &fakeKindHarness{kind: harness.KindClaude, sessions: map[string]string{
		"/work/a": older,
		"/work/b": newer,
	}}
	m := &fakeMux{panes: []model.Pane{
		{ID: "1", TabID: "t1", Title: "node", CWD: "/work/a"},
		{ID: "2", TabID: "t1", Title: "node", CWD: "/work/b"},
	}}

	b := New(-100, time.Second, m, harness.NewSet(claude), nil, nil, nil, nil, nil, nil)
	got, err := b.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	claimed := 0
	for _, p := range got {
		if p.Harness == "claude" {
			claimed++
			if p.ID != "2" {
				t.Errorf("claude claimed pane %s, want 2 (freshest session)", p.ID)
			}
		}
	}
	if claimed != 1 {
		t.Fatalf("claude claimed %d panes, want 1", claimed)
	}
}

func TestDrainBacklogConsumesEveryPage(t *testing.T) {
	api := &fakeAPI{}
	for i := int64(1); i <= 150; i++ {
		api.pending = append(api.pending, telegram.Update{UpdateID: i})
	}
	b := New(-100, time.Second, nil, nil, nil, nil, nil, nil, api, nil)

	offset := b.drainBacklog(context.Background())
	if offset != 151 {
		t.Fatalf("drain offset = %d, want 151 (past the whole backlog)", offset)
	}
	// No backlog update may surface as live traffic afterwards.
	live, err := api.GetUpdates(context.Background(), offset, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Fatalf("%d backlog updates left for the live loop, first id %d", len(live), live[0].UpdateID)
	}
}

func TestForwardConsumesRoundsAndNotifies(t *testing.T) {
	api := &fakeAPI{}
	reg := NewRegistry(api, -100, nil)
	ctx := context.Background()
	topicID, err := reg.ResolveTopic(ctx, "t1", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	from := model.Pane{ID: "1", TabID: "t1", Harness: "claude"}
	peer := model.Pane{ID: "2", TabID: "t1", Harness: "codex"}
	reg.Sync(ctx, []model.Pane{from, peer})
	reg.SetCollab("t1", CollabState{Mode: CollabCounting, Rounds: 2})

	inj := &fakeInjector{}
	router := NewRouter(reg, inj, api, -100, 0, nil)
	b := New(-100, time.Second, nil, nil, nil, reg, nil, router, api, nil)

	b.forward(ctx, from, "first")
	waitFor(t, func() bool { return inj.count() == 1 })
	if got := inj.last(); got.PaneID != "2" || got.Text != "first" {
		t.Fatalf("forwarded %+v, want pane 2", got)
	}
	if !reg.Collab("t1").Active() {
		t.Fatal("one round left, collab must still be on")
	}

	b.forward(ctx, from, "second")
	waitFor(t, func() bool { return inj.count() == 2 })
	if reg.Collab("t1").Active() {
		t.Fatal("rounds exhausted, collab must be off")
	}
	waitFor(t, func() bool { return api.sentCount() == 1 })
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.sent[0].ThreadID != topicID || api.sent[0].Text != "collab done" {
		t.Errorf("notice = %+v, want collab done in topic %d", api.sent[0], topicID)
	}
}
