package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/timvw/panetone/internal/model"
	"github.com/timvw/panetone/internal/telegram"
)

type sentMsg struct {
	ThreadID int64
	Text     string
}

// fakeAPI implements the full bot surface for tests.
type fakeAPI struct {
	mu        sync.Mutex
	nextTopic int64
	nextMsg   int
	created   []string
	deleted   []int64
	closed    []int64
	sent      []sentMsg

	createErr error
	sendErrs  []error // consumed one per SendMessage call

	// pending feeds GetUpdates, paged at 100 per call like the real API.
	pending []telegram.Update
}

func (f *fakeAPI) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	// Simulate network latency so concurrent resolution actually races.
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextTopic++
	f.created = append(f.created, name)
	return f.nextTopic, nil
}

func (f *fakeAPI) DeleteForumTopic(ctx context.Context, chatID, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, threadID)
	return nil
}

func (f *fakeAPI) CloseForumTopic(ctx context.Context, chatID, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, threadID)
	return nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID, threadID int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.nextMsg++
	f.sent = append(f.sent, sentMsg{ThreadID: threadID, Text: text})
	return f.nextMsg, nil
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page []telegram.Update
	for _, u := range f.pending {
		if u.UpdateID < offset {
			continue
		}
		page = append(page, u)
		if len(page) == 100 {
			break
		}
	}
	return page, nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestResolveTopicConcurrentCreatesOne(t *testing.T) {
	api := &fakeAPI{}
	reg := NewRegistry(api, -100, nil)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.ResolveTopic(context.Background(), "1", "my-project")
			if err != nil {
				t.Errorf("ResolveTopic: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if len(api.created) != 1 {
		t.Fatalf("expected 1 topic created, got %d", len(api.created))
	}
	for i, id := range ids {
		if id != ids[0] {
			t.Errorf("caller %d got topic %d, want %d", i, id, ids[0])
		}
	}
}

func TestResolveTopicFailureLeavesTabUnmapped(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("boom")}
	reg := NewRegistry(api, -100, nil)

	if _, err := reg.ResolveTopic(context.Background(), "1", "t"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := reg.TopicForTab("1"); ok {
		t.Fatal("failed creation must not leave a mapping")
	}

	api.mu.Lock()
	api.createErr = nil
	api.mu.Unlock()
	id, err := reg.ResolveTopic(context.Background(), "1", "t")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got, ok := reg.TopicForTab("1"); !ok || got != id {
		t.Fatalf("TopicForTab = %d, %v; want %d, true", got, ok, id)
	}
}

func TestRefreshKeepsPaneAssociations(t *testing.T) {
	api := &fakeAPI{}
	reg := NewRegistry(api, -100, nil)
	ctx := context.Background()

	oldID, err := reg.ResolveTopic(ctx, "1", "my-project")
	if err != nil {
		t.Fatal(err)
	}
	reg.Sync(ctx, []model.Pane{{ID: "4", TabID: "1", Harness: "claude"}})

	newID, err := reg.Refresh(ctx, oldID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if newID == oldID {
		t.Fatalf("refresh returned the old topic id %d", oldID)
	}
	if len(api.deleted) != 1 || api.deleted[0] != oldID {
		t.Errorf("deleted = %v, want [%d]", api.deleted, oldID)
	}
	if tab, ok := reg.TabForTopic(newID); !ok || tab != "1" {
		t.Errorf("TabForTopic(new) = %q, %v", tab, ok)
	}
	if _, ok := reg.TabForTopic(oldID); ok {
		t.Error("old topic still mapped")
	}
	if panes := reg.PanesForTab("1"); len(panes) != 1 || panes[0].ID != "4" {
		t.Errorf("pane associations lost across refresh: %v", panes)
	}
}

func TestSyncRemovesGonePanesAndClosesTopics(t *testing.T) {
	api := &fakeAPI{}
	reg := NewRegistry(api, -100, nil)
	ctx := context.Background()

	id1, _ := reg.ResolveTopic(ctx, "1", "alpha")
	id2, _ := reg.ResolveTopic(ctx, "2", "beta")
	reg.Sync(ctx, []model.Pane{
		{ID: "4", TabID: "1", Harness: "claude"},
		{ID: "7", TabID: "2", Harness: "codex"},
	})
	reg.SetCollab("2", CollabState{Mode: CollabIndefinite})

	removed := reg.Sync(ctx, []model.Pane{{ID: "4", TabID: "1", Harness: "claude"}})
	if len(removed) != 1 || removed[0] != "7/codex" {
		t.Fatalf("removed = %v, want [7/codex]", removed)
	}
	if len(api.closed) != 1 || api.closed[0] != id2 {
		t.Errorf("closed = %v, want [%d]", api.closed, id2)
	}
	if _, ok := reg.TopicForTab("2"); ok {
		t.Error("gone tab still mapped to a topic")
	}
	if reg.Collab("2").Active() {
		t.Error("collab state survived tab removal")
	}
	if _, ok := reg.TopicForTab("1"); !ok {
		t.Errorf("surviving tab lost its topic %d", id1)
	}
}

func TestTrackedOrdering(t *testing.T) {
	reg := NewRegistry(&fakeAPI{}, -100, nil)
	reg.Sync(context.Background(), []model.Pane{
		{ID: "9", TabID: "2", Harness: "claude"},
		{ID: "7", TabID: "1", Harness: "codex"},
		{ID: "4", TabID: "1", Harness: "claude"},
	})

	got := reg.Tracked()
	want := []string{"4", "7", "9"}
	if len(got) != len(want) {
		t.Fatalf("Tracked len = %d, want %d", len(got), len(want))
	}
	for i, p := range got {
		if p.ID != want[i] {
			t.Errorf("Tracked[%d] = %s, want %s", i, p.ID, want[i])
		}
	}
}

func TestMessagePaneMapIsBounded(t *testing.T) {
	reg := NewRegistry(&fakeAPI{}, -100, nil)
	for i := 1; i <= msgPaneCap+10; i++ {
		reg.RecordMessagePane(i, fmt.Sprintf("pane-%d", i))
	}
	if _, ok := reg.PaneForMessage(1); ok {
		t.Error("oldest entry should have aged out")
	}
	if pane, ok := reg.PaneForMessage(msgPaneCap + 10); !ok || pane != fmt.Sprintf("pane-%d", msgPaneCap+10) {
		t.Errorf("newest entry missing: %q, %v", pane, ok)
	}
}
