package tail

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/timvw/panetone/internal/harness"
	"github.com/timvw/panetone/internal/model"
)

// Tailer polls session logs and converts newly appended records into
// outbound messages. Safe for concurrent use across streams; polls for the
// same stream must not overlap (the bridge polls each stream from one
// goroutine).
type Tailer struct {
	cursors *CursorStore

	// ReplayStart consumes a session file from offset zero the first time
	// it is seen. The default seeks to the end, so only records appended
	// after the bridge starts are posted.
	ReplayStart bool

	mu  sync.Mutex
	seq map[string]uint64
}

// NewTailer creates a tailer over the given cursor store.
func NewTailer(cursors *CursorStore) *Tailer {
	return &Tailer{
		cursors: cursors,
		seq:     make(map[string]uint64),
	}
}

// Poll reads the pane's session log from the stored cursor and returns the
// complete, renderable records appended since the last poll, in file
// order. A trailing partial line is left unconsumed for the next poll.
// Malformed or non-renderable records are consumed and skipped without
// blocking later records.
func (t *Tailer) Poll(pane model.Pane, h harness.Harness) ([]model.Outbound, error) {
	session := h.FindSession(pane.CWD)
	if session == "" {
		return nil, nil
	}
	stream := pane.ID + "/" + string(h.Kind())

	info, err := os.Stat(session)
	if err != nil {
		return nil, fmt.Errorf("stat session %s: %w", session, err)
	}
	size := info.Size()

	cur, ok := t.cursors.Get(stream)
	if !ok {
		// First sight of this stream's session file.
		offset := size
		if t.ReplayStart {
			offset = 0
		}
		t.cursors.Rebase(stream, session, offset)
		cur = Cursor{Path: session, Offset: offset}
	} else if cur.Path != session {
		// The active session rotated. A new session never replays; jump
		// to its current end and pick up appends from the next poll.
		t.cursors.Rebase(stream, session, size)
		return nil, nil
	}

	if size <= cur.Offset {
		return nil, nil
	}

	f, err := os.Open(session)
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", session, err)
	}
	defer f.Close()

	if _, err := f.Seek(cur.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek session %s: %w", session, err)
	}
	data := make([]byte, size-cur.Offset)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, fmt.Errorf("read session %s: %w", session, err)
	}

	// Only complete lines are consumed; a partial trailing line stays
	// behind the cursor until the writer finishes it.
	consumed := int64(bytes.LastIndexByte(data, '\n') + 1)
	if consumed == 0 {
		return nil, nil
	}

	var messages []model.Outbound
	for _, line := range bytes.Split(data[:consumed], []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		entry, ok := h.ParseRecord(line)
		if !ok {
			continue
		}
		messages = append(messages, model.Outbound{
			PaneID:  pane.ID,
			TabID:   pane.TabID,
			Harness: string(h.Kind()),
			Seq:     t.nextSeq(stream),
			Text:    entry.Text,
		})
	}

	t.cursors.Advance(stream, session, cur.Offset+consumed)
	return messages, nil
}

// Forget drops all state for a stream (pane closed).
func (t *Tailer) Forget(stream string) {
	t.cursors.Forget(stream)
	t.mu.Lock()
	delete(t.seq, stream)
	t.mu.Unlock()
}

func (t *Tailer) nextSeq(stream string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq[stream]++
	return t.seq[stream]
}
