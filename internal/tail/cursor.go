// Package tail incrementally consumes harness session logs.
//
// A cursor records how far into a session file a stream has been read.
// Cursors live for the process lifetime only; where the cursor starts when
// a file is first seen is a configuration choice (replay end vs start).
package tail

import (
	"sync"
)

// Cursor is the consumption position for one (pane, harness) stream.
type Cursor struct {
	// Path is the session file the offset refers to.
	Path string
	// Offset is the byte position past the last fully consumed record.
	Offset int64
}

// CursorStore tracks cursors keyed by stream. Within one path a cursor
// only moves forward; switching to a new session file resets it.
type CursorStore struct {
	mu      sync.Mutex
	cursors map[string]Cursor
}

// NewCursorStore creates an empty store.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]Cursor)}
}

// Get returns the cursor for a stream.
func (s *CursorStore) Get(stream string) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[stream]
	return cur, ok
}

// Advance moves the stream's cursor forward within the same path. Rewinds
// are ignored so a racing stale update can never cause a replay.
func (s *CursorStore) Advance(stream string, path string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[stream]
	if ok && cur.Path == path && offset < cur.Offset {
		return
	}
	s.cursors[stream] = Cursor{Path: path, Offset: offset}
}

// Rebase points the stream at a different session file, at the given
// offset. Used on first sight and when the active session file rotates.
func (s *CursorStore) Rebase(stream string, path string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[stream] = Cursor{Path: path, Offset: offset}
}

// Forget drops the stream's cursor (pane closed).
func (s *CursorStore) Forget(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, stream)
}
