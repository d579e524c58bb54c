package harness

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// codexCacheTTL bounds how often the sessions directory is rescanned.
// Codex creates session files rarely; rescanning every poll would stat the
// whole day directory per pane.
const codexCacheTTL = 30 * time.Second

// Codex recognizes Codex session logs.
//
// Codex writes rollout-*.jsonl files under ~/.codex/sessions/YYYY/MM/DD/.
// The file name does not encode the working directory; it is read from the
// session meta record on the first line. Discovery scans today's and
// yesterday's directories (UTC) and caches path->cwd for a short TTL.
type Codex struct {
	// SessionsDir is the root of the dated session directories.
	SessionsDir string

	// now is the clock, replaceable in tests.
	now func() time.Time

	mu        sync.Mutex
	cache     map[string]string // session path -> cwd
	cacheTime time.Time
}

// NewCodex creates a codex harness rooted at sessionsDir.
func NewCodex(sessionsDir string) *Codex {
	return &Codex{
		SessionsDir: sessionsDir,
		now:         time.Now,
		cache:       make(map[string]string),
	}
}

func (c *Codex) Kind() Kind { return KindCodex }

// FindSession returns the newest rollout file whose session meta cwd
// matches, or "".
func (c *Codex) FindSession(cwd string) string {
	c.mu.Lock()
	if c.now().Sub(c.cacheTime) > codexCacheTTL {
		c.cache = c.scanSessions()
		c.cacheTime = c.now()
	}
	var candidates []string
	for path, sessionCWD := range c.cache {
		if sessionCWD == cwd {
			candidates = append(candidates, path)
		}
	}
	c.mu.Unlock()

	return newestFile(candidates)
}

// scanSessions walks today's and yesterday's directories and reads the cwd
// out of each rollout file's meta line.
func (c *Codex) scanSessions() map[string]string {
	found := make(map[string]string)
	now := c.now().UTC()
	for daysAgo := 0; daysAgo < 2; daysAgo++ {
		day := now.AddDate(0, 0, -daysAgo)
		dir := filepath.Join(c.SessionsDir,
			fmt.Sprintf("%04d", day.Year()),
			fmt.Sprintf("%02d", day.Month()),
			fmt.Sprintf("%02d", day.Day()))
		files, err := filepath.Glob(filepath.Join(dir, "rollout-*.jsonl"))
		if err != nil {
			continue
		}
		for _, path := range files {
			if _, ok := found[path]; ok {
				continue
			}
			if cwd := readSessionCWD(path); cwd != "" {
				found[path] = cwd
			}
		}
	}
	return found
}

// readSessionCWD reads the cwd from the first-line session meta record.
func readSessionCWD(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return ""
	}
	var meta struct {
		Payload struct {
			CWD string `json:"cwd"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil {
		return ""
	}
	return meta.Payload.CWD
}

// codexRecord is the subset of a Codex rollout record we consume.
type codexRecord struct {
	Type    string `json:"type"`
	Payload struct {
		Type      string       `json:"type"`
		Role      string       `json:"role"`
		Name      string       `json:"name"`
		Arguments string       `json:"arguments"`
		Content   []codexBlock `json:"content"`
	} `json:"payload"`
}

type codexBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseRecord renders response_item records: assistant messages as their
// output_text blocks, tool calls as short bracket tags. Everything else
// (event_msg, turn_context, session meta) is filtered.
func (c *Codex) ParseRecord(line []byte) (Entry, bool) {
	var rec codexRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Entry{}, false
	}
	if rec.Type != "response_item" {
		return Entry{}, false
	}

	switch rec.Payload.Type {
	case "message":
		if rec.Payload.Role != "assistant" {
			return Entry{}, false
		}
		var parts []string
		for _, block := range rec.Payload.Content {
			if block.Type != "output_text" {
				continue
			}
			if t := strings.TrimSpace(block.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			return Entry{}, false
		}
		return Entry{Author: "assistant", Text: strings.Join(parts, "\n")}, true

	case "function_call":
		name := rec.Payload.Name
		if name == "" {
			name = "?"
		}
		if name == "exec_command" {
			var args struct {
				Cmd string `json:"cmd"`
			}
			if err := json.Unmarshal([]byte(rec.Payload.Arguments), &args); err == nil {
				return Entry{Author: "tool", Text: fmt.Sprintf("[$ %s]", truncate(args.Cmd, 80))}, true
			}
		}
		return Entry{Author: "tool", Text: fmt.Sprintf("[%s]", name)}, true

	case "custom_tool_call":
		name := rec.Payload.Name
		if name == "" {
			name = "?"
		}
		return Entry{Author: "tool", Text: fmt.Sprintf("[%s]", name)}, true
	}

	return Entry{}, false
}
