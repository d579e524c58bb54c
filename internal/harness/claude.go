package harness

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Claude recognizes Claude Code session logs.
//
// Claude Code writes one JSONL file per session under
// ~/.claude/projects/<project>/, where <project> is the working directory
// with every "/" replaced by "-". Assistant records carry a content array
// of text and tool_use blocks.
type Claude struct {
	// ProjectsDir is the root of the per-project session directories.
	ProjectsDir string
}

// NewClaude creates a claude harness rooted at projectsDir.
func NewClaude(projectsDir string) *Claude {
	return &Claude{ProjectsDir: projectsDir}
}

func (c *Claude) Kind() Kind { return KindClaude }

// FindSession returns the newest .jsonl session file for the working
// directory, or "" when the project directory does not exist.
func (c *Claude) FindSession(cwd string) string {
	projDir := filepath.Join(c.ProjectsDir, strings.ReplaceAll(cwd, "/", "-"))
	files, err := filepath.Glob(filepath.Join(projDir, "*.jsonl"))
	if err != nil || len(files) == 0 {
		return ""
	}
	return newestFile(files)
}

// claudeRecord is the subset of a Claude Code session record we consume.
type claudeRecord struct {
	Type    string `json:"type"`
	Message struct {
		Content []claudeBlock `json:"content"`
	} `json:"message"`
}

type claudeBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ParseRecord renders assistant records: text blocks verbatim, tool_use
// blocks as short bracketed summaries. Everything else (user turns,
// progress records, summaries) is filtered.
func (c *Claude) ParseRecord(line []byte) (Entry, bool) {
	var rec claudeRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Entry{}, false
	}
	if rec.Type != "assistant" {
		return Entry{}, false
	}

	var parts []string
	for _, block := range rec.Message.Content {
		switch block.Type {
		case "text":
			if t := strings.TrimSpace(block.Text); t != "" {
				parts = append(parts, t)
			}
		case "tool_use":
			parts = append(parts, summarizeToolUse(block))
		}
	}
	if len(parts) == 0 {
		return Entry{}, false
	}
	return Entry{Author: "assistant", Text: strings.Join(parts, "\n")}, true
}

// summarizeToolUse renders a tool_use block as a one-line bracket tag.
func summarizeToolUse(block claudeBlock) string {
	var input struct {
		FilePath    string `json:"file_path"`
		Pattern     string `json:"pattern"`
		Path        string `json:"path"`
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(block.Input, &input)

	name := block.Name
	if name == "" {
		name = "?"
	}
	switch name {
	case "Read", "Glob", "Grep":
		target := input.FilePath
		if target == "" {
			target = input.Pattern
		}
		if target == "" {
			target = input.Path
		}
		return fmt.Sprintf("[%s: %s]", name, target)
	case "Edit", "Write":
		target := input.FilePath
		if target == "" {
			target = "?"
		}
		return fmt.Sprintf("[%s: %s]", name, target)
	case "Bash":
		return fmt.Sprintf("[$ %s]", truncate(input.Command, 80))
	case "Task":
		desc := input.Description
		if desc == "" {
			desc = "?"
		}
		return fmt.Sprintf("[Task: %s]", desc)
	default:
		return fmt.Sprintf("[%s]", name)
	}
}
