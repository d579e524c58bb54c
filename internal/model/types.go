package model

import (
	"fmt"
	"time"
)

// Pane represents a terminal multiplexer pane.
type Pane struct {
	// ID is the pane identifier as reported by the multiplexer
	// (e.g., wezterm pane_id "4", tmux pane id "%12").
	ID string `json:"id"`
	// TabID is the owning tab identifier. All panes with the same TabID
	// share one forum topic.
	TabID string `json:"tab_id"`
	// Title is the pane title (usually the foreground process).
	Title string `json:"title"`
	// TabTitle is the tab display title, used to name the forum topic.
	TabTitle string `json:"tab_title"`
	// CWD is the pane's working directory. file:// URLs are already
	// stripped to plain paths by the multiplexer layer.
	CWD string `json:"cwd"`
	// Harness is the detected harness kind ("claude", "codex"), or empty
	// when no session file matched the pane.
	Harness string `json:"harness,omitempty"`
}

// Outbound is one normalized text entry read from a harness session log,
// destined for the pane's forum topic.
type Outbound struct {
	// PaneID is the source pane.
	PaneID string `json:"pane_id"`
	// TabID is the source pane's tab, which resolves to the topic.
	TabID string `json:"tab_id"`
	// Harness selects the bot identity that posts this message.
	Harness string `json:"harness"`
	// Seq is a monotonic sequence number scoped to (pane, harness).
	// The poster never posts Seq n+1 before Seq n within one stream.
	Seq uint64 `json:"seq"`
	// Text is the renderable message body.
	Text string `json:"text"`
}

// Stream returns the ordering-domain key for this message. Messages that
// share a stream are posted strictly in Seq order; distinct streams are
// independent.
func (o Outbound) Stream() string {
	return o.PaneID + "/" + o.Harness
}

// Inbound is one platform-originated event (a user message in a topic).
type Inbound struct {
	// UpdateID is the platform's monotonically increasing update id,
	// used as the long-poll offset and for dedup.
	UpdateID int64 `json:"update_id"`
	// Sender is the platform user id of the author.
	Sender int64 `json:"sender"`
	// ThreadID is the forum topic the message was posted in.
	ThreadID int64 `json:"thread_id"`
	// ReplyTo is the message id this message replies to, or 0.
	ReplyTo int `json:"reply_to,omitempty"`
	// Text is the raw message text, including any leading command token.
	Text string `json:"text"`
	// Time is the message timestamp.
	Time time.Time `json:"time"`
}

// TopicTitle derives a forum topic title from a tab. Empty tab titles fall
// back to "tab-<id>"; the platform caps topic names at 128 characters.
func TopicTitle(tabTitle, tabID string) string {
	title := tabTitle
	if title == "" {
		title = fmt.Sprintf("tab-%s", tabID)
	}
	if len(title) > 128 {
		title = title[:128]
	}
	return title
}
