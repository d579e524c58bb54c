// Package telegram is a minimal Telegram Bot API client covering the
// methods the bridge needs: forum topic lifecycle, posting into topics,
// and the getUpdates long poll.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// longPollSlack is added to the per-request deadline on top of the
// getUpdates timeout so the server can answer an empty poll in time.
const longPollSlack = 10 * time.Second

// RateLimitError reports a 429 from the Bot API with the server-indicated
// wait. Callers retry the same call after RetryAfter; they never drop it.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Client calls the Bot API under one bot credential.
type Client struct {
	// BaseURL overrides the API host (tests).
	BaseURL string
	// HTTP is the underlying client. Shared across Clients so all bots
	// reuse one connection pool.
	HTTP *http.Client

	token string
}

// NewClient creates a client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{},
		token:   token,
	}
}

// call posts one Bot API method and decodes the response envelope.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !result.OK {
		if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
			return nil, &RateLimitError{RetryAfter: time.Duration(result.Parameters.RetryAfter) * time.Second}
		}
		return nil, fmt.Errorf("%s: telegram error: %s", method, result.Description)
	}
	return &result, nil
}

// SendMessage posts text into a topic and returns the new message id.
// threadID 0 posts outside any topic.
func (c *Client) SendMessage(ctx context.Context, chatID, threadID int64, text string) (int, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"text":    {text},
	}
	if threadID > 0 {
		params.Set("message_thread_id", strconv.FormatInt(threadID, 10))
	}

	result, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, err
	}
	var msg Message
	if err := json.Unmarshal(result.Result, &msg); err != nil {
		return 0, fmt.Errorf("sendMessage: decode result: %w", err)
	}
	return msg.MessageID, nil
}

// CreateForumTopic creates a topic in the group and returns its thread id.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"name":    {name},
	}
	result, err := c.call(ctx, "createForumTopic", params)
	if err != nil {
		return 0, err
	}
	var topic ForumTopic
	if err := json.Unmarshal(result.Result, &topic); err != nil {
		return 0, fmt.Errorf("createForumTopic: decode result: %w", err)
	}
	return topic.MessageThreadID, nil
}

// DeleteForumTopic deletes a topic along with all its messages.
func (c *Client) DeleteForumTopic(ctx context.Context, chatID, threadID int64) error {
	params := url.Values{
		"chat_id":           {strconv.FormatInt(chatID, 10)},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
	}
	_, err := c.call(ctx, "deleteForumTopic", params)
	return err
}

// CloseForumTopic closes a topic without deleting its history.
func (c *Client) CloseForumTopic(ctx context.Context, chatID, threadID int64) error {
	params := url.Values{
		"chat_id":           {strconv.FormatInt(chatID, 10)},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
	}
	_, err := c.call(ctx, "closeForumTopic", params)
	return err
}

// GetUpdates long-polls for updates with ids >= offset. timeoutSeconds is
// the server-side hold; the request deadline is extended accordingly.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second+longPollSlack)
	defer cancel()

	params := url.Values{
		"offset":          {strconv.FormatInt(offset, 10)},
		"timeout":         {strconv.Itoa(timeoutSeconds)},
		"allowed_updates": {`["message"]`},
	}
	result, err := c.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(result.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}

// GetMe returns the bot's own username. Used by the check command to
// verify a token.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	result, err := c.call(ctx, "getMe", url.Values{})
	if err != nil {
		return User{}, err
	}
	var me User
	if err := json.Unmarshal(result.Result, &me); err != nil {
		return User{}, fmt.Errorf("getMe: decode result: %w", err)
	}
	return me, nil
}
