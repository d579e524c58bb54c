package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/timvw/panetone/internal/model"
	telem "github.com/timvw/panetone/internal/otel"
	"github.com/timvw/panetone/internal/telegram"
)

// PostClient is the posting subset of the platform API.
type PostClient interface {
	SendMessage(ctx context.Context, chatID, threadID int64, text string) (int, error)
}

// maxSendAttempts caps retries for non-rate-limit send failures. Rate
// limits are waited out and retried without limit; the server tells us
// how long to wait.
const maxSendAttempts = 5

// streamBuffer is the per-stream queue depth. A full queue blocks the
// producing poll, which is the intended backpressure.
const streamBuffer = 64

// Poster posts outbound messages to topics under the bot identity of the
// producing harness. Posting within one (pane, harness) stream is strictly
// sequential; streams are independent and post in parallel.
type Poster struct {
	chatID   int64
	bots     map[string]PostClient // harness kind -> bot
	registry *Registry
	metrics  *telem.Metrics

	mu      sync.Mutex
	ctx     context.Context
	streams map[string]chan model.Outbound
	wg      sync.WaitGroup
}

// NewPoster creates a poster. bots maps each harness kind to the client
// for that harness's bot credential.
func NewPoster(chatID int64, bots map[string]PostClient, registry *Registry, metrics *telem.Metrics) *Poster {
	return &Poster{
		chatID:   chatID,
		bots:     bots,
		registry: registry,
		metrics:  metrics,
		streams:  make(map[string]chan model.Outbound),
	}
}

// Start binds the poster to its lifetime context. Must be called before
// Post.
func (p *Poster) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
}

// Wait blocks until all stream workers have drained after the context is
// cancelled.
func (p *Poster) Wait() {
	p.wg.Wait()
}

// Post enqueues a message on its stream's queue. Messages for one stream
// must be handed over in sequence order; the FIFO queue and the single
// worker per stream preserve that order through to the platform.
func (p *Poster) Post(msg model.Outbound) {
	p.mu.Lock()
	ctx := p.ctx
	ch, ok := p.streams[msg.Stream()]
	if !ok {
		ch = make(chan model.Outbound, streamBuffer)
		p.streams[msg.Stream()] = ch
		p.wg.Add(1)
		go p.worker(ctx, ch)
	}
	p.mu.Unlock()

	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// worker drains one stream sequentially.
func (p *Poster) worker(ctx context.Context, ch chan model.Outbound) {
	defer p.wg.Done()
	for {
		select {
		case msg := <-ch:
			p.post(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// post sends one message, chunked, under the harness's bot identity.
func (p *Poster) post(ctx context.Context, msg model.Outbound) {
	bot, ok := p.bots[msg.Harness]
	if !ok {
		fmt.Fprintf(os.Stderr, "warning: no bot for harness %q, dropping message\n", msg.Harness)
		return
	}
	topicID, ok := p.registry.TopicForTab(msg.TabID)
	if !ok {
		// The cursor already advanced, so this record is lost. Can only
		// happen when the tab's topic vanished between the poll and this
		// send; tick does not poll panes of unresolved tabs.
		fmt.Fprintf(os.Stderr, "warning: no topic for tab %s, dropping message from pane %s\n", msg.TabID, msg.PaneID)
		return
	}

	chunks := telegram.SplitMessage(msg.Text, telegram.MessageLimit)
	for _, chunk := range chunks {
		if err := p.sendChunk(ctx, bot, topicID, msg.PaneID, chunk); err != nil {
			fmt.Fprintf(os.Stderr, "warning: post to topic %d [%s/%s]: %v\n", topicID, msg.Harness, msg.PaneID, err)
			return
		}
	}
	p.metrics.RecordPost(ctx, msg.Harness, int64(len(chunks)))
}

// sendChunk sends one chunk, waiting out rate limits and retrying
// transient failures with backoff.
func (p *Poster) sendChunk(ctx context.Context, bot PostClient, topicID int64, paneID, chunk string) error {
	attempt := 0
	for {
		id, err := bot.SendMessage(ctx, p.chatID, topicID, chunk)
		if err == nil {
			p.registry.RecordMessagePane(id, paneID)
			return nil
		}

		var rle *telegram.RateLimitError
		if errors.As(err, &rle) {
			// The platform told us when to come back. Not counted as
			// an attempt; the chunk is never dropped or reordered.
			p.metrics.RecordRateLimitRetry(ctx)
			if !sleepCtx(ctx, rle.RetryAfter) {
				return ctx.Err()
			}
			continue
		}

		attempt++
		if attempt >= maxSendAttempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		if !sleepCtx(ctx, time.Duration(attempt)*500*time.Millisecond) {
			return ctx.Err()
		}
	}
}

// sleepCtx sleeps unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
