package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "panetone"

// Metrics holds all OTEL metric instruments for panetone.
// All counters are cumulative (monotonic) and safe for concurrent use.
type Metrics struct {
	// Session tailing (partitioned by harness via attributes)
	RecordsParsed metric.Int64Counter

	// Posting
	MessagesPosted   metric.Int64Counter
	ChunksSent       metric.Int64Counter
	RateLimitRetries metric.Int64Counter

	// Collaboration
	ForwardsDelivered metric.Int64Counter

	// Topic lifecycle (partitioned by op: create, delete, close)
	TopicOps metric.Int64Counter

	// Inbound side (partitioned by outcome: injected, command, rejected, dropped)
	InboundEvents metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RecordsParsed, err = meter.Int64Counter("session.records_parsed",
		metric.WithDescription("Renderable session log records parsed, partitioned by harness"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, err
	}

	m.MessagesPosted, err = meter.Int64Counter("post.messages",
		metric.WithDescription("Messages posted to topics, partitioned by harness"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}

	m.ChunksSent, err = meter.Int64Counter("post.chunks",
		metric.WithDescription("Chunked sendMessage calls, partitioned by harness"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}

	m.RateLimitRetries, err = meter.Int64Counter("post.rate_limit_retries",
		metric.WithDescription("Posts retried after a platform rate limit"))
	if err != nil {
		return nil, err
	}

	m.ForwardsDelivered, err = meter.Int64Counter("collab.forwards",
		metric.WithDescription("Messages forwarded to a peer harness pane in collaboration mode"))
	if err != nil {
		return nil, err
	}

	m.TopicOps, err = meter.Int64Counter("topics.ops",
		metric.WithDescription("Topic lifecycle operations partitioned by op (create, delete, close)"))
	if err != nil {
		return nil, err
	}

	m.InboundEvents, err = meter.Int64Counter("inbound.events",
		metric.WithDescription("Inbound platform events partitioned by outcome (injected, command, rejected, dropped)"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordParsed records parsed session records for a harness.
func (m *Metrics) RecordParsed(ctx context.Context, harness string, n int64) {
	if m == nil {
		return
	}
	m.RecordsParsed.Add(ctx, n, metric.WithAttributes(
		attribute.String("harness", harness),
	))
}

// RecordPost records one posted message and its chunk count.
func (m *Metrics) RecordPost(ctx context.Context, harness string, chunks int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("harness", harness))
	m.MessagesPosted.Add(ctx, 1, attrs)
	m.ChunksSent.Add(ctx, chunks, attrs)
}

// RecordRateLimitRetry records one rate-limited post retry.
func (m *Metrics) RecordRateLimitRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.RateLimitRetries.Add(ctx, 1)
}

// RecordForward records one collaboration forward.
func (m *Metrics) RecordForward(ctx context.Context) {
	if m == nil {
		return
	}
	m.ForwardsDelivered.Add(ctx, 1)
}

// RecordTopicOp records a topic lifecycle operation.
func (m *Metrics) RecordTopicOp(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.TopicOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

// RecordInbound records an inbound event with its routing outcome.
func (m *Metrics) RecordInbound(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.InboundEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
