package audit

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives committed audit events for fan-out to external consumers
// (Kafka, test buffers). Delivery is at-least-once; consumers dedupe on
// Event.DedupKey.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher fans committed audit events out to a sink. The durable audit row
// is written by the consent store in the same transaction as the state change;
// the publisher only handles the downstream copy, so losing a fan-out event
// never loses the paper trail.
type Publisher struct {
	sink   Sink
	events chan Event
	wg     sync.WaitGroup
	logger *slog.Logger
	async  bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and published from a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

// processEvents runs in a goroutine and publishes events from the channel.
func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.sink.Publish(context.Background(), event); err != nil {
			if p.logger != nil {
				p.logger.Error("failed to publish audit event",
					"error", err,
					"action", event.Action,
					"request_id", event.RequestID.String(),
				)
			}
		}
	}
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit hands a committed event to the sink. In async mode the send is
// non-blocking; a full buffer drops the fan-out copy rather than stalling the
// request path, since the durable row already exists.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if p.sink == nil {
		return nil
	}
	if p.async {
		select {
		case p.events <- event:
			return nil
		default:
			if p.logger != nil {
				p.logger.Warn("audit buffer full, fan-out event dropped",
					"action", event.Action,
					"request_id", event.RequestID.String(),
				)
			}
			return nil
		}
	}
	return p.sink.Publish(ctx, event)
}
