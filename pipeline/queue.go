package pipeline

import (
	"context"
	"log/slog"

	"github.com/onnwee/chat-moderator/backend/telemetry"
)

// DefaultQueueSize is the number of events buffered ahead of the consumer.
const DefaultQueueSize = 256

// Event is one stream event. Exactly one of Connect or Comment is set.
type Event struct {
	Connect *Connect
	Comment *Comment
}

// Queue serializes stream events into a single consumer so that comment k+1
// is not touched before comment k, including its chunk delivery, is done.
type Queue struct {
	p      *Pipeline
	events chan Event
	// handled is called after each comment; used by tests and metrics hooks.
	handled func(Result)
}

// NewQueue returns a queue feeding p. size <= 0 uses DefaultQueueSize.
func NewQueue(p *Pipeline, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{p: p, events: make(chan Event, size)}
}

// OnHandled registers fn to receive every comment Result, in order.
func (q *Queue) OnHandled(fn func(Result)) { q.handled = fn }

// Enqueue blocks until ev is buffered or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, ev Event) error {
	select {
	case q.events <- ev:
		telemetry.SetQueueDepth(len(q.events))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnqueueComment is a convenience wrapper around Enqueue.
func (q *Queue) EnqueueComment(ctx context.Context, c Comment) error {
	return q.Enqueue(ctx, Event{Comment: &c})
}

// EnqueueConnect is a convenience wrapper around Enqueue.
func (q *Queue) EnqueueConnect(ctx context.Context, c Connect) error {
	return q.Enqueue(ctx, Event{Connect: &c})
}

// Depth returns the number of buffered events.
func (q *Queue) Depth() int { return len(q.events) }

// Run consumes events until ctx is done and returns ctx.Err().
func (q *Queue) Run(ctx context.Context) error {
	slog.Info("pipeline consumer started", slog.Int("buffer", cap(q.events)))
	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline consumer stopped", slog.Int("pending", len(q.events)))
			return ctx.Err()
		case ev := <-q.events:
			telemetry.SetQueueDepth(len(q.events))
			switch {
			case ev.Connect != nil:
				q.p.HandleConnect(ctx, *ev.Connect)
			case ev.Comment != nil:
				res := q.p.Handle(ctx, *ev.Comment)
				if q.handled != nil {
					q.handled(res)
				}
			}
		}
	}
}
