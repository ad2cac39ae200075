package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-moderator/backend/telemetry"
)

// DefaultPacing is the wait after each delivered chunk.
const DefaultPacing = 1500 * time.Millisecond

// Injector is the external output-injection facility. Calls are synchronous
// and must be issued in order.
type Injector interface {
	SetClipboard(ctx context.Context, text string) error
	PasteAndSubmit(ctx context.Context) error
}

// Dispatcher splits responses into numbered chunks and injects them one by
// one with a fixed pause between submissions.
type Dispatcher struct {
	Injector          Injector
	MaxFragmentLength int
	SuffixBudget      int
	Pacing            time.Duration
	// OwnerIdentity is never answered in the chat.
	OwnerIdentity string

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher returns a dispatcher with the default limits and pacing.
func NewDispatcher(inj Injector, ownerIdentity string) *Dispatcher {
	return &Dispatcher{
		Injector:          inj,
		MaxFragmentLength: DefaultMaxFragmentLength,
		SuffixBudget:      DefaultSuffixBudget,
		Pacing:            DefaultPacing,
		OwnerIdentity:     ownerIdentity,
	}
}

// Suppressed reports whether responses to origin must not be delivered.
func (d *Dispatcher) Suppressed(origin Comment) bool {
	return d.OwnerIdentity != "" && SameIdentity(origin.Identity, d.OwnerIdentity)
}

// Deliver injects text as chunks in order and returns how many were
// submitted. Each chunk is copied to the clipboard, pasted and submitted, then
// followed by the pacing wait. An injection failure stops the remaining chunks
// of this response; a cancelled ctx stops between chunks.
func (d *Dispatcher) Deliver(ctx context.Context, origin Comment, text string) (int, Outcome) {
	if d.Suppressed(origin) {
		slog.Debug("delivery suppressed for owner comment", slog.String("identity", origin.Identity))
		return 0, succeeded(StepInject)
	}
	chunks := SplitResponse(text, d.MaxFragmentLength, d.SuffixBudget)
	ctx, span := telemetry.StartSpan(ctx, "pipeline", "dispatcher.deliver", telemetry.ChunkCountAttr(len(chunks)))
	defer span.End()

	sent := 0
	for _, c := range chunks {
		out := c.Delivered()
		if err := d.Injector.SetClipboard(ctx, out); err != nil {
			err = fmt.Errorf("set clipboard for chunk %d/%d: %w", c.Index, c.Total, err)
			telemetry.RecordError(span, err)
			return sent, failed(StepInject, err)
		}
		if err := d.Injector.PasteAndSubmit(ctx); err != nil {
			err = fmt.Errorf("paste chunk %d/%d: %w", c.Index, c.Total, err)
			telemetry.RecordError(span, err)
			return sent, failed(StepInject, err)
		}
		sent++
		telemetry.IncChunksDelivered()
		slog.Debug("chunk delivered", slog.Int("index", c.Index), slog.Int("total", c.Total), slog.Int("chars", len(out)))
		if err := d.wait(ctx); err != nil && c.Index < c.Total {
			telemetry.RecordError(span, err)
			return sent, failed(StepInject, fmt.Errorf("pacing after chunk %d/%d: %w", c.Index, c.Total, err))
		}
	}
	telemetry.SetSpanSuccess(span)
	return sent, succeeded(StepInject)
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.Pacing <= 0 {
		return ctx.Err()
	}
	if d.sleep != nil {
		return d.sleep(ctx, d.Pacing)
	}
	t := time.NewTimer(d.Pacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SameIdentity compares two chat identities ignoring case and a leading "@".
func SameIdentity(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(a), "@"), strings.TrimPrefix(strings.TrimSpace(b), "@"))
}
