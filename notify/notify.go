// Package notify raises operator notifications: moderation alerts, direct
// messages read back to the owner and the connect banner.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/beeep"
)

// desktopNotify is a package-level variable to allow mocking in tests.
var desktopNotify = func(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Desktop shows a native desktop notification (Notification Center on macOS,
// the D-Bus notification service on Linux, toast on Windows).
type Desktop struct{}

// NewDesktop returns a desktop notifier.
func NewDesktop() *Desktop { return &Desktop{} }

// Notify implements pipeline.Notifier.
func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := desktopNotify(title, body); err != nil {
		return fmt.Errorf("desktop notification %q: %w", title, err)
	}
	return nil
}

// Log implements pipeline.Notifier by writing notifications to the log.
type Log struct {
	mu   sync.Mutex
	sent []Notification
}

// Notification is one recorded notification.
type Notification struct {
	Title string
	Body  string
}

// NewLog returns a logging notifier.
func NewLog() *Log { return &Log{} }

func (l *Log) Notify(_ context.Context, title, body string) error {
	l.mu.Lock()
	l.sent = append(l.sent, Notification{Title: title, Body: body})
	l.mu.Unlock()
	slog.Info("notification", slog.String("title", title), slog.String("body", body))
	return nil
}

// Sent returns the notifications recorded so far.
func (l *Log) Sent() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notification, len(l.sent))
	copy(out, l.sent)
	return out
}
