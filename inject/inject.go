// Package inject delivers response chunks into the live chat surface.
//
// Clipboard copies each chunk to the system clipboard and then sends the
// paste and submit keystrokes to the focused window (osascript on macOS,
// xdotool on Linux). Log only records the chunks and is used for dry runs.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"

	"github.com/atotto/clipboard"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

// runCommand is a package-level variable to allow mocking in tests.
var runCommand = func(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, out)
	}
	return nil
}

// ErrUnsupported is returned when no paste keystroke is known for the platform.
var ErrUnsupported = errors.New("paste keystroke not supported on this platform")

// keystroke describes the commands that paste and submit on one platform.
type keystroke struct {
	paste  []string
	submit []string
}

var keystrokes = map[string]keystroke{
	"darwin": {
		paste:  []string{"osascript", "-e", `tell application "System Events" to keystroke "v" using command down`},
		submit: []string{"osascript", "-e", `tell application "System Events" to key code 36`},
	},
	"linux": {
		paste:  []string{"xdotool", "key", "--clearmodifiers", "ctrl+v"},
		submit: []string{"xdotool", "key", "--clearmodifiers", "Return"},
	},
}

// Clipboard implements pipeline.Injector with the system clipboard.
type Clipboard struct {
	keys keystroke
}

// NewClipboard returns a clipboard injector for goos (runtime.GOOS when empty).
func NewClipboard(goos string) (*Clipboard, error) {
	if goos == "" {
		goos = runtime.GOOS
	}
	if clipboard.Unsupported {
		return nil, errors.New("system clipboard unavailable (install xclip, xsel or wl-clipboard)")
	}
	keys, ok := keystrokes[goos]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
	return &Clipboard{keys: keys}, nil
}

// SetClipboard replaces the clipboard contents.
func (c *Clipboard) SetClipboard(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboardWriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}

// PasteAndSubmit pastes into the focused window and presses enter.
func (c *Clipboard) PasteAndSubmit(ctx context.Context) error {
	if err := runCommand(ctx, c.keys.paste[0], c.keys.paste[1:]...); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if err := runCommand(ctx, c.keys.submit[0], c.keys.submit[1:]...); err != nil {
		return fmt.Errorf("submit keystroke: %w", err)
	}
	return nil
}

// Log implements pipeline.Injector by logging every submitted chunk.
type Log struct {
	mu      sync.Mutex
	pending string
	sent    []string
}

// NewLog returns a logging injector.
func NewLog() *Log { return &Log{} }

func (l *Log) SetClipboard(_ context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = text
	return nil
}

func (l *Log) PasteAndSubmit(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	slog.Info("chat output", slog.String("chunk", l.pending))
	l.sent = append(l.sent, l.pending)
	return nil
}

// Sent returns every chunk submitted so far.
func (l *Log) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.sent))
	copy(out, l.sent)
	return out
}
