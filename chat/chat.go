package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-moderator/backend/pipeline"
	"github.com/onnwee/chat-moderator/backend/telemetry"
)

// Sink receives stream events in arrival order. pipeline.Queue implements it.
type Sink interface {
	EnqueueComment(ctx context.Context, c pipeline.Comment) error
	EnqueueConnect(ctx context.Context, c pipeline.Connect) error
}

// ircClient is the subset of *twitch.Client used here.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	OnRoomStateMessage(func(twitch.RoomStateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
	Say(channel, text string)
}

// Options configures a Source.
type Options struct {
	Channel  string
	Username string
	OAuth    string
	// OnDisconnect is called each time the connection drops.
	OnDisconnect func()
}

// Source joins one channel and forwards its messages to a Sink.
type Source struct {
	channel      string
	client       ircClient
	onDisconnect func()

	mu        sync.Mutex
	announced bool

	// newBackOff is swapped in tests.
	newBackOff func() backoff.BackOff
}

// NewSource builds an IRC-backed source. Without credentials it joins anonymously (read-only).
func NewSource(opts Options) *Source {
	var client *twitch.Client
	if opts.Username == "" || opts.OAuth == "" {
		client = twitch.NewAnonymousClient()
	} else {
		oauth := opts.OAuth
		if !strings.HasPrefix(oauth, "oauth:") {
			oauth = "oauth:" + oauth
		}
		client = twitch.NewClient(opts.Username, oauth)
	}
	return newSource(client, opts)
}

func newSource(client ircClient, opts Options) *Source {
	return &Source{
		channel:      strings.ToLower(strings.TrimPrefix(opts.Channel, "#")),
		client:       client,
		onDisconnect: opts.OnDisconnect,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			return b
		},
	}
}

// Run connects and forwards events to sink until ctx is cancelled. Dropped
// connections are retried with exponential backoff. Run returns nil on
// cancellation.
func (s *Source) Run(ctx context.Context, sink Sink) error {
	if s.channel == "" {
		return errors.New("chat source: channel is required")
	}
	b := s.newBackOff()
	s.client.OnConnect(func() {
		s.mu.Lock()
		s.announced = false
		b.Reset()
		s.mu.Unlock()
		telemetry.UpdateStreamGauge(true)
		slog.Info("twitch chat connected", slog.String("channel", s.channel))
	})
	s.client.OnRoomStateMessage(func(msg twitch.RoomStateMessage) {
		if !strings.EqualFold(msg.Channel, s.channel) {
			return
		}
		// ROOMSTATE repeats on mode changes; only the first after a connect counts.
		s.mu.Lock()
		first := !s.announced
		s.announced = true
		s.mu.Unlock()
		if !first {
			return
		}
		if err := sink.EnqueueConnect(ctx, pipeline.Connect{ChannelID: s.channel, RoomID: msg.RoomID}); err != nil {
			slog.Debug("connect event dropped", slog.Any("err", err))
		}
	})
	s.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		c := pipeline.NewComment(msg.User.Name, msg.Message)
		if !msg.Time.IsZero() {
			c.ReceivedAt = msg.Time.UTC()
		}
		if err := sink.EnqueueComment(ctx, c); err != nil {
			slog.Debug("comment dropped", slog.String("identity", c.Identity), slog.Any("err", err))
		}
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = s.client.Disconnect() //nolint:errcheck // already shutting down
		close(done)
	}()

	s.client.Join(s.channel)
	for {
		err := s.client.Connect()
		telemetry.UpdateStreamGauge(false)
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
		if ctx.Err() != nil {
			<-done
			return nil
		}
		s.mu.Lock()
		wait := b.NextBackOff()
		s.mu.Unlock()
		slog.Warn("twitch chat disconnected; reconnecting", slog.Any("err", err), slog.Duration("backoff", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			<-done
			return nil
		case <-t.C:
		}
	}
}

// SayInjector implements pipeline.Injector by posting chunks as the bot
// account: SetClipboard stages the text and PasteAndSubmit sends it.
type SayInjector struct {
	source *Source

	mu      sync.Mutex
	pending string
}

// Injector returns a chat-posting injector bound to this source's channel.
func (s *Source) Injector() *SayInjector { return &SayInjector{source: s} }

func (i *SayInjector) SetClipboard(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	i.pending = text
	i.mu.Unlock()
	return nil
}

func (i *SayInjector) PasteAndSubmit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	text := i.pending
	i.pending = ""
	i.mu.Unlock()
	if text == "" {
		return errors.New("say: nothing staged")
	}
	i.source.client.Say(i.source.channel, text)
	return nil
}
