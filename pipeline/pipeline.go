package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chat-moderator/backend/telemetry"
)

// Notification titles.
const (
	ConnectTitle = "Moderator - Connected"
	DirectTitle  = "Moderator - New Direct Message"
)

// Notifier is the external operator notification facility (fire-and-forget).
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// FlagRecord is journaled for every flagged comment.
type FlagRecord struct {
	Identity      string
	Text          string
	Reasons       []FlaggedCategory
	PriorOffenses int
	At            time.Time
}

// ResponseRecord is journaled for every response that reached the operator or the chat.
type ResponseRecord struct {
	Identity string
	Comment  string
	Route    RouteKind
	Response string
	Chunks   int
	At       time.Time
}

// Journal is an optional audit sink. It is write-only: nothing is read back.
type Journal interface {
	RecordFlag(ctx context.Context, r FlagRecord) error
	RecordResponse(ctx context.Context, r ResponseRecord) error
}

// UserDirectory answers whether an identity is on the operator's
// undesirables list. *db.UserLists implements it.
type UserDirectory interface {
	Undesirable(ctx context.Context, identity string) (reason string, listed bool, err error)
}

// Options configures a Pipeline. Classifier, Generator, Notifier and
// Dispatcher are required; Journal and Users are optional.
type Options struct {
	Channel          string
	Tokens           Tokens
	HistorySize      int
	SkipFirstComment bool
	Retries          int

	Classifier Classifier
	Generator  Generator
	Notifier   Notifier
	Journal    Journal
	Users      UserDirectory
	Dispatcher *Dispatcher
}

// Pipeline owns the process-lifetime state (history and offender ledger) of
// one monitored channel and runs every step for each comment. Handle must not
// be called concurrently; use a Queue to serialize events.
type Pipeline struct {
	channel    string
	tokens     Tokens
	history    *History
	ledger     *Ledger
	moderator  *Moderator
	synth      *Synthesizer
	dispatcher *Dispatcher
	notifier   Notifier
	journal    Journal
	users      UserDirectory

	// skipFirst drops the first comment of the first session only; a
	// reconnect does not replay anything.
	skipFirst bool
	mu        sync.Mutex
	sawFirst  bool

	connected atomic.Bool
	processed atomic.Int64
	flagged   atomic.Int64
}

// New builds a pipeline from opts.
func New(opts Options) *Pipeline {
	size := opts.HistorySize
	if size == 0 {
		size = DefaultHistorySize
	}
	return &Pipeline{
		channel:    opts.Channel,
		tokens:     opts.Tokens,
		history:    NewHistory(size),
		ledger:     NewLedger(),
		moderator:  &Moderator{Classifier: opts.Classifier, Retries: opts.Retries},
		synth:      &Synthesizer{Generator: opts.Generator, Retries: opts.Retries},
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		journal:    opts.Journal,
		users:      opts.Users,
		skipFirst:  opts.SkipFirstComment,
	}
}

// History exposes the rolling history (read-only use).
func (p *Pipeline) History() *History { return p.history }

// Ledger exposes the offender ledger (read-only use).
func (p *Pipeline) Ledger() *Ledger { return p.ledger }

// Result summarizes what happened to one comment.
type Result struct {
	Skipped       bool
	Route         RouteKind
	Classified    bool
	Verdict       Verdict
	PriorOffenses int
	Response      string
	// NoOutput is set when the generated response was the "ok" sentinel or empty.
	NoOutput   bool
	Suppressed bool
	Chunks     int
	Outcomes   []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// HandleConnect records the session start and notifies the operator.
func (p *Pipeline) HandleConnect(ctx context.Context, ev Connect) {
	p.connected.Store(true)
	slog.Info("connected to stream", slog.String("channel_id", ev.ChannelID), slog.String("room_id", ev.RoomID))
	body := "Successfully connected to " + p.channel + "\nReady to monitor comments"
	if err := p.notifier.Notify(ctx, ConnectTitle, body); err != nil {
		p.report(ctx, nil, failed(StepNotify, err))
	}
}

// HandleDisconnect marks the stream as disconnected.
func (p *Pipeline) HandleDisconnect() { p.connected.Store(false) }

// Handle runs the full pipeline for one comment.
func (p *Pipeline) Handle(ctx context.Context, c Comment) Result {
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	ctx, span := telemetry.StartSpan(ctx, "pipeline", "pipeline.handle", telemetry.IdentityAttr(c.Identity))
	defer span.End()
	start := time.Now()
	log := telemetry.LoggerWithCorr(ctx)

	var res Result
	if p.skipInitial() {
		log.Debug("skipping first comment after connect", slog.String("identity", c.Identity))
		res.Skipped = true
		return res
	}
	telemetry.IncComments()
	p.processed.Add(1)
	log.Info("comment", slog.String("identity", c.Identity), slog.String("text", c.Text))

	p.history.Append(c)
	telemetry.SetHistorySize(p.history.Len())
	snapshot := p.history.Snapshot()
	previous := snapshot[:len(snapshot)-1]

	p.moderate(ctx, c, &res)

	res.Route = Route(c, p.tokens)
	telemetry.IncRoute(res.Route.String())
	switch res.Route {
	case RouteDirect:
		log.Info("comment addressed to owner", slog.String("identity", c.Identity))
		p.respond(ctx, c, PersonaReader, nil, &res)
	case RouteBroadcast:
		log.Info("comment addressed to assistant", slog.String("identity", c.Identity))
		p.respond(ctx, c, PersonaResponder, previous, &res)
	}

	telemetry.ObserveHandleDuration(time.Since(start))
	if len(res.Failed()) == 0 {
		telemetry.SetSpanSuccess(span)
	}
	return res
}

func (p *Pipeline) skipInitial() bool {
	if !p.skipFirst {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sawFirst {
		return false
	}
	p.sawFirst = true
	return true
}

func (p *Pipeline) moderate(ctx context.Context, c Comment, res *Result) {
	log := telemetry.LoggerWithCorr(ctx)
	ctx, span := telemetry.StartSpan(ctx, "pipeline", "moderator.check")
	v, out := p.moderator.Check(ctx, c)
	span.End()
	p.report(ctx, res, out)
	if !out.OK() {
		log.Warn("comment unclassified", slog.String("identity", c.Identity))
		return
	}
	res.Classified = true
	res.Verdict = v
	if !v.Flagged {
		return
	}

	prior := p.ledger.Record(c.Identity)
	res.PriorOffenses = prior
	p.flagged.Add(1)
	telemetry.IncFlagged()
	alert := Alert{Identity: c.Identity, Text: c.Text, Reasons: v.FlaggedCategories(), PriorOffenses: prior}
	if p.users != nil {
		reason, listed, err := p.users.Undesirable(ctx, c.Identity)
		if err != nil {
			p.report(ctx, res, failed(StepUsers, err))
		} else if listed {
			alert.Undesirable = true
			alert.UndesirableReason = reason
			log.Warn("undesirable user flagged", slog.String("identity", c.Identity))
		}
	}
	if prior > 0 {
		log.Warn("repeat offender", slog.String("identity", c.Identity), slog.Int("prior_offenses", prior))
	}
	log.Warn("comment flagged", slog.String("identity", c.Identity), slog.String("text", c.Text), slog.String("scores", alert.ScoreLog()))

	if err := p.notifier.Notify(ctx, AlertTitle, alert.Body()); err != nil {
		p.report(ctx, res, failed(StepNotify, err))
	}
	if p.journal != nil {
		rec := FlagRecord{Identity: c.Identity, Text: c.Text, Reasons: alert.Reasons, PriorOffenses: prior, At: c.ReceivedAt}
		if err := p.journal.RecordFlag(ctx, rec); err != nil {
			p.report(ctx, res, failed(StepJournal, err))
		}
	}
}

func (p *Pipeline) respond(ctx context.Context, c Comment, persona Persona, history []Comment, res *Result) {
	log := telemetry.LoggerWithCorr(ctx)
	prompt := BuildPrompt(persona, history, []Comment{c})

	gctx, span := telemetry.StartSpan(ctx, "pipeline", "synthesizer.generate", telemetry.PersonaAttr(persona.String()))
	text, out := p.synth.Generate(gctx, persona, prompt)
	span.End()
	p.report(ctx, res, out)
	if !out.OK() {
		return
	}
	res.Response = text
	if IsNoOutput(text) {
		res.NoOutput = true
		telemetry.IncSuppressed("no_output")
		log.Debug("no-output response", slog.String("route", res.Route.String()))
		return
	}
	log.Info("generated response", slog.String("persona", persona.String()), slog.String("response", text))

	switch persona {
	case PersonaReader:
		if err := p.notifier.Notify(ctx, DirectTitle, text); err != nil {
			p.report(ctx, res, failed(StepNotify, err))
			return
		}
	case PersonaResponder:
		if p.dispatcher.Suppressed(c) {
			res.Suppressed = true
			telemetry.IncSuppressed("owner")
			return
		}
		n, out := p.dispatcher.Deliver(ctx, c, text)
		res.Chunks = n
		p.report(ctx, res, out)
	}

	if p.journal != nil {
		rec := ResponseRecord{Identity: c.Identity, Comment: c.Text, Route: res.Route, Response: text, Chunks: res.Chunks, At: time.Now().UTC()}
		if err := p.journal.RecordResponse(ctx, rec); err != nil {
			p.report(ctx, res, failed(StepJournal, err))
		}
	}
}

// report logs and counts failed outcomes and keeps every outcome on res.
func (p *Pipeline) report(ctx context.Context, res *Result, out Outcome) {
	if res != nil {
		res.Outcomes = append(res.Outcomes, out)
	}
	if out.OK() {
		return
	}
	telemetry.IncCollaboratorFailure(out.Step)
	telemetry.LoggerWithCorr(ctx).Error("collaborator call failed",
		slog.String("step", out.Step),
		slog.String("class", out.Class.String()),
		slog.Any("err", out.Err))
}

// Status is a point-in-time view used by the HTTP status endpoint.
type Status struct {
	Channel    string `json:"channel"`
	Connected  bool   `json:"connected"`
	HistoryLen int    `json:"history_len"`
	HistoryCap int    `json:"history_cap"`
	Processed  int64  `json:"processed"`
	Flagged    int64  `json:"flagged"`
}

// Status returns the current counters.
func (p *Pipeline) Status() Status {
	return Status{
		Channel:    p.channel,
		Connected:  p.connected.Load(),
		HistoryLen: p.history.Len(),
		HistoryCap: p.history.Cap(),
		Processed:  p.processed.Load(),
		Flagged:    p.flagged.Load(),
	}
}

// Offenders returns the ledger snapshot.
func (p *Pipeline) Offenders() []OffenderCount { return p.ledger.Snapshot() }
