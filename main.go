// Command backend runs the live chat moderator.
// It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres and runs the journal migrations.
//   - Joins the configured Twitch channel and feeds every message through the
//     moderation and response pipeline, one comment at a time.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics,
//     /admin/offenders and /admin/users/.
//
// Shutdown is graceful on SIGINT/SIGTERM: the consumer and the HTTP server
// are joined before the database is closed.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-moderator/backend/ai"
	"github.com/onnwee/chat-moderator/backend/chat"
	"github.com/onnwee/chat-moderator/backend/config"
	"github.com/onnwee/chat-moderator/backend/db"
	"github.com/onnwee/chat-moderator/backend/inject"
	"github.com/onnwee/chat-moderator/backend/notify"
	"github.com/onnwee/chat-moderator/backend/pipeline"
	"github.com/onnwee/chat-moderator/backend/server"
	"github.com/onnwee/chat-moderator/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateStreamReady(); err != nil {
		slog.Error("stream config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateAIReady(); err != nil {
		slog.Error("ai config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing(telemetry.TracingOptions{
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTelEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
		Channel:        cfg.TwitchChannel,
	})
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Journal (optional)
	var (
		journal *db.Journal
		users   *db.UserLists
	)
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		journal = db.NewJournal(database, cfg.TwitchChannel)
		users = db.NewUserLists(database, cfg.TwitchChannel)
	} else {
		slog.Info("journal disabled (DB_DSN not set)")
	}

	client, err := ai.New(ai.Options{
		Provider:        cfg.AIProvider,
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		OllamaHost:      cfg.OllamaHost,
		GenerationModel: cfg.GenerationModel,
		ModerationModel: cfg.ModerationModel,
		Timeout:         cfg.CollaboratorTimeout,
	})
	if err != nil {
		slog.Error("ai client init failed", slog.Any("err", err))
		os.Exit(1)
	}

	var notifier pipeline.Notifier
	switch cfg.NotifyMode {
	case config.NotifyLog:
		notifier = notify.NewLog()
	default:
		notifier = notify.NewDesktop()
	}

	// p is assigned below; the disconnect hook only fires once Run starts.
	var p *pipeline.Pipeline
	source := chat.NewSource(chat.Options{
		Channel:      cfg.TwitchChannel,
		Username:     cfg.TwitchBotUsername,
		OAuth:        cfg.TwitchOAuthToken,
		OnDisconnect: func() { p.HandleDisconnect() },
	})

	var injector pipeline.Injector
	switch cfg.OutputMode {
	case config.OutputChat:
		injector = source.Injector()
	case config.OutputLog:
		injector = inject.NewLog()
	default:
		clip, err := inject.NewClipboard(runtime.GOOS)
		if err != nil {
			slog.Error("clipboard output unavailable (set OUTPUT_MODE=chat or log)", slog.Any("err", err))
			os.Exit(1)
		}
		injector = clip
	}

	dispatcher := pipeline.NewDispatcher(injector, cfg.OwnerIdentity)
	dispatcher.MaxFragmentLength = cfg.MaxFragmentLength
	dispatcher.SuffixBudget = cfg.SuffixBudget
	dispatcher.Pacing = cfg.PacingInterval

	opts := pipeline.Options{
		Channel:          cfg.TwitchChannel,
		Tokens:           pipeline.Tokens{OwnerHandle: cfg.OwnerHandle, Assistant: cfg.AssistantToken},
		HistorySize:      cfg.HistorySize,
		SkipFirstComment: cfg.SkipFirstComment,
		Retries:          cfg.CollaboratorRetries,
		Classifier:       client,
		Generator:        client,
		Notifier:         notifier,
		Dispatcher:       dispatcher,
	}
	deps := server.Deps{}
	if journal != nil {
		opts.Journal = journal
		deps.Journal = journal
	}
	if users != nil {
		opts.Users = users
		deps.Users = users
	}
	p = pipeline.New(opts)
	queue := pipeline.NewQueue(p, cfg.QueueSize)
	deps.Pipeline = p
	deps.Queue = queue

	slog.Info("starting chat moderator",
		slog.String("channel", cfg.TwitchChannel),
		slog.String("provider", client.Provider()),
		slog.String("output", cfg.OutputMode),
		slog.String("notify", cfg.NotifyMode),
		slog.Bool("anonymous", cfg.Anonymous()),
	)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("pipeline consumer exited", slog.Any("err", err))
		}
	}()
	go func() {
		if err := source.Run(ctx, queue); err != nil {
			slog.Error("chat source exited", slog.Any("err", err))
			stop()
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	waitFor("pipeline consumer", consumerDone, shutdownTimeout)
	waitFor("http server", serverDone, shutdownTimeout)
}

// shutdownTimeout bounds how long main waits for each component to stop
// before the deferred database close runs.
const shutdownTimeout = 15 * time.Second

// waitFor blocks until done is closed or timeout elapses. It reports whether
// the component stopped in time.
func waitFor(name string, done <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		slog.Info("component stopped", slog.String("component", name))
		return true
	case <-timer.C:
		slog.Warn("component did not stop in time", slog.String("component", name), slog.Duration("timeout", timeout))
		return false
	}
}
