// Package db provides the Postgres connection helper, embedded schema
// migrations, the moderation journal and the operator user lists.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-moderator/backend/pipeline"
)

// Connect opens a Postgres connection pool for dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return database, nil
}

// Journal appends flagged comments and delivered responses for later review.
// It implements pipeline.Journal and never reads its rows back into the
// pipeline.
type Journal struct {
	db      *sql.DB
	channel string
}

// NewJournal returns a journal writing rows tagged with channel.
func NewJournal(db *sql.DB, channel string) *Journal {
	return &Journal{db: db, channel: channel}
}

type flagReason struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// RecordFlag stores one flagged comment.
func (j *Journal) RecordFlag(ctx context.Context, r pipeline.FlagRecord) error {
	reasons := make([]flagReason, 0, len(r.Reasons))
	for _, fc := range r.Reasons {
		reasons = append(reasons, flagReason{Category: string(fc.Category), Score: fc.Score})
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return fmt.Errorf("encode flag reasons: %w", err)
	}
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO moderation_flags (channel, identity, comment, reasons, prior_offenses, flagged_at) VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		j.channel, r.Identity, r.Text, string(raw), r.PriorOffenses, at(r.At)); err != nil {
		return fmt.Errorf("insert moderation flag: %w", err)
	}
	return nil
}

// RecordResponse stores one generated response that reached the operator or the chat.
func (j *Journal) RecordResponse(ctx context.Context, r pipeline.ResponseRecord) error {
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO chat_responses (channel, identity, comment, route, response, chunks, responded_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.channel, r.Identity, r.Comment, r.Route.String(), r.Response, r.Chunks, at(r.At)); err != nil {
		return fmt.Errorf("insert chat response: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable (used by /readyz).
func (j *Journal) Ping(ctx context.Context) error { return j.db.PingContext(ctx) }

func at(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
