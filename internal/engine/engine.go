package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"slotline/internal/config"
	"slotline/internal/engine/auth"
	"slotline/internal/events"
	"slotline/internal/repo"
	"slotline/internal/video"
)

// Engine runs the negotiation operations against the proposal store. It keeps
// no state between calls; every operation re-reads what it needs.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Auth   auth.Service
	Events events.Writer
	Config *config.Config
	Video  video.Registry
	Logger *slog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Video:  video.NewRegistry(cfg.Video.Providers),
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, spaceID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(ctx, tx, evtType, spaceID, entityKind, entityID, actorID, payload); err != nil {
		return internal("append event", err)
	}
	return nil
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, internal("begin transaction", err)
	}
	return tx, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return internal("commit", err)
	}
	return nil
}

// RoomKey derives the video idempotency key for a confirmed slot. The same
// proposal and slot always map to the same key.
func RoomKey(proposalID, slotID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(proposalID+"|"+slotID)).String()
}

func meetingID(proposalID, slotID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("meeting|"+proposalID+"|"+slotID)).String()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
