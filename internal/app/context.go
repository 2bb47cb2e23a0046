package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"slotline/internal/config"
	"slotline/internal/db"
	"slotline/internal/engine"
	"slotline/internal/migrate"
	"slotline/internal/outbox"
)

// Runtime is an opened workspace: a migrated database, the workspace config
// and an engine bound to both.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Open prepares the workspace directory, applies pending migrations and loads
// slotline.yml, falling back to defaults when the file is absent.
func Open(ctx context.Context, workspace string, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Apply(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Info("applied migrations", "count", applied, "workspace", workspace)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	return &Runtime{Workspace: workspace, DB: conn, Config: cfg, Engine: e, Logger: logger}, nil
}

func (r *Runtime) Close() error {
	return r.DB.Close()
}

// Outbox builds the event dispatcher for the configured sinks. It returns nil
// when no webhook or stream is configured.
func (r *Runtime) Outbox() (*outbox.Dispatcher, error) {
	return outbox.New(r.Engine.Repo, r.Config, r.Logger)
}

// NewLogger builds the process logger. Level is one of debug, info, warn, error.
func NewLogger(w io.Writer, level string, asJSON bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// LoadSeed reads a space seed file (YAML or JSON).
func LoadSeed(path string) (engine.SpaceSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.SpaceSeed{}, err
	}
	var seed engine.SpaceSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return engine.SpaceSeed{}, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return seed, nil
}
