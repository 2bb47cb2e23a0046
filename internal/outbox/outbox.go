// Package outbox delivers committed events to external sinks.
//
// The events table is the outbox: a dispatcher polls it and hands each new
// event to every sink in order. Each sink's cursor is stored in
// outbox_cursors under the sink name, so events committed while the
// dispatcher was stopped are delivered when it starts again. A sink that
// fails is retried from the same event on the next tick. Delivery is at
// least once: a crash between Deliver and the cursor write resends one event.
package outbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"slotline/internal/config"
	"slotline/internal/domain"
	"slotline/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Sink receives events. Accepts filters by event type before delivery.
type Sink interface {
	Name() string
	Accepts(eventType string) bool
	Deliver(ctx context.Context, evt domain.Event) error
}

type Dispatcher struct {
	Repo     repo.Repo
	Sinks    []Sink
	Interval time.Duration
	Batch    int
	Logger   *slog.Logger

	mu      sync.Mutex
	cursors map[string]int64
}

// New builds a dispatcher with a webhook sink per enabled webhook and a
// Redis stream sink when redis.url is set. It returns nil when nothing is
// configured.
func New(r repo.Repo, cfg *config.Config, logger *slog.Logger) (*Dispatcher, error) {
	if cfg == nil {
		return nil, nil
	}
	var sinks []Sink
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		sinks = append(sinks, NewWebhookSink(hook))
	}
	if cfg.Redis.URL != "" {
		sink, err := NewRedisSink(cfg.Redis.URL, cfg.Redis.Stream)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return &Dispatcher{Repo: r, Sinks: sinks, Logger: logger}, nil
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce runs one delivery pass over every sink.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for _, sink := range d.Sinks {
		d.dispatch(ctx, sink)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, sink Sink) {
	name := sink.Name()
	logger := d.log().With("sink", name)
	cursor, err := d.cursorFor(ctx, name)
	if err != nil {
		logger.Error("outbox: init cursor failed", "err", err)
		return
	}
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	evts, err := d.Repo.EventsAfter(ctx, batch, cursor)
	if err != nil {
		logger.Error("outbox: fetch events failed", "err", err)
		return
	}
	for _, evt := range evts {
		if sink.Accepts(evt.Type) {
			if err := sink.Deliver(ctx, evt); err != nil {
				logger.Warn("outbox: delivery failed", "event_id", evt.ID, "type", evt.Type, "err", err)
				return
			}
		}
		if err := d.setCursor(ctx, name, evt.ID); err != nil {
			logger.Error("outbox: save cursor failed", "event_id", evt.ID, "err", err)
			return
		}
	}
}

// cursorFor resumes a sink from its stored cursor. A sink seen for the first
// time starts at the newest event and does not replay history.
func (d *Dispatcher) cursorFor(ctx context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[string]int64)
	}
	if cur, ok := d.cursors[name]; ok {
		return cur, nil
	}
	cur, ok, err := d.Repo.SinkCursor(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		if cur, err = d.Repo.LatestEventID(ctx); err != nil {
			return 0, err
		}
		if err := d.Repo.SaveSinkCursor(ctx, name, cur); err != nil {
			return 0, err
		}
	}
	d.cursors[name] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(ctx context.Context, name string, value int64) error {
	if err := d.Repo.SaveSinkCursor(ctx, name, value); err != nil {
		return err
	}
	d.mu.Lock()
	d.cursors[name] = value
	d.mu.Unlock()
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
