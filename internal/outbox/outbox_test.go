package outbox_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"slotline/internal/config"
	"slotline/internal/db"
	"slotline/internal/domain"
	"slotline/internal/engine"
	"slotline/internal/events"
	"slotline/internal/migrate"
	"slotline/internal/outbox"
)

type fakeStream struct {
	mu     sync.Mutex
	stream string
	values []map[string]interface{}
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = a.Stream
	f.values = append(f.values, a.Values.(map[string]interface{}))
	return redis.NewStringResult("1-0", nil)
}

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }
	if _, err := eng.SeedSpace(context.Background(), engine.SpaceSeed{
		SpaceID: "space-1",
		Members: []engine.MemberSeed{
			{ActorID: "pam", Role: domain.RoleMember},
			{ActorID: "cora", Role: domain.RoleClient},
		},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return eng
}

func createAndCancel(t *testing.T, eng engine.Engine) domain.Proposal {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	p, err := eng.CreateProposal(ctx, engine.CreateInput{
		SpaceID: "space-1", ActorID: "pam", Title: "Kickoff", DurationMinutes: 60,
		Slots:       []engine.SlotInput{{StartAt: start, EndAt: start.Add(time.Hour)}},
		Respondents: []engine.RespondentInput{{ActorID: "cora", Side: domain.SideClient}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := eng.Cancel(ctx, p.ID, "pam"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	return p
}

func TestDispatcherDeliversNewEvents(t *testing.T) {
	eng := newEngine(t)
	var mu sync.Mutex
	var got []outbox.Envelope
	var headers []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env outbox.Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		got = append(got, env)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
	}))
	defer srv.Close()

	stream := &fakeStream{}
	d := &outbox.Dispatcher{
		Repo: eng.Repo,
		Sinks: []outbox.Sink{
			outbox.NewWebhookSink(config.WebhookConfig{URL: srv.URL, Secret: "s3cret", Events: []string{events.ProposalCancelled}}),
			&outbox.RedisSink{Client: stream, Stream: "slotline.events"},
		},
	}
	ctx := context.Background()
	d.DispatchOnce(ctx)

	p := createAndCancel(t, eng)
	d.DispatchOnce(ctx)
	d.DispatchOnce(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Type != events.ProposalCancelled || got[0].EntityID != p.ID || got[0].SpaceID != "space-1" {
		t.Fatalf("expected one filtered cancel delivery, got %+v", got)
	}
	if headers[0].Get("X-Slotline-Secret") != "s3cret" || headers[0].Get("X-Slotline-Event") != events.ProposalCancelled {
		t.Fatalf("missing delivery headers: %v", headers[0])
	}
	if len(stream.values) != 2 || stream.stream != "slotline.events" {
		t.Fatalf("expected both events on the stream, got %d", len(stream.values))
	}
	if stream.values[0]["type"] != events.ProposalCreated || stream.values[1]["type"] != events.ProposalCancelled {
		t.Fatalf("unexpected stream order: %v", stream.values)
	}
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	eng := newEngine(t)
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	d := &outbox.Dispatcher{Repo: eng.Repo, Sinks: []outbox.Sink{outbox.NewWebhookSink(config.WebhookConfig{URL: srv.URL})}}
	ctx := context.Background()
	d.DispatchOnce(ctx)
	createAndCancel(t, eng)

	d.DispatchOnce(ctx)
	mu.Lock()
	if calls != 1 {
		t.Fatalf("expected delivery to stop at the failure, got %d calls", calls)
	}
	mu.Unlock()

	d.DispatchOnce(ctx)
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected failed event retried then next delivered, got %d calls", calls)
	}
}

func TestDispatcherResumesAfterRestart(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	first := &fakeStream{}
	d := &outbox.Dispatcher{Repo: eng.Repo, Sinks: []outbox.Sink{&outbox.RedisSink{Client: first, Stream: "slotline.events"}}}
	d.DispatchOnce(ctx)

	createAndCancel(t, eng)

	second := &fakeStream{}
	restarted := &outbox.Dispatcher{Repo: eng.Repo, Sinks: []outbox.Sink{&outbox.RedisSink{Client: second, Stream: "slotline.events"}}}
	restarted.DispatchOnce(ctx)
	if len(first.values) != 0 {
		t.Fatalf("stopped dispatcher should not deliver, got %d", len(first.values))
	}
	if len(second.values) != 2 || second.values[0]["type"] != events.ProposalCreated {
		t.Fatalf("expected events from downtime delivered after restart, got %v", second.values)
	}

	again := &outbox.Dispatcher{Repo: eng.Repo, Sinks: []outbox.Sink{&outbox.RedisSink{Client: second, Stream: "slotline.events"}}}
	again.DispatchOnce(ctx)
	if len(second.values) != 2 {
		t.Fatalf("expected no replay of delivered events, got %d", len(second.values))
	}
	fresh := &fakeStream{}
	other := &outbox.Dispatcher{Repo: eng.Repo, Sinks: []outbox.Sink{&outbox.RedisSink{Client: fresh, Stream: "audit"}}}
	other.DispatchOnce(ctx)
	if len(fresh.values) != 0 {
		t.Fatalf("a new sink should start at the newest event, got %d", len(fresh.values))
	}
}

func TestNewFromConfig(t *testing.T) {
	eng := newEngine(t)
	disabled := false
	cfg := config.Default()
	if d, err := outbox.New(eng.Repo, cfg, nil); err != nil || d != nil {
		t.Fatalf("expected no dispatcher without sinks, got %v %v", d, err)
	}
	cfg.Webhooks = []config.WebhookConfig{
		{URL: "http://127.0.0.1:1/hook"},
		{URL: "http://127.0.0.1:1/off", Enabled: &disabled},
	}
	cfg.Redis.URL = "redis://127.0.0.1:6379/0"
	d, err := outbox.New(eng.Repo, cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(d.Sinks) != 2 {
		t.Fatalf("expected webhook and redis sinks, got %d", len(d.Sinks))
	}
	if rs, ok := d.Sinks[1].(*outbox.RedisSink); !ok || rs.Stream != "slotline.events" {
		t.Fatalf("expected redis sink on default stream, got %#v", d.Sinks[1])
	} else {
		rs.Close()
	}
	cfg.Redis.URL = "not a url"
	if _, err := outbox.New(eng.Repo, cfg, nil); err == nil {
		t.Fatalf("expected invalid redis url to fail")
	}
}
