package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"slotline/internal/config"
	"slotline/internal/db"
	"slotline/internal/domain"
	"slotline/internal/engine"
	"slotline/internal/events"
	"slotline/internal/migrate"
	"slotline/internal/repo"
	"slotline/internal/slotgen"
	"slotline/internal/video"
)

var fixedNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
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
	eng.Now = func() time.Time { return fixedNow }
	ctx := context.Background()
	if _, err := eng.SeedSpace(ctx, engine.SpaceSeed{
		OrgID:   "org-1",
		SpaceID: "space-1",
		Name:    "Acme",
		Members: []engine.MemberSeed{
			{ActorID: "olivia", Role: domain.RoleOwner},
			{ActorID: "pam", Role: domain.RoleMember, DisplayName: "Pam Park"},
			{ActorID: "ian", Role: domain.RoleMember, DisplayName: "Ian Ito", Email: "ian@example.com"},
			{ActorID: "ida", Role: domain.RoleMember},
			{ActorID: "cora", Role: domain.RoleClient, DisplayName: "Cora Client", Email: "cora@example.com"},
		},
	}); err != nil {
		t.Fatalf("seed space: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx}
}

func slotAt(day, hour int) engine.SlotInput {
	start := time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
	return engine.SlotInput{StartAt: start, EndAt: start.Add(time.Hour)}
}

// createProposal makes a three-slot proposal created by pam with ian
// (internal) and cora (client) as required respondents.
func (env *testEnv) createProposal(t *testing.T, mutate ...func(*engine.CreateInput)) (domain.Proposal, []domain.Slot) {
	t.Helper()
	in := engine.CreateInput{
		SpaceID:         "space-1",
		ActorID:         "pam",
		Title:           "Kickoff",
		DurationMinutes: 60,
		Slots:           []engine.SlotInput{slotAt(2, 10), slotAt(2, 11), slotAt(2, 12)},
		Respondents: []engine.RespondentInput{
			{ActorID: "ian", Side: domain.SideInternal},
			{ActorID: "cora", Side: domain.SideClient},
		},
	}
	for _, m := range mutate {
		m(&in)
	}
	p, err := env.Engine.CreateProposal(env.Ctx, in)
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	slots, err := env.Engine.Repo.ListSlots(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	return p, slots
}

func (env *testEnv) respond(t *testing.T, p domain.Proposal, actor string, via engine.Via, responses ...engine.ResponseInput) {
	t.Helper()
	if _, err := env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{ProposalID: p.ID, ActorID: actor, Via: via, Responses: responses}); err != nil {
		t.Fatalf("submit responses for %s: %v", actor, err)
	}
}

func resp(slot domain.Slot, v domain.ResponseValue) engine.ResponseInput {
	return engine.ResponseInput{SlotID: slot.ID, Response: v}
}

func requireCode(t *testing.T, err error, kind engine.Kind, code string) *engine.Error {
	t.Helper()
	var ee *engine.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected %s/%s error, got %v", kind, code, err)
	}
	if ee.Kind != kind || (code != "" && ee.Code != code) {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", kind, code, ee.Kind, ee.Code, err)
	}
	return ee
}

func TestSubmitResponsesIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)

	for i := 0; i < 2; i++ {
		res, err := env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{
			ProposalID: p.ID, ActorID: "ian", Via: engine.ViaInternal,
			Responses: []engine.ResponseInput{resp(slots[0], domain.Available)},
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if res.UpdatedCount != 1 {
			t.Fatalf("submit %d: expected updated count 1, got %d", i, res.UpdatedCount)
		}
	}
	env.respond(t, p, "ian", engine.ViaInternal, resp(slots[0], domain.Unavailable))

	stored, err := env.Engine.Repo.ListResponses(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored response, got %d", len(stored))
	}
	if stored[0].Value != domain.Unavailable {
		t.Fatalf("expected latest value to win, got %s", stored[0].Value)
	}
}

func TestSubmitResponsesRejectsForeignSlot(t *testing.T) {
	env := newTestEnv(t)
	a, aSlots := env.createProposal(t)
	b, bSlots := env.createProposal(t, func(in *engine.CreateInput) { in.Title = "Other" })

	_, err := env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{
		ProposalID: a.ID, ActorID: "ian", Via: engine.ViaInternal,
		Responses: []engine.ResponseInput{resp(aSlots[0], domain.Available), resp(bSlots[0], domain.Available)},
	})
	ee := requireCode(t, err, engine.KindInvalidArgument, engine.CodeSlotNotInProp)
	if ids, _ := ee.Details["slot_ids"].([]string); len(ids) != 1 || ids[0] != bSlots[0].ID {
		t.Fatalf("expected foreign slot in details, got %v", ee.Details)
	}
	for _, id := range []string{a.ID, b.ID} {
		stored, err := env.Engine.Repo.ListResponses(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(stored) != 0 {
			t.Fatalf("expected no rows written for %s, got %d", id, len(stored))
		}
	}
}

func TestSubmitResponsesPreconditionOrder(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	six := make([]engine.ResponseInput, 6)
	for i := range six {
		six[i] = engine.ResponseInput{SlotID: "s", Response: domain.Available}
	}
	ok := []engine.ResponseInput{resp(slots[0], domain.Available)}

	cases := []struct {
		name      string
		proposal  string
		actor     string
		via       engine.Via
		responses []engine.ResponseInput
		kind      engine.Kind
		code      string
	}{
		{"unknown proposal", "missing", "ian", engine.ViaInternal, ok, engine.KindNotFound, engine.CodeProposalNotFound},
		{"empty batch", p.ID, "ian", engine.ViaInternal, nil, engine.KindInvalidArgument, engine.CodeInvalidBatch},
		{"oversized batch", p.ID, "ian", engine.ViaInternal, six, engine.KindInvalidArgument, engine.CodeInvalidBatch},
		{"oversized batch from outsider", p.ID, "eve", engine.ViaInternal, six, engine.KindInvalidArgument, engine.CodeInvalidBatch},
		{"duplicate slot before bad value", p.ID, "ian", engine.ViaInternal, []engine.ResponseInput{
			{SlotID: slots[0].ID, Response: "maybe"}, {SlotID: slots[0].ID, Response: domain.Available},
		}, engine.KindInvalidArgument, engine.CodeDuplicateSlot},
		{"unknown value", p.ID, "ian", engine.ViaInternal, []engine.ResponseInput{{SlotID: slots[0].ID, Response: "maybe"}}, engine.KindInvalidArgument, engine.CodeInvalidResponse},
		{"member but not respondent", p.ID, "ida", engine.ViaInternal, ok, engine.KindForbidden, engine.CodeNotRespondent},
		{"outsider", p.ID, "eve", engine.ViaInternal, ok, engine.KindForbidden, engine.CodeForbidden},
		{"client on internal path", p.ID, "cora", engine.ViaInternal, ok, engine.KindForbidden, engine.CodeForbidden},
		{"internal on client path", p.ID, "ian", engine.ViaClient, ok, engine.KindForbidden, engine.CodeForbidden},
		{"foreign slot after identity", p.ID, "ian", engine.ViaInternal, []engine.ResponseInput{{SlotID: "nope", Response: domain.Available}}, engine.KindInvalidArgument, engine.CodeSlotNotInProp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{ProposalID: tc.proposal, ActorID: tc.actor, Via: tc.via, Responses: tc.responses})
			requireCode(t, err, tc.kind, tc.code)
		})
	}

	env.respond(t, p, "cora", engine.ViaClient, resp(slots[1], domain.UnavailableButProceed))
}

func TestSubmitResponsesRequiresOpenUnexpired(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	if err := env.Engine.Cancel(env.Ctx, p.ID, "pam"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{
		ProposalID: p.ID, ActorID: "ian", Via: engine.ViaInternal,
		Responses: []engine.ResponseInput{resp(slots[0], domain.Available)},
	})
	ee := requireCode(t, err, engine.KindConflict, engine.CodeProposalNotOpen)
	if ee.Details["status"] != string(domain.StatusCancelled) {
		t.Fatalf("expected current status in details, got %v", ee.Details)
	}

	expires := fixedNow.Add(-time.Minute)
	expired, eSlots := env.createProposal(t, func(in *engine.CreateInput) { in.ExpiresAt = &expires })
	_, err = env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{
		ProposalID: expired.ID, ActorID: "ian", Via: engine.ViaInternal,
		Responses: []engine.ResponseInput{resp(eSlots[0], domain.Available)},
	})
	requireCode(t, err, engine.KindConflict, engine.CodeProposalExpired)
}

func TestConfirmAgreementGate(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t, func(in *engine.CreateInput) {
		in.Respondents = append(in.Respondents, engine.RespondentInput{ActorID: "ida", Side: domain.SideInternal})
	})
	env.respond(t, p, "ian", engine.ViaInternal, resp(slots[0], domain.Available))
	env.respond(t, p, "ida", engine.ViaInternal, resp(slots[0], domain.Available))

	_, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	ee := requireCode(t, err, engine.KindInvalidArgument, engine.CodeNotAllAgreed)
	missing, _ := ee.Details["missing"].([]string)
	if len(missing) != 1 || missing[0] != "cora" {
		t.Fatalf("expected cora missing, got %v", ee.Details)
	}

	env.respond(t, p, "cora", engine.ViaClient, resp(slots[0], domain.Unavailable))
	_, err = env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	requireCode(t, err, engine.KindInvalidArgument, engine.CodeNotAllAgreed)

	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusOpen || got.ConfirmedSlotID != nil {
		t.Fatalf("proposal should stay open, got %s", got.Status)
	}
}

func TestOptionalRespondentDoesNotGate(t *testing.T) {
	env := newTestEnv(t)
	optional := false
	p, slots := env.createProposal(t, func(in *engine.CreateInput) {
		in.Respondents = append(in.Respondents, engine.RespondentInput{ActorID: "ida", Side: domain.SideInternal, Required: &optional})
	})
	env.respond(t, p, "ian", engine.ViaInternal, resp(slots[2], domain.Available))
	env.respond(t, p, "cora", engine.ViaClient, resp(slots[2], domain.Available))
	if _, err := env.Engine.Confirm(env.Ctx, p.ID, slots[2].ID, "pam"); err != nil {
		t.Fatalf("confirm without optional respondent: %v", err)
	}
}

func TestEndToEndNegotiation(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	env.respond(t, p, "ian", engine.ViaInternal, resp(slots[1], domain.Available))
	env.respond(t, p, "cora", engine.ViaClient,
		resp(slots[0], domain.Available),
		resp(slots[1], domain.UnavailableButProceed),
	)

	_, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	requireCode(t, err, engine.KindInvalidArgument, engine.CodeNotAllAgreed)

	res, err := env.Engine.Confirm(env.Ctx, p.ID, slots[1].ID, "pam")
	if err != nil {
		t.Fatalf("confirm slot 2: %v", err)
	}
	if res.MeetingID == "" || !res.SlotStart.Equal(slots[1].StartAt) || !res.SlotEnd.Equal(slots[1].EndAt) {
		t.Fatalf("unexpected confirm result %+v", res)
	}
	if res.MeetingURL != nil || res.ExternalMeetingID != nil {
		t.Fatalf("no provider configured, expected no url")
	}

	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed || got.ConfirmedSlotID == nil || *got.ConfirmedSlotID != slots[1].ID {
		t.Fatalf("expected confirmed on slot 2, got %+v", got)
	}
	if got.MeetingID == nil || *got.MeetingID != res.MeetingID {
		t.Fatalf("expected meeting link, got %v", got.MeetingID)
	}
	meeting, err := env.Engine.Repo.GetMeeting(env.Ctx, res.MeetingID)
	if err != nil {
		t.Fatalf("get meeting: %v", err)
	}
	if meeting.ProposalID != p.ID || !meeting.StartAt.Equal(slots[1].StartAt) {
		t.Fatalf("unexpected meeting %+v", meeting)
	}

	_, err = env.Engine.Confirm(env.Ctx, p.ID, slots[1].ID, "pam")
	requireCode(t, err, engine.KindConflict, engine.CodeProposalNotOpen)
	_, err = env.Engine.SubmitResponses(env.Ctx, engine.SubmitInput{
		ProposalID: p.ID, ActorID: "ian", Via: engine.ViaInternal,
		Responses: []engine.ResponseInput{resp(slots[0], domain.Available)},
	})
	requireCode(t, err, engine.KindConflict, engine.CodeProposalNotOpen)
}

func TestConcurrentConfirmExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	for _, actor := range []struct {
		id  string
		via engine.Via
	}{{"ian", engine.ViaInternal}, {"cora", engine.ViaClient}} {
		env.respond(t, p, actor.id, actor.via, resp(slots[0], domain.Available), resp(slots[1], domain.Available))
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Confirm(env.Ctx, p.ID, slots[i].ID, "pam")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireCode(t, err, engine.KindConflict, engine.CodeProposalNotOpen)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one confirmation, got %d (%v)", wins, errs)
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
}

type fakeProvider struct {
	mu   sync.Mutex
	reqs []video.RoomRequest
	err  error
}

func (f *fakeProvider) CreateRoom(ctx context.Context, req video.RoomRequest) (video.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return video.Room{}, f.err
	}
	return video.Room{URL: "https://meet.example/" + req.IdempotencyKey, ExternalID: "ext-" + req.IdempotencyKey[:8]}, nil
}

func agreeAll(t *testing.T, env *testEnv, p domain.Proposal, slot domain.Slot) {
	t.Helper()
	env.respond(t, p, "ian", engine.ViaInternal, resp(slot, domain.Available))
	env.respond(t, p, "cora", engine.ViaClient, resp(slot, domain.Available))
}

func TestConfirmVideoFailureDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{err: errors.New("provider down")}
	env.Engine.Video = video.Registry{"meet": provider}
	p, slots := env.createProposal(t, func(in *engine.CreateInput) { in.VideoProvider = "meet" })
	agreeAll(t, env, p, slots[0])

	res, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	if err != nil {
		t.Fatalf("confirm should succeed despite provider failure: %v", err)
	}
	if res.MeetingURL != nil || res.ExternalMeetingID != nil {
		t.Fatalf("expected no url after failure, got %+v", res)
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusConfirmed || got.MeetingURL != nil {
		t.Fatalf("expected confirmed without url, got %+v", got)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.VideoFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].EntityID != p.ID {
		t.Fatalf("expected one video failure event, got %+v", evts)
	}
}

func TestConfirmProvisionsVideo(t *testing.T) {
	env := newTestEnv(t)
	provider := &fakeProvider{}
	env.Engine.Video = video.Registry{"meet": provider}
	p, slots := env.createProposal(t, func(in *engine.CreateInput) { in.VideoProvider = "meet" })
	agreeAll(t, env, p, slots[2])

	res, err := env.Engine.Confirm(env.Ctx, p.ID, slots[2].ID, "olivia")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	key := engine.RoomKey(p.ID, slots[2].ID)
	if len(provider.reqs) != 1 || provider.reqs[0].IdempotencyKey != key {
		t.Fatalf("expected one room request keyed %s, got %+v", key, provider.reqs)
	}
	if got := provider.reqs[0].Participants; len(got) != 2 || got[0].Email != "ian@example.com" || got[1].Email != "cora@example.com" {
		t.Fatalf("unexpected participants %+v", got)
	}
	if res.MeetingURL == nil || *res.MeetingURL != "https://meet.example/"+key {
		t.Fatalf("expected meeting url in result, got %+v", res)
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MeetingURL == nil || *got.MeetingURL != *res.MeetingURL || got.ExternalMeetingID == nil {
		t.Fatalf("expected url persisted on proposal, got %+v", got)
	}
	meeting, err := env.Engine.Repo.GetMeeting(env.Ctx, res.MeetingID)
	if err != nil {
		t.Fatal(err)
	}
	if meeting.MeetingURL == nil || *meeting.MeetingURL != *res.MeetingURL {
		t.Fatalf("expected url persisted on meeting, got %+v", meeting)
	}
	if engine.RoomKey(p.ID, slots[2].ID) != key || engine.RoomKey(p.ID, slots[1].ID) == key {
		t.Fatalf("room key must be stable per slot")
	}
}

func TestConfirmAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	expires := fixedNow.Add(time.Hour)
	p, slots := env.createProposal(t, func(in *engine.CreateInput) { in.ExpiresAt = &expires })
	agreeAll(t, env, p, slots[0])

	later := env.Engine
	later.Now = func() time.Time { return expires.Add(time.Minute) }
	_, err := later.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	requireCode(t, err, engine.KindConflict, engine.CodeProposalExpired)

	cfg := *later.Config
	cfg.Negotiation.AllowConfirmAfterExpiry = true
	later.Config = &cfg
	if _, err := later.Confirm(env.Ctx, p.ID, slots[0].ID, "pam"); err != nil {
		t.Fatalf("confirm with late confirmation allowed: %v", err)
	}
}

func TestConfirmAuthorizationAndSlotLookup(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	_, other := env.createProposal(t)
	agreeAll(t, env, p, slots[0])

	_, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "ida")
	requireCode(t, err, engine.KindForbidden, engine.CodeForbidden)
	_, err = env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "cora")
	requireCode(t, err, engine.KindForbidden, engine.CodeForbidden)
	_, err = env.Engine.Confirm(env.Ctx, p.ID, other[0].ID, "pam")
	requireCode(t, err, engine.KindNotFound, engine.CodeSlotNotFound)
	_, err = env.Engine.Confirm(env.Ctx, "missing", slots[0].ID, "pam")
	requireCode(t, err, engine.KindNotFound, engine.CodeProposalNotFound)

	if _, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "olivia"); err != nil {
		t.Fatalf("owner should confirm: %v", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	p, slots := env.createProposal(t)
	agreeAll(t, env, p, slots[0])

	requireCode(t, env.Engine.Cancel(env.Ctx, p.ID, "ian"), engine.KindForbidden, engine.CodeForbidden)
	if err := env.Engine.Cancel(env.Ctx, p.ID, "pam"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireCode(t, env.Engine.Cancel(env.Ctx, p.ID, "pam"), engine.KindConflict, engine.CodeProposalNotOpen)
	_, err := env.Engine.Confirm(env.Ctx, p.ID, slots[0].ID, "pam")
	requireCode(t, err, engine.KindConflict, engine.CodeProposalNotOpen)

	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCancelled || got.ConfirmedSlotID != nil {
		t.Fatalf("expected cancelled, got %+v", got)
	}
}

func TestGetDetail(t *testing.T) {
	env := newTestEnv(t)
	expires := fixedNow.Add(time.Hour)
	p, slots := env.createProposal(t, func(in *engine.CreateInput) {
		in.ExpiresAt = &expires
		in.Respondents = append(in.Respondents, engine.RespondentInput{ActorID: "ida", Side: domain.SideInternal})
	})
	env.respond(t, p, "ian", engine.ViaInternal, resp(slots[0], domain.Available))
	env.respond(t, p, "ida", engine.ViaInternal, resp(slots[0], domain.UnavailableButProceed))
	env.respond(t, p, "cora", engine.ViaClient, resp(slots[0], domain.Available), resp(slots[1], domain.Unavailable))

	d, err := env.Engine.GetDetail(env.Ctx, p.ID, "cora")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if d.Expired {
		t.Fatalf("proposal should not be expired yet")
	}
	if len(d.Slots) != 3 || len(d.Respondents) != 3 {
		t.Fatalf("unexpected shape: %d slots, %d respondents", len(d.Slots), len(d.Respondents))
	}
	names := map[string]string{}
	for _, r := range d.Respondents {
		names[r.ActorID] = r.DisplayName
	}
	if names["ian"] != "Ian Ito" || names["cora"] != "Cora Client" || names["ida"] != "ida" {
		t.Fatalf("unexpected display names %v", names)
	}
	if !d.Slots[0].Agreed || d.Slots[1].Agreed || d.Slots[2].Agreed {
		t.Fatalf("unexpected agreed flags: %v %v %v", d.Slots[0].Agreed, d.Slots[1].Agreed, d.Slots[2].Agreed)
	}
	if len(d.Slots[0].Responses) != 3 || len(d.Slots[1].Responses) != 1 || len(d.Slots[2].Responses) != 0 {
		t.Fatalf("unexpected response counts")
	}
	if r := d.Slots[1].Responses[0]; r.ActorID != "cora" || r.DisplayName != "Cora Client" || r.Value != domain.Unavailable {
		t.Fatalf("unexpected response detail %+v", r)
	}

	later := env.Engine
	later.Now = func() time.Time { return expires }
	d, err = later.GetDetail(env.Ctx, p.ID, "pam")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Expired || d.Proposal.Status != domain.StatusOpen {
		t.Fatalf("expected projected expiry on an open proposal")
	}

	_, err = env.Engine.GetDetail(env.Ctx, p.ID, "eve")
	requireCode(t, err, engine.KindForbidden, engine.CodeForbidden)
}

func TestCreateProposalValidation(t *testing.T) {
	env := newTestEnv(t)
	base := func() engine.CreateInput {
		return engine.CreateInput{
			SpaceID: "space-1", ActorID: "pam", Title: "Sync", DurationMinutes: 30,
			Slots:       []engine.SlotInput{slotAt(3, 9)},
			Respondents: []engine.RespondentInput{{ActorID: "ian", Side: domain.SideInternal}},
		}
	}
	cases := []struct {
		name   string
		mutate func(*engine.CreateInput)
		kind   engine.Kind
	}{
		{"missing title", func(in *engine.CreateInput) { in.Title = " " }, engine.KindInvalidArgument},
		{"zero duration", func(in *engine.CreateInput) { in.DurationMinutes = 0 }, engine.KindInvalidArgument},
		{"no slots", func(in *engine.CreateInput) { in.Slots = nil }, engine.KindInvalidArgument},
		{"inverted slot", func(in *engine.CreateInput) {
			s := slotAt(3, 9)
			in.Slots = []engine.SlotInput{{StartAt: s.EndAt, EndAt: s.StartAt}}
		}, engine.KindInvalidArgument},
		{"no respondents", func(in *engine.CreateInput) { in.Respondents = nil }, engine.KindInvalidArgument},
		{"duplicate respondent", func(in *engine.CreateInput) {
			in.Respondents = append(in.Respondents, engine.RespondentInput{ActorID: "ian", Side: domain.SideInternal})
		}, engine.KindInvalidArgument},
		{"bad side", func(in *engine.CreateInput) { in.Respondents[0].Side = "vendor" }, engine.KindInvalidArgument},
		{"respondent outside space", func(in *engine.CreateInput) { in.Respondents[0].ActorID = "eve" }, engine.KindInvalidArgument},
		{"client marked internal", func(in *engine.CreateInput) {
			in.Respondents = []engine.RespondentInput{{ActorID: "cora", Side: domain.SideInternal}}
		}, engine.KindInvalidArgument},
		{"unknown provider", func(in *engine.CreateInput) { in.VideoProvider = "zoom" }, engine.KindInvalidArgument},
		{"client creator", func(in *engine.CreateInput) { in.ActorID = "cora" }, engine.KindForbidden},
		{"client creator with bad payload", func(in *engine.CreateInput) {
			in.ActorID = "cora"
			in.Title = ""
			in.Slots = nil
		}, engine.KindForbidden},
		{"outsider with bad payload", func(in *engine.CreateInput) {
			in.ActorID = "eve"
			in.Respondents = nil
		}, engine.KindForbidden},
		{"unknown space", func(in *engine.CreateInput) { in.SpaceID = "nope" }, engine.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := env.Engine.CreateProposal(env.Ctx, in)
			requireCode(t, err, tc.kind, "")
		})
	}
}

func TestCreateProposalFromGenerator(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProposal(env.Ctx, engine.CreateInput{
		SpaceID: "space-1", ActorID: "pam", Title: "Planning", DurationMinutes: 60,
		Respondents: []engine.RespondentInput{{ActorID: "ian", Side: domain.SideInternal}},
		GenerateFrom: &engine.GenerateInput{Options: slotgen.Options{
			StartDate: "2024-01-01", EndDate: "2024-01-02", Location: time.UTC,
		}},
	})
	if err != nil {
		t.Fatalf("create from generator: %v", err)
	}
	slots, err := env.Engine.Repo.ListSlots(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != env.Engine.Config.Negotiation.MaxSlots {
		t.Fatalf("expected generated slots capped at %d, got %d", env.Engine.Config.Negotiation.MaxSlots, len(slots))
	}
	first := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !slots[0].StartAt.Equal(first) || slots[0].SortOrder != 0 {
		t.Fatalf("unexpected first slot %+v", slots[0])
	}

	_, err = env.Engine.CreateProposal(env.Ctx, engine.CreateInput{
		SpaceID: "space-1", ActorID: "pam", Title: "Weekend", DurationMinutes: 60,
		Respondents: []engine.RespondentInput{{ActorID: "ian", Side: domain.SideInternal}},
		GenerateFrom: &engine.GenerateInput{Options: slotgen.Options{
			StartDate: "2024-01-06", EndDate: "2024-01-07", Location: time.UTC,
		}},
	})
	requireCode(t, err, engine.KindInvalidArgument, engine.CodeNoCandidates)
}

func TestListProposalsAndEvents(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.createProposal(t)
	b, _ := env.createProposal(t, func(in *engine.CreateInput) { in.Title = "Second" })
	if err := env.Engine.Cancel(env.Ctx, b.ID, "pam"); err != nil {
		t.Fatal(err)
	}

	open, err := env.Engine.ListProposals(env.Ctx, "space-1", "cora", domain.StatusOpen)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 || open[0].ID != a.ID {
		t.Fatalf("expected only %s open, got %+v", a.ID, open)
	}
	all, err := env.Engine.ListProposals(env.Ctx, "space-1", "pam", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(all))
	}
	_, err = env.Engine.ListProposals(env.Ctx, "space-1", "eve", "")
	requireCode(t, err, engine.KindForbidden, engine.CodeForbidden)
	_, err = env.Engine.ListProposals(env.Ctx, "space-1", "pam", "expired")
	requireCode(t, err, engine.KindInvalidArgument, engine.CodeInvalidArgument)

	evts, err := env.Engine.ListEvents(env.Ctx, "ian", repo.EventFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 3 || evts[0].Type != events.ProposalCancelled {
		t.Fatalf("expected 3 events newest first, got %+v", evts)
	}
	none, err := env.Engine.ListEvents(env.Ctx, "eve", repo.EventFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("outsider should see no events, got %d", len(none))
	}
}

func TestKindOf(t *testing.T) {
	if engine.KindOf(repo.ErrNotFound) != engine.KindNotFound {
		t.Fatalf("ErrNotFound should map to not_found")
	}
	if engine.KindOf(errors.New("boom")) != engine.KindInternal {
		t.Fatalf("plain errors should be internal")
	}
	if engine.KindOf(nil) != "" {
		t.Fatalf("nil has no kind")
	}
}
