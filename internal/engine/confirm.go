package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotline/internal/domain"
	"slotline/internal/events"
	"slotline/internal/video"
)

type ConfirmResult struct {
	ProposalID        string    `json:"proposal_id"`
	MeetingID         string    `json:"meeting_id"`
	SlotStart         time.Time `json:"slot_start"`
	SlotEnd           time.Time `json:"slot_end"`
	MeetingURL        *string   `json:"meeting_url,omitempty"`
	ExternalMeetingID *string   `json:"external_meeting_id,omitempty"`
}

// Confirm fixes the proposal to one slot once every required respondent has
// agreed to it.
//
// The status flip is a conditioned update on status='open', so of several
// concurrent confirmations exactly one commits and the rest see
// proposal_not_open. Video provisioning runs after commit and never undoes
// the confirmation.
func (e Engine) Confirm(ctx context.Context, proposalID, slotID, actorID string) (ConfirmResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return ConfirmResult{}, err
	}
	defer tx.Rollback()

	p, err := e.loadProposal(ctx, tx, proposalID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if err := e.Auth.RequireOrganizer(ctx, tx, p.SpaceID, actorID, p.CreatedBy, "confirm proposal "+p.ID); err != nil {
		return ConfirmResult{}, authErr(err)
	}
	if p.Status != domain.StatusOpen {
		return ConfirmResult{}, notOpen(p)
	}
	now := e.now()
	if p.IsExpired(now) && !e.config().Negotiation.AllowConfirmAfterExpiry {
		return ConfirmResult{}, conflict(CodeProposalExpired, "proposal has expired", map[string]any{"expires_at": p.ExpiresAt})
	}

	slots, err := e.Repo.ListSlotsTx(ctx, tx, p.ID)
	if err != nil {
		return ConfirmResult{}, internal("load slots", err)
	}
	var slot *domain.Slot
	for i := range slots {
		if slots[i].ID == slotID {
			slot = &slots[i]
			break
		}
	}
	if slot == nil {
		return ConfirmResult{}, notFound(CodeSlotNotFound, fmt.Sprintf("slot %s not found on proposal %s", slotID, p.ID))
	}

	respondents, err := e.Repo.ListRespondentsTx(ctx, tx, p.ID)
	if err != nil {
		return ConfirmResult{}, internal("load respondents", err)
	}
	responses, err := e.Repo.ListSlotResponsesTx(ctx, tx, p.ID, slot.ID)
	if err != nil {
		return ConfirmResult{}, internal("load responses", err)
	}
	if missing := missingAgreement(respondents, responses); len(missing) > 0 {
		return ConfirmResult{}, invalid(CodeNotAllAgreed, "not every required respondent agreed to this slot", map[string]any{"missing": missing})
	}

	mid := meetingID(p.ID, slot.ID)
	ok, err := e.Repo.ConfirmProposal(ctx, tx, p.ID, slot.ID, mid, now.UTC())
	if err != nil {
		return ConfirmResult{}, internal("confirm proposal", err)
	}
	if !ok {
		return ConfirmResult{}, conflict(CodeProposalNotOpen, "proposal is no longer open", nil)
	}
	meeting := domain.Meeting{
		ID:         mid,
		ProposalID: p.ID,
		SpaceID:    p.SpaceID,
		Title:      p.Title,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
		CreatedBy:  actorID,
		CreatedAt:  now.UTC(),
	}
	if err := e.Repo.InsertMeeting(ctx, tx, meeting); err != nil {
		return ConfirmResult{}, internal("insert meeting", err)
	}
	if err := e.appendEvent(ctx, tx, events.ProposalConfirmed, p.SpaceID, "proposal", p.ID, actorID, events.EventPayload{
		"slot_id":    slot.ID,
		"meeting_id": mid,
		"start_at":   slot.StartAt.Format(time.RFC3339),
		"end_at":     slot.EndAt.Format(time.RFC3339),
	}); err != nil {
		return ConfirmResult{}, err
	}
	if err := commit(tx); err != nil {
		return ConfirmResult{}, err
	}
	e.log().Info("proposal confirmed", "proposal_id", p.ID, "slot_id", slot.ID, "meeting_id", mid)

	res := ConfirmResult{ProposalID: p.ID, MeetingID: mid, SlotStart: slot.StartAt, SlotEnd: slot.EndAt}
	if room := e.provisionVideo(context.WithoutCancel(ctx), p, *slot, mid, actorID); room != nil {
		res.MeetingURL = optionalString(room.URL)
		res.ExternalMeetingID = optionalString(room.ExternalID)
	}
	return res, nil
}

// missingAgreement lists required respondents without an agreeing response.
func missingAgreement(respondents []domain.Respondent, responses []domain.Response) []string {
	byRespondent := make(map[string]domain.ResponseValue, len(responses))
	for _, r := range responses {
		byRespondent[r.RespondentID] = r.Value
	}
	var missing []string
	for _, rp := range respondents {
		if !rp.Required {
			continue
		}
		if v, ok := byRespondent[rp.ID]; !ok || !v.Agrees() {
			missing = append(missing, rp.ActorID)
		}
	}
	return missing
}

var errNoParticipants = errors.New("no respondent has a resolvable email")

// provisionVideo asks the proposal's provider for a room and records it.
// Failures are logged and written to the event log; they return nil.
func (e Engine) provisionVideo(ctx context.Context, p domain.Proposal, slot domain.Slot, mid, actorID string) *video.Room {
	if p.VideoProvider == "" {
		return nil
	}
	logger := e.log().With("proposal_id", p.ID, "provider", p.VideoProvider)
	fail := func(stage string, err error) *video.Room {
		logger.Warn("video provisioning failed", "stage", stage, "err", err)
		e.recordVideoFailure(ctx, p, mid, actorID, stage, err)
		return nil
	}
	provider, err := e.Video.Get(p.VideoProvider)
	if err != nil {
		logger.Warn("video provider not configured, skipping room")
		return nil
	}
	participants, err := e.participants(ctx, p.ID)
	if err != nil {
		return fail("participants", err)
	}
	room, err := provider.CreateRoom(ctx, video.RoomRequest{
		IdempotencyKey: RoomKey(p.ID, slot.ID),
		Title:          p.Title,
		Start:          slot.StartAt,
		End:            slot.EndAt,
		Participants:   participants,
	})
	if err != nil {
		return fail("create_room", err)
	}

	if err := e.storeRoom(ctx, p, mid, actorID, room); err != nil {
		return fail("persist", err)
	}
	logger.Info("video room provisioned", "external_id", room.ExternalID)
	return &room
}

func (e Engine) storeRoom(ctx context.Context, p domain.Proposal, mid, actorID string, room video.Room) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetProposalVideo(ctx, tx, p.ID, mid, room.URL, room.ExternalID, e.now().UTC()); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.VideoProvisioned, p.SpaceID, "proposal", p.ID, actorID, events.EventPayload{
		"meeting_id":  mid,
		"external_id": room.ExternalID,
	}); err != nil {
		return err
	}
	return commit(tx)
}

func (e Engine) participants(ctx context.Context, proposalID string) ([]video.Participant, error) {
	respondents, err := e.Repo.ListRespondents(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(respondents))
	for i, r := range respondents {
		ids[i] = r.ActorID
	}
	profiles, err := e.Repo.ListProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	var res []video.Participant
	for _, id := range ids {
		prof, ok := profiles[id]
		if !ok || prof.Email == "" {
			continue
		}
		res = append(res, video.Participant{Name: prof.DisplayName, Email: prof.Email})
	}
	if len(res) == 0 {
		return nil, errNoParticipants
	}
	return res, nil
}

func (e Engine) recordVideoFailure(ctx context.Context, p domain.Proposal, mid, actorID, stage string, cause error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		e.log().Error("record video failure", "proposal_id", p.ID, "err", err)
		return
	}
	defer tx.Rollback()
	if err := e.appendEvent(ctx, tx, events.VideoFailed, p.SpaceID, "proposal", p.ID, actorID, events.EventPayload{
		"meeting_id": mid,
		"provider":   p.VideoProvider,
		"stage":      stage,
		"error":      cause.Error(),
	}); err != nil {
		e.log().Error("record video failure", "proposal_id", p.ID, "err", err)
		return
	}
	if err := tx.Commit(); err != nil {
		e.log().Error("record video failure", "proposal_id", p.ID, "err", err)
	}
}
