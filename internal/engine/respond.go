package engine

import (
	"context"
	"errors"
	"fmt"

	"slotline/internal/domain"
	"slotline/internal/events"
	"slotline/internal/repo"
)

// Via names the identity path a submission arrived on.
type Via string

const (
	// ViaInternal is the team path: the caller must be a non-client member.
	ViaInternal Via = "internal"
	// ViaClient is the portal path: the caller's role must be exactly client.
	ViaClient Via = "client"
)

type ResponseInput struct {
	SlotID   string               `json:"slot_id"`
	Response domain.ResponseValue `json:"response"`
}

type SubmitInput struct {
	ProposalID string
	ActorID    string
	Via        Via
	Responses  []ResponseInput
}

type SubmitResult struct {
	UpdatedCount int `json:"updated_count"`
}

// SubmitResponses records the caller's availability for one or more slots.
// Each (slot, respondent) pair is upserted, so resubmitting a batch leaves
// the same stored state and reports the same count.
func (e Engine) SubmitResponses(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	p, err := e.loadProposal(ctx, tx, in.ProposalID)
	if err != nil {
		return SubmitResult{}, err
	}
	maxBatch := e.config().Negotiation.MaxBatch
	if n := len(in.Responses); n < 1 || n > maxBatch {
		return SubmitResult{}, invalid(CodeInvalidBatch, fmt.Sprintf("submit between 1 and %d responses", maxBatch), map[string]any{"count": n})
	}
	seen := make(map[string]struct{}, len(in.Responses))
	for _, r := range in.Responses {
		if _, dup := seen[r.SlotID]; dup {
			return SubmitResult{}, invalid(CodeDuplicateSlot, fmt.Sprintf("slot %s appears more than once", r.SlotID), map[string]any{"slot_id": r.SlotID})
		}
		seen[r.SlotID] = struct{}{}
	}
	for _, r := range in.Responses {
		if !r.Response.Valid() {
			return SubmitResult{}, invalid(CodeInvalidResponse, fmt.Sprintf("unknown response %q", r.Response), map[string]any{"slot_id": r.SlotID})
		}
	}
	if p.Status != domain.StatusOpen {
		return SubmitResult{}, notOpen(p)
	}
	now := e.now()
	if p.IsExpired(now) {
		return SubmitResult{}, conflict(CodeProposalExpired, "proposal has expired", map[string]any{"expires_at": p.ExpiresAt})
	}

	action := "respond to proposal " + p.ID
	switch in.Via {
	case ViaClient:
		err = e.Auth.RequireClient(ctx, tx, p.SpaceID, in.ActorID, action)
	default:
		err = e.Auth.RequireInternal(ctx, tx, p.SpaceID, in.ActorID, action)
	}
	if err != nil {
		return SubmitResult{}, authErr(err)
	}
	respondent, err := e.Repo.GetRespondentByActorTx(ctx, tx, p.ID, in.ActorID)
	if errors.Is(err, repo.ErrNotFound) {
		return SubmitResult{}, &Error{Kind: KindForbidden, Code: CodeNotRespondent, Message: fmt.Sprintf("actor %s is not a respondent on proposal %s", in.ActorID, p.ID)}
	}
	if err != nil {
		return SubmitResult{}, internal("load respondent", err)
	}

	slots, err := e.Repo.ListSlotsTx(ctx, tx, p.ID)
	if err != nil {
		return SubmitResult{}, internal("load slots", err)
	}
	own := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		own[s.ID] = struct{}{}
	}
	var foreign []string
	for _, r := range in.Responses {
		if _, ok := own[r.SlotID]; !ok {
			foreign = append(foreign, r.SlotID)
		}
	}
	if len(foreign) > 0 {
		return SubmitResult{}, invalid(CodeSlotNotInProp, "slots do not belong to this proposal", map[string]any{"slot_ids": foreign})
	}

	rows := make([]domain.Response, len(in.Responses))
	for i, r := range in.Responses {
		rows[i] = domain.Response{SlotID: r.SlotID, RespondentID: respondent.ID, Value: r.Response, RespondedAt: now.UTC()}
	}
	if err := e.Repo.UpsertResponses(ctx, tx, rows); err != nil {
		return SubmitResult{}, internal("store responses", err)
	}
	if err := e.appendEvent(ctx, tx, events.ResponsesSubmitted, p.SpaceID, "proposal", p.ID, in.ActorID, events.EventPayload{
		"respondent_id": respondent.ID,
		"side":          string(respondent.Side),
		"count":         len(rows),
	}); err != nil {
		return SubmitResult{}, err
	}
	if err := commit(tx); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{UpdatedCount: len(rows)}, nil
}
