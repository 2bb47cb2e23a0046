package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotline/internal/domain"
	"slotline/internal/events"
	"slotline/internal/repo"
	"slotline/internal/slotgen"
)

type SlotInput struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type RespondentInput struct {
	ActorID string      `json:"actor_id"`
	Side    domain.Side `json:"side"`
	// Required defaults to true.
	Required *bool `json:"required,omitempty"`
}

// GenerateInput seeds a proposal's slots from free/busy data instead of an
// explicit list.
type GenerateInput struct {
	Busy    []slotgen.Interval
	Options slotgen.Options
}

type CreateInput struct {
	ID              string
	SpaceID         string
	ActorID         string
	Title           string
	Description     string
	DurationMinutes int
	VideoProvider   string
	ExpiresAt       *time.Time
	Slots           []SlotInput
	Respondents     []RespondentInput
	GenerateFrom    *GenerateInput
}

// GenerateSlots runs the slot generator with unset options taken from the
// scheduling config.
func (e Engine) GenerateSlots(busy []slotgen.Interval, opts slotgen.Options) []slotgen.Candidate {
	return slotgen.Generate(busy, e.schedulingOptions(opts))
}

func (e Engine) schedulingOptions(opts slotgen.Options) slotgen.Options {
	s := e.config().Scheduling
	if opts.BusinessHourStart == nil {
		h := s.BusinessHourStart
		opts.BusinessHourStart = &h
	}
	if opts.BusinessHourEnd == nil {
		h := s.BusinessHourEnd
		opts.BusinessHourEnd = &h
	}
	if opts.StepMinutes == 0 {
		opts.StepMinutes = s.StepMinutes
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = s.MaxResults
	}
	if opts.Location == nil {
		if loc, err := e.config().Location(); err == nil {
			opts.Location = loc
		}
	}
	return opts
}

// CreateProposal stores a proposal with its slots and respondents in one
// transaction. Only non-client members of the space may create proposals,
// and the caller is checked before the payload.
func (e Engine) CreateProposal(ctx context.Context, in CreateInput) (domain.Proposal, error) {
	cfg := e.config()
	space, err := e.Repo.GetSpace(ctx, in.SpaceID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Proposal{}, notFound(CodeSpaceNotFound, fmt.Sprintf("space %s not found", in.SpaceID))
	}
	if err != nil {
		return domain.Proposal{}, internal("load space", err)
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()

	if err := e.Auth.RequireInternal(ctx, tx, space.ID, in.ActorID, "create proposals"); err != nil {
		return domain.Proposal{}, authErr(err)
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Proposal{}, invalid(CodeInvalidArgument, "title is required", nil)
	}
	if in.DurationMinutes <= 0 {
		return domain.Proposal{}, invalid(CodeInvalidArgument, "duration_minutes must be positive", nil)
	}
	if in.VideoProvider != "" && !e.Video.Has(in.VideoProvider) {
		return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("video provider %s is not configured", in.VideoProvider), nil)
	}
	slots := in.Slots
	if len(slots) == 0 && in.GenerateFrom != nil {
		opts := in.GenerateFrom.Options
		opts.DurationMinutes = in.DurationMinutes
		for _, c := range e.GenerateSlots(in.GenerateFrom.Busy, opts) {
			if len(slots) == cfg.Negotiation.MaxSlots {
				break
			}
			slots = append(slots, SlotInput{StartAt: c.StartAt, EndAt: c.EndAt})
		}
		if len(slots) == 0 {
			return domain.Proposal{}, invalid(CodeNoCandidates, "no free slots in the requested range", nil)
		}
	}
	if len(slots) == 0 {
		return domain.Proposal{}, invalid(CodeInvalidArgument, "at least one slot is required", nil)
	}
	if len(slots) > cfg.Negotiation.MaxSlots {
		return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("at most %d slots allowed", cfg.Negotiation.MaxSlots), nil)
	}
	for i, s := range slots {
		if !s.EndAt.After(s.StartAt) {
			return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("slot %d ends before it starts", i), nil)
		}
	}
	if len(in.Respondents) == 0 {
		return domain.Proposal{}, invalid(CodeInvalidArgument, "at least one respondent is required", nil)
	}
	seen := make(map[string]struct{}, len(in.Respondents))
	for _, r := range in.Respondents {
		if r.ActorID == "" {
			return domain.Proposal{}, invalid(CodeInvalidArgument, "respondent actor_id is required", nil)
		}
		if !r.Side.Valid() {
			return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("respondent %s has invalid side %q", r.ActorID, r.Side), nil)
		}
		if _, dup := seen[r.ActorID]; dup {
			return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("respondent %s listed twice", r.ActorID), nil)
		}
		seen[r.ActorID] = struct{}{}
	}

	for _, r := range in.Respondents {
		role, err := e.Auth.Role(ctx, tx, space.ID, r.ActorID)
		if err != nil {
			return domain.Proposal{}, internal("load respondent role", err)
		}
		if role == "" {
			return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("respondent %s is not a member of space %s", r.ActorID, space.ID), nil)
		}
		if (role == domain.RoleClient) != (r.Side == domain.SideClient) {
			return domain.Proposal{}, invalid(CodeInvalidArgument, fmt.Sprintf("respondent %s has role %s but side %s", r.ActorID, role, r.Side), nil)
		}
	}

	now := e.now().UTC()
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Proposal{
		ID:              id,
		OrgID:           space.OrgID,
		SpaceID:         space.ID,
		Title:           in.Title,
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		VideoProvider:   in.VideoProvider,
		ExpiresAt:       in.ExpiresAt,
		Status:          domain.StatusOpen,
		CreatedBy:       in.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.Repo.InsertProposal(ctx, tx, p); err != nil {
		return domain.Proposal{}, internal("insert proposal", err)
	}
	rows := make([]domain.Slot, len(slots))
	for i, s := range slots {
		rows[i] = domain.Slot{ID: uuid.NewString(), ProposalID: p.ID, StartAt: s.StartAt, EndAt: s.EndAt, SortOrder: i}
	}
	if err := e.Repo.InsertSlots(ctx, tx, rows); err != nil {
		return domain.Proposal{}, internal("insert slots", err)
	}
	respondents := make([]domain.Respondent, len(in.Respondents))
	for i, r := range in.Respondents {
		required := true
		if r.Required != nil {
			required = *r.Required
		}
		respondents[i] = domain.Respondent{ID: uuid.NewString(), ProposalID: p.ID, ActorID: r.ActorID, Side: r.Side, Required: required}
	}
	if err := e.Repo.InsertRespondents(ctx, tx, respondents); err != nil {
		return domain.Proposal{}, internal("insert respondents", err)
	}
	if err := e.appendEvent(ctx, tx, events.ProposalCreated, p.SpaceID, "proposal", p.ID, in.ActorID, events.EventPayload{
		"title":       p.Title,
		"slots":       len(rows),
		"respondents": len(respondents),
	}); err != nil {
		return domain.Proposal{}, err
	}
	if err := commit(tx); err != nil {
		return domain.Proposal{}, err
	}
	e.log().Info("proposal created", "proposal_id", p.ID, "space_id", p.SpaceID, "slots", len(rows))
	return p, nil
}

// ListProposals returns the space's proposals, newest first. Any member may list.
func (e Engine) ListProposals(ctx context.Context, spaceID, actorID string, status domain.ProposalStatus) ([]domain.Proposal, error) {
	switch status {
	case "", domain.StatusOpen, domain.StatusConfirmed, domain.StatusCancelled:
	default:
		return nil, invalid(CodeInvalidArgument, fmt.Sprintf("unknown status %q", status), nil)
	}
	if _, err := e.Auth.RequireMember(ctx, nil, spaceID, actorID, "list proposals"); err != nil {
		return nil, authErr(err)
	}
	res, err := e.Repo.ListProposals(ctx, repo.ProposalFilters{SpaceID: spaceID, Status: string(status)})
	if err != nil {
		return nil, internal("list proposals", err)
	}
	return res, nil
}

// Cancel moves an open proposal to cancelled. The write is conditioned on
// the proposal still being open, so it cannot overwrite a concurrent confirm.
func (e Engine) Cancel(ctx context.Context, proposalID, actorID string) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.loadProposal(ctx, tx, proposalID)
	if err != nil {
		return err
	}
	if err := e.Auth.RequireOrganizer(ctx, tx, p.SpaceID, actorID, p.CreatedBy, "cancel proposal "+p.ID); err != nil {
		return authErr(err)
	}
	if p.Status != domain.StatusOpen {
		return notOpen(p)
	}
	ok, err := e.Repo.CancelProposal(ctx, tx, p.ID, e.now().UTC())
	if err != nil {
		return internal("cancel proposal", err)
	}
	if !ok {
		return conflict(CodeProposalNotOpen, "proposal is no longer open", nil)
	}
	if err := e.appendEvent(ctx, tx, events.ProposalCancelled, p.SpaceID, "proposal", p.ID, actorID, nil); err != nil {
		return err
	}
	if err := commit(tx); err != nil {
		return err
	}
	e.log().Info("proposal cancelled", "proposal_id", p.ID, "actor_id", actorID)
	return nil
}

// loadProposal reads through tx when given, otherwise through the pool.
func (e Engine) loadProposal(ctx context.Context, tx *sql.Tx, proposalID string) (domain.Proposal, error) {
	var (
		p   domain.Proposal
		err error
	)
	if tx != nil {
		p, err = e.Repo.GetProposalTx(ctx, tx, proposalID)
	} else {
		p, err = e.Repo.GetProposal(ctx, proposalID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return p, notFound(CodeProposalNotFound, fmt.Sprintf("proposal %s not found", proposalID))
	}
	if err != nil {
		return p, internal("load proposal", err)
	}
	return p, nil
}

func notOpen(p domain.Proposal) *Error {
	return conflict(CodeProposalNotOpen, fmt.Sprintf("proposal is %s", p.Status), map[string]any{"status": string(p.Status)})
}
