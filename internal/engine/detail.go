package engine

import (
	"context"

	"slotline/internal/domain"
)

type RespondentDetail struct {
	domain.Respondent
	DisplayName string `json:"display_name"`
}

type ResponseDetail struct {
	domain.Response
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
}

type SlotDetail struct {
	domain.Slot
	Responses []ResponseDetail `json:"responses"`
	// Agreed reports whether the slot could be confirmed with current responses.
	Agreed bool `json:"agreed"`
}

type Detail struct {
	Proposal    domain.Proposal    `json:"proposal"`
	Expired     bool               `json:"expired"`
	Slots       []SlotDetail       `json:"slots"`
	Respondents []RespondentDetail `json:"respondents"`
}

// GetDetail returns the proposal aggregate to any member of its space.
// Display names come from a single profile lookup; actors without a profile
// are shown by id.
func (e Engine) GetDetail(ctx context.Context, proposalID, actorID string) (Detail, error) {
	p, err := e.loadProposal(ctx, nil, proposalID)
	if err != nil {
		return Detail{}, err
	}
	if _, err := e.Auth.RequireMember(ctx, nil, p.SpaceID, actorID, "view proposal "+p.ID); err != nil {
		return Detail{}, authErr(err)
	}
	slots, err := e.Repo.ListSlots(ctx, p.ID)
	if err != nil {
		return Detail{}, internal("load slots", err)
	}
	respondents, err := e.Repo.ListRespondents(ctx, p.ID)
	if err != nil {
		return Detail{}, internal("load respondents", err)
	}
	responses, err := e.Repo.ListResponses(ctx, p.ID)
	if err != nil {
		return Detail{}, internal("load responses", err)
	}
	ids := make([]string, len(respondents))
	for i, r := range respondents {
		ids[i] = r.ActorID
	}
	profiles, err := e.Repo.ListProfiles(ctx, ids)
	if err != nil {
		return Detail{}, internal("load profiles", err)
	}
	name := func(actorID string) string {
		if prof, ok := profiles[actorID]; ok && prof.DisplayName != "" {
			return prof.DisplayName
		}
		return actorID
	}

	d := Detail{
		Proposal:    p,
		Expired:     p.IsExpired(e.now()),
		Slots:       make([]SlotDetail, len(slots)),
		Respondents: make([]RespondentDetail, len(respondents)),
	}
	byID := make(map[string]domain.Respondent, len(respondents))
	for i, r := range respondents {
		byID[r.ID] = r
		d.Respondents[i] = RespondentDetail{Respondent: r, DisplayName: name(r.ActorID)}
	}
	bySlot := make(map[string][]domain.Response, len(slots))
	for _, r := range responses {
		bySlot[r.SlotID] = append(bySlot[r.SlotID], r)
	}
	for i, s := range slots {
		sd := SlotDetail{Slot: s, Responses: []ResponseDetail{}}
		for _, r := range bySlot[s.ID] {
			actor := byID[r.RespondentID].ActorID
			sd.Responses = append(sd.Responses, ResponseDetail{Response: r, ActorID: actor, DisplayName: name(actor)})
		}
		sd.Agreed = len(missingAgreement(respondents, bySlot[s.ID])) == 0
		d.Slots[i] = sd
	}
	return d, nil
}
