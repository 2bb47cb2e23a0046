package server

import (
	"time"

	"slotline/internal/domain"
	"slotline/internal/engine"
	"slotline/internal/slotgen"
)

// Request payloads

type IntervalRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type GenerateSlotsRequest struct {
	Busy              []IntervalRequest `json:"busy,omitempty"`
	StartDate         string            `json:"start_date" example:"2024-01-01"`
	EndDate           string            `json:"end_date" example:"2024-01-05"`
	DurationMinutes   int               `json:"duration_minutes,omitempty" doc:"Ignored when seeding a proposal; the proposal duration is used"`
	BusinessHourStart *int              `json:"business_hour_start,omitempty"`
	BusinessHourEnd   *int              `json:"business_hour_end,omitempty"`
	StepMinutes       int               `json:"step_minutes,omitempty"`
	MaxResults        int               `json:"max_results,omitempty"`
	Timezone          string            `json:"timezone,omitempty" example:"Asia/Tokyo"`
}

type SlotRequest struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type RespondentRequest struct {
	ActorID  string `json:"actor_id"`
	Side     string `json:"side" example:"client"`
	Required *bool  `json:"required,omitempty"`
}

type CreateProposalRequest struct {
	ID              string                `json:"id,omitempty"`
	Title           string                `json:"title"`
	Description     string                `json:"description,omitempty"`
	DurationMinutes int                   `json:"duration_minutes"`
	VideoProvider   string                `json:"video_provider,omitempty"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	Slots           []SlotRequest         `json:"slots,omitempty"`
	Respondents     []RespondentRequest   `json:"respondents"`
	Generate        *GenerateSlotsRequest `json:"generate,omitempty" doc:"Seed slots from free/busy data when slots is empty"`
}

type ResponseItem struct {
	SlotID   string `json:"slot_id"`
	Response string `json:"response" example:"available"`
}

type SubmitResponsesRequest struct {
	Responses []ResponseItem `json:"responses"`
}

type ConfirmRequest struct {
	SlotID string `json:"slot_id"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type CandidateResponse struct {
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	DayOfWeek int       `json:"day_of_week"`
	DateKey   string    `json:"date_key"`
}

type GenerateSlotsResponse struct {
	Slots []CandidateResponse `json:"slots"`
}

type ProposalList struct {
	Items []domain.Proposal `json:"items"`
}

type SubmitResponsesResponse struct {
	OK           bool `json:"ok"`
	UpdatedCount int  `json:"updated_count"`
}

type ConfirmResponse struct {
	OK                bool      `json:"ok"`
	ProposalID        string    `json:"proposal_id"`
	MeetingID         string    `json:"meeting_id"`
	SlotStart         time.Time `json:"slot_start"`
	SlotEnd           time.Time `json:"slot_end"`
	MeetingURL        *string   `json:"meeting_url,omitempty"`
	ExternalMeetingID *string   `json:"external_meeting_id,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SpaceID    string `json:"space_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func intervals(in []IntervalRequest) []slotgen.Interval {
	out := make([]slotgen.Interval, len(in))
	for i, b := range in {
		out[i] = slotgen.Interval{Start: b.Start, End: b.End}
	}
	return out
}

func candidateResponses(in []slotgen.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, len(in))
	for i, c := range in {
		out[i] = CandidateResponse{StartAt: c.StartAt, EndAt: c.EndAt, DayOfWeek: c.DayOfWeek, DateKey: c.DateKey}
	}
	return out
}

func responseInputs(in []ResponseItem) []engine.ResponseInput {
	out := make([]engine.ResponseInput, len(in))
	for i, r := range in {
		out[i] = engine.ResponseInput{SlotID: r.SlotID, Response: domain.ResponseValue(r.Response)}
	}
	return out
}

func confirmResponse(res engine.ConfirmResult) ConfirmResponse {
	return ConfirmResponse{
		OK:                true,
		ProposalID:        res.ProposalID,
		MeetingID:         res.MeetingID,
		SlotStart:         res.SlotStart,
		SlotEnd:           res.SlotEnd,
		MeetingURL:        res.MeetingURL,
		ExternalMeetingID: res.ExternalMeetingID,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SpaceID:    e.SpaceID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}
