package domain

import "time"

type ProposalStatus string

const (
	StatusOpen      ProposalStatus = "open"
	StatusConfirmed ProposalStatus = "confirmed"
	StatusCancelled ProposalStatus = "cancelled"
)

type Side string

const (
	SideInternal Side = "internal"
	SideClient   Side = "client"
)

func (s Side) Valid() bool {
	return s == SideInternal || s == SideClient
}

type ResponseValue string

const (
	Available             ResponseValue = "available"
	UnavailableButProceed ResponseValue = "unavailable_but_proceed"
	Unavailable           ResponseValue = "unavailable"
)

func (v ResponseValue) Valid() bool {
	switch v {
	case Available, UnavailableButProceed, Unavailable:
		return true
	}
	return false
}

// Agrees reports whether the value counts toward agreement on a slot.
func (v ResponseValue) Agrees() bool {
	return v == Available || v == UnavailableButProceed
}

// Space roles. Owners and admins may confirm or cancel any proposal in the space.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleClient = "client"
)

type Proposal struct {
	ID                string         `json:"id"`
	OrgID             string         `json:"org_id"`
	SpaceID           string         `json:"space_id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	DurationMinutes   int            `json:"duration_minutes"`
	VideoProvider     string         `json:"video_provider,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Status            ProposalStatus `json:"status" enum:"open,confirmed,cancelled"`
	CreatedBy         string         `json:"created_by"`
	ConfirmedSlotID   *string        `json:"confirmed_slot_id,omitempty"`
	MeetingID         *string        `json:"meeting_id,omitempty"`
	MeetingURL        *string        `json:"meeting_url,omitempty"`
	ExternalMeetingID *string        `json:"external_meeting_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IsExpired reports whether the proposal carries an expiry that has passed.
// Expiry is never stored as a status.
func (p Proposal) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

type Slot struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	SortOrder  int       `json:"sort_order"`
}

type Respondent struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	ActorID    string `json:"actor_id"`
	Side       Side   `json:"side" enum:"internal,client"`
	Required   bool   `json:"required"`
}

type Response struct {
	SlotID       string        `json:"slot_id"`
	RespondentID string        `json:"respondent_id"`
	Value        ResponseValue `json:"response" enum:"available,unavailable_but_proceed,unavailable"`
	RespondedAt  time.Time     `json:"responded_at"`
}

type Meeting struct {
	ID                string    `json:"id"`
	ProposalID        string    `json:"proposal_id"`
	SpaceID           string    `json:"space_id"`
	Title             string    `json:"title"`
	StartAt           time.Time `json:"start_at"`
	EndAt             time.Time `json:"end_at"`
	MeetingURL        *string   `json:"meeting_url,omitempty"`
	ExternalMeetingID *string   `json:"external_meeting_id,omitempty"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

type Space struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type SpaceMember struct {
	SpaceID string `json:"space_id"`
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"owner,admin,member,client"`
}

type Profile struct {
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SpaceID    string `json:"space_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
