package slotlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Slotline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v1",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type Respondent struct {
	ActorID  string `json:"actor_id"`
	Side     string `json:"side"`
	Required *bool  `json:"required,omitempty"`
}

type CreateProposal struct {
	Title           string       `json:"title"`
	Description     string       `json:"description,omitempty"`
	DurationMinutes int          `json:"duration_minutes"`
	VideoProvider   string       `json:"video_provider,omitempty"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	Slots           []Slot       `json:"slots,omitempty"`
	Respondents     []Respondent `json:"respondents"`
}

// Proposal represents the API proposal model (partial).
type Proposal struct {
	ID         string     `json:"id"`
	SpaceID    string     `json:"space_id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MeetingID  *string    `json:"meeting_id,omitempty"`
	MeetingURL *string    `json:"meeting_url,omitempty"`
	CreatedBy  string     `json:"created_by"`
}

type SlotResponse struct {
	SlotID       string `json:"slot_id"`
	RespondentID string `json:"respondent_id"`
	ActorID      string `json:"actor_id"`
	DisplayName  string `json:"display_name"`
	Response     string `json:"response"`
}

type DetailSlot struct {
	ID        string         `json:"id"`
	StartAt   time.Time      `json:"start_at"`
	EndAt     time.Time      `json:"end_at"`
	Responses []SlotResponse `json:"responses"`
	Agreed    bool           `json:"agreed"`
}

type DetailRespondent struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	Side        string `json:"side"`
	Required    bool   `json:"required"`
	DisplayName string `json:"display_name"`
}

type ProposalDetail struct {
	Proposal    Proposal           `json:"proposal"`
	Expired     bool               `json:"expired"`
	Slots       []DetailSlot       `json:"slots"`
	Respondents []DetailRespondent `json:"respondents"`
}

type Answer struct {
	SlotID   string `json:"slot_id"`
	Response string `json:"response"`
}

type Confirmation struct {
	ProposalID        string    `json:"proposal_id"`
	MeetingID         string    `json:"meeting_id"`
	SlotStart         time.Time `json:"slot_start"`
	SlotEnd           time.Time `json:"slot_end"`
	MeetingURL        *string   `json:"meeting_url,omitempty"`
	ExternalMeetingID *string   `json:"external_meeting_id,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SpaceID    string `json:"space_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError carries the decoded error envelope when the server returned one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProposal creates a proposal in a space.
func (c *Client) CreateProposal(ctx context.Context, spaceID string, in CreateProposal) (Proposal, error) {
	var resp Proposal
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("spaces/%s/proposals", url.PathEscape(spaceID)), in, &resp)
	return resp, err
}

// ListProposals lists proposals in a space; status may be empty.
func (c *Client) ListProposals(ctx context.Context, spaceID, status string) ([]Proposal, error) {
	endpoint := fmt.Sprintf("spaces/%s/proposals", url.PathEscape(spaceID))
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Proposal `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) GetProposal(ctx context.Context, proposalID string) (ProposalDetail, error) {
	var resp ProposalDetail
	err := c.do(ctx, http.MethodGet, "proposals/"+url.PathEscape(proposalID), nil, &resp)
	return resp, err
}

// Respond submits answers as an internal member. Set client to use the
// portal path instead.
func (c *Client) Respond(ctx context.Context, proposalID string, client bool, answers []Answer) (int, error) {
	endpoint := fmt.Sprintf("proposals/%s/responses", url.PathEscape(proposalID))
	if client {
		endpoint = "portal/" + endpoint
	}
	var resp struct {
		UpdatedCount int `json:"updated_count"`
	}
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"responses": answers}, &resp)
	return resp.UpdatedCount, err
}

func (c *Client) Confirm(ctx context.Context, proposalID, slotID string) (Confirmation, error) {
	var resp Confirmation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("proposals/%s/confirm", url.PathEscape(proposalID)), map[string]string{"slot_id": slotID}, &resp)
	return resp, err
}

func (c *Client) Cancel(ctx context.Context, proposalID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("proposals/%s/cancel", url.PathEscape(proposalID)), nil, nil)
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
