package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"slotline/internal/config"
)

const defaultTimeout = 10 * time.Second

// ErrUnknownProvider is returned by Registry.Get for unconfigured names.
var ErrUnknownProvider = errors.New("video provider not configured")

type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RoomRequest struct {
	// IdempotencyKey is stable for a (proposal, slot) pair so a retried
	// confirmation never creates a second room.
	IdempotencyKey string        `json:"-"`
	Title          string        `json:"title"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	Participants   []Participant `json:"participants"`
}

type Room struct {
	URL        string `json:"url"`
	ExternalID string `json:"external_id"`
}

// Provider creates a video room for a confirmed meeting.
type Provider interface {
	CreateRoom(ctx context.Context, req RoomRequest) (Room, error)
}

// Registry maps provider names, as stored on proposals, to clients.
type Registry map[string]Provider

func (r Registry) Get(name string) (Provider, error) {
	p, ok := r[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// NewRegistry builds HTTP providers from config. Tokens are read from the
// environment variable each provider names.
func NewRegistry(providers map[string]config.VideoProvider) Registry {
	reg := make(Registry, len(providers))
	for name, p := range providers {
		timeout := defaultTimeout
		if p.TimeoutSeconds > 0 {
			timeout = time.Duration(p.TimeoutSeconds) * time.Second
		}
		var token string
		if p.TokenEnv != "" {
			token = os.Getenv(p.TokenEnv)
		}
		reg[name] = &HTTPProvider{
			Name:     name,
			Endpoint: p.Endpoint,
			Token:    token,
			Client:   &http.Client{Timeout: timeout},
		}
	}
	return reg
}

// HTTPProvider posts a RoomRequest as JSON and expects a Room back.
type HTTPProvider struct {
	Name     string
	Endpoint string
	Token    string
	Client   *http.Client
}

func (p *HTTPProvider) CreateRoom(ctx context.Context, req RoomRequest) (Room, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Room{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(data))
	if err != nil {
		return Room{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	if p.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.Token)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return Room{}, fmt.Errorf("%s: %w", p.Name, err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Room{}, fmt.Errorf("%s: status %d: %s", p.Name, res.StatusCode, strings.TrimSpace(string(body)))
	}
	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return Room{}, fmt.Errorf("%s: decode room: %w", p.Name, err)
	}
	if room.URL == "" {
		return Room{}, fmt.Errorf("%s: response missing url", p.Name)
	}
	return room, nil
}
