package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"slotline/internal/config"
	"slotline/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

type WebhookSink struct {
	hook   config.WebhookConfig
	filter eventFilter
	client *http.Client
}

func NewWebhookSink(hook config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{
		hook:   hook,
		filter: newEventFilter(hook.Events),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.hook.URL }

func (s *WebhookSink) Accepts(eventType string) bool { return s.filter.match(eventType) }

// Envelope is the JSON body posted to webhooks.
type Envelope struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	SpaceID    string          `json:"space_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func envelope(evt domain.Event) Envelope {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return Envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		SpaceID:    evt.SpaceID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(envelope(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slotline-Event", evt.Type)
	req.Header.Set("X-Slotline-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.SpaceID != "" {
		req.Header.Set("X-Slotline-Space", evt.SpaceID)
	}
	if strings.TrimSpace(s.hook.Secret) != "" {
		req.Header.Set("X-Slotline-Secret", s.hook.Secret)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
