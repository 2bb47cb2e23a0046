package outbox

import (
	"context"

	"github.com/redis/go-redis/v9"

	"slotline/internal/domain"
)

// StreamAdder is the part of a redis client the stream sink uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends every event to a Redis stream.
type RedisSink struct {
	Client StreamAdder
	Stream string
}

func NewRedisSink(url, stream string) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisSink{Client: redis.NewClient(opt), Stream: stream}, nil
}

func (s *RedisSink) Name() string { return "redis:" + s.Stream }

func (s *RedisSink) Accepts(string) bool { return true }

func (s *RedisSink) Deliver(ctx context.Context, evt domain.Event) error {
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		Values: map[string]interface{}{
			"id":          evt.ID,
			"type":        evt.Type,
			"space_id":    evt.SpaceID,
			"entity_kind": evt.EntityKind,
			"entity_id":   evt.EntityID,
			"actor_id":    evt.ActorID,
			"ts":          evt.TS,
			"payload":     evt.Payload,
		},
	}).Err()
}

// Close releases the underlying client when it owns one.
func (s *RedisSink) Close() error {
	if c, ok := s.Client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
