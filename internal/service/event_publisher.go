package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
)

// EventPublisher fans session events out to monitors and collaborators.
// Publishing is best effort and never fails the calling operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SessionEvent)
}

// RedisEventPublisher publishes events on the per-test monitor channel.
type RedisEventPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client, log zerolog.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, ev model.SessionEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode session event")
		return
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(ev.TestID), data).Err(); err != nil {
		p.log.Warn().Err(err).
			Str("type", string(ev.Type)).
			Str("session_id", ev.SessionID.String()).
			Msg("Failed to publish session event")
	}
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.SessionEvent) {}
