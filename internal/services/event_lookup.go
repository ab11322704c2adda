package services

import (
	"context"
	"errors"
	"fmt"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// Lookup tiers
const (
	TierCache    = "cache"
	TierDynamoDB = "dynamodb"
)

// ShardCache is the cache side of an EventLookup
type ShardCache interface {
	GetShard(ctx context.Context, city, date, category string) ([]models.EventRecord, error)
	PutShard(ctx context.Context, city, date, category string, events []models.EventRecord) error
}

// ShardStore is the persistent side of an EventLookup
type ShardStore interface {
	GetShard(ctx context.Context, city, date, category string) (*models.EventShard, error)
}

// EventLookup serves shards from the cache and falls back to the store,
// writing store hits back into the cache
type EventLookup struct {
	cache  ShardCache
	store  ShardStore
	logger logger.Logger
}

// NewEventLookup creates a lookup; either tier may be nil
func NewEventLookup(cache ShardCache, store ShardStore, log logger.Logger) *EventLookup {
	return &EventLookup{cache: cache, store: store, logger: logger.OrNop(log)}
}

// Lookup returns the events of a city, date and category together with the
// tier that served them. An empty category selects the whole day.
func (l *EventLookup) Lookup(ctx context.Context, city, date, category string) ([]models.EventRecord, string, error) {
	if category == "" {
		category = models.DayBucketCategory
	}

	if l.cache != nil {
		events, err := l.cache.GetShard(ctx, city, date, category)
		switch {
		case err == nil:
			return events, TierCache, nil
		case !errors.Is(err, ErrCacheMiss):
			l.logger.Warn("Cache read failed, falling back to store",
				logger.String("city", city),
				logger.String("date", date),
				logger.Error(err))
		}
	}

	if l.store == nil {
		return nil, "", ErrShardNotFound
	}
	shard, err := l.store.GetShard(ctx, city, date, category)
	if err != nil {
		return nil, "", fmt.Errorf("lookup %s/%s/%s: %w", city, date, category, err)
	}

	if l.cache != nil {
		if err := l.cache.PutShard(ctx, city, date, category, shard.Events); err != nil {
			l.logger.Warn("Failed to backfill cache", logger.Error(err))
		}
	}
	return shard.Events, TierDynamoDB, nil
}
