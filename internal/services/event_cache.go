package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"where2go-events/internal/config"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// ErrEmptyAddress is returned when the Redis address is not configured
var ErrEmptyAddress = errors.New("redis address is required")

// ErrCacheMiss is returned when a shard is not cached
var ErrCacheMiss = errors.New("events not cached")

const (
	cacheKeyPrefix    = "events:"
	connectionTimeout = 5 * time.Second
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.CacheConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// EventCache keeps per-category shards and the whole-day bucket of a city
// and date in Redis. A set per day indexes the cached categories.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewEventCache creates a cache writing entries with ttl
func NewEventCache(client *redis.Client, ttl time.Duration, log logger.Logger) *EventCache {
	return &EventCache{client: client, ttl: ttl, logger: logger.OrNop(log)}
}

// ShardKey is the key of one (city, date, category) shard
func ShardKey(city, date, category string) string {
	return cacheKeyPrefix + models.NormalizeCity(city) + ":" + date + ":" + category
}

// CategoryIndexKey is the key of the set of categories cached for a day
func CategoryIndexKey(city, date string) string {
	return cacheKeyPrefix + models.NormalizeCity(city) + ":" + date + ":categories"
}

// PutShard stores the events of one category and indexes it
func (c *EventCache) PutShard(ctx context.Context, city, date, category string, events []models.EventRecord) error {
	if events == nil {
		events = []models.EventRecord{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal shard: %w", err)
	}

	indexKey := CategoryIndexKey(city, date)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ShardKey(city, date, category), data, c.ttl)
		pipe.SAdd(ctx, indexKey, category)
		pipe.Expire(ctx, indexKey, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache shard %s: %w", ShardKey(city, date, category), err)
	}
	return nil
}

// GetShard returns the cached events of one category or ErrCacheMiss
func (c *EventCache) GetShard(ctx context.Context, city, date, category string) ([]models.EventRecord, error) {
	data, err := c.client.Get(ctx, ShardKey(city, date, category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shard: %w", err)
	}

	var events []models.EventRecord
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shard: %w", err)
	}
	return events, nil
}

// PutDay stores every category shard of records plus the day bucket. Queried
// categories without records get an empty shard so an earlier refresh cannot
// leave stale events behind. It returns the number of shards written including
// the day bucket.
func (c *EventCache) PutDay(ctx context.Context, city, date string, categories []string, records []models.EventRecord) (int, error) {
	shards, order := models.GroupByShard(records, categories)

	written := 0
	var errs []error
	for _, category := range order {
		if err := c.PutShard(ctx, city, date, category, shards[category]); err != nil {
			errs = append(errs, err)
			continue
		}
		written++
	}
	if err := c.PutShard(ctx, city, date, models.DayBucketCategory, records); err != nil {
		errs = append(errs, err)
	} else {
		written++
	}

	c.logger.Debug("Cached day",
		logger.String("city", city),
		logger.String("date", date),
		logger.Int("shards", written))
	return written, errors.Join(errs...)
}

// GetDay returns the cached day bucket or ErrCacheMiss
func (c *EventCache) GetDay(ctx context.Context, city, date string) ([]models.EventRecord, error) {
	return c.GetShard(ctx, city, date, models.DayBucketCategory)
}

// Categories lists the cached categories of a day, sorted, without the day bucket
func (c *EventCache) Categories(ctx context.Context, city, date string) ([]string, error) {
	members, err := c.client.SMembers(ctx, CategoryIndexKey(city, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read category index: %w", err)
	}

	out := make([]string, 0, len(members))
	for _, m := range members {
		if m != models.DayBucketCategory {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close closes the Redis connection
func (c *EventCache) Close() error {
	return c.client.Close()
}
