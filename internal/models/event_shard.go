package models

import (
	"fmt"
	"strings"
	"time"
)

// DayBucketCategory is the pseudo-category of the shard holding a whole day
const DayBucketCategory = "all"

// Key prefixes for the events table
const (
	CityDatePrefix = "CITY#"
	CategoryPrefix = "CAT#"
)

// EventShard is one (city, date, category) slice of events as stored in the events table
type EventShard struct {
	// Primary Keys
	PK string `json:"PK" dynamodbav:"PK"` // CITY#{city}#DATE#{date}
	SK string `json:"SK" dynamodbav:"SK"` // CAT#{category}

	City     string        `json:"city" dynamodbav:"city"`
	Date     string        `json:"date" dynamodbav:"date"`
	Category string        `json:"category" dynamodbav:"category"`
	Events   []EventRecord `json:"events" dynamodbav:"events"`
	Count    int           `json:"count" dynamodbav:"count"`
	RunID    string        `json:"run_id,omitempty" dynamodbav:"run_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // TTL attribute, epoch seconds
}

// NewEventShard builds a shard item with its keys and TTL filled in
func NewEventShard(city, date, category string, events []EventRecord, ttl time.Duration, now time.Time) EventShard {
	return EventShard{
		PK:        CreateCityDatePK(city, date),
		SK:        CreateCategorySK(category),
		City:      NormalizeCity(city),
		Date:      date,
		Category:  category,
		Events:    events,
		Count:     len(events),
		UpdatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

// Validate checks the fields required to store a shard
func (s *EventShard) Validate() error {
	if s.City == "" {
		return fmt.Errorf("city is required")
	}
	if s.Date == "" {
		return fmt.Errorf("date is required")
	}
	if s.Category == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// IsExpired reports whether the shard TTL has passed
func (s *EventShard) IsExpired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// NormalizeCity lowercases and trims a city name for use in keys
func NormalizeCity(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), "-")
}

// Helper functions to create primary keys
func CreateCityDatePK(city, date string) string {
	return CityDatePrefix + NormalizeCity(city) + "#DATE#" + date
}

func CreateCategorySK(category string) string {
	return CategoryPrefix + category
}

// CalculateTTL calculates a TTL timestamp for auto-expiring data
func CalculateTTL(now time.Time, duration time.Duration) int64 {
	return now.Add(duration).Unix()
}
