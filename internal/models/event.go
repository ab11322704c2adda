package models

import "time"

// EventsOutput represents the JSON snapshot written for one city and day
type EventsOutput struct {
	Metadata EventsMetadata `json:"metadata"`
	Events   []EventRecord  `json:"events"`
}

// EventsMetadata contains metadata about an events snapshot
type EventsMetadata struct {
	City        string    `json:"city"`
	Date        string    `json:"date"`
	LastUpdated time.Time `json:"lastUpdated"`
	TotalEvents int       `json:"totalEvents"`
	Categories  []string  `json:"categories"`
	Sources     []string  `json:"sources"`
	RunID       string    `json:"runId,omitempty"`
	Version     string    `json:"version"`
}

// EventRecord is the canonical normalized representation of one real-world event
type EventRecord struct {
	Title    string `json:"title" dynamodbav:"title"`
	Category string `json:"category" dynamodbav:"category"`
	Date     string `json:"date" dynamodbav:"date"` // YYYY-MM-DD
	Time     string `json:"time" dynamodbav:"time"` // HH:mm or AllDayTime
	Venue    string `json:"venue" dynamodbav:"venue"`

	Address     string `json:"address,omitempty" dynamodbav:"address,omitempty"`
	Price       string `json:"price,omitempty" dynamodbav:"price,omitempty"`
	Website     string `json:"website,omitempty" dynamodbav:"website,omitempty"`
	BookingLink string `json:"bookingLink,omitempty" dynamodbav:"booking_link,omitempty"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty" dynamodbav:"image_url,omitempty"`

	// Diagnostics and provenance
	ParsingWarning string `json:"parsingWarning,omitempty" dynamodbav:"parsing_warning,omitempty"`
	Source         string `json:"source,omitempty" dynamodbav:"source,omitempty"` // rss|ai|scraper or a comma-joined union
}

// QueryResult is one upstream query together with the raw text it produced
type QueryResult struct {
	Query     string `json:"query"`
	Response  string `json:"response"`
	Category  string `json:"category,omitempty"` // explicit category, wins over the one derived from Query
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Source tag constants
const (
	SourceRSS     = "rss"
	SourceAI      = "ai"
	SourceScraper = "scraper"
)

// AllDayTime is the time sentinel for events without a start time
const AllDayTime = "ganztags"

// HasMeaningfulField reports whether the record carries enough data to be kept
// when its title is missing.
func (e EventRecord) HasMeaningfulField() bool {
	return e.Venue != "" || e.Address != "" || e.Website != "" || e.BookingLink != ""
}

// IsEmpty reports whether no field at all is set
func (e EventRecord) IsEmpty() bool {
	return e == EventRecord{}
}

// FilterByDate returns the records whose date equals date. Records without a
// date are kept when keepUndated is set.
func FilterByDate(records []EventRecord, date string, keepUndated bool) []EventRecord {
	out := make([]EventRecord, 0, len(records))
	for _, r := range records {
		if r.Date == date || (keepUndated && r.Date == "") {
			out = append(out, r)
		}
	}
	return out
}

// GroupByCategory splits records into per-category shards preserving order
func GroupByCategory(records []EventRecord) (map[string][]EventRecord, []string) {
	shards := make(map[string][]EventRecord)
	var order []string
	for _, r := range records {
		if _, ok := shards[r.Category]; !ok {
			order = append(order, r.Category)
		}
		shards[r.Category] = append(shards[r.Category], r)
	}
	return shards, order
}

// GroupByShard is GroupByCategory over the queried categories: every entry
// of categories gets a shard, empty when no record carries it, so a refresh
// replaces what an earlier run stored for it. Record categories outside
// categories follow in order of first appearance.
func GroupByShard(records []EventRecord, categories []string) (map[string][]EventRecord, []string) {
	shards, found := GroupByCategory(records)

	order := make([]string, 0, len(categories)+len(found))
	seen := make(map[string]bool, len(categories)+len(found))
	for _, c := range append(append([]string(nil), categories...), found...) {
		if c == "" || c == DayBucketCategory || seen[c] {
			continue
		}
		seen[c] = true
		order = append(order, c)
		if _, ok := shards[c]; !ok {
			shards[c] = []EventRecord{}
		}
	}
	return shards, order
}

// NewEventsMetadata creates metadata for an events snapshot
func NewEventsMetadata(city, date, runID string, records []EventRecord) EventsMetadata {
	_, categories := GroupByCategory(records)
	seen := make(map[string]bool)
	var sources []string
	for _, r := range records {
		for _, s := range SplitSources(r.Source) {
			if !seen[s] {
				seen[s] = true
				sources = append(sources, s)
			}
		}
	}
	return EventsMetadata{
		City:        city,
		Date:        date,
		LastUpdated: time.Now().UTC(),
		TotalEvents: len(records),
		Categories:  categories,
		Sources:     sources,
		RunID:       runID,
		Version:     "1.0.0",
	}
}
