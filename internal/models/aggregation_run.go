package models

import (
	"fmt"
	"time"
)

// Response outcome constants
const (
	OutcomeParsed   = "parsed"   // at least one record extracted
	OutcomeNegative = "negative" // upstream stated explicitly that nothing was found
	OutcomeEmpty    = "empty"    // no strategy found anything
	OutcomeFailed   = "failed"   // parsing panicked
)

// Merge kind constants
const (
	MergeExact = "exact"
	MergeFuzzy = "fuzzy"
)

// ResponseOutcome describes what happened to one upstream response
type ResponseOutcome struct {
	Index    int    `json:"index"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"` // context category used for parsing
	Outcome  string `json:"outcome"`
	Strategy string `json:"strategy,omitempty"`
	Records  int    `json:"records"`
	Warnings int    `json:"warnings"`
	Error    string `json:"error,omitempty"`
}

// AggregationReport summarises one aggregate call for diagnostics
type AggregationReport struct {
	Responses      []ResponseOutcome `json:"responses"`
	Candidates     int               `json:"candidates"`
	Records        int               `json:"records"`
	Failures       int               `json:"failures"`
	Negatives      int               `json:"negatives"`
	Warnings       int               `json:"warnings"`
	WarningDensity float64           `json:"warningDensity"` // warnings per candidate
	Strategies     map[string]int    `json:"strategies"`     // candidates by winning strategy
	ExactMerges    int               `json:"exactMerges"`
	FuzzyMerges    int               `json:"fuzzyMerges"`
}

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusPartial   = "partial"
)

// Trigger type constants
const (
	TriggerTypeScheduled = "scheduled"
	TriggerTypeManual    = "manual"
	TriggerTypeQueue     = "queue"
)

// AggregationRun represents one refresh of a city and day across all sources
type AggregationRun struct {
	ID          string    `json:"id"`
	City        string    `json:"city"`
	Date        string    `json:"date"`
	Categories  []string  `json:"categories"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	Duration    int64     `json:"duration,omitempty"` // milliseconds
	Status      string    `json:"status"`             // running|completed|failed|partial

	// Source results
	QueriesSent     int `json:"queriesSent"`
	QueriesAnswered int `json:"queriesAnswered"`
	VenuesScraped   int `json:"venuesScraped"`
	VenueFailures   int `json:"venueFailures"`
	ScrapedEvents   int `json:"scrapedEvents"`
	TotalEvents     int `json:"totalEvents"`
	ShardsWritten   int `json:"shardsWritten"`

	Report AggregationReport `json:"report"`

	// Error summary
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	TriggerType     string `json:"triggerType"` // scheduled|manual|queue
	LambdaRequestID string `json:"lambdaRequestId,omitempty"`
}

// NewAggregationRun starts a run record
func NewAggregationRun(city, date string, categories []string, trigger string, now time.Time) *AggregationRun {
	return &AggregationRun{
		ID:          GenerateRunID(now),
		City:        city,
		Date:        date,
		Categories:  categories,
		StartedAt:   now.UTC(),
		Status:      RunStatusRunning,
		TriggerType: trigger,
	}
}

// Complete finalises the run status from its recorded errors
func (r *AggregationRun) Complete(now time.Time) {
	r.CompletedAt = now.UTC()
	r.Duration = r.CompletedAt.Sub(r.StartedAt).Milliseconds()
	switch {
	case len(r.Errors) == 0:
		r.Status = RunStatusCompleted
	case r.TotalEvents > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
}

// AddError records a non-fatal failure
func (r *AggregationRun) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// RefreshTask is the queue message asking for one city and day to be refreshed
type RefreshTask struct {
	TaskID     string    `json:"task_id"`
	City       string    `json:"city"`
	Date       string    `json:"date"`
	Categories []string  `json:"categories,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields required to execute a task
func (t *RefreshTask) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if t.City == "" {
		return fmt.Errorf("city is required")
	}
	if t.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return nil
}
