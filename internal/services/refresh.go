package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// EventSource collects upstream responses for a city and day
type EventSource interface {
	FindEvents(ctx context.Context, city, date string, categories []string) ([]models.QueryResult, error)
}

// VenueSource scrapes the configured venues of a city
type VenueSource interface {
	ScrapeAll(ctx context.Context, venues []models.VenueConfig, city string) ([]models.EventRecord, []VenueResult)
}

// DayCache caches the shards of a day
type DayCache interface {
	PutDay(ctx context.Context, city, date string, categories []string, records []models.EventRecord) (int, error)
}

// DayStore persists the shards of a day
type DayStore interface {
	PutDay(ctx context.Context, city, date, runID string, categories []string, records []models.EventRecord) (int, error)
}

// SnapshotStore uploads day snapshots and run reports
type SnapshotStore interface {
	UploadSnapshot(ctx context.Context, city, date, runID string, records []models.EventRecord) (*S3UploadResult, error)
	UploadRun(ctx context.Context, run *models.AggregationRun) (*S3UploadResult, error)
}

// RefreshDeps are the collaborators of a RefreshService. Only Finder and
// Aggregator are required; nil sinks are skipped.
type RefreshDeps struct {
	Finder     EventSource
	Aggregator *Aggregator
	Scraper    VenueSource
	Venues     []models.VenueConfig
	Cache      DayCache
	Store      DayStore
	Snapshots  SnapshotStore
	Metrics    *AggregationMetrics

	Categories     []string // default query categories
	IncludeUndated bool     // keep scraped events without a date
	Timezone       string
}

// RefreshRequest asks for one city and day to be refreshed
type RefreshRequest struct {
	City       string
	Date       string // YYYY-MM-DD, empty means today
	Categories []string
	Trigger    string
	RequestID  string
}

// RefreshService runs the whole pipeline for one city and day: query the
// finder, aggregate, merge venue events, then write cache, table and S3.
type RefreshService struct {
	deps   RefreshDeps
	logger logger.Logger
	now    func() time.Time
}

// NewRefreshService validates deps and creates the service
func NewRefreshService(deps RefreshDeps, log logger.Logger) (*RefreshService, error) {
	if deps.Finder == nil {
		return nil, errors.New("refresh service needs an event finder")
	}
	if deps.Aggregator == nil {
		return nil, errors.New("refresh service needs an aggregator")
	}
	if deps.Timezone == "" {
		deps.Timezone = models.DefaultTimezone
	}
	return &RefreshService{deps: deps, logger: logger.OrNop(log), now: time.Now}, nil
}

// Refresh runs one refresh. Source and storage failures are recorded on the
// returned run; an error is returned only for an invalid request or a
// cancelled context.
func (s *RefreshService) Refresh(ctx context.Context, req RefreshRequest) (*models.AggregationRun, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	run := models.NewAggregationRun(req.City, req.Date, req.Categories, req.Trigger, start)
	run.LambdaRequestID = req.RequestID
	log := s.logger.With(
		logger.String("run_id", run.ID),
		logger.String("city", req.City),
		logger.String("date", req.Date))

	results, err := s.deps.Finder.FindEvents(ctx, req.City, req.Date, req.Categories)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return run, fmt.Errorf("refresh cancelled: %w", ctxErr)
	}
	run.QueriesSent = len(req.Categories)
	run.QueriesAnswered = len(results)
	finderFailed := err != nil
	if finderFailed {
		run.AddError("event finder: %v", err)
		log.Warn("Event finder failed", logger.Error(err))
	}

	aiRecords, report := s.deps.Aggregator.AggregateWithReport(results, req.Date)
	run.Report = report

	scraped := s.scrapeVenues(ctx, run, req)

	union := make([]models.EventRecord, 0, len(aiRecords)+len(scraped))
	union = append(union, aiRecords...)
	union = append(union, scraped...)
	final, stats := s.deps.Aggregator.Finalize(union)
	final = s.deps.Aggregator.Canonicalize(final)
	run.Report.ExactMerges += stats.ExactMerges
	run.Report.FuzzyMerges += stats.FuzzyMerges
	run.TotalEvents = len(final)

	// an outage must not overwrite the last good data with an empty day
	if finderFailed && len(final) == 0 {
		log.Warn("Nothing collected, keeping stored events")
	} else {
		s.store(ctx, run, req, final)
	}

	run.Complete(s.now())
	if s.deps.Snapshots != nil {
		if _, err := s.deps.Snapshots.UploadRun(ctx, run); err != nil {
			log.Warn("Failed to upload run report", logger.Error(err))
		}
	}
	s.deps.Metrics.ObserveRefresh(time.Duration(run.Duration)*time.Millisecond, run.Status)

	log.Info("Refresh completed",
		logger.String("status", run.Status),
		logger.Int("queries_answered", run.QueriesAnswered),
		logger.Int("scraped_events", run.ScrapedEvents),
		logger.Int("total_events", run.TotalEvents),
		logger.Int("shards_written", run.ShardsWritten),
		logger.Int64("duration_ms", run.Duration))
	return run, nil
}

func (s *RefreshService) normalize(req RefreshRequest) (RefreshRequest, error) {
	req.City = strings.TrimSpace(req.City)
	if req.City == "" {
		return req, errors.New("city is required")
	}
	if req.Date == "" {
		req.Date = models.TodayIn(s.deps.Timezone, s.now())
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return req, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerTypeManual
	}

	tax := s.deps.Aggregator.Taxonomy()
	categories := req.Categories
	if len(categories) == 0 {
		categories = s.deps.Categories
	}
	if len(categories) == 0 {
		categories = tax.Names()
	}
	req.Categories = make([]string, 0, len(categories))
	for _, c := range categories {
		name := tax.Normalize(c)
		if !tax.IsMember(name) {
			return req, fmt.Errorf("unknown category %q", c)
		}
		req.Categories = append(req.Categories, name)
	}
	return req, nil
}

func (s *RefreshService) scrapeVenues(ctx context.Context, run *models.AggregationRun, req RefreshRequest) []models.EventRecord {
	if s.deps.Scraper == nil || len(s.deps.Venues) == 0 {
		return nil
	}

	records, results := s.deps.Scraper.ScrapeAll(ctx, s.deps.Venues, req.City)
	run.VenuesScraped = len(results)
	for _, r := range results {
		if r.Err != nil {
			run.VenueFailures++
			run.Warnings = append(run.Warnings, fmt.Sprintf("venue %s: %v", r.Venue, r.Err))
		}
	}

	onDay := models.FilterByDate(records, req.Date, s.deps.IncludeUndated)
	run.ScrapedEvents = len(onDay)
	return onDay
}

// store writes every sink; a failing sink is recorded and the others still run
func (s *RefreshService) store(ctx context.Context, run *models.AggregationRun, req RefreshRequest, records []models.EventRecord) {
	if s.deps.Cache != nil {
		if _, err := s.deps.Cache.PutDay(ctx, req.City, req.Date, req.Categories, records); err != nil {
			run.AddError("cache: %v", err)
		}
	}
	if s.deps.Store != nil {
		written, err := s.deps.Store.PutDay(ctx, req.City, req.Date, run.ID, req.Categories, records)
		run.ShardsWritten = written
		if err != nil {
			run.AddError("dynamodb: %v", err)
		}
	}
	if s.deps.Snapshots != nil {
		if _, err := s.deps.Snapshots.UploadSnapshot(ctx, req.City, req.Date, run.ID, records); err != nil {
			run.AddError("s3 snapshot: %v", err)
		}
	}
}
