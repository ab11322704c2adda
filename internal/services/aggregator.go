package services

import (
	"fmt"
	"runtime/debug"
	"time"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// Aggregator turns the raw responses of one batch of upstream queries into a
// deduplicated, categorized event list. It holds no per-call state and is safe
// for concurrent use.
type Aggregator struct {
	taxonomy     *models.Taxonomy
	parser       *ResponseParser
	deduplicator *Deduplicator
	categorizer  *Categorizer
	metrics      *AggregationMetrics
	location     *time.Location
	logger       logger.Logger
}

// NewAggregator wires the parse, dedup and categorize stages. metrics may be nil.
func NewAggregator(taxonomy *models.Taxonomy, log logger.Logger, metrics *AggregationMetrics) (*Aggregator, error) {
	log = logger.OrNop(log)

	parser, err := NewResponseParser(taxonomy, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create response parser: %w", err)
	}
	categorizer, err := NewCategorizer(taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to create categorizer: %w", err)
	}

	return &Aggregator{
		taxonomy:     taxonomy,
		parser:       parser,
		deduplicator: NewDeduplicator(log),
		categorizer:  categorizer,
		metrics:      metrics,
		location:     models.LoadLocation(models.DefaultTimezone),
		logger:       log,
	}, nil
}

// SetTimezone sets the location datetimes with a zone offset are converted
// to. Call it before the aggregator is shared.
func (a *Aggregator) SetTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	a.location = loc
	return nil
}

// Location returns the event calendar location
func (a *Aggregator) Location() *time.Location {
	return a.location
}

// Parser exposes the response parser used for each response
func (a *Aggregator) Parser() *ResponseParser {
	return a.parser
}

// Taxonomy returns the category taxonomy
func (a *Aggregator) Taxonomy() *models.Taxonomy {
	return a.taxonomy
}

// Aggregate parses every result in order and returns the unique records
func (a *Aggregator) Aggregate(results []models.QueryResult, date string) []models.EventRecord {
	records, _ := a.AggregateWithReport(results, date)
	return records
}

// AggregateWithReport is Aggregate plus per-response diagnostics. A response
// whose parsing panics contributes no records and is reported as failed.
func (a *Aggregator) AggregateWithReport(results []models.QueryResult, date string) ([]models.EventRecord, models.AggregationReport) {
	report := models.AggregationReport{
		Responses:  make([]models.ResponseOutcome, 0, len(results)),
		Strategies: make(map[string]int),
	}

	var candidates []models.EventRecord
	for i, result := range results {
		category := a.ResolveCategory(result)
		outcome, records := a.parseOne(i, result, category, date)

		report.Responses = append(report.Responses, outcome)
		switch outcome.Outcome {
		case models.OutcomeFailed:
			report.Failures++
		case models.OutcomeNegative:
			report.Negatives++
		case models.OutcomeParsed:
			report.Strategies[outcome.Strategy] += len(records)
		}
		report.Warnings += outcome.Warnings
		candidates = append(candidates, records...)
	}

	report.Candidates = len(candidates)
	if report.Candidates > 0 {
		report.WarningDensity = float64(report.Warnings) / float64(report.Candidates)
	}

	unique, stats := a.Finalize(candidates)
	report.Records = len(unique)
	report.ExactMerges = stats.ExactMerges
	report.FuzzyMerges = stats.FuzzyMerges

	a.metrics.ObserveReport(report)
	a.logger.Info("Aggregated responses",
		logger.Int("responses", len(results)),
		logger.Int("candidates", report.Candidates),
		logger.Int("records", report.Records),
		logger.Int("failures", report.Failures),
		logger.Int("negatives", report.Negatives),
		logger.Int("warnings", report.Warnings),
		logger.Int("exact_merges", report.ExactMerges),
		logger.Int("fuzzy_merges", report.FuzzyMerges))

	return unique, report
}

// Finalize deduplicates and categorizes an already-parsed record list.
// Records from other sources (venue scrapers) go through here as well.
func (a *Aggregator) Finalize(records []models.EventRecord) ([]models.EventRecord, DedupStats) {
	unique, stats := a.deduplicator.DeduplicateWithStats(records)
	return a.categorizer.Categorize(unique), stats
}

// Canonicalize maps categories outside the taxonomy onto members so every
// stored record lands in a known shard
func (a *Aggregator) Canonicalize(records []models.EventRecord) []models.EventRecord {
	return a.categorizer.Canonicalize(records)
}

// ResolveCategory returns the explicit category of a result, or the first
// taxonomy category named in its query
func (a *Aggregator) ResolveCategory(result models.QueryResult) string {
	if result.Category != "" {
		return a.taxonomy.Normalize(result.Category)
	}
	if category, ok := a.taxonomy.MatchText(result.Query); ok {
		return category
	}
	return ""
}

func (a *Aggregator) parseOne(index int, result models.QueryResult, category, date string) (outcome models.ResponseOutcome, records []models.EventRecord) {
	outcome = models.ResponseOutcome{
		Index:    index,
		Query:    result.Query,
		Category: category,
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("Response parsing failed",
				logger.Int("index", index),
				logger.String("query", result.Query),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			outcome.Outcome = models.OutcomeFailed
			outcome.Error = fmt.Sprint(r)
			outcome.Records = 0
			outcome.Warnings = 0
			records = nil
		}
	}()

	parsed := a.parser.Parse(result.Response, ParseContext{
		Category: category,
		Date:     date,
		Source:   models.SourceAI,
		Location: a.location,
	})

	outcome.Strategy = parsed.Strategy
	outcome.Records = len(parsed.Records)
	outcome.Warnings = parsed.Warnings
	switch {
	case parsed.Negative:
		outcome.Outcome = models.OutcomeNegative
	case len(parsed.Records) == 0:
		outcome.Outcome = models.OutcomeEmpty
	default:
		outcome.Outcome = models.OutcomeParsed
	}
	return outcome, parsed.Records
}
