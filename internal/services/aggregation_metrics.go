package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"where2go-events/internal/models"
)

const (
	metricsNamespace = "where2go"
	metricsSubsystem = "aggregation"
)

// AggregationMetrics records pipeline outcomes in Prometheus and keeps running
// totals for alerting. A nil *AggregationMetrics is a no-op.
type AggregationMetrics struct {
	responsesTotal  *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	warningsTotal   prometheus.Counter
	mergesTotal     *prometheus.CounterVec
	venueScrapes    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec

	mu         sync.RWMutex
	totals     MetricsSnapshot
	thresholds AlertThresholds
}

// MetricsSnapshot holds running totals since process start
type MetricsSnapshot struct {
	Responses     int64            `json:"responses"`
	Failures      int64            `json:"failures"`
	Negatives     int64            `json:"negatives"`
	Empty         int64            `json:"empty"`
	Candidates    int64            `json:"candidates"`
	Records       int64            `json:"records"`
	Warnings      int64            `json:"warnings"`
	ExactMerges   int64            `json:"exact_merges"`
	FuzzyMerges   int64            `json:"fuzzy_merges"`
	VenueFailures int64            `json:"venue_failures"`
	VenueScrapes  int64            `json:"venue_scrapes"`
	Strategies    map[string]int64 `json:"strategies"`
	LastRefreshMs int64            `json:"last_refresh_ms"`
	LastUpdated   time.Time        `json:"last_updated"`
}

// AlertThresholds defines when CheckAlerts reports a problem
type AlertThresholds struct {
	MaxFailureRate      float64 `json:"max_failure_rate"`    // failed responses / responses
	MaxWarningDensity   float64 `json:"max_warning_density"` // warnings / candidates
	MaxVenueFailRate    float64 `json:"max_venue_fail_rate"` // failed venue scrapes / scrapes
	MinResponsesForRate int64   `json:"min_responses_for_rate"`
}

// AggregationAlert represents an alert condition
type AggregationAlert struct {
	Type      string    `json:"type"`     // failure_rate|warning_density|venue_failures
	Severity  string    `json:"severity"` // warning|error
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultAlertThresholds returns conservative thresholds
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxFailureRate:      0.2,
		MaxWarningDensity:   0.3,
		MaxVenueFailRate:    0.5,
		MinResponsesForRate: 5,
	}
}

// NewAggregationMetrics creates and registers the metrics on reg, or on the
// default registerer when reg is nil
func NewAggregationMetrics(reg prometheus.Registerer) *AggregationMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &AggregationMetrics{
		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "responses_total",
			Help:      "Upstream responses processed, by outcome",
		}, []string{"outcome"}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "records_total",
			Help:      "Records extracted, by winning parse strategy",
		}, []string{"strategy"}),
		warningsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "parsing_warnings_total",
			Help:      "Records salvaged with a parsing warning",
		}),
		mergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "merges_total",
			Help:      "Duplicate records merged, by match kind",
		}, []string{"kind"}),
		venueScrapes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "venue_scrapes_total",
			Help:      "Venue scrapes, by venue and status",
		}, []string{"venue", "status"}),
		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a city/day refresh",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"status"}),
		totals:     MetricsSnapshot{Strategies: make(map[string]int64)},
		thresholds: DefaultAlertThresholds(),
	}
}

// SetThresholds replaces the alert thresholds
func (m *AggregationMetrics) SetThresholds(t AlertThresholds) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// ObserveReport records one aggregation report
func (m *AggregationMetrics) ObserveReport(report models.AggregationReport) {
	if m == nil {
		return
	}

	for _, r := range report.Responses {
		m.responsesTotal.WithLabelValues(r.Outcome).Inc()
	}
	for strategy, n := range report.Strategies {
		m.recordsTotal.WithLabelValues(strategy).Add(float64(n))
	}
	m.warningsTotal.Add(float64(report.Warnings))
	m.mergesTotal.WithLabelValues(models.MergeExact).Add(float64(report.ExactMerges))
	m.mergesTotal.WithLabelValues(models.MergeFuzzy).Add(float64(report.FuzzyMerges))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range report.Responses {
		m.totals.Responses++
		switch r.Outcome {
		case models.OutcomeFailed:
			m.totals.Failures++
		case models.OutcomeNegative:
			m.totals.Negatives++
		case models.OutcomeEmpty:
			m.totals.Empty++
		}
	}
	for strategy, n := range report.Strategies {
		m.totals.Strategies[strategy] += int64(n)
	}
	m.totals.Candidates += int64(report.Candidates)
	m.totals.Records += int64(report.Records)
	m.totals.Warnings += int64(report.Warnings)
	m.totals.ExactMerges += int64(report.ExactMerges)
	m.totals.FuzzyMerges += int64(report.FuzzyMerges)
	m.totals.LastUpdated = time.Now()
}

// ObserveVenue records one venue scrape
func (m *AggregationMetrics) ObserveVenue(venue string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.venueScrapes.WithLabelValues(venue, status).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.VenueScrapes++
	if err != nil {
		m.totals.VenueFailures++
	}
}

// ObserveRefresh records the duration and final status of a refresh
func (m *AggregationMetrics) ObserveRefresh(d time.Duration, status string) {
	if m == nil {
		return
	}
	m.refreshDuration.WithLabelValues(status).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals.LastRefreshMs = d.Milliseconds()
}

// Snapshot returns a copy of the running totals
func (m *AggregationMetrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Strategies: map[string]int64{}}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.totals
	snap.Strategies = make(map[string]int64, len(m.totals.Strategies))
	for k, v := range m.totals.Strategies {
		snap.Strategies[k] = v
	}
	return snap
}

// CheckAlerts evaluates the running totals against the thresholds
func (m *AggregationMetrics) CheckAlerts() []AggregationAlert {
	if m == nil {
		return nil
	}
	snap := m.Snapshot()
	m.mu.RLock()
	t := m.thresholds
	m.mu.RUnlock()

	now := time.Now()
	var alerts []AggregationAlert

	if snap.Responses >= t.MinResponsesForRate && snap.Responses > 0 {
		rate := float64(snap.Failures) / float64(snap.Responses)
		if rate > t.MaxFailureRate {
			alerts = append(alerts, AggregationAlert{
				Type:      "failure_rate",
				Severity:  "error",
				Message:   fmt.Sprintf("%.1f%% of responses failed to parse", rate*100),
				Value:     rate,
				Threshold: t.MaxFailureRate,
				Timestamp: now,
			})
		}
	}
	if snap.Candidates > 0 {
		density := float64(snap.Warnings) / float64(snap.Candidates)
		if density > t.MaxWarningDensity {
			alerts = append(alerts, AggregationAlert{
				Type:      "warning_density",
				Severity:  "warning",
				Message:   fmt.Sprintf("%.1f%% of candidates carry parsing warnings", density*100),
				Value:     density,
				Threshold: t.MaxWarningDensity,
				Timestamp: now,
			})
		}
	}
	if snap.VenueScrapes > 0 {
		rate := float64(snap.VenueFailures) / float64(snap.VenueScrapes)
		if rate > t.MaxVenueFailRate {
			alerts = append(alerts, AggregationAlert{
				Type:      "venue_failures",
				Severity:  "warning",
				Message:   fmt.Sprintf("%d of %d venue scrapes failed", snap.VenueFailures, snap.VenueScrapes),
				Value:     rate,
				Threshold: t.MaxVenueFailRate,
				Timestamp: now,
			})
		}
	}
	return alerts
}
