package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/prometheus/client_golang/prometheus"

	"where2go-events/internal/bootstrap"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
	"where2go-events/internal/services"
)

// LambdaEvent represents the EventBridge trigger event
type LambdaEvent struct {
	Source      string   `json:"source"`
	DetailType  string   `json:"detail-type"`
	TriggerType string   `json:"trigger-type,omitempty"` // manual, scheduled
	Cities      []string `json:"cities,omitempty"`       // defaults to the configured cities
	Date        string   `json:"date,omitempty"`         // YYYY-MM-DD, defaults to today
	Categories  []string `json:"categories,omitempty"`
}

// LambdaResponse represents the function response
type LambdaResponse struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message"`
	TotalEvents    int          `json:"total_events"`
	ProcessingTime int64        `json:"processing_time_ms"`
	Runs           []RunSummary `json:"runs"`
	Errors         []string     `json:"errors,omitempty"`
}

// RunSummary is the outcome of one city's refresh
type RunSummary struct {
	RunID         string   `json:"run_id"`
	City          string   `json:"city"`
	Date          string   `json:"date"`
	Status        string   `json:"status"`
	TotalEvents   int      `json:"total_events"`
	ScrapedEvents int      `json:"scraped_events"`
	ShardsWritten int      `json:"shards_written"`
	Errors        []string `json:"errors,omitempty"`
}

// refresher runs one city refresh
type refresher interface {
	Refresh(ctx context.Context, req services.RefreshRequest) (*models.AggregationRun, error)
}

// Handler refreshes every requested city in turn
type Handler struct {
	refresh refresher
	cities  []string
	logger  logger.Logger
}

// NewHandler creates a handler refreshing cities by default
func NewHandler(refresh refresher, cities []string, log logger.Logger) *Handler {
	return &Handler{refresh: refresh, cities: cities, logger: logger.OrNop(log)}
}

// HandleLambdaEvent is the main Lambda handler function
func (h *Handler) HandleLambdaEvent(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {
	start := time.Now()

	triggerType := event.TriggerType
	if triggerType == "" {
		if event.Source == "aws.events" {
			triggerType = models.TriggerTypeScheduled
		} else {
			triggerType = models.TriggerTypeManual
		}
	}

	var requestID string
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	cities := event.Cities
	if len(cities) == 0 {
		cities = h.cities
	}
	h.logger.Info("Refresh started",
		logger.String("trigger", triggerType),
		logger.Strings("cities", cities),
		logger.String("date", event.Date))

	response := LambdaResponse{Runs: make([]RunSummary, 0, len(cities))}
	failed := 0
	for _, city := range cities {
		run, err := h.refresh.Refresh(ctx, services.RefreshRequest{
			City:       city,
			Date:       event.Date,
			Categories: event.Categories,
			Trigger:    triggerType,
			RequestID:  requestID,
		})
		if err != nil {
			failed++
			response.Errors = append(response.Errors, fmt.Sprintf("%s: %v", city, err))
			h.logger.Error("Refresh failed", logger.String("city", city), logger.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if run.Status == models.RunStatusFailed {
			failed++
		}
		response.TotalEvents += run.TotalEvents
		response.Runs = append(response.Runs, RunSummary{
			RunID:         run.ID,
			City:          run.City,
			Date:          run.Date,
			Status:        run.Status,
			TotalEvents:   run.TotalEvents,
			ScrapedEvents: run.ScrapedEvents,
			ShardsWritten: run.ShardsWritten,
			Errors:        run.Errors,
		})
	}

	response.Success = len(cities) > 0 && failed == 0
	response.ProcessingTime = time.Since(start).Milliseconds()
	response.Message = fmt.Sprintf("Refreshed %d/%d cities with %d events", len(cities)-failed, len(cities), response.TotalEvents)

	h.logger.Info("Refresh finished",
		logger.Bool("success", response.Success),
		logger.Int("total_events", response.TotalEvents),
		logger.Int64("processing_time_ms", response.ProcessingTime))

	if err := ctx.Err(); err != nil {
		return response, err
	}
	return response, nil
}

// main is the entry point for the Lambda function
func main() {
	cfg, log, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	components, err := bootstrap.NewPipeline(cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		log.Error("Failed to create pipeline", logger.Error(err))
		os.Exit(1)
	}
	if err := components.SetupStorage(context.Background()); err != nil {
		log.Error("Failed to set up storage", logger.Error(err))
		os.Exit(1)
	}
	refresh, err := components.NewRefreshService()
	if err != nil {
		log.Error("Failed to create refresh service", logger.Error(err))
		os.Exit(1)
	}

	lambda.Start(NewHandler(refresh, cfg.Cities, log).HandleLambdaEvent)
}
