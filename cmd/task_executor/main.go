package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/prometheus/client_golang/prometheus"

	"where2go-events/internal/bootstrap"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
	"where2go-events/internal/services"
)

// refresher runs one city refresh
type refresher interface {
	Refresh(ctx context.Context, req services.RefreshRequest) (*models.AggregationRun, error)
}

// Executor runs the refresh tasks delivered by SQS
type Executor struct {
	refresh refresher
	logger  logger.Logger
}

func (e *Executor) handler(ctx context.Context, sqsEvent events.SQSEvent) error {
	e.logger.Info("Processing SQS messages", logger.Int("count", len(sqsEvent.Records)))

	for _, record := range sqsEvent.Records {
		if err := e.processMessage(ctx, record); err != nil {
			e.logger.Error("Failed to process message",
				logger.String("message_id", record.MessageId),
				logger.Error(err))
			return err // This will cause the message to be retried
		}
	}

	return nil
}

func (e *Executor) processMessage(ctx context.Context, record events.SQSMessage) error {
	var task models.RefreshTask
	if err := json.Unmarshal([]byte(record.Body), &task); err != nil {
		return fmt.Errorf("failed to unmarshal SQS message: %w", err)
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid refresh task: %w", err)
	}

	trigger := task.Trigger
	if trigger == "" {
		trigger = models.TriggerTypeQueue
	}
	requestID := record.MessageId
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		requestID = lc.AwsRequestID
	}

	log := e.logger.With(
		logger.String("task_id", task.TaskID),
		logger.String("city", task.City),
		logger.String("date", task.Date))
	log.Info("Starting refresh task")

	run, err := e.refresh.Refresh(ctx, services.RefreshRequest{
		City:       task.City,
		Date:       task.Date,
		Categories: task.Categories,
		Trigger:    trigger,
		RequestID:  requestID,
	})
	if err != nil {
		return fmt.Errorf("refresh task %s: %w", task.TaskID, err)
	}
	if run.Status == models.RunStatusFailed {
		return fmt.Errorf("refresh task %s failed: %v", task.TaskID, run.Errors)
	}

	log.Info("Refresh task completed",
		logger.String("run_id", run.ID),
		logger.String("status", run.Status),
		logger.Int("total_events", run.TotalEvents))
	return nil
}

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

	executor := &Executor{refresh: refresh, logger: log}
	lambda.Start(executor.handler)
}
