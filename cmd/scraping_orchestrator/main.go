package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"where2go-events/internal/bootstrap"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

const (
	maxBatchEntries = 10 // SQS limit per SendMessageBatch
	maxDaysAhead    = 31
)

// OrchestratorEvent represents the input event for orchestrator
type OrchestratorEvent struct {
	TriggerType string   `json:"trigger_type"`         // scheduled, manual
	Cities      []string `json:"cities,omitempty"`     // defaults to the configured cities
	StartDate   string   `json:"start_date,omitempty"` // defaults to today
	DaysAhead   int      `json:"days_ahead,omitempty"` // defaults to the configured window
	Categories  []string `json:"categories,omitempty"` // defaults to the configured categories
}

// OrchestratorResponse represents the Lambda response
type OrchestratorResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ResponseBody is the JSON body of an OrchestratorResponse
type ResponseBody struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	TasksQueued   int           `json:"tasks_queued"`
	TaskSummary   []TaskSummary `json:"task_summary,omitempty"`
	FailedTaskIDs []string      `json:"failed_task_ids,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// TaskSummary identifies one queued task
type TaskSummary struct {
	TaskID string `json:"task_id"`
	City   string `json:"city"`
	Date   string `json:"date"`
}

// SQSAPI is the part of the SQS client the orchestrator uses
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Orchestrator fans a refresh out into one queue task per city and day
type Orchestrator struct {
	queue      SQSAPI
	queueURL   string
	cities     []string
	categories []string
	daysAhead  int
	timezone   string
	logger     logger.Logger
	now        func() time.Time
}

// HandleRequest processes the orchestrator Lambda request
func (o *Orchestrator) HandleRequest(ctx context.Context, event OrchestratorEvent) (OrchestratorResponse, error) {
	o.logger.Info("Processing orchestration request",
		logger.String("trigger", event.TriggerType),
		logger.Strings("cities", event.Cities),
		logger.String("start_date", event.StartDate),
		logger.Int("days_ahead", event.DaysAhead))

	tasks, err := o.BuildTasks(event)
	if err != nil {
		return createErrorResponse(400, err.Error())
	}

	failed, err := o.Enqueue(ctx, tasks)
	if err != nil {
		o.logger.Error("Failed to queue refresh tasks", logger.Error(err))
		return createErrorResponse(500, fmt.Sprintf("Failed to queue refresh tasks: %v", err))
	}

	queued := make([]TaskSummary, 0, len(tasks))
	failedSet := make(map[string]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}
	for _, task := range tasks {
		if !failedSet[task.TaskID] {
			queued = append(queued, TaskSummary{TaskID: task.TaskID, City: task.City, Date: task.Date})
		}
	}

	o.logger.Info("Queued refresh tasks",
		logger.Int("queued", len(queued)),
		logger.Int("failed", len(failed)))

	return createSuccessResponse(ResponseBody{
		Success:       len(failed) == 0,
		Message:       fmt.Sprintf("Queued %d of %d refresh tasks", len(queued), len(tasks)),
		TasksQueued:   len(queued),
		TaskSummary:   queued,
		FailedTaskIDs: failed,
	})
}

// BuildTasks creates one task per city and day of the requested window
func (o *Orchestrator) BuildTasks(event OrchestratorEvent) ([]models.RefreshTask, error) {
	cities := event.Cities
	if len(cities) == 0 {
		cities = o.cities
	}
	if len(cities) == 0 {
		return nil, errors.New("no cities to refresh")
	}

	days := event.DaysAhead
	if days <= 0 {
		days = o.daysAhead
	}
	if days <= 0 {
		days = 1
	}
	if days > maxDaysAhead {
		return nil, fmt.Errorf("days_ahead must not exceed %d", maxDaysAhead)
	}

	startDate := event.StartDate
	if startDate == "" {
		startDate = models.TodayIn(o.timezone, o.now())
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
	}

	categories := event.Categories
	if len(categories) == 0 {
		categories = o.categories
	}
	trigger := event.TriggerType
	if trigger == "" {
		trigger = models.TriggerTypeScheduled
	}

	created := o.now().UTC()
	tasks := make([]models.RefreshTask, 0, len(cities)*days)
	for _, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		for i := 0; i < days; i++ {
			tasks = append(tasks, models.RefreshTask{
				TaskID:     models.GenerateTaskID(),
				City:       city,
				Date:       start.AddDate(0, 0, i).Format("2006-01-02"),
				Categories: categories,
				Trigger:    trigger,
				CreatedAt:  created,
			})
		}
	}
	return tasks, nil
}

// Enqueue sends tasks in batches and returns the IDs of tasks SQS rejected.
// An error means a whole batch could not be sent.
func (o *Orchestrator) Enqueue(ctx context.Context, tasks []models.RefreshTask) ([]string, error) {
	var failed []string
	for start := 0; start < len(tasks); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(tasks))
		batch := tasks[start:end]

		entries := make([]types.SendMessageBatchRequestEntry, 0, len(batch))
		ids := make(map[string]string, len(batch))
		for i, task := range batch {
			body, err := json.Marshal(task)
			if err != nil {
				return failed, fmt.Errorf("failed to marshal task message: %w", err)
			}
			entryID := strconv.Itoa(i)
			ids[entryID] = task.TaskID
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(entryID),
				MessageBody: aws.String(string(body)),
				MessageAttributes: map[string]types.MessageAttributeValue{
					"City": {
						DataType:    aws.String("String"),
						StringValue: aws.String(task.City),
					},
					"Date": {
						DataType:    aws.String("String"),
						StringValue: aws.String(task.Date),
					},
					"Trigger": {
						DataType:    aws.String("String"),
						StringValue: aws.String(task.Trigger),
					},
				},
			})
		}

		out, err := o.queue.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(o.queueURL),
			Entries:  entries,
		})
		if err != nil {
			return failed, fmt.Errorf("failed to send message batch to SQS: %w", err)
		}
		for _, f := range out.Failed {
			taskID := ids[aws.ToString(f.Id)]
			o.logger.Warn("Task rejected by SQS",
				logger.String("task_id", taskID),
				logger.String("code", aws.ToString(f.Code)),
				logger.String("message", aws.ToString(f.Message)))
			failed = append(failed, taskID)
		}
	}
	return failed, nil
}

// Response helpers
func createSuccessResponse(body ResponseBody) (OrchestratorResponse, error) {
	bodyBytes, _ := json.Marshal(body)
	return OrchestratorResponse{
		StatusCode: 200,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(bodyBytes),
	}, nil
}

func createErrorResponse(statusCode int, message string) (OrchestratorResponse, error) {
	body := ResponseBody{
		Success: false,
		Error:   message,
	}
	bodyBytes, _ := json.Marshal(body)
	return OrchestratorResponse{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(bodyBytes),
	}, nil
}

func main() {
	cfg, log, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Queue.URL == "" {
		log.Error("REFRESH_QUEUE_URL environment variable is required")
		os.Exit(1)
	}

	awsCfg, err := bootstrap.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Error("Failed to load AWS config", logger.Error(err))
		os.Exit(1)
	}

	orchestrator := &Orchestrator{
		queue:      sqs.NewFromConfig(awsCfg),
		queueURL:   cfg.Queue.URL,
		cities:     cfg.Cities,
		categories: cfg.QueryCategories(models.DefaultTaxonomy()),
		daysAhead:  cfg.Queue.DaysAhead,
		timezone:   cfg.Timezone,
		logger:     log,
		now:        time.Now,
	}
	log.Info("Orchestrator initialized", logger.String("queue_url", cfg.Queue.URL))

	lambda.Start(orchestrator.HandleRequest)
}
