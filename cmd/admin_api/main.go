package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"where2go-events/internal/bootstrap"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
	"where2go-events/internal/services"
)

// AdminAPIResponse represents the Lambda response
type AdminAPIResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ResponseBody represents the response body structure
type ResponseBody struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EventsData is the payload of GET /api/events
type EventsData struct {
	City     string               `json:"city"`
	Date     string               `json:"date"`
	Category string               `json:"category"`
	Tier     string               `json:"tier"`
	Count    int                  `json:"count"`
	Events   []models.EventRecord `json:"events"`
}

// ShardSummary describes one stored shard without its events
type ShardSummary struct {
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt int64     `json:"expires_at"`
}

// RefreshRequest is the body of POST /api/refresh
type RefreshRequest struct {
	Cities     []string `json:"cities,omitempty"`
	StartDate  string   `json:"start_date,omitempty"`
	DaysAhead  int      `json:"days_ahead,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type eventLookup interface {
	Lookup(ctx context.Context, city, date, category string) ([]models.EventRecord, string, error)
}

type dayQuerier interface {
	QueryDay(ctx context.Context, city, date string) ([]models.EventShard, error)
}

// LambdaInvoker is the part of the Lambda client used to start the orchestrator
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error)
}

// API serves cached events and triggers refreshes
type API struct {
	lookup       eventLookup
	store        dayQuerier // nil when DynamoDB is not configured
	invoker      LambdaInvoker
	orchestrator string
	taxonomy     *models.Taxonomy
	cities       []string
	timezone     string
	logger       logger.Logger
	now          func() time.Time
}

func (a *API) handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (AdminAPIResponse, error) {
	// Set CORS headers
	headers := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
		"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
		"Content-Type":                 "application/json",
	}

	// Handle preflight OPTIONS request
	if request.HTTPMethod == "OPTIONS" {
		return AdminAPIResponse{
			StatusCode: 200,
			Headers:    headers,
			Body:       "",
		}, nil
	}

	path := strings.TrimSuffix(request.Path, "/")
	method := request.HTTPMethod

	a.logger.Info("Admin API request",
		logger.String("method", method),
		logger.String("path", path))

	var responseBody ResponseBody
	var statusCode int

	switch {
	case method == "GET" && path == "/api/health":
		responseBody, statusCode = ResponseBody{Success: true, Message: "ok"}, 200

	case method == "GET" && path == "/api/events":
		responseBody, statusCode = a.handleGetEvents(ctx, request.QueryStringParameters)

	case method == "GET" && path == "/api/shards":
		responseBody, statusCode = a.handleGetShards(ctx, request.QueryStringParameters)

	case method == "POST" && path == "/api/refresh":
		responseBody, statusCode = a.handleTriggerRefresh(ctx, request.Body)

	default:
		responseBody = ResponseBody{
			Success: false,
			Error:   "Not found",
		}
		statusCode = 404
	}

	// Marshal response body
	bodyJSON, err := json.Marshal(responseBody)
	if err != nil {
		a.logger.Error("Error marshaling response body", logger.Error(err))
		return AdminAPIResponse{
			StatusCode: 500,
			Headers:    headers,
			Body:       `{"success":false,"error":"Internal server error"}`,
		}, nil
	}

	return AdminAPIResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(bodyJSON),
	}, nil
}

// handleGetEvents serves GET /api/events?city=&date=&category=
func (a *API) handleGetEvents(ctx context.Context, params map[string]string) (ResponseBody, int) {
	city, date, err := a.cityAndDate(params)
	if err != nil {
		return errorBody(err.Error()), 400
	}

	category := ""
	if raw := strings.TrimSpace(params["category"]); raw != "" {
		category = a.taxonomy.Normalize(raw)
		if !a.taxonomy.IsMember(category) {
			return errorBody(fmt.Sprintf("unknown category %q", raw)), 400
		}
	}

	records, tier, err := a.lookup.Lookup(ctx, city, date, category)
	if errors.Is(err, services.ErrShardNotFound) {
		return ResponseBody{
			Success: false,
			Message: fmt.Sprintf("No events stored for %s on %s", city, date),
			Error:   "Not found",
		}, 404
	}
	if err != nil {
		a.logger.Error("Event lookup failed", logger.Error(err))
		return errorBody("Failed to read events"), 500
	}
	if records == nil {
		records = []models.EventRecord{}
	}

	if category == "" {
		category = models.DayBucketCategory
	}
	return ResponseBody{
		Success: true,
		Message: fmt.Sprintf("Found %d events", len(records)),
		Data: EventsData{
			City:     city,
			Date:     date,
			Category: category,
			Tier:     tier,
			Count:    len(records),
			Events:   records,
		},
	}, 200
}

// handleGetShards serves GET /api/shards?city=&date=
func (a *API) handleGetShards(ctx context.Context, params map[string]string) (ResponseBody, int) {
	if a.store == nil {
		return errorBody("Event store not configured"), 503
	}
	city, date, err := a.cityAndDate(params)
	if err != nil {
		return errorBody(err.Error()), 400
	}

	shards, err := a.store.QueryDay(ctx, city, date)
	if err != nil {
		a.logger.Error("Shard query failed", logger.Error(err))
		return errorBody("Failed to query shards"), 500
	}

	summaries := make([]ShardSummary, 0, len(shards))
	for _, s := range shards {
		summaries = append(summaries, ShardSummary{
			Category:  s.Category,
			Count:     s.Count,
			RunID:     s.RunID,
			UpdatedAt: s.UpdatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return ResponseBody{
		Success: true,
		Message: fmt.Sprintf("Found %d shards", len(summaries)),
		Data:    summaries,
	}, 200
}

// handleTriggerRefresh serves POST /api/refresh by invoking the orchestrator
// asynchronously
func (a *API) handleTriggerRefresh(ctx context.Context, body string) (ResponseBody, int) {
	var req RefreshRequest
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return errorBody("Invalid request body"), 400
		}
	}
	if req.StartDate != "" {
		if _, err := time.Parse("2006-01-02", req.StartDate); err != nil {
			return errorBody("start_date must be YYYY-MM-DD"), 400
		}
	}
	for _, c := range req.Categories {
		if !a.taxonomy.IsMember(a.taxonomy.Normalize(c)) {
			return errorBody(fmt.Sprintf("unknown category %q", c)), 400
		}
	}

	if err := a.triggerOrchestrator(ctx, req); err != nil {
		a.logger.Error("Failed to trigger refresh", logger.Error(err))
		return errorBody("Failed to trigger refresh"), 500
	}

	return ResponseBody{
		Success: true,
		Message: "Refresh triggered",
		Data:    req,
	}, 202
}

// triggerOrchestrator invokes the orchestrator Lambda for immediate processing
func (a *API) triggerOrchestrator(ctx context.Context, req RefreshRequest) error {
	if a.orchestrator == "" {
		return fmt.Errorf("ORCHESTRATOR_FUNCTION_NAME not configured")
	}

	event := map[string]interface{}{
		"trigger_type": models.TriggerTypeManual,
	}
	if len(req.Cities) > 0 {
		event["cities"] = req.Cities
	}
	if req.StartDate != "" {
		event["start_date"] = req.StartDate
	}
	if req.DaysAhead > 0 {
		event["days_ahead"] = req.DaysAhead
	}
	if len(req.Categories) > 0 {
		event["categories"] = req.Categories
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal orchestrator event: %w", err)
	}

	// Invoke orchestrator Lambda asynchronously
	_, err = a.invoker.Invoke(ctx, &lambdaclient.InvokeInput{
		FunctionName:   aws.String(a.orchestrator),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        eventBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke orchestrator: %w", err)
	}

	a.logger.Info("Triggered orchestrator", logger.String("function", a.orchestrator))
	return nil
}

// cityAndDate reads the city (default: first configured) and date (default:
// today) query parameters
func (a *API) cityAndDate(params map[string]string) (string, string, error) {
	city := strings.TrimSpace(params["city"])
	if city == "" && len(a.cities) > 0 {
		city = a.cities[0]
	}
	if city == "" {
		return "", "", errors.New("city is required")
	}

	date := strings.TrimSpace(params["date"])
	if date == "" {
		date = models.TodayIn(a.timezone, a.now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", "", errors.New("date must be YYYY-MM-DD")
	}
	return city, date, nil
}

func errorBody(message string) ResponseBody {
	return ResponseBody{Success: false, Error: message}
}

func main() {
	cfg, log, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	components, err := bootstrap.NewPipeline(cfg, log, nil)
	if err != nil {
		log.Error("Failed to create pipeline", logger.Error(err))
		os.Exit(1)
	}
	if err := components.SetupStorage(context.Background()); err != nil {
		log.Error("Failed to set up storage", logger.Error(err))
		os.Exit(1)
	}

	api := &API{
		lookup:       components.NewEventLookup(),
		invoker:      lambdaclient.NewFromConfig(components.AWS),
		orchestrator: cfg.Queue.OrchestratorFunction,
		taxonomy:     components.Taxonomy,
		cities:       cfg.Cities,
		timezone:     cfg.Timezone,
		logger:       log,
		now:          time.Now,
	}
	if components.Store != nil {
		api.store = components.Store
	}

	lambda.Start(api.handleRequest)
}
