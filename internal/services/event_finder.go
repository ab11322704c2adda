package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"where2go-events/internal/config"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// ErrAllQueriesFailed is returned when not a single upstream query succeeded
var ErrAllQueriesFailed = errors.New("all event finder queries failed")

// ChatCompleter is the part of the go-openai client the finder needs
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// EventFinder asks an OpenAI-compatible search model for the events of one
// city and day, one query per category
type EventFinder struct {
	client      ChatCompleter
	model       string
	temperature float32
	maxTokens   int
	batchSize   int
	limiter     *rate.Limiter
	logger      logger.Logger
}

// NewEventFinder creates a finder talking to cfg.BaseURL
func NewEventFinder(cfg config.FinderConfig, log logger.Logger) (*EventFinder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("finder api key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return NewEventFinderWithClient(openai.NewClientWithConfig(clientConfig), cfg, log), nil
}

// NewEventFinderWithClient creates a finder around an existing client
func NewEventFinderWithClient(client ChatCompleter, cfg config.FinderConfig, log logger.Logger) *EventFinder {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	// one token per batch; the first batch starts immediately
	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}

	return &EventFinder{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		batchSize:   batchSize,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger.OrNop(log),
	}
}

// GetModel returns the model queried
func (f *EventFinder) GetModel() string {
	return f.model
}

// BuildQueries returns one query per category. Each query names its category
// verbatim so the aggregator can recover it from the query text.
func BuildQueries(city, date string, categories []string) []models.QueryResult {
	queries := make([]models.QueryResult, 0, len(categories))
	for _, category := range categories {
		queries = append(queries, models.QueryResult{
			Query: fmt.Sprintf(
				"Find events in category %s in %s on %s. "+
					"Return a JSON array of objects with the fields title, category, date, time, venue, address, "+
					"price, website, bookingLink, description and imageUrl. "+
					"If there are no events, answer exactly: No events found.",
				category, city, date),
			Category: category,
		})
	}
	return queries
}

// FindEvents runs the queries for city and date in batches. Batches run
// concurrently inside and are spaced by the configured delay. Failed queries
// are logged and left out; results keep query order.
func (f *EventFinder) FindEvents(ctx context.Context, city, date string, categories []string) ([]models.QueryResult, error) {
	queries := BuildQueries(city, date, categories)
	if len(queries) == 0 {
		return []models.QueryResult{}, nil
	}

	answered := make([]bool, len(queries))
	for start := 0; start < len(queries); start += f.batchSize {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("event finder cancelled: %w", err)
		}

		end := start + f.batchSize
		if end > len(queries) {
			end = len(queries)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				response, err := f.ask(ctx, queries[i].Query)
				if err != nil {
					f.logger.Warn("Event finder query failed",
						logger.String("city", city),
						logger.String("date", date),
						logger.String("category", queries[i].Category),
						logger.Error(err))
					return
				}
				queries[i].Response = response
				queries[i].Timestamp = time.Now().UnixMilli()
				answered[i] = true
			}(i)
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("event finder cancelled: %w", err)
	}

	results := make([]models.QueryResult, 0, len(queries))
	for i, q := range queries {
		if answered[i] {
			results = append(results, q)
		}
	}
	if len(results) == 0 {
		return nil, ErrAllQueriesFailed
	}

	f.logger.Info("Event finder completed",
		logger.String("city", city),
		logger.String("date", date),
		logger.Int("queries", len(queries)),
		logger.Int("answered", len(results)))
	return results, nil
}

func (f *EventFinder) ask(ctx context.Context, query string) (string, error) {
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       f.model,
		Temperature: f.temperature,
		MaxTokens:   f.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: finderSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: query,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

const finderSystemPrompt = `You are a local events researcher. Answer with events that really take place on the requested day in the requested city.

RULES:
- Answer with a JSON array only, no prose around it
- Dates as YYYY-MM-DD, times as HH:mm in 24-hour format
- Use the venue's official website or ticket link when known
- Do not invent events, venues or prices
- If you know no events, answer exactly: No events found.`
