package services

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"where2go-events/internal/config"
	"where2go-events/internal/logger"
)

// minReaderContent is the shortest body accepted as a rendered page
const minReaderContent = 100

// JinaClient renders script-heavy venue pages to markdown through the Jina
// Reader proxy
type JinaClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	userAgents  []string
	retryConfig RetryConfig
	logger      logger.Logger
}

// RetryConfig defines retry behavior for failed requests
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// readerStatusError is a non-200 answer from the proxy
type readerStatusError struct {
	status int
	body   string
}

func (e *readerStatusError) Error() string {
	return fmt.Sprintf("reader returned status %d: %s", e.status, e.body)
}

// NewJinaClient creates a reader client from configuration
func NewJinaClient(cfg config.ReaderConfig, log logger.Logger) *JinaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://r.jina.ai"
	}

	return &JinaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		retryConfig: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		logger: logger.OrNop(log),
	}
}

// SetRetryConfig replaces the retry policy
func (j *JinaClient) SetRetryConfig(rc RetryConfig) {
	j.retryConfig = rc
}

// ExtractContent returns the rendered markdown of pageURL
func (j *JinaClient) ExtractContent(ctx context.Context, pageURL string) (string, error) {
	if err := j.ValidateURL(pageURL); err != nil {
		return "", err
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 0; attempt <= j.retryConfig.MaxRetries; attempt++ {
		content, err := j.attemptExtraction(ctx, pageURL, attempt)
		if err == nil {
			if elapsed := time.Since(startTime); elapsed > 10*time.Second {
				j.logger.Warn("Slow reader response",
					logger.String("url", pageURL),
					logger.Duration("elapsed", elapsed),
					logger.Int("attempt", attempt+1))
			}
			return content, nil
		}
		lastErr = err

		// client errors will not improve on retry
		var statusErr *readerStatusError
		if errors.As(err, &statusErr) && statusErr.status >= 400 && statusErr.status < 500 {
			break
		}

		if attempt < j.retryConfig.MaxRetries {
			delay := j.calculateDelay(attempt)
			j.logger.Debug("Reader attempt failed, retrying",
				logger.String("url", pageURL),
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
				logger.Error(err))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return "", fmt.Errorf("failed to read %s: %w", pageURL, lastErr)
}

func (j *JinaClient) attemptExtraction(ctx context.Context, pageURL string, attempt int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+"/"+pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	j.setHeaders(req, attempt)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &readerStatusError{status: resp.StatusCode, body: string(body)}
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read reader response: %w", err)
	}
	if len(content) < minReaderContent {
		return "", fmt.Errorf("content too short (%d chars), might be an error page", len(content))
	}
	return string(content), nil
}

func (j *JinaClient) setHeaders(req *http.Request, attempt int) {
	req.Header.Set("User-Agent", j.userAgents[attempt%len(j.userAgents)])
	req.Header.Set("Accept", "text/plain, text/markdown;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9,en;q=0.8")
	req.Header.Set("X-Return-Format", "markdown")
	if j.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+j.apiKey)
	}
	if attempt > 0 {
		req.Header.Set("Cache-Control", "no-cache")
	}
}

// calculateDelay grows the delay linearly with the attempt and adds jitter
func (j *JinaClient) calculateDelay(attempt int) time.Duration {
	delay := float64(j.retryConfig.InitialDelay)*(j.retryConfig.BackoffFactor*float64(attempt+1)) +
		rand.Float64()*0.1*float64(j.retryConfig.InitialDelay)

	if delay > float64(j.retryConfig.MaxDelay) {
		delay = float64(j.retryConfig.MaxDelay)
	}
	return time.Duration(delay)
}

// ValidateURL performs basic URL validation before sending to the proxy
func (j *JinaClient) ValidateURL(pageURL string) error {
	if pageURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if len(pageURL) > 2048 {
		return fmt.Errorf("URL too long: %d characters", len(pageURL))
	}
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	return nil
}
