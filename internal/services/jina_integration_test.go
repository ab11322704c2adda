//go:build integration

package services

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"where2go-events/internal/config"
)

// These tests call the real reader proxy.
// Run with: go test -tags=integration ./internal/services -v

func TestJinaClient_RealAPICall(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration test")
	}

	client := NewJinaClient(config.Default().Reader, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	content, err := client.ExtractContent(ctx, "https://httpbin.org/html")
	require.NoError(t, err)
	require.True(t, strings.Contains(strings.ToLower(content), "moby"), "content should contain the sample text")
}

func TestJinaClient_VenuePageToRecords(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration test")
	}
	venueURL := os.Getenv("READER_TEST_VENUE_URL")
	if venueURL == "" {
		t.Skip("READER_TEST_VENUE_URL not set")
	}

	client := NewJinaClient(config.Default().Reader, nil)
	content, err := client.ExtractContent(context.Background(), venueURL)
	require.NoError(t, err)

	records := newTestParser(t).ParseEvents(content, "", "")
	t.Logf("Parsed %d records from %d characters", len(records), len(content))
}
