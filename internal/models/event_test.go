package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEventRecordJSON(t *testing.T) {
	record := EventRecord{
		Title:    "Techno Night",
		Category: CategoryDJSets,
		Date:     "2025-01-20",
		Time:     "23:00",
		Venue:    "Grelle Forelle",
		ImageURL: "https://example.com/a.jpg",
		Source:   "ai,scraper",
	}

	jsonData, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("Failed to marshal EventRecord to JSON: %v", err)
	}

	encoded := string(jsonData)
	for _, field := range []string{`"title"`, `"imageUrl"`, `"source"`} {
		if !strings.Contains(encoded, field) {
			t.Errorf("Expected %s in JSON, got %s", field, encoded)
		}
	}
	for _, field := range []string{`"bookingLink"`, `"parsingWarning"`, `"address"`} {
		if strings.Contains(encoded, field) {
			t.Errorf("Expected empty %s to be omitted, got %s", field, encoded)
		}
	}

	var unmarshaled EventRecord
	if err := json.Unmarshal(jsonData, &unmarshaled); err != nil {
		t.Fatalf("Failed to unmarshal EventRecord from JSON: %v", err)
	}
	if unmarshaled != record {
		t.Errorf("Round trip changed record: %+v != %+v", unmarshaled, record)
	}
}

func TestHasMeaningfulField(t *testing.T) {
	testCases := []struct {
		name     string
		record   EventRecord
		expected bool
	}{
		{"venue only", EventRecord{Venue: "Flex"}, true},
		{"website only", EventRecord{Website: "https://flex.at"}, true},
		{"booking link only", EventRecord{BookingLink: "https://tickets"}, true},
		{"address only", EventRecord{Address: "Donaukanal"}, true},
		{"category and date only", EventRecord{Category: "Sport", Date: "2025-01-20"}, false},
		{"empty", EventRecord{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.record.HasMeaningfulField(); got != tc.expected {
				t.Errorf("HasMeaningfulField() = %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestFilterByDate(t *testing.T) {
	records := []EventRecord{
		{Title: "A", Date: "2025-01-20"},
		{Title: "B", Date: "2025-01-21"},
		{Title: "C"},
	}

	strict := FilterByDate(records, "2025-01-20", false)
	if len(strict) != 1 || strict[0].Title != "A" {
		t.Errorf("Expected only A, got %+v", strict)
	}

	lenient := FilterByDate(records, "2025-01-20", true)
	if len(lenient) != 2 || lenient[1].Title != "C" {
		t.Errorf("Expected A and C, got %+v", lenient)
	}
}

func TestGroupByCategory(t *testing.T) {
	records := []EventRecord{
		{Title: "A", Category: CategorySport},
		{Title: "B", Category: CategoryFilm},
		{Title: "C", Category: CategorySport},
	}

	shards, order := GroupByCategory(records)
	if len(order) != 2 || order[0] != CategorySport || order[1] != CategoryFilm {
		t.Errorf("Unexpected category order: %v", order)
	}
	if len(shards[CategorySport]) != 2 || shards[CategorySport][1].Title != "C" {
		t.Errorf("Unexpected sport shard: %+v", shards[CategorySport])
	}
}

func TestGroupByShard(t *testing.T) {
	records := []EventRecord{
		{Title: "A", Category: CategorySport},
		{Title: "B", Category: CategoryFilm},
	}

	shards, order := GroupByShard(records, []string{CategoryFilm, CategoryTheater, CategoryFilm})
	expected := []string{CategoryFilm, CategoryTheater, CategorySport}
	if strings.Join(order, "|") != strings.Join(expected, "|") {
		t.Errorf("Expected shard order %v, got %v", expected, order)
	}
	if got, ok := shards[CategoryTheater]; !ok || got == nil || len(got) != 0 {
		t.Errorf("Expected an empty, non-nil shard for a queried category without events, got %#v", got)
	}
	if len(shards[CategorySport]) != 1 || len(shards[CategoryFilm]) != 1 {
		t.Errorf("Unexpected shards: %+v", shards)
	}

	if _, order := GroupByShard(nil, []string{CategorySport}); len(order) != 1 || order[0] != CategorySport {
		t.Errorf("Expected a shard for the queried category of an empty day, got %v", order)
	}
}

func TestNewEventsMetadata(t *testing.T) {
	records := []EventRecord{
		{Title: "A", Category: CategorySport, Source: "ai"},
		{Title: "B", Category: CategoryFilm, Source: "scraper,ai"},
	}

	metadata := NewEventsMetadata("Wien", "2025-01-20", "run_1", records)
	if metadata.TotalEvents != 2 {
		t.Errorf("Expected 2 total events, got %d", metadata.TotalEvents)
	}
	if strings.Join(metadata.Sources, ",") != "ai,scraper" {
		t.Errorf("Expected sources ai,scraper, got %v", metadata.Sources)
	}
	if metadata.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set")
	}
}

func TestIDGeneration(t *testing.T) {
	id1 := GenerateEventID("Techno Night", "2025-01-20", "Flex")
	id2 := GenerateEventID("  techno night ", "2025-01-20", "FLEX")
	id3 := GenerateEventID("House Night", "2025-01-20", "Flex")

	if id1 != id2 {
		t.Errorf("Same inputs should generate same ID: %s != %s", id1, id2)
	}
	if id1 == id3 {
		t.Errorf("Different inputs should generate different IDs: %s == %s", id1, id3)
	}
	if len(id1) != 12 || id1[:4] != "evt_" {
		t.Errorf("Event ID should be 12 characters starting with 'evt_', got: %s", id1)
	}

	run := GenerateRunID(time.Date(2025, 1, 20, 6, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(run, "run_20250120T060000_") {
		t.Errorf("Unexpected run ID: %s", run)
	}
	if GenerateTaskID() == GenerateTaskID() {
		t.Error("Task IDs should be unique")
	}
}

func TestSources(t *testing.T) {
	testCases := []struct {
		a, b     string
		expected string
	}{
		{"ai", "scraper", "ai,scraper"},
		{"rss,ai", "ai", "rss,ai"},
		{"", "ai", "ai"},
		{"ai", "", "ai"},
		{"scraper, ai", "rss,scraper", "scraper,ai,rss"},
		{"", "", ""},
	}

	for _, tc := range testCases {
		if got := JoinSources(tc.a, tc.b); got != tc.expected {
			t.Errorf("JoinSources(%q, %q) = %q, expected %q", tc.a, tc.b, got, tc.expected)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"2025-01-20", "2025-01-20"},
		{"2025-1-5", "2025-01-05"},
		{"20.01.2025", "2025-01-20"},
		{"5.1.2025", "2025-01-05"},
		{"01/20/2025", "2025-01-20"},
		{"2025-01-20T20:00:00Z", "2025-01-20"},
		{"31.02.2025", "31.02.2025"},
		{"next friday", "next friday"},
		{"  ", ""},
	}

	for _, tc := range testCases {
		if got := NormalizeDate(tc.input); got != tc.expected {
			t.Errorf("NormalizeDate(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"20:00", "20:00"},
		{"9:30", "09:30"},
		{"20.30 Uhr", "20:30"},
		{"20 Uhr", "20:00"},
		{"8 PM", "20:00"},
		{"8:30 p.m.", "20:30"},
		{"12 AM", "00:00"},
		{"12 pm", "12:00"},
		{"19:00 - 23:00", "19:00"},
		{"20:00:00", "20:00"},
		{"2025-01-20T21:15:00", "21:15"},
		{"Ganztägig", AllDayTime},
		{"all day", AllDayTime},
		{"25:00", "25:00"},
		{"abends", "abends"},
		{"", ""},
	}

	for _, tc := range testCases {
		if got := NormalizeTime(tc.input); got != tc.expected {
			t.Errorf("NormalizeTime(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestUtilityFunctions(t *testing.T) {
	if !IsValidURL("https://example.com") {
		t.Error("Should validate correct HTTPS URL")
	}
	if !IsValidURL("http://example.com") {
		t.Error("Should validate correct HTTP URL")
	}
	if IsValidURL("invalid-url") {
		t.Error("Should reject invalid URL")
	}

	if LoadLocation("Not/AZone") != time.UTC {
		t.Error("Unknown location should fall back to UTC")
	}

	now := time.Date(2025, 1, 20, 23, 30, 0, 0, time.UTC)
	if got := TodayIn("Europe/Vienna", now); got != "2025-01-21" {
		t.Errorf("Expected Vienna date 2025-01-21, got %s", got)
	}
	if got := TodayIn("Not/AZone", now); got != "2025-01-20" {
		t.Errorf("Expected UTC fallback 2025-01-20, got %s", got)
	}
}

func TestSplitDateTimeIn(t *testing.T) {
	vienna := LoadLocation("Europe/Vienna")

	testCases := []struct {
		input string
		loc   *time.Location
		date  string
		clock string
	}{
		{"2025-01-20T23:30:00Z", vienna, "2025-01-21", "00:30"},
		{"2025-01-20T20:00:00+01:00", vienna, "2025-01-20", "20:00"},
		{"2025-07-01T18:00:00-04:00", vienna, "2025-07-02", "00:00"},
		{"2025-01-20T22:15Z", vienna, "2025-01-20", "23:15"},
		{"2025-01-20T23:30:00", vienna, "2025-01-20", "23:30"},
		{"2025-01-20T23:30:00Z", nil, "2025-01-20", "23:30"},
	}

	for _, tc := range testCases {
		date, clock, ok := SplitDateTimeIn(tc.input, tc.loc)
		if !ok || date != tc.date || clock != tc.clock {
			t.Errorf("SplitDateTimeIn(%q) = (%q, %q, %v), expected (%q, %q)", tc.input, date, clock, ok, tc.date, tc.clock)
		}
	}

	if _, _, ok := SplitDateTimeIn("20.01.2025", vienna); ok {
		t.Error("A dotted date is not a datetime")
	}
}
