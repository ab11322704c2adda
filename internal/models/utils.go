package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Lambda images ship without zoneinfo

	"github.com/google/uuid"
)

// GenerateEventID creates a stable ID for an event based on its identity fields
func GenerateEventID(title, date, venue string) string {
	normalizedTitle := strings.ToLower(strings.TrimSpace(title))
	normalizedDate := strings.ToLower(strings.TrimSpace(date))
	normalizedVenue := strings.ToLower(strings.TrimSpace(venue))

	input := fmt.Sprintf("%s|%s|%s", normalizedTitle, normalizedDate, normalizedVenue)
	hash := sha256.Sum256([]byte(input))

	return "evt_" + hex.EncodeToString(hash[:])[:8]
}

// GenerateRunID creates a unique ID for an aggregation run
func GenerateRunID(timestamp time.Time) string {
	return "run_" + timestamp.UTC().Format("20060102T150405") + "_" + uuid.New().String()[:8]
}

// GenerateTaskID creates a unique ID for a refresh task
func GenerateTaskID() string {
	return "task_" + uuid.New().String()
}

// IsValidURL performs basic URL validation
func IsValidURL(url string) bool {
	if url == "" {
		return false
	}

	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// SplitSources splits a comma-joined source union into its tags
func SplitSources(source string) []string {
	var tags []string
	for _, part := range strings.Split(source, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// JoinSources unions two source values preserving first-seen order
func JoinSources(a, b string) string {
	seen := make(map[string]bool)
	var tags []string
	for _, tag := range append(SplitSources(a), SplitSources(b)...) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return strings.Join(tags, ",")
}

var (
	isoDatePattern      = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	isoDateTimePattern  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ](\d{1,2}):(\d{2})`)
	dottedDatePattern   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	slashedDatePattern  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	clockPattern        = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})(?::\d{2})?\s*(?:uhr|h)?$`)
	hourOnlyPattern     = regexp.MustCompile(`^(\d{1,2})\s*(?:uhr|h)$`)
	meridiemPattern     = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\.?$`)
	leadingClockPattern = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})\s*(?:uhr|h)?\s*(?:-|–|bis)`)
)

var allDayPhrases = []string{"ganztags", "ganztägig", "ganztaegig", "all day", "all-day", "allday", "den ganzen tag"}

// SplitDateTime splits an ISO datetime such as 2025-01-20T20:00:00Z into
// its date and HH:mm parts. ok is false when value is not an ISO datetime.
func SplitDateTime(value string) (date, clock string, ok bool) {
	m := isoDateTimePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", "", false
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		return "", "", false
	}
	return m[1], fmt.Sprintf("%02d:%s", hour, m[3]), true
}

var zonedDateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// SplitDateTimeIn is SplitDateTime for datetimes that may carry a zone offset.
// An offset datetime is converted to loc first, so 2025-01-20T23:30:00Z is
// 2025-01-21 00:30 in Vienna. Without an offset, or with a nil loc, the wall
// clock is kept.
func SplitDateTimeIn(value string, loc *time.Location) (date, clock string, ok bool) {
	v := strings.TrimSpace(value)
	if loc != nil {
		for _, layout := range zonedDateTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				local := t.In(loc)
				return local.Format("2006-01-02"), local.Format("15:04"), true
			}
		}
	}
	return SplitDateTime(v)
}

// NormalizeDate converts DD.MM.YYYY and MM/DD/YYYY dates to YYYY-MM-DD.
// Unrecognised values are returned trimmed but otherwise unchanged.
func NormalizeDate(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if date, _, ok := SplitDateTime(v); ok {
		return date
	}
	if m := isoDatePattern.FindStringSubmatch(v); m != nil {
		return formatDate(m[1], m[2], m[3], v)
	}
	if m := dottedDatePattern.FindStringSubmatch(v); m != nil {
		return formatDate(m[3], m[2], m[1], v)
	}
	if m := slashedDatePattern.FindStringSubmatch(v); m != nil {
		return formatDate(m[3], m[1], m[2], v)
	}
	return v
}

func formatDate(year, month, day, original string) string {
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return original
	}
	return t.Format("2006-01-02")
}

// NormalizeTime converts 20:00, 20.30 Uhr, 20 Uhr and 8 PM to HH:mm and all-day
// phrases to AllDayTime. Ranges keep their start time. Unrecognised values are
// returned trimmed but otherwise unchanged.
func NormalizeTime(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	for _, phrase := range allDayPhrases {
		if strings.Contains(lower, phrase) {
			return AllDayTime
		}
	}
	if _, clock, ok := SplitDateTime(v); ok {
		return clock
	}
	if m := clockPattern.FindStringSubmatch(lower); m != nil {
		return formatClock(m[1], m[2], v)
	}
	if m := leadingClockPattern.FindStringSubmatch(lower); m != nil {
		return formatClock(m[1], m[2], v)
	}
	if m := hourOnlyPattern.FindStringSubmatch(lower); m != nil {
		return formatClock(m[1], "00", v)
	}
	if m := meridiemPattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 1 || hour > 12 {
			return v
		}
		if m[3] == "p" && hour != 12 {
			hour += 12
		}
		if m[3] == "a" && hour == 12 {
			hour = 0
		}
		minute := m[2]
		if minute == "" {
			minute = "00"
		}
		return formatClock(strconv.Itoa(hour), minute, v)
	}
	return v
}

func formatClock(hour, minute, original string) string {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	if h > 23 || m > 59 {
		return original
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// DefaultTimezone is the timezone of the event calendar unless configured
const DefaultTimezone = "Europe/Vienna"

// LoadLocation loads the named IANA location, falling back to UTC
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TodayIn returns the current date in the named IANA location, falling back to UTC
func TodayIn(location string, now time.Time) string {
	loc, err := time.LoadLocation(location)
	if err != nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}
