package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"where2go-events/internal/models"
)

// germanMonths maps German and English month names and abbreviations
var germanMonths = map[string]int{
	"jänner": 1, "jaenner": 1, "januar": 1, "jan": 1, "january": 1,
	"februar": 2, "feb": 2, "february": 2,
	"märz": 3, "maerz": 3, "mär": 3, "mar": 3, "march": 3,
	"april": 4, "apr": 4,
	"mai": 5, "may": 5,
	"juni": 6, "jun": 6, "june": 6,
	"juli": 7, "jul": 7, "july": 7,
	"august": 8, "aug": 8,
	"september": 9, "sep": 9, "sept": 9,
	"oktober": 10, "okt": 10, "oct": 10, "october": 10,
	"november": 11, "nov": 11,
	"dezember": 12, "dez": 12, "dec": 12, "december": 12,
}

var (
	dottedVenueDate  = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{2,4})`)
	slashedVenueDate = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?`)

	// a range such as "26. November - 27. November 2025" takes the year from its end
	namedMonth   = regexp.MustCompile(`(\d{1,2})\.\s*(\p{L}+)(?:\s+(\d{4})|\s*-\s*\d{1,2}\.\s*\p{L}+\s+(\d{4}))?`)
	titleDate    = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})`)
	labeledClock = regexp.MustCompile(`(?:doors?|einlass|start|beginn)[:\s]+(\d{1,2})[:.](\d{2})`)
	plainClock   = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	dottedClock  = regexp.MustCompile(`(\d{1,2})\.(\d{2})\s*uhr`)

	currencyFirst = regexp.MustCompile(`(?i)(?:€|eur|euro)\s*(\d+(?:[.,]\d{1,2})?)`)
	amountFirst   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*(?:€|eur|euro)`)
	fromAmount    = regexp.MustCompile(`(?i)(?:^|\s)(?:ab|from)\s+(?:€|eur)?\s*(\d+(?:[.,]\d{1,2})?)`)
)

var freeEntryPhrases = []string{"eintritt frei", "freier eintritt", "gratis", "kostenlos", "free"}

// ParseGermanDate converts a venue date label to YYYY-MM-DD. Labels without a
// year get the next occurrence of that day relative to now. Returns "" when
// nothing date-like is found.
func ParseGermanDate(text string, now time.Time) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if isISODate(text) {
		return text
	}
	if d, _, ok := models.SplitDateTime(text); ok {
		return d
	}

	lower := strings.ToLower(text)

	if m := dottedVenueDate.FindStringSubmatch(lower); m != nil {
		if d, ok := buildDate(expandYear(m[3]), atoi(m[2]), atoi(m[1]), now); ok {
			return d
		}
	}
	if m := slashedVenueDate.FindStringSubmatch(lower); m != nil {
		if d, ok := buildDate(expandYear(m[3]), atoi(m[2]), atoi(m[1]), now); ok {
			return d
		}
	}
	for _, m := range namedMonth.FindAllStringSubmatch(lower, -1) {
		year := m[3]
		if year == "" {
			year = m[4]
		}
		if d, ok := buildDate(expandYear(year), germanMonths[m[2]], atoi(m[1]), now); ok {
			return d
		}
	}
	return ""
}

// ExtractDateFromTitle finds a DD/MM or DD.MM date inside an event title
func ExtractDateFromTitle(title string, now time.Time) string {
	m := titleDate.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	d, _ := buildDate(0, atoi(m[2]), atoi(m[1]), now)
	return d
}

// ParseClockTime extracts a start time such as "Einlass 19:00" or "23:00 Uhr"
// as HH:mm. All-day labels map to the all-day sentinel.
func ParseClockTime(text string) string {
	lower := strings.ToLower(text)
	for _, p := range []*regexp.Regexp{labeledClock, plainClock, dottedClock} {
		for _, m := range p.FindAllStringSubmatch(lower, -1) {
			hour, minute := atoi(m[1]), atoi(m[2])
			if hour <= 23 && minute <= 59 {
				return fmt.Sprintf("%02d:%02d", hour, minute)
			}
		}
	}
	if models.NormalizeTime(text) == models.AllDayTime {
		return models.AllDayTime
	}
	return ""
}

// ExtractPrice normalises a price label to "gratis", "€15" or "ab €12"
func ExtractPrice(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return ""
	}
	for _, phrase := range freeEntryPhrases {
		if strings.Contains(lower, phrase) {
			return "gratis"
		}
	}

	if m := fromAmount.FindStringSubmatch(lower); m != nil {
		return "ab €" + normalizeAmount(m[1])
	}
	for _, p := range []*regexp.Regexp{currencyFirst, amountFirst} {
		if m := p.FindStringSubmatch(lower); m != nil {
			return "€" + normalizeAmount(m[1])
		}
	}
	return ""
}

func normalizeAmount(amount string) string {
	return strings.Replace(amount, ",", ".", 1)
}

// buildDate validates the parts and infers a missing year (0): a day already
// past this year rolls over to next year.
func buildDate(year, month, day int, now time.Time) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	if year == 0 {
		year = now.Year()
		if month < int(now.Month()) || (month == int(now.Month()) && day < now.Day()) {
			year++
		}
	}
	if year < 2020 {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// expandYear turns "" into 0 (unknown) and two-digit years into 20xx
func expandYear(s string) int {
	if s == "" {
		return 0
	}
	y := atoi(s)
	if len(s) < 4 {
		y += 2000
	}
	return y
}

func isISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
