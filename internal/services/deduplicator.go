package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// Fuzzy match thresholds. A pair is a duplicate when
// (title > TitleLoose and venue > VenueLoose) or (title > TitleStrict and venue > VenueStrict).
const (
	TitleLooseThreshold  = 0.8
	VenueLooseThreshold  = 0.6
	TitleStrictThreshold = 0.9
	VenueStrictThreshold = 0.9
)

// DedupStats counts the merges performed by one Deduplicate call
type DedupStats struct {
	Input       int
	Output      int
	ExactMerges int
	FuzzyMerges int
}

// dedupKey is the normalized identity of a record
type dedupKey struct {
	title string
	venue string
	date  string
}

// Deduplicator collapses records describing the same event. Earlier records
// win: later duplicates only fill their missing fields.
type Deduplicator struct {
	logger logger.Logger
}

// NewDeduplicator creates a deduplicator
func NewDeduplicator(log logger.Logger) *Deduplicator {
	return &Deduplicator{logger: logger.OrNop(log)}
}

// Deduplicate returns the unique records in order of first appearance
func (d *Deduplicator) Deduplicate(records []models.EventRecord) []models.EventRecord {
	out, _ := d.DeduplicateWithStats(records)
	return out
}

// DeduplicateWithStats is Deduplicate plus merge counts
func (d *Deduplicator) DeduplicateWithStats(records []models.EventRecord) ([]models.EventRecord, DedupStats) {
	stats := DedupStats{Input: len(records)}
	out := make([]models.EventRecord, 0, len(records))
	keys := make([]dedupKey, 0, len(records))
	byKey := make(map[dedupKey]int, len(records))
	byDate := make(map[string][]int)

	for _, record := range records {
		key := recordKey(record)

		if idx, ok := byKey[key]; ok {
			out[idx] = MergeRecords(out[idx], record)
			stats.ExactMerges++
			continue
		}

		matched := -1
		for _, idx := range byDate[key.date] {
			titleSim := Similarity(key.title, keys[idx].title)
			venueSim := Similarity(key.venue, keys[idx].venue)
			if IsFuzzyDuplicate(titleSim, venueSim) {
				d.logger.Debug("Merging fuzzy duplicate",
					logger.String("title", record.Title),
					logger.String("into", out[idx].Title),
					logger.String("venue", record.Venue),
					logger.String("date", record.Date),
					logger.Float64("title_sim", titleSim),
					logger.Float64("venue_sim", venueSim))
				matched = idx
				break
			}
		}
		if matched >= 0 {
			out[matched] = MergeRecords(out[matched], record)
			byKey[key] = matched
			stats.FuzzyMerges++
			continue
		}

		byKey[key] = len(out)
		byDate[key.date] = append(byDate[key.date], len(out))
		keys = append(keys, key)
		out = append(out, record)
	}

	stats.Output = len(out)
	return out, stats
}

// IsFuzzyDuplicate applies the two-tier similarity gate
func IsFuzzyDuplicate(titleSim, venueSim float64) bool {
	return (titleSim > TitleLooseThreshold && venueSim > VenueLooseThreshold) ||
		(titleSim > TitleStrictThreshold && venueSim > VenueStrictThreshold)
}

// MergeRecords fills existing's empty fields from candidate and unions the
// source tags. Neither argument is modified.
func MergeRecords(existing, candidate models.EventRecord) models.EventRecord {
	merged := existing
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	fill(&merged.Title, candidate.Title)
	fill(&merged.Category, candidate.Category)
	fill(&merged.Date, candidate.Date)
	fill(&merged.Time, candidate.Time)
	fill(&merged.Venue, candidate.Venue)
	fill(&merged.Address, candidate.Address)
	fill(&merged.Price, candidate.Price)
	fill(&merged.Website, candidate.Website)
	fill(&merged.BookingLink, candidate.BookingLink)
	fill(&merged.Description, candidate.Description)
	fill(&merged.ImageURL, candidate.ImageURL)
	fill(&merged.ParsingWarning, candidate.ParsingWarning)
	merged.Source = models.JoinSources(existing.Source, candidate.Source)
	return merged
}

func recordKey(r models.EventRecord) dedupKey {
	return dedupKey{
		title: NormalizeText(r.Title),
		venue: NormalizeText(r.Venue),
		date:  NormalizeDateKey(r.Date),
	}
}

// NormalizeText lowercases, drops punctuation and symbols, and collapses
// whitespace after NFC composition
func NormalizeText(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeDateKey keeps only digits and the separators - . /
func NormalizeDateKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' || r == '/' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity is an order-insensitive character overlap ratio: the number of
// characters of the shorter string that can be matched, each at most once, in
// the longer string, divided by the longer string's length. Whitespace is
// ignored. Two empty strings are identical.
func Similarity(a, b string) float64 {
	ra := []rune(strings.Join(strings.Fields(a), ""))
	rb := []rune(strings.Join(strings.Fields(b), ""))
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	longer, shorter := ra, rb
	if len(rb) > len(ra) {
		longer, shorter = rb, ra
	}

	available := make(map[rune]int, len(longer))
	for _, r := range longer {
		available[r]++
	}
	matches := 0
	for _, r := range shorter {
		if available[r] > 0 {
			available[r]--
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}
