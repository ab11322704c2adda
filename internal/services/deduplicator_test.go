package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"where2go-events/internal/models"
)

func baseRecord(overrides ...func(*models.EventRecord)) models.EventRecord {
	r := models.EventRecord{
		Title:    "Techno Night",
		Category: models.CategoryDJSets,
		Date:     "2025-01-20",
		Time:     "23:00",
		Venue:    "Flex",
		Source:   models.SourceAI,
	}
	for _, o := range overrides {
		o(&r)
	}
	return r
}

func TestDeduplicate_ExactDuplicateCollapse(t *testing.T) {
	d := NewDeduplicator(nil)

	out, stats := d.DeduplicateWithStats([]models.EventRecord{baseRecord(), baseRecord()})
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.ExactMerges)
	assert.Equal(t, 0, stats.FuzzyMerges)
}

func TestDeduplicate_NormalisedKey(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(),
		baseRecord(func(r *models.EventRecord) {
			r.Title = "  TECHNO   night!! "
			r.Venue = "flex."
			r.Date = "2025-01-20 "
		}),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "Techno Night", out[0].Title)
}

func TestDeduplicate_DistinctVenueNonMerge(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Venue = "Venue Alpha" }),
		baseRecord(func(r *models.EventRecord) { r.Venue = "Venue Beta" }),
	})
	assert.Len(t, out, 2)
}

func TestDeduplicate_FillMissingImage(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(),
		baseRecord(func(r *models.EventRecord) { r.ImageURL = "https://img.example/flex.jpg" }),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "https://img.example/flex.jpg", out[0].ImageURL)
}

func TestDeduplicate_FirstNonEmptyWins(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Price = "€15" }),
		baseRecord(func(r *models.EventRecord) {
			r.Price = "€20"
			r.Address = "Augartenbrücke 1"
			r.Source = models.SourceScraper
		}),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "€15", out[0].Price)
	assert.Equal(t, "Augartenbrücke 1", out[0].Address)
	assert.Equal(t, "ai,scraper", out[0].Source)
}

func TestDeduplicate_IdentityMergeNeverLosesData(t *testing.T) {
	full := models.EventRecord{
		Title:       "Techno Night",
		Category:    models.CategoryDJSets,
		Date:        "2025-01-20",
		Time:        "23:00",
		Venue:       "Flex",
		Address:     "Augartenbrücke 1",
		Price:       "€15",
		Website:     "https://flex.at",
		BookingLink: "https://tickets.example",
		Description: "All night",
		ImageURL:    "https://img.example",
		Source:      models.SourceAI,
	}
	sparse := models.EventRecord{Title: full.Title, Venue: full.Venue, Date: full.Date}

	for name, pair := range map[string][2]models.EventRecord{
		"full first":   {full, sparse},
		"sparse first": {sparse, full},
	} {
		t.Run(name, func(t *testing.T) {
			out := NewDeduplicator(nil).Deduplicate(pair[:])
			require.Len(t, out, 1)
			assert.Equal(t, full, out[0])
		})
	}
}

func TestDeduplicate_FuzzyMerge(t *testing.T) {
	d := NewDeduplicator(nil)

	out, stats := d.DeduplicateWithStats([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Title = "Techno Nights"; r.Venue = "Flex Wien" }),
		baseRecord(func(r *models.EventRecord) {
			r.Title = "Techno Night"
			r.Venue = "FLEX Wien"
			r.Website = "https://flex.at"
		}),
	})
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.FuzzyMerges)
	assert.Equal(t, "Techno Nights", out[0].Title)
	assert.Equal(t, "https://flex.at", out[0].Website)
}

// Sequels at the same venue on the same day clear the loose title threshold
// and collapse into the first listing.
func TestDeduplicate_SequelTitleMergesAtSameVenue(t *testing.T) {
	d := NewDeduplicator(nil)

	assert.InDelta(t, 9.0/11.0, Similarity(NormalizeText("Rock Night"), NormalizeText("Rock Night II")), 1e-9)

	out, stats := d.DeduplicateWithStats([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Title = "Rock Night"; r.Venue = "Arena Wien" }),
		baseRecord(func(r *models.EventRecord) { r.Title = "Rock Night II"; r.Venue = "Arena Wien" }),
	})
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.FuzzyMerges)
	assert.Equal(t, "Rock Night", out[0].Title)

	out = d.Deduplicate([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Title = "Rock Night"; r.Venue = "Venue Alpha" }),
		baseRecord(func(r *models.EventRecord) { r.Title = "Rock Night II"; r.Venue = "Venue Beta" }),
	})
	assert.Len(t, out, 2)
}

func TestDeduplicate_DatePartition(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Venue = "Flex Wien" }),
		baseRecord(func(r *models.EventRecord) {
			r.Venue = "Flex"
			r.Date = "2025-01-21"
		}),
	})
	assert.Len(t, out, 2)
}

func TestDeduplicate_Idempotent(t *testing.T) {
	d := NewDeduplicator(nil)

	inputs := [][]models.EventRecord{
		nil,
		{baseRecord()},
		{
			baseRecord(),
			baseRecord(func(r *models.EventRecord) { r.Title = "Techno Nights"; r.Venue = "Flex Wien" }),
			baseRecord(func(r *models.EventRecord) { r.Venue = "Venue Alpha" }),
			baseRecord(func(r *models.EventRecord) { r.Venue = "Venue Beta" }),
			baseRecord(func(r *models.EventRecord) { r.Date = "2025-01-21" }),
			baseRecord(func(r *models.EventRecord) { r.ImageURL = "https://img" }),
			{Venue: "Y", Website: "https://b", ParsingWarning: MissingTitleWarning},
			{Venue: "Y", BookingLink: "https://c"},
		},
	}

	for _, in := range inputs {
		once := d.Deduplicate(in)
		twice := d.Deduplicate(once)
		assert.Equal(t, once, twice)
	}
}

func TestDeduplicate_OrderOfFirstAppearance(t *testing.T) {
	d := NewDeduplicator(nil)

	out := d.Deduplicate([]models.EventRecord{
		baseRecord(func(r *models.EventRecord) { r.Title = "A Event"; r.Venue = "V1" }),
		baseRecord(func(r *models.EventRecord) { r.Title = "B Event"; r.Venue = "Other Place" }),
		baseRecord(func(r *models.EventRecord) { r.Title = "A Event"; r.Venue = "V1" }),
		baseRecord(func(r *models.EventRecord) { r.Title = "C Event"; r.Venue = "Somewhere" }),
	})
	require.Len(t, out, 3)
	assert.Equal(t, "A Event", out[0].Title)
	assert.Equal(t, "B Event", out[1].Title)
	assert.Equal(t, "C Event", out[2].Title)
}

func TestDeduplicate_DoesNotMutateInput(t *testing.T) {
	in := []models.EventRecord{
		baseRecord(),
		baseRecord(func(r *models.EventRecord) { r.ImageURL = "https://img" }),
	}
	NewDeduplicator(nil).Deduplicate(in)
	assert.Empty(t, in[0].ImageURL)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"abc", "abc", 1.0},
		{"abc", "cba", 1.0},
		{"venue alpha", "venue beta", 0.6},
		{"flex", "flex wien", 0.5},
		{"aaa", "a", 1.0 / 3.0},
		{"rock night", "rock night ii", 9.0 / 11.0},
		{"a b c", "abc", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.want, Similarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestIsFuzzyDuplicate(t *testing.T) {
	assert.True(t, IsFuzzyDuplicate(0.85, 0.7))
	assert.True(t, IsFuzzyDuplicate(0.95, 0.95))
	assert.False(t, IsFuzzyDuplicate(0.85, 0.6))
	assert.False(t, IsFuzzyDuplicate(0.8, 0.99))
	assert.False(t, IsFuzzyDuplicate(1.0, 0.5))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "technonight", NormalizeText("  Techno-Night!! "))
	assert.Equal(t, "techno night", NormalizeText("Techno   Night."))
	assert.Equal(t, "café", NormalizeText("Café"))
	assert.Equal(t, "rock n roll", NormalizeText("Rock 'n' Roll"))
}

func TestNormalizeDateKey(t *testing.T) {
	assert.Equal(t, "2025-01-20", NormalizeDateKey(" 2025-01-20 "))
	assert.Equal(t, "20.01.2025", NormalizeDateKey("Mo, 20.01.2025"))
	assert.Equal(t, "", NormalizeDateKey("heute"))
}
