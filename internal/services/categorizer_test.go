package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"where2go-events/internal/models"
)

func newTestCategorizer(t *testing.T, tax *models.Taxonomy) *Categorizer {
	t.Helper()
	c, err := NewCategorizer(tax)
	require.NoError(t, err)
	return c
}

func TestNewCategorizer_EmptyTaxonomy(t *testing.T) {
	_, err := NewCategorizer(nil)
	assert.ErrorIs(t, err, models.ErrEmptyTaxonomy)
}

func TestCategorizer_KeywordMatch(t *testing.T) {
	c := newTestCategorizer(t, models.DefaultTaxonomy())

	tests := []struct {
		title string
		venue string
		want  string
	}{
		{"Techno Rave", "Flex", models.CategoryDJSets},
		{"Stand-up Comedy Night", "Orpheum", models.CategoryComedy},
		{"Vernissage: Neue Malerei", "Galerie Krinzinger", models.CategoryArt},
		{"Sonntagsbrunch", "Café Central", models.CategoryFood},
		{"Morning Yoga", "Stadtpark", models.CategoryNature},
		{"Something", "Staatsoper", models.CategoryClassical},
		{"Mystery Evening", "Unknown Place", models.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			out := c.Categorize([]models.EventRecord{{Title: tt.title, Venue: tt.venue}})
			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Category)
		})
	}
}

func TestCategorizer_LowestCategoryIndexWins(t *testing.T) {
	tax, err := models.NewTaxonomy([]models.Category{
		{Name: "First", Keywords: []string{"night"}},
		{Name: "Second", Keywords: []string{"jazz"}},
		{Name: "Rest"},
	})
	require.NoError(t, err)
	c := newTestCategorizer(t, tax)

	// "jazz" occurs before "night" in the text but First is earlier in the taxonomy
	assert.Equal(t, "First", c.CategoryFor("Jazz Night"))
	assert.Equal(t, "Second", c.CategoryFor("Jazz Brunch"))
	assert.Equal(t, "Rest", c.CategoryFor("Brunch"))
}

func TestCategorizer_DuplicateKeywordOwnedByFirstCategory(t *testing.T) {
	tax, err := models.NewTaxonomy([]models.Category{
		{Name: "A", Keywords: []string{"other"}},
		{Name: "B", Keywords: []string{"festival", "Open"}},
		{Name: "C", Keywords: []string{"FESTIVAL"}},
	})
	require.NoError(t, err)
	c := newTestCategorizer(t, tax)

	assert.Equal(t, "B", c.CategoryFor("Summer Festival"))
	assert.Equal(t, "B", c.CategoryFor("OPEN stage"))
}

func TestCategorizer_KeepsRealCategories(t *testing.T) {
	c := newTestCategorizer(t, models.DefaultTaxonomy())

	in := []models.EventRecord{
		{Title: "Techno Rave", Category: models.CategorySport},
		{Title: "Techno Rave", Category: "Custom Label"},
		{Title: "Techno Rave", Category: "Events"},
		{Title: "Techno Rave", Category: "  "},
	}
	out := c.Categorize(in)

	assert.Equal(t, models.CategorySport, out[0].Category)
	assert.Equal(t, "Custom Label", out[1].Category)
	assert.Equal(t, models.CategoryDJSets, out[2].Category)
	assert.Equal(t, models.CategoryDJSets, out[3].Category)

	// input is left untouched
	assert.Equal(t, "Events", in[2].Category)
}

func TestCategorizer_Canonicalize(t *testing.T) {
	c := newTestCategorizer(t, models.DefaultTaxonomy())

	records := []models.EventRecord{
		{Title: "Late Session", Venue: "Porgy & Bess", Category: "Jazz"},
		{Title: "Derby", Venue: "Allianz Stadion", Category: "Fußball"},
		{Title: "Quidditch Cup", Venue: "Prater", Category: "Quidditch"},
		{Title: "Sommerfest", Venue: "Donauinsel", Category: "festival"},
		{Title: "Tosca", Venue: "Staatsoper", Category: models.CategoryClassical},
		{Title: "Techno Night", Venue: "Flex", Category: ""},
	}

	out := c.Canonicalize(records)
	require.Len(t, out, len(records))
	assert.Equal(t, models.CategoryLiveConcerts, out[0].Category)
	assert.Equal(t, models.CategorySport, out[1].Category)
	assert.Equal(t, models.DefaultTaxonomy().Fallback(), out[2].Category)
	assert.Equal(t, models.CategoryOpenAir, out[3].Category)
	assert.Equal(t, models.CategoryClassical, out[4].Category)
	assert.Equal(t, models.CategoryDJSets, out[5].Category)

	assert.Equal(t, "Jazz", records[0].Category, "input must not be modified")
}

func TestCategorizer_NoKeywords(t *testing.T) {
	tax, err := models.NewTaxonomy([]models.Category{{Name: "Only"}})
	require.NoError(t, err)
	c := newTestCategorizer(t, tax)

	assert.Equal(t, "Only", c.CategoryFor("anything"))
}

func TestCategorizer_ConcurrentUse(t *testing.T) {
	c := newTestCategorizer(t, models.DefaultTaxonomy())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.Equal(t, models.CategoryDJSets, c.CategoryFor("techno rave"))
			}
		}()
	}
	wg.Wait()
}
