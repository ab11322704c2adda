package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"where2go-events/internal/models"
)

func newTestParser(t *testing.T) *ResponseParser {
	t.Helper()
	p, err := NewResponseParser(models.DefaultTaxonomy(), nil)
	require.NoError(t, err)
	return p
}

func TestNewResponseParser_EmptyTaxonomy(t *testing.T) {
	_, err := NewResponseParser(nil, nil)
	assert.ErrorIs(t, err, models.ErrEmptyTaxonomy)
}

func TestIsNegativeResponse(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   \n\t", true},
		{"No events found.", true},
		{"no matching events were found for this date", true},
		{"**No events found** for Vienna on 2025-01-20. Try another day.", true},
		{"Keine passenden Events gefunden", true},
		{"keine Veranstaltungen gefunden, versuche es später", true},
		{"Leider wurden keine passenden Events für diesen Tag gefunden.", true},
		{"Keine Events verfügbar", true},
		{"Here are the events: no events found elsewhere", false},
		{`[{"title":"A"}]`, false},
		{"Techno Night @ Flex 23:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNegativeResponse(tt.text))
		})
	}
}

func TestParse_EmptyAndNegative(t *testing.T) {
	p := newTestParser(t)

	for _, text := range []string{"", "[]", "Keine passenden Events gefunden"} {
		t.Run(text, func(t *testing.T) {
			records := p.ParseEvents(text, models.CategoryLiveConcerts, "2025-01-20")
			assert.NotNil(t, records)
			assert.Empty(t, records)
		})
	}

	result := p.Parse("No events found. Here is some JSON anyway: [{\"title\":\"A\"}]", ParseContext{})
	assert.True(t, result.Negative)
	assert.Equal(t, StrategyNegative, result.Strategy)
	assert.Empty(t, result.Records)

	result = p.Parse("[]", ParseContext{})
	assert.False(t, result.Negative)
	assert.Equal(t, StrategyJSONArray, result.Strategy)
}

func TestParse_JSONPrecedenceOverContext(t *testing.T) {
	p := newTestParser(t)

	records := p.ParseEvents(
		`[{"title":"X","category":"Open Air","date":"2025-01-21","venue":"Donauinsel"}]`,
		models.CategoryLiveConcerts, "2025-01-20")
	require.Len(t, records, 1)
	assert.Equal(t, models.CategoryOpenAir, records[0].Category)
	assert.Equal(t, "2025-01-21", records[0].Date)
}

func TestParse_ContextFillOnOmission(t *testing.T) {
	p := newTestParser(t)

	records := p.ParseEvents(`[{"title":"X","venue":"Y"}]`, models.CategoryDJSets, "2025-01-20")
	require.Len(t, records, 1)
	assert.Equal(t, models.CategoryDJSets, records[0].Category)
	assert.Equal(t, "2025-01-20", records[0].Date)
}

func TestParse_SalvageFromNoise(t *testing.T) {
	p := newTestParser(t)

	text := ">>> preface\n[{\"title\":\"A\",\"website\":\"https://a\"},{\"venue\":\"Y\",\"website\":\"https://b\"}]\n<<< epilogue"
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyJSONSalvage, result.Strategy)
	assert.Equal(t, "A", result.Records[0].Title)
	assert.Empty(t, result.Records[0].ParsingWarning)
	assert.Empty(t, result.Records[1].Title)
	assert.Equal(t, MissingTitleWarning, result.Records[1].ParsingWarning)
	assert.Equal(t, 1, result.Warnings)
}

func TestParse_FencedJSON(t *testing.T) {
	p := newTestParser(t)

	text := "```json\n[\n  {\"title\": \"Jazz Night\", \"venue\": \"Porgy & Bess\", \"time\": \"20:00\"}\n]\n```"
	result := p.Parse(text, ParseContext{Date: "2025-01-20"})

	require.Len(t, result.Records, 1)
	assert.Equal(t, StrategyJSONArray, result.Strategy)
	assert.Equal(t, "Jazz Night", result.Records[0].Title)
	assert.Equal(t, "2025-01-20", result.Records[0].Date)
}

func TestParse_WrapperObject(t *testing.T) {
	p := newTestParser(t)

	result := p.Parse(`{"events":[{"title":"A","venue":"V1"},{"title":"B","venue":"V2"}]}`, ParseContext{})
	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyJSONArray, result.Strategy)

	result = p.Parse(`{"title":"Single","venue":"V"}`, ParseContext{})
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Single", result.Records[0].Title)
}

func TestParse_EmbeddedObjects(t *testing.T) {
	p := newTestParser(t)

	text := `Here are two events. First: {"title":"A","venue":"V1"} and then {"title":"B","venue":"V2"}. Broken: {"title": "C",`
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyJSONObjects, result.Strategy)
	assert.Equal(t, "A", result.Records[0].Title)
	assert.Equal(t, "B", result.Records[1].Title)
}

func TestParse_BracketsInsideStrings(t *testing.T) {
	p := newTestParser(t)

	text := `Result: [{"title":"Rock [Live] Night","venue":"Arena ]"}] done`
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 1)
	assert.Equal(t, "Rock [Live] Night", result.Records[0].Title)
	assert.Equal(t, "Arena ]", result.Records[0].Venue)
}

func TestParse_JSONLines(t *testing.T) {
	p := newTestParser(t)

	// each line is a complete object but the first line is unbalanced noise
	text := "results {\n" +
		`{"title":"A","venue":"V1"}` + "\n" +
		`{"title":"B","venue":"V2"}` + "\n"
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyJSONLines, result.Strategy)
}

func TestParse_TableFallback(t *testing.T) {
	p := newTestParser(t)

	text := `Here is what I found:

| Title | Category | Date | Time | Venue | Price | Website |
|-------|----------|------|------|-------|-------|---------|
| Techno Night | DJ Sets/Electronic | 2025-01-20 | 23:00 | Flex | €15 | https://flex.at |
| Jazz Brunch | Live-Konzerte | 2025-01-20 | 11:00 | Porgy & Bess | €25 | https://porgy.at |
`
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyTable, result.Strategy)
	assert.Equal(t, "Techno Night", result.Records[0].Title)
	assert.Equal(t, "Jazz Brunch", result.Records[1].Title)
	assert.Equal(t, "Flex", result.Records[0].Venue)
	assert.Equal(t, "https://porgy.at", result.Records[1].Website)
}

func TestParse_FreeText(t *testing.T) {
	p := newTestParser(t)

	text := `Tonight in Vienna:
- Techno Night @ Flex, 23:00
- Jazz Brunch at Porgy & Bess, 11:00 Uhr
Enjoy your evening!`
	result := p.Parse(text, ParseContext{Date: "2025-01-20"})

	require.Len(t, result.Records, 2)
	assert.Equal(t, StrategyFreeText, result.Strategy)
	assert.Equal(t, "Techno Night", result.Records[0].Title)
	assert.Equal(t, "Flex", result.Records[0].Venue)
	assert.Equal(t, "23:00", result.Records[0].Time)
	assert.Equal(t, models.GenericCategoryLabel, result.Records[0].Category)
	assert.Equal(t, "2025-01-20", result.Records[0].Date)
	assert.Equal(t, "11:00", result.Records[1].Time)

	result = p.Parse("- Techno Night @ Flex, 23:00", ParseContext{Category: models.CategoryDJSets})
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.CategoryDJSets, result.Records[0].Category)
}

func TestParse_NothingFound(t *testing.T) {
	p := newTestParser(t)

	result := p.Parse("I could not browse the web right now, sorry.", ParseContext{})
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Strategy)
	assert.False(t, result.Negative)
}

func TestParse_DoesNotDegradeWellFormedJSON(t *testing.T) {
	p := newTestParser(t)

	// a valid array whose text would also satisfy the table and free-text strategies
	text := `[{"title":"A | B | C","venue":"Flex @ 23:00","website":"https://flex.at"}]`
	result := p.Parse(text, ParseContext{})

	require.Len(t, result.Records, 1)
	assert.Equal(t, StrategyJSONArray, result.Strategy)
	assert.Equal(t, "A | B | C", result.Records[0].Title)
}
