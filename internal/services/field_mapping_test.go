package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"where2go-events/internal/models"
)

func decodeCandidate(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var c map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func TestCanonicalField(t *testing.T) {
	tests := []struct {
		key   string
		field string
		ok    bool
	}{
		{"name", FieldTitle, true},
		{"Event_Name", FieldTitle, true},
		{"  Location ", FieldVenue, true},
		{"url", FieldWebsite, true},
		{"ticketUrl", FieldBookingLink, true},
		{"poster", FieldImageURL, true},
		{"Datum", FieldDate, true},
		{"Preis", FieldPrice, true},
		{"organizer", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			field, ok := CanonicalField(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestEventFieldMappings_NoDuplicateKeys(t *testing.T) {
	seen := make(map[string]string)
	for _, m := range EventFieldMappings {
		for _, k := range m.Keys {
			if owner, ok := seen[k]; ok {
				t.Errorf("key %q mapped to both %s and %s", k, owner, m.Field)
			}
			seen[k] = m.Field
		}
	}
}

func TestFieldExtractor_Synonyms(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	record, ok := fe.Extract(decodeCandidate(t, `{
		"name": "Techno Night",
		"location": "Flex",
		"url": "https://flex.at/techno",
		"ticket_url": "https://tickets.example/1",
		"image_url": "https://img.example/1.jpg",
		"preis": "€15",
		"summary": "All night long"
	}`), ParseContext{})
	require.True(t, ok)

	assert.Equal(t, "Techno Night", record.Title)
	assert.Equal(t, "Flex", record.Venue)
	assert.Equal(t, "https://flex.at/techno", record.Website)
	assert.Equal(t, "https://tickets.example/1", record.BookingLink)
	assert.Equal(t, "https://img.example/1.jpg", record.ImageURL)
	assert.Equal(t, "€15", record.Price)
	assert.Equal(t, "All night long", record.Description)
	assert.Empty(t, record.ParsingWarning)
}

func TestFieldExtractor_CaseInsensitiveKeys(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	record, ok := fe.Extract(decodeCandidate(t, `{"Title": "Jazz Brunch", "VENUE": "Porgy & Bess"}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, "Jazz Brunch", record.Title)
	assert.Equal(t, "Porgy & Bess", record.Venue)
}

func TestFieldExtractor_ContextPrecedence(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())
	ctx := ParseContext{Category: models.CategoryLiveConcerts, Date: "2025-01-20", Source: models.SourceAI}

	t.Run("parsed values win", func(t *testing.T) {
		record, ok := fe.Extract(decodeCandidate(t, `{"title":"X","category":"Open Air","date":"2025-01-21","source":"rss"}`), ctx)
		require.True(t, ok)
		assert.Equal(t, models.CategoryOpenAir, record.Category)
		assert.Equal(t, "2025-01-21", record.Date)
		assert.Equal(t, models.SourceRSS, record.Source)
	})

	t.Run("context fills omissions", func(t *testing.T) {
		record, ok := fe.Extract(decodeCandidate(t, `{"title":"X","venue":"Y"}`), ctx)
		require.True(t, ok)
		assert.Equal(t, models.CategoryLiveConcerts, record.Category)
		assert.Equal(t, "2025-01-20", record.Date)
		assert.Equal(t, models.SourceAI, record.Source)
	})

	t.Run("context date is normalised", func(t *testing.T) {
		record, ok := fe.Extract(decodeCandidate(t, `{"title":"X"}`), ParseContext{Date: "20.01.2025"})
		require.True(t, ok)
		assert.Equal(t, "2025-01-20", record.Date)
	})
}

func TestFieldExtractor_AbsentValues(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	tests := []struct {
		name string
		raw  string
	}{
		{"null", `{"title":"A","imageUrl":null}`},
		{"null string", `{"title":"A","imageUrl":"null"}`},
		{"blank", `{"title":"A","imageUrl":"   "}`},
		{"empty array", `{"title":"A","imageUrl":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := fe.Extract(decodeCandidate(t, tt.raw), ParseContext{})
			require.True(t, ok)
			assert.Empty(t, record.ImageURL)
		})
	}
}

func TestFieldExtractor_ImageSynonymFallthrough(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	// an empty imageUrl does not hide a later synonym
	record, ok := fe.Extract(decodeCandidate(t, `{"title":"A","imageUrl":"","thumbnail":"https://img/t.png"}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, "https://img/t.png", record.ImageURL)

	record, ok = fe.Extract(decodeCandidate(t, `{"title":"A","image":["", "https://img/1.png", "https://img/2.png"]}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, "https://img/1.png", record.ImageURL)
}

func TestFieldExtractor_ScalarsAndNested(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	record, ok := fe.Extract(decodeCandidate(t, `{
		"title": "Open Mic",
		"price": 12.5,
		"location": {"name": "Café Carina", "address": "Josefstädter Str. 84"}
	}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, "12.5", record.Price)
	assert.Equal(t, "Café Carina", record.Venue)
	assert.Equal(t, "Josefstädter Str. 84", record.Address)
}

func TestFieldExtractor_DateTimeNormalisation(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	tests := []struct {
		name string
		raw  string
		date string
		time string
	}{
		{"iso datetime", `{"title":"A","startDate":"2025-01-20T20:30:00+01:00"}`, "2025-01-20", "20:30"},
		{"explicit time wins over datetime", `{"title":"A","date":"2025-01-20T20:30:00","time":"19:00"}`, "2025-01-20", "19:00"},
		{"german date", `{"title":"A","datum":"21.01.2025","uhrzeit":"20 Uhr"}`, "2025-01-21", "20:00"},
		{"us date", `{"title":"A","date":"01/22/2025","time":"8 PM"}`, "2025-01-22", "20:00"},
		{"dotted time", `{"title":"A","date":"2025-01-20","time":"20.30 Uhr"}`, "2025-01-20", "20:30"},
		{"all day", `{"title":"A","date":"2025-01-20","time":"ganztägig"}`, "2025-01-20", models.AllDayTime},
		{"unparseable kept", `{"title":"A","date":"next friday","time":"late"}`, "next friday", "late"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := fe.Extract(decodeCandidate(t, tt.raw), ParseContext{})
			require.True(t, ok)
			assert.Equal(t, tt.date, record.Date)
			assert.Equal(t, tt.time, record.Time)
		})
	}
}

func TestFieldExtractor_ZonedDateTime(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())
	ctx := ParseContext{Location: models.LoadLocation("Europe/Vienna")}

	record, ok := fe.Extract(decodeCandidate(t, `{"title":"Late Show","start":"2025-01-20T23:30:00Z"}`), ctx)
	require.True(t, ok)
	assert.Equal(t, "2025-01-21", record.Date)
	assert.Equal(t, "00:30", record.Time)

	record, ok = fe.Extract(decodeCandidate(t, `{"title":"Local","date":"2025-01-20T23:30:00"}`), ctx)
	require.True(t, ok)
	assert.Equal(t, "2025-01-20", record.Date)
	assert.Equal(t, "23:30", record.Time)
}

func TestFieldExtractor_CategoryNormalisation(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	record, ok := fe.Extract(decodeCandidate(t, `{"title":"A","genre":"konzert"}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, models.CategoryLiveConcerts, record.Category)

	record, ok = fe.Extract(decodeCandidate(t, `{"title":"A","category":"Underwater Basket Weaving"}`), ParseContext{})
	require.True(t, ok)
	assert.Equal(t, "Underwater Basket Weaving", record.Category)
}

func TestFieldExtractor_MissingTitle(t *testing.T) {
	fe := NewFieldExtractor(models.DefaultTaxonomy())

	t.Run("kept with warning when a meaningful field exists", func(t *testing.T) {
		record, ok := fe.Extract(decodeCandidate(t, `{"venue":"Y","website":"https://b"}`), ParseContext{})
		require.True(t, ok)
		assert.Equal(t, MissingTitleWarning, record.ParsingWarning)
		assert.Equal(t, "Y", record.Venue)
	})

	t.Run("discarded without any meaningful field", func(t *testing.T) {
		_, ok := fe.Extract(decodeCandidate(t, `{"description":"something","price":"10"}`), ParseContext{Category: "Sport"})
		assert.False(t, ok)
	})

	t.Run("discarded when empty", func(t *testing.T) {
		_, ok := fe.Extract(map[string]interface{}{}, ParseContext{})
		assert.False(t, ok)
	})
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"nil", nil, ""},
		{"trimmed", "  hi  ", "hi"},
		{"null string", "NULL", ""},
		{"integer float", float64(15), "15"},
		{"float", 9.99, "9.99"},
		{"bool", true, "true"},
		{"array", []interface{}{nil, "", "b"}, "b"},
		{"object name", map[string]interface{}{"Name": "Flex"}, "Flex"},
		{"object url", map[string]interface{}{"@type": "ImageObject", "url": "https://i"}, "https://i"},
		{"object without name", map[string]interface{}{"lat": 48.2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stringify(tt.value))
		})
	}
}
