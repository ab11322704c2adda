package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"where2go-events/internal/models"
)

// Canonical record field names
const (
	FieldTitle       = "title"
	FieldCategory    = "category"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldVenue       = "venue"
	FieldAddress     = "address"
	FieldPrice       = "price"
	FieldWebsite     = "website"
	FieldBookingLink = "bookingLink"
	FieldDescription = "description"
	FieldImageURL    = "imageUrl"
	FieldSource      = "source"
)

// MissingTitleWarning is the parsingWarning of records salvaged without a title
const MissingTitleWarning = "missing title"

// FieldMapping binds a canonical field to the source keys that may carry it,
// in lookup order. Keys are matched case-insensitively.
type FieldMapping struct {
	Field string
	Keys  []string
}

// EventFieldMappings is the synonym table consulted by the FieldExtractor
var EventFieldMappings = []FieldMapping{
	{FieldTitle, []string{"title", "name", "eventName", "event_name", "eventTitle", "event_title", "event", "headline", "titel", "veranstaltung"}},
	{FieldCategory, []string{"category", "kategorie", "genre", "eventType", "event_type", "type"}},
	{FieldDate, []string{"date", "eventDate", "event_date", "startDate", "start_date", "datum", "day", "start", "startDateTime", "start_datetime"}},
	{FieldTime, []string{"time", "startTime", "start_time", "eventTime", "event_time", "uhrzeit", "zeit", "beginn", "begin", "doors", "einlass"}},
	{FieldVenue, []string{"venue", "location", "venueName", "venue_name", "locationName", "location_name", "place", "ort", "club", "where"}},
	{FieldAddress, []string{"address", "venueAddress", "venue_address", "adresse", "street", "streetAddress"}},
	{FieldPrice, []string{"price", "prices", "cost", "ticketPrice", "ticket_price", "preis", "eintritt", "entry", "admission"}},
	{FieldWebsite, []string{"website", "url", "link", "eventUrl", "event_url", "homepage", "web", "sourceUrl", "source_url", "more_info"}},
	{FieldBookingLink, []string{"bookingLink", "booking_link", "ticketLink", "ticket_link", "ticketUrl", "ticket_url", "tickets", "booking", "bookingUrl", "booking_url"}},
	{FieldDescription, []string{"description", "desc", "summary", "details", "beschreibung", "info", "text"}},
	{FieldImageURL, []string{"imageUrl", "image_url", "imageURL", "image", "poster", "thumbnail"}},
	{FieldSource, []string{"source"}},
}

// linkFields hold URLs; table cells written as [text](url) contribute the URL to them
var linkFields = map[string]bool{
	FieldWebsite:     true,
	FieldBookingLink: true,
	FieldImageURL:    true,
}

// nestedValueKeys are tried, in order, when a field value is an object
var nestedValueKeys = []string{"name", "title", "url", "href", "text", "value", "@id"}

// CanonicalField returns the canonical field a source key or table header maps to
func CanonicalField(key string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, m := range EventFieldMappings {
		for _, candidate := range m.Keys {
			if strings.ToLower(candidate) == k {
				return m.Field, true
			}
		}
	}
	return "", false
}

// ParseContext carries request defaults for fields a response omits
type ParseContext struct {
	Category string
	Date     string
	Source   string
	Location *time.Location // datetimes with a zone offset are converted here; nil keeps the wall clock
}

// FieldExtractor maps one loosely-typed candidate object onto an EventRecord
type FieldExtractor struct {
	taxonomy *models.Taxonomy
	mappings []FieldMapping
}

// NewFieldExtractor creates a field extractor using EventFieldMappings
func NewFieldExtractor(taxonomy *models.Taxonomy) *FieldExtractor {
	return &FieldExtractor{
		taxonomy: taxonomy,
		mappings: EventFieldMappings,
	}
}

// Extract converts a candidate to a record. ok is false when the candidate has
// neither a title nor any meaningful field and should be discarded.
func (fe *FieldExtractor) Extract(candidate map[string]interface{}, ctx ParseContext) (models.EventRecord, bool) {
	lookup := foldKeys(candidate)

	values := make(map[string]string, len(fe.mappings))
	raw := make(map[string]interface{}, len(fe.mappings))
	for _, m := range fe.mappings {
		v, s := fe.extractStringWithFallbacks(candidate, lookup, m.Keys)
		values[m.Field] = s
		raw[m.Field] = v
	}

	record := models.EventRecord{
		Title:       cleanCell(values[FieldTitle]),
		Category:    values[FieldCategory],
		Date:        values[FieldDate],
		Time:        values[FieldTime],
		Venue:       values[FieldVenue],
		Address:     values[FieldAddress],
		Price:       values[FieldPrice],
		Website:     values[FieldWebsite],
		BookingLink: values[FieldBookingLink],
		Description: values[FieldDescription],
		ImageURL:    values[FieldImageURL],
		Source:      values[FieldSource],
	}

	// "location": {"name": ..., "address": ...}
	if record.Address == "" {
		if nested, ok := raw[FieldVenue].(map[string]interface{}); ok {
			_, record.Address = fe.extractStringWithFallbacks(nested, foldKeys(nested), []string{"address", "streetAddress", "street", "adresse"})
		}
	}

	if date, clock, ok := models.SplitDateTimeIn(record.Date, ctx.Location); ok {
		record.Date = date
		if record.Time == "" {
			record.Time = clock
		}
	}
	record.Date = models.NormalizeDate(record.Date)
	record.Time = models.NormalizeTime(record.Time)

	// Parsed values always win over request context
	if record.Category == "" {
		record.Category = ctx.Category
	}
	if record.Date == "" {
		record.Date = models.NormalizeDate(ctx.Date)
	}
	if record.Source == "" {
		record.Source = ctx.Source
	}
	if fe.taxonomy != nil && record.Category != "" {
		record.Category = fe.taxonomy.Normalize(record.Category)
	}

	if record.Title == "" {
		if !record.HasMeaningfulField() {
			return models.EventRecord{}, false
		}
		record.ParsingWarning = MissingTitleWarning
	}

	return record, true
}

// extractStringWithFallbacks tries multiple field names to extract a string value
func (fe *FieldExtractor) extractStringWithFallbacks(data map[string]interface{}, folded map[string]interface{}, fieldNames []string) (interface{}, string) {
	for _, fieldName := range fieldNames {
		value, ok := data[fieldName]
		if !ok {
			value, ok = folded[strings.ToLower(fieldName)]
		}
		if !ok {
			continue
		}
		if s := stringify(value); s != "" {
			return value, s
		}
	}
	return nil, ""
}

// foldKeys indexes a candidate by lowercased key; non-empty values win collisions
func foldKeys(data map[string]interface{}) map[string]interface{} {
	folded := make(map[string]interface{}, len(data))
	for k, v := range data {
		lk := strings.ToLower(k)
		if existing, ok := folded[lk]; ok && stringify(existing) != "" {
			continue
		}
		folded[lk] = v
	}
	return folded
}

// stringify renders a JSON scalar as text. null and blank strings become "",
// arrays yield their first non-empty element and objects their name-like member.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(v)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "undefined") {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case []interface{}:
		for _, item := range v {
			if s := stringify(item); s != "" {
				return s
			}
		}
		return ""
	case map[string]interface{}:
		folded := foldKeys(v)
		for _, k := range nestedValueKeys {
			if s := stringify(folded[k]); s != "" {
				return s
			}
		}
		return ""
	default:
		return ""
	}
}
