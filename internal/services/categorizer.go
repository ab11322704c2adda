package services

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"where2go-events/internal/models"
)

// Categorizer assigns a category to records that lack a real one by matching
// taxonomy keywords against title and venue. The category with the lowest
// taxonomy index among all hits wins.
type Categorizer struct {
	taxonomy *models.Taxonomy
	names    []string
	keywords []string
	owners   []int // owners[i] is the category index of keywords[i]

	mu      sync.Mutex // the matcher keeps per-call state
	matcher *ahocorasick.Matcher
}

// NewCategorizer builds the keyword matcher for a taxonomy
func NewCategorizer(taxonomy *models.Taxonomy) (*Categorizer, error) {
	if taxonomy == nil || taxonomy.Len() == 0 {
		return nil, models.ErrEmptyTaxonomy
	}

	c := &Categorizer{taxonomy: taxonomy, names: taxonomy.Names()}
	seen := make(map[string]bool)
	for i, category := range taxonomy.Categories() {
		for _, kw := range category.Keywords {
			normalized := strings.ToLower(kw)
			if strings.TrimSpace(normalized) == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true
			c.keywords = append(c.keywords, normalized)
			c.owners = append(c.owners, i)
		}
	}
	if len(c.keywords) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(c.keywords)
	}
	return c, nil
}

// Categorize returns a new slice where records with an empty or placeholder
// category carry the best keyword match or the fallback category
func (c *Categorizer) Categorize(records []models.EventRecord) []models.EventRecord {
	out := make([]models.EventRecord, len(records))
	for i, r := range records {
		out[i] = r
		if !c.NeedsCategory(r.Category) {
			continue
		}
		out[i].Category = c.CategoryFor(r.Title + " " + r.Venue)
	}
	return out
}

// Canonicalize returns a new slice where every category is a taxonomy member.
// Known synonyms are normalized; anything else is matched by keyword against
// the category, title and venue, or gets the fallback category.
func (c *Categorizer) Canonicalize(records []models.EventRecord) []models.EventRecord {
	out := make([]models.EventRecord, len(records))
	for i, r := range records {
		out[i] = r
		if c.taxonomy.IsMember(r.Category) {
			continue
		}
		if normalized := c.taxonomy.Normalize(r.Category); c.taxonomy.IsMember(normalized) {
			out[i].Category = normalized
			continue
		}
		out[i].Category = c.CategoryFor(r.Category + " " + r.Title + " " + r.Venue)
	}
	return out
}

// NeedsCategory reports whether a category value should be replaced
func (c *Categorizer) NeedsCategory(category string) bool {
	return strings.TrimSpace(category) == "" || c.taxonomy.IsPlaceholder(category)
}

// CategoryFor returns the category whose keyword occurs in text, preferring
// earlier categories, or the taxonomy fallback
func (c *Categorizer) CategoryFor(text string) string {
	if c.matcher == nil {
		return c.taxonomy.Fallback()
	}

	lowered := []byte(strings.ToLower(text))
	c.mu.Lock()
	hits := c.matcher.Match(lowered)
	c.mu.Unlock()

	best := -1
	for _, hit := range hits {
		if hit >= len(c.owners) {
			continue
		}
		if owner := c.owners[hit]; best < 0 || owner < best {
			best = owner
		}
	}
	if best < 0 {
		return c.taxonomy.Fallback()
	}
	return c.names[best]
}
