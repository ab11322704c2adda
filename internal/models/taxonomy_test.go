package models

import (
	"errors"
	"testing"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy()

	if tax.Len() != 20 {
		t.Fatalf("Expected 20 categories, got %d", tax.Len())
	}
	names := tax.Names()
	if names[0] != CategoryDJSets || names[19] != CategoryOther {
		t.Errorf("Unexpected category order: first=%s last=%s", names[0], names[19])
	}
	if tax.Fallback() != CategoryOther {
		t.Errorf("Expected fallback %s, got %s", CategoryOther, tax.Fallback())
	}
	for _, c := range tax.Categories() {
		if c.Name != CategoryOther && len(c.Subcategories) == 0 {
			t.Errorf("Category %s has no subcategories", c.Name)
		}
	}
}

func TestNewTaxonomyErrors(t *testing.T) {
	if _, err := NewTaxonomy(nil); !errors.Is(err, ErrEmptyTaxonomy) {
		t.Errorf("Expected ErrEmptyTaxonomy, got %v", err)
	}
	if _, err := NewTaxonomy([]Category{{Name: " "}}); err == nil {
		t.Error("Expected error for blank category name")
	}
}

func TestTaxonomyIsImmutable(t *testing.T) {
	source := []Category{{Name: "A", Keywords: []string{"alpha"}}, {Name: "Rest"}}
	tax, err := NewTaxonomy(source)
	if err != nil {
		t.Fatalf("NewTaxonomy failed: %v", err)
	}

	source[0].Name = "changed"
	source[0].Keywords[0] = "changed"
	categories := tax.Categories()
	categories[0].Name = "mutated"

	if tax.Names()[0] != "A" {
		t.Errorf("Taxonomy changed through caller slices: %v", tax.Names())
	}
	if tax.Categories()[0].Keywords[0] != "alpha" {
		t.Errorf("Taxonomy keywords changed through caller slices")
	}
}

func TestNormalize(t *testing.T) {
	tax := DefaultTaxonomy()

	testCases := []struct {
		input    string
		expected string
	}{
		{"Open Air", CategoryOpenAir},
		{"  open   air ", CategoryOpenAir},
		{"Konzerte", CategoryLiveConcerts},
		{"techno", CategoryDJSets},
		{"Museum", CategoryArt},
		{"Ballett", CategoryClassical},
		{"party", CategoryClubs},
		{"Festival", CategoryOpenAir},
		{"Filmfestival", CategoryFilm},
		{"Something Else", "Something Else"},
		{"event", "event"},
	}

	for _, tc := range testCases {
		if got := tax.Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestMembershipAndPlaceholders(t *testing.T) {
	tax := DefaultTaxonomy()

	if !tax.IsMember(CategoryLGBTQ) {
		t.Error("LGBTQ+ should be a member")
	}
	if tax.IsMember("lgbtq") {
		t.Error("Synonyms are not canonical members")
	}

	for _, p := range []string{"", "Event", "EVENTS", "other", "Allgemein", "unknown", "Veranstaltung"} {
		if !tax.IsPlaceholder(p) {
			t.Errorf("%q should be a placeholder", p)
		}
	}
	if tax.IsPlaceholder(CategorySport) {
		t.Error("Sport should not be a placeholder")
	}
}

func TestMatchText(t *testing.T) {
	tax := DefaultTaxonomy()

	testCases := []struct {
		query    string
		expected string
		found    bool
	}{
		{"Find events in category Live-Konzerte in Wien on 2025-01-20", CategoryLiveConcerts, true},
		{"find events in category open air in wien", CategoryOpenAir, true},
		{"Which techno raves happen tonight?", CategoryDJSets, true},
		{"LGBTQ+ events in Wien", CategoryLGBTQ, true},
		{"what is happening tonight", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		got, ok := tax.MatchText(tc.query)
		if got != tc.expected || ok != tc.found {
			t.Errorf("MatchText(%q) = (%q, %v), expected (%q, %v)", tc.query, got, ok, tc.expected, tc.found)
		}
	}
}

func TestSubcategories(t *testing.T) {
	tax := DefaultTaxonomy()

	subs := tax.Subcategories(CategoryArt)
	found := false
	for _, s := range subs {
		if s == "Museum" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected Museum under %s, got %v", CategoryArt, subs)
	}
	if tax.Subcategories("nope") != nil {
		t.Error("Unknown category should have no subcategories")
	}
}
