package models

import (
	"errors"
	"strings"
)

// ErrEmptyTaxonomy is returned when a taxonomy without categories is built
var ErrEmptyTaxonomy = errors.New("taxonomy has no categories")

// Canonical category names
const (
	CategoryDJSets       = "DJ Sets/Electronic"
	CategoryClubs        = "Clubs/Discos"
	CategoryLiveConcerts = "Live-Konzerte"
	CategoryClassical    = "Klassik/Oper"
	CategoryTheater      = "Theater/Performance"
	CategoryComedy       = "Comedy/Kabarett"
	CategoryFilm         = "Film/Kino"
	CategoryArt          = "Kunst/Design"
	CategoryOpenAir      = "Open Air"
	CategoryLGBTQ        = "LGBTQ+"
	CategoryCulture      = "Kultur/Traditionen"
	CategoryMarkets      = "Märkte/Shopping"
	CategoryFood         = "Food/Culinary"
	CategorySport        = "Sport"
	CategoryNature       = "Natur/Outdoor"
	CategoryFamily       = "Familien/Kids"
	CategoryEducation    = "Bildung/Workshops"
	CategoryNetworking   = "Networking/Business"
	CategoryWellness     = "Wellness/Spirituell"
	CategoryOther        = "Sonstiges"
)

// GenericCategoryLabel is used for records whose category cannot be stated
const GenericCategoryLabel = "Events"

// Category is one top-level taxonomy entry
type Category struct {
	Name          string   `json:"name" yaml:"name"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
	Synonyms      []string `json:"synonyms" yaml:"synonyms"`
	Keywords      []string `json:"keywords" yaml:"keywords"` // lowercase substrings matched against title and venue
}

// Taxonomy is an immutable ordered list of categories with a synonym index.
// The last category is the fallback for records nothing else matches.
type Taxonomy struct {
	categories   []Category
	index        map[string]string
	placeholders map[string]struct{}
}

var defaultPlaceholders = []string{
	"", "event", "events", "other", "others", "general", "allgemein",
	"unknown", "n/a", "veranstaltung", "veranstaltungen",
}

// NewTaxonomy builds a taxonomy from an ordered category list
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, ErrEmptyTaxonomy
	}

	t := &Taxonomy{
		categories:   make([]Category, len(categories)),
		index:        make(map[string]string),
		placeholders: make(map[string]struct{}, len(defaultPlaceholders)),
	}
	for _, p := range defaultPlaceholders {
		t.placeholders[p] = struct{}{}
	}

	for i, c := range categories {
		if strings.TrimSpace(c.Name) == "" {
			return nil, errors.New("taxonomy category name must not be empty")
		}
		t.categories[i] = Category{
			Name:          c.Name,
			Subcategories: append([]string(nil), c.Subcategories...),
			Synonyms:      append([]string(nil), c.Synonyms...),
			Keywords:      append([]string(nil), c.Keywords...),
		}
	}

	// Canonical names take precedence over any synonym or subcategory
	for _, c := range t.categories {
		t.index[foldKey(c.Name)] = c.Name
	}
	for _, c := range t.categories {
		for _, alias := range append(append([]string(nil), c.Synonyms...), c.Subcategories...) {
			key := foldKey(alias)
			if _, exists := t.index[key]; !exists && key != "" {
				t.index[key] = c.Name
			}
		}
	}

	return t, nil
}

// Categories returns a copy of the ordered category list
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Names returns the canonical category names in taxonomy order
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of top-level categories
func (t *Taxonomy) Len() int {
	return len(t.categories)
}

// Fallback returns the category assigned when no keyword matches
func (t *Taxonomy) Fallback() string {
	return t.categories[len(t.categories)-1].Name
}

// Subcategories returns the subcategories of a canonical category
func (t *Taxonomy) Subcategories(name string) []string {
	for _, c := range t.categories {
		if c.Name == name {
			return append([]string(nil), c.Subcategories...)
		}
	}
	return nil
}

// Normalize maps a raw category onto its canonical name. Values that are not
// known names, synonyms or subcategories are returned trimmed but unchanged.
func (t *Taxonomy) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if canonical, ok := t.index[foldKey(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// IsMember reports whether name is a canonical category name
func (t *Taxonomy) IsMember(name string) bool {
	for _, c := range t.categories {
		if c.Name == name {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether a category value carries no real information
func (t *Taxonomy) IsPlaceholder(name string) bool {
	_, ok := t.placeholders[foldKey(name)]
	return ok
}

// MatchText returns the first category named in free text such as a search
// query. Canonical names are tried before synonyms, each in taxonomy order.
func (t *Taxonomy) MatchText(text string) (string, bool) {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, c := range t.categories {
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			return c.Name, true
		}
	}
	for _, c := range t.categories {
		for _, s := range c.Synonyms {
			if s != "" && strings.Contains(lower, strings.ToLower(s)) {
				return c.Name, true
			}
		}
	}
	return "", false
}

func foldKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DefaultTaxonomy returns the 20-category Where2Go taxonomy
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(DefaultCategories())
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultCategories returns the ordered category definitions of DefaultTaxonomy
func DefaultCategories() []Category {
	return []Category{
		{
			Name:          CategoryDJSets,
			Subcategories: []string{"Techno", "House", "Drum & Bass", "Trance", "Electronic Live Acts"},
			Synonyms:      []string{"dj sets", "dj set", "electronic", "elektronisch", "techno", "edm"},
			Keywords:      []string{"dj set", "dj-set", "dj ", "techno", "house music", "deep house", "drum & bass", "drum and bass", "trance", "electronic", "elektronisch", "rave"},
		},
		{
			Name:          CategoryClubs,
			Subcategories: []string{"Clubnacht", "Disco", "Party", "Tanzabend"},
			Synonyms:      []string{"clubs", "club", "discos", "disco", "party", "nightlife"},
			Keywords:      []string{"clubbing", "clubnacht", "club night", "disco", "party", "tanzabend", "nightclub", "afterhour"},
		},
		{
			Name:          CategoryLiveConcerts,
			Subcategories: []string{"Rock/Pop", "Jazz/Blues", "Indie/Alternative", "Hip-Hop/Rap", "Singer-Songwriter", "Metal"},
			Synonyms:      []string{"live-konzert", "konzerte", "konzert", "concerts", "concert", "live music", "livemusik"},
			Keywords:      []string{"konzert", "concert", "live music", "livemusik", "jazz", "blues", "rock", "hip-hop", "hip hop", "singer-songwriter", "acoustic", "unplugged", "tour "},
		},
		{
			Name:          CategoryClassical,
			Subcategories: []string{"Oper", "Orchester", "Kammermusik", "Ballett", "Chor"},
			Synonyms:      []string{"klassik", "classical", "oper", "opera", "ballett", "ballet"},
			Keywords:      []string{"opera", "opern", "staatsoper", "volksoper", "orchester", "orchestra", "symphon", "sinfonie", "philharmon", "kammermusik", "ballett", "ballet", "klassik", "classical", "choir", "requiem", "musikverein"},
		},
		{
			Name:          CategoryTheater,
			Subcategories: []string{"Schauspiel", "Musical", "Tanz", "Improtheater", "Performance"},
			Synonyms:      []string{"theater", "theatre", "performance", "schauspiel", "musical"},
			Keywords:      []string{"theater", "theatre", "schauspiel", "musical", "performance", "improtheater", "bühne", "buehne", "premiere", "tanzperformance"},
		},
		{
			Name:          CategoryComedy,
			Subcategories: []string{"Stand-up", "Kabarett", "Improvisation", "Poetry Slam"},
			Synonyms:      []string{"comedy", "kabarett", "cabaret", "stand-up"},
			Keywords:      []string{"comedy", "kabarett", "cabaret", "stand-up", "standup", "stand up", "satire", "open mic", "poetry slam"},
		},
		{
			Name:          CategoryFilm,
			Subcategories: []string{"Premiere", "Filmfestival", "Open-Air-Kino", "Dokumentarfilm"},
			Synonyms:      []string{"film", "kino", "cinema", "movies", "movie"},
			Keywords:      []string{"kino", "cinema", "film", "movie", "screening"},
		},
		{
			Name:          CategoryArt,
			Subcategories: []string{"Ausstellung", "Galerie", "Museum", "Design", "Fotografie"},
			Synonyms:      []string{"kunst", "arts", "design", "museum", "museen", "ausstellung", "exhibition"},
			Keywords:      []string{"ausstellung", "exhibition", "galerie", "gallery", "museum", "vernissage", "kunst", "fotografie", "photography", "design", "albertina", "belvedere", "mumok"},
		},
		{
			Name:          CategoryOpenAir,
			Subcategories: []string{"Festival", "Sommerbühne", "Straßenfest"},
			Synonyms:      []string{"open air", "open-air", "openair", "festival", "festivals"},
			Keywords:      []string{"open air", "open-air", "openair", "festival", "straßenfest", "strassenfest"},
		},
		{
			Name:          CategoryLGBTQ,
			Subcategories: []string{"Pride", "Drag", "Queer Party"},
			Synonyms:      []string{"lgbtq", "lgbt", "queer", "pride"},
			Keywords:      []string{"lgbt", "queer", "pride", "drag show", "drag queen", "dragqueen", "regenbogen", "rainbow", "gay", "lesbian"},
		},
		{
			Name:          CategoryCulture,
			Subcategories: []string{"Brauchtum", "Bälle", "Volksfest", "Religiöse Feste"},
			Synonyms:      []string{"kultur", "culture", "traditionen", "tradition"},
			Keywords:      []string{"tradition", "brauchtum", "heuriger", "volksfest", "fasching", "kirtag", "kulturfest", "ballnacht", "walzer"},
		},
		{
			Name:          CategoryMarkets,
			Subcategories: []string{"Flohmarkt", "Designmarkt", "Weihnachtsmarkt", "Bauernmarkt"},
			Synonyms:      []string{"märkte", "maerkte", "markt", "market", "markets", "shopping"},
			Keywords:      []string{"flohmarkt", "flea market", "markt", "market", "shopping", "bazaar", "basar"},
		},
		{
			Name:          CategoryFood,
			Subcategories: []string{"Verkostung", "Street Food", "Kochkurs", "Brunch"},
			Synonyms:      []string{"food", "kulinarik", "culinary", "essen"},
			Keywords:      []string{"food", "kulinar", "culinary", "tasting", "verkostung", "wein", "wine", "brunch", "dinner", "kochkurs", "craft beer", "bier"},
		},
		{
			Name:          CategorySport,
			Subcategories: []string{"Fußball", "Laufen", "Radsport", "Eishockey"},
			Synonyms:      []string{"sport", "sports"},
			Keywords:      []string{"sport", "fußball", "fussball", "football", "soccer", "basketball", "marathon", "lauftreff", "tennis", "fitness", "turnier", "tournament", "eishockey", "volleyball"},
		},
		{
			Name:          CategoryNature,
			Subcategories: []string{"Wanderung", "Gärten", "Radtour"},
			Synonyms:      []string{"natur", "nature", "outdoor"},
			Keywords:      []string{"wanderung", "hiking", "nature walk", "naturpark", "nationalpark", "stadtpark", "botanischer garten", "garden", "radtour", "outdoor"},
		},
		{
			Name:          CategoryFamily,
			Subcategories: []string{"Kindertheater", "Familienfest", "Workshops für Kinder"},
			Synonyms:      []string{"familien", "familie", "family", "kids", "kinder", "children"},
			Keywords:      []string{"kinder", "kids", "family", "familie", "children", "jugend", "puppet", "marionett"},
		},
		{
			Name:          CategoryEducation,
			Subcategories: []string{"Workshop", "Vortrag", "Lesung", "Führung"},
			Synonyms:      []string{"bildung", "workshops", "workshop", "education", "kurse"},
			Keywords:      []string{"workshop", "seminar", "vortrag", "lecture", "kurs", "course", "lesung", "reading", "führung", "guided tour"},
		},
		{
			Name:          CategoryNetworking,
			Subcategories: []string{"Meetup", "Konferenz", "Afterwork"},
			Synonyms:      []string{"networking", "business", "meetup"},
			Keywords:      []string{"networking", "business", "meetup", "startup", "konferenz", "conference", "summit", "afterwork", "pitch night"},
		},
		{
			Name:          CategoryWellness,
			Subcategories: []string{"Yoga", "Meditation", "Retreat"},
			Synonyms:      []string{"wellness", "spirituell", "spiritual", "meditation", "yoga"},
			Keywords:      []string{"yoga", "meditation", "wellness", "therme", "achtsamkeit", "mindfulness", "retreat", "breathwork", "klangschale", "sound bath"},
		},
		{
			Name:     CategoryOther,
			Synonyms: []string{"sonstiges", "misc", "miscellaneous"},
		},
	}
}
