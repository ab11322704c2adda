package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"where2go-events/internal/config"
	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// PageReader renders a page to markdown; JinaClient implements it
type PageReader interface {
	ExtractContent(ctx context.Context, pageURL string) (string, error)
}

// VenueResult is the outcome of scraping one venue
type VenueResult struct {
	Venue   string
	Records int
	Err     error
}

// VenueScraper extracts events from venue websites described by VenueConfig
// selectors. Venues flagged render_with_reader go through the reader proxy and
// the response parser instead.
type VenueScraper struct {
	httpClient *http.Client
	userAgent  string
	maxDetail  int
	reader     PageReader
	parser     *ResponseParser
	metrics    *AggregationMetrics
	logger     logger.Logger
	timezone   string
	now        func() time.Time
}

// NewVenueScraper creates a scraper. reader may be nil when no venue needs it.
func NewVenueScraper(cfg config.VenuesConfig, reader PageReader, parser *ResponseParser, log logger.Logger) *VenueScraper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VenueScraper{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		maxDetail:  cfg.MaxDetail,
		reader:     reader,
		parser:     parser,
		logger:     logger.OrNop(log),
		timezone:   models.DefaultTimezone,
		now:        time.Now,
	}
}

// SetMetrics records per-venue outcomes on m
func (s *VenueScraper) SetMetrics(m *AggregationMetrics) {
	s.metrics = m
}

// SetClock sets the timezone and clock used for year inference and the past
// event filter
func (s *VenueScraper) SetClock(timezone string, now func() time.Time) {
	if timezone != "" {
		s.timezone = timezone
	}
	if now != nil {
		s.now = now
	}
}

// ScrapeAll scrapes every enabled venue of city in order. A failing venue is
// logged and reported; it never stops the others.
func (s *VenueScraper) ScrapeAll(ctx context.Context, venues []models.VenueConfig, city string) ([]models.EventRecord, []VenueResult) {
	var records []models.EventRecord
	var results []VenueResult

	for _, venue := range venues {
		if !venue.IsEnabled() || !venueInCity(venue, city) {
			continue
		}
		if ctx.Err() != nil {
			results = append(results, VenueResult{Venue: venue.Key, Err: ctx.Err()})
			continue
		}

		scraped, err := s.Scrape(ctx, venue)
		results = append(results, VenueResult{Venue: venue.Key, Records: len(scraped), Err: err})
		records = append(records, scraped...)
	}
	return records, results
}

// Scrape returns the upcoming events of one venue
func (s *VenueScraper) Scrape(ctx context.Context, venue models.VenueConfig) ([]models.EventRecord, error) {
	start := time.Now()

	var records []models.EventRecord
	var err error
	if venue.RenderWithReader {
		records, err = s.scrapeWithReader(ctx, venue)
	} else {
		records, err = s.scrapeWithSelectors(ctx, venue)
	}
	s.metrics.ObserveVenue(venue.Key, err)
	if err != nil {
		s.logger.Warn("Venue scrape failed",
			logger.String("venue", venue.Key),
			logger.Error(err))
		return nil, err
	}

	records = s.finish(venue, records)
	s.logger.Info("Venue scraped",
		logger.String("venue", venue.Key),
		logger.Int("events", len(records)),
		logger.Duration("elapsed", time.Since(start)))
	return records, nil
}

func (s *VenueScraper) scrapeWithReader(ctx context.Context, venue models.VenueConfig) ([]models.EventRecord, error) {
	if s.reader == nil || s.parser == nil {
		return nil, fmt.Errorf("venue %s needs the reader proxy, which is not configured", venue.Key)
	}
	content, err := s.reader.ExtractContent(ctx, venue.EventsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", venue.EventsURL, err)
	}
	result := s.parser.Parse(content, ParseContext{Category: venue.Category, Source: models.SourceScraper})
	return result.Records, nil
}

func (s *VenueScraper) scrapeWithSelectors(ctx context.Context, venue models.VenueConfig) ([]models.EventRecord, error) {
	doc, err := s.fetchDocument(ctx, venue.EventsURL)
	if err != nil {
		return nil, err
	}

	base := venueBase(venue)
	today := s.now()
	items := doc.Find(venue.ListSelectors.EventContainer)
	s.logger.Debug("Found potential events",
		logger.String("venue", venue.Key),
		logger.Int("items", items.Length()))

	var records []models.EventRecord
	detailPages := 0
	items.Each(func(_ int, item *goquery.Selection) {
		record := s.parseListItem(item, venue, base, today)
		if record.Title == "" {
			return
		}
		if venue.UseDetailPages && record.Website != "" && (s.maxDetail <= 0 || detailPages < s.maxDetail) {
			detailPages++
			if err := s.enrichFromDetail(ctx, &record, venue, base, today); err != nil {
				s.logger.Debug("Detail page enrichment failed",
					logger.String("venue", venue.Key),
					logger.String("url", record.Website),
					logger.Error(err))
			}
		}
		records = append(records, record)
	})
	return records, nil
}

func (s *VenueScraper) parseListItem(item *goquery.Selection, venue models.VenueConfig, base *url.URL, now time.Time) models.EventRecord {
	sel := venue.ListSelectors
	record := models.EventRecord{Title: selectText(item, sel.Title)}

	if href, ok := selectAttr(item, sel.Link, "href"); ok {
		record.Website = resolveURL(base, href)
	}
	if src, ok := imageSource(item, sel.Image); ok {
		record.ImageURL = resolveURL(base, src)
	}
	if text := selectText(item, sel.Date); text != "" {
		record.Date = ParseGermanDate(text, now)
	}
	if record.Date == "" && venue.DateInTitle {
		record.Date = ExtractDateFromTitle(record.Title, now)
	}
	if text := selectText(item, sel.Time); text != "" {
		record.Time = ParseClockTime(text)
	}
	if text := selectText(item, sel.Price); text != "" {
		record.Price = ExtractPrice(text)
	}
	return record
}

func (s *VenueScraper) enrichFromDetail(ctx context.Context, record *models.EventRecord, venue models.VenueConfig, base *url.URL, now time.Time) error {
	doc, err := s.fetchDocument(ctx, record.Website)
	if err != nil {
		return err
	}
	sel := venue.DetailSelectors
	page := doc.Selection

	if sel.Description != "" {
		var parts []string
		page.Find(sel.Description).Each(func(_ int, el *goquery.Selection) {
			if text := cleanText(el.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			record.Description = strings.Join(parts, "\n\n")
		}
	}
	if href, ok := selectAttr(page, sel.TicketLink, "href"); ok {
		record.BookingLink = resolveURL(base, href)
	}
	if text := selectText(page, sel.Price); text != "" {
		if price := ExtractPrice(text); price != "" {
			record.Price = price
		}
	}
	if record.Date == "" && venue.DateInTitle {
		record.Date = ExtractDateFromTitle(selectText(page, sel.Title), now)
	}
	if record.Time == "" {
		record.Time = ParseClockTime(selectText(page, sel.Time))
	}
	if record.Time == "" {
		record.Time = ParseClockTime(page.Find("body").Text())
	}
	// thumbnails are worse than the list image
	if src, ok := imageSource(page, sel.Image); ok && !strings.Contains(src, "thumb") {
		record.ImageURL = resolveURL(base, src)
	}
	return nil
}

// finish applies venue defaults, the logo fallback and the past event filter
func (s *VenueScraper) finish(venue models.VenueConfig, records []models.EventRecord) []models.EventRecord {
	today := models.TodayIn(s.timezone, s.now())

	out := make([]models.EventRecord, 0, len(records))
	for _, r := range records {
		if r.Date != "" && r.Date < today {
			continue
		}
		if r.Venue == "" {
			r.Venue = venue.Name
		}
		if r.Address == "" {
			r.Address = venue.Address
		}
		if r.Category == "" || r.Category == models.GenericCategoryLabel {
			r.Category = venue.Category
		}
		if r.ImageURL == "" {
			r.ImageURL = venue.FallbackImageURL
		}
		r.Source = models.SourceScraper
		out = append(out, r)
	}
	return out
}

func (s *VenueScraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9,en;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func selectText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanText(s.Find(selector).First().Text())
}

func selectAttr(s *goquery.Selection, selector, attr string) (string, bool) {
	if selector == "" {
		return "", false
	}
	v, ok := s.Find(selector).First().Attr(attr)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// imageSource prefers src and falls back to lazy-loading data-src
func imageSource(s *goquery.Selection, selector string) (string, bool) {
	if src, ok := selectAttr(s, selector, "src"); ok {
		return src, true
	}
	return selectAttr(s, selector, "data-src")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func venueBase(venue models.VenueConfig) *url.URL {
	for _, raw := range []string{venue.BaseURL, venue.EventsURL} {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u
		}
	}
	return nil
}

// resolveURL makes href absolute against base; unparseable values pass through
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil || ref.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}

func venueInCity(venue models.VenueConfig, city string) bool {
	return venue.City == "" || city == "" || models.NormalizeCity(venue.City) == models.NormalizeCity(city)
}
