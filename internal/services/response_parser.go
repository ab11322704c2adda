package services

import (
	"regexp"
	"strings"

	"where2go-events/internal/logger"
	"where2go-events/internal/models"
)

// Parse strategy names, in cascade order
const (
	StrategyNegative    = "negative"
	StrategyJSONArray   = "json_array"
	StrategyJSONSalvage = "json_salvage"
	StrategyJSONObjects = "json_objects"
	StrategyJSONLines   = "json_lines"
	StrategyTable       = "table"
	StrategyFreeText    = "free_text"
)

// candidate is one loosely-typed event object produced by a strategy
type candidate = map[string]interface{}

// parseStrategy returns the candidates it found and whether it applied.
// A strategy that did not apply lets the cascade continue.
type parseStrategy struct {
	name  string
	parse func(text string) ([]candidate, bool)
}

// ParseResult is the outcome of parsing one response
type ParseResult struct {
	Records    []models.EventRecord
	Strategy   string // winning strategy, empty when nothing matched
	Negative   bool   // upstream said explicitly that there are no events
	Candidates int    // candidates found before field extraction
	Warnings   int    // records carrying a parsingWarning
}

var negativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[\s*_#>"'.-]*no\s+(?:matching\s+|relevant\s+|upcoming\s+|suitable\s+)?events?\s+(?:were\s+|could\s+be\s+)?found`),
	regexp.MustCompile(`(?i)^[\s*_#>"'.-]*no\s+events?\s+(?:are\s+)?(?:scheduled|available|listed)`),
	regexp.MustCompile(`(?i)^[\s*_#>"'.-]*keine\s+(?:passenden\s+|weiteren\s+|aktuellen\s+|relevanten\s+)?(?:events?|veranstaltungen)\s+(?:wurden\s+)?gefunden`),
	regexp.MustCompile(`(?i)^[\s*_#>"'.-]*keine\s+(?:passenden\s+)?(?:events?|veranstaltungen)\s+(?:verfügbar|vorhanden)`),
	regexp.MustCompile(`(?i)^[\s*_#>"'.-]*leider\s+(?:wurden\s+|konnten\s+)?keine\s+(?:passenden\s+)?(?:events?|veranstaltungen)\s+(?:\S+\s+){0,4}?gefunden`),
}

// IsNegativeResponse reports whether text is empty or an explicit "no events" answer
func IsNegativeResponse(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, p := range negativePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// ResponseParser extracts event records from one raw upstream response by
// trying strategies from strict to lenient
type ResponseParser struct {
	extractor  *FieldExtractor
	strategies []parseStrategy
	logger     logger.Logger
}

// NewResponseParser creates a parser for the given taxonomy
func NewResponseParser(taxonomy *models.Taxonomy, log logger.Logger) (*ResponseParser, error) {
	if taxonomy == nil || taxonomy.Len() == 0 {
		return nil, models.ErrEmptyTaxonomy
	}
	return &ResponseParser{
		extractor: NewFieldExtractor(taxonomy),
		strategies: []parseStrategy{
			{StrategyJSONArray, parseStrictJSON},
			{StrategyJSONSalvage, salvageJSONArray},
			{StrategyJSONObjects, salvageJSONObjects},
			{StrategyJSONLines, parseJSONLines},
			{StrategyTable, parseTable},
			{StrategyFreeText, parseFreeText},
		},
		logger: logger.OrNop(log),
	}, nil
}

// ParseEvents parses text with an optional request category and date
func (p *ResponseParser) ParseEvents(text, category, date string) []models.EventRecord {
	return p.Parse(text, ParseContext{Category: category, Date: date}).Records
}

// Parse runs the cascade. The strict JSON strategy ends the cascade whenever the
// text is valid JSON, even without records; the other strategies end it only
// when they produce at least one record.
func (p *ResponseParser) Parse(text string, ctx ParseContext) ParseResult {
	if IsNegativeResponse(text) {
		return ParseResult{Records: []models.EventRecord{}, Strategy: StrategyNegative, Negative: true}
	}

	trimmed := strings.TrimSpace(text)
	for _, s := range p.strategies {
		candidates, applied := s.parse(trimmed)
		if !applied {
			continue
		}

		strategyCtx := ctx
		if s.name == StrategyFreeText && strategyCtx.Category == "" {
			strategyCtx.Category = models.GenericCategoryLabel
		}

		records := p.extractAll(candidates, strategyCtx)
		if len(records) == 0 && s.name != StrategyJSONArray {
			p.logger.Debug("Strategy produced no usable records",
				logger.String("strategy", s.name),
				logger.Int("candidates", len(candidates)))
			continue
		}

		result := ParseResult{
			Records:    records,
			Strategy:   s.name,
			Candidates: len(candidates),
		}
		for _, r := range records {
			if r.ParsingWarning != "" {
				result.Warnings++
			}
		}
		return result
	}

	p.logger.Debug("No parse strategy matched response", logger.Int("length", len(trimmed)))
	return ParseResult{Records: []models.EventRecord{}}
}

func (p *ResponseParser) extractAll(candidates []candidate, ctx ParseContext) []models.EventRecord {
	records := make([]models.EventRecord, 0, len(candidates))
	for _, c := range candidates {
		if record, ok := p.extractor.Extract(c, ctx); ok {
			records = append(records, record)
		}
	}
	return records
}
