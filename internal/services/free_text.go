package services

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	freeTextURLPattern   = regexp.MustCompile(`https?://[^\s<>()\]]+`)
	freeTextTimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)(?:\s*(?i:uhr|h)\b)?`),
		regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])\.([0-5]\d)\s*uhr\b`),
		regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])()\s*uhr\b`),
		regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s*([ap])\.?m\b\.?`),
	}
	freeTextDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}\.\d{1,2}\.\d{4}|\d{1,2}/\d{1,2}/\d{4})\b`)
	freeTextVenuePattern = regexp.MustCompile(`(?i)(?:@|\bat\b|\bim\b|\bin der\b|\bin the\b|\blocation:|\bvenue:|\bort:)\s*([^,;|()\n–—]+)`)
	bulletPattern        = regexp.MustCompile(`^(?:[-*•·>]+|\d{1,2}[.)])\s*`)
	sentenceSplitPattern = regexp.MustCompile(`([.!?])\s+([A-ZÄÖÜ])`)
	titleSplitPattern    = regexp.MustCompile(`\s+[-–—|]\s+|:\s+`)
)

// parseFreeText is the last-resort strategy: every line or sentence with a
// loose event signal (time, date, venue marker or URL) and a plausible title
// becomes a minimal candidate
func parseFreeText(text string) ([]candidate, bool) {
	var objects []candidate
	for _, segment := range freeTextSegments(text) {
		if obj, ok := freeTextCandidate(segment); ok {
			objects = append(objects, obj)
		}
	}
	return objects, len(objects) > 0
}

func freeTextSegments(text string) []string {
	var segments []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		split := sentenceSplitPattern.ReplaceAllString(line, "$1\n$2")
		for _, s := range strings.Split(split, "\n") {
			if s = strings.TrimSpace(s); s != "" {
				segments = append(segments, s)
			}
		}
	}
	return segments
}

func freeTextCandidate(segment string) (candidate, bool) {
	line := bulletPattern.ReplaceAllString(emphasisReplacer.Replace(segment), "")
	line, link := splitMarkdownLink(line)
	obj := candidate{}
	signals := 0

	rest := line
	if link == "" {
		link = freeTextURLPattern.FindString(rest)
	}
	if link != "" {
		obj[FieldWebsite] = strings.TrimRight(link, ".,;")
		rest = freeTextURLPattern.ReplaceAllString(rest, " ")
		signals++
	}
	if m := freeTextDatePattern.FindStringSubmatch(rest); m != nil {
		obj[FieldDate] = m[1]
		rest = strings.Replace(rest, m[0], " ", 1)
		signals++
	}
	for _, p := range freeTextTimePatterns {
		if m := p.FindStringSubmatch(rest); m != nil {
			// the record extractor normalises "20 Uhr" and "8 PM" forms
			obj[FieldTime] = strings.TrimSpace(m[0])
			rest = strings.Replace(rest, m[0], " ", 1)
			signals++
			break
		}
	}
	if m := freeTextVenuePattern.FindStringSubmatch(rest); m != nil {
		venue := titleSplitPattern.Split(strings.TrimSpace(m[1]), 2)[0]
		if venue = strings.Trim(strings.TrimSpace(venue), ".:-"); venue != "" {
			obj[FieldVenue] = venue
			rest = strings.Replace(rest, m[0], " ", 1)
			signals++
		}
	}
	if signals == 0 {
		return nil, false
	}

	title := freeTextTitle(rest)
	if title == "" {
		return nil, false
	}
	obj[FieldTitle] = title
	return obj, true
}

// freeTextTitle takes the first separator-delimited part that reads like a
// name. A part followed by a colon is a lead-in ("Here are events:") and is
// only used when no later part qualifies.
func freeTextTitle(rest string) string {
	rest = strings.Join(strings.Fields(rest), " ")
	bounds := titleSplitPattern.FindAllStringIndex(rest, -1)

	leadIn := ""
	start := 0
	for i := 0; i <= len(bounds); i++ {
		end, next := len(rest), len(rest)
		if i < len(bounds) {
			end, next = bounds[i][0], bounds[i][1]
		}
		part := strings.Trim(strings.TrimSpace(rest[start:end]), " ,.;:-–—|\"'")
		colon := strings.HasPrefix(rest[end:next], ":")
		start = next

		if len([]rune(part)) < 3 || !hasLetters(part, 2) {
			continue
		}
		if !colon {
			return part
		}
		if leadIn == "" {
			leadIn = part
		}
	}
	return leadIn
}

func hasLetters(s string, min int) bool {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
			if n >= min {
				return true
			}
		}
	}
	return false
}
