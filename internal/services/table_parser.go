package services

import (
	"regexp"
	"strings"
)

// positionalColumns is the column order assumed for tables without a usable header
var positionalColumns = []string{FieldTitle, FieldCategory, FieldDate, FieldTime, FieldVenue, FieldPrice, FieldWebsite}

var (
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	emphasisReplacer    = strings.NewReplacer("**", "", "__", "", "`", "")
)

// parseTable reads a markdown or pipe-delimited table. Rows need at least
// three cells; a header row is skipped and, when it names known fields, decides
// the column mapping.
func parseTable(text string) ([]candidate, bool) {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cells := splitTableRow(line)
		if len(cells) < 3 {
			continue
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, false
	}

	columns := positionalColumns
	start := 0
	if header, ok := headerColumns(rows[0]); ok {
		columns = header
		start = 1
	} else if len(rows) > 1 && isSeparatorRow(rows[1]) {
		// unrecognised header above a separator keeps positional mapping
		start = 1
	}

	var objects []candidate
	for _, cells := range rows[start:] {
		if isSeparatorRow(cells) {
			continue
		}
		obj := rowToCandidate(cells, columns)
		if stringify(obj[FieldTitle]) == "" {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, len(objects) > 0
}

// splitTableRow splits a row on pipes, dropping the outer border cells
func splitTableRow(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// isSeparatorRow reports whether most cells consist only of -, : and spaces
func isSeparatorRow(cells []string) bool {
	separators := 0
	for _, c := range cells {
		if c == "" {
			continue
		}
		if strings.Trim(c, "-: ") == "" && strings.Contains(c, "-") {
			separators++
		}
	}
	return separators > 0 && separators*2 >= len(cells)
}

// headerColumns maps header cells to canonical fields. The row counts as a
// header when at least two cells name known fields and one of them is the title.
func headerColumns(cells []string) ([]string, bool) {
	columns := make([]string, len(cells))
	known := 0
	hasTitle := false
	for i, c := range cells {
		field, ok := CanonicalField(cleanCell(c))
		if !ok {
			continue
		}
		columns[i] = field
		known++
		if field == FieldTitle {
			hasTitle = true
		}
	}
	return columns, known >= 2 && hasTitle
}

// rowToCandidate maps cells to fields. Link cells give their URL to link
// columns and their text elsewhere; a link found in a text column becomes the
// website when the row has none.
func rowToCandidate(cells []string, columns []string) candidate {
	obj := candidate{}
	var extraLink string
	for i, cell := range cells {
		if i >= len(columns) || columns[i] == "" {
			continue
		}
		field := columns[i]
		text, url := splitMarkdownLink(cell)
		if linkFields[field] {
			if url != "" {
				obj[field] = url
			} else {
				obj[field] = cleanCell(text)
			}
			continue
		}
		obj[field] = cleanCell(text)
		if url != "" && extraLink == "" {
			extraLink = url
		}
	}
	if extraLink != "" && stringify(obj[FieldWebsite]) == "" {
		obj[FieldWebsite] = extraLink
	}
	return obj
}

// splitMarkdownLink returns the cell with links replaced by their text, and the
// first link target
func splitMarkdownLink(cell string) (string, string) {
	m := markdownLinkPattern.FindStringSubmatch(cell)
	if m == nil {
		return cell, ""
	}
	return markdownLinkPattern.ReplaceAllString(cell, "$1"), m[2]
}

// cleanCell strips markdown emphasis and surrounding whitespace
func cleanCell(s string) string {
	s = emphasisReplacer.Replace(s)
	s = strings.Trim(strings.TrimSpace(s), "*_")
	if s == "-" || s == "–" || strings.EqualFold(s, "n/a") {
		return ""
	}
	return strings.TrimSpace(s)
}
