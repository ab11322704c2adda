package services

import (
	"encoding/json"
	"regexp"
	"strings"
)

// wrapperKeys are object members that may hold the event array
var wrapperKeys = []string{"events", "activities", "results", "data", "items", "veranstaltungen"}

var codeFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```$")

// stripCodeFence removes a surrounding ```json ... ``` fence
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// parseStrictJSON parses the whole (possibly fenced) text as JSON. It applies
// to any array or object, even one holding no events.
func parseStrictJSON(text string) ([]candidate, bool) {
	var value interface{}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &value); err != nil {
		return nil, false
	}
	switch v := value.(type) {
	case []interface{}:
		return objectsFromArray(v), true
	case map[string]interface{}:
		return objectsFromObject(v), true
	default:
		return nil, false
	}
}

// salvageJSONArray parses the first balanced [...] span that decodes to an
// array containing at least one object
func salvageJSONArray(text string) ([]candidate, bool) {
	for _, span := range balancedSpans(text, '[', ']') {
		var arr []interface{}
		if err := json.Unmarshal([]byte(span), &arr); err != nil {
			continue
		}
		if objects := objectsFromArray(arr); len(objects) > 0 {
			return objects, true
		}
	}
	return nil, false
}

// salvageJSONObjects parses every balanced {...} span independently and keeps
// those that decode
func salvageJSONObjects(text string) ([]candidate, bool) {
	var objects []candidate
	for _, span := range balancedSpans(text, '{', '}') {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(span), &obj); err != nil {
			continue
		}
		objects = append(objects, objectsFromObject(obj)...)
	}
	return objects, len(objects) > 0
}

// parseJSONLines parses each non-empty line as a standalone JSON object
func parseJSONLines(text string) ([]candidate, bool) {
	var objects []candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, len(objects) > 0
}

func objectsFromArray(arr []interface{}) []candidate {
	objects := make([]candidate, 0, len(arr))
	for _, item := range arr {
		if obj, ok := item.(map[string]interface{}); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}

// objectsFromObject unwraps {"events": [...]} style wrappers; any other object
// is a single event
func objectsFromObject(obj map[string]interface{}) []candidate {
	folded := foldKeys(obj)
	for _, key := range wrapperKeys {
		if arr, ok := folded[key].([]interface{}); ok {
			return objectsFromArray(arr)
		}
	}
	if len(obj) == 0 {
		return nil
	}
	return []candidate{obj}
}

// balancedSpans returns every top-level span opened by open and closed by the
// matching close, in order. Delimiters inside JSON string literals are
// ignored; unterminated spans are dropped.
func balancedSpans(text string, open, close byte) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, text[start:i+1])
				start = -1
			}
		}
	}
	return spans
}
