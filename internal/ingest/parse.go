package ingest

import (
	"encoding/json"
	"strings"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// ParseItems reads the generator's answer as a JSON array of news objects. When the text is
// not a bare array (prose around it, code fences) the span from the first '[' to the last ']'
// is parsed instead. Elements that do not decode are skipped but keep their Position in the
// array; total failure yields nil.
func ParseItems(text string) []models.RawNewsItem {
	if items, ok := decodeArray(text); ok {
		return items
	}
	if span, ok := bracketSpan(text); ok {
		if items, ok := decodeArray(span); ok {
			return items
		}
	}
	return nil
}

func decodeArray(text string) ([]models.RawNewsItem, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &elems); err != nil {
		return nil, false
	}

	items := make([]models.RawNewsItem, 0, len(elems))
	for i, elem := range elems {
		var item models.RawNewsItem
		if err := json.Unmarshal(elem, &item); err != nil {
			continue
		}
		item.Position = i
		items = append(items, item)
	}
	return items, true
}

func bracketSpan(text string) (string, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
