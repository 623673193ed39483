package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// NewsItem is a single ingested news record as stored and served to the dashboard.
type NewsItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Source         string    `json:"source"`
	URL            string    `json:"url"`
	Category       string    `json:"category"`
	RelevanceScore float64   `json:"relevanceScore"`
	Timestamp      time.Time `json:"timestamp"`
	Insight        string    `json:"insight,omitempty"`
}

// RawNewsItem is the object shape the generator is asked to return. Position is the
// element's index in the generator's array.
type RawNewsItem struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	Source         string `json:"source"`
	Category       string `json:"category"`
	RelevanceScore Score  `json:"relevanceScore"`
	URL            string `json:"url"`
	Position       int    `json:"-"`
}

// Score is a relevance hint. It decodes from a number or a numeric string; anything else
// reads as 0 instead of failing the enclosing record.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	*s = 0
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(text))
	}
	if v, err := strconv.ParseFloat(string(data), 64); err == nil {
		*s = Score(v)
	}
	return nil
}

// SearchDocument is the structure indexed into Elasticsearch.
type SearchDocument struct {
	NewsItem
	Keywords []string `json:"keywords"`
}
