package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
	"github.com/DeafMist/crm-spotlight/backend/internal/urlcheck"
)

// Normalize turns raw generator records into NewsItems. An invalid url is replaced by a
// grounding URL picked round-robin by the record's Position in the generator's answer; records whose url is still invalid
// are dropped. Every kept item gets a fresh id and now as its timestamp.
func Normalize(raw []models.RawNewsItem, groundingURLs []string, now time.Time) []models.NewsItem {
	fallback := urlcheck.Filter(groundingURLs)

	out := make([]models.NewsItem, 0, len(raw))
	for _, r := range raw {
		link := strings.TrimSpace(r.URL)
		if !urlcheck.Valid(link) && len(fallback) > 0 {
			link = fallback[max(r.Position, 0)%len(fallback)]
		}

		item := models.NewsItem{
			ID:             uuid.NewString(),
			Title:          strings.TrimSpace(r.Title),
			Summary:        strings.TrimSpace(r.Summary),
			Source:         strings.TrimSpace(r.Source),
			URL:            link,
			Category:       strings.TrimSpace(r.Category),
			RelevanceScore: float64(r.RelevanceScore),
			Timestamp:      now,
		}

		if !urlcheck.Valid(item.URL) {
			continue
		}
		out = append(out, item)
	}
	return out
}
