package ingest

import (
	"slices"
	"time"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// Buckets returns n instants evenly spaced from now (index 0) back to start (index n-1).
func Buckets(start, now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []time.Time{now}
	}

	step := now.Sub(start) / time.Duration(n-1)
	out := make([]time.Time, n)
	for k := 0; k < n-1; k++ {
		out[k] = now.Add(-step * time.Duration(k))
	}
	out[n-1] = start
	return out
}

// Hydrate overwrites item timestamps in place: item i gets buckets[i mod len(buckets)].
// Order is preserved; callers sort with SortByRecency afterwards.
func Hydrate(items []models.NewsItem, buckets []time.Time) {
	if len(buckets) == 0 {
		return
	}
	for i := range items {
		items[i].Timestamp = buckets[i%len(buckets)]
	}
}

// SortByRecency orders items newest first, keeping the relative order of equal timestamps.
func SortByRecency(items []models.NewsItem) {
	slices.SortStableFunc(items, func(a, b models.NewsItem) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
