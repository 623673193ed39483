// Package processing turns news text into search keywords.
package processing

import (
	"cmp"
	"html"
	"regexp"
	"slices"
	"strings"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

var (
	linkPattern  = regexp.MustCompile(`https?://\S+`)
	nonWordRun   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	spaceRun     = regexp.MustCompile(`\s+`)
	fillerTokens = toSet(
		"a", "an", "the", "to", "in", "for", "of", "on", "and", "with", "from", "that", "this",
		"into", "its", "their", "will", "has", "have", "after", "over", "more", "new", "says",
		"said", "company", "companies",
	)
)

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// RemoveURLs blanks out every http(s) link.
func RemoveURLs(input string) string {
	return linkPattern.ReplaceAllString(input, " ")
}

// CleanText decodes HTML entities, drops links and punctuation and collapses whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	s := RemoveURLs(html.UnescapeString(input))
	s = nonWordRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// tokens yields lowercase words of at least minLen runes that are not filler words.
func tokens(text string, minLen int) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(CleanText(text))) {
		if len([]rune(tok)) < minLen {
			continue
		}
		if _, filler := fillerTokens[tok]; filler {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ExtractKeywords returns up to limit words ranked by frequency, ties alphabetical. A
// non-positive limit returns all of them.
func ExtractKeywords(text string, limit, minLen int) []string {
	counts := make(map[string]int)
	for _, tok := range tokens(text, minLen) {
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// BuildSearchDocument attaches keywords drawn from the title and summary. The title is
// counted twice so its words rank first.
func BuildSearchDocument(item models.NewsItem, limit, minLen int) models.SearchDocument {
	text := strings.Repeat(item.Title+" ", 2) + item.Summary
	return models.SearchDocument{
		NewsItem: item,
		Keywords: ExtractKeywords(text, limit, minLen),
	}
}
