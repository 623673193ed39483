// Package elasticsearch maintains the searchable copy of ingested news.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// indexMapping keeps category and source filterable as exact terms.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "title":          {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "summary":        {"type": "text"},
      "source":         {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "category":       {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "url":            {"type": "keyword", "index": false},
      "relevanceScore": {"type": "float"},
      "timestamp":      {"type": "date"},
      "keywords":       {"type": "keyword"},
      "insight":        {"type": "text", "index": false}
    }
  }
}`

// Client reads and writes the news index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow a search. Zero values mean "no constraint".
type SearchParams struct {
	Query    string
	Category string
	Source   string
	From     int
	Size     int
	Sort     string // field[:asc|desc]
	Start    *time.Time
	End      *time.Time
}

type SearchResult struct {
	Total int64                   `json:"total"`
	Items []models.SearchDocument `json:"items"`
}

// New connects to a single node.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	return NewWithConfig(elasticsearch.Config{Addresses: []string{addr}}, index, logger)
}

func NewWithConfig(cfg elasticsearch.Config, index string, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(index) == "" {
		return nil, fmt.Errorf("elasticsearch index name is required")
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{es: es, index: index, log: logger}, nil
}

// EnsureIndex creates the news index with its mapping unless it already exists. It doubles
// as a connectivity check.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", c.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: %s", c.index, res.Status())
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", c.index, err)
	}
	defer res.Body.Close()

	if err := checkResponse(res, "create index"); err != nil {
		// another worker may have won the race
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return err
	}
	c.log.Info("created news index", slog.String("index", c.index))
	return nil
}

// IndexNews upserts doc under its item id, so re-delivered items overwrite themselves.
func (c *Client) IndexNews(ctx context.Context, doc models.SearchDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal search document %s: %w", doc.ID, err)
	}

	res, err := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(payload),
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	defer res.Body.Close()

	return checkResponse(res, "index "+doc.ID)
}

func (c *Client) SearchNews(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(buildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if err := checkResponse(res, "search"); err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: make([]models.SearchDocument, 0, len(parsed.Hits.Hits)),
	}
	for _, hit := range parsed.Hits.Hits {
		out.Items = append(out.Items, hit.Source)
	}

	c.log.Debug("search completed", slog.String("query", params.Query), slog.Int64("total", out.Total))
	return out, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.SearchDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}

func buildSearchBody(params SearchParams) map[string]any {
	size := params.Size
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}

	boolQuery := map[string]any{}
	if params.Query != "" {
		boolQuery["must"] = []map[string]any{textQuery(params.Query)}
	}
	if filters := filterClauses(params); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(boolQuery) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	return map[string]any{
		"from":             max(params.From, 0),
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{sortClause(params.Sort)},
	}
}

func textQuery(q string) map[string]any {
	return map[string]any{
		"multi_match": map[string]any{
			"query":  q,
			"fields": []string{"title^2", "summary", "keywords"},
		},
	}
}

func filterClauses(params SearchParams) []map[string]any {
	var filters []map[string]any
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]any{"term": map[string]any{field: value}})
		}
	}
	term("category.keyword", params.Category)
	term("source.keyword", params.Source)

	if params.Start == nil && params.End == nil {
		return filters
	}
	window := map[string]any{}
	if params.Start != nil {
		window["gte"] = params.Start.UTC().Format(time.RFC3339)
	}
	if params.End != nil {
		window["lte"] = params.End.UTC().Format(time.RFC3339)
	}
	return append(filters, map[string]any{"range": map[string]any{"timestamp": window}})
}

// sortClause parses "field[:order]", newest first by default.
func sortClause(raw string) map[string]any {
	field, order := "timestamp", "desc"
	name, dir, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if name != "" {
		field = name
	}
	if dir == "asc" || dir == "desc" {
		order = dir
	}
	return map[string]any{field: map[string]any{"order": order}}
}
