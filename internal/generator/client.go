// Package generator asks a search-grounded Gemini model for CRM industry news.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

// ErrEmptyResponse is returned when the model answered without any text.
var ErrEmptyResponse = errors.New("generator returned no text")

// Response is the raw answer of a news search.
type Response struct {
	Text          string
	GroundingURLs []string
}

// Client wraps the genai SDK with the two prompts the dashboard needs.
type Client struct {
	genai *genai.Client
	model string
	log   *slog.Logger
}

// New creates a Gemini API client.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generator API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{genai: client, model: model, log: logger}, nil
}

// Search asks for news published between start and end. Grounding URLs are returned in the
// order the model cited them.
func (c *Client) Search(ctx context.Context, start, end time.Time) (Response, error) {
	cfg := &genai.GenerateContentConfig{
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature: genai.Ptr[float32](0.2),
	}

	began := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(SearchPrompt(start, end)), cfg)
	if err != nil {
		return Response{}, fmt.Errorf("generate news: %w", err)
	}

	out := Response{
		Text:          resp.Text(),
		GroundingURLs: groundingURLs(resp),
	}
	c.log.Debug("generator search completed",
		slog.Duration("took", time.Since(began)),
		slog.Int("response_len", len(out.Text)),
		slog.Int("grounding_urls", len(out.GroundingURLs)),
	)

	if strings.TrimSpace(out.Text) == "" {
		return out, ErrEmptyResponse
	}
	return out, nil
}

// Insight asks for a short analyst annotation of item.
func (c *Client) Insight(ctx context.Context, item models.NewsItem) (string, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(InsightPrompt(item)), nil)
	if err != nil {
		return "", fmt.Errorf("generate insight: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func groundingURLs(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}

	var urls []string
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk != nil && chunk.Web != nil && chunk.Web.URI != "" {
			urls = append(urls, chunk.Web.URI)
		}
	}
	return urls
}
