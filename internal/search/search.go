// Package search answers web queries used to ground reply generation.
//
// Google Custom Search is the primary backend; when it is unconfigured or
// returns nothing the DuckDuckGo instant-answer API serves as a best-effort
// fallback.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkarlin/mailpilot/internal/types"
)

const (
	defaultGoogleURL     = "https://www.googleapis.com/customsearch/v1"
	defaultDuckDuckGoURL = "https://api.duckduckgo.com/"
)

// Client performs web searches.
type Client struct {
	apiKey        string
	cx            string
	googleURL     string
	duckDuckGoURL string
	http          *http.Client
}

// New builds a search client. Empty apiKey or cx disables the Google backend
// and every query goes straight to DuckDuckGo.
func New(apiKey, cx string) *Client {
	return &Client{
		apiKey:        apiKey,
		cx:            cx,
		googleURL:     defaultGoogleURL,
		duckDuckGoURL: defaultDuckDuckGoURL,
		http:          &http.Client{Timeout: 20 * time.Second},
	}
}

// NewWithBaseURLs builds a client against custom endpoints.
func NewWithBaseURLs(apiKey, cx, googleURL, duckDuckGoURL string) *Client {
	c := New(apiKey, cx)
	c.googleURL = googleURL
	c.duckDuckGoURL = duckDuckGoURL
	return c
}

// Search returns up to limit results for the query. Google results win;
// DuckDuckGo fills in when Google is unavailable or empty.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}

	if c.apiKey != "" && c.cx != "" {
		results, err := c.google(ctx, query, limit)
		if err == nil && len(results) > 0 {
			return results, nil
		}
	}

	return c.duckDuckGo(ctx, query, limit)
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (c *Client) google(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	if limit > 10 {
		limit = 10
	}
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.cx)
	params.Set("q", query)
	params.Set("num", fmt.Sprint(limit))

	var body googleResponse
	if err := c.getJSON(ctx, c.googleURL+"?"+params.Encode(), &body); err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}

	results := make([]types.SearchResult, 0, len(body.Items))
	for _, item := range body.Items {
		results = append(results, types.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  "google",
		})
	}
	return results, nil
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (c *Client) duckDuckGo(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	var body duckDuckGoResponse
	if err := c.getJSON(ctx, c.duckDuckGoURL+"?"+params.Encode(), &body); err != nil {
		return nil, fmt.Errorf("duckduckgo search: %w", err)
	}

	var results []types.SearchResult
	if body.AbstractText != "" {
		results = append(results, types.SearchResult{
			Title:   body.Heading,
			Link:    body.AbstractURL,
			Snippet: body.AbstractText,
			Source:  "duckduckgo",
		})
	}
	for _, topic := range body.RelatedTopics {
		if len(results) >= limit {
			break
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:   topicTitle(topic.Text),
			Link:    topic.FirstURL,
			Snippet: topic.Text,
			Source:  "duckduckgo",
		})
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// topicTitle takes the leading sentence of a related-topic blurb.
func topicTitle(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	if len(text) > 80 {
		return text[:80]
	}
	return text
}
