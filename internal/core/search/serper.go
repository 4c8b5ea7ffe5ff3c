package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"queryforge/internal/fault"
)

const DefaultSerperEndpoint = "https://google.serper.dev/search"

// Serper queries the Serper.dev wrapper around Google search. Organic hits
// are preferred; the news section is used when organic comes back empty.
type Serper struct {
	APIKey   string
	Endpoint string
	Market   string
	client   httpDoer
}

func NewSerper(apiKey, endpoint, market string, timeout time.Duration) *Serper {
	if endpoint == "" {
		endpoint = DefaultSerperEndpoint
	}
	if market == "" {
		market = "us"
	}
	return &Serper{APIKey: apiKey, Endpoint: endpoint, Market: market, client: defaultHTTPClient(timeout)}
}

func (s *Serper) Name() string { return "serper" }

type serperItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Date    string `json:"date"`
}

type serperResponse struct {
	Organic []serperItem `json:"organic"`
	News    []serperItem `json:"news"`
}

func (s *Serper) Search(ctx context.Context, query, language string, n int) ([]Result, error) {
	if s.APIKey == "" {
		return nil, fault.Structuralf("serper api key not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"q":   query,
		"gl":  s.Market,
		"hl":  language,
		"num": n,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("serper request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("serper returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			// Key problems are not retryable; the chain falls through to the
			// next provider instead.
			return nil, fault.Structural(err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fault.Transient(err)
		}
		return nil, err
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding serper response: %w", err)
	}

	items := parsed.Organic
	if len(items) == 0 {
		items = parsed.News
	}
	if len(items) > n {
		items = items[:n]
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		if item.Link == "" && item.Title == "" {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Source:  item.Source,
			Date:    item.Date,
			Query:   query,
		})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("serper returned no usable results for %q", query)
	}
	return results, nil
}
