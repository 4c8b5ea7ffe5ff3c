package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"queryforge/internal/fault"
)

const googleCSEEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleCSE queries the Google Custom Search Engine JSON API. The API caps
// page size at 10.
type GoogleCSE struct {
	APIKey   string
	EngineID string
	Endpoint string
	client   httpDoer
}

func NewGoogleCSE(apiKey, engineID string, timeout time.Duration) *GoogleCSE {
	return &GoogleCSE{
		APIKey:   apiKey,
		EngineID: engineID,
		Endpoint: googleCSEEndpoint,
		client:   defaultHTTPClient(timeout),
	}
}

func (g *GoogleCSE) Name() string { return "google-cse" }

type cseItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type cseResponse struct {
	Items []cseItem `json:"items"`
}

func (g *GoogleCSE) Search(ctx context.Context, query, language string, n int) ([]Result, error) {
	if g.APIKey == "" || g.EngineID == "" {
		return nil, fault.Structuralf("google cse api key or engine id not configured")
	}
	if n > 10 {
		n = 10
	}

	lr := "lang_en"
	if strings.HasPrefix(strings.ToLower(language), "zh") {
		lr = "lang_zh"
	}

	params := url.Values{}
	params.Set("key", g.APIKey)
	params.Set("cx", g.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(n))
	params.Set("lr", lr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("google cse request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("google cse returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fault.Transient(err)
		}
		return nil, err
	}

	var parsed cseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding google cse response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" || ShouldSkipURL(item.Link) {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Source:  "google-cse",
			Query:   query,
		})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("google cse returned no usable results for %q", query)
	}
	return results, nil
}
