package search

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"queryforge/internal/fault"
)

const jinaProxyBase = "https://r.jina.ai/https://duckduckgo.com/"

// DuckDuckGo is the last-resort provider. It fetches the DuckDuckGo result
// page through the r.jina.ai reader proxy, which returns the page as
// markdown, and parses the numbered result blocks out of it.
type DuckDuckGo struct {
	ProxyBase string
	client    httpDoer
}

func NewDuckDuckGo(timeout time.Duration) *DuckDuckGo {
	return &DuckDuckGo{ProxyBase: jinaProxyBase, client: defaultHTTPClient(timeout)}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

var (
	blockSplitter = regexp.MustCompile(`\n\d+\.\s+`)
	linkPattern   = regexp.MustCompile(`\*\s+\[(?:#+\s*)?(.*?)\]\((https?://[^\)]+)\)`)
	bareURL       = regexp.MustCompile(`(https?://[^\s\)]+)`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

func (d *DuckDuckGo) Search(ctx context.Context, query, language string, n int) ([]Result, error) {
	kl := "us-en"
	if strings.HasPrefix(strings.ToLower(language), "zh") {
		kl = "cn-zh"
	}
	target := fmt.Sprintf("%s?q=%s&kl=%s", d.ProxyBase, url.QueryEscape(query), kl)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Safari/537.36")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("duckduckgo request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("duckduckgo proxy returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fault.Transient(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("reading duckduckgo page: %w", err))
	}

	results := parseProxyPage(string(body), query, n)
	if len(results) == 0 {
		return nil, fmt.Errorf("duckduckgo returned no results for %q", query)
	}
	return results, nil
}

func parseProxyPage(text, query string, n int) []Result {
	blocks := blockSplitter.Split(text, -1)
	if len(blocks) < 2 {
		return nil
	}

	var results []Result
	seen := make(map[string]bool)
	for _, block := range blocks[1:] {
		var lines []string
		for _, line := range strings.Split(block, "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, strings.TrimRight(line, " \t"))
			}
		}
		if len(lines) == 0 {
			continue
		}
		snippet := strings.TrimSpace(spaceRun.ReplaceAllString(lines[0], " "))

		var title, link string
		for _, line := range lines[1:] {
			m := linkPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if strings.Contains(m[2], "duckduckgo.com") {
				continue
			}
			title = html.UnescapeString(strings.TrimSpace(m[1]))
			link = m[2]
			break
		}
		if link == "" {
			if m := bareURL.FindStringSubmatch(block); m != nil {
				link = m[1]
				title = link
			}
		}
		if link == "" || seen[link] || ShouldSkipURL(link) {
			continue
		}
		seen[link] = true
		if title == "" {
			title = link
		}
		results = append(results, Result{
			Title:   title,
			URL:     link,
			Snippet: snippet,
			Source:  "duckduckgo",
			Query:   query,
		})
		if len(results) >= n {
			break
		}
	}
	return results
}
