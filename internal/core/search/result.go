// Package search implements the web search provider chain that feeds the
// evidence selector.
package search

import "strings"

// Result is a normalized search hit from any provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
	Query   string `json:"search_query,omitempty"`
}

// Key identifies a result for dedup purposes.
func (r Result) Key() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Title + "|" + r.Snippet
}

var skipExtensions = []string{
	".ico", ".png", ".jpg", ".jpeg", ".svg", ".gif", ".webp",
	".css", ".js", ".ttf", ".woff", ".txt",
}

var bannedHosts = []string{"duckduckgo.com", "r.jina.ai"}

// ShouldSkipURL filters out asset files and search-infrastructure hosts that
// never make usable evidence.
func ShouldSkipURL(url string) bool {
	lowered := strings.ToLower(url)
	for _, host := range bannedHosts {
		if strings.Contains(lowered, host) {
			return true
		}
	}
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lowered, ext) {
			return true
		}
	}
	return false
}
