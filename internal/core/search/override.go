package search

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override serves deterministic results for known queries from a YAML file,
// bypassing the network entirely. Useful for pinned ground-truth sources and
// hermetic runs.
type Override struct {
	entries map[string][]Result
}

type overrideEntry struct {
	Title   string `yaml:"title"`
	URL     string `yaml:"url"`
	Snippet string `yaml:"snippet"`
	Source  string `yaml:"source"`
	Date    string `yaml:"date"`
}

// LoadOverrides reads a query -> results map from a YAML file.
func LoadOverrides(path string) (*Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides file: %w", err)
	}
	var raw map[string][]overrideEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing overrides file %s: %w", path, err)
	}

	entries := make(map[string][]Result, len(raw))
	for query, items := range raw {
		results := make([]Result, 0, len(items))
		for _, item := range items {
			title := item.Title
			if title == "" {
				title = query
			}
			results = append(results, Result{
				Title:   title,
				URL:     item.URL,
				Snippet: item.Snippet,
				Source:  item.Source,
				Date:    item.Date,
				Query:   query,
			})
		}
		entries[query] = results
	}
	return &Override{entries: entries}, nil
}

// NewOverride builds an override provider from an in-memory map.
func NewOverride(entries map[string][]Result) *Override {
	if entries == nil {
		entries = map[string][]Result{}
	}
	return &Override{entries: entries}
}

func (o *Override) Name() string { return "override" }

// Lookup returns the pinned results for an exact query match.
func (o *Override) Lookup(query string, n int) ([]Result, bool) {
	results, ok := o.entries[query]
	if !ok {
		return nil, false
	}
	out := append([]Result(nil), results...)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, true
}

func (o *Override) Search(ctx context.Context, query, language string, n int) ([]Result, error) {
	results, ok := o.Lookup(query, n)
	if !ok {
		return nil, fmt.Errorf("no override for %q", query)
	}
	return results, nil
}
