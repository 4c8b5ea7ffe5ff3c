// Package evidence selects ground-truth sources from search results and
// maintains the durable download cache behind them.
package evidence

import "queryforge/internal/core/search"

// Source is a single evidence document referenced by a packaged task.
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
	Query   string `json:"search_query,omitempty"`
}

// FromResult converts a search hit into an evidence source.
func FromResult(r search.Result) Source {
	return Source{
		Title:   r.Title,
		URL:     r.URL,
		Snippet: r.Snippet,
		Source:  r.Source,
		Date:    r.Date,
		Query:   r.Query,
	}
}

// Bundle aggregates the primary evidence artifact and supporting references.
// Primary is nil when nothing usable was found; that is a valid outcome, the
// composed task simply carries no authoritative artifact.
type Bundle struct {
	Primary    *Source  `json:"primary,omitempty"`
	Supporting []Source `json:"supporting,omitempty"`
}

// AllSources lists primary (when present) followed by supporting sources.
func (b Bundle) AllSources() []Source {
	var out []Source
	if b.Primary != nil {
		out = append(out, *b.Primary)
	}
	return append(out, b.Supporting...)
}

// URLSet returns every URL referenced by the bundle.
func (b Bundle) URLSet() map[string]bool {
	set := make(map[string]bool)
	for _, s := range b.AllSources() {
		if s.URL != "" {
			set[s.URL] = true
		}
	}
	return set
}
