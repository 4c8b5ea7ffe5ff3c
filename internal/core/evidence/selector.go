package evidence

import (
	"net/url"
	"sort"
	"strings"

	"queryforge/internal/core/search"
	"queryforge/internal/logger"
)

var skipExtensions = []string{
	".ico", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".css", ".js", ".ttf", ".woff", ".woff2",
}

var skipDomains = []string{"duckduckgo.com", "r.jina.ai", "apps.apple.com", "itunes.apple.com"}

// Viable reports whether a URL can serve as evidence: local files always
// qualify, web URLs must be http(s) on a non-banned host and not an asset.
func Viable(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme == "file" {
		return true
	}
	if !strings.HasPrefix(parsed.Scheme, "http") {
		return false
	}
	host := strings.ToLower(parsed.Host)
	for _, banned := range skipDomains {
		if host == banned || strings.HasSuffix(host, "."+banned) {
			return false
		}
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// ScoreFunc ranks a URL for primary selection. Lower tier wins; tiebreak
// breaks ties within a tier (also lower-wins).
type ScoreFunc func(url string) (tier, tiebreak int)

// DefaultScore prefers directly consumable artifacts: PDFs first, then code
// repositories, then model hubs, then generic pages. Shorter URLs win ties.
func DefaultScore(rawURL string) (int, int) {
	u := strings.ToLower(rawURL)
	if u == "" {
		return 99, 99
	}
	switch {
	case strings.HasSuffix(u, ".pdf") || strings.Contains(u, "/pdf"):
		return 0, len(u)
	case strings.Contains(u, "github.com") || strings.Contains(u, "gitlab.com") || strings.Contains(u, "bitbucket.org"):
		return 1, len(u)
	case strings.Contains(u, "huggingface.co"):
		return 2, len(u)
	}
	return 5, len(u)
}

// SelectorOptions tune bundle selection.
type SelectorOptions struct {
	MaxSupporting int
	Score         ScoreFunc
	// Probe checks whether a URL is actually fetchable. When set, fetchable
	// candidates are preferred for primary. Optional.
	Probe func(url string) bool
}

// Selector builds evidence bundles from search results.
type Selector struct {
	opts SelectorOptions
	log  *logger.Logger
}

func NewSelector(opts SelectorOptions) *Selector {
	if opts.MaxSupporting <= 0 {
		opts.MaxSupporting = 3
	}
	if opts.Score == nil {
		opts.Score = DefaultScore
	}
	return &Selector{opts: opts, log: logger.New("EvidenceSelector")}
}

// Select picks the primary artifact and distinct-host supporting references.
// With no viable candidates the first raw result still becomes primary so a
// task is never packaged without provenance; with no results at all the
// bundle is empty.
func (s *Selector) Select(queryID string, results []search.Result) Bundle {
	if len(results) == 0 {
		return Bundle{}
	}

	var viable []search.Result
	for _, r := range results {
		if Viable(r.URL) {
			viable = append(viable, r)
		}
	}

	sort.SliceStable(viable, func(i, j int) bool {
		ti, bi := s.opts.Score(viable[i].URL)
		tj, bj := s.opts.Score(viable[j].URL)
		if ti != tj {
			return ti < tj
		}
		return bi < bj
	})

	ordered := viable
	if s.opts.Probe != nil {
		var fetchable []search.Result
		for _, r := range viable {
			if s.opts.Probe(r.URL) {
				fetchable = append(fetchable, r)
			}
		}
		if len(fetchable) > 0 {
			ordered = fetchable
		}
	}

	var primary Source
	if len(ordered) > 0 {
		primary = FromResult(ordered[0])
	} else {
		s.log.LogWarnf("no viable evidence for %s, falling back to first search result", queryID)
		primary = FromResult(results[0])
	}

	supporting := s.pickSupporting(primary, results)
	return Bundle{Primary: &primary, Supporting: supporting}
}

// pickSupporting keeps viable results from hosts distinct from the primary
// and from each other, deduped by URL.
func (s *Selector) pickSupporting(primary Source, results []search.Result) []Source {
	usedHosts := map[string]bool{hostOf(primary.URL): true}
	seenURLs := map[string]bool{normalizeURL(primary.URL): true}

	var supporting []Source
	for _, r := range results {
		if len(supporting) >= s.opts.MaxSupporting {
			break
		}
		if r.URL == "" || seenURLs[normalizeURL(r.URL)] || !Viable(r.URL) {
			continue
		}
		host := hostOf(r.URL)
		if host != "" && usedHosts[host] {
			continue
		}
		seenURLs[normalizeURL(r.URL)] = true
		usedHosts[host] = true
		supporting = append(supporting, FromResult(r))
	}
	return supporting
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func normalizeURL(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}
