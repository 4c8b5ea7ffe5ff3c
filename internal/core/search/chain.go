package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"queryforge/internal/fault"
	"queryforge/internal/logger"
)

var (
	filetypeFilter = regexp.MustCompile(`(?i)\bfiletype:\S+`)
	orSiteFilter   = regexp.MustCompile(`(?i)\bOR\b\s+site:\S+`)
	siteFilter     = regexp.MustCompile(`(?i)\bsite:\S+`)
	yearRange      = regexp.MustCompile(`\b\d{4}\.\.\d{4}\b`)
	multiSpace     = regexp.MustCompile(`\s{2,}`)
)

// RelaxQuery strips restrictive operators (filetype filters, site scopes,
// year ranges) to broaden the search surface when the strict query misses.
func RelaxQuery(query string) string {
	relaxed := filetypeFilter.ReplaceAllString(query, "")
	relaxed = orSiteFilter.ReplaceAllString(relaxed, "")
	relaxed = siteFilter.ReplaceAllString(relaxed, "")
	relaxed = yearRange.ReplaceAllString(relaxed, "")
	relaxed = strings.TrimSpace(multiSpace.ReplaceAllString(relaxed, " "))
	if relaxed == "" {
		return query
	}
	return relaxed
}

// QueryVariants returns the ordered variants to try, strict first.
func QueryVariants(query string) []string {
	variants := []string{query}
	if relaxed := RelaxQuery(query); relaxed != query {
		variants = append(variants, relaxed)
	}
	return variants
}

const attemptsPerQuery = 3

// Chain aggregates results across a spec's seed queries. Pinned overrides
// short-circuit the network; otherwise providers are tried in priority order,
// with query relaxation and backoff between attempts.
type Chain struct {
	override  *Override
	providers []Provider
	log       *logger.Logger

	// backoff is swapped in tests to avoid real sleeps.
	backoff func(attempt int) time.Duration
}

func NewChain(override *Override, providers ...Provider) *Chain {
	return &Chain{
		override:  override,
		providers: providers,
		log:       logger.New("SearchChain"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * time.Second
		},
	}
}

// Run searches every seed query, dedups by URL and caps the aggregate at
// numResults. It fails only when no query produced anything usable.
func (c *Chain) Run(ctx context.Context, queries []string, language string, numResults int) ([]Result, error) {
	if numResults <= 0 {
		numResults = 5
	}

	var aggregated []Result
	seen := make(map[string]bool)
	var failures []string

	for idx, base := range queries {
		variants := QueryVariants(base)
		var results []Result
		var lastErr error

		for attempt := 0; attempt < attemptsPerQuery; attempt++ {
			variantIdx := attempt
			if variantIdx >= len(variants) {
				variantIdx = len(variants) - 1
			}
			variant := variants[variantIdx]
			if variantIdx > 0 && attempt == variantIdx {
				c.log.LogInfof("relaxing query[%d]: %q -> %q", idx, base, variant)
			}

			remaining := numResults - len(aggregated)
			if remaining < 1 {
				remaining = 1
			}
			results, lastErr = c.searchOnce(ctx, variant, language, remaining)
			if lastErr == nil {
				break
			}
			c.log.LogWarnf("search attempt %d for %q failed: %v", attempt+1, variant, lastErr)
			if attempt < attemptsPerQuery-1 {
				if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
					return nil, err
				}
			}
		}

		if lastErr != nil {
			failures = append(failures, lastErr.Error())
			continue
		}

		for _, r := range results {
			if ShouldSkipURL(r.URL) || seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			aggregated = append(aggregated, r)
			if len(aggregated) >= numResults {
				break
			}
		}
		if len(aggregated) >= numResults {
			break
		}
	}

	if len(aggregated) == 0 {
		return nil, fault.Transient(fmt.Errorf("search unavailable for %d queries: %s",
			len(queries), strings.Join(failures, "; ")))
	}
	return aggregated, nil
}

// searchOnce consults the override map first, then each provider in order.
// Providers with missing credentials fall through silently.
func (c *Chain) searchOnce(ctx context.Context, query, language string, n int) ([]Result, error) {
	if c.override != nil {
		if results, ok := c.override.Lookup(query, n); ok {
			c.log.LogDebugf("override hit for %q (%d results)", query, len(results))
			return results, nil
		}
	}

	var lastErr error
	for _, provider := range c.providers {
		results, err := provider.Search(ctx, query, language, n)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err != nil {
			if fault.Classify(err) != fault.KindStructural {
				lastErr = err
			}
			c.log.LogDebugf("provider %s failed for %q: %v", provider.Name(), query, err)
			continue
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider returned results for %q", query)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
