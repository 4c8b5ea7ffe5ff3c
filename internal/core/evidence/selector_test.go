package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryforge/internal/core/search"
)

func TestViable(t *testing.T) {
	assert.True(t, Viable("https://www.bis.org/basel_framework/standard.pdf"))
	assert.True(t, Viable("file:///data/guidance.md"))
	assert.False(t, Viable(""))
	assert.False(t, Viable("ftp://host/file"))
	assert.False(t, Viable("https://duckduckgo.com/?q=x"))
	assert.False(t, Viable("https://sub.r.jina.ai/page"))
	assert.False(t, Viable("https://x.com/logo.png"))
	assert.False(t, Viable("https://apps.apple.com/app/id1"))
}

func TestDefaultScoreTiers(t *testing.T) {
	pdf, _ := DefaultScore("https://x.com/report.pdf")
	repo, _ := DefaultScore("https://github.com/org/repo")
	hub, _ := DefaultScore("https://huggingface.co/model")
	page, _ := DefaultScore("https://x.com/article")
	empty, _ := DefaultScore("")

	assert.Less(t, pdf, repo)
	assert.Less(t, repo, hub)
	assert.Less(t, hub, page)
	assert.Equal(t, 99, empty)
}

func TestSelectPrefersPDF(t *testing.T) {
	selector := NewSelector(SelectorOptions{})
	results := []search.Result{
		{Title: "article", URL: "https://a.com/article"},
		{Title: "paper", URL: "https://b.org/paper.pdf"},
		{Title: "repo", URL: "https://github.com/org/repo"},
	}

	bundle := selector.Select("q1", results)
	require.NotNil(t, bundle.Primary)
	assert.Equal(t, "https://b.org/paper.pdf", bundle.Primary.URL)
}

func TestSelectSupportingDistinctHosts(t *testing.T) {
	selector := NewSelector(SelectorOptions{MaxSupporting: 3})
	results := []search.Result{
		{Title: "primary", URL: "https://a.com/doc.pdf"},
		{Title: "same host", URL: "https://a.com/other"},
		{Title: "b", URL: "https://b.com/page"},
		{Title: "b again", URL: "https://b.com/second"},
		{Title: "c", URL: "https://c.com/page"},
	}

	bundle := selector.Select("q1", results)
	require.NotNil(t, bundle.Primary)
	assert.Equal(t, "https://a.com/doc.pdf", bundle.Primary.URL)
	require.Len(t, bundle.Supporting, 2)
	assert.Equal(t, "https://b.com/page", bundle.Supporting[0].URL)
	assert.Equal(t, "https://c.com/page", bundle.Supporting[1].URL)
}

func TestSelectSupportingCap(t *testing.T) {
	selector := NewSelector(SelectorOptions{MaxSupporting: 1})
	results := []search.Result{
		{URL: "https://a.com/doc.pdf"},
		{URL: "https://b.com/1"},
		{URL: "https://c.com/2"},
	}
	bundle := selector.Select("q1", results)
	assert.Len(t, bundle.Supporting, 1)
}

func TestSelectFallsBackToFirstResult(t *testing.T) {
	selector := NewSelector(SelectorOptions{})
	results := []search.Result{
		{Title: "banned", URL: "https://duckduckgo.com/x"},
		{Title: "asset", URL: "https://x.com/icon.svg"},
	}

	bundle := selector.Select("q1", results)
	require.NotNil(t, bundle.Primary)
	assert.Equal(t, "https://duckduckgo.com/x", bundle.Primary.URL)
	assert.Empty(t, bundle.Supporting)
}

func TestSelectEmptyResults(t *testing.T) {
	selector := NewSelector(SelectorOptions{})
	bundle := selector.Select("q1", nil)
	assert.Nil(t, bundle.Primary)
	assert.Empty(t, bundle.AllSources())
}

func TestSelectProbePreference(t *testing.T) {
	selector := NewSelector(SelectorOptions{
		Probe: func(url string) bool { return url == "https://b.com/live" },
	})
	results := []search.Result{
		{Title: "dead pdf", URL: "https://a.com/doc.pdf"},
		{Title: "live page", URL: "https://b.com/live"},
	}

	bundle := selector.Select("q1", results)
	require.NotNil(t, bundle.Primary)
	assert.Equal(t, "https://b.com/live", bundle.Primary.URL)
}

func TestSelectCustomScore(t *testing.T) {
	selector := NewSelector(SelectorOptions{
		Score: func(url string) (int, int) {
			if url == "https://a.com/special" {
				return 0, 0
			}
			return 10, len(url)
		},
	})
	results := []search.Result{
		{URL: "https://b.org/paper.pdf"},
		{URL: "https://a.com/special"},
	}

	bundle := selector.Select("q1", results)
	require.NotNil(t, bundle.Primary)
	assert.Equal(t, "https://a.com/special", bundle.Primary.URL)
}

func TestBundleURLSet(t *testing.T) {
	primary := Source{URL: "https://a.com/1"}
	bundle := Bundle{Primary: &primary, Supporting: []Source{{URL: "https://b.com/2"}}}
	set := bundle.URLSet()
	assert.True(t, set["https://a.com/1"])
	assert.True(t, set["https://b.com/2"])
	assert.Len(t, set, 2)
}
