package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryforge/internal/fault"
)

func newTestCache(t *testing.T, dir string) *Cache {
	t.Helper()
	cache, err := NewCache(CacheOptions{Dir: dir, NegativeTTL: time.Minute})
	require.NoError(t, err)
	return cache
}

func TestFetchDownloadsOnce(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 payload"))
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())

	entry, err := cache.Fetch(context.Background(), server.URL+"/doc.pdf", "Basel Standard")
	require.NoError(t, err)
	assert.Equal(t, int64(16), entry.Size)
	assert.Equal(t, "application/pdf", entry.ContentType)
	assert.True(t, strings.HasSuffix(entry.Path, "basel-standard.pdf"))
	assert.FileExists(t, entry.Path)

	again, err := cache.Fetch(context.Background(), server.URL+"/doc.pdf", "Basel Standard")
	require.NoError(t, err)
	assert.Equal(t, entry.SHA256, again.SHA256)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchConcurrentSingleFlight(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())
	url := server.URL + "/shared"

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Fetch(context.Background(), url, "shared")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchDurableAcrossInstances(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	dir := t.TempDir()
	first := newTestCache(t, dir)
	_, err := first.Fetch(context.Background(), server.URL+"/a", "a")
	require.NoError(t, err)

	second := newTestCache(t, dir)
	entry, err := second.Fetch(context.Background(), server.URL+"/a", "a")
	require.NoError(t, err)
	assert.FileExists(t, entry.Path)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchNegativeEntry(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())
	url := server.URL + "/missing"

	_, err := cache.Fetch(context.Background(), url, "x")
	require.Error(t, err)

	_, err = cache.Fetch(context.Background(), url, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNegativeCached)
	assert.Equal(t, fault.KindTransient, fault.Classify(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetchNegativeEntryExpires(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())
	url := server.URL + "/flaky"

	_, err := cache.Fetch(context.Background(), url, "x")
	require.Error(t, err)

	// Move the clock past the TTL so the negative entry no longer blocks.
	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	entry, err := cache.Fetch(context.Background(), url, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(len("recovered")), entry.Size)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchLocalFile(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "guidance.md")
	require.NoError(t, os.WriteFile(docPath, []byte("# Guidance"), 0o644))

	cache := newTestCache(t, filepath.Join(dir, "cache"))
	entry, err := cache.Fetch(context.Background(), "file://"+docPath, "guidance")
	require.NoError(t, err)
	assert.FileExists(t, entry.Path)
	assert.NotEmpty(t, entry.SHA256)
}

func TestFetchHTMLStoresMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><main><h1>Standard</h1><p>Body text.</p></main></body></html>"))
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())
	entry, err := cache.Fetch(context.Background(), server.URL+"/page", "page")
	require.NoError(t, err)
	require.NotEmpty(t, entry.TextPath)

	text, err := os.ReadFile(entry.TextPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Standard")
	assert.Contains(t, string(text), "Body text.")
}

type fakeExtractor struct{ text string }

func (f fakeExtractor) ExtractPDF(ctx context.Context, url string) (string, error) {
	return f.text, nil
}

func TestFetchPDFExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	cache, err := NewCache(CacheOptions{
		Dir:       t.TempDir(),
		Extractor: fakeExtractor{text: "# Extracted\ncontent"},
	})
	require.NoError(t, err)

	entry, err := cache.Fetch(context.Background(), server.URL+"/doc.pdf", "doc")
	require.NoError(t, err)
	require.NotEmpty(t, entry.TextPath)

	text, err := os.ReadFile(entry.TextPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Extracted")
}

func TestCacheBundleSkipsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "dead") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cache := newTestCache(t, t.TempDir())
	primary := Source{Title: "p", URL: server.URL + "/primary"}
	bundle := Bundle{
		Primary: &primary,
		Supporting: []Source{
			{Title: "dead", URL: server.URL + "/dead"},
			{Title: "live", URL: server.URL + "/live"},
		},
	}

	metadata := cache.CacheBundle(context.Background(), bundle)
	require.Contains(t, metadata, "primary")
	supporting, ok := metadata["supporting"].([]Entry)
	require.True(t, ok)
	assert.Len(t, supporting, 1)
}

func TestFingerprintLayout(t *testing.T) {
	fp := Fingerprint("https://example.com/doc.pdf")
	assert.Len(t, fp, 64)

	cache := newTestCache(t, t.TempDir())
	dir := cache.entryDir(fp)
	assert.Equal(t, filepath.Join(cache.dir, fp[:2], fp), dir)
}
