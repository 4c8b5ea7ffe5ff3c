package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"queryforge/internal/fault"
	"queryforge/internal/logger"
	"queryforge/internal/utils/fsname"
	"queryforge/internal/utils/markdown"
)

const (
	metaFileName     = "meta.json"
	negativeFileName = "negative.json"
	maxPayloadBytes  = 64 << 20
)

const downloadUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0 Safari/537.36"

// Entry describes one cached evidence artifact.
type Entry struct {
	Path        string    `json:"local_path"`
	TextPath    string    `json:"parsed_content_path,omitempty"`
	SHA256      string    `json:"sha256"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"filesize"`
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type negativeEntry struct {
	SourceURL string    `json:"source_url"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
}

// ErrNegativeCached marks a URL whose recent fetch failed; callers should not
// retry it within the TTL window.
var ErrNegativeCached = errors.New("url has a cached fetch failure")

// TextExtractor converts PDF artifacts to markdown. Optional.
type TextExtractor interface {
	ExtractPDF(ctx context.Context, url string) (string, error)
}

// CacheOptions configure a Cache.
type CacheOptions struct {
	Dir         string
	NegativeTTL time.Duration
	HTTPTimeout time.Duration
	Extractor   TextExtractor
	Client      *http.Client
}

// Cache is the durable evidence store. Entries are keyed by a fingerprint of
// the source URL; a hit never touches the network, a miss performs exactly
// one fetch even under concurrent callers, and failures leave a negative
// entry so the run does not hammer a dead URL.
type Cache struct {
	dir         string
	negativeTTL time.Duration
	extractor   TextExtractor
	client      *http.Client
	group       singleflight.Group
	log         *logger.Logger

	now func() time.Time
}

func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = 15 * time.Minute
	}
	client := opts.Client
	if client == nil {
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Cache{
		dir:         opts.Dir,
		negativeTTL: opts.NegativeTTL,
		extractor:   opts.Extractor,
		client:      client,
		log:         logger.New("EvidenceCache"),
		now:         time.Now,
	}, nil
}

// Fingerprint identifies a URL within the cache.
func Fingerprint(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) entryDir(fingerprint string) string {
	return filepath.Join(c.dir, fingerprint[:2], fingerprint)
}

// Fetch returns the cached entry for a URL, downloading it on first use.
// Concurrent callers for the same URL share a single download.
func (c *Cache) Fetch(ctx context.Context, url, title string) (Entry, error) {
	fp := Fingerprint(url)
	v, err, _ := c.group.Do(fp, func() (interface{}, error) {
		return c.fetchLocked(ctx, fp, url, title)
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (c *Cache) fetchLocked(ctx context.Context, fp, url, title string) (Entry, error) {
	dir := c.entryDir(fp)

	if entry, ok := c.loadEntry(dir); ok {
		c.log.LogDebugf("cache hit for %s", url)
		return entry, nil
	}
	if reason, ok := c.loadNegative(dir); ok {
		return Entry{}, fault.Transient(fmt.Errorf("%w: %s (%s)", ErrNegativeCached, url, reason))
	}

	data, contentType, err := c.download(ctx, url)
	if err != nil {
		c.writeNegative(dir, url, err)
		return Entry{}, err
	}

	entry, err := c.store(ctx, dir, url, title, data, contentType)
	if err != nil {
		return Entry{}, err
	}
	c.log.LogInfof("cached %s (%d bytes, %s)", url, entry.Size, entry.ContentType)
	return entry, nil
}

func (c *Cache) loadEntry(dir string) (Entry, bool) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false
	}
	if _, err := os.Stat(entry.Path); err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) loadNegative(dir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, negativeFileName))
	if err != nil {
		return "", false
	}
	var neg negativeEntry
	if err := json.Unmarshal(data, &neg); err != nil {
		return "", false
	}
	if c.now().Sub(neg.FailedAt) > c.negativeTTL {
		os.Remove(filepath.Join(dir, negativeFileName))
		return "", false
	}
	return neg.Reason, true
}

func (c *Cache) writeNegative(dir, url string, cause error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	neg := negativeEntry{SourceURL: url, Reason: cause.Error(), FailedAt: c.now()}
	data, err := json.Marshal(neg)
	if err != nil {
		return
	}
	writeFileAtomic(filepath.Join(dir, negativeFileName), data)
}

func (c *Cache) download(ctx context.Context, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "file://") {
		path := strings.TrimPrefix(url, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fault.Structural(fmt.Errorf("reading local evidence: %w", err))
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return data, contentType, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fault.Structural(fmt.Errorf("building download request: %w", err))
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fault.Transient(fmt.Errorf("downloading %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("downloading %s: status %d", url, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, "", fault.Transient(err)
		}
		return nil, "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, "", fault.Transient(fmt.Errorf("reading %s: %w", url, err))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Cache) store(ctx context.Context, dir, url, title string, data []byte, contentType string) (Entry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("creating cache entry dir: %w", err)
	}

	if title == "" {
		title = "ground-truth"
	}
	name := fsname.Sanitize(title)
	ext := fsname.GuessExtension(contentType, url)
	payloadPath := filepath.Join(dir, name+ext)
	if err := writeFileAtomic(payloadPath, data); err != nil {
		return Entry{}, fmt.Errorf("writing cache payload: %w", err)
	}

	sum := sha256.Sum256(data)
	entry := Entry{
		Path:        payloadPath,
		SHA256:      hex.EncodeToString(sum[:]),
		ContentType: contentType,
		Size:        int64(len(data)),
		SourceURL:   url,
		Title:       title,
		FetchedAt:   c.now(),
	}

	if textPath := c.extractText(ctx, dir, name, url, data, contentType, ext); textPath != "" {
		entry.TextPath = textPath
	}

	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return Entry{}, err
	}
	if err := writeFileAtomic(filepath.Join(dir, metaFileName), meta); err != nil {
		return Entry{}, fmt.Errorf("writing cache metadata: %w", err)
	}

	os.Remove(filepath.Join(dir, negativeFileName))
	return entry, nil
}

// extractText produces a markdown companion for HTML pages and, when an
// extractor is wired, for PDFs.
func (c *Cache) extractText(ctx context.Context, dir, name, url string, data []byte, contentType, ext string) string {
	lowered := strings.ToLower(contentType)

	if strings.Contains(lowered, "html") || ext == ".html" {
		text := markdown.ConvertHTML(string(data))
		if text == "" {
			return ""
		}
		path := filepath.Join(dir, name+"_content.md")
		if err := writeFileAtomic(path, []byte(text)); err != nil {
			return ""
		}
		return path
	}

	isPDF := strings.Contains(lowered, "pdf") || strings.HasSuffix(strings.ToLower(url), ".pdf")
	if isPDF && c.extractor != nil {
		text, err := c.extractor.ExtractPDF(ctx, url)
		if err != nil {
			c.log.LogWarnf("pdf extraction failed for %s: %v", url, err)
			return ""
		}
		if strings.TrimSpace(text) == "" {
			return ""
		}
		path := filepath.Join(dir, name+"_content.md")
		if err := writeFileAtomic(path, []byte(text)); err != nil {
			return ""
		}
		return path
	}
	return ""
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// CacheBundle fetches every source in a bundle, returning per-section entries.
// Individual failures are logged and skipped; the bundle metadata still lists
// the URL.
func (c *Cache) CacheBundle(ctx context.Context, bundle Bundle) map[string]any {
	metadata := make(map[string]any)

	if bundle.Primary != nil && bundle.Primary.URL != "" {
		if entry, err := c.Fetch(ctx, bundle.Primary.URL, bundle.Primary.Title); err == nil {
			metadata["primary"] = entry
		} else {
			c.log.LogWarnf("failed to cache primary %s: %v", bundle.Primary.URL, err)
		}
	}

	var supporting []Entry
	for _, source := range bundle.Supporting {
		if source.URL == "" {
			continue
		}
		entry, err := c.Fetch(ctx, source.URL, source.Title)
		if err != nil {
			c.log.LogWarnf("failed to cache supporting %s: %v", source.URL, err)
			continue
		}
		supporting = append(supporting, entry)
	}
	if len(supporting) > 0 {
		metadata["supporting"] = supporting
	}
	return metadata
}
