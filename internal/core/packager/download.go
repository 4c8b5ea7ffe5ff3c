package packager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"queryforge/internal/utils/fsname"
)

const downloadUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/119.0 Safari/537.36"

type downloader struct {
	client *http.Client
}

func newDownloader() *downloader {
	return &downloader{client: &http.Client{Timeout: 45 * time.Second}}
}

// fetch downloads a URL into destDir, naming the file after the prefix (or
// the URL path when the prefix is empty) plus a guessed extension.
func (d *downloader) fetch(ctx context.Context, rawURL, destDir, prefix string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	name := prefix
	if name == "" {
		if parsed, err := url.Parse(rawURL); err == nil {
			name = path.Base(parsed.Path)
		}
		if name == "" || name == "/" || name == "." {
			name = "ground-truth"
		}
	}
	filename := fsname.Sanitize(name) + fsname.GuessExtension(contentType, rawURL)
	dest := filepath.Join(destDir, filename)

	file, err := os.Create(dest)
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(dest)
		return "", "", err
	}
	if err := file.Close(); err != nil {
		return "", "", err
	}
	return dest, contentType, nil
}

// fetchPrefixed numbers the downloaded file, e.g. reference-1.pdf.
func (d *downloader) fetchPrefixed(ctx context.Context, rawURL, destDir, prefix string, index int) (string, string, error) {
	return d.fetch(ctx, rawURL, destDir, fmt.Sprintf("%s-%d", prefix, index))
}
