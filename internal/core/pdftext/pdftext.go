// Package pdftext extracts markdown text from PDF evidence through a
// url2md extraction service.
package pdftext

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"queryforge/internal/fault"
	"queryforge/internal/logger"
)

// Client calls the extraction endpoint. Requests are signed with
// sha256(apiKey + timestamp + secret).
type Client struct {
	apiKey   string
	secret   string
	endpoint string
	http     *http.Client
	log      *logger.Logger

	now func() time.Time
}

// NewClient validates the credentials and prepares the url2md client.
// Extraction can take minutes on large documents, hence the long timeout.
func NewClient(apiKey, secret, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("pdf extraction api key is not set")
	}
	if secret == "" {
		return nil, fmt.Errorf("pdf extraction api secret is not set")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("pdf extraction endpoint is not set")
	}
	return &Client{
		apiKey:   apiKey,
		secret:   secret,
		endpoint: strings.TrimRight(baseURL, "/") + "/url2md",
		http:     &http.Client{Timeout: 20 * time.Minute},
		log:      logger.New("PDFText"),
		now:      time.Now,
	}, nil
}

func (c *Client) signature(timestamp string) string {
	sum := sha256.Sum256([]byte(c.apiKey + timestamp + c.secret))
	return hex.EncodeToString(sum[:])
}

// IsPDFURL guesses whether a URL points at a PDF.
func IsPDFURL(url string) bool {
	lowered := strings.ToLower(url)
	return strings.HasSuffix(lowered, ".pdf") || strings.Contains(lowered, "/pdf")
}

type extractResponse struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	Source  string `json:"source"`
	Error   string `json:"error"`
}

// ExtractPDF fetches the document through the extraction service and returns
// markdown. The service title is prepended as a heading when the body does
// not already carry it.
func (c *Client) ExtractPDF(ctx context.Context, url string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"url":        url,
		"method":     "pdf",
		"with_cache": true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-SIGNATURE", c.signature(timestamp))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fault.Transient(fmt.Errorf("pdf extraction request for %s: %w", url, err))
	}
	defer resp.Body.Close()

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("invalid response from pdf extraction service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := parsed.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		err := fmt.Errorf("pdf extraction failed for %s: %s", url, msg)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", fault.Transient(err)
		}
		return "", err
	}

	content := strings.TrimSpace(parsed.Content)
	if content == "" {
		return "", fmt.Errorf("pdf extraction returned empty content for %s", url)
	}

	title := strings.TrimSpace(parsed.Title)
	if title != "" && !strings.Contains(strings.ToLower(content), strings.ToLower(title)) {
		content = "# " + title + "\n\n" + content
	}
	c.log.LogInfof("extracted %d chars from %s via %s", len(content), url, parsed.Source)
	return content, nil
}
