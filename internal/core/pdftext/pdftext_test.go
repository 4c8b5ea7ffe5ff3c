package pdftext

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDFURL(t *testing.T) {
	assert.True(t, IsPDFURL("https://x.com/report.PDF"))
	assert.True(t, IsPDFURL("https://arxiv.org/pdf/1234.5678"))
	assert.False(t, IsPDFURL("https://x.com/page.html"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "s", "http://host")
	require.Error(t, err)
	_, err = NewClient("k", "", "http://host")
	require.Error(t, err)
	_, err = NewClient("k", "s", "")
	require.Error(t, err)
}

func TestExtractPDF(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pdf", body["method"])

		json.NewEncoder(w).Encode(map[string]any{
			"content": "Body of the document.",
			"title":   "Liquidity Standard",
			"source":  "cache",
		})
	}))
	defer server.Close()

	client, err := NewClient("key", "secret", server.URL)
	require.NoError(t, err)
	client.now = func() time.Time { return fixed }

	content, err := client.ExtractPDF(context.Background(), "https://x.com/doc.pdf")
	require.NoError(t, err)
	assert.Contains(t, content, "# Liquidity Standard")
	assert.Contains(t, content, "Body of the document.")

	assert.Equal(t, "key", gotHeaders.Get("X-API-KEY"))
	assert.Equal(t, "1700000000", gotHeaders.Get("X-TIMESTAMP"))
	sum := sha256.Sum256([]byte("key" + "1700000000" + "secret"))
	assert.Equal(t, hex.EncodeToString(sum[:]), gotHeaders.Get("X-SIGNATURE"))
}

func TestExtractPDFTitleAlreadyPresent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": "# Liquidity Standard\nBody.",
			"title":   "Liquidity Standard",
		})
	}))
	defer server.Close()

	client, err := NewClient("k", "s", server.URL)
	require.NoError(t, err)

	content, err := client.ExtractPDF(context.Background(), "https://x.com/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "# Liquidity Standard\nBody.", content)
}

func TestExtractPDFErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "unsupported document"})
	}))
	defer server.Close()

	client, err := NewClient("k", "s", server.URL)
	require.NoError(t, err)

	_, err = client.ExtractPDF(context.Background(), "https://x.com/doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported document")
}

func TestExtractPDFEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": "   "})
	}))
	defer server.Close()

	client, err := NewClient("k", "s", server.URL)
	require.NoError(t, err)

	_, err = client.ExtractPDF(context.Background(), "https://x.com/doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty content")
}
