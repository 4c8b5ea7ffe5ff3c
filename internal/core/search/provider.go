package search

import (
	"context"
	"net/http"
	"time"
)

// Provider executes one search query against a single backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query, language string, n int) ([]Result, error)
}

// httpDoer lets tests swap the transport for a fake.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
