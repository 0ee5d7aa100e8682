package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
)

const maxPageSize = 5 * 1024 * 1024

// PageFetcher downloads journal and article pages
type PageFetcher struct {
	client    *http.Client
	userAgent string
}

// FetcherOptions configures the HTTP client used for scraping
type FetcherOptions struct {
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
}

// NewPageFetcher creates a fetcher with its own HTTP client
func NewPageFetcher(opts FetcherOptions) *PageFetcher {
	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.CloudflareBypass {
		transport = cloudflarebp.AddCloudFlareByPass(transport)
	}

	return &PageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent: opts.UserAgent,
	}
}

// Fetch returns the body of url. Non-200 responses are returned as *HTTPError.
func (f *PageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	debugLog("fetch %s: status=%d", url, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}

	return body, nil
}
