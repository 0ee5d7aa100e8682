package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"
)

// Photo is one stock-photo search hit
type Photo struct {
	ID           int               `json:"id"`
	URL          string            `json:"url"`
	Photographer string            `json:"photographer"`
	Src          map[string]string `json:"src"`
}

type photoSearchResponse struct {
	TotalResults int     `json:"total_results"`
	Photos       []Photo `json:"photos"`
}

// PhotoClient searches and downloads background photos from the Pexels API
type PhotoClient struct {
	http    *resty.Client
	apiKey  string
	size    string
	limiter *rate.Limiter
}

// PhotoClientOptions configures the photo API client
type PhotoClientOptions struct {
	BaseURL string
	APIKey  string
	Size    string
	PerHour int
	Timeout time.Duration
}

// NewPhotoClient creates a client honouring the API's hourly request quota
func NewPhotoClient(opts PhotoClientOptions) (*PhotoClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("photo API key required: use --pexels-key flag or PEXELS_API_KEY environment variable")
	}

	size := opts.Size
	if size == "" {
		size = "original"
	}

	limit := rate.Inf
	burst := 1
	if opts.PerHour > 0 {
		limit = rate.Limit(float64(opts.PerHour) / time.Hour.Seconds())
		burst = opts.PerHour
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/"))
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &PhotoClient{
		http:    client,
		apiKey:  opts.APIKey,
		size:    size,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Search returns the best match for query
func (c *PhotoClient) Search(ctx context.Context, query string) (*Photo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationFailure(&MissingFieldsError{Fields: []string{"image_prompt"}})
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for photo API quota: %w", err)
	}

	var result photoSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.apiKey).
		SetQueryParams(map[string]string{
			"query":    query,
			"per_page": "1",
		}).
		ForceContentType("application/json").
		SetResult(&result).
		Get("/v1/search")
	if err != nil {
		return nil, fmt.Errorf("searching photos for %q: %w", query, err)
	}
	debugLog("photo search %q: status=%d results=%d", query, resp.StatusCode(), result.TotalResults)

	if resp.IsError() {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), URL: resp.Request.URL}
	}
	if len(result.Photos) == 0 {
		return nil, fmt.Errorf("no photos found for %q", query)
	}

	return &result.Photos[0], nil
}

// Download fetches the configured size of photo and decodes it
func (c *PhotoClient) Download(ctx context.Context, photo *Photo) (image.Image, error) {
	imageURL, ok := photo.Src[c.size]
	if !ok || imageURL == "" {
		available := make([]string, 0, len(photo.Src))
		for size := range photo.Src {
			available = append(available, size)
		}
		sort.Strings(available)
		return nil, fmt.Errorf("requested size %q not available, choose from: %s", c.size, strings.Join(available, ", "))
	}

	log.Printf("  → Downloading image: %s", imageURL)
	resp, err := c.http.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", imageURL, err)
	}
	if resp.IsError() {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), URL: imageURL}
	}

	img, format, err := image.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("decoding image from %s: %w", imageURL, err)
	}
	debugLog("decoded %s image %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	return img, nil
}
