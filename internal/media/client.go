// Package media downloads receipt images from the messaging platform media store.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrUpstreamUnavailable matches every download that the media store refused.
var ErrUpstreamUnavailable = errors.New("media store unavailable")

// DownloadError carries the media store response that caused a failed download.
type DownloadError struct {
	StatusCode int
	Status     string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("media store responded %s", e.Status)
}

// Is lets callers match any DownloadError with ErrUpstreamUnavailable.
func (e *DownloadError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Downloader fetches raw image bytes for an opaque media reference.
type Downloader interface {
	Download(ctx context.Context, imageRef string) ([]byte, error)
}

// Client is the HTTP media store client. Each call is a fresh remote fetch.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a media store client. baseURL is the tenant root,
// e.g. https://live-mt-server.wati.io/123456.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// Download fetches the media referenced by imageRef.
func (c *Client) Download(ctx context.Context, imageRef string) ([]byte, error) {
	if strings.TrimSpace(imageRef) == "" {
		return nil, fmt.Errorf("Download: empty image reference")
	}

	endpoint := c.baseURL + "/api/v1/getMedia?fileName=" + url.QueryEscape(imageRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("Download: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Download: %w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Download %q: %w", imageRef, &DownloadError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		})
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Download: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("Download %q: empty body", imageRef)
	}

	return data, nil
}

var _ Downloader = (*Client)(nil)
