// Package admin talks to the administration service that owns request records.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrAdminUnavailable matches every failed request creation.
	ErrAdminUnavailable = errors.New("administration service unavailable")

	// ErrReconciliationWrite matches every failed request update.
	ErrReconciliationWrite = errors.New("request record update failed")

	// ErrEmptyHistory is returned for patches that append no history entry.
	ErrEmptyHistory = errors.New("patch carries no history entry")
)

// StatusError is a non-2xx answer from the administration service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("administration service responded %s", e.Status)
	}
	return fmt.Sprintf("administration service responded %s: %s", e.Status, e.Body)
}

// Reconciler creates and updates request records.
type Reconciler interface {
	CreateRequest(ctx context.Context, phone string, body json.RawMessage) (string, error)
	UpdateRequest(ctx context.Context, requestID string, patch *RequestPatch) error
}

// Client is the HTTP client of the administration service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracker    *StageTracker
	now        func() time.Time
	logger     zerolog.Logger
}

// NewClient creates a Client. A nil tracker disables stage ordering checks.
func NewClient(baseURL string, httpClient *http.Client, tracker *StageTracker, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tracker:    tracker,
		now:        time.Now,
		logger:     logger,
	}
}

type createRequestBody struct {
	Phone string          `json:"phone"`
	Body  json.RawMessage `json:"body"`
}

type createRequestResponse struct {
	Success bool `json:"success"`
	Data    struct {
		RequestID string `json:"requestId"`
	} `json:"data"`
	Error string `json:"error"`
}

// CreateRequest registers an inbound webhook and returns the new request id.
func (c *Client) CreateRequest(ctx context.Context, phone string, body json.RawMessage) (string, error) {
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	payload, err := json.Marshal(createRequestBody{Phone: phone, Body: body})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrAdminUnavailable, err)
	}

	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/requests", payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdminUnavailable, err)
	}

	var out createRequestResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrAdminUnavailable, err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "success=false"
		}
		return "", fmt.Errorf("%w: %s", ErrAdminUnavailable, msg)
	}
	if out.Data.RequestID == "" {
		return "", fmt.Errorf("%w: response carries no requestId", ErrAdminUnavailable)
	}

	return out.Data.RequestID, nil
}

// UpdateRequest sends patch as a partial update of the request record.
// The patch carries only the history entries to append and is stamped with updatedAt.
// When the record already moved past the patch stage, status is left out.
func (c *Client) UpdateRequest(ctx context.Context, requestID string, patch *RequestPatch) error {
	if requestID == "" {
		return fmt.Errorf("%w: empty request id", ErrReconciliationWrite)
	}
	if patch == nil || len(patch.History) == 0 {
		return fmt.Errorf("%w: %w", ErrReconciliationWrite, ErrEmptyHistory)
	}

	out := *patch
	if c.tracker != nil && c.tracker.Behind(requestID, out.stage) && out.Status != "" {
		c.logger.Warn().
			Str("request_id", requestID).
			Str("status", out.Status).
			Msg("request already advanced past this stage, status not sent")
		out.Status = ""
	}

	out.UpdatedAt = c.now().UTC()

	payload, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("%w: marshal patch: %v", ErrReconciliationWrite, err)
	}

	endpoint := c.baseURL + "/api/requests?id=" + url.QueryEscape(requestID)
	if _, err := c.do(ctx, http.MethodPatch, endpoint, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrReconciliationWrite, err)
	}

	if c.tracker != nil {
		c.tracker.Record(requestID, out.stage)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
