// Package gateway looks up payments at the payment gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/receipt-validator/internal/domain"
)

// DefaultBaseURL is the MercadoPago v1 API.
const DefaultBaseURL = "https://api.mercadopago.com/v1"

// searchTimeLayout is the millisecond UTC form the search endpoint expects.
const searchTimeLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrNotFound is returned when no payment matches the requested id.
	ErrNotFound = errors.New("payment not found")

	// ErrUnknownChannel is returned for channels other than mercadopago and coelsa.
	ErrUnknownChannel = errors.New("unknown payment channel")
)

// LookupError is a non-2xx answer from the gateway.
type LookupError struct {
	StatusCode int
	Status     string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to validate payment: %s", e.Status)
}

// Client is the HTTP client of the payment gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a gateway client authorized with a bearer token.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// GetPayment fetches one payment by its gateway id.
func (c *Client) GetPayment(ctx context.Context, id string) (*domain.GatewayPayment, error) {
	body, err := c.get(ctx, c.baseURL+"/payments/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return decodePayment(body)
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// SearchPayments lists payments created between begin and end.
func (c *Client) SearchPayments(ctx context.Context, begin, end time.Time) ([]*domain.GatewayPayment, error) {
	q := url.Values{}
	q.Set("range", "date_created")
	q.Set("begin_date", begin.UTC().Format(searchTimeLayout))
	q.Set("end_date", end.UTC().Format(searchTimeLayout))

	body, err := c.get(ctx, c.baseURL+"/payments/search?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	payments := make([]*domain.GatewayPayment, 0, len(resp.Results))
	for i, raw := range resp.Results {
		p, err := decodePayment(raw)
		if err != nil {
			return nil, fmt.Errorf("search result %d: %w", i, err)
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &LookupError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	return body, nil
}

func decodePayment(raw []byte) (*domain.GatewayPayment, error) {
	var p domain.GatewayPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	p.Raw = append(json.RawMessage(nil), raw...)
	return &p, nil
}
