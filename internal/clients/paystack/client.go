// Package paystack provides a client for the Paystack transaction API
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
)

const (
	DefaultBaseURL   = "https://api.paystack.co"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements the PaystackClient interface
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Paystack client
func NewClient(secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a Paystack API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Paystack API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// envelope is Paystack's standard response wrapper. Status false means the
// call failed regardless of HTTP status.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs a rate-limited request and unwraps the response envelope.
func (c *Client) do(ctx context.Context, method, path string, payload, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("Paystack API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Endpoint:   path,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = string(respBody)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Endpoint:   path,
		}
	}

	if result != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// Initialize creates a transaction and returns the hosted checkout target.
func (c *Client) Initialize(ctx context.Context, req *models.PaystackInitRequest) (*models.PaystackInitData, error) {
	var data models.PaystackInitData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Verify re-reads a transaction's authoritative state by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error) {
	var raw struct {
		ID              int64  `json:"id"`
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		Amount          int64  `json:"amount"`
		Fees            int64  `json:"fees"`
		Currency        string `json:"currency"`
		Channel         string `json:"channel"`
		GatewayResponse string `json:"gateway_response"`
		PaidAt          string `json:"paid_at"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &raw); err != nil {
		return nil, err
	}

	txn := &models.PaystackTransaction{
		ID:              raw.ID,
		Status:          raw.Status,
		Reference:       raw.Reference,
		Amount:          raw.Amount,
		Fees:            raw.Fees,
		Currency:        raw.Currency,
		Channel:         raw.Channel,
		GatewayResponse: raw.GatewayResponse,
	}
	if raw.PaidAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.PaidAt); err == nil {
			txn.PaidAt = &ts
		}
	}
	return txn, nil
}
