// Package orderstore is the HTTP client for the marketplace order backend,
// the external collaborator that owns authoritative order aggregates.
package orderstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/model"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx response from the order backend, carrying the
// server's message so rejection reasons reach the dashboard verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("order store: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("order store: unexpected status %d", e.StatusCode)
}

// HTTPStatus returns the response status code. Its presence marks the error
// as an actual reply from the backend rather than a transport failure.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client talks to the order backend. Satisfies orderview.OrderSource.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client for the backend at baseURL. token, if set, is
// sent as a bearer token on every request. A nil logger disables logging.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// GetOrder fetches one order aggregate. bypassCache defeats any HTTP or
// client-side caching, used by the dashboard's manual refresh.
func (c *Client) GetOrder(ctx context.Context, id string, bypassCache bool) (*model.OrderAggregate, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/orders/"+id, nil)
	if err != nil {
		return nil, err
	}
	if bypassCache {
		req.Header.Set("Cache-Control", "no-cache")
		q := req.URL.Query()
		q.Set("nocache", "1")
		req.URL.RawQuery = q.Encode()
	}
	return c.doOrder(req)
}

// UpdateStatus requests a status transition on the order.
func (c *Client) UpdateStatus(ctx context.Context, id, status, notes string) (*model.OrderAggregate, error) {
	body := map[string]string{"status": status}
	if notes != "" {
		body["notes"] = notes
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/orders/"+id+"/status", body)
	if err != nil {
		return nil, err
	}
	return c.doOrder(req)
}

// Cancel requests cancellation of the order with the given reason.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*model.OrderAggregate, error) {
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/orders/"+id+"/cancel", body)
	if err != nil {
		return nil, err
	}
	return c.doOrder(req)
}

// Assign assigns the order to a handler on the backend side.
func (c *Client) Assign(ctx context.Context, id, assignee, notes string) (*model.OrderAggregate, error) {
	body := map[string]string{"assignee": assignee}
	if notes != "" {
		body["notes"] = notes
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/orders/"+id+"/assign", body)
	if err != nil {
		return nil, err
	}
	return c.doOrder(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doOrder executes the request and decodes an order aggregate. A 204 or
// empty body yields (nil, nil): some mutation endpoints acknowledge without
// returning the updated aggregate.
func (c *Client) doOrder(req *http.Request) (*model.OrderAggregate, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Message = payload.Message
			if apiErr.Message == "" {
				apiErr.Message = payload.Error
			}
		}
		c.logger.Warn("order store request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode))
		return nil, apiErr
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, nil
	}

	// The backend wraps payloads either as {"data": {...}} or bare.
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	raw := json.RawMessage(buf)
	if err := json.Unmarshal(buf, &wrapped); err == nil && len(wrapped.Data) > 0 {
		raw = wrapped.Data
	}

	var order model.OrderAggregate
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &order, nil
}
