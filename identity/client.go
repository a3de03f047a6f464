// Package identity resolves gamer addresses to the principal that owns them.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 200 * time.Millisecond
)

// ErrUnknownAddress is returned when the service knows no principal for an address.
var ErrUnknownAddress = errors.New("address has no principal")

// Client resolves identities through a remote JSON-RPC 2.0 service exposing
// get_principal.
type Client struct {
	endpoint   string
	token      string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	requestID  atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithMaxRetries sets how often transport failures are retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryDelay sets the pause between retries.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.client = client }
}

// NewClient creates a resolver for endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("identity rpc error %d: %s", e.Code, e.Message)
}

// Resolve returns the principal that owns address.
func (c *Client) Resolve(ctx context.Context, address string) (string, error) {
	var result struct {
		Principal string `json:"principal"`
	}
	params := map[string]string{"address": address}
	if err := c.call(ctx, "get_principal", params, &result); err != nil {
		return "", err
	}
	if result.Principal == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	return result.Principal, nil
}

// call performs a JSON-RPC call, retrying transport failures only.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger().WithFields(log.Fields{
				"method":  method,
				"attempt": attempt,
			}).WithError(lastErr).Warn("identity call failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if rpcResp.Error != nil {
			return rpcResp.Error
		}
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
		return nil
	}
	logger().WithField("method", method).WithError(lastErr).Error("identity service unreachable")
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func logger() *log.Entry {
	return log.WithField("component", "identity")
}
