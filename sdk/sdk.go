// Package sdk provides a Go client for the n2nmaid HTTP API.
// CLI commands and external tools use this to drive an edge
// supervised by another n2nmaid process.
package sdk

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

	"n2nmaid"
	"n2nmaid/config"
	"n2nmaid/internal/api"
)

// APIError is a failed request as reported by the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (http %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAlreadyRunning reports whether err says an edge is already running.
func IsAlreadyRunning(err error) bool { return hasCode(err, api.CodeAlreadyRunning) }

// IsInvalidConfig reports whether err says the config was rejected.
func IsInvalidConfig(err error) bool { return hasCode(err, api.CodeInvalidConfig) }

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client talks to one n2nmaid API endpoint.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for addr, either host:port or a full http URL.
func New(addr string, opts ...Option) *Client {
	if addr == "" {
		addr = api.DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	c := &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Status returns the supervisor's current status report.
func (c *Client) Status(ctx context.Context) (n2nmaid.StatusReport, error) {
	var rep n2nmaid.StatusReport
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &rep); err != nil {
		return n2nmaid.StatusReport{}, fmt.Errorf("get status: %w", err)
	}
	return rep, nil
}

// Logs drains the records consumer has not seen yet.
func (c *Client) Logs(ctx context.Context, consumer string) ([]n2nmaid.LogRecord, error) {
	var recs []n2nmaid.LogRecord
	path := "/v1/logs?consumer=" + url.QueryEscape(consumer)
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	return recs, nil
}

// Peers returns the last published peer list.
func (c *Client) Peers(ctx context.Context) ([]n2nmaid.PeerInfo, error) {
	var list []n2nmaid.PeerInfo
	if err := c.do(ctx, http.MethodGet, "/v1/peers", nil, &list); err != nil {
		return nil, fmt.Errorf("get peers: %w", err)
	}
	return list, nil
}

// Connect starts the edge with cfg, or with the server's stored config
// when cfg is nil.
func (c *Client) Connect(ctx context.Context, cfg *config.Config) (n2nmaid.StatusReport, error) {
	var body io.Reader
	if cfg != nil {
		b, err := json.Marshal(cfg)
		if err != nil {
			return n2nmaid.StatusReport{}, fmt.Errorf("encode config: %w", err)
		}
		body = bytes.NewReader(b)
	}
	var rep n2nmaid.StatusReport
	if err := c.do(ctx, http.MethodPost, "/v1/connect", body, &rep); err != nil {
		return n2nmaid.StatusReport{}, fmt.Errorf("connect: %w", err)
	}
	return rep, nil
}

// Disconnect stops the edge. force skips the graceful stop.
func (c *Client) Disconnect(ctx context.Context, force bool) (n2nmaid.StatusReport, error) {
	path := "/v1/disconnect"
	if force {
		path += "?force=true"
	}
	var rep n2nmaid.StatusReport
	if err := c.do(ctx, http.MethodPost, path, nil, &rep); err != nil {
		return n2nmaid.StatusReport{}, fmt.Errorf("disconnect: %w", err)
	}
	return rep, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			apiErr.Code, apiErr.Message = eb.Error, eb.Message
		} else {
			apiErr.Code = api.CodeInternal
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
