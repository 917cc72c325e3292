// Package client is a thin HTTP client for the stackd daemon API. The CLI
// uses it when a daemon is already running; it is also usable standalone.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client communicates with a running stackd daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new stackd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks whether a daemon answers on the configured base URL.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Start starts one service by name.
func (c *Client) Start(ctx context.Context, name string) error {
	return c.post(ctx, "/start?name="+url.QueryEscape(name))
}

// Stop stops one service by name.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.post(ctx, "/stop?name="+url.QueryEscape(name))
}

// Restart restarts one service by name.
func (c *Client) Restart(ctx context.Context, name string) error {
	return c.post(ctx, "/restart?name="+url.QueryEscape(name))
}

// StartAll starts every managed service in declaration order.
func (c *Client) StartAll(ctx context.Context) error {
	return c.post(ctx, "/start-all")
}

// StopAll stops every managed service and sweeps strays.
func (c *Client) StopAll(ctx context.Context) error {
	return c.post(ctx, "/stop-all")
}

// RestartAll restarts the whole stack.
func (c *Client) RestartAll(ctx context.Context) error {
	return c.post(ctx, "/restart-all")
}

// Status fetches the status of one service.
func (c *Client) Status(ctx context.Context, name string) (ServiceStatus, error) {
	var st ServiceStatus
	err := c.getJSON(ctx, "/status?name="+url.QueryEscape(name), &st)
	return st, err
}

// StatusAll fetches the status of every managed service.
func (c *Client) StatusAll(ctx context.Context) ([]ServiceStatus, error) {
	var sts []ServiceStatus
	err := c.getJSON(ctx, "/status", &sts)
	return sts, err
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("request failed", "path", path, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.handleErrorResponse(resp)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", er.Error)
}
