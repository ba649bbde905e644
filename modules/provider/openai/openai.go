// Package openai implements provider.Caller against the OpenAI chat
// completions API and any compatible backend selected via base_url.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/loopgate/loopgate/internal/provider"
)

// Client is an OpenAI-compatible model caller.
type Client struct {
	config Config
	client *http.Client
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: cfg,
		// Response-header timeout instead of a global client timeout:
		// per-request context handles cancellation of slow bodies.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}, nil
}

// Complete implements provider.Caller.
func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	oaiReq := buildRequest(c.config.Model, req)

	resp, err := c.doRequest(ctx, oaiReq)
	if err != nil {
		return provider.Response{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.Response{}, handleErrorResponse(resp)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return provider.Response{}, fmt.Errorf("decode response: %w", err)
	}

	return parseResponse(oaiResp), nil
}

// ModelName implements provider.Caller.
func (c *Client) ModelName() string {
	return c.config.Model
}

// HealthCheck probes the /models endpoint to check backend availability.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := c.config.BaseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}

	return nil
}

// Compile-time interface assertion.
var _ provider.Caller = (*Client)(nil)
