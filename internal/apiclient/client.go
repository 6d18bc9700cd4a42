// Package apiclient is the JSON-over-HTTP transport shared by the client-side
// identity and relation adapters.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/staybook/hotel-server-go/internal/config"
	apperrors "github.com/staybook/hotel-server-go/internal/errors"
	"github.com/staybook/hotel-server-go/internal/httputil"
)

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New returns a client for baseURL. Each Do call is bounded by timeout; streams
// opened with OpenStream are bounded only by their context.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout is the bound applied to each Do call.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do sends a JSON request and decodes a JSON response into out. Transport
// failures and timeouts surface as BACKEND_UNAVAILABLE; error responses keep the
// server's code and message.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Dur("elapsed", elapsed).Msg("api request failed")
		return apperrors.BackendUnavailable(err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.BackendUnavailable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// OpenStream issues a GET expecting a text/event-stream response. The caller
// owns the returned body.
func (c *Client) OpenStream(ctx context.Context, path, token string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.BackendUnavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return apperrors.BackendUnavailable(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	appErr := apperrors.New(body.Code, body.Error)
	if body.Details != nil {
		appErr = appErr.WithDetails(body.Details)
	}
	return appErr
}
