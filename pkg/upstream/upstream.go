// Package upstream implements a typed HTTP client for the language-model
// server the gateway forwards to (Ollama API dialect).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/lmgate/pkg/stream"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultConnectTimeout bounds a single connection attempt.
	DefaultConnectTimeout = 60 * time.Second

	// MaxErrorBody caps how much of a non-200 body lands in a StatusError.
	MaxErrorBody = 64 << 10
)

// Config holds configuration for the upstream client.
type Config struct {
	// BaseURL is the upstream API URL (e.g., "http://localhost:11434").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// ConnectTimeout bounds the dial of each new upstream connection.
	// It is the only timeout applied: generation streams may run for as long
	// as the model keeps producing output.
	ConnectTimeout time.Duration
}

// Client wraps the upstream HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new upstream client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: connectTimeout,
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// No overall timeout: streaming responses can be long.
			Transport: transport,
		},
	}
}

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is returned when the upstream answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// GenerateRequest maps to POST /api/generate.
type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options map[string]any `json:"options,omitempty"`
}

// Generate opens a generation request against the upstream and returns the
// open response body once the upstream has accepted it. The caller owns the
// body and must close it on every path.
//
// A non-200 answer is drained and returned as a *StatusError before any body
// bytes are handed out.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, header http.Header) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/generate", bytes.NewReader(body), header)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// ListModels returns the entries of GET /api/tags verbatim.
func (c *Client) ListModels(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	if tags.Models == nil {
		tags.Models = []json.RawMessage{}
	}
	return tags.Models, nil
}

// PullStatus is one progress record from POST /api/pull.
type PullStatus struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// pullRequest maps to POST /api/pull.
type pullRequest struct {
	Name string `json:"name"`
}

// PullStream asks the upstream to download a model and yields its progress
// records as they arrive. An error record from the upstream ends the
// sequence with a non-nil error.
func (c *Client) PullStream(ctx context.Context, name string) iter.Seq2[PullStatus, error] {
	return func(yield func(PullStatus, error) bool) {
		body, err := json.Marshal(pullRequest{Name: name})
		if err != nil {
			yield(PullStatus{}, fmt.Errorf("marshaling request: %w", err))
			return
		}

		resp, err := c.do(ctx, http.MethodPost, "/api/pull", bytes.NewReader(body), nil)
		if err != nil {
			yield(PullStatus{}, err)
			return
		}
		defer resp.Body.Close()

		for line, err := range lines(resp.Body) {
			if err != nil {
				yield(PullStatus{}, err)
				return
			}

			var status PullStatus
			if err := json.Unmarshal(line, &status); err != nil {
				continue
			}
			if status.Error != "" {
				yield(status, fmt.Errorf("pulling %s: %s", name, status.Error))
				return
			}
			if !yield(status, nil) {
				return
			}
		}
	}
}

// Pull downloads a model and waits for the upstream to finish.
func (c *Client) Pull(ctx context.Context, name string) error {
	for _, err := range c.PullStream(ctx, name) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Version fetches the upstream server version (also serves as a health check).
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/version", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("decoding version: %w", err)
	}
	return v.Version, nil
}

// do sends a request and returns the response when the upstream answered
// 200. Any other status is converted to a *StatusError and the body closed.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, v := range header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	return resp, nil
}

// lines yields the newline-delimited records of body.
func lines(body io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		splitter := stream.NewSplitter(stream.DelimiterNewline)
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			for _, line := range splitter.Feed(buf[:n]) {
				if !yield(line, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				if tail, ok := splitter.Flush(); ok {
					yield(tail, nil)
				}
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("reading upstream body: %w", err))
				return
			}
		}
	}
}
