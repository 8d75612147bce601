// Package client talks to a running lmgate gateway and history API over
// HTTP. It backs the user-facing CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/papercomputeco/lmgate/api"
	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/storage"
)

// Client wraps the gateway and history API endpoints.
type Client struct {
	gatewayURL string
	apiURL     string
	httpClient *http.Client
}

// New creates a Client. Either URL may be empty when the caller only uses
// the other service.
func New(gatewayURL, apiURL string) *Client {
	return &Client{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		apiURL:     strings.TrimRight(apiURL, "/"),
		// No overall timeout: generations stream for as long as the model runs.
		httpClient: &http.Client{},
	}
}

// ServiceError is returned for any non-200 answer.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Stream runs a streaming generation and copies fragments to w as they
// arrive. It returns the number of bytes written.
func (c *Client) Stream(ctx context.Context, req gateway.GenerationRequest, w io.Writer) (int64, error) {
	streaming := true
	req.Stream = &streaming

	resp, err := c.do(ctx, http.MethodPost, c.gatewayURL+"/api/generate", req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("reading generation stream: %w", err)
	}
	return n, nil
}

// Generate runs a buffered generation and returns the full response.
func (c *Client) Generate(ctx context.Context, req gateway.GenerationRequest) (string, error) {
	streaming := false
	req.Stream = &streaming

	var out gateway.GenerationResponse
	if err := c.doJSON(ctx, http.MethodPost, c.gatewayURL+"/api/generate", req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// ListModels returns the upstream model entries.
func (c *Client) ListModels(ctx context.Context) ([]json.RawMessage, error) {
	var out gateway.ModelsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.gatewayURL+"/api/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// PullModel asks the gateway to download a model and waits for it.
func (c *Client) PullModel(ctx context.Context, name string) (string, error) {
	var out gateway.MessageResponse
	err := c.doJSON(ctx, http.MethodPost, c.gatewayURL+"/api/models/download",
		gateway.DownloadRequest{LLMName: name}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// Health probes the gateway. A 503 answer is decoded, not returned as an
// error.
func (c *Client) Health(ctx context.Context) (*gateway.HealthResponse, error) {
	resp, err := c.send(ctx, http.MethodGet, c.gatewayURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, readError(resp)
	}

	var out gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &out, nil
}

// Ping checks that the history API is up.
func (c *Client) Ping(ctx context.Context) error {
	var out string
	return c.doJSON(ctx, http.MethodGet, c.apiURL+"/ping", nil, &out)
}

// ListGenerations returns up to limit recorded generations, newest first.
func (c *Client) ListGenerations(ctx context.Context, limit int) ([]*storage.Record, error) {
	u := c.apiURL + "/v1/generations"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var out api.GenerationsResponse
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out.Generations, nil
}

// GetGeneration returns one recorded generation.
func (c *Client) GetGeneration(ctx context.Context, id string) (*storage.Record, error) {
	var out storage.Record
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/v1/generations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do sends the request and turns any non-200 answer into a *ServiceError.
func (c *Client) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	resp, err := c.send(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var errResp gateway.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return &ServiceError{Code: resp.StatusCode, Message: errResp.Error}
	}
	return &ServiceError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
