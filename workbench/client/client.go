// Package client talks to the chunking service over HTTP.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chunker/types"

	"github.com/go-resty/resty/v2"
)

const (
	processPath = "/api/v1/process/"
	streamPath  = "/api/v1/process/stream"
	chunkPath   = "/api/v1/process/chunk"
	uploadPath  = "/api/v1/process/upload_file"
	configPath  = "/api/v1/config"
	healthPath  = "/check/healthy"
)

// APIError is the error body returned by the service. Validation failures
// fill Status and Errors, everything else Code and Message.
type APIError struct {
	Code    int               `json:"code,omitempty"`
	Message string            `json:"error,omitempty"`
	Status  int               `json:"status,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("validation failed (status %d): %v", e.Status, e.Errors)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

type Client struct {
	http   *resty.Client
	stream *resty.Client
	logger *slog.Logger
}

// New returns a client for baseURL. timeout bounds plain requests; streams
// are bounded only by their context.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		stream: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache"),
		logger: logger,
	}
}

// Process runs a batch submission.
func (c *Client) Process(ctx context.Context, req types.ProcessRequest) (types.ProcessResponse, error) {
	var out types.ProcessResponse
	err := c.do(ctx, http.MethodPost, processPath, req, &out)
	return out, err
}

// Enrich sends one chunk for clean or summarize and returns the full record.
func (c *Client) Enrich(ctx context.Context, chunk types.Chunk, action types.EnrichAction) (types.Chunk, error) {
	var out types.Chunk
	err := c.do(ctx, http.MethodPost, chunkPath, types.ChunkActionRequest{Chunk: chunk, Action: action}, &out)
	return out, err
}

// ExtractFile uploads a file and returns its extracted text.
func (c *Client) ExtractFile(ctx context.Context, name string, r io.Reader) (string, error) {
	var out types.FileContent
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", name, r).
		SetResult(&out).
		SetError(&APIError{}).
		Post(uploadPath)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := checkResponse(resp); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *Client) Config(ctx context.Context) (types.LLMConfig, error) {
	var out types.LLMConfig
	err := c.do(ctx, http.MethodGet, configPath, nil, &out)
	return out, err
}

func (c *Client) UpdateConfig(ctx context.Context, params types.ConfigParams) (types.LLMConfig, error) {
	var out types.LLMConfig
	err := c.do(ctx, http.MethodPost, configPath, params, &out)
	return out, err
}

func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, healthPath, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	c.logger.Debug("request completed", "method", method, "path", path, "status", resp.StatusCode(), "took", resp.Time())
	return nil
}

func checkResponse(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	if apiErr, ok := resp.Error().(*APIError); ok && apiErr != nil && (apiErr.Message != "" || len(apiErr.Errors) > 0) {
		if apiErr.Code == 0 && apiErr.Status == 0 {
			apiErr.Code = resp.StatusCode()
		}
		return apiErr
	}
	return &APIError{Code: resp.StatusCode(), Message: resp.String()}
}
