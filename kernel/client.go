package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/isdmx/kernelbox/endpoint"
)

// ReplRequest is the body of /repl.
type ReplRequest struct {
	Code    string `json:"code" form:"code"`
	Channel string `json:"channel" form:"channel"`
	CellID  string `json:"cellId" form:"cellId"`
}

// FileWrite is the body of POST /file.
type FileWrite struct {
	Content  string `json:"content"`
	FilePath string `json:"filePath" binding:"required"`
	CellID   string `json:"cellId"`
	Channel  string `json:"channel"`
}

// FileResult is the answer of GET /file.
type FileResult struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

// EndpointCreate is the body of POST /endpoints.
type EndpointCreate struct {
	Config   endpoint.Config `json:"config" binding:"required"`
	FilePath string          `json:"filePath" binding:"required"`
}

// Client talks to the execution server inside a kernel.
type Client interface {
	Repl(ctx context.Context, kernelID, language string, req ReplRequest) error
	WriteFile(ctx context.Context, kernelID string, req FileWrite) (string, error)
	RunFile(ctx context.Context, kernelID, path string) (FileResult, error)
	CreateEndpoint(ctx context.Context, kernelID string, req EndpointCreate) error
}

// HTTPClient implements Client over HTTP. Kernels are addressed by their
// container name on the shared network.
type HTTPClient struct {
	client  *http.Client
	baseURL func(kernelID string) string
}

// HTTPClientOption defines a functional option for HTTPClient
type HTTPClientOption func(*HTTPClient)

// WithBaseURL overrides how kernel ids map to base URLs
func WithBaseURL(baseURL func(kernelID string) string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the underlying http.Client
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates an HTTPClient for kernels listening on port.
func NewHTTPClient(port int, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		client: &http.Client{Timeout: 5 * time.Minute},
		baseURL: func(kernelID string) string {
			return fmt.Sprintf("http://%s:%d", kernelID, port)
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Repl posts a snippet to the kernel. Results arrive as events.
func (c *HTTPClient) Repl(ctx context.Context, kernelID, language string, req ReplRequest) error {
	_, err := c.do(ctx, http.MethodPost, kernelID, "/repl?language="+url.QueryEscape(language), req)
	return err
}

// WriteFile stores a file in the kernel and returns its path relative to the
// kernel's file root.
func (c *HTTPClient) WriteFile(ctx context.Context, kernelID string, req FileWrite) (string, error) {
	body, err := c.do(ctx, http.MethodPost, kernelID, "/file", req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// RunFile executes a stored file and returns its captured output.
func (c *HTTPClient) RunFile(ctx context.Context, kernelID, path string) (FileResult, error) {
	body, err := c.do(ctx, http.MethodGet, kernelID, "/file?path="+url.QueryEscape(path), nil)
	if err != nil {
		return FileResult{}, err
	}

	var result FileResult
	if err := json.Unmarshal(body, &result); err != nil {
		return FileResult{}, fmt.Errorf("failed to decode file result: %w", err)
	}
	return result, nil
}

// CreateEndpoint registers an endpoint configuration in the kernel.
func (c *HTTPClient) CreateEndpoint(ctx context.Context, kernelID string, req EndpointCreate) error {
	_, err := c.do(ctx, http.MethodPost, kernelID, "/endpoints", req)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, kernelID, path string, body any) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL(kernelID)+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrKernelUnreachable, kernelID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read kernel response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ResponseError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}
