package kernelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/isdmx/kernelbox/endpoint"
)

// ParsePath is the orchestrator route resolving endpoint arguments.
const ParsePath = "/api/v1/cells/internal-endpoints/parse"

// ParseRequest is the body sent to the parse API.
type ParseRequest struct {
	Config     endpoint.Config `json:"config" binding:"required"`
	RequestURI string          `json:"requestUri" binding:"required"`
}

// Arguments resolves endpoint arguments for a live request.
type Arguments interface {
	Parse(ctx context.Context, cfg endpoint.Config, requestURI string) (map[string]any, map[string]any, error)
}

// ParseClient calls the orchestrator's parse API.
type ParseClient struct {
	serverURI string
	client    *http.Client
}

// NewParseClient creates a ParseClient for the orchestrator at serverURI.
func NewParseClient(serverURI string, client *http.Client) *ParseClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ParseClient{serverURI: strings.TrimSuffix(serverURI, "/"), client: client}
}

// Parse returns the path and query arguments of requestURI. Numbers keep
// their literal form as json.Number. A non-200 answer is a *ParseError.
func (p *ParseClient) Parse(ctx context.Context, cfg endpoint.Config, requestURI string) (map[string]any, map[string]any, error) {
	body, err := json.Marshal(ParseRequest{Config: cfg, RequestURI: requestURI})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURI+ParsePath, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call parse API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read parse response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var args struct {
			Path  map[string]any `json:"path"`
			Query map[string]any `json:"query"`
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, nil, fmt.Errorf("failed to decode parse response: %w", err)
		}
		return args.Path, args.Query, nil
	case http.StatusBadRequest:
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Message == "" {
			msg.Message = string(raw)
		}
		return nil, nil, &ParseError{Status: resp.StatusCode, Message: msg.Message}
	default:
		return nil, nil, &ParseError{Status: resp.StatusCode, Message: strings.ReplaceAll(string(raw), "\r\n", "")}
	}
}
