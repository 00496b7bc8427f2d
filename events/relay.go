package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RelayPath is the orchestrator endpoint that turns cell output into code_result events.
const RelayPath = "/api/v1/cells/"

// ErrNotRelayable is returned by RelaySink for events other than code_result.
var ErrNotRelayable = errors.New("event cannot be relayed")

// CellOutput is the body accepted by the relay endpoint.
type CellOutput struct {
	CellID     string   `json:"cellId" binding:"required"`
	Lines      []string `json:"lines"`
	StreamType string   `json:"streamType"`
	Channel    string   `json:"channel" binding:"required"`
}

// RelaySink publishes code_result events by posting them to the orchestrator.
type RelaySink struct {
	serverURI string
	client    *http.Client
}

// NewRelaySink creates a RelaySink posting to serverURI.
func NewRelaySink(serverURI string, client *http.Client) *RelaySink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RelaySink{serverURI: strings.TrimSuffix(serverURI, "/"), client: client}
}

// Publish posts the stdout and stderr parts of a code_result separately.
func (s *RelaySink) Publish(ctx context.Context, event Event) error {
	result, ok := event.Data.(CodeResult)
	if event.Name != CodeResultEvent || !ok {
		return fmt.Errorf("%w: %s", ErrNotRelayable, event.Name)
	}

	output := OutputText(result.Output)
	if output != "" || result.Error == "" {
		if err := s.post(ctx, CellOutput{CellID: result.ID, Lines: []string{output}, StreamType: "stdout", Channel: event.Room}); err != nil {
			return err
		}
	}
	if result.Error != "" {
		return s.post(ctx, CellOutput{CellID: result.ID, Lines: []string{result.Error}, StreamType: "stderr", Channel: event.Room})
	}
	return nil
}

func (s *RelaySink) post(ctx context.Context, body CellOutput) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode cell output: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURI+RelayPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to relay cell output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("failed to relay cell output: status %d", resp.StatusCode)
	}
	return nil
}

// OutputText renders a code_result output for text transports.
func OutputText(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "\n")
	default:
		return fmt.Sprint(v)
	}
}
