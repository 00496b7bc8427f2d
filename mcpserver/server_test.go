package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/kernelbox/config"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/kernel"
)

// MockOrchestrator implements Orchestrator for testing
type MockOrchestrator struct {
	channel  string
	def      kernel.Definition
	cell     kernel.CellRequest
	endpoint kernel.EndpointRequest
	states   map[string]kernel.KernelState
	err      error
}

func (m *MockOrchestrator) CreateKernel(_ context.Context, channel string, def kernel.Definition) (*events.RuntimeCreated, error) {
	m.channel = channel
	m.def = def
	if m.err != nil {
		return nil, m.err
	}
	id := kernel.ContainerName(def.NotebookID, def.Name)
	return &events.RuntimeCreated{ID: id, Name: def.Name, Value: id, Image: def.Image, NotebookID: def.NotebookID}, nil
}

func (m *MockOrchestrator) RunCell(_ context.Context, channel string, req kernel.CellRequest) error { //nolint:gocritic // Mock implementation requires full parameter signature
	m.channel = channel
	m.cell = req
	return m.err
}

func (m *MockOrchestrator) CreateEndpoint(_ context.Context, req kernel.EndpointRequest) error { //nolint:gocritic // Mock implementation requires full parameter signature
	m.endpoint = req
	return m.err
}

func (m *MockOrchestrator) Kernel(id string) (kernel.KernelState, bool) {
	s, ok := m.states[id]
	return s, ok
}

var _ Orchestrator = (*kernel.Orchestrator)(nil)

func testConfig(transport string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Transport: transport, HTTPPort: 8080},
		API:     config.APIConfig{Port: 8000},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
		Sandbox: config.SandboxConfig{Backend: "docker"},
		Redis:   config.RedisConfig{Addr: "localhost:6379", PoolSize: 10, Prefix: "kernelbox"},
	}
}

func newTestServer(t *testing.T, orch *MockOrchestrator) *MCPServer {
	t.Helper()
	s, err := New(testConfig("stdio"), zaptest.NewLogger(t), orch)
	require.NoError(t, err)
	s.newChannel = func() string { return "generated" }
	return s
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig("http")
	orch := &MockOrchestrator{}

	server, err := New(cfg, logger, orch)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, orch, server.orchestrator)
	assert.NotNil(t, server.GetMCPServer())
	assert.NotNil(t, server.httpServer)
}

func TestShutdownWithoutHTTP(t *testing.T) {
	server := newTestServer(t, &MockOrchestrator{})
	assert.Nil(t, server.httpServer)
	assert.NoError(t, server.Shutdown(context.Background()))
	assert.Error(t, server.ServeHTTP())
}

func TestHandleCreateKernel(t *testing.T) {
	t.Run("GeneratedChannel", func(t *testing.T) {
		orch := &MockOrchestrator{}
		server := newTestServer(t, orch)

		result, err := server.handleCreateKernel(context.Background(), callRequest("create_kernel", map[string]any{
			"notebook_id": "nb1",
			"name":        "py",
			"image":       "python",
			"version":     "3.6",
			"languages":   []any{"python", "shell"},
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		assert.Equal(t, "generated", orch.channel)
		assert.Equal(t, kernel.Definition{
			NotebookID:         "nb1",
			Name:               "py",
			Image:              "python",
			Version:            "3.6",
			SupportedLanguages: []string{"python", "shell"},
		}, orch.def)

		var body struct {
			Channel string                `json:"channel"`
			Kernel  events.RuntimeCreated `json:"kernel"`
		}
		require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
		assert.Equal(t, "generated", body.Channel)
		assert.Equal(t, "nb1_py", body.Kernel.ID)
	})

	t.Run("ExplicitChannel", func(t *testing.T) {
		orch := &MockOrchestrator{}
		server := newTestServer(t, orch)

		_, err := server.handleCreateKernel(context.Background(), callRequest("create_kernel", map[string]any{
			"notebook_id": "nb1",
			"name":        "cache",
			"image":       "redis",
			"channel":     "room-7",
		}))
		require.NoError(t, err)
		assert.Equal(t, "room-7", orch.channel)
		assert.Equal(t, "latest", orch.def.Tag())
	})

	t.Run("MissingParameter", func(t *testing.T) {
		server := newTestServer(t, &MockOrchestrator{})

		_, err := server.handleCreateKernel(context.Background(), callRequest("create_kernel", map[string]any{
			"notebook_id": "nb1",
			"image":       "python",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name parameter is required")
	})

	t.Run("OrchestratorError", func(t *testing.T) {
		orch := &MockOrchestrator{err: kernel.ErrUnknownImage}
		server := newTestServer(t, orch)

		result, err := server.handleCreateKernel(context.Background(), callRequest("create_kernel", map[string]any{
			"notebook_id": "nb1",
			"name":        "rb",
			"image":       "ruby",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "Kernel creation failed")
	})
}

func TestHandleRunCell(t *testing.T) {
	t.Run("Interactive", func(t *testing.T) {
		orch := &MockOrchestrator{}
		server := newTestServer(t, orch)

		result, err := server.handleRunCell(context.Background(), callRequest("run_cell", map[string]any{
			"kernel_id": "nb1_py",
			"cell_id":   "c1",
			"code":      "print(1+1)",
			"language":  "python",
			"channel":   "room-1",
		}))
		require.NoError(t, err)
		assert.False(t, result.IsError)

		assert.Equal(t, "room-1", orch.channel)
		assert.Equal(t, kernel.CellRequest{
			CellID:   "c1",
			KernelID: "nb1_py",
			Code:     "print(1+1)",
			Language: "python",
			CellType: kernel.CellInteractive,
		}, orch.cell)
		assert.JSONEq(t, `{"channel":"room-1","cellId":"c1"}`, resultText(t, result))
	})

	t.Run("FileCellGetsCellID", func(t *testing.T) {
		orch := &MockOrchestrator{}
		server := newTestServer(t, orch)

		_, err := server.handleRunCell(context.Background(), callRequest("run_cell", map[string]any{
			"kernel_id": "nb1_py",
			"language":  "python",
			"cell_type": "file",
			"file_path": "main.py",
		}))
		require.NoError(t, err)
		assert.Equal(t, kernel.CellFile, orch.cell.CellType)
		assert.Equal(t, "main.py", orch.cell.FilePath)
		assert.NotEmpty(t, orch.cell.CellID)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		orch := &MockOrchestrator{err: kernel.ErrInvalidRequest}
		server := newTestServer(t, orch)

		result, err := server.handleRunCell(context.Background(), callRequest("run_cell", map[string]any{
			"kernel_id": "nb1_py",
			"language":  "python",
			"cell_type": "file",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("MissingKernel", func(t *testing.T) {
		server := newTestServer(t, &MockOrchestrator{})

		_, err := server.handleRunCell(context.Background(), callRequest("run_cell", map[string]any{
			"language": "python",
		}))
		require.Error(t, err)
	})
}

func TestHandleCreateEndpoint(t *testing.T) {
	orch := &MockOrchestrator{}
	server := newTestServer(t, orch)

	result, err := server.handleCreateEndpoint(context.Background(), callRequest("create_endpoint", map[string]any{
		"kernel_id": "nb1_py",
		"name":      "items",
		"file_path": "api/items.py",
		"signature": "get_item(id, verbose)",
		"path":      "/items/<int:id>",
		"query":     "verbose=<bool:verbose=false>",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, "nb1_py", orch.endpoint.KernelID)
	assert.Equal(t, "api/items.py", orch.endpoint.FilePath)
	assert.Equal(t, "items", orch.endpoint.Config.Name)
	assert.Equal(t, "/items/<int:id>", orch.endpoint.Config.Path)
	assert.Equal(t, "get_item(id, verbose)", orch.endpoint.Config.Signature)

	orch.err = errors.New("kernel unreachable")
	result, err = server.handleCreateEndpoint(context.Background(), callRequest("create_endpoint", map[string]any{
		"kernel_id": "nb1_py",
		"name":      "items",
		"file_path": "api/items.py",
		"signature": "get_item(id)",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Endpoint creation failed")
}

func TestHandleKernelStatus(t *testing.T) {
	orch := &MockOrchestrator{
		states: map[string]kernel.KernelState{
			"nb1_py": {ID: "nb1_py", Image: "python", Status: kernel.StatusReady},
		},
	}
	server := newTestServer(t, orch)

	result, err := server.handleKernelStatus(context.Background(), callRequest("kernel_status", map[string]any{
		"kernel_id": "nb1_py",
	}))
	require.NoError(t, err)

	var state kernel.KernelState
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &state))
	assert.Equal(t, kernel.StatusReady, state.Status)

	result, err = server.handleKernelStatus(context.Background(), callRequest("kernel_status", map[string]any{
		"kernel_id": "nb2_py",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "Cannot find kernel nb2_py", resultText(t, result))
}
