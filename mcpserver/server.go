package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/config"
	"github.com/isdmx/kernelbox/endpoint"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/kernel"
)

// Orchestrator is the part of kernel.Orchestrator the tools drive.
type Orchestrator interface {
	CreateKernel(ctx context.Context, channel string, def kernel.Definition) (*events.RuntimeCreated, error)
	RunCell(ctx context.Context, channel string, req kernel.CellRequest) error
	CreateEndpoint(ctx context.Context, req kernel.EndpointRequest) error
	Kernel(id string) (kernel.KernelState, bool)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config       *config.Config
	logger       *zap.Logger
	orchestrator Orchestrator
	mcpServer    *server.MCPServer
	httpServer   *server.StreamableHTTPServer
	newChannel   func() string
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, orchestrator Orchestrator) (*MCPServer, error) {
	s := &MCPServer{
		config:       cfg,
		logger:       logger.Named("mcp"),
		orchestrator: orchestrator,
		newChannel:   uuid.NewString,
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("api.port", cfg.API.Port),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Bool("sandbox.nested", cfg.Sandbox.Nested),
		zap.Int("kernel.port", cfg.Kernel.Port),
		zap.Duration("kernel.poll_tick", cfg.Kernel.PollTick),
		zap.Duration("kernel.poll_timeout", cfg.Kernel.PollTimeout),
		zap.String("kernel.bootstrap_root", cfg.Kernel.BootstrapRoot),
		zap.String("kernel.server_uri", cfg.Kernel.ServerURI),
		zap.String("kernel.runtimes_dir", cfg.Kernel.RuntimesDir),
		zap.String("redis.addr", cfg.Redis.Addr),
		zap.String("redis.prefix", cfg.Redis.Prefix),
	)

	s.mcpServer = server.NewMCPServer("kernelbox", "Notebook kernel orchestrator")

	s.registerCreateKernelTool()
	s.registerRunCellTool()
	s.registerCreateEndpointTool()
	s.registerKernelStatusTool()

	if cfg.Server.Transport == "http" {
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)
	}

	return s, nil
}

var channelProperty = map[string]any{
	"type":        "string",
	"description": "Room that receives the asynchronous events; generated when omitted",
}

func (s *MCPServer) registerCreateKernelTool() {
	tool := mcp.Tool{
		Name:        "create_kernel",
		Description: "Provision a notebook kernel container. Logs and the ready or error status are published to the channel.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"notebook_id": map[string]any{
					"type":        "string",
					"description": "Notebook the kernel belongs to",
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Kernel name, unique within the notebook",
				},
				"image": map[string]any{
					"type":        "string",
					"description": "Kernel image",
					"enum":        []string{"python", "redis"},
				},
				"version": map[string]any{
					"type":        "string",
					"description": "Image tag, latest when omitted",
				},
				"languages": map[string]any{
					"type":        "array",
					"description": "Languages the kernel should support",
					"items":       map[string]any{"type": "string"},
				},
				"channel": channelProperty,
			},
			Required: []string{"notebook_id", "name", "image"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleCreateKernel)
}

func (s *MCPServer) handleCreateKernel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := request.RequireString("notebook_id")
	if err != nil {
		return nil, fmt.Errorf("notebook_id parameter is required: %w", err)
	}

	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}

	image, err := request.RequireString("image")
	if err != nil {
		return nil, fmt.Errorf("image parameter is required: %w", err)
	}

	def := kernel.Definition{
		NotebookID:         notebookID,
		Name:               name,
		Image:              image,
		Version:            request.GetString("version", ""),
		SupportedLanguages: request.GetStringSlice("languages", nil),
	}
	channel := s.channel(request)

	s.logger.Info("kernel requested",
		zap.String("channel", channel),
		zap.String("image", image),
		zap.String("version", def.Tag()))

	created, err := s.orchestrator.CreateKernel(ctx, channel, def)
	if err != nil {
		return toolError("Kernel creation failed", err), nil
	}

	return jsonResult(map[string]any{
		"channel": channel,
		"kernel":  created,
	})
}

func (s *MCPServer) registerRunCellTool() {
	tool := mcp.Tool{
		Name:        "run_cell",
		Description: "Execute a cell in a kernel. Output is published to the channel as code_result events.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"kernel_id": map[string]any{
					"type":        "string",
					"description": "Kernel id as returned by create_kernel",
				},
				"cell_id": map[string]any{
					"type":        "string",
					"description": "Cell id echoed in code_result; generated when omitted",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Cell source",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Cell language",
					"enum":        []string{"python", "shell", "go", "redis"},
				},
				"cell_type": map[string]any{
					"type":        "string",
					"description": "Run in the kernel REPL or as a stored file",
					"enum":        []string{kernel.CellInteractive, kernel.CellFile},
				},
				"file_path": map[string]any{
					"type":        "string",
					"description": "File the cell is stored as, required for file cells",
				},
				"channel": channelProperty,
			},
			Required: []string{"kernel_id", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCell)
}

func (s *MCPServer) handleRunCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kernelID, err := request.RequireString("kernel_id")
	if err != nil {
		return nil, fmt.Errorf("kernel_id parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	cell := kernel.CellRequest{
		CellID:   request.GetString("cell_id", ""),
		KernelID: kernelID,
		Code:     request.GetString("code", ""),
		Language: language,
		CellType: request.GetString("cell_type", kernel.CellInteractive),
		FilePath: request.GetString("file_path", ""),
	}
	if cell.CellID == "" {
		cell.CellID = uuid.NewString()
	}
	channel := s.channel(request)

	s.logger.Info("cell run requested",
		zap.String("channel", channel),
		zap.String("kernel", kernelID),
		zap.String("cell_type", cell.CellType))

	if err := s.orchestrator.RunCell(ctx, channel, cell); err != nil {
		return toolError("Cell execution failed", err), nil
	}

	return jsonResult(map[string]any{
		"channel": channel,
		"cellId":  cell.CellID,
	})
}

func (s *MCPServer) registerCreateEndpointTool() {
	tool := mcp.Tool{
		Name:        "create_endpoint",
		Description: "Expose a function of a kernel file as an HTTP endpoint with path and query templates such as /items/<int:id>.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"kernel_id": map[string]any{
					"type":        "string",
					"description": "Kernel id as returned by create_kernel",
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Endpoint name",
				},
				"file_path": map[string]any{
					"type":        "string",
					"description": "Kernel file holding the endpoint source",
				},
				"signature": map[string]any{
					"type":        "string",
					"description": "Call expression printed by the endpoint, e.g. handler(id)",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Path template",
				},
				"query": map[string]any{
					"type":        "string",
					"description": "Query template",
				},
			},
			Required: []string{"kernel_id", "name", "file_path", "signature"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleCreateEndpoint)
}

func (s *MCPServer) handleCreateEndpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kernelID, err := request.RequireString("kernel_id")
	if err != nil {
		return nil, fmt.Errorf("kernel_id parameter is required: %w", err)
	}

	name, err := request.RequireString("name")
	if err != nil {
		return nil, fmt.Errorf("name parameter is required: %w", err)
	}

	filePath, err := request.RequireString("file_path")
	if err != nil {
		return nil, fmt.Errorf("file_path parameter is required: %w", err)
	}

	signature, err := request.RequireString("signature")
	if err != nil {
		return nil, fmt.Errorf("signature parameter is required: %w", err)
	}

	req := kernel.EndpointRequest{
		KernelID: kernelID,
		FilePath: filePath,
		Config: endpoint.Config{
			Name:      name,
			Path:      request.GetString("path", ""),
			Query:     request.GetString("query", ""),
			FilePath:  filePath,
			Signature: signature,
		},
	}

	s.logger.Info("endpoint requested", zap.String("kernel", kernelID), zap.String("endpoint", name))

	if err := s.orchestrator.CreateEndpoint(ctx, req); err != nil {
		return toolError("Endpoint creation failed", err), nil
	}

	return jsonResult(map[string]any{
		"kernelId": kernelID,
		"endpoint": name,
	})
}

func (s *MCPServer) registerKernelStatusTool() {
	tool := mcp.Tool{
		Name:        "kernel_status",
		Description: "Report the last known status of a kernel",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"kernel_id": map[string]any{
					"type":        "string",
					"description": "Kernel id as returned by create_kernel",
				},
			},
			Required: []string{"kernel_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleKernelStatus)
}

func (s *MCPServer) handleKernelStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kernelID, err := request.RequireString("kernel_id")
	if err != nil {
		return nil, fmt.Errorf("kernel_id parameter is required: %w", err)
	}

	state, ok := s.orchestrator.Kernel(kernelID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Cannot find kernel %s", kernelID)), nil
	}
	return jsonResult(state)
}

func (s *MCPServer) channel(request mcp.CallToolRequest) string {
	if channel := request.GetString("channel", ""); channel != "" {
		return channel
	}
	return s.newChannel()
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	if s.httpServer == nil {
		return errors.New("http transport is not configured")
	}
	err := s.httpServer.Start(fmt.Sprintf(":%d", port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP transport if it is running
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
