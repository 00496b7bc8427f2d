package kernelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/endpoint"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/kernel"
	"github.com/isdmx/kernelbox/stream"
)

// Defaults of the in-kernel server.
const (
	DefaultPort     = 1111
	DefaultRoot     = "/tmp/code-files"
	DefaultShellDir = "/tmp"
)

const (
	dirPermission  = 0o755
	filePermission = 0o644
)

var endpointName = regexp.MustCompile(`^[\w\-]+`)

// Server is the execution protocol server running inside a kernel.
type Server struct {
	logger       *zap.Logger
	sink         events.Sink
	args         Arguments
	root         string
	shellDir     string
	interval     time.Duration
	interpreters map[string]Interpreter
	base         context.Context

	// at most one REPL call runs at a time
	replMu sync.Mutex
	shells sync.WaitGroup
}

// ServerOption defines a functional option for Server
type ServerOption func(*Server)

// WithInterpreter serves REPL calls for language with interp
func WithInterpreter(language string, interp Interpreter) ServerOption {
	return func(s *Server) {
		s.interpreters[language] = interp
	}
}

// WithRoot sets the directory files and endpoints are stored under
func WithRoot(root string) ServerOption {
	return func(s *Server) {
		s.root = root
	}
}

// WithShellDir sets where shell cells are written before they run
func WithShellDir(dir string) ServerOption {
	return func(s *Server) {
		s.shellDir = dir
	}
}

// WithStreamInterval sets the flush interval of shell output
func WithStreamInterval(interval time.Duration) ServerOption {
	return func(s *Server) {
		s.interval = interval
	}
}

// WithBaseContext sets the context background shell runs use
func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) {
		s.base = ctx
	}
}

// NewServer creates a Server publishing REPL results to sink and resolving
// endpoint arguments through args.
func NewServer(logger *zap.Logger, sink events.Sink, args Arguments, opts ...ServerOption) *Server {
	s := &Server{
		logger:       logger.Named("kernelserver"),
		sink:         sink,
		args:         args,
		root:         DefaultRoot,
		shellDir:     DefaultShellDir,
		interpreters: make(map[string]Interpreter),
		base:         context.Background(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the gin engine serving the kernel routes.
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.logRequests())

	router.GET("/ping", s.ping)
	router.GET("/repl", s.repl)
	router.POST("/repl", s.repl)
	router.GET("/file", s.runFile)
	router.POST("/file", s.writeFile)
	router.POST("/endpoints", s.createEndpoint)
	router.GET("/endpoints/:name", s.runEndpoint)
	router.POST("/endpoints/:name", s.runEndpoint)
	router.GET("/endpoints/:name/*rest", s.runEndpoint)
	router.POST("/endpoints/:name/*rest", s.runEndpoint)

	return router
}

// Wait blocks until background shell executions have finished.
func (s *Server) Wait() {
	s.shells.Wait()
}

// Close waits for shell executions and closes the interpreters.
func (s *Server) Close() error {
	s.Wait()
	var errs []error
	for _, interp := range s.interpreters {
		errs = append(errs, interp.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": status, "message": message}})
}

func (s *Server) ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

type replBody struct {
	kernel.ReplRequest
	Language string `json:"language"`
}

func (s *Server) repl(c *gin.Context) {
	var body replBody
	if c.Request.Method == http.MethodGet {
		body.Code = c.Query("code")
		body.Channel = c.Query("channel")
		body.CellID = c.Query("cellId")
	} else if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid repl request: %v", err))
		return
	}

	language := c.DefaultQuery("language", body.Language)
	if language == LanguageShell {
		if err := s.startShell(body.ReplRequest); err != nil {
			writeError(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, "Ok")
		return
	}

	interp, ok := s.interpreters[language]
	if !ok {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("%v: %q", ErrUnsupportedLanguage, language))
		return
	}

	s.replMu.Lock()
	result, err := interp.Execute(s.base, body.Code)
	s.replMu.Unlock()
	if err != nil {
		s.logger.Error("repl execution failed", zap.String("language", language), zap.Error(err))
		result = Result{Output: "", Error: err.Error()}
	}

	s.publish(events.NewCodeResult(body.Channel, events.CodeResult{
		ID:     body.CellID,
		Output: result.Output,
		Error:  result.Error,
	}))
	c.String(http.StatusOK, "Ok")
}

// startShell writes code to a script and runs it with bash in the
// background, streaming its output as code_result events.
func (s *Server) startShell(req kernel.ReplRequest) error {
	filename := filepath.Join(s.shellDir, ".file_"+filepath.Base(req.CellID)+".sh")
	//nolint:gosec // shell cells are meant to be executable
	if err := os.WriteFile(filename, []byte(req.Code), 0o700); err != nil {
		return fmt.Errorf("failed to write shell script: %w", err)
	}

	pipeline := stream.New(s.interval, func(lines []string, st stream.Type) {
		text := strings.ReplaceAll(strings.Join(lines, ""), filename, "sh")
		result := events.CodeResult{ID: req.CellID, Output: "", StreamType: string(st)}
		if st == stream.Stdout {
			result.Output = text
		} else {
			result.Error = text
		}
		s.publish(events.NewCodeResult(req.Channel, result))
	})

	//nolint:gosec // running user code is the purpose of the kernel
	cmd := exec.CommandContext(s.base, "bash", filename)
	s.shells.Add(1)
	go func() {
		defer s.shells.Done()
		code, err := pipeline.Run(s.base, cmd)
		if err != nil {
			s.logger.Error("shell execution failed", zap.String("cell", req.CellID), zap.Error(err))
			s.publish(events.NewCodeResult(req.Channel, events.CodeResult{
				ID:         req.CellID,
				Output:     "",
				Error:      err.Error(),
				StreamType: string(stream.Stderr),
			}))
			return
		}
		s.logger.Debug("shell execution finished", zap.String("cell", req.CellID), zap.Int("exit_code", code))
	}()
	return nil
}

func (s *Server) writeFile(c *gin.Context) {
	var req kernel.FileWrite
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid file request: %v", err))
		return
	}

	rel := SecurePath(s.root, req.FilePath)
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), dirPermission); err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("failed to create directory: %v", err))
		return
	}
	if err := os.WriteFile(full, []byte(req.Content), filePermission); err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("failed to write file: %v", err))
		return
	}

	s.logger.Info("file written", zap.String("path", rel), zap.String("cell", req.CellID))
	c.String(http.StatusOK, rel)
}

func (s *Server) runFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		writeError(c, http.StatusBadRequest, "missing path")
		return
	}

	result, err := s.execute(c.Request.Context(), SecurePath(s.root, path))
	if errors.Is(err, ErrUnknownToolchain) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		result.Error += err.Error()
	}
	c.JSON(http.StatusOK, result)
}

// execute runs the file at rel and captures its output. A non-zero exit is
// not an error; its diagnostics are in the captured stderr.
func (s *Server) execute(ctx context.Context, rel string) (kernel.FileResult, error) {
	cmd, err := FileCommand(ctx, s.root, rel)
	if err != nil {
		return kernel.FileResult{}, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()

	result := kernel.FileResult{Output: stdout.String(), Error: stderr.String()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return result, fmt.Errorf("failed to run %s: %w", rel, err)
	}
	return result, nil
}

func (s *Server) configPath(name string) string {
	return filepath.Join(s.root, "endpoints", name+".config")
}

func (s *Server) createEndpoint(c *gin.Context) {
	var req kernel.EndpointCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid endpoint request: %v", err))
		return
	}
	if endpointName.FindString(req.Config.Name) != req.Config.Name || req.Config.Name == "" {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid endpoint name %q", req.Config.Name))
		return
	}

	cfg := req.Config
	cfg.FilePath = SecurePath(s.root, req.FilePath)
	data, err := json.Marshal(cfg)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("failed to encode endpoint: %v", err))
		return
	}

	path := s.configPath(cfg.Name)
	if err := os.MkdirAll(filepath.Dir(path), dirPermission); err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("failed to create directory: %v", err))
		return
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("failed to write endpoint: %v", err))
		return
	}

	s.logger.Info("endpoint registered", zap.String("endpoint", cfg.Name), zap.String("file", cfg.FilePath))
	c.String(http.StatusOK, "Ok")
}

func missingEndpoint(name string) string {
	return fmt.Sprintf("Missing endpoint configuration for %s. Please check if endpoint is defined.", name)
}

func (s *Server) runEndpoint(c *gin.Context) {
	name := endpointName.FindString(c.Param("name"))
	cfg, err := s.loadEndpoint(name)
	if err != nil {
		writeError(c, http.StatusNotFound, missingEndpoint(name))
		return
	}

	rel, err := s.materialize(c.Request.Context(), cfg, c.Request.RequestURI)
	var parseErr *ParseError
	switch {
	case errors.Is(err, ErrEndpointNotFound):
		writeError(c, http.StatusNotFound, missingEndpoint(cfg.Name))
		return
	case errors.As(err, &parseErr) && parseErr.Status == http.StatusBadRequest:
		writeError(c, http.StatusBadRequest, parseErr.Message)
		return
	case errors.As(err, &parseErr):
		writeError(c, http.StatusInternalServerError, "Error while attempting to parse endpoint "+parseErr.Message)
		return
	case err != nil:
		writeError(c, http.StatusInternalServerError, "Error while attempting to parse endpoint "+err.Error())
		return
	}

	result, err := s.execute(c.Request.Context(), rel)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Error != "" {
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte(result.Error))
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Output))
}

func (s *Server) loadEndpoint(name string) (endpoint.Config, error) {
	var cfg endpoint.Config
	if name == "" {
		return cfg, ErrEndpointNotFound
	}
	data, err := os.ReadFile(s.configPath(name))
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrEndpointNotFound, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrEndpointNotFound, err)
	}
	return cfg, nil
}

// materialize writes the endpoint's source followed by the resolved argument
// assignments and a print of its signature, and returns the written file
// relative to the root.
func (s *Server) materialize(ctx context.Context, cfg endpoint.Config, requestURI string) (string, error) {
	source, err := os.ReadFile(filepath.Join(s.root, cfg.FilePath))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEndpointNotFound, err)
	}

	pathArgs, queryArgs, err := s.args.Parse(ctx, cfg, requestURI)
	if err != nil {
		return "", err
	}

	var content strings.Builder
	content.Write(source)
	content.WriteString("\n")
	var assignments []string
	for _, args := range []map[string]any{pathArgs, queryArgs} {
		if a := Assignments(args); a != "" {
			assignments = append(assignments, a)
		}
	}
	content.WriteString(strings.Join(assignments, "\n"))
	content.WriteString("\n\nprint(" + cfg.Signature + ")\n")

	rel := endpointFile(cfg.FilePath)
	if err := os.WriteFile(filepath.Join(s.root, rel), []byte(content.String()), filePermission); err != nil {
		return "", fmt.Errorf("failed to write endpoint file: %w", err)
	}
	return rel, nil
}

func (s *Server) publish(event events.Event) {
	if err := s.sink.Publish(s.base, event); err != nil {
		s.logger.Error("failed to publish event", zap.String("event", event.Name), zap.Error(err))
	}
}
