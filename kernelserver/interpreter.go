package kernelserver

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// Result is the captured outcome of one REPL call. Output is a string, or a
// list of strings for interpreters that answer with several values.
type Result struct {
	Output any
	Error  string
}

// Interpreter is a persistent REPL session. State carries over between
// Execute calls.
type Interpreter interface {
	Execute(ctx context.Context, code string) (Result, error)
	Close() error
}

// GoInterpreter evaluates Go snippets in process.
type GoInterpreter struct {
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	interp *interp.Interpreter
}

// NewGoInterpreter creates a GoInterpreter with the standard library loaded.
func NewGoInterpreter() (*GoInterpreter, error) {
	g := &GoInterpreter{}
	g.interp = interp.New(interp.Options{Stdout: &g.stdout, Stderr: &g.stderr})
	if err := g.interp.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load go stdlib symbols: %w", err)
	}
	return g, nil
}

// Execute evaluates code. Compilation and runtime errors, including panics,
// are reported in Result.Error.
func (g *GoInterpreter) Execute(ctx context.Context, code string) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.interp == nil {
		return Result{}, ErrInterpreterClosed
	}

	g.stdout.Reset()
	g.stderr.Reset()

	_, err := g.interp.EvalWithContext(ctx, code)

	result := Result{Output: g.stdout.String(), Error: g.stderr.String()}
	if err != nil {
		result.Error += err.Error() + "\n"
	}
	return result, nil
}

// Close releases the interpreter.
func (g *GoInterpreter) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interp = nil
	return nil
}

// NewInterpreter builds the interpreter serving language. redisAddr is only
// used by the redis interpreter.
func NewInterpreter(logger *zap.Logger, language, redisAddr string) (Interpreter, error) {
	switch language {
	case LanguagePython:
		return NewPythonInterpreter(logger), nil
	case LanguageGo:
		return NewGoInterpreter()
	case LanguageRedis:
		return NewRedisInterpreter(logger, redisAddr), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
}
