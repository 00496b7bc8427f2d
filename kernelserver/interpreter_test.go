package kernelserver

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestGoInterpreterKeepsState(t *testing.T) {
	g, err := NewGoInterpreter()
	require.NoError(t, err)
	defer g.Close()

	ctx := context.Background()
	_, err = g.Execute(ctx, `import "fmt"`)
	require.NoError(t, err)
	_, err = g.Execute(ctx, `x := 41`)
	require.NoError(t, err)

	result, err := g.Execute(ctx, `fmt.Println(x + 1)`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", result.Output)
	assert.Empty(t, result.Error)
}

func TestGoInterpreterReportsErrors(t *testing.T) {
	g, err := NewGoInterpreter()
	require.NoError(t, err)

	result, err := g.Execute(context.Background(), `undefinedName + 1`)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Error)

	require.NoError(t, g.Close())
	_, err = g.Execute(context.Background(), `1`)
	assert.ErrorIs(t, err, ErrInterpreterClosed)
}

func TestNewInterpreter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	interp, err := NewInterpreter(logger, LanguagePython, "")
	require.NoError(t, err)
	assert.IsType(t, &PythonInterpreter{}, interp)

	interp, err = NewInterpreter(logger, LanguageRedis, "localhost:6379")
	require.NoError(t, err)
	assert.IsType(t, &RedisInterpreter{}, interp)

	interp, err = NewInterpreter(logger, LanguageGo, "")
	require.NoError(t, err)
	assert.IsType(t, &GoInterpreter{}, interp)

	_, err = NewInterpreter(logger, "cobol", "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestPythonInterpreter(t *testing.T) {
	requirePython(t)

	p := NewPythonInterpreter(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	result, err := p.Execute(ctx, "print(1+1)")
	require.NoError(t, err)
	assert.Equal(t, Result{Output: "2\n", Error: ""}, result)

	_, err = p.Execute(ctx, "x = 40")
	require.NoError(t, err)
	result, err = p.Execute(ctx, "print(x + 2)")
	require.NoError(t, err)
	assert.Equal(t, "42\n", result.Output)

	result, err = p.Execute(ctx, "raise ValueError('boom')")
	require.NoError(t, err)
	assert.Contains(t, result.Error, "ValueError: boom")

	result, err = p.Execute(ctx, "print(")
	require.NoError(t, err)
	assert.Contains(t, result.Error, "SyntaxError")

	result, err = p.Execute(ctx, "import os; os.write(1, b'raw\\n')")
	require.NoError(t, err)
	assert.Equal(t, "raw\n", result.Output)
}

func TestPythonInterpreterRestartsAfterExit(t *testing.T) {
	requirePython(t)

	p := NewPythonInterpreter(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	_, err := p.Execute(ctx, "import os; os._exit(0)")
	require.Error(t, err)

	result, err := p.Execute(ctx, "print('back')")
	require.NoError(t, err)
	assert.Equal(t, "back\n", result.Output)
}

func TestPythonInterpreterMissingBinary(t *testing.T) {
	p := NewPythonInterpreter(zaptest.NewLogger(t), WithPythonBinary("/nonexistent/python3"))
	_, err := p.Execute(context.Background(), "print(1)")
	assert.Error(t, err)
}

func TestPythonInterpreterSurvivesExit(t *testing.T) {
	requirePython(t)

	p := NewPythonInterpreter(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	_, err := p.Execute(ctx, "x = 41")
	require.NoError(t, err)

	result, err := p.Execute(ctx, "exit()")
	require.NoError(t, err)
	assert.Contains(t, result.Error, "SystemExit")

	result, err = p.Execute(ctx, "import sys; sys.exit(3)")
	require.NoError(t, err)
	assert.Equal(t, "SystemExit: 3\n", result.Error)

	result, err = p.Execute(ctx, "print(x+1)")
	require.NoError(t, err)
	assert.Equal(t, Result{Output: "42\n", Error: ""}, result)
}

func TestPythonInterpreterKeepsSessionWhenCallerGivesUp(t *testing.T) {
	requirePython(t)

	p := NewPythonInterpreter(zaptest.NewLogger(t))
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	_, err := p.Execute(ctx, "y = 7")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = p.Execute(short, "import time; time.sleep(1); print('late')")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	result, err := p.Execute(ctx, "print(y)")
	require.NoError(t, err)
	assert.Equal(t, Result{Output: "7\n", Error: ""}, result)
}
