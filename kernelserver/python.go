package kernelserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// frameMark prefixes the driver's reply line so that output written straight
// to file descriptor 1 by the user's code cannot be mistaken for a reply.
const frameMark = "\x1ekernelbox\x1e"

// pythonDriver reads one JSON request per line and answers with one framed
// JSON line holding the captured stdout and stderr. Cells see an empty stdin
// so that exit() cannot close the request stream.
const pythonDriver = `
import code, contextlib, io, json, sys
console = code.InteractiveConsole()
requests = sys.stdin
for line in requests:
    req = json.loads(line)
    sys.stdin = io.StringIO()
    out, err = io.StringIO(), io.StringIO()
    with contextlib.redirect_stdout(out), contextlib.redirect_stderr(err):
        try:
            console.runcode(compile(req["code"], "<cell>", "exec"))
        except (SyntaxError, OverflowError, ValueError):
            console.showsyntaxerror()
        except SystemExit as exc:
            err.write("SystemExit: %s\n" % (exc.code,))
        except BaseException:
            console.showtraceback()
    sys.__stdout__.write("` + frameMark + `" + json.dumps({"output": out.getvalue(), "error": err.getvalue()}) + "\n")
    sys.__stdout__.flush()
`

type pythonReply struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

type pythonProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

type pythonRead struct {
	reply pythonReply
	stray string
	err   error
}

// PythonInterpreter drives a persistent python3 process.
type PythonInterpreter struct {
	logger *zap.Logger
	binary string

	mu   sync.Mutex
	proc *pythonProcess
	// pending holds the reply of a call whose caller stopped waiting.
	pending chan pythonRead
}

// PythonInterpreterOption defines a functional option for PythonInterpreter
type PythonInterpreterOption func(*PythonInterpreter)

// WithPythonBinary sets the python executable
func WithPythonBinary(binary string) PythonInterpreterOption {
	return func(p *PythonInterpreter) {
		p.binary = binary
	}
}

// NewPythonInterpreter creates a PythonInterpreter. The process starts on
// the first Execute and is restarted after it dies.
func NewPythonInterpreter(logger *zap.Logger, opts ...PythonInterpreterOption) *PythonInterpreter {
	p := &PythonInterpreter{
		logger: logger.Named("python"),
		binary: "python3",
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *PythonInterpreter) start() (*pythonProcess, error) {
	if p.proc != nil {
		return p.proc, nil
	}

	//nolint:gosec // binary comes from configuration
	cmd := exec.Command(p.binary, "-u", "-c", pythonDriver)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open python stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open python stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start python: %w", err)
	}

	p.logger.Info("python interpreter started", zap.Int("pid", cmd.Process.Pid))
	p.proc = &pythonProcess{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}
	return p.proc, nil
}

func (p *PythonInterpreter) stop() {
	if p.proc == nil {
		return
	}
	_ = p.proc.stdin.Close()
	_ = p.proc.cmd.Process.Kill()
	_ = p.proc.cmd.Wait()
	p.proc = nil
	p.pending = nil
}

// settle waits for the reply of an abandoned call so that it is not taken
// for the reply of the next one.
func (p *PythonInterpreter) settle(ctx context.Context) error {
	if p.pending == nil {
		return nil
	}
	select {
	case r := <-p.pending:
		p.pending = nil
		if r.err != nil {
			p.logger.Warn("python interpreter lost while busy", zap.Error(r.err))
			p.stop()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs code in the persistent session. Output written to the process
// outside of the captured streams is prepended to Result.Output. When ctx is
// done before the code finishes, Execute returns ctx.Err() and the code keeps
// running; the session survives and the next call waits for it.
func (p *PythonInterpreter) Execute(ctx context.Context, code string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.settle(ctx); err != nil {
		return Result{}, err
	}

	proc, err := p.start()
	if err != nil {
		return Result{}, err
	}

	request, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode code: %w", err)
	}
	if _, err := proc.stdin.Write(append(request, '\n')); err != nil {
		p.stop()
		return Result{}, fmt.Errorf("failed to send code to python: %w", err)
	}

	done := make(chan pythonRead, 1)
	go func() {
		var r pythonRead
		var stray strings.Builder
		for {
			line, err := proc.stdout.ReadString('\n')
			if err != nil {
				r.err = fmt.Errorf("python process exited: %w", err)
				break
			}
			if payload, ok := strings.CutPrefix(line, frameMark); ok {
				r.err = json.Unmarshal([]byte(payload), &r.reply)
				break
			}
			stray.WriteString(line)
		}
		r.stray = stray.String()
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.stop()
			return Result{}, r.err
		}
		return Result{Output: r.stray + r.reply.Output, Error: r.reply.Error}, nil
	case <-ctx.Done():
		p.pending = done
		return Result{}, ctx.Err()
	}
}

// Close stops the python process.
func (p *PythonInterpreter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	return nil
}
