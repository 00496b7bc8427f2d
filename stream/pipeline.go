package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Type names the stream a batch of lines was read from.
type Type string

const (
	Stdout Type = "stdout"
	Stderr Type = "stderr"
)

// Sink receives batches of lines. Lines keep their trailing newline.
type Sink func(lines []string, stream Type)

// Pipeline drains process output into a Sink. Sink calls are serialized.
type Pipeline struct {
	interval time.Duration
	sink     Sink
	now      func() time.Time
	mu       sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the clock used to measure flush intervals.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline flushing to sink every interval. An interval of 0
// flushes on every line.
func New(interval time.Duration, sink Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		interval: interval,
		sink:     sink,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts cmd, drains its output and waits for it to exit. If draining
// either stream fails the process is killed at once, so that the other
// stream reaches end of file, and the error text is forwarded to the sink
// as a stderr line. A non-zero exit status is returned as the exit code, not
// as an error.
func (p *Pipeline) Run(ctx context.Context, cmd *exec.Cmd) (int, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	kill := func() { _ = cmd.Process.Kill() }
	if drainErr := p.drainAll(ctx, stdout, stderr, kill); drainErr != nil {
		p.emit([]string{drainErr.Error()}, Stderr)
	}

	err = cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Drain reads stdout and stderr concurrently until both reach end of stream.
func (p *Pipeline) Drain(ctx context.Context, stdout, stderr io.Reader) error {
	return p.drainAll(ctx, stdout, stderr, nil)
}

// drainAll is Drain with abort called once, from within the group, when the
// first stream fails.
func (p *Pipeline) drainAll(ctx context.Context, stdout, stderr io.Reader, abort func()) error {
	var once sync.Once
	g, ctx := errgroup.WithContext(ctx)
	for stream, r := range map[Type]io.Reader{Stdout: stdout, Stderr: stderr} {
		g.Go(func() error {
			err := p.drain(ctx, r, stream)
			if err != nil && abort != nil {
				once.Do(abort)
			}
			return err
		})
	}
	return g.Wait()
}

func (p *Pipeline) drain(ctx context.Context, r io.Reader, stream Type) error {
	reader := bufio.NewReader(r)
	var lines []string
	last := p.now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if line != "" {
			lines = append(lines, line)
			if p.interval == 0 || p.now().Sub(last) > p.interval {
				p.emit(lines, stream)
				lines = nil
				last = p.now()
			}
		}

		if errors.Is(err, io.EOF) {
			if len(lines) > 0 {
				p.emit(lines, stream)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", stream, err)
		}
	}
}

func (p *Pipeline) emit(lines []string, stream Type) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink(lines, stream)
}
