package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/sandbox"
)

// TimeoutMessage is the log line emitted when a kernel never becomes ready.
const TimeoutMessage = "ERROR: Kernel timed out..."

const (
	eventBuffer    = 16
	defaultTick    = time.Second
	defaultTimeout = 120 * time.Second
)

// LogSource returns everything a container has logged so far.
type LogSource interface {
	Logs(ctx context.Context, id string) (sandbox.Logs, error)
}

// Prober checks whether a kernel answers its health probe.
type Prober interface {
	Probe(ctx context.Context, host string) error
}

// ErrNotReady is returned by a Prober when the kernel answered but not with 2xx.
var ErrNotReady = errors.New("kernel not ready")

// HTTPProber probes GET http://{host}:{port}/ping.
type HTTPProber struct {
	Client *http.Client
	Port   int
}

// Probe returns nil once the kernel answers with a 2xx status.
func (p HTTPProber) Probe(ctx context.Context, host string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d/ping", host, p.Port), http.NoBody)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKernelUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrNotReady, resp.StatusCode)
	}
	return nil
}

// EventKind distinguishes poller events.
type EventKind string

const (
	EventLog    EventKind = "log"
	EventStatus EventKind = "status"
)

// Event is emitted by a Watch. Log events carry Lines, status events carry
// a terminal Status.
type Event struct {
	Kind   EventKind
	Lines  []string
	Status Status
}

// Target identifies the container to watch.
type Target struct {
	// ID is passed to the log source.
	ID string
	// Host is the kernel's network name, passed to the prober.
	Host string
}

// Poller watches kernels until they become ready or time out.
type Poller struct {
	logger  *zap.Logger
	logs    LogSource
	prober  Prober
	tick    time.Duration
	timeout time.Duration
}

// PollerOption defines a functional option for Poller
type PollerOption func(*Poller)

// WithTick sets the delay between probes
func WithTick(tick time.Duration) PollerOption {
	return func(p *Poller) {
		p.tick = tick
	}
}

// WithTimeout sets how long a kernel has to become ready
func WithTimeout(timeout time.Duration) PollerOption {
	return func(p *Poller) {
		p.timeout = timeout
	}
}

// NewPoller creates a Poller.
func NewPoller(logger *zap.Logger, logs LogSource, prober Prober, opts ...PollerOption) *Poller {
	p := &Poller{
		logger:  logger.Named("poller"),
		logs:    logs,
		prober:  prober,
		tick:    defaultTick,
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Watch polls target in its own goroutine. The returned channel receives log
// events followed by exactly one status event (ready or error), and is closed
// afterwards. If ctx is cancelled the channel is closed without a status.
func (p *Poller) Watch(ctx context.Context, target Target) <-chan Event {
	events := make(chan Event, eventBuffer)
	go p.watch(ctx, target, events)
	return events
}

func (p *Poller) watch(parent context.Context, target Target, events chan<- Event) {
	defer close(events)

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	send := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-parent.Done():
			return false
		}
	}

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	logger := p.logger.With(zap.String("kernel", target.Host))
	var stdoutOffset, stderrOffset int
	for {
		if out, err := p.logs.Logs(ctx, target.ID); err != nil {
			logger.Debug("failed to read logs", zap.Error(err))
		} else {
			var lines, errLines []string
			lines, stdoutOffset = newLines(out.Stdout, stdoutOffset)
			errLines, stderrOffset = newLines(out.Stderr, stderrOffset)
			lines = append(lines, errLines...)
			if len(lines) > 0 && !send(Event{Kind: EventLog, Lines: lines}) {
				return
			}
		}

		err := p.prober.Probe(ctx, target.Host)
		if err == nil {
			logger.Info("kernel is ready")
			send(Event{Kind: EventStatus, Status: StatusReady})
			return
		}
		if !errors.Is(err, ErrKernelUnreachable) && !errors.Is(err, ErrNotReady) && ctx.Err() == nil {
			logger.Warn("probe failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			if parent.Err() != nil {
				return
			}
			logger.Warn("kernel timed out", zap.Duration("timeout", p.timeout))
			if send(Event{Kind: EventLog, Lines: []string{TimeoutMessage}}) {
				send(Event{Kind: EventStatus, Status: StatusError})
			}
			return
		case <-ticker.C:
		}
	}
}

// newLines returns the non-empty complete lines of out past offset and the
// new offset. A trailing line without newline is left for the next read.
func newLines(out string, offset int) ([]string, int) {
	complete := strings.Split(out, "\n")
	complete = complete[:len(complete)-1]

	if offset > len(complete) {
		offset = 0
	}

	var lines []string
	for _, line := range complete[offset:] {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, len(complete)
}
