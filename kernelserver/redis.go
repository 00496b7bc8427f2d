package kernelserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/resp"
)

const defaultReadTimeout = 250 * time.Millisecond

// RedisInterpreter sends raw commands to a Redis server over a plain TCP
// connection and decodes the reply with the resp package.
type RedisInterpreter struct {
	logger      *zap.Logger
	addr        string
	readTimeout time.Duration
	dialer      net.Dialer

	mu   sync.Mutex
	conn net.Conn
}

// RedisInterpreterOption defines a functional option for RedisInterpreter
type RedisInterpreterOption func(*RedisInterpreter)

// WithReadTimeout sets how long a read waits for more reply bytes
func WithReadTimeout(timeout time.Duration) RedisInterpreterOption {
	return func(r *RedisInterpreter) {
		r.readTimeout = timeout
	}
}

// NewRedisInterpreter creates a RedisInterpreter talking to addr. The
// connection is opened on the first Execute and reopened after a failure.
func NewRedisInterpreter(logger *zap.Logger, addr string, opts ...RedisInterpreterOption) *RedisInterpreter {
	r := &RedisInterpreter{
		logger:      logger.Named("redis"),
		addr:        addr,
		readTimeout: defaultReadTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RedisInterpreter) connect(ctx context.Context) (net.Conn, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", r.addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	r.logger.Info("connected to redis", zap.String("addr", r.addr))
	r.conn = conn
	return conn, nil
}

func (r *RedisInterpreter) reset() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// Execute sends every non-empty line of code as one command, encoded as a
// RESP array; code that already is RESP is sent as is. Each reply is read
// until it is a complete RESP value or no more bytes arrive within the read
// timeout. A single command yields its reply as the output; several commands
// yield the list of their outputs, with error replies joined into Error.
func (r *RedisInterpreter) Execute(ctx context.Context, code string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	commands := splitCommands(code)
	if len(commands) == 0 {
		return Result{Output: "", Error: resp.NoResultMessage}, nil
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return Result{}, err
	}

	outputs := make([]any, 0, len(commands))
	var errs []string
	for _, command := range commands {
		reply, err := r.roundTrip(ctx, conn, command)
		if err != nil {
			r.reset()
			return Result{}, err
		}
		if reply.IsError {
			errs = append(errs, reply.Text())
			continue
		}
		if list, ok := reply.Result.([]string); ok {
			outputs = append(outputs, list)
		} else {
			outputs = append(outputs, reply.Text())
		}
	}

	result := Result{Output: "", Error: strings.Join(errs, "\n")}
	switch len(outputs) {
	case 0:
	case 1:
		result.Output = outputs[0]
	default:
		result.Output = outputs
	}
	return result, nil
}

func (r *RedisInterpreter) roundTrip(ctx context.Context, conn net.Conn, command string) (resp.Reply, error) {
	if _, err := conn.Write([]byte(command)); err != nil {
		return resp.Reply{}, fmt.Errorf("failed to send command: %w", err)
	}
	raw, err := r.readReply(ctx, conn)
	if err != nil {
		return resp.Reply{}, err
	}
	return resp.Parse(raw), nil
}

// splitCommands turns a cell into wire commands, one per non-empty line.
func splitCommands(code string) []string {
	if strings.HasPrefix(code, "*") {
		return []string{strings.TrimSpace(code) + resp.Terminator}
	}
	var commands []string
	for _, line := range strings.Split(code, "\n") {
		if args := commandArgs(line); len(args) > 0 {
			commands = append(commands, encodeCommand(args))
		}
	}
	return commands
}

func (r *RedisInterpreter) readReply(ctx context.Context, conn net.Conn) (string, error) {
	var buf strings.Builder
	chunk := make([]byte, 1024)
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
			return "", err
		}
		n, err := conn.Read(chunk)
		buf.Write(chunk[:n])
		if resp.Complete(buf.String()) {
			break
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read reply: %w", err)
		}
	}
	return buf.String(), ctx.Err()
}

// commandArgs splits a command line on whitespace. Single and double quotes
// group words; inside double quotes a backslash escapes the next character.
func commandArgs(line string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inWord  bool
		escaped bool
	)
	for _, c := range strings.TrimSpace(line) {
		switch {
		case escaped:
			current.WriteRune(c)
			escaped = false
		case quote == '"' && c == '\\':
			escaped = true
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
			current.WriteRune(c)
		case c == '"' || c == '\'':
			quote = c
			inWord = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(c)
			inWord = true
		}
	}
	if inWord {
		args = append(args, current.String())
	}
	return args
}

func encodeCommand(args []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d%s", len(args), resp.Terminator)
	for _, arg := range args {
		fmt.Fprintf(&b, "$%d%s%s%s", len(arg), resp.Terminator, arg, resp.Terminator)
	}
	return b.String()
}

// Close closes the connection.
func (r *RedisInterpreter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	return nil
}
