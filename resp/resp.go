package resp

import (
	"fmt"
	"strconv"
	"strings"
)

// Terminator separates protocol lines.
const Terminator = "\r\n"

// Nil is the value recorded for a null bulk string ($-1).
const Nil = "nil"

// NoResultMessage is reported when a reply carries no values at all.
const NoResultMessage = "Error executing command. There was no result."

// Reply is a decoded protocol reply.
//
// Result holds a string, an int64 or, when more than one value was
// collected, a []string with integers rendered in base 10.
type Reply struct {
	Result  any
	IsError bool
}

// Parse decodes a raw reply. It never fails: an empty reply is reported as
// an error reply carrying NoResultMessage.
func Parse(raw string) Reply {
	var (
		values  []any
		isError bool
	)

	for _, line := range strings.Split(raw, Terminator) {
		if line == "" {
			continue
		}

		switch line[0] {
		case '*':
			// array count, membership is implied by the lines that follow
			continue
		case '-':
			isError = true
			values = append(values, errorMessage(line[1:]))
		case '+':
			values = append(values, line[1:])
		case ':':
			n, err := strconv.ParseInt(line[1:], 10, 64)
			if err != nil {
				values = append(values, line[1:])
				continue
			}
			values = append(values, n)
		case '$':
			if line[1:] == "-1" {
				values = append(values, Nil)
			}
		default:
			values = append(values, line)
		}
	}

	switch len(values) {
	case 0:
		return Reply{Result: NoResultMessage, IsError: true}
	case 1:
		return Reply{Result: values[0], IsError: isError}
	default:
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, fmt.Sprint(v))
		}
		return Reply{Result: out, IsError: isError}
	}
}

// errorMessage drops the upper-case error kind ("ERR", "WRONGTYPE") that
// prefixes a server error, leaving the human readable message.
func errorMessage(s string) string {
	kind, msg, ok := strings.Cut(s, " ")
	if !ok || kind == "" || strings.ToUpper(kind) != kind || strings.ToLower(kind) == kind {
		return s
	}
	return msg
}

// Text renders the result for display in a cell.
func (r Reply) Text() string {
	switch v := r.Result.(type) {
	case string:
		return v
	case []string:
		return "[" + strings.Join(v, " ") + "]"
	default:
		return fmt.Sprint(v)
	}
}

// Complete reports whether buf holds at least one full reply. It is used by
// socket readers to stop waiting once a reply has been received in full.
func Complete(buf string) bool {
	if !strings.HasSuffix(buf, Terminator) {
		return false
	}
	lines := strings.Split(strings.TrimSuffix(buf, Terminator), Terminator)
	n, ok := consume(lines, 0)
	return ok && n == len(lines)
}

// consume walks one reply starting at lines[i] and returns the index after it.
func consume(lines []string, i int) (int, bool) {
	if i >= len(lines) || lines[i] == "" {
		return i, false
	}
	line := lines[i]
	switch line[0] {
	case '+', '-', ':':
		return i + 1, true
	case '$':
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return i, false
		}
		if size < 0 {
			return i + 1, true
		}
		if i+1 >= len(lines) {
			return i, false
		}
		return i + 2, true
	case '*':
		count, err := strconv.Atoi(line[1:])
		if err != nil {
			return i, false
		}
		next := i + 1
		for range max(count, 0) {
			var ok bool
			next, ok = consume(lines, next)
			if !ok {
				return next, false
			}
		}
		return next, true
	default:
		return i + 1, true
	}
}
