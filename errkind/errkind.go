// Package errkind classifies transport and codec errors.
//
// Exported to a separate package in order to avoid loops.
package errkind

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Kind is the error category, used as the routing key for error handling.
type Kind byte

const (
	KIND_OTHER          Kind = iota // catch-all
	KIND_WOULD_BLOCK                // operation would block; never surfaced to handlers
	KIND_TIMED_OUT                  // deadline or idle timeout
	KIND_CONN_RESET                 // connection reset by peer
	KIND_UNEXPECTED_EOF             // peer closed mid-stream
	KIND_DECODE                     // malformed wire data
)

// String converts Kind to string
func (k Kind) String() string {
	switch k {
	case KIND_WOULD_BLOCK:
		return "WouldBlock"
	case KIND_TIMED_OUT:
		return "TimedOut"
	case KIND_CONN_RESET:
		return "ConnectionReset"
	case KIND_UNEXPECTED_EOF:
		return "UnexpectedEof"
	case KIND_DECODE:
		return "Decode"
	case KIND_OTHER:
		return "Other"
	default:
		return "?"
	}
}

// KindString converts string to Kind
func KindString(s string) (Kind, error) {
	switch s {
	case "WouldBlock":
		return KIND_WOULD_BLOCK, nil
	case "TimedOut":
		return KIND_TIMED_OUT, nil
	case "ConnectionReset":
		return KIND_CONN_RESET, nil
	case "UnexpectedEof":
		return KIND_UNEXPECTED_EOF, nil
	case "Decode":
		return KIND_DECODE, nil
	case "Other":
		return KIND_OTHER, nil
	default:
		return 0, ErrValue
	}
}

// Error is a transport or codec error tagged with its Kind.
// The Kind routes handling; the Message is diagnostic only.
type Error struct {
	Kind    Kind
	Message string
}

// New returns a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Kind.String() + ", " + e.Message
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// FromIO maps a native I/O error to an Error, keeping err's text as
// the message. A nil err returns nil.
func FromIO(err error) *Error {
	if err == nil {
		return nil
	}

	// already classified?
	var ke *Error
	if errors.As(err, &ke) {
		return ke
	}

	kind := KIND_OTHER
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KIND_UNEXPECTED_EOF
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		kind = KIND_CONN_RESET
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
		kind = KIND_WOULD_BLOCK
	case os.IsTimeout(err):
		kind = KIND_TIMED_OUT
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			kind = KIND_TIMED_OUT
		}
	}

	return &Error{Kind: kind, Message: err.Error()}
}
