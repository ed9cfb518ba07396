package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError marks an error as retryable, optionally carrying the HTTP
// status that produced it.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// transientFragments matches failure text from HTTP clients that wrap the
// underlying net error beyond type recognition.
var transientFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// IsTransient reports whether err looks safe to retry: an explicit
// TransientError anywhere in the chain, a network timeout, a reset or
// refused connection, or a message matching known transient failure text.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range transientFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
