package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient_ExplicitAndWrapped(t *testing.T) {
	te := NewTransientError(errors.New("rate limited"), 429)
	assert.True(t, IsTransient(te))
	assert.True(t, IsTransient(fmt.Errorf("wikipedia lookup: %w", te)))
}

func TestIsTransient_NilAndPermanent(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("no obituary found for subject")))
}

func TestIsTransient_ConnectionErrno(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		assert.True(t, IsTransient(fmt.Errorf("dial tcp: %w", errno)), errno.Error())
	}
}

func TestIsTransient_NetTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	assert.True(t, IsTransient(err))
}

func TestIsTransient_MessageFragments(t *testing.T) {
	for _, msg := range []string{
		"read: connection reset by peer",
		"write: broken pipe",
		"net/http: TLS handshake timeout",
		"read tcp 10.0.0.1: i/o timeout",
		"server closed idle connection",
	} {
		assert.True(t, IsTransient(errors.New(msg)), msg)
	}
}

func TestTransientError_UnwrapAndStatus(t *testing.T) {
	inner := errors.New("service unavailable")
	te := NewTransientError(inner, 503)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, "service unavailable", te.Error())
}
