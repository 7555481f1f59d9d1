package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/relloyd/forklift/errs"
)

// Classifier decides whether err is worth another attempt.
type Classifier func(err error) bool

// IsTransient is the default Classifier.
// Timeouts, connection resets, remote 5xx responses and anything wrapped by errs.TransientRemote are
// transient. Invalid arguments, 4xx responses and parent context cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errs.ErrInvalidArgument) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *errs.StatusError
	if errors.As(err, &se) { // if this is a remote response...
		return se.Code >= 500
	}
	if errors.Is(err, errs.ErrTransientRemote) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) { // per-call timeout
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Never is a Classifier that retries nothing.
func Never(error) bool {
	return false
}
