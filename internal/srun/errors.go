package srun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/micro-ha/srun-guard/internal/model"
)

var (
	// ErrProtocol marks a body that matched no known encoding.
	ErrProtocol = errors.New("unrecognized gateway response")
	// ErrAuth marks an explicit rejection from the gateway.
	ErrAuth = errors.New("gateway rejected credentials")
	// ErrConfig marks an operation attempted without credentials.
	ErrConfig = errors.New("credentials not configured")
)

// TransportError wraps a failed exchange with the gateway.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Timeout reports whether the exchange hit its deadline.
func (e *TransportError) Timeout() bool {
	if e == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(e.Err, &nerr) && nerr.Timeout()
}

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) model.FailureKind {
	if err == nil {
		return model.KindNone
	}
	var terr *TransportError
	switch {
	case errors.As(err, &terr):
		return model.KindTransport
	case errors.Is(err, ErrConfig):
		return model.KindConfig
	case errors.Is(err, ErrAuth):
		return model.KindAuth
	case errors.Is(err, ErrProtocol):
		return model.KindProtocol
	default:
		return model.KindTransport
	}
}

// describeTransport shortens common net errors for display.
func describeTransport(err error) string {
	var terr *TransportError
	if errors.As(err, &terr) && terr.Timeout() {
		return "gateway request timed out"
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "connection refused"):
		return "gateway refused connection"
	case strings.Contains(message, "no such host"):
		return "gateway host not resolvable"
	case strings.Contains(message, "network is unreachable"):
		return "network unreachable"
	}
	return "network request failed: " + err.Error()
}
