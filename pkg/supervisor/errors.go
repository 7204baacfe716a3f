package supervisor

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidArgument is returned when a required input is empty or malformed.
	// It is always detected before any network activity.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized is returned when supervisord rejects the configured credentials.
	ErrUnauthorized = errors.New("unauthorized: supervisor rejected the configured credentials")
)

// MonitorError covers every other failure: transport errors, malformed
// responses, XML-RPC faults and operations that returned a false result.
type MonitorError struct {
	// Op is the remote procedure, e.g. "supervisor.startProcess".
	Op string
	// Process is the target process name, empty for list calls.
	Process string
	// Fault holds the supervisord fault text when the peer answered with a fault.
	Fault string
	Err   error
}

func (e *MonitorError) Error() string {
	msg := "supervisor monitor: " + e.Op
	if e.Process != "" {
		msg += " " + e.Process
	}
	if e.Fault != "" {
		return msg + ": fault: " + e.Fault
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + " failed"
}

func (e *MonitorError) Unwrap() error {
	return e.Err
}

// StatusError is produced by the HTTP transport for non-2xx responses so the
// RPC client never tries to decode an error page.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %s", e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 and 403 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
