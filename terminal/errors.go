package terminal

import (
	"slices"

	"github.com/agentuity/go-terminals/restapi"
	"github.com/cockroachdb/errors"
)

var (
	// ErrCapabilityUnavailable is returned by every readiness check of a
	// manager whose server does not provide terminals.
	ErrCapabilityUnavailable = errors.New("terminals are not available")
	// ErrDisposed is returned by operations on a disposed manager or connection.
	ErrDisposed = errors.New("terminal manager disposed")
	// ErrMissingName is returned by ConnectTo when the model has no name.
	ErrMissingName = errors.New("terminal model must have a name")
	// ErrNotConnected is returned by Send before Connect succeeds.
	ErrNotConnected = errors.New("terminal connection is not open")
)

// IsServiceUnavailable reports whether err means the terminal service
// itself is unreachable: a network failure, or a response whose status is
// one of statuses.
func IsServiceUnavailable(err error, statuses ...int) bool {
	if err == nil {
		return false
	}
	if restapi.IsNetworkError(err) {
		return true
	}
	status, ok := restapi.StatusCode(err)
	return ok && slices.Contains(statuses, status)
}
