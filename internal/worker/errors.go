package worker

import "errors"

var (
	// ErrNotInitialized is returned by Invoke before the handshake has completed.
	ErrNotInitialized = errors.New("The proxy IO class not initialized.")

	// ErrWorkerUnavailable is returned for calls pending when the worker exits,
	// and for every call made after that.
	ErrWorkerUnavailable = errors.New("worker unavailable")

	// ErrAlreadyStarted is returned by Initialize once a worker has been started or attached.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrCallTimeout is returned when a call outlives the configured call timeout.
	ErrCallTimeout = errors.New("worker call timed out")
)

// RemoteError is a failure reported by the worker for one call.
// Only the message text crosses the process boundary.
type RemoteError struct {
	Fn      string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
