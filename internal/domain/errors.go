package domain

import "errors"

// Failure taxonomy for session operations. Everything the external client
// throws is translated into one of these at the controller boundary; none
// of them is allowed to take the process down.
var (
	// ErrNotReady means the session is not paired yet. User-recoverable.
	ErrNotReady = errors.New("session not ready")

	// ErrInvalidRequest means the caller omitted a required field.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSendTimeout means the underlying send did not complete in time.
	// Transient; it does not imply the session is broken.
	ErrSendTimeout = errors.New("send timed out")

	// ErrSendFailed wraps an underlying send failure. Transient.
	ErrSendFailed = errors.New("send failed")

	// ErrLaunchFailed means the client could not be started. The controller
	// schedules a retry; callers only ever see this on direct queries.
	ErrLaunchFailed = errors.New("client launch failed")

	// ErrAuthFailed means pairing was rejected by the remote side.
	ErrAuthFailed = errors.New("authentication failed")
)
