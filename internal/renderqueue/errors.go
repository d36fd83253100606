package renderqueue

import "errors"

// Failure kinds the queue reports. Every rejected submission settles with
// exactly one of these; callers distinguish them with errors.Is.
var (
	// ErrQueueFull is returned synchronously when admission would exceed
	// the configured MaxTaskCount.
	ErrQueueFull = errors.New("render queue is full")

	// ErrQueueTimeout means the job aged out while still waiting, before
	// its process function was ever invoked.
	ErrQueueTimeout = errors.New("render job timed out waiting in queue")

	// ErrJobTimeout means the job exceeded the execution budget after it
	// had started running.
	ErrJobTimeout = errors.New("render job exceeded execution timeout")

	// ErrProcessingCancelled means the caller cancelled the job. This is a
	// normal outcome, not an operational error.
	ErrProcessingCancelled = errors.New("render job cancelled")

	// ErrQueueClosed is returned when Submit is called on a closed queue.
	ErrQueueClosed = errors.New("render queue is closed")
)
