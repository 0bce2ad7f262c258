package pipe

import "errors"

var (
	// ErrSourceAttached is returned when attaching a source to a pipe that
	// already has one.
	ErrSourceAttached = errors.New("pipe: source already attached")

	// ErrSinkAttached is returned when attaching a sink to a pipe that
	// already has one.
	ErrSinkAttached = errors.New("pipe: sink already attached")

	// ErrNoSource is returned when detaching a source from a pipe that has
	// none.
	ErrNoSource = errors.New("pipe: no source attached")

	// ErrNoSink is returned when detaching a sink from a pipe that has none.
	ErrNoSink = errors.New("pipe: no sink attached")

	// ErrDetached is returned by endpoint operations on an endpoint that is
	// not attached to a pipe.
	ErrDetached = errors.New("pipe: endpoint not attached")

	// ErrNotWritable is returned by Source.Write when the pipe is at or above
	// its threshold, or when the buffer would carry it past the threshold.
	// Writes are whole-buffer, never split.
	ErrNotWritable = errors.New("pipe: not writable")
)
