// Package poller abstracts the kernel readiness-notification facility
// behind a small interface. The default implementation uses epoll in
// edge-triggered mode; an io_uring multishot-poll implementation is
// available behind the giouring build tag.
package poller

import "errors"

// ErrUnsupported is returned when no readiness facility is available on
// this platform.
var ErrUnsupported = errors.New("poller: not supported on this platform")

// Flags describe the readiness of a registered file descriptor.
type Flags uint32

const (
	// Readable reports the fd can make read progress
	Readable Flags = 1 << iota
	// Writable reports the fd can make write progress
	Writable
	// Closed reports a terminal error or hangup on the fd
	Closed
)

// Event is one readiness notification. Token echoes the value supplied at
// registration; the loop uses it to re-validate a record before dispatch.
type Event struct {
	Fd    int
	Token uint32
	Flags Flags
}

// Poller is the readiness-notification contract the event loop consumes:
// edge-triggered notifications for read, write, and error/hangup, O(1)
// add/delete, and an opaque token per registration. Wakeup forces a blocked
// Wait to return early; it never surfaces as an Event.
type Poller interface {
	// Add registers fd for the given readiness kinds in edge-triggered
	// mode. Closed is always reported regardless of flags.
	Add(fd int, flags Flags, token uint32) error

	// Del removes the registration for fd.
	Del(fd int) error

	// Wait fills events with pending notifications and returns the count.
	// timeoutMs < 0 blocks indefinitely, 0 polls without blocking.
	Wait(events []Event, timeoutMs int) (int, error)

	// Wakeup makes a concurrent blocked Wait return. Safe to call from
	// other goroutines; this is the only cross-thread entry point.
	Wakeup() error

	// Close releases the poller's resources.
	Close() error
}
