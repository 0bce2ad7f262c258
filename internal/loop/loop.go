// Package loop implements the single-threaded event loop: a registry of
// file-descriptor callbacks over a readiness poller, a tick that alternates
// between pipe progress and kernel waits, and dispatch that tolerates
// callbacks destroying peer registrations mid-batch.
package loop

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ehrlich-b/go-xps/internal/constants"
	"github.com/ehrlich-b/go-xps/internal/logging"
	"github.com/ehrlich-b/go-xps/internal/poller"
	"github.com/ehrlich-b/go-xps/internal/slots"
)

// ErrNotAttached is returned by Detach when no record matches the fd.
var ErrNotAttached = errors.New("loop: fd not attached")

// Callbacks are the per-registration handlers. Dispatch order within one
// event is fixed: Close, then Read, then Write, so terminal errors observed
// by the kernel are honoured before new work is scheduled. Any callback may
// destroy arbitrary connections, including the one being dispatched.
type Callbacks struct {
	Read  func()
	Write func()
	Close func()
}

// record pairs an fd with its callbacks. The token is echoed through the
// poller's opaque per-registration data and re-checked before dispatch, so
// a stale event for a recycled fd can never reach a new record's callbacks.
type record struct {
	fd    int
	token uint32
	cbs   Callbacks
}

// Config configures a Loop.
type Config struct {
	// Poller supplies readiness notifications; nil selects epoll.
	Poller poller.Poller

	// Logger; nil selects a no-op logger.
	Logger *zerolog.Logger

	// Progress is the pipe progress pass, run at the top of every tick.
	// It returns whether any pipe endpoint can still make progress, which
	// turns the kernel wait into a zero-timeout poll. May be nil.
	Progress func() bool

	// Compact is the owner's collection compaction hook, run at the end of
	// every tick, never inside dispatch. May be nil.
	Compact func()
}

// Loop is the main driver. All methods except Stop must be called from the
// loop thread; the loop thread is the sole mutator of every record.
type Loop struct {
	poller   poller.Poller
	log      *zerolog.Logger
	progress func() bool
	compact  func()

	events    slots.List[*record]
	nextToken uint32
	evbuf     []poller.Event

	stopped atomic.Bool
}

// New creates a loop over the configured poller.
func New(config Config) (*Loop, error) {
	p := config.Poller
	if p == nil {
		var err error
		p, err = poller.NewEpoll()
		if err != nil {
			return nil, fmt.Errorf("create poller: %w", err)
		}
	}
	log := config.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Loop{
		poller:   p,
		log:      log,
		progress: config.Progress,
		compact:  config.Compact,
		evbuf:    make([]poller.Event, constants.MaxEpollEvents),
	}, nil
}

// Attach registers fd with the poller and records its callbacks. On failure
// no record is retained.
func (l *Loop) Attach(fd int, flags poller.Flags, cbs Callbacks) error {
	l.nextToken++
	rec := &record{fd: fd, token: l.nextToken, cbs: cbs}
	if err := l.poller.Add(fd, flags, rec.token); err != nil {
		return fmt.Errorf("attach fd %d: %w", fd, err)
	}
	l.events.Push(rec)
	l.log.Debug().Int("fd", fd).Msg("attached fd to loop")
	return nil
}

// Detach removes the registration for fd from the poller and tombstones its
// record slot. Fails if no record matches.
func (l *Loop) Detach(fd int) error {
	for i := 0; i < l.events.Len(); i++ {
		rec := l.events.At(i)
		if rec == nil || rec.fd != fd {
			continue
		}
		if err := l.poller.Del(fd); err != nil {
			l.log.Error().Err(err).Int("fd", fd).Msg("poller delete failed")
			return err
		}
		l.events.Remove(rec)
		l.log.Debug().Int("fd", fd).Msg("detached fd from loop")
		return nil
	}
	l.log.Error().Int("fd", fd).Msg("no matching fd in the event loop to detach")
	return ErrNotAttached
}

// Attached reports whether fd currently has a live record.
func (l *Loop) Attached(fd int) bool {
	for i := 0; i < l.events.Len(); i++ {
		if rec := l.events.At(i); rec != nil && rec.fd == fd {
			return true
		}
	}
	return false
}

// Tick runs one loop iteration: progress pipes, wait on the kernel with a
// zero timeout when pipe work is pending, dispatch the ready batch, then
// compact the tombstoned collections.
func (l *Loop) Tick() {
	hasWork := false
	if l.progress != nil {
		hasWork = l.progress()
	}

	timeout := -1
	if hasWork || l.stopped.Load() {
		timeout = 0
	}

	n, err := l.poller.Wait(l.evbuf, timeout)
	if err != nil {
		// treated as spurious
		l.log.Error().Err(err).Msg("poller wait error")
	}

	for i := 0; i < n; i++ {
		l.dispatch(l.evbuf[i])
	}

	if l.compact != nil {
		l.compact()
	}
	l.events.Compact(constants.DefaultNullsThresh)
}

// dispatch delivers one readiness event. The record is re-validated against
// the registry first: a callback earlier in this batch may have detached
// this very fd. Between the close, read, and write phases the slot is
// re-read so later callbacks never fire after the record is gone.
func (l *Loop) dispatch(ev poller.Event) {
	idx := -1
	for i := 0; i < l.events.Len(); i++ {
		rec := l.events.At(i)
		if rec != nil && rec.fd == ev.Fd && rec.token == ev.Token {
			idx = i
			break
		}
	}
	if idx == -1 {
		l.log.Debug().Int("fd", ev.Fd).Msg("event record not found, skipping")
		return
	}

	rec := l.events.At(idx)
	if ev.Flags&poller.Closed != 0 && rec.cbs.Close != nil {
		l.log.Debug().Int("fd", ev.Fd).Msg("event: close")
		rec.cbs.Close()
	}

	rec = l.events.At(idx)
	if rec != nil && ev.Flags&poller.Readable != 0 && rec.cbs.Read != nil {
		l.log.Debug().Int("fd", ev.Fd).Msg("event: read")
		rec.cbs.Read()
	}

	rec = l.events.At(idx)
	if rec != nil && ev.Flags&poller.Writable != 0 && rec.cbs.Write != nil {
		l.log.Debug().Int("fd", ev.Fd).Msg("event: write")
		rec.cbs.Write()
	}
}

// Run ticks until Stop is called. Under normal operation it does not
// return.
func (l *Loop) Run() {
	l.log.Debug().Msg("starting to run loop")
	for !l.stopped.Load() {
		l.Tick()
	}
	l.log.Debug().Msg("loop stopped")
}

// Stop makes Run return after the current tick. It is the only method safe
// to call from another goroutine; actual teardown happens on the loop
// thread after Run returns.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	if err := l.poller.Wakeup(); err != nil {
		l.log.Error().Err(err).Msg("poller wakeup failed")
	}
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}

// Destroy removes every remaining registration and closes the poller.
func (l *Loop) Destroy() {
	for i := 0; i < l.events.Len(); i++ {
		rec := l.events.At(i)
		if rec == nil {
			continue
		}
		if err := l.poller.Del(rec.fd); err != nil {
			l.log.Debug().Err(err).Int("fd", rec.fd).Msg("poller delete on destroy")
		}
		l.events.Remove(rec)
	}
	if err := l.poller.Close(); err != nil {
		l.log.Error().Err(err).Msg("poller close failed")
	}
	l.log.Debug().Msg("destroyed loop")
}
