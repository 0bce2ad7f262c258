package xps

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehrlich-b/go-xps/internal/constants"
	"github.com/ehrlich-b/go-xps/internal/interfaces"
	"github.com/ehrlich-b/go-xps/internal/logging"
	"github.com/ehrlich-b/go-xps/internal/loop"
	"github.com/ehrlich-b/go-xps/internal/pipe"
	"github.com/ehrlich-b/go-xps/internal/poller"
	"github.com/ehrlich-b/go-xps/internal/slots"
)

// CoreParams contains parameters for creating a Core
type CoreParams struct {
	// ListenAddrs are the "host:port" addresses to listen on. Port 0 binds
	// an ephemeral port, queryable via Listener.Port.
	ListenAddrs []string

	// Upstream is the "host:port" address proxied connections are dialed
	// to. Empty selects echo mode: each accepted connection's source feeds
	// its own sink through one pipe, with line reversal applied.
	Upstream string

	// PipeBuffThresh is the per-pipe back-pressure threshold in bytes
	// (default: 1MB)
	PipeBuffThresh int

	// Logger; nil selects the default logger
	Logger *zerolog.Logger

	// Observer receives metrics callbacks; may be nil
	Observer interfaces.Observer

	// Poller overrides the readiness backend; nil selects epoll
	Poller poller.Poller
}

// DefaultParams returns default core parameters
func DefaultParams() CoreParams {
	return CoreParams{
		PipeBuffThresh: constants.DefaultPipeBuffThresh,
	}
}

// Core owns the event loop and the process-wide collections of listeners,
// connections, and pipes. The loop thread is the sole mutator of all of
// them; removal tombstones a slot and compaction runs only between ticks.
type Core struct {
	params CoreParams
	log    *zerolog.Logger
	obs    interfaces.Observer
	loop   *loop.Loop

	listeners   slots.List[*Listener]
	connections slots.List[*Connection]
	pipes       slots.List[*pipe.Pipe]

	destroyed bool
}

// NewCore creates a core and its event loop.
func NewCore(params CoreParams) (*Core, error) {
	if params.PipeBuffThresh <= 0 {
		params.PipeBuffThresh = constants.DefaultPipeBuffThresh
	}
	log := params.Logger
	if log == nil {
		log = logging.Default()
	}

	c := &Core{
		params: params,
		log:    log,
		obs:    params.Observer,
	}

	lp, err := loop.New(loop.Config{
		Poller:   params.Poller,
		Logger:   log,
		Progress: c.progressPipes,
		Compact:  c.compact,
	})
	if err != nil {
		return nil, fmt.Errorf("create loop: %w", err)
	}
	c.loop = lp

	log.Debug().Msg("created core")
	return c, nil
}

// Start creates the configured listeners and runs the loop. It returns an
// error if a listener cannot be created, and otherwise only after Stop is
// called; teardown still belongs to the caller via Destroy, on this same
// goroutine.
func (c *Core) Start() error {
	c.log.Debug().Msg("starting core")
	for _, addr := range c.params.ListenAddrs {
		l, err := newListener(c, addr)
		if err != nil {
			return fmt.Errorf("listener %s: %w", addr, err)
		}
		c.log.Info().Str("addr", l.Addr()).Msg("server listening")
	}
	c.loop.Run()
	return nil
}

// Stop makes Start return after the current tick. Safe to call from other
// goroutines, including a signal handler bridge.
func (c *Core) Stop() {
	c.loop.Stop()
}

// Destroy tears down connections, listeners, and pipes in that order, then
// the loop. Must run on the loop goroutine, after Start has returned.
func (c *Core) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true

	for i := 0; i < c.connections.Len(); i++ {
		if conn := c.connections.At(i); conn != nil {
			conn.destroy()
		}
	}
	for i := 0; i < c.listeners.Len(); i++ {
		if l := c.listeners.At(i); l != nil {
			l.destroy()
		}
	}
	for i := 0; i < c.pipes.Len(); i++ {
		if p := c.pipes.At(i); p != nil {
			if src := p.Source(); src != nil {
				src.Destroy()
			}
			if snk := p.Sink(); snk != nil {
				snk.Destroy()
			}
			c.pipes.Remove(p)
			p.Destroy()
		}
	}
	c.loop.Destroy()

	c.log.Debug().Msg("destroyed core")
}

// Loop exposes the event loop for drivers that tick manually.
func (c *Core) Loop() *loop.Loop {
	return c.loop
}

// ConnectionCount returns the number of live connections.
func (c *Core) ConnectionCount() int {
	n := 0
	for i := 0; i < c.connections.Len(); i++ {
		if c.connections.At(i) != nil {
			n++
		}
	}
	return n
}

// PipeCount returns the number of live pipes.
func (c *Core) PipeCount() int {
	n := 0
	for i := 0; i < c.pipes.Len(); i++ {
		if c.pipes.At(i) != nil {
			n++
		}
	}
	return n
}

// newPipe creates a pipe over the given endpoints and registers it.
func (c *Core) newPipe(source *pipe.Source, sink *pipe.Sink) (*pipe.Pipe, error) {
	p, err := pipe.New(c.params.PipeBuffThresh, source, sink, c.log)
	if err != nil {
		return nil, err
	}
	c.pipes.Push(p)
	return p, nil
}

// progressPipes is the loop's per-tick pipe progress pass.
func (c *Core) progressPipes() bool {
	return pipe.Progress(&c.pipes, c.obs)
}

// compact filters tombstones from the core collections once their null
// counts exceed the threshold. Runs only between ticks.
func (c *Core) compact() {
	for _, removed := range []int{
		c.connections.Compact(constants.DefaultNullsThresh),
		c.listeners.Compact(constants.DefaultNullsThresh),
		c.pipes.Compact(constants.DefaultNullsThresh),
	} {
		if removed > 0 && c.obs != nil {
			c.obs.ObserveCompaction(removed)
		}
	}
}
