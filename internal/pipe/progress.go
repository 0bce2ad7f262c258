package pipe

import (
	"github.com/ehrlich-b/go-xps/internal/interfaces"
	"github.com/ehrlich-b/go-xps/internal/slots"
)

// Progress runs the per-tick scheduler over the pipe collection, invoked by
// the loop before it blocks on the kernel. For each pipe, in slot order:
//
//  1. both endpoints absent: the pipe is terminal, destroy it
//  2. source present, ready, pipe writable: run the source handler
//  3. sink present, ready, pipe readable: run the sink handler
//  4. source present, sink absent: the source's half is dead; deactivate
//     and run its close callback, the owner decides what follows
//  5. sink present, source absent, pipe empty: the sink has flushed
//     everything it will ever get; deactivate and run its close callback
//
// A sink with no upstream but still-buffered bytes keeps draining; it only
// becomes terminal on empty. Because step 2 gates on writability, a full
// pipe stalls its upstream read and back-pressure propagates through the
// kernel socket buffers with no explicit coordination.
//
// After the mutation sweep a read-only sweep reports whether any endpoint
// could still make progress; the loop uses it to pick a zero timeout over a
// blocking wait.
func Progress(pipes *slots.List[*Pipe], obs interfaces.Observer) bool {
	for i := 0; i < pipes.Len(); i++ {
		p := pipes.At(i)
		if p == nil {
			continue
		}

		if p.source == nil && p.sink == nil {
			p.log.Debug().Msg("pipe has no source and sink")
			pipes.Remove(p)
			p.Destroy()
			if obs != nil {
				obs.ObservePipeDestroy()
			}
			continue
		}

		if p.source != nil && p.source.Ready && p.Writable() {
			p.source.handler()
		}

		if p.sink != nil && p.sink.Ready && p.Readable() {
			p.sink.handler()
		}

		if p.source != nil && p.sink == nil {
			p.source.Active = false
			p.source.closeCb()
		}

		if p.sink != nil && p.source == nil && !p.Readable() {
			p.sink.Active = false
			p.sink.closeCb()
		}
	}

	for i := 0; i < pipes.Len(); i++ {
		p := pipes.At(i)
		if p == nil {
			continue
		}
		if p.source != nil && p.source.Ready && p.Writable() {
			return true
		}
		if p.sink != nil && p.sink.Ready && p.Readable() {
			return true
		}
		if p.source != nil && p.sink == nil {
			return true
		}
		if p.sink != nil && p.source == nil && !p.Readable() {
			return true
		}
	}
	return false
}
