// Package pipe implements bounded single-producer/single-consumer byte
// queues between a source endpoint and a sink endpoint, plus the per-tick
// progress pass that schedules endpoint handlers based on readiness and
// queue fullness.
package pipe

import (
	"github.com/rs/zerolog"

	"github.com/ehrlich-b/go-xps/internal/buffer"
	"github.com/ehrlich-b/go-xps/internal/logging"
)

// endpoint is the shared shape of Source and Sink: readiness and liveness
// flags plus the two callbacks. The owner is captured by the callbacks'
// closures; the runtime never needs to know its type.
type endpoint struct {
	pipe    *Pipe
	handler func()
	closeCb func()

	// Ready reports the kernel has signalled the underlying resource can
	// make progress. Cleared by the handler on would-block.
	Ready bool

	// Active reports the logical peer relationship is still engaged. The
	// progress pass clears it when the endpoint's half becomes terminal.
	Active bool
}

// Source is the writer endpoint of a Pipe.
type Source struct {
	endpoint
}

// Sink is the reader endpoint of a Pipe.
type Sink struct {
	endpoint
}

// NewSource creates a detached, inactive source. The handler is called by
// the progress pass to move bytes into the pipe; closeCb when the source's
// half of the pipe is being torn down.
func NewSource(handler, closeCb func()) *Source {
	return &Source{endpoint{handler: handler, closeCb: closeCb}}
}

// NewSink creates a detached, inactive sink.
func NewSink(handler, closeCb func()) *Sink {
	return &Sink{endpoint{handler: handler, closeCb: closeCb}}
}

// Pipe returns the pipe this source is attached to, or nil.
func (s *Source) Pipe() *Pipe { return s.pipe }

// Pipe returns the pipe this sink is attached to, or nil.
func (s *Sink) Pipe() *Pipe { return s.pipe }

// Destroy detaches the source from its pipe, if attached. The source must
// not be used afterwards.
func (s *Source) Destroy() {
	if s.pipe != nil {
		s.pipe.DetachSource()
	}
}

// Destroy detaches the sink from its pipe, if attached.
func (s *Sink) Destroy() {
	if s.pipe != nil {
		s.pipe.DetachSink()
	}
}

// Write appends a duplicate of buff to the pipe; the caller keeps ownership
// of the original. Fails when the source is detached or the pipe is not
// writable; a buffer that would cross the threshold is rejected wholesale,
// never split.
func (s *Source) Write(buff *buffer.Buffer) error {
	if s.pipe == nil {
		return ErrDetached
	}
	if !s.pipe.Writable() {
		return ErrNotWritable
	}
	// reject wholesale: a buffer that would cross the threshold is never
	// split
	if s.pipe.buffList.Len()+buff.Len() > s.pipe.buffThresh {
		return ErrNotWritable
	}
	dup, err := buff.Duplicate()
	if err != nil {
		return err
	}
	s.pipe.buffList.Append(dup)
	return nil
}

// Read assembles the first n bytes of the pipe into a new buffer without
// mutating the pipe. Fails when detached or n exceeds the buffered length.
func (s *Sink) Read(n int) (*buffer.Buffer, error) {
	if s.pipe == nil {
		return nil, ErrDetached
	}
	return s.pipe.buffList.Read(n)
}

// Clear drops the first n bytes of the pipe. A short socket write clears
// only the transmitted prefix; reading and clearing are separate so partial
// writes never lose bytes on would-block.
func (s *Sink) Clear(n int) error {
	if s.pipe == nil {
		return ErrDetached
	}
	return s.pipe.buffList.Clear(n)
}

// Pipe is a bounded BufferList with at most one source and one sink. The
// pipe does not own its endpoints; it is destroyed once both have detached,
// or forcibly on shutdown.
type Pipe struct {
	buffList   *buffer.List
	buffThresh int
	source     *Source
	sink       *Sink
	log        *zerolog.Logger
}

// New creates a pipe with the source and sink already attached and active.
func New(buffThresh int, source *Source, sink *Sink, log *zerolog.Logger) (*Pipe, error) {
	if log == nil {
		log = logging.Nop()
	}
	p := &Pipe{
		buffList:   buffer.NewList(),
		buffThresh: buffThresh,
		log:        log,
	}
	if err := p.AttachSource(source); err != nil {
		return nil, err
	}
	if err := p.AttachSink(sink); err != nil {
		return nil, err
	}
	source.Active = true
	sink.Active = true
	p.log.Debug().Msg("created pipe")
	return p, nil
}

// Len returns the buffered byte count.
func (p *Pipe) Len() int { return p.buffList.Len() }

// Thresh returns the back-pressure threshold.
func (p *Pipe) Thresh() int { return p.buffThresh }

// Room returns how many bytes fit before the threshold.
func (p *Pipe) Room() int { return p.buffThresh - p.buffList.Len() }

// Readable reports whether the pipe holds any bytes.
func (p *Pipe) Readable() bool { return p.buffList.Len() > 0 }

// Writable reports whether the pipe is below its threshold.
func (p *Pipe) Writable() bool { return p.buffList.Len() < p.buffThresh }

// Source returns the attached source, or nil.
func (p *Pipe) Source() *Source { return p.source }

// Sink returns the attached sink, or nil.
func (p *Pipe) Sink() *Sink { return p.sink }

// AttachSource attaches a source; fails if one is already attached.
func (p *Pipe) AttachSource(source *Source) error {
	if p.source != nil {
		return ErrSourceAttached
	}
	p.source = source
	source.pipe = p
	return nil
}

// DetachSource detaches the current source, nulling both sides.
func (p *Pipe) DetachSource() error {
	if p.source == nil {
		return ErrNoSource
	}
	p.source.pipe = nil
	p.source = nil
	return nil
}

// AttachSink attaches a sink; fails if one is already attached.
func (p *Pipe) AttachSink(sink *Sink) error {
	if p.sink != nil {
		return ErrSinkAttached
	}
	p.sink = sink
	sink.pipe = p
	return nil
}

// DetachSink detaches the current sink, nulling both sides.
func (p *Pipe) DetachSink() error {
	if p.sink == nil {
		return ErrNoSink
	}
	p.sink.pipe = nil
	p.sink = nil
	return nil
}

// Destroy releases the buffered bytes. Endpoints still attached on a forced
// shutdown are detached first; the pipe never owns them.
func (p *Pipe) Destroy() {
	if p.source != nil {
		p.DetachSource()
	}
	if p.sink != nil {
		p.DetachSink()
	}
	p.buffList.Release()
	p.log.Debug().Msg("destroyed pipe")
}
