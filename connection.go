package xps

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-xps/internal/buffer"
	"github.com/ehrlich-b/go-xps/internal/constants"
	"github.com/ehrlich-b/go-xps/internal/loop"
	"github.com/ehrlich-b/go-xps/internal/pipe"
	"github.com/ehrlich-b/go-xps/internal/poller"
)

// Connection binds one non-blocking socket to a pipe endpoint pair: the
// source moves socket reads into a pipe, the sink drains a pipe into socket
// writes. In echo mode one pipe joins the connection's source to its own
// sink; in proxy mode two pipes cross it with its client/upstream partner.
type Connection struct {
	core       *Core
	fd         int
	listener   *Listener // nil for outbound connections
	remoteAddr string
	source     *pipe.Source
	sink       *pipe.Sink

	// transform rewrites each received chunk in place before it enters the
	// pipe; nil passes bytes through untouched. Echo mode installs line
	// reversal here.
	transform func([]byte)
}

// newConnection wires fd into the loop and creates the endpoint pair. The
// caller still owns fd on failure.
func newConnection(core *Core, fd int, listener *Listener) (*Connection, error) {
	c := &Connection{
		core:       core,
		fd:         fd,
		listener:   listener,
		remoteAddr: remoteAddrString(fd),
	}
	c.source = pipe.NewSource(c.sourceHandler, c.sourceCloseHandler)
	c.sink = pipe.NewSink(c.sinkHandler, c.sinkCloseHandler)

	err := core.loop.Attach(fd, poller.Readable|poller.Writable, loop.Callbacks{
		Read:  c.loopReadHandler,
		Write: c.loopWriteHandler,
		Close: c.loopCloseHandler,
	})
	if err != nil {
		return nil, fmt.Errorf("attach connection: %w", err)
	}

	core.connections.Push(c)
	core.log.Debug().Int("fd", fd).Str("remote", c.remoteAddr).Msg("created connection")
	return c, nil
}

// RemoteAddr returns the peer address captured at creation.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// loopReadHandler only records readiness; the pipe runtime schedules the
// actual read once the pipe has space.
func (c *Connection) loopReadHandler() {
	c.source.Ready = true
}

func (c *Connection) loopWriteHandler() {
	c.sink.Ready = true
}

func (c *Connection) loopCloseHandler() {
	c.core.log.Info().Str("remote", c.remoteAddr).Msg("connection closed by peer")
	c.close(true)
}

// sourceHandler runs when the source is ready and its pipe writable: recv
// once and classify the result.
func (c *Connection) sourceHandler() {
	buff, err := buffer.Create(constants.DefaultBufferSize, 0, nil)
	if err != nil {
		c.core.log.Debug().Err(err).Msg("buffer create failed")
		return
	}

	// cap the read at the pipe's remaining room so the whole chunk always
	// fits; the progress pass only schedules this handler when room > 0
	room := constants.DefaultBufferSize
	if p := c.source.Pipe(); p != nil && p.Room() < room {
		room = p.Room()
	}
	if room <= 0 {
		buff.Release()
		return
	}

	n, err := unix.Read(c.fd, buff.Slab()[:room])

	// Socket would block
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		buff.Release()
		c.source.Ready = false
		if c.core.obs != nil {
			c.core.obs.ObserveWouldBlock()
		}
		return
	}

	// Socket error
	if err != nil || n < 0 {
		buff.Release()
		c.core.log.Error().Err(err).Str("remote", c.remoteAddr).Msg("recv failed")
		if c.core.obs != nil {
			c.core.obs.ObserveRecv(0, false)
		}
		c.close(false)
		return
	}

	// Peer closed connection
	if n == 0 {
		buff.Release()
		c.close(true)
		return
	}

	buff.SetLen(n)
	if c.transform != nil {
		c.transform(buff.Data())
	}

	if err := c.source.Write(buff); err != nil {
		c.core.log.Error().Err(err).Msg("pipe source write failed")
		buff.Release()
		c.close(false)
		return
	}
	if c.core.obs != nil {
		c.core.obs.ObserveRecv(uint64(n), true)
	}
	buff.Release()
}

// sourceCloseHandler runs when the source's half of the pipe became
// terminal. The connection closes once both halves are done.
func (c *Connection) sourceCloseHandler() {
	if !c.source.Active && !c.sink.Active {
		c.close(false)
	}
}

// sinkHandler runs when the sink is ready and its pipe readable: drain the
// whole buffered length, send, and clear only the transmitted prefix so a
// short write loses nothing.
func (c *Connection) sinkHandler() {
	buff, err := c.sink.Read(c.sink.Pipe().Len())
	if err != nil {
		c.core.log.Error().Err(err).Msg("pipe sink read failed")
		return
	}

	n, err := unix.SendmsgN(c.fd, buff.Data(), nil, nil, unix.MSG_NOSIGNAL)
	buff.Release()

	// Socket would block
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		c.sink.Ready = false
		if c.core.obs != nil {
			c.core.obs.ObserveWouldBlock()
		}
		return
	}

	// Socket error
	if err != nil {
		c.core.log.Error().Err(err).Str("remote", c.remoteAddr).Msg("send failed")
		if c.core.obs != nil {
			c.core.obs.ObserveSend(0, false)
		}
		c.close(false)
		return
	}

	if n == 0 {
		return
	}

	if err := c.sink.Clear(n); err != nil {
		c.core.log.Error().Err(err).Int("n", n).Msg("failed to clear sent bytes from pipe")
	}
	if c.core.obs != nil {
		c.core.obs.ObserveSend(uint64(n), true)
	}
}

func (c *Connection) sinkCloseHandler() {
	if !c.sink.Active && !c.source.Active {
		c.close(false)
	}
}

// close is the consolidated close: the single teardown path guaranteeing
// loop detachment, socket closure, and endpoint destruction in order and
// exactly once. The pipes persist until their own terminal condition so the
// other side of a pairing can finish draining.
func (c *Connection) close(peerClosed bool) {
	if peerClosed {
		c.core.log.Info().Str("remote", c.remoteAddr).Msg("peer closed connection")
	} else {
		c.core.log.Info().Str("remote", c.remoteAddr).Msg("closing connection")
	}
	if c.core.obs != nil {
		c.core.obs.ObserveConnClose(peerClosed)
	}
	c.destroy()
}

func (c *Connection) destroy() {
	c.core.connections.Remove(c)
	if err := c.core.loop.Detach(c.fd); err != nil {
		c.core.log.Debug().Err(err).Int("fd", c.fd).Msg("loop detach on destroy")
	}
	unix.Close(c.fd)
	c.source.Destroy()
	c.sink.Destroy()
	c.core.log.Debug().Int("fd", c.fd).Msg("destroyed connection")
}

// reverseLine reverses a chunk in place; a trailing newline stays last.
func reverseLine(data []byte) {
	end := len(data) - 1
	if end >= 0 && data[end] == '\n' {
		end--
	}
	for start := 0; start < end; start, end = start+1, end-1 {
		data[start], data[end] = data[end], data[start]
	}
}

// remoteAddrString stringifies the peer address of a connected socket.
func remoteAddrString(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return "unknown"
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	default:
		return "unknown"
	}
}
