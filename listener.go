package xps

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-xps/internal/constants"
	"github.com/ehrlich-b/go-xps/internal/loop"
	"github.com/ehrlich-b/go-xps/internal/poller"
)

// Listener owns a non-blocking listening socket and accepts connections
// until would-block on each readiness notification.
type Listener struct {
	core *Core
	fd   int
	host string
	port int
}

// newListener binds addr ("host:port"), listens, and attaches to the loop.
func newListener(core *Core, addr string) (*Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, WrapError("listen", NewError("listen", ErrCodeResolve, err.Error()))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, NewError("listen", ErrCodeInvalidParams, "invalid port "+portStr)
	}

	sa, err := resolveInet4(host, port)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, WrapError("socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, WrapError("setsockopt", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, WrapError("bind", err)
	}

	if err := unix.Listen(fd, constants.DefaultBacklog); err != nil {
		unix.Close(fd)
		return nil, WrapError("listen", err)
	}

	// port 0 binds an ephemeral port; report the one the kernel picked
	if port == 0 {
		bound, err := unix.Getsockname(fd)
		if err == nil {
			if in4, ok := bound.(*unix.SockaddrInet4); ok {
				port = in4.Port
			}
		}
	}

	l := &Listener{core: core, fd: fd, host: host, port: port}

	err = core.loop.Attach(fd, poller.Readable, loop.Callbacks{Read: l.connectionHandler})
	if err != nil {
		unix.Close(fd)
		return nil, WrapError("attach", err)
	}

	core.listeners.Push(l)
	core.log.Debug().Int("port", port).Msg("created listener")
	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.port
}

// Addr returns the bound "host:port" address.
func (l *Listener) Addr() string {
	return net.JoinHostPort(l.host, strconv.Itoa(l.port))
}

// connectionHandler accepts until would-block, wiring each accepted socket
// into a connection and its pipes.
func (l *Listener) connectionHandler() {
	for {
		fd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			break
		}
		if err != nil {
			l.core.log.Error().Err(err).Msg("accept failed")
			if l.core.obs != nil {
				l.core.obs.ObserveAccept(false)
			}
			return
		}

		conn, err := newConnection(l.core, fd, l)
		if err != nil {
			l.core.log.Error().Err(err).Msg("connection create failed")
			unix.Close(fd)
			if l.core.obs != nil {
				l.core.obs.ObserveAccept(false)
			}
			return
		}

		if err := l.wire(conn); err != nil {
			l.core.log.Error().Err(err).Msg("connection wiring failed")
			conn.close(false)
			continue
		}

		if l.core.obs != nil {
			l.core.obs.ObserveAccept(true)
		}
		l.core.log.Info().Str("remote", conn.remoteAddr).Msg("new connection")
	}
}

// wire pairs the accepted connection's endpoints: either looped back onto
// itself (echo mode, with line reversal) or crossed with a freshly dialed
// upstream (proxy mode, two pipes per pairing).
func (l *Listener) wire(conn *Connection) error {
	if l.core.params.Upstream == "" {
		conn.transform = reverseLine
		_, err := l.core.newPipe(conn.source, conn.sink)
		return err
	}

	up, err := newUpstream(l.core, l.core.params.Upstream)
	if err != nil {
		return err
	}
	if _, err := l.core.newPipe(conn.source, up.sink); err != nil {
		up.close(false)
		return err
	}
	if _, err := l.core.newPipe(up.source, conn.sink); err != nil {
		up.close(false)
		return err
	}
	return nil
}

func (l *Listener) destroy() {
	if err := l.core.loop.Detach(l.fd); err != nil {
		l.core.log.Debug().Err(err).Int("fd", l.fd).Msg("loop detach on destroy")
	}
	l.core.listeners.Remove(l)
	unix.Close(l.fd)
	l.core.log.Debug().Int("port", l.port).Msg("destroyed listener")
}

// resolveInet4 resolves host to an IPv4 socket address.
func resolveInet4(host string, port int) (*unix.SockaddrInet4, error) {
	if host == "" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil {
			return nil, WrapError("resolve", NewError("resolve", ErrCodeResolve, err.Error()))
		}
		for _, cand := range ips {
			if cand.To4() != nil {
				ip = cand
				break
			}
		}
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, NewError("resolve", ErrCodeResolve, "no IPv4 address for "+host)
	}
	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}
