package xps

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// newUpstream dials addr with a non-blocking connect and wraps the socket
// in a Connection with no listener back-reference. The connect completes
// asynchronously; the loop's write readiness on the socket signals it.
func newUpstream(core *Core, addr string) (*Connection, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, WrapError("connect", NewError("connect", ErrCodeResolve, err.Error()))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, NewError("connect", ErrCodeInvalidParams, "invalid port "+portStr)
	}

	sa, err := resolveInet4(host, port)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, WrapError("socket", err)
	}

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, WrapError("connect", err)
	}

	conn, err := newConnection(core, fd, nil)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	core.log.Debug().Str("addr", addr).Msg("upstream connection created")
	return conn, nil
}
