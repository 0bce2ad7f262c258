//go:build linux

package xps

import (
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-xps/internal/logging"
	"github.com/ehrlich-b/go-xps/internal/poller"
)

// newTestCore builds a core over a fake poller so ticks are deterministic:
// the fake returns no events and never blocks, leaving the pipe progress
// pass as the only actor.
func newTestCore(t *testing.T, thresh int) (*Core, *poller.Fake) {
	t.Helper()
	fake := poller.NewFake()
	params := DefaultParams()
	params.PipeBuffThresh = thresh
	params.Logger = logging.Nop()
	params.Poller = fake
	c, err := NewCore(params)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)
	return c, fake
}

// pair returns a connected non-blocking socketpair. Nothing is cleaned up
// here: callers close the b side, and the a side belongs to the connection
// under test.
func pair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func TestPipeDestroyedTickAfterEndpointsGone(t *testing.T) {
	c, _ := newTestCore(t, DefaultPipeBuffThresh)
	a, b := pair(t)
	defer unix.Close(b)

	conn, err := newConnection(c, a, nil)
	require.NoError(t, err)
	_, err = c.newPipe(conn.source, conn.sink)
	require.NoError(t, err)
	require.Equal(t, 1, c.PipeCount())

	// destroying the connection detaches both endpoints; the pipe itself
	// survives until the next tick reclaims it
	conn.destroy()
	require.Equal(t, 0, c.ConnectionCount())
	require.Equal(t, 1, c.PipeCount())

	c.loop.Tick()
	require.Equal(t, 0, c.PipeCount())
}

func TestConnectionCompaction(t *testing.T) {
	c, _ := newTestCore(t, DefaultPipeBuffThresh)

	var bSides []int
	for i := 0; i < 33; i++ {
		a, b := pair(t)
		bSides = append(bSides, b)
		conn, err := newConnection(c, a, nil)
		require.NoError(t, err)
		conn.destroy()
	}
	defer func() {
		for _, b := range bSides {
			unix.Close(b)
		}
	}()

	require.Equal(t, 33, c.connections.Nulls())
	require.Equal(t, 33, c.connections.Len())

	c.loop.Tick()
	require.Zero(t, c.connections.Nulls())
	require.Zero(t, c.connections.Len())

	// the 34th registration occupies the first slot
	a, b := pair(t)
	bSides = append(bSides, b)
	conn, err := newConnection(c, a, nil)
	require.NoError(t, err)
	require.Equal(t, 0, c.connections.Index(conn))
}

func TestAttachFailureRetainsNoConnection(t *testing.T) {
	c, fake := newTestCore(t, DefaultPipeBuffThresh)
	a, b := pair(t)
	defer unix.Close(a)
	defer unix.Close(b)

	fake.FailNextAdd()
	_, err := newConnection(c, a, nil)
	require.Error(t, err)
	require.Zero(t, c.ConnectionCount())
}

func TestBackPressureStallsSource(t *testing.T) {
	const thresh = 8192
	c, _ := newTestCore(t, thresh)
	a, b := pair(t)
	defer unix.Close(b)

	conn, err := newConnection(c, a, nil)
	require.NoError(t, err)
	p, err := c.newPipe(conn.source, conn.sink)
	require.NoError(t, err)

	// feed four threshold's worth of zeros into the peer side
	chunk := make([]byte, 4096)
	for i := 0; i < 8; i++ {
		_, err := unix.Write(b, chunk)
		require.NoError(t, err)
	}

	// the sink never becomes ready: the source fills the pipe to exactly
	// the threshold and stalls
	conn.source.Ready = true
	for i := 0; i < 10; i++ {
		c.progressPipes()
	}
	require.Equal(t, thresh, p.Len())
	require.False(t, p.Writable())

	// renewed kernel read-readiness does not grow the pipe further
	conn.source.Ready = true
	c.progressPipes()
	require.Equal(t, thresh, p.Len())

	// once the sink drains, the source resumes
	conn.sink.Ready = true
	c.progressPipes()
	require.Less(t, p.Len(), thresh)
	// with the sink idle, the resumed source refills the pipe (a ready sink
	// would drain the refill within the same pass)
	conn.sink.Ready = false
	c.progressPipes()
	require.Greater(t, p.Len(), 0)
}

func TestPeerCloseConsolidatedClose(t *testing.T) {
	c, _ := newTestCore(t, DefaultPipeBuffThresh)
	a, b := pair(t)

	conn, err := newConnection(c, a, nil)
	require.NoError(t, err)
	_, err = c.newPipe(conn.source, conn.sink)
	require.NoError(t, err)

	payload := make([]byte, 100)
	_, err = unix.Write(b, payload)
	require.NoError(t, err)
	require.NoError(t, unix.Close(b))

	// first pass pulls the 100 bytes; the second observes recv == 0 and
	// runs the consolidated close
	conn.source.Ready = true
	c.progressPipes()
	require.Equal(t, 1, c.ConnectionCount())
	c.progressPipes()
	require.Zero(t, c.ConnectionCount())

	// both endpoints detached: the pipe is reclaimed next tick even with
	// bytes still buffered
	c.loop.Tick()
	require.Zero(t, c.PipeCount())
}

func TestEchoWireInstallsReversal(t *testing.T) {
	c, _ := newTestCore(t, DefaultPipeBuffThresh)
	a, b := pair(t)
	defer unix.Close(b)

	conn, err := newConnection(c, a, nil)
	require.NoError(t, err)

	l := &Listener{core: c, fd: -1, host: "127.0.0.1", port: 0}
	require.NoError(t, l.wire(conn))
	require.NotNil(t, conn.transform)
	require.Equal(t, 1, c.PipeCount())

	p := conn.source.Pipe()
	require.Same(t, p, conn.sink.Pipe())
}

func TestReverseLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello\n", "olleh\n"},
		{"hello", "olleh"},
		{"a\n", "a\n"},
		{"", ""},
		{"\n", "\n"},
		{"ab", "ba"},
	}
	for _, tt := range tests {
		data := []byte(tt.in)
		reverseLine(data)
		if string(data) != tt.want {
			t.Errorf("reverseLine(%q) = %q, want %q", tt.in, data, tt.want)
		}
	}
}

func TestCoreDestroyIdempotent(t *testing.T) {
	c, _ := newTestCore(t, DefaultPipeBuffThresh)
	a, b := pair(t)
	defer unix.Close(b)

	_, err := newConnection(c, a, nil)
	require.NoError(t, err)

	c.Destroy()
	require.Zero(t, c.ConnectionCount())
	c.Destroy()
}
