package xps

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for a Core. All counters are
// atomics so they can be read from outside the loop thread.
type Metrics struct {
	// Connection lifecycle
	Accepted      atomic.Uint64 // Connections accepted
	AcceptErrors  atomic.Uint64 // Failed accepts
	Closed        atomic.Uint64 // Connections closed locally
	PeerClosed    atomic.Uint64 // Connections closed by the peer

	// I/O
	RecvOps    atomic.Uint64 // recv calls that moved bytes
	SendOps    atomic.Uint64 // send calls that moved bytes
	RecvBytes  atomic.Uint64 // Total bytes received
	SentBytes  atomic.Uint64 // Total bytes sent
	RecvErrors atomic.Uint64 // Terminal recv errors
	SendErrors atomic.Uint64 // Terminal send errors

	// Scheduler
	WouldBlocks    atomic.Uint64 // EAGAIN observations
	PipesDestroyed atomic.Uint64 // Terminal pipes reclaimed
	Compactions    atomic.Uint64 // Collection compaction runs
	SlotsReclaimed atomic.Uint64 // Tombstone slots filtered out

	// Lifecycle
	StartTime atomic.Int64 // Metrics creation timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// Uptime returns the time since the metrics were created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(time.Unix(0, m.StartTime.Load()))
}

// ObserveAccept implements interfaces.Observer
func (m *Metrics) ObserveAccept(ok bool) {
	if ok {
		m.Accepted.Add(1)
	} else {
		m.AcceptErrors.Add(1)
	}
}

// ObserveConnClose implements interfaces.Observer
func (m *Metrics) ObserveConnClose(peerClosed bool) {
	if peerClosed {
		m.PeerClosed.Add(1)
	} else {
		m.Closed.Add(1)
	}
}

// ObserveRecv implements interfaces.Observer
func (m *Metrics) ObserveRecv(bytes uint64, ok bool) {
	if ok {
		m.RecvOps.Add(1)
		m.RecvBytes.Add(bytes)
	} else {
		m.RecvErrors.Add(1)
	}
}

// ObserveSend implements interfaces.Observer
func (m *Metrics) ObserveSend(bytes uint64, ok bool) {
	if ok {
		m.SendOps.Add(1)
		m.SentBytes.Add(bytes)
	} else {
		m.SendErrors.Add(1)
	}
}

// ObserveWouldBlock implements interfaces.Observer
func (m *Metrics) ObserveWouldBlock() {
	m.WouldBlocks.Add(1)
}

// ObservePipeDestroy implements interfaces.Observer
func (m *Metrics) ObservePipeDestroy() {
	m.PipesDestroyed.Add(1)
}

// ObserveCompaction implements interfaces.Observer
func (m *Metrics) ObserveCompaction(removed int) {
	m.Compactions.Add(1)
	m.SlotsReclaimed.Add(uint64(removed))
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Accepted       uint64
	AcceptErrors   uint64
	Closed         uint64
	PeerClosed     uint64
	RecvOps        uint64
	SendOps        uint64
	RecvBytes      uint64
	SentBytes      uint64
	RecvErrors     uint64
	SendErrors     uint64
	WouldBlocks    uint64
	PipesDestroyed uint64
	Compactions    uint64
	SlotsReclaimed uint64
	Uptime         time.Duration
}

// Snapshot returns a point-in-time copy of all counters
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Accepted:       m.Accepted.Load(),
		AcceptErrors:   m.AcceptErrors.Load(),
		Closed:         m.Closed.Load(),
		PeerClosed:     m.PeerClosed.Load(),
		RecvOps:        m.RecvOps.Load(),
		SendOps:        m.SendOps.Load(),
		RecvBytes:      m.RecvBytes.Load(),
		SentBytes:      m.SentBytes.Load(),
		RecvErrors:     m.RecvErrors.Load(),
		SendErrors:     m.SendErrors.Load(),
		WouldBlocks:    m.WouldBlocks.Load(),
		PipesDestroyed: m.PipesDestroyed.Load(),
		Compactions:    m.Compactions.Load(),
		SlotsReclaimed: m.SlotsReclaimed.Load(),
		Uptime:         m.Uptime(),
	}
}
