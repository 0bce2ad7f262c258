// Package interfaces provides internal interface definitions for go-xps.
// These are separate from the public interfaces to avoid circular imports
// between the main package and internal packages.
package interfaces

// Observer is the interface for metrics collection. The loop thread is the
// sole caller, but implementations should still be safe to read from other
// goroutines (use atomics).
type Observer interface {
	ObserveAccept(ok bool)
	ObserveConnClose(peerClosed bool)
	ObserveRecv(bytes uint64, ok bool)
	ObserveSend(bytes uint64, ok bool)
	ObserveWouldBlock()
	ObservePipeDestroy()
	ObserveCompaction(removed int)
}
