// Package xps is the runtime core of a single-threaded, edge-triggered TCP
// reverse-proxy-style server: an event loop multiplexing many connections
// over a kernel readiness facility, coupled with bounded back-pressured
// pipes that decouple byte producers from byte consumers.
//
// A Core owns the event loop and the process-wide collections of
// listeners, connections, and pipes. Each accepted socket becomes a
// Connection whose source endpoint feeds socket reads into a pipe and
// whose sink endpoint drains a pipe into socket writes. In echo mode a
// connection's source loops back to its own sink; in proxy mode the
// accepted connection is crossed with a dialed upstream over two pipes.
//
// Everything runs on the goroutine that calls Start. Sockets are
// non-blocking and registered edge-triggered; back-pressure needs no
// coordination because a full pipe simply stops draining its upstream
// socket.
package xps
