// Package buffer implements owned byte slabs and ordered slab queues.
// A Buffer owns a contiguous byte region; a List is a FIFO of Buffers with
// cached total length, supporting head-aligned reads and prefix drops.
package buffer

import "errors"

var (
	// ErrBadSize is returned when a buffer is created or resized with an
	// out-of-range size.
	ErrBadSize = errors.New("buffer: bad size")

	// ErrShort is returned when an operation asks for more bytes than the
	// list holds.
	ErrShort = errors.New("buffer: not enough bytes")

	// ErrZeroLength is returned when a read or clear of zero bytes is
	// requested.
	ErrZeroLength = errors.New("buffer: zero length")
)

// Buffer owns a contiguous byte region of fixed capacity with a logical
// length. The region may have a consumed prefix after a partial Clear on
// the owning List.
type Buffer struct {
	slab   []byte // full allocation, possibly pooled
	off    int    // consumed prefix
	length int    // logical length, off+length <= len(slab)
	pooled bool
}

// Create allocates a buffer of the given capacity. If init is non-nil its
// first length bytes are copied in; otherwise the buffer starts at the given
// logical length with zeroed content.
func Create(size, length int, init []byte) (*Buffer, error) {
	if size <= 0 || length < 0 || length > size {
		return nil, ErrBadSize
	}
	slab, pooled := getSlab(size)
	b := &Buffer{slab: slab, length: length, pooled: pooled}
	if init != nil {
		copy(b.slab, init[:length])
	} else if pooled && length > 0 {
		// pooled slabs carry stale content
		clear(b.slab[:length])
	}
	return b, nil
}

// Duplicate returns a deep copy. The copy's capacity equals the logical
// length of the original.
func (b *Buffer) Duplicate() (*Buffer, error) {
	if b.length == 0 {
		// zero-length duplicates keep a minimal slab
		return Create(1, 0, nil)
	}
	return Create(b.length, b.length, b.Data())
}

// Data returns the logical content of the buffer.
func (b *Buffer) Data() []byte {
	return b.slab[b.off : b.off+b.length]
}

// Slab returns the full writable region starting at the consumed prefix.
// A reader fills it and then calls SetLen with the byte count.
func (b *Buffer) Slab() []byte {
	return b.slab[b.off:]
}

// Len returns the logical length.
func (b *Buffer) Len() int {
	return b.length
}

// Cap returns the capacity available past the consumed prefix.
func (b *Buffer) Cap() int {
	return len(b.slab) - b.off
}

// SetLen sets the logical length after a direct fill of Slab.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > b.Cap() {
		return ErrBadSize
	}
	b.length = n
	return nil
}

// advance consumes the first n bytes. Callers guarantee n <= length.
func (b *Buffer) advance(n int) {
	b.off += n
	b.length -= n
}

// Release returns the slab to the pool when pooled. The buffer must not be
// used afterwards.
func (b *Buffer) Release() {
	if b.pooled {
		putSlab(b.slab)
	}
	b.slab = nil
	b.off = 0
	b.length = 0
}

// List is an ordered FIFO of Buffers with cached total length.
type List struct {
	bufs   []*Buffer
	length int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

// Len returns the total byte count across all member buffers.
func (l *List) Len() int {
	return l.length
}

// Append transfers ownership of the buffer to the list.
func (l *List) Append(b *Buffer) {
	l.bufs = append(l.bufs, b)
	l.length += b.Len()
}

// Read assembles the first n bytes into a freshly allocated buffer without
// mutating the list. Two consecutive reads of the same n return byte-equal
// buffers.
func (l *List) Read(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, ErrZeroLength
	}
	if n > l.length {
		return nil, ErrShort
	}
	out, err := Create(n, n, nil)
	if err != nil {
		return nil, err
	}
	dst := out.Data()
	for _, b := range l.bufs {
		if len(dst) == 0 {
			break
		}
		dst = dst[copy(dst, b.Data()):]
	}
	return out, nil
}

// Clear drops the first n bytes, releasing fully consumed buffers and
// truncating a partially consumed head.
func (l *List) Clear(n int) error {
	if n <= 0 {
		return ErrZeroLength
	}
	if n > l.length {
		return ErrShort
	}
	l.length -= n
	for n > 0 {
		head := l.bufs[0]
		if n < head.Len() {
			head.advance(n)
			return nil
		}
		n -= head.Len()
		head.Release()
		l.bufs[0] = nil
		l.bufs = l.bufs[1:]
	}
	return nil
}

// Release drops all buffers and empties the list.
func (l *List) Release() {
	for i, b := range l.bufs {
		b.Release()
		l.bufs[i] = nil
	}
	l.bufs = nil
	l.length = 0
}
