package buffer

import (
	"bytes"
	"testing"
)

func sum(l *List) int {
	total := 0
	for _, b := range l.bufs {
		total += b.Len()
	}
	return total
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		length  int
		init    []byte
		wantErr error
	}{
		{"plain", 10, 0, nil, nil},
		{"with init", 10, 5, []byte("hello"), nil},
		{"full", 5, 5, []byte("hello"), nil},
		{"zero size", 0, 0, nil, ErrBadSize},
		{"negative size", -1, 0, nil, ErrBadSize},
		{"length over size", 4, 5, []byte("hello"), ErrBadSize},
		{"negative length", 10, -1, nil, ErrBadSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Create(tt.size, tt.length, tt.init)
			if err != tt.wantErr {
				t.Fatalf("Create(%d, %d) error = %v, want %v", tt.size, tt.length, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if b.Len() != tt.length {
				t.Errorf("Len() = %d, want %d", b.Len(), tt.length)
			}
			if b.Cap() != tt.size {
				t.Errorf("Cap() = %d, want %d", b.Cap(), tt.size)
			}
			if tt.init != nil && !bytes.Equal(b.Data(), tt.init[:tt.length]) {
				t.Errorf("Data() = %q, want %q", b.Data(), tt.init[:tt.length])
			}
			b.Release()
		})
	}
}

func TestCreateZeroesPooledSlab(t *testing.T) {
	// dirty a pooled slab, then expect a fresh create to come back zeroed
	b, err := Create(size4k, size4k, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b.Data() {
		b.Data()[i] = 0xff
	}
	b.Release()

	b2, err := Create(size4k, size4k, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b2.Release()
	for i, v := range b2.Data() {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, v)
		}
	}
}

func TestDuplicate(t *testing.T) {
	orig, err := Create(10, 5, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	defer orig.Release()

	dup, err := orig.Duplicate()
	if err != nil {
		t.Fatal(err)
	}
	defer dup.Release()

	if !bytes.Equal(dup.Data(), []byte("hello")) {
		t.Fatalf("dup data = %q, want %q", dup.Data(), "hello")
	}

	// deep copy: mutating the original must not touch the duplicate
	orig.Data()[0] = 'X'
	if dup.Data()[0] != 'h' {
		t.Error("duplicate shares storage with original")
	}
}

func TestSetLen(t *testing.T) {
	b, err := Create(10, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()

	if err := b.SetLen(7); err != nil {
		t.Fatalf("SetLen(7) = %v", err)
	}
	if b.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", b.Len())
	}
	if err := b.SetLen(11); err != ErrBadSize {
		t.Errorf("SetLen(11) = %v, want ErrBadSize", err)
	}
	if err := b.SetLen(-1); err != ErrBadSize {
		t.Errorf("SetLen(-1) = %v, want ErrBadSize", err)
	}
}

func mustBuffer(t *testing.T, data string) *Buffer {
	t.Helper()
	b, err := Create(len(data), len(data), []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestListAppendLen(t *testing.T) {
	l := NewList()
	if l.Len() != 0 {
		t.Fatalf("empty list Len() = %d", l.Len())
	}

	l.Append(mustBuffer(t, "hello"))
	l.Append(mustBuffer(t, " "))
	l.Append(mustBuffer(t, "world"))

	if l.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", l.Len())
	}
	if l.Len() != sum(l) {
		t.Fatalf("cached length %d != member sum %d", l.Len(), sum(l))
	}
}

func TestListRead(t *testing.T) {
	l := NewList()
	l.Append(mustBuffer(t, "hello"))
	l.Append(mustBuffer(t, " world"))

	b, err := l.Read(8)
	if err != nil {
		t.Fatal(err)
	}
	if string(b.Data()) != "hello wo" {
		t.Fatalf("Read(8) = %q", b.Data())
	}
	b.Release()

	// Read must not mutate: same call returns byte-equal content
	b2, err := l.Read(8)
	if err != nil {
		t.Fatal(err)
	}
	if string(b2.Data()) != "hello wo" {
		t.Fatalf("second Read(8) = %q", b2.Data())
	}
	b2.Release()

	if l.Len() != 11 {
		t.Fatalf("list mutated by Read: Len() = %d", l.Len())
	}
}

func TestListReadErrors(t *testing.T) {
	l := NewList()
	l.Append(mustBuffer(t, "hello"))

	if _, err := l.Read(0); err != ErrZeroLength {
		t.Errorf("Read(0) = %v, want ErrZeroLength", err)
	}
	if _, err := l.Read(-3); err != ErrZeroLength {
		t.Errorf("Read(-3) = %v, want ErrZeroLength", err)
	}
	if _, err := l.Read(6); err != ErrShort {
		t.Errorf("Read(6) = %v, want ErrShort", err)
	}
	if l.Len() != 5 {
		t.Fatalf("failed Read mutated list: Len() = %d", l.Len())
	}
}

func TestListClear(t *testing.T) {
	l := NewList()
	l.Append(mustBuffer(t, "hello"))
	l.Append(mustBuffer(t, " world"))

	// drop across a whole buffer plus part of the next
	if err := l.Clear(7); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", l.Len())
	}
	if l.Len() != sum(l) {
		t.Fatalf("cached length %d != member sum %d", l.Len(), sum(l))
	}

	b, err := l.Read(4)
	if err != nil {
		t.Fatal(err)
	}
	if string(b.Data()) != "orld" {
		t.Fatalf("remaining data = %q, want %q", b.Data(), "orld")
	}
	b.Release()
}

func TestListClearErrors(t *testing.T) {
	l := NewList()
	l.Append(mustBuffer(t, "hello"))

	if err := l.Clear(0); err != ErrZeroLength {
		t.Errorf("Clear(0) = %v, want ErrZeroLength", err)
	}
	if err := l.Clear(6); err != ErrShort {
		t.Errorf("Clear(6) = %v, want ErrShort", err)
	}
	if l.Len() != 5 {
		t.Fatalf("failed Clear mutated list: Len() = %d", l.Len())
	}
}

func TestListShortWriteOrder(t *testing.T) {
	// a short socket write clears only the transmitted prefix; the rest
	// must stay intact at the head, in order
	l := NewList()
	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	for off := 0; off < len(payload); off += 2500 {
		b, err := Create(2500, 2500, payload[off:off+2500])
		if err != nil {
			t.Fatal(err)
		}
		l.Append(b)
	}

	if err := l.Clear(4000); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 6000 {
		t.Fatalf("Len() = %d, want 6000", l.Len())
	}

	b, err := l.Read(6000)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release()
	if !bytes.Equal(b.Data(), payload[4000:]) {
		t.Fatal("remaining bytes differ from the untransmitted suffix")
	}
}

func TestListRelease(t *testing.T) {
	l := NewList()
	l.Append(mustBuffer(t, "hello"))
	l.Append(mustBuffer(t, "world"))
	l.Release()
	if l.Len() != 0 {
		t.Fatalf("Len() after Release = %d", l.Len())
	}
	if _, err := l.Read(1); err != ErrShort {
		t.Fatalf("Read after Release = %v, want ErrShort", err)
	}
}
