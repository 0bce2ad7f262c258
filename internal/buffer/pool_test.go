package buffer

import (
	"testing"
)

func TestGetSlab_SizeBuckets(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantPooled bool
	}{
		{"4KB bucket", size4k, true},
		{"16KB bucket", size16k, true},
		{"64KB bucket", size64k, true},
		{"recv bucket", sizeRecv, true},
		{"odd size", 100, false},
		{"between buckets", 5000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slab, pooled := getSlab(tt.size)
			if len(slab) != tt.size {
				t.Errorf("getSlab(%d) returned len=%d", tt.size, len(slab))
			}
			if pooled != tt.wantPooled {
				t.Errorf("getSlab(%d) pooled=%v, want %v", tt.size, pooled, tt.wantPooled)
			}
			if pooled {
				putSlab(slab)
			}
		})
	}
}

func TestSlabPool_Reuse(t *testing.T) {
	slab1, _ := getSlab(size16k)
	ptr1 := &slab1[0]
	putSlab(slab1)

	slab2, _ := getSlab(size16k)
	ptr2 := &slab2[0]
	putSlab(slab2)

	// sync.Pool may or may not reuse immediately; when warm the addresses
	// match, which is all this verifies
	if ptr1 == ptr2 {
		t.Log("slab was successfully reused from pool")
	} else {
		t.Log("slab was not reused (sync.Pool GC behavior)")
	}
}

func TestPutSlab_NonStandardCap(t *testing.T) {
	// slabs with non-bucket capacity are dropped, not pooled; must not
	// panic
	putSlab(make([]byte, 100))
}
