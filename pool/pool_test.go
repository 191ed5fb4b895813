package pool

import (
	"testing"

	"github.com/nodeproto/ngp/wire"
)

func TestGetFreeConservation(t *testing.T) {
	p := New(nil)
	if got := p.FreeCount(); got != Size {
		t.Fatalf("FreeCount() = %d, want %d", got, Size)
	}

	var held []*wire.Packet
	for i := 0; i < Size; i++ {
		pkt := p.Get()
		if pkt == nil {
			t.Fatalf("Get() returned nil at i=%d, pool should not be exhausted yet", i)
		}
		held = append(held, pkt)
	}

	if got := p.FreeCount(); got != 0 {
		t.Fatalf("FreeCount() = %d, want 0 after exhausting pool", got)
	}
	if pkt := p.Get(); pkt != nil {
		t.Fatalf("Get() on exhausted pool = %v, want nil", pkt)
	}

	p.Free(held[0])
	if got := p.FreeCount(); got != 1 {
		t.Fatalf("FreeCount() = %d, want 1 after one Free", got)
	}

	next := p.Get()
	if next == nil {
		t.Fatal("Get() after Free returned nil")
	}
	for _, h := range held[1:] {
		if next == h {
			t.Fatal("Get() returned a still-held record")
		}
	}
}

func TestFreeToleratesNilAndDoubleFree(t *testing.T) {
	p := New(nil)
	p.Free(nil) // no panic, no-op

	pkt := p.Get()
	p.Free(pkt)
	if got := p.FreeCount(); got != Size {
		t.Fatalf("FreeCount() = %d, want %d", got, Size)
	}

	p.Free(pkt) // double free: logged no-op, must not corrupt the bitmap
	if got := p.FreeCount(); got != Size {
		t.Fatalf("FreeCount() after double free = %d, want %d", got, Size)
	}
}

func TestFreeOutOfPoolAddress(t *testing.T) {
	p := New(nil)
	stray := &wire.Packet{}
	before := p.FreeCount()
	p.Free(stray)
	if got := p.FreeCount(); got != before {
		t.Fatalf("FreeCount() changed after freeing out-of-pool address: %d -> %d", before, got)
	}
}

func TestFreeChainToleratesNilAndWalksLinks(t *testing.T) {
	p := New(nil)
	p.FreeChain(nil)

	a := p.Get()
	b := p.Get()
	c := p.Get()
	a.Next = b
	b.Next = c

	p.FreeChain(a)
	if got := p.FreeCount(); got != Size {
		t.Fatalf("FreeCount() = %d, want %d after FreeChain", got, Size)
	}
}
