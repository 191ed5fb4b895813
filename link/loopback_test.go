package link

import (
	"testing"
	"time"

	"github.com/nodeproto/ngp/wire"
)

func TestLoopbackSyncReentersInput(t *testing.T) {
	lo := NewLoopback("lo0", 10, 256, false)

	var got []byte
	lo.Iface.Input = func(iface *Interface, raw []byte) {
		got = raw
	}

	pkt := &wire.Packet{Header: wire.Pack(false, 10, 10, 1, 2, 0)}
	pkt.SetData([]byte("hi"))

	if err := lo.Iface.Transmit(pkt); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if len(got) != wire.HeaderSize+2 {
		t.Fatalf("delivered frame length = %d, want %d", len(got), wire.HeaderSize+2)
	}
}

func TestLoopbackAsyncDelivers(t *testing.T) {
	lo := NewLoopback("lo0", 10, 256, true)
	lo.Run()
	defer lo.Close()

	done := make(chan struct{})
	lo.Iface.Input = func(iface *Interface, raw []byte) {
		close(done)
	}

	pkt := &wire.Packet{}
	pkt.SetData([]byte("x"))
	if err := lo.Iface.Transmit(pkt); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async loopback never delivered the frame")
	}
}
