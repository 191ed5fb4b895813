package link

import (
	"github.com/nodeproto/ngp/wire"
)

// Loopback is an in-memory driver: Transmit serializes a packet's header
// and payload and hands the bytes straight to Input, either synchronously
// on the transmitting goroutine or asynchronously via a buffered channel
// and a dedicated delivery goroutine.
//
// The synchronous mode exercises the lock-drop-and-reacquire path the
// ingress dispatcher uses in place of a recursive mutex (section 9 of the
// specification): Transmit calls back into Input before returning, on the
// very thread that is sending.
type Loopback struct {
	Iface *Interface

	async bool
	queue chan []byte
	done  chan struct{}
}

// NewLoopback returns a Loopback driver named name at the given node
// address and MTU. When async is false, Transmit re-enters Input
// synchronously; when true, frames are queued and delivered by a
// background goroutine started by Run.
func NewLoopback(name string, addr uint8, mtu int, async bool) *Loopback {
	lo := &Loopback{async: async}
	lo.Iface = &Interface{Name: name, Address: addr, MTU: mtu, Tx: lo.transmit}
	if async {
		lo.queue = make(chan []byte, 64)
		lo.done = make(chan struct{})
	}
	return lo
}

// Run starts the delivery goroutine for an async Loopback. It returns
// immediately for a synchronous Loopback. Callers stop an async Loopback
// with Close.
func (lo *Loopback) Run() {
	if !lo.async {
		return
	}
	go func() {
		for {
			select {
			case raw := <-lo.queue:
				if lo.Iface.Input != nil {
					lo.Iface.Input(lo.Iface, raw)
				}
			case <-lo.done:
				return
			}
		}
	}()
}

// Close stops the delivery goroutine of an async Loopback. It is a no-op
// for a synchronous Loopback.
func (lo *Loopback) Close() {
	if lo.async {
		close(lo.done)
	}
}

func (lo *Loopback) transmit(iface *Interface, pkt *wire.Packet) error {
	raw := make([]byte, wire.HeaderSize+int(pkt.Length))
	raw[0] = byte(pkt.Header)
	raw[1] = byte(pkt.Header >> 8)
	raw[2] = byte(pkt.Header >> 16)
	raw[3] = byte(pkt.Header >> 24)
	copy(raw[wire.HeaderSize:], pkt.Data())

	if !lo.async {
		if iface.Input != nil {
			iface.Input(iface, raw)
		}
		return nil
	}

	select {
	case lo.queue <- raw:
	default:
		// queue full: drop, matching a bounded message queue that
		// would time out on a blocking send.
	}
	return nil
}
