// Package sfp implements the fragmentation sublayer of section 4.8 of the
// specification: splitting stream messages larger than the fragment MTU
// into numbered fragments, and reassembling them on the receiving side.
//
// Fragments bypass the stream ARQ entirely and travel by direct route.Tx;
// in-order arrival therefore depends on the underlying link, not on this
// package. A stricter design would push fragments through stop-and-wait,
// but the specification calls for fragments to travel directly.
package sfp

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/socket"
	"github.com/nodeproto/ngp/wire"
)

// MaxFragments bounds a message to 64 fragments, resolving the
// specification's open question about the mismatch between the 6-bit
// fragment id (0..63) and the SFP_MAX_FRAGMENTS=255 constant that
// appears in the source material: ids are restricted to 0..63, so
// messages that would need more than 64 fragments are rejected outright
// rather than produced with colliding ids.
const MaxFragments = 64

// budget is the per-fragment data payload: MaxPacket minus the wire
// header minus the one-byte SFP header.
const budget = wire.MaxPacket - wire.HeaderSize - 1

// ErrTooLarge is returned by Send when data would require more than
// MaxFragments fragments.
var ErrTooLarge = errors.New("ngp: message exceeds sfp fragment budget")

// ErrFragmentGap is returned by Recv when an out-of-order fragment id
// breaks the expected monotonic sequence; the partial chain received so
// far is discarded.
var ErrFragmentGap = errors.New("ngp: fragment id gap during reassembly")

// Table is the subset of *socket.Table that Send and Recv need. It is an
// interface so sfp never needs socket's full surface, and so tests can
// substitute a double.
type Table interface {
	RecvPacket(s *socket.Socket, timeout time.Duration) (*wire.Packet, error)
}

// Router routes an already-built packet to its destination and enforces
// MTU, matching route.Table.Tx's signature.
type Router interface {
	Tx(pkt *wire.Packet) error
}

// Send fragments data and routes each fragment directly, bypassing the
// stream socket's ARQ. s must be an Established stream socket. On a
// routing failure mid-message, Send aborts immediately: the fragments
// already on the wire are not recalled.
func Send(router Router, pool interface {
	Get() *wire.Packet
	Free(*wire.Packet)
}, s *socket.Socket, data []byte, log logrus.FieldLogger) (int, error) {
	if s.Type != socket.Stream {
		return 0, socket.ErrWrongType
	}
	if s.State() != socket.Established {
		return 0, socket.ErrNotConnected
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	total := (len(data) + budget - 1) / budget
	if len(data) == 0 {
		total = 0
	}
	if total > MaxFragments {
		return 0, ErrTooLarge
	}

	remoteNode, remotePort := s.Remote()

	for i := 0; i < total; i++ {
		start := i * budget
		end := start + budget
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		pkt := pool.Get()
		if pkt == nil {
			return start, socket.ErrNoSocketSlot
		}
		pkt.Reset()
		hdr := wire.PackFragmentHeader(i == 0, i < total-1, uint8(i&0x3F))
		frame := make([]byte, 0, len(chunk)+1)
		frame = append(frame, byte(hdr))
		frame = append(frame, chunk...)
		pkt.Header = wire.Pack(false, remoteNode, s.LocalNode(), remotePort, s.LocalPort(), 0)
		pkt.SetData(frame)

		err := router.Tx(pkt)
		pool.Free(pkt)
		if err != nil {
			log.WithError(err).Warn("sfp: fragment routing failed mid-message")
			return start, err
		}
	}

	return len(data), nil
}

// Recv repeatedly dequeues fragments via the zero-copy primitive,
// verifying that fragment ids arrive strictly in order starting at zero.
// On success it returns the chain head with the SFP header byte stripped
// from each fragment's payload; the caller releases the chain via the
// buffer pool's FreeChain. On a fragment id gap it frees the partial
// chain itself and returns ErrFragmentGap.
func Recv(tbl Table, pool interface {
	FreeChain(*wire.Packet)
}, s *socket.Socket, timeout time.Duration) (*wire.Packet, error) {
	var head, tail *wire.Packet
	expected := uint8(0)

	for {
		pkt, err := tbl.RecvPacket(s, timeout)
		if err != nil {
			pool.FreeChain(head)
			return nil, err
		}

		hdr := wire.FragmentHeader(pkt.Data()[0])
		if hdr.ID() != expected {
			pkt.Next = nil
			pool.FreeChain(head)
			pool.FreeChain(pkt)
			return nil, ErrFragmentGap
		}

		copy(pkt.Payload[:], pkt.Data()[1:])
		pkt.Length--
		pkt.Next = nil

		if head == nil {
			head = pkt
		} else {
			tail.Next = pkt
		}
		tail = pkt

		more := hdr.More()
		expected++
		if !more {
			return head, nil
		}
	}
}
