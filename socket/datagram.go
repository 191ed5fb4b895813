package socket

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/wire"
)

// ConnectDgram records the peer of a DGRAM socket and marks it
// Established; it is the "connected datagram" convenience, not a
// handshake. On a STREAM socket it returns ErrWrongType; stream sockets
// use Connect (stream.go) for the three-way handshake.
func (t *Table) ConnectDgram(s *Socket, node, port uint8) error {
	if s.Type != Dgram {
		return ErrWrongType
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s.remoteNode, s.remotePort = node, port
	s.state = Established
	t.linkActiveLocked(s)
	return nil
}

// SendTo is valid only on DGRAM sockets. len(data) must not exceed
// MaxPacket-1, keeping parity with the one-byte sequence budget stream
// frames reserve even though datagrams carry no sequence number.
func (t *Table) SendTo(s *Socket, data []byte, dstNode, dstPort uint8) (int, error) {
	if s.Type != Dgram {
		return 0, ErrWrongType
	}
	if len(data) > wire.MaxPacket-1 {
		return 0, ErrPacketTooLarge
	}

	pkt := t.pool.Get()
	if pkt == nil {
		return 0, ErrNoSocketSlot
	}
	pkt.Reset()
	pkt.Header = wire.Pack(false, dstNode, s.localNode, dstPort, s.localPort, 0)
	pkt.SetData(data)

	err := t.router.Tx(pkt)
	t.pool.Free(pkt)
	if err != nil {
		t.log.WithFields(logrus.Fields{"socket": s.ID}).WithError(err).Error("sendto failed")
		return 0, err
	}
	return len(data), nil
}

// Send is shorthand for SendTo using the socket's stored peer; it fails
// with ErrNoPeer if none is set.
func (t *Table) Send(s *Socket, data []byte) (int, error) {
	if s.Type != Dgram {
		return 0, ErrWrongType
	}
	if s.remoteNode == 0 && s.remotePort == 0 {
		return 0, ErrNoPeer
	}
	return t.SendTo(s, data, s.remoteNode, s.remotePort)
}

// RecvFrom blocks until a datagram appears on s's receive queue or
// timeout elapses, then copies up to len(buf) bytes and reports the
// sender's coordinates. A timeout is reported as an error, never as a
// zero-length success.
func (t *Table) RecvFrom(s *Socket, buf []byte, timeout time.Duration) (n int, srcNode, srcPort uint8, err error) {
	pkt, ok := recvQueue(s, timeout)
	if !ok {
		return 0, 0, 0, ErrTimeout
	}
	if pkt == nil {
		return 0, 0, 0, ErrReset
	}

	_, srcNode, _, srcPort, _ = wire.Unpack(pkt.Header)
	n = copy(buf, pkt.Data())
	t.pool.Free(pkt)
	return n, srcNode, srcPort, nil
}

// Recv is RecvFrom without source coordinates.
func (t *Table) Recv(s *Socket, buf []byte, timeout time.Duration) (int, error) {
	n, _, _, err := t.RecvFrom(s, buf, timeout)
	return n, err
}

// recvQueue dequeues from s.rxQueue with the given timeout. ok is false
// on timeout; a true ok with a nil packet signals the RST sentinel.
func recvQueue(s *Socket, timeout time.Duration) (pkt *wire.Packet, ok bool) {
	if timeout == Forever {
		pkt = <-s.rxQueue
		return pkt, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case pkt = <-s.rxQueue:
		return pkt, true
	case <-timer.C:
		return nil, false
	}
}
