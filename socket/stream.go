package socket

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/wire"
)

// Connect performs the stream three-way handshake. It binds an ephemeral
// port if s is unbound, transitions to SynSent, emits a SYN, and waits up
// to timeout for the peer's SYN|ACK. The dispatcher delivers that
// SYN|ACK, flips the state to Established, emits the closing ACK itself,
// and then raises the signal, so Connect sends nothing further on success.
// On timeout it reverts to Open and returns ErrHandshakeTimeout.
func (t *Table) Connect(s *Socket, node, port uint8, timeout time.Duration) error {
	if s.Type != Stream {
		return ErrWrongType
	}

	t.mu.Lock()
	if s.localPort == 0 {
		if err := t.bindEphemeralLocked(s); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	s.remoteNode, s.remotePort = node, port
	s.state = SynSent
	drainSignal(s.signal)
	t.linkActiveLocked(s)
	t.mu.Unlock()

	t.emitControl(s, wire.FlagSYN)

	if !s.wait(timeout) {
		t.mu.Lock()
		if s.state == SynSent {
			s.state = Open
		}
		t.mu.Unlock()
		t.metrics.HandshakeTimeout()
		t.log.WithField("socket", s.ID).Warn("connect: handshake timeout")
		return ErrHandshakeTimeout
	}

	return nil
}

func (t *Table) bindEphemeralLocked(s *Socket) error {
	for p := uint8(1); p < MaxPorts; p++ {
		if !t.portInUseLocked(p) {
			s.localPort = p
			return nil
		}
	}
	return ErrNoEphemeralPort
}

// Accept blocks on the server socket's accept queue and returns the
// dequeued child, or nil and ErrTimeout.
func (t *Table) Accept(s *Socket, timeout time.Duration) (*Socket, error) {
	if s.Type != Stream {
		return nil, ErrWrongType
	}

	if timeout == Forever {
		child := <-s.acceptQueue
		return child, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case child := <-s.acceptQueue:
		return child, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// StreamSend builds a data frame (sequence byte + payload), transmits it,
// and waits for its ACK. On timeout it retries up to RetryLimit total
// attempts. tx_seq advances by exactly one, mod 256, only on success.
func (t *Table) StreamSend(s *Socket, data []byte, timeout time.Duration) (int, error) {
	if s.Type != Stream {
		return 0, ErrWrongType
	}
	if len(data) > wire.MaxPacket-1 {
		return 0, ErrPacketTooLarge
	}
	t.mu.Lock()
	state := s.state
	t.mu.Unlock()
	if state != Established {
		return 0, ErrNotConnected
	}

	drainSignal(s.signal)

	for attempt := 1; attempt <= RetryLimit; attempt++ {
		t.emitData(s, s.txSeq, data)

		if s.wait(timeout) {
			s.txSeq++
			return len(data), nil
		}

		if attempt < RetryLimit {
			t.metrics.Retransmit(s.ID)
			t.log.WithFields(logrus.Fields{"socket": s.ID, "attempt": attempt}).Warn("stream send: ack timeout, retrying")
		}
	}

	t.log.WithField("socket", s.ID).Error("stream send: retry limit exhausted")
	return 0, ErrRetriesExhausted
}

// StreamRecv dequeues a packet, strips the leading sequence byte, copies
// up to len(buf) bytes, and frees the packet.
func (t *Table) StreamRecv(s *Socket, buf []byte, timeout time.Duration) (int, error) {
	if s.Type != Stream {
		return 0, ErrWrongType
	}

	pkt, ok := recvQueue(s, timeout)
	if !ok {
		return 0, ErrTimeout
	}
	if pkt == nil {
		return 0, ErrReset
	}

	payload := pkt.Data()
	var n int
	if len(payload) > 0 {
		n = copy(buf, payload[1:])
	}
	t.pool.Free(pkt)
	return n, nil
}

// RecvPacket is the zero-copy receive primitive of section 4.9: it
// dequeues without copying and without stripping the sequence byte. The
// sfp package uses it directly; ordinary callers use StreamRecv, which
// reads the same receive queue and strips the sequence byte.
func (t *Table) RecvPacket(s *Socket, timeout time.Duration) (*wire.Packet, error) {
	pkt, ok := recvQueue(s, timeout)
	if !ok {
		return nil, ErrTimeout
	}
	if pkt == nil {
		return nil, ErrReset
	}
	return pkt, nil
}

// emitControl sends a zero-payload control frame with the given flags.
func (t *Table) emitControl(s *Socket, flags uint8) {
	pkt := t.pool.Get()
	if pkt == nil {
		return
	}
	pkt.Reset()
	pkt.Header = wire.Pack(false, s.remoteNode, s.localNode, s.remotePort, s.localPort, flags)
	if err := t.router.Tx(pkt); err != nil {
		t.log.WithField("socket", s.ID).WithError(err).Warn("control frame transmit failed")
	}
	t.pool.Free(pkt)
}

// emitAck sends a stream data-ACK: ACK set, one payload byte holding the
// acknowledged sequence number.
func (t *Table) emitAck(s *Socket, seq uint8) {
	pkt := t.pool.Get()
	if pkt == nil {
		return
	}
	pkt.Reset()
	pkt.Header = wire.Pack(false, s.remoteNode, s.localNode, s.remotePort, s.localPort, wire.FlagACK)
	pkt.SetData([]byte{seq})
	if err := t.router.Tx(pkt); err != nil {
		t.log.WithField("socket", s.ID).WithError(err).Warn("ack transmit failed")
	}
	t.pool.Free(pkt)
}

// emitData sends a stream data frame: payload[0] = seq, payload[1:] = data.
func (t *Table) emitData(s *Socket, seq uint8, data []byte) {
	pkt := t.pool.Get()
	if pkt == nil {
		return
	}
	pkt.Reset()
	pkt.Header = wire.Pack(false, s.remoteNode, s.localNode, s.remotePort, s.localPort, 0)
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, seq)
	frame = append(frame, data...)
	pkt.SetData(frame)
	if err := t.router.Tx(pkt); err != nil {
		t.log.WithField("socket", s.ID).WithError(err).Warn("data frame transmit failed")
	}
	t.pool.Free(pkt)
}
