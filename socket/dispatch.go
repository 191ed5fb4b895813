package socket

import (
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/wire"
)

// Input is the ingress dispatcher entry point of section 4.7. It is
// registered as iface.Input by the engine that owns this table.
func (t *Table) Input(iface *link.Interface, raw []byte) {
	if len(raw) < wire.HeaderSize {
		t.log.WithField("interface", iface.Name).Warn("short frame dropped")
		return
	}

	pkt := t.pool.Get()
	if pkt == nil {
		t.log.WithField("interface", iface.Name).Error("ingress: pool exhausted, frame dropped")
		return
	}
	pkt.Reset()
	pkt.Header = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	pkt.SetData(raw[wire.HeaderSize:])
	pkt.RxInterface = iface.Name

	dstNode, srcNode, dstPort, srcPort, flags := wire.Unpack(pkt.Header)
	if dstNode != iface.Address {
		t.pool.Free(pkt)
		return
	}

	t.dispatch(pkt, srcNode, srcPort, dstPort, flags)
}

// dispatch implements the decision tree of section 4.7. The table mutex
// is taken for the whole decision but dropped around any outbound
// transmit, so a synchronous loopback driver re-entering Input from
// inside a Tx call cannot deadlock against it (section 9).
func (t *Table) dispatch(pkt *wire.Packet, srcNode, srcPort, dstPort, flags uint8) {
	t.mu.Lock()

	if flags == wire.FlagReset {
		s := t.findSocket(dstPort, srcNode, srcPort)
		t.mu.Unlock()
		if s != nil && s.Type == Stream {
			t.mu.Lock()
			s.state = Closed
			s.localPort = 0
			t.unlinkActiveLocked(s)
			t.mu.Unlock()
			select {
			case s.rxQueue <- nil:
			default:
			}
			t.metrics.ResetReceived()
			t.log.WithField("socket", s.ID).Info("connection reset by peer")
		} else if s != nil {
			t.log.WithField("socket", s.ID).Warn("rst on dgram socket ignored")
		}
		t.pool.Free(pkt)
		return
	}

	s := t.findSocket(dstPort, srcNode, srcPort)
	if s == nil {
		t.mu.Unlock()
		t.log.WithFields(logrus.Fields{"port": dstPort, "src_node": srcNode, "src_port": srcPort}).Warn("no matching socket for inbound frame")
		t.pool.Free(pkt)
		return
	}

	syn := flags&wire.FlagSYN != 0
	ack := flags&wire.FlagACK != 0

	switch {
	case (s.state == Established || s.state == SynReceived) && syn:
		if s.Type == Stream {
			s.txSeq, s.rxSeq = 0, 0
			drain(s.rxQueue)
		}
		s.remoteNode, s.remotePort = srcNode, srcPort
		s.state = SynReceived
		t.mu.Unlock()
		t.emitControl(s, wire.FlagSYN|wire.FlagACK)
		t.pool.Free(pkt)
		return

	case s.state == Listening && syn:
		t.acceptSyn(s, srcNode, srcPort, dstPort)
		t.pool.Free(pkt)
		return

	case s.state == SynSent && ack:
		s.state = Established
		t.mu.Unlock()
		t.emitControl(s, wire.FlagACK)
		s.raise()
		t.pool.Free(pkt)
		return

	case s.state == SynReceived && ack && !syn:
		s.state = Established
		t.mu.Unlock()
		t.pool.Free(pkt)
		return
	}

	if ack && !syn && pkt.Length == 1 {
		if s.Type == Stream && pkt.Data()[0] == s.txSeq {
			s.raise()
		}
		t.mu.Unlock()
		t.pool.Free(pkt)
		return
	}

	if s.state == Established || s.state == SynReceived || (s.Type == Dgram && s.state == Open) {
		if s.Type == Dgram {
			t.mu.Unlock()
			t.enqueueOrDrop(s, pkt)
			return
		}

		if s.state == SynReceived {
			s.state = Established
		}
		seq := pkt.Data()[0]
		if seq == s.rxSeq {
			s.rxSeq++
			t.mu.Unlock()
			t.emitAck(s, seq)
			t.enqueueOrDrop(s, pkt)
			return
		}
		t.mu.Unlock()
		t.emitAck(s, seq)
		t.pool.Free(pkt)
		return
	}

	t.mu.Unlock()
	t.pool.Free(pkt)
}

// acceptSyn spawns a child socket for a LISTENING parent. Must be called
// with t.mu held; it releases t.mu on every path and returns with it
// unlocked, emitting the outbound SYN|ACK after the release.
func (t *Table) acceptSyn(parent *Socket, srcNode, srcPort, dstPort uint8) {
	var child *Socket
	for i := range t.slots {
		cand := &t.slots[i]
		if cand.state != Closed || cand.localPort != 0 {
			continue
		}
		child = cand
		break
	}
	if child == nil {
		t.mu.Unlock()
		t.log.WithField("socket", parent.ID).Error("accept: no free socket slot for child")
		return
	}

	firstUse := child.rxQueue == nil
	if firstUse {
		child.rxQueue = make(chan *wire.Packet, rxQueueCap)
		child.acceptQueue = make(chan *Socket, acceptQueueCap)
		child.signal = make(chan struct{}, 1)
	} else {
		drain(child.rxQueue)
		drainAccept(child.acceptQueue)
		drainSignal(child.signal)
	}

	child.ID = xid.New()
	child.Type = parent.Type
	child.localNode = parent.localNode
	child.localPort = dstPort
	child.remoteNode = srcNode
	child.remotePort = srcPort
	child.txSeq, child.rxSeq = 0, 0
	child.state = SynReceived
	t.linkActiveLocked(child)

	select {
	case parent.acceptQueue <- child:
	default:
		child.state = Closed
		child.localPort = 0
		t.unlinkActiveLocked(child)
		t.mu.Unlock()
		t.log.WithField("socket", parent.ID).Warn("accept queue full, dropping incoming connection")
		return
	}

	t.mu.Unlock()
	t.emitControl(child, wire.FlagSYN|wire.FlagACK)
}

// enqueueOrDrop pushes pkt onto s's receive queue, logging and dropping
// on overflow rather than blocking the dispatcher.
func (t *Table) enqueueOrDrop(s *Socket, pkt *wire.Packet) {
	select {
	case s.rxQueue <- pkt:
	default:
		t.log.WithField("socket", s.ID).Warn("receive queue full, dropping frame")
		t.pool.Free(pkt)
	}
}
