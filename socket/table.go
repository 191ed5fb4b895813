package socket

import (
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/pool"
	"github.com/nodeproto/ngp/route"
	"github.com/nodeproto/ngp/wire"
)

// Metrics is the narrow set of counters the socket layer reports to, kept
// as an interface so this package never imports the concrete Prometheus
// collector from the root package (which in turn depends on socket).
type Metrics interface {
	SocketsActive(delta int)
	Retransmit(id xid.ID)
	HandshakeTimeout()
	ResetSent()
	ResetReceived()
}

type noopMetrics struct{}

func (noopMetrics) SocketsActive(int)     {}
func (noopMetrics) Retransmit(xid.ID)     {}
func (noopMetrics) HandshakeTimeout()     {}
func (noopMetrics) ResetSent()            {}
func (noopMetrics) ResetReceived()        {}

// Table is the socket table of section 4.4: a preallocated array of
// records plus an active-socket list, in the form of a slice of pointers
// into that array (section 9's "typed arena" refactor of the original
// intrusive list).
type Table struct {
	mu     sync.Mutex
	slots  [MaxSockets]Socket
	active []*Socket

	localNode uint8
	pool      *pool.Pool
	router    *route.Table
	log       logrus.FieldLogger
	metrics   Metrics
}

// NewTable returns an initialized Table bound to localNode.
func NewTable(localNode uint8, p *pool.Pool, r *route.Table, log logrus.FieldLogger, m Metrics) *Table {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if m == nil {
		m = noopMetrics{}
	}
	t := &Table{localNode: localNode, pool: p, router: r, log: log, metrics: m}
	for i := range t.slots {
		t.slots[i].table = t
		t.slots[i].state = Closed
	}
	return t
}

// Socket claims the first CLOSED, unbound slot, (re)creates its queues and
// signal if this is their first use, and returns it in state Open.
func (t *Table) Socket(typ Type) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if s.state != Closed || s.localPort != 0 {
			continue
		}

		firstUse := s.rxQueue == nil
		if firstUse {
			s.rxQueue = make(chan *wire.Packet, rxQueueCap)
			s.acceptQueue = make(chan *Socket, acceptQueueCap)
			s.signal = make(chan struct{}, 1)
		} else {
			drain(s.rxQueue)
			drainAccept(s.acceptQueue)
			drainSignal(s.signal)
		}

		s.ID = xid.New()
		s.Type = typ
		s.state = Open
		s.localNode = t.localNode
		s.localPort = 0
		s.remoteNode = 0
		s.remotePort = 0
		s.txSeq = 0
		s.rxSeq = 0

		// Linked into the active list at allocation time, matching
		// danpSocket()'s unconditional socket_list insertion: a bound but
		// unconnected Dgram socket must already be visible to findSocket's
		// wildcard match (section 4.4), not only from Listen/Connect/accept.
		t.linkActiveLocked(s)

		t.log.WithFields(logrus.Fields{"socket": s.ID, "type": typ}).Debug("socket allocated")
		return s, nil
	}

	t.log.Error("socket table exhausted")
	return nil, ErrNoSocketSlot
}

func drain(ch chan *wire.Packet) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainAccept(ch chan *Socket) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainSignal(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// Bind assigns port to s. Port zero draws the first free ephemeral port in
// [1, MaxPorts).
func (t *Table) Bind(s *Socket, port uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if port == 0 {
		for p := uint8(1); p < MaxPorts; p++ {
			if !t.portInUseLocked(p) {
				s.localPort = p
				return nil
			}
		}
		t.log.WithField("socket", s.ID).Error("no free ephemeral port")
		return ErrNoEphemeralPort
	}

	if port >= MaxPorts {
		return ErrInvalidArgument
	}
	if t.portInUseLocked(port) {
		t.log.WithFields(logrus.Fields{"socket": s.ID, "port": port}).Error("port already in use")
		return ErrPortInUse
	}
	s.localPort = port
	return nil
}

// Active returns the number of sockets currently linked into the active
// list. Every socket is linked from allocation until Close, so this counts
// all non-Closed sockets, Open ones included.
func (t *Table) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *Table) portInUseLocked(port uint8) bool {
	for _, a := range t.active {
		if a.localPort == port {
			return true
		}
	}
	return false
}

// Listen transitions s to Listening. Backlog is advisory; the accept
// queue already has a fixed capacity.
func (t *Table) Listen(s *Socket, backlog int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.state = Listening
	t.linkActiveLocked(s)
	return nil
}

func (t *Table) linkActiveLocked(s *Socket) {
	for _, a := range t.active {
		if a == s {
			return
		}
	}
	t.active = append(t.active, s)
	t.metrics.SocketsActive(1)
}

func (t *Table) unlinkActiveLocked(s *Socket) {
	for i, a := range t.active {
		if a == s {
			t.active = append(t.active[:i], t.active[i+1:]...)
			t.metrics.SocketsActive(-1)
			return
		}
	}
}

// Close tears s down. The socket is unlinked from the active list and
// returns to Closed with its local port cleared; queues and signal are
// retained for reuse. If it was a stream socket in a connected or
// half-open state, a RST is then emitted to the former peer before Close
// returns. Closing an already-closed
// socket is a no-op that returns nil, per the idempotent-close law.
func (t *Table) Close(s *Socket) error {
	t.mu.Lock()
	if s.state == Closed {
		t.mu.Unlock()
		return nil
	}

	shouldReset := s.Type == Stream && (s.state == Established || s.state == SynReceived || s.state == SynSent)
	dstNode, localNode, dstPort, srcPort := s.remoteNode, s.localNode, s.remotePort, s.localPort
	s.state = Closed
	s.localPort = 0
	t.unlinkActiveLocked(s)
	t.mu.Unlock()

	if shouldReset {
		t.emitReset(s, dstNode, localNode, dstPort, srcPort)
		t.metrics.ResetSent()
	}
	return nil
}

// emitReset builds and routes a RST frame using the peer coordinates
// captured before Close cleared s.localPort. Errors are logged, not
// returned: per section 7, a failed outbound control frame on close does
// not block teardown.
func (t *Table) emitReset(s *Socket, dstNode, localNode, dstPort, srcPort uint8) {
	pkt := t.pool.Get()
	if pkt == nil {
		return
	}
	pkt.Reset()
	pkt.Header = wire.Pack(false, dstNode, localNode, dstPort, srcPort, wire.FlagReset)
	if err := t.router.Tx(pkt); err != nil {
		t.log.WithFields(logrus.Fields{"socket": s.ID}).WithError(err).Warn("rst transmit failed")
	}
	t.pool.Free(pkt)
}
