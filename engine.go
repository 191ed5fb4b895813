package ngp

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/pool"
	"github.com/nodeproto/ngp/route"
	"github.com/nodeproto/ngp/sfp"
	"github.com/nodeproto/ngp/socket"
	"github.com/nodeproto/ngp/wire"
)

// Forever blocks a timed call indefinitely.
const Forever = socket.Forever

// Engine is one node's protocol instance: a buffer pool, a routing table,
// and a socket table, wired together and bound to one local node address.
type Engine struct {
	log     logrus.FieldLogger
	pool    *pool.Pool
	route   *route.Table
	sockets *socket.Table
	metrics *Metrics
}

// New constructs an Engine for cfg.LocalNode. If cfg.RouteTable is
// non-empty it is loaded immediately; a malformed table is returned as an
// error and the Engine is not usable.
func New(cfg Config) (*Engine, error) {
	log := cfg.logger()

	p := pool.New(log)
	r := route.New(log)

	e := &Engine{log: log, pool: p, route: r}
	e.metrics = newMetrics(p.FreeCount, func() int { return e.sockets.Active() })
	e.sockets = socket.NewTable(cfg.LocalNode, p, r, log, e.metrics)

	if cfg.RouteTable != "" {
		if err := r.LoadTable(cfg.RouteTable); err != nil {
			return nil, fmt.Errorf("ngp: loading initial route table: %w", err)
		}
	}
	return e, nil
}

// Metrics returns the engine's prometheus.Collector. The caller registers
// it with whatever registry it uses; the engine never does this itself.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// RegisterInterface wires a link driver's interface into the routing
// table and makes it the ingress entry point into this engine's socket
// dispatcher.
func (e *Engine) RegisterInterface(iface *link.Interface) error {
	iface.Input = e.sockets.Input
	return e.route.RegisterInterface(iface)
}

// LoadRouteTable replaces the routing table wholesale, atomically.
func (e *Engine) LoadRouteTable(table string) error {
	return e.route.LoadTable(table)
}

// WatchRouteTable hot-reloads the routing table from path on every write,
// returning a stop function.
func (e *Engine) WatchRouteTable(path string) (stop func() error, err error) {
	return e.route.Watch(path)
}

// Socket allocates a new socket of typ in state Open.
func (e *Engine) Socket(typ socket.Type) (*socket.Socket, error) {
	return e.sockets.Socket(typ)
}

// Bind assigns a local port to s, or the first free ephemeral port if
// port is zero.
func (e *Engine) Bind(s *socket.Socket, port uint8) error {
	return e.sockets.Bind(s, port)
}

// Listen transitions a stream socket to Listening.
func (e *Engine) Listen(s *socket.Socket, backlog int) error {
	return e.sockets.Listen(s, backlog)
}

// Accept blocks for an inbound connection on a Listening socket.
func (e *Engine) Accept(s *socket.Socket, timeout time.Duration) (*socket.Socket, error) {
	return e.sockets.Accept(s, timeout)
}

// Connect performs the stream three-way handshake, or marks a datagram
// socket as connected without a handshake.
func (e *Engine) Connect(s *socket.Socket, node, port uint8, timeout time.Duration) error {
	if s.Type == socket.Dgram {
		return e.sockets.ConnectDgram(s, node, port)
	}
	return e.sockets.Connect(s, node, port, timeout)
}

// Close tears s down, emitting a RST if it was a connected or half-open
// stream socket.
func (e *Engine) Close(s *socket.Socket) error {
	return e.sockets.Close(s)
}

// SendTo transmits a single datagram.
func (e *Engine) SendTo(s *socket.Socket, data []byte, dstNode, dstPort uint8) (int, error) {
	return e.sockets.SendTo(s, data, dstNode, dstPort)
}

// Send transmits a single datagram to s's connected peer.
func (e *Engine) Send(s *socket.Socket, data []byte) (int, error) {
	return e.sockets.Send(s, data)
}

// RecvFrom blocks for one datagram.
func (e *Engine) RecvFrom(s *socket.Socket, buf []byte, timeout time.Duration) (n int, srcNode, srcPort uint8, err error) {
	return e.sockets.RecvFrom(s, buf, timeout)
}

// Recv is RecvFrom without source coordinates.
func (e *Engine) Recv(s *socket.Socket, buf []byte, timeout time.Duration) (int, error) {
	return e.sockets.Recv(s, buf, timeout)
}

// StreamSend sends up to MAX_PACKET-1 bytes over an Established stream
// socket with stop-and-wait ARQ. Larger payloads must go through
// SendStream, which fragments.
func (e *Engine) StreamSend(s *socket.Socket, data []byte, timeout time.Duration) (int, error) {
	return e.sockets.StreamSend(s, data, timeout)
}

// StreamRecv receives one ARQ'd stream frame.
func (e *Engine) StreamRecv(s *socket.Socket, buf []byte, timeout time.Duration) (int, error) {
	return e.sockets.StreamRecv(s, buf, timeout)
}

// SendStream fragments data across as many packets as needed and routes
// each directly, bypassing ARQ, per the fragmentation sublayer.
func (e *Engine) SendStream(s *socket.Socket, data []byte) (int, error) {
	n, err := sfp.Send(e.route, e.pool, s, data, e.log)
	if n > 0 {
		e.metrics.fragmentSent()
	}
	return n, err
}

// RecvStream reassembles one fragmented message and returns the packet
// chain head; the caller releases it via Engine.FreeChain.
func (e *Engine) RecvStream(s *socket.Socket, timeout time.Duration) (*wire.Packet, error) {
	head, err := sfp.Recv(e.sockets, e.pool, s, timeout)
	if err == nil {
		e.metrics.messageReassembled()
	}
	return head, err
}

// FreeChain releases a packet chain returned by RecvStream back to the
// buffer pool.
func (e *Engine) FreeChain(head *wire.Packet) {
	e.pool.FreeChain(head)
}
