// Package socket implements the socket table, the datagram and stream
// engines, and the ingress dispatcher described in sections 4.4 through
// 4.9 of the specification.
package socket

import (
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/nodeproto/ngp/wire"
)

// Forever blocks a timed operation indefinitely, standing in for the
// all-bits-set millisecond sentinel of the specification.
const Forever time.Duration = -1

// Wire-impact and table-sizing constants from section 6 of the
// specification.
const (
	MaxPorts    = 64          // MAX_PORTS
	MaxSockets  = 32          // >= MAX_SOCKETS floor of 20
	AckTimeout  = 500 * time.Millisecond
	RetryLimit  = 3
	rxQueueCap  = 16 // >= depth 10
	acceptQueueCap = 8 // >= depth 5
)

// Type is the service type of a socket.
type Type uint8

const (
	Dgram Type = iota
	Stream
)

func (t Type) String() string {
	if t == Stream {
		return "stream"
	}
	return "dgram"
}

// State is one of the six socket states of section 3.
type State uint8

const (
	Closed State = iota
	Open
	Listening
	SynSent
	SynReceived
	Established
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Listening:
		return "listening"
	case SynSent:
		return "syn-sent"
	case SynReceived:
		return "syn-received"
	case Established:
		return "established"
	default:
		return "unknown"
	}
}

// Errors surfaced at the public boundary. Each belongs to one of the four
// error kinds of section 7 of the specification; most kinds have several
// sentinels.
var (
	ErrInvalidArgument   = errors.New("ngp: invalid argument")
	ErrWrongType         = errors.New("ngp: wrong socket type for operation")
	ErrNoSocketSlot      = errors.New("ngp: no free socket slot")
	ErrNoEphemeralPort   = errors.New("ngp: no free ephemeral port")
	ErrPortInUse         = errors.New("ngp: port already in use")
	ErrNoPeer            = errors.New("ngp: socket has no peer set")
	ErrTimeout           = errors.New("ngp: operation timed out")
	ErrReset             = errors.New("ngp: connection reset by peer")
	ErrNotConnected      = errors.New("ngp: socket not connected")
	ErrHandshakeTimeout  = errors.New("ngp: handshake timeout")
	ErrRetriesExhausted  = errors.New("ngp: retry limit exhausted")
	ErrPacketTooLarge    = errors.New("ngp: payload exceeds MAX_PACKET-1")
)

// Socket is one entry of the socket table. Exported fields are safe for
// read-only inspection by callers holding a *Socket returned from Accept;
// mutation happens exclusively through Table methods, which serialize on
// the table's mutex.
type Socket struct {
	ID xid.ID // correlation id, log-only, no wire impact

	Type  Type
	state State

	localNode  uint8
	localPort  uint8
	remoteNode uint8
	remotePort uint8

	txSeq uint8
	rxSeq uint8

	rxQueue     chan *wire.Packet
	acceptQueue chan *Socket
	signal      chan struct{}

	table *Table
}

// State returns the socket's current state.
func (s *Socket) State() State { return s.state }

// LocalPort returns the bound local port, or 0 if unbound.
func (s *Socket) LocalPort() uint8 { return s.localPort }

// LocalNode returns the socket's local node address.
func (s *Socket) LocalNode() uint8 { return s.localNode }

// Remote returns the socket's peer coordinates.
func (s *Socket) Remote() (node, port uint8) { return s.remoteNode, s.remotePort }

// raise posts a non-blocking wakeup on the socket's signal channel. A
// pending, unconsumed signal is left in place rather than blocking, since
// the channel's sole purpose is "something happened, stop waiting".
func (s *Socket) raise() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// wait blocks for a signal or until timeout elapses. Forever blocks
// indefinitely.
func (s *Socket) wait(timeout time.Duration) bool {
	if timeout == Forever {
		<-s.signal
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.signal:
		return true
	case <-timer.C:
		return false
	}
}
