// Package pool implements the fixed-size packet buffer pool described in
// section 4.2 of the specification: a preallocated array of records with
// a companion free bitmap, guarded by one mutex.
package pool

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nodeproto/ngp/wire"
)

// Size is the number of packet records in a Pool, POOL_SIZE in the
// specification. It exceeds the 20-record floor to give the stream engine
// room for in-flight fragmentation chains during tests.
const Size = 24

// Pool is a preallocated array of wire.Packet records with a free bitmap.
// A record is either on the free list or held by exactly one owner; the
// zero value is not usable, use New.
type Pool struct {
	mu   sync.Mutex
	recs [Size]wire.Packet
	free [Size]bool // true = available
	log  logrus.FieldLogger
}

// New returns an initialized Pool with every record free.
func New(log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pool{log: log}
	for i := range p.free {
		p.free[i] = true
	}
	return p
}

// Get returns the first free record, marked busy, or nil if the pool is
// exhausted. Fields are not zeroed; callers must initialize what they use
// before the record becomes visible to anyone else.
func (p *Pool) Get() *wire.Packet {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.free {
		if p.free[i] {
			p.free[i] = false
			return &p.recs[i]
		}
	}
	p.log.WithField("component", "pool").Error("buffer pool exhausted")
	return nil
}

// Free returns pkt to the pool. A nil pkt is a no-op. An address outside
// the pool's backing array is a logged error. Freeing an already-free
// record is a logged no-op, i.e. a double-free never corrupts the bitmap.
func (p *Pool) Free(pkt *wire.Packet) {
	if pkt == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexOf(pkt)
	if !ok {
		p.log.WithField("component", "pool").Error("free of out-of-pool address")
		return
	}
	if p.free[idx] {
		p.log.WithField("component", "pool").Warn("double free of pool record")
		return
	}
	p.free[idx] = true
}

// FreeChain walks pkt's Next link, freeing every record. A nil head is a
// no-op.
func (p *Pool) FreeChain(head *wire.Packet) {
	for head != nil {
		next := head.Next
		head.Next = nil
		p.Free(head)
		head = next
	}
}

// FreeCount returns the number of currently free records; it always
// equals Size minus the number of records held by some owner.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, f := range p.free {
		if f {
			n++
		}
	}
	return n
}

// indexOf locates pkt's slot by identity. The pool is small and fixed in
// size, so a linear scan over pointer identity is simpler and safer than
// reconstructing the index from pointer arithmetic.
func (p *Pool) indexOf(pkt *wire.Packet) (int, bool) {
	for i := range p.recs {
		if &p.recs[i] == pkt {
			return i, true
		}
	}
	return 0, false
}
