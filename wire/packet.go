package wire

// Packet is a fixed-capacity frame buffer. It is owned by exactly one
// holder at a time — the application, a socket's receive queue, or a
// driver mid-transmission — and is only ever destroyed by returning it to
// the pool that allocated it.
type Packet struct {
	Header  uint32         // raw packed header
	Payload [MaxPacket]byte
	Length  uint16 // valid bytes in Payload

	// RxInterface names the interface a packet arrived on. It is
	// meaningful only on ingress; outbound packets leave it empty.
	RxInterface string

	// Next chains fragments together for sfp reassembly. Unused
	// outside that path.
	Next *Packet
}

// Data returns the valid slice of Payload.
func (p *Packet) Data() []byte {
	return p.Payload[:p.Length]
}

// SetData copies b into Payload and sets Length. It panics if b does not
// fit — callers are expected to have already validated length against
// MaxPacket, the same way the original design masks rather than silently
// drops out-of-range header fields.
func (p *Packet) SetData(b []byte) {
	if len(b) > MaxPacket {
		panic("wire: payload exceeds MaxPacket")
	}
	p.Length = uint16(copy(p.Payload[:], b))
}

// Reset clears a packet record for reuse. The buffer pool does not zero
// freed records automatically (§4.2 of the specification); callers that
// need a clean slate call Reset themselves after Get.
func (p *Packet) Reset() {
	p.Header = 0
	p.Length = 0
	p.RxInterface = ""
	p.Next = nil
}
