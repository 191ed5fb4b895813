// Package wire defines the on-wire frame format: the 32-bit header, the
// fixed-size packet record, and the fragmentation header used by the
// sfp package. Everything here is a pure data transform; nothing in this
// package blocks or allocates beyond what the caller already holds.
package wire

const (
	// HeaderSize is the wire size of a packed header, in bytes.
	HeaderSize = 4

	// MaxPacket is the largest payload a packet record can carry.
	MaxPacket = 128

	nodeMask = 0xFF
	portMask = 0x3F
	flagMask = 0x03
)

// Flag bits as returned/accepted by Unpack/Pack, matching the historical
// 0x04 reset-flag position so RST round-trips through the same byte as
// SYN and ACK.
const (
	FlagSYN   uint8 = 0x01
	FlagACK   uint8 = 0x02
	FlagReset uint8 = 0x04
)

// Pack masks each field to its wire width and assembles the 32-bit header.
// The reset bit (flags&FlagReset) is placed at bit 31, priority at bit 30,
// destination/source node at 29..22/21..14, destination/source port at
// 13..8/7..2, and the low two flag bits (SYN, ACK) at 1..0. Priority is
// write-only: Unpack never reconstructs it.
func Pack(priority bool, dstNode, srcNode, dstPort, srcPort, flags uint8) uint32 {
	var h uint32
	if flags&FlagReset != 0 {
		h |= 1 << 31
	}
	if priority {
		h |= 1 << 30
	}
	h |= uint32(dstNode&nodeMask) << 22
	h |= uint32(srcNode&nodeMask) << 14
	h |= uint32(dstPort&portMask) << 8
	h |= uint32(srcPort&portMask) << 2
	h |= uint32(flags & flagMask)
	return h
}

// Unpack reverses Pack. The reset bit, if set, is merged into the returned
// flags at FlagReset. Priority is not recovered; callers that need it must
// track it out of band.
func Unpack(h uint32) (dstNode, srcNode, dstPort, srcPort, flags uint8) {
	dstNode = uint8(h>>22) & nodeMask
	srcNode = uint8(h>>14) & nodeMask
	dstPort = uint8(h>>8) & portMask
	srcPort = uint8(h>>2) & portMask
	flags = uint8(h) & flagMask
	if h&(1<<31) != 0 {
		flags |= FlagReset
	}
	return
}
