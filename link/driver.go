// Package link defines the driver contract consumed by the routing table
// and ingress dispatcher, plus a loopback driver used by tests, examples
// and the ngpcat command.
//
//go:generate mockgen -source=driver.go -destination=mock/mock_driver.go -package=mock_link
package link

import (
	"errors"

	"github.com/nodeproto/ngp/wire"
)

// ErrIncomplete signals a driver record missing a required field.
var ErrIncomplete = errors.New("ngp: interface missing name, mtu or transmit callback")

// Transmitter is the narrow part of Interface that the routing table
// actually calls. It is split out so dispatcher tests can back an
// Interface's Tx callback with a gomock double (see link/mock); the
// routing table itself still takes a *Interface.
type Transmitter interface {
	Transmit(pkt *wire.Packet) error
}

// Interface is a transmit-capable link endpoint: a driver record with a
// stable name, a local address, an MTU inclusive of the header, and a
// transmit callback that serializes header and payload onto the wire.
type Interface struct {
	Name    string
	Address uint8
	MTU     int
	Tx      func(*Interface, *wire.Packet) error

	// Input is invoked by the owning engine for every frame the driver
	// receives; drivers call it directly, it is not part of the
	// Transmitter contract.
	Input func(iface *Interface, raw []byte)
}

// Transmit adapts Interface to Transmitter.
func (i *Interface) Transmit(pkt *wire.Packet) error {
	return i.Tx(i, pkt)
}

// Validate rejects an Interface missing any required field, per the
// registration contract in section 4.3 of the specification.
func (i *Interface) Validate() error {
	if i.Name == "" || i.MTU <= 0 || i.Tx == nil {
		return ErrIncomplete
	}
	return nil
}
