// Package route implements the interface registry and the static routing
// table of section 4.3 of the specification: destination-node to
// interface mapping, with MTU enforcement at transmit time.
package route

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/wire"
)

// MaxNodes bounds the routing table, MAX_NODES in the specification.
const MaxNodes = 256

var (
	// ErrUnknownDestination is returned by Tx when no route covers the
	// packet's destination node.
	ErrUnknownDestination = errors.New("ngp: no route to destination node")

	// ErrMTUExceeded is returned by Tx when the frame would exceed the
	// selected interface's MTU.
	ErrMTUExceeded = errors.New("ngp: frame exceeds interface mtu")

	// errUnknownInterface names an interface referenced by a route
	// table entry that was never registered.
	errUnknownInterface = errors.New("ngp: unknown interface name")
)

// Table is the process-wide routing table plus the list of registered
// interfaces. The zero value is not usable; use New.
type Table struct {
	mu         sync.Mutex
	interfaces map[string]*link.Interface
	routes     map[uint16]*link.Interface
	log        logrus.FieldLogger
}

// New returns an empty Table.
func New(log logrus.FieldLogger) *Table {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Table{
		interfaces: make(map[string]*link.Interface),
		routes:     make(map[uint16]*link.Interface),
		log:        log,
	}
}

// RegisterInterface validates and registers iface. A second registration
// of the same name replaces the first.
func (t *Table) RegisterInterface(iface *link.Interface) error {
	if err := iface.Validate(); err != nil {
		t.log.WithField("component", "route").WithError(err).Error("interface registration rejected")
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.interfaces[iface.Name] = iface
	t.log.WithFields(logrus.Fields{"component": "route", "interface": iface.Name}).Info("interface registered")
	return nil
}

// LoadTable parses a comma/newline separated "<destination>:<interface>"
// list and replaces the table's contents atomically from the caller's
// perspective. On any parse error the table is reset to empty and every
// malformed entry is reported via a combined error (go.uber.org/multierr),
// not just the first.
func (t *Table) LoadTable(s string) error {
	entries := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })

	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[uint16]*link.Interface)
	order := make([]uint16, 0, len(entries))

	var errs error
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		dest, ifaceName, err := parseEntry(entry)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ngp: route entry %q: %w", entry, err))
			continue
		}
		iface, ok := t.interfaces[ifaceName]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("ngp: route entry %q: %w %q", entry, errUnknownInterface, ifaceName))
			continue
		}
		if _, exists := next[dest]; !exists {
			order = append(order, dest)
		}
		next[dest] = iface
	}

	if len(order) > MaxNodes {
		errs = multierr.Append(errs, fmt.Errorf("ngp: route table overflow: %d entries exceeds MAX_NODES=%d", len(order), MaxNodes))
	}

	if errs != nil {
		t.routes = make(map[uint16]*link.Interface)
		t.log.WithField("component", "route").WithError(errs).Error("route table load failed, table cleared")
		return errs
	}

	t.routes = next
	t.log.WithFields(logrus.Fields{"component": "route", "entries": len(next)}).Info("route table loaded")
	return nil
}

func parseEntry(entry string) (dest uint16, iface string, err error) {
	sep := strings.IndexByte(entry, ':')
	if sep < 0 {
		return 0, "", errors.New("missing ':' separator")
	}
	destTok := strings.TrimSpace(entry[:sep])
	ifaceTok := strings.TrimSpace(entry[sep+1:])
	if destTok == "" || ifaceTok == "" {
		return 0, "", errors.New("empty token")
	}
	n, err := strconv.ParseUint(destTok, 10, 32)
	if err != nil {
		return 0, "", fmt.Errorf("non-numeric destination: %w", err)
	}
	if n > 65535 {
		return 0, "", errors.New("destination out of range [0,65535]")
	}
	return uint16(n), ifaceTok, nil
}

// Tx unpacks pkt's destination, looks up the route, enforces MTU, and
// invokes the interface's transmit callback. The table's mutex is held
// only for the lookup; the callback runs outside the lock so a loopback
// driver re-entering the ingress dispatcher cannot deadlock against it.
func (t *Table) Tx(pkt *wire.Packet) error {
	dstNode, _, _, _, _ := wire.Unpack(pkt.Header)

	t.mu.Lock()
	iface, ok := t.routes[uint16(dstNode)]
	t.mu.Unlock()

	if !ok {
		t.log.WithFields(logrus.Fields{"component": "route", "dst": dstNode}).Error("no route to destination")
		return ErrUnknownDestination
	}
	if wire.HeaderSize+int(pkt.Length) > iface.MTU {
		t.log.WithFields(logrus.Fields{"component": "route", "dst": dstNode, "interface": iface.Name}).Error("frame exceeds mtu")
		return ErrMTUExceeded
	}
	return iface.Transmit(pkt)
}

// Interface returns the registered interface with the given name, or nil.
func (t *Table) Interface(name string) *link.Interface {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interfaces[name]
}
