package route

import (
	"testing"

	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/wire"
)

func dummyIface(name string, mtu int) *link.Interface {
	return &link.Interface{
		Name: name,
		MTU:  mtu,
		Tx:   func(*link.Interface, *wire.Packet) error { return nil },
	}
}

func TestLoadTableParsesAndReplacesDuplicates(t *testing.T) {
	rt := New(nil)
	if err := rt.RegisterInterface(dummyIface("eth0", 256)); err != nil {
		t.Fatal(err)
	}
	if err := rt.RegisterInterface(dummyIface("eth1", 256)); err != nil {
		t.Fatal(err)
	}

	if err := rt.LoadTable("10:eth0, 20:eth1\n30:eth0"); err != nil {
		t.Fatalf("LoadTable: %v", err)
	}

	if rt.routes[10].Name != "eth0" || rt.routes[20].Name != "eth1" || rt.routes[30].Name != "eth0" {
		t.Fatalf("unexpected routes: %+v", rt.routes)
	}

	// second entry for the same destination replaces the first
	if err := rt.LoadTable("10:eth0, 10:eth1"); err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if rt.routes[10].Name != "eth1" {
		t.Fatalf("destination 10 = %s, want eth1", rt.routes[10].Name)
	}
	if len(rt.routes) != 1 {
		t.Fatalf("len(routes) = %d, want 1", len(rt.routes))
	}
}

func TestLoadTableAtomicOnError(t *testing.T) {
	rt := New(nil)
	rt.RegisterInterface(dummyIface("eth0", 256))

	if err := rt.LoadTable("10:eth0"); err != nil {
		t.Fatal(err)
	}

	if err := rt.LoadTable("10:eth0, not-a-number:eth0, 20:unknown-iface"); err == nil {
		t.Fatal("expected error for malformed table")
	}
	if len(rt.routes) != 0 {
		t.Fatalf("routes not cleared after parse error: %+v", rt.routes)
	}
}

func TestLoadTableRejectsEmptyAndMissingSeparator(t *testing.T) {
	rt := New(nil)
	rt.RegisterInterface(dummyIface("eth0", 256))

	cases := []string{"10-eth0", ":eth0", "10:", "99999999999:eth0"}
	for _, c := range cases {
		if err := rt.LoadTable(c); err == nil {
			t.Fatalf("LoadTable(%q) succeeded, want error", c)
		}
		if len(rt.routes) != 0 {
			t.Fatalf("routes not cleared after error on %q", c)
		}
	}
}

func TestTxEnforcesMTU(t *testing.T) {
	rt := New(nil)
	rt.RegisterInterface(dummyIface("eth0", wire.HeaderSize+4))
	rt.LoadTable("10:eth0")

	pkt := &wire.Packet{Header: wire.Pack(false, 10, 1, 0, 0, 0)}
	pkt.SetData([]byte("12345")) // 5 bytes, budget is 4

	if err := rt.Tx(pkt); err != ErrMTUExceeded {
		t.Fatalf("Tx() = %v, want ErrMTUExceeded", err)
	}
}

func TestTxUnknownDestination(t *testing.T) {
	rt := New(nil)
	pkt := &wire.Packet{Header: wire.Pack(false, 42, 1, 0, 0, 0)}
	if err := rt.Tx(pkt); err != ErrUnknownDestination {
		t.Fatalf("Tx() = %v, want ErrUnknownDestination", err)
	}
}

func TestRegisterInterfaceRejectsIncomplete(t *testing.T) {
	rt := New(nil)
	if err := rt.RegisterInterface(&link.Interface{}); err == nil {
		t.Fatal("expected error for incomplete interface")
	}
}
