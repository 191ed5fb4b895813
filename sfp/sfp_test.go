package sfp_test

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/pool"
	"github.com/nodeproto/ngp/route"
	"github.com/nodeproto/ngp/sfp"
	"github.com/nodeproto/ngp/socket"
)

// harness mirrors the specification's own end-to-end scenarios (section
// 8): one node number, one synchronous loopback interface, two sockets
// bound to different ports talking to each other through the real
// route.Tx -> link.Interface -> Table.Input path.
type harness struct {
	localNode uint8
	pool      *pool.Pool
	route     *route.Table
	table     *socket.Table
}

const localNode = 50
const frameMTU = 4 + 128 // HeaderSize + MaxPacket

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{localNode: localNode, pool: pool.New(nil), route: route.New(nil)}
	h.table = socket.NewTable(localNode, h.pool, h.route, nil, nil)

	lo := link.NewLoopback("lo0", localNode, frameMTU, false)
	lo.Iface.Input = h.table.Input
	h.route.RegisterInterface(lo.Iface)
	// the only destination on this single-node harness resolves through lo0
	if err := h.route.LoadTable(fmt.Sprintf("%d:lo0", localNode)); err != nil {
		t.Fatal(err)
	}
	return h
}

func connectPair(t *testing.T, h *harness) (client, server *socket.Socket) {
	t.Helper()
	srv, err := h.table.Socket(socket.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.table.Bind(srv, 10); err != nil {
		t.Fatal(err)
	}
	h.table.Listen(srv, 1)

	cli, err := h.table.Socket(socket.Stream)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.table.Bind(cli, 11); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- h.table.Connect(cli, localNode, 10, time.Second) }()

	accepted, err := h.table.Accept(srv, time.Second)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("connect: %v", err)
	}
	return cli, accepted
}

func TestFragmentationRoundTrip(t *testing.T) {
	h := newHarness(t)
	client, server := connectPair(t, h)

	msg := bytes.Repeat([]byte("0123456789abcdef"), 32) // 512 bytes

	sent, err := sfp.Send(h.route, h.pool, client, msg, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent != len(msg) {
		t.Fatalf("Send returned %d, want %d", sent, len(msg))
	}

	head, err := sfp.Recv(h.table, h.pool, server, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	var got []byte
	count := 0
	for p := head; p != nil; p = p.Next {
		got = append(got, p.Data()...)
		count++
	}
	h.pool.FreeChain(head)

	wantFragments := 5 // ceil(512/123)
	if count != wantFragments {
		t.Fatalf("fragment count = %d, want %d", count, wantFragments)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Fatalf("reassembled payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSendRejectsOversizeMessage(t *testing.T) {
	h := newHarness(t)
	client, _ := connectPair(t, h)

	huge := make([]byte, sfp.MaxFragments*123+1)
	if _, err := sfp.Send(h.route, h.pool, client, huge, nil); err != sfp.ErrTooLarge {
		t.Fatalf("Send() = %v, want ErrTooLarge", err)
	}
}
