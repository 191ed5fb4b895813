package ngp_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nodeproto/ngp"
	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/socket"
)

const node = 7
const frameMTU = 4 + 128

func newEngine(t *testing.T) *ngp.Engine {
	t.Helper()
	e, err := ngp.New(ngp.Config{LocalNode: node})
	require.NoError(t, err)

	lo := link.NewLoopback("lo0", node, frameMTU, false)
	require.NoError(t, e.RegisterInterface(lo.Iface))
	require.NoError(t, e.LoadRouteTable("7:lo0"))
	return e
}

func TestEngineDatagramRoundTrip(t *testing.T) {
	e := newEngine(t)

	a, err := e.Socket(socket.Dgram)
	require.NoError(t, err)
	require.NoError(t, e.Bind(a, 1))

	b, err := e.Socket(socket.Dgram)
	require.NoError(t, err)
	require.NoError(t, e.Bind(b, 2))

	n, err := e.SendTo(a, []byte("ping"), node, 2)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 16)
	got, srcNode, srcPort, err := e.RecvFrom(b, buf, time.Second)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:got]))
	require.Equal(t, uint8(node), srcNode)
	require.Equal(t, uint8(1), srcPort)
}

func TestEngineStreamFragmentedRoundTrip(t *testing.T) {
	e := newEngine(t)

	srv, err := e.Socket(socket.Stream)
	require.NoError(t, err)
	require.NoError(t, e.Bind(srv, 10))
	require.NoError(t, e.Listen(srv, 1))

	cli, err := e.Socket(socket.Stream)
	require.NoError(t, err)
	require.NoError(t, e.Bind(cli, 11))

	done := make(chan error, 1)
	go func() { done <- e.Connect(cli, node, 10, time.Second) }()
	accepted, err := e.Accept(srv, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)

	msg := bytes.Repeat([]byte("x"), 300)
	sent, err := e.SendStream(cli, msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), sent)

	head, err := e.RecvStream(accepted, time.Second)
	require.NoError(t, err)
	defer e.FreeChain(head)

	var got []byte
	for p := head; p != nil; p = p.Next {
		got = append(got, p.Data()...)
	}
	require.Equal(t, msg, got)
}

func TestEngineMetricsCollectorDoesNotPanic(t *testing.T) {
	e := newEngine(t)
	_, err := e.Socket(socket.Dgram)
	require.NoError(t, err)

	descs := make(chan *prometheus.Desc, 16)
	e.Metrics().Describe(descs)
	close(descs)
	count := 0
	for range descs {
		count++
	}
	require.Greater(t, count, 0)

	metrics := make(chan prometheus.Metric, 16)
	e.Metrics().Collect(metrics)
	close(metrics)
	count = 0
	for range metrics {
		count++
	}
	require.Greater(t, count, 0)
}
