package socket_test

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/nodeproto/ngp/link"
	mock_link "github.com/nodeproto/ngp/link/mock"
	"github.com/nodeproto/ngp/pool"
	"github.com/nodeproto/ngp/route"
	"github.com/nodeproto/ngp/socket"
	"github.com/nodeproto/ngp/wire"
)

// TestConnectEmitsSynViaMockDriver exercises the dispatcher without a real
// driver: the routing table's only interface forwards every transmitted
// packet to a gomock.Transmitter double, letting the test assert on the
// exact frame the handshake puts on the wire without needing a peer to
// answer it.
func TestConnectEmitsSynViaMockDriver(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockTx := mock_link.NewMockTransmitter(ctrl)

	var captured *wire.Packet
	mockTx.EXPECT().Transmit(gomock.Any()).DoAndReturn(func(pkt *wire.Packet) error {
		cp := *pkt
		captured = &cp
		return nil
	}).Times(1)

	iface := &link.Interface{
		Name:    "mock0",
		Address: node,
		MTU:     frameMTU,
		Tx: func(_ *link.Interface, pkt *wire.Packet) error {
			return mockTx.Transmit(pkt)
		},
	}

	r := route.New(nil)
	require.NoError(t, r.RegisterInterface(iface))
	require.NoError(t, r.LoadTable("10:mock0"))

	tbl := socket.NewTable(node, pool.New(nil), r, nil, nil)

	cli, err := tbl.Socket(socket.Stream)
	require.NoError(t, err)
	require.NoError(t, tbl.Bind(cli, 11))

	err = tbl.Connect(cli, node, 10, 20*time.Millisecond)
	require.ErrorIs(t, err, socket.ErrHandshakeTimeout)

	require.NotNil(t, captured)
	_, _, _, _, flags := wire.Unpack(captured.Header)
	require.Equal(t, wire.FlagSYN, flags&wire.FlagSYN)
}
