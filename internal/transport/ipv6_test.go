package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdns/beacon/internal/transport"
)

// T011-equivalent for IPv6: UDPv6Transport implements Transport interface.
func TestUDPv6Transport_ImplementsTransportInterface(_ *testing.T) {
	var _ transport.Transport = (*transport.UDPv6Transport)(nil)
}

func TestUDPv6Transport_Send_SendsToMulticastAddress(t *testing.T) {
	tr, err := transport.NewUDPv6Transport()
	if err != nil {
		t.Skipf("IPv6 multicast unavailable in this environment: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx := context.Background()
	packet := []byte{0x00, 0x00, 0x00, 0x00}
	mdnsAddr := &net.UDPAddr{
		IP:   net.ParseIP("ff02::fb"),
		Port: 5353,
	}

	assert.NoError(t, tr.Send(ctx, packet, mdnsAddr))
}

func TestUDPv6Transport_Receive_RespectsContextCancellation(t *testing.T) {
	tr, err := transport.NewUDPv6Transport()
	if err != nil {
		t.Skipf("IPv6 multicast unavailable in this environment: %v", err)
	}
	defer func() { _ = tr.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, _, err = tr.Receive(ctx)
	require.Error(t, err, "Receive() should return error when context is already canceled")
	assert.Lessf(t, time.Since(start), 100*time.Millisecond,
		"Receive() should return near-immediately on canceled context")
}

func TestUDPv6Transport_Close_ReleasesSocket(t *testing.T) {
	tr, err := transport.NewUDPv6Transport()
	if err != nil {
		t.Skipf("IPv6 multicast unavailable in this environment: %v", err)
	}

	assert.NoError(t, tr.Close())
}
