// Package transport provides network transport abstractions for mDNS
// communication, decoupling the Record Repository and Service-Type Client
// event loops from any one socket implementation.
package transport

import (
	"context"
	"net"
)

// Transport abstracts sending and receiving raw mDNS packets. It lets the
// Repository and Service-Type Client share the same send/receive surface
// over a real UDP multicast socket (UDPv4Transport) or a MockTransport in
// tests.
type Transport interface {
	// Send transmits packet to dest. dest is the mDNS multicast group for
	// multicast replies/queries, or a unicast UDP address when replying
	// directly to a querier that set the unicast-response bit.
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive waits for the next inbound packet, respecting ctx
	// cancellation/deadline.
	Receive(ctx context.Context) (packet []byte, srcAddr net.Addr, err error)

	// Close releases the underlying socket.
	Close() error
}

var (
	_ Transport = (*UDPv4Transport)(nil)
	_ Transport = (*MockTransport)(nil)
)
