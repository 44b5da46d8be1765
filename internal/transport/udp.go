package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/nimbusdns/beacon/internal/errors"
	"github.com/nimbusdns/beacon/internal/network"
	"github.com/nimbusdns/beacon/internal/protocol"
)

// UDPv4Transport implements Transport interface for IPv4 UDP multicast.
//
// This implementation:
// - Uses net.ListenConfig with a platform-specific Control function (SO_REUSEADDR +
//   SO_REUSEPORT where the kernel supports it) so the Record Repository and every
//   Service-Type Client can bind port 5353 independently, and to coexist with
//   Avahi/Bonjour/systemd-resolved on the same host.
// - Joins the mDNS multicast group via golang.org/x/net/ipv4 on every UP+MULTICAST
//   interface, rather than net.ListenMulticastUDP's single-interface join.
// - Adds context support for cancellation and deadlines (F-9 REQ-F9-7)
// - Fixes error propagation in Close() (FR-004)
type UDPv4Transport struct {
	conn net.PacketConn
	pc   *ipv4.PacketConn
}

// NewUDPv4Transport creates a UDP multicast transport bound to mDNS port 5353.
//
// RFC 6762 §5: mDNS uses UDP port 5353 and multicast address 224.0.0.251
// RFC 6762 §11: Multicast DNS messages MUST be sent with TTL=255
//
// FR-004: System MUST use mDNS port 5353 and multicast address 224.0.0.251
// FR-013: System MUST return NetworkError for socket creation failures
//
// Returns:
//   - *UDPv4Transport: Configured transport ready for Send/Receive
//   - error: NetworkError if socket creation fails
//
// T021: Socket creation, multicast join
func NewUDPv4Transport() (*UDPv4Transport, error) {
	ctx := context.Background()

	// Bind to 0.0.0.0:5353 (not the multicast address itself) with
	// SO_REUSEADDR/SO_REUSEPORT applied before bind, so this process can
	// coexist with another mDNS responder already on the host.
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind to port %d (is Avahi/Bonjour running without SO_REUSEPORT?)", protocol.Port),
		}
	}

	pc := ipv4.NewPacketConn(conn)

	multicastGroup := net.IPv4(224, 0, 0, 251)
	ifaces, err := network.DefaultInterfaces()
	if err != nil {
		_ = conn.Close() // Ignore error, already returning primary error
		return nil, &errors.NetworkError{
			Operation: "enumerate interfaces",
			Err:       err,
			Details:   "failed to get network interfaces for multicast join",
		}
	}

	joined := 0
	for _, iface := range ifaces {
		ifaceCopy := iface
		if err := pc.JoinGroup(&ifaceCopy, &net.UDPAddr{IP: multicastGroup}); err != nil {
			continue // interface doesn't support multicast membership; skip it
		}
		joined++
	}
	if joined == 0 {
		_ = conn.Close() // Ignore error, already returning primary error
		return nil, &errors.NetworkError{
			Operation: "join multicast group",
			Err:       fmt.Errorf("no interfaces available"),
			Details:   "failed to join 224.0.0.251 on any interface",
		}
	}

	if err := pc.SetMulticastTTL(255); err != nil {
		_ = conn.Close() // Ignore error, already returning primary error
		return nil, &errors.NetworkError{
			Operation: "set multicast TTL",
			Err:       err,
			Details:   "failed to set TTL=255",
		}
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		_ = conn.Close() // Ignore error, already returning primary error
		return nil, &errors.NetworkError{
			Operation: "set multicast loopback",
			Err:       err,
			Details:   "failed to enable loopback",
		}
	}

	if udpConn, ok := conn.(*net.UDPConn); ok {
		if err := udpConn.SetReadBuffer(65536); err != nil {
			_ = conn.Close() // Ignore error, already returning primary error
			return nil, &errors.NetworkError{
				Operation: "configure socket",
				Err:       err,
				Details:   "failed to set read buffer size",
			}
		}
	}

	return &UDPv4Transport{conn: conn, pc: pc}, nil
}

// Send transmits a packet to the specified destination address.
//
// RFC 6762 §5: Queries are sent to 224.0.0.251:5353
//
// FR-005: System MUST send queries to multicast group 224.0.0.251:5353
// FR-013: System MUST return NetworkError for transmission failures
//
// T022: Migrate internal/network SendQuery logic, make T013 pass
func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	// Check context cancellation before sending
	select {
	case <-ctx.Done():
		return &errors.NetworkError{
			Operation: "send query",
			Err:       ctx.Err(),
			Details:   "context canceled before send",
		}
	default:
	}

	// Send query to destination
	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &errors.NetworkError{
			Operation: "send query",
			Err:       err,
			Details:   fmt.Sprintf("failed to send %d bytes to %s", len(packet), dest),
		}
	}

	// Verify full message was sent
	if n != len(packet) {
		return &errors.NetworkError{
			Operation: "send query",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
			Details:   "incomplete transmission",
		}
	}

	return nil
}

// Receive waits for an incoming packet, respecting context cancellation/deadline.
//
// Context support per F-9 REQ-F9-7.
//
// FR-006: System MUST receive responses with configurable timeout
// FR-013: System MUST return NetworkError for timeout or receive errors
// F-9 REQ-F9-7: Context propagation (M1.1 alignment)
//
// T023: Migrate internal/network ReceiveResponse, add ctx.Done() checking to make T014-T015 pass
func (t *UDPv4Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	// Check context cancellation before receive
	select {
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{
			Operation: "receive response",
			Err:       ctx.Err(),
			Details:   "context canceled before receive",
		}
	default:
	}

	// Propagate context deadline to socket (F-9 REQ-F9-7)
	if deadline, ok := ctx.Deadline(); ok {
		err := t.conn.SetReadDeadline(deadline)
		if err != nil {
			return nil, nil, &errors.NetworkError{
				Operation: "set read timeout",
				Err:       err,
				Details:   fmt.Sprintf("failed to set deadline %v", deadline),
			}
		}
	}

	// T053: Get buffer from pool (FR-003 buffer pooling optimization)
	// This eliminates hot path allocations (9KB/receive → near-zero after warmup)
	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr) // T053: Return buffer to pool on function exit

	buffer := *bufPtr

	// Read response
	n, srcAddr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		// Check if it's a timeout error
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, &errors.NetworkError{
				Operation: "receive response",
				Err:       err,
				Details:   "timeout",
			}
		}

		return nil, nil, &errors.NetworkError{
			Operation: "receive response",
			Err:       err,
			Details:   "failed to read from socket",
		}
	}

	// T054: Return copy to caller (pool owns buffer, caller owns result)
	// This ensures caller can use result after buffer is returned to pool
	result := make([]byte, n)
	copy(result, buffer[:n])
	return result, srcAddr, nil
}

// Close releases network resources.
//
// Per FR-004, close errors are propagated instead of swallowed.
//
// FR-017: System MUST close socket after query completion
// FR-004 FIX: Return errors to caller (was swallowing errors at line 172-176)
//
// T024: Migrate internal/network CloseSocket, FIX error propagation to make T016 pass (FR-004)
func (t *UDPv4Transport) Close() error {
	if t.conn == nil {
		return nil // Gracefully handle nil connection
	}

	err := t.conn.Close()
	if err != nil {
		// FR-004 FIX: Propagate error to caller (don't swallow it)
		return &errors.NetworkError{
			Operation: "close socket",
			Err:       err,
			Details:   "failed to close UDP connection",
		}
	}

	return nil
}
