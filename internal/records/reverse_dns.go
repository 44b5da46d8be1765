package records

import (
	"fmt"
	"strings"

	"github.com/nimbusdns/beacon/internal/errors"
)

// ReverseName computes the reverse-DNS owner name for an IPv4 (4-byte) or
// IPv6 (16-byte) address per spec §6: IPv4 "d.c.b.a.in-addr.arpa"; IPv6 as
// 32 nibble labels in reverse, lowercase hex, followed by "ip6.arpa".
func ReverseName(addr []byte) (string, error) {
	switch len(addr) {
	case 4:
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", addr[3], addr[2], addr[1], addr[0]), nil
	case 16:
		var b strings.Builder
		for i := len(addr) - 1; i >= 0; i-- {
			lo := addr[i] & 0x0F
			hi := addr[i] >> 4
			fmt.Fprintf(&b, "%x.%x.", lo, hi)
		}
		b.WriteString("ip6.arpa")
		return b.String(), nil
	default:
		return "", &errors.ValidationError{
			Field:   "addr",
			Value:   addr,
			Message: "address must be 4 (IPv4) or 16 (IPv6) bytes",
		}
	}
}
