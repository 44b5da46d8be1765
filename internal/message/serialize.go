package message

import (
	"encoding/binary"

	"github.com/nimbusdns/beacon/internal/errors"
)

// Serialize encodes a complete DNSMessage (header + all four sections) to
// wire format, sharing one compression dictionary across the whole packet
// per RFC 1035 §4.1.4 — a name written in the answer section can be pointed
// to by a name later in the additional section, and vice versa.
//
// Unlike BuildResponse (which only serializes a flat answer list with no
// compression), Serialize is the general-purpose encoder the Record
// Repository and Service-Type Client use to emit probes, announcements,
// goodbyes, queries-with-known-answers, and replies.
func Serialize(msg *DNSMessage) ([]byte, error) {
	header := make([]byte, 12)
	binary.BigEndian.PutUint16(header[0:2], msg.Header.ID)
	binary.BigEndian.PutUint16(header[2:4], msg.Header.Flags)
	binary.BigEndian.PutUint16(header[4:6], uint16(len(msg.Questions)))
	binary.BigEndian.PutUint16(header[6:8], uint16(len(msg.Answers)))
	binary.BigEndian.PutUint16(header[8:10], uint16(len(msg.Authorities)))
	binary.BigEndian.PutUint16(header[10:12], uint16(len(msg.Additionals)))

	w := NewNameWriter(header)

	for _, q := range msg.Questions {
		if err := w.WriteName(q.QNAME); err != nil {
			return nil, err
		}
		w.buf = appendUint16(w.buf, q.QTYPE)
		w.buf = appendUint16(w.buf, q.QCLASS)
	}

	for _, section := range [][]Answer{msg.Answers, msg.Authorities, msg.Additionals} {
		for _, rr := range section {
			if err := writeRecord(w, rr); err != nil {
				return nil, err
			}
		}
	}

	return w.Bytes(), nil
}

// writeRecord appends one NAME/TYPE/CLASS/TTL/RDLENGTH/RDATA entry, writing
// RDATA through the same compressing NameWriter when the record's data is
// itself name-bearing (PTR/SRV/NSEC), so e.g. a PTR target that was already
// written elsewhere in the packet compresses too.
func writeRecord(w *NameWriter, rr Answer) error {
	if err := w.WriteName(rr.NAME); err != nil {
		return err
	}
	w.buf = appendUint16(w.buf, rr.TYPE)
	w.buf = appendUint16(w.buf, rr.CLASS)
	w.buf = append(w.buf, byte(rr.TTL>>24), byte(rr.TTL>>16), byte(rr.TTL>>8), byte(rr.TTL))

	rdlenPos := len(w.buf)
	w.buf = append(w.buf, 0, 0) // RDLENGTH placeholder
	rdataStart := len(w.buf)

	if err := writeRDATA(w, rr.TYPE, rr.RDATA); err != nil {
		return err
	}

	rdlen := len(w.buf) - rdataStart
	if rdlen > 0xFFFF {
		return &errors.WireFormatError{Operation: "serialize record", Message: "RDATA exceeds 65535 bytes"}
	}
	w.buf[rdlenPos] = byte(rdlen >> 8)
	w.buf[rdlenPos+1] = byte(rdlen)
	return nil
}

// writeRDATA re-emits pre-encoded RDATA, recompressing the embedded name for
// record types whose RDATA is (or contains, at a fixed offset) a domain
// name. Other types are copied through opaquely.
func writeRDATA(w *NameWriter, recordType uint16, rdata []byte) error {
	switch recordType {
	case 12, 47: // PTR, NSEC: RDATA is entirely a name (NSEC's next-domain)
		name, _, err := ParseName(rdata, 0)
		if err != nil {
			return err
		}
		if err := w.WriteName(name); err != nil {
			return err
		}
		if recordType == 47 {
			// Append the type bitmap following the next-domain name verbatim.
			_, consumed, err := parseNameLen(rdata)
			if err != nil {
				return err
			}
			w.buf = append(w.buf, rdata[consumed:]...)
		}
		return nil

	case 33: // SRV: 6 fixed bytes + target name
		if len(rdata) < 6 {
			return &errors.WireFormatError{Operation: "serialize SRV", Message: "truncated SRV rdata"}
		}
		w.buf = append(w.buf, rdata[0:6]...)
		target, _, err := ParseName(rdata, 6)
		if err != nil {
			return err
		}
		return w.WriteName(target)

	default:
		w.buf = append(w.buf, rdata...)
		return nil
	}
}

// parseNameLen returns the decoded name and the number of bytes it consumed
// from the start of buf (buf must not itself contain compression pointers —
// true for freshly-built RDATA we are about to re-serialize).
func parseNameLen(buf []byte) (string, int, error) {
	name, offset, err := ParseName(buf, 0)
	return name, offset, err
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}
