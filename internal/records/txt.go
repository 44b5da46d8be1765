package records

import "strings"

// TXTEntry is one ordered attribute of a DNS-SD TXT record per RFC 6763
// §6.3/§6.4. A key can appear three distinct ways on the wire, and TXTEntry
// keeps them distinguishable where a map[string]string cannot:
//
//   - "key" alone (no "="): Present is false, Value is nil - an
//     attribute present with no value.
//   - "key=" (empty after "="): Present is true, Value is []byte{} - an
//     attribute with an explicit empty string value.
//   - "key=value": Present is true, Value is the value bytes.
//
// RFC 6763 §6.1 also requires entries be transmitted in the order the
// application supplied them, so callers hold these in a slice, not a map.
type TXTEntry struct {
	Key     string
	Value   []byte
	Present bool
}

// EncodeTXTEntries builds TXT RDATA from an ordered entry list per RFC 6763
// §6.4. An empty list encodes as the mandatory single zero-length string
// (0x00) required when a service has no TXT data.
func EncodeTXTEntries(entries []TXTEntry) []byte {
	if len(entries) == 0 {
		return []byte{0x00}
	}

	data := make([]byte, 0, 256)
	for _, e := range entries {
		s := e.Key
		if e.Present {
			s = s + "=" + string(e.Value)
		}
		if len(s) > 255 {
			s = s[:255] // RFC 6763 §6.1: each string is at most 255 octets
		}
		data = append(data, byte(len(s)))
		data = append(data, []byte(s)...)
	}
	return data
}

// DecodeTXTEntries turns the already length-prefix-split strings a TXT RDATA
// parse produces (message.ParseRDATA for type 16) into ordered TXTEntry
// values, preserving the key-only vs explicit-empty-value distinction RFC
// 6763 §6.4 requires. Zero-length strings are RFC 6763 §6.6 padding and are
// dropped rather than turned into an entry.
func DecodeTXTEntries(strs []string) []TXTEntry {
	var out []TXTEntry
	for _, s := range strs {
		if s == "" {
			continue
		}
		if idx := strings.IndexByte(s, '='); idx >= 0 {
			out = append(out, TXTEntry{Key: s[:idx], Value: []byte(s[idx+1:]), Present: true})
		} else {
			out = append(out, TXTEntry{Key: s})
		}
	}
	return out
}

// TXTSize returns the encoded wire size entries would occupy, for RFC 6763
// §6.2's 1300-byte recommended ceiling.
func TXTSize(entries []TXTEntry) int {
	total := 0
	for _, e := range entries {
		n := len(e.Key)
		if e.Present {
			n += 1 + len(e.Value)
		}
		total += 1 + n
	}
	return total
}

// TXTGet returns the value of the first entry matching key (case-sensitive,
// per RFC 6763 §6.4) and whether the key was present at all.
func TXTGet(entries []TXTEntry, key string) (string, bool) {
	for _, e := range entries {
		if e.Key == key {
			return string(e.Value), e.Present
		}
	}
	return "", false
}
