package message

import (
	"strings"

	"github.com/nimbusdns/beacon/internal/errors"
	"github.com/nimbusdns/beacon/internal/protocol"
)

// NameWriter serializes DNS names into a growing packet buffer, applying
// RFC 1035 §4.1.4 message compression: every label-suffix previously written
// anywhere in the packet is remembered by byte offset, and a later name that
// shares a suffix with one already written emits a two-byte pointer
// (0xC000 | offset) instead of repeating the labels.
//
// A NameWriter is scoped to one outbound packet; its dictionary is only
// valid for offsets within that packet's buffer.
type NameWriter struct {
	buf   []byte
	dict  map[string]int // dotted, case-folded label suffix -> byte offset
	start int
}

// NewNameWriter creates a writer appending to buf (typically already holding
// the 12-byte header and any earlier sections).
func NewNameWriter(buf []byte) *NameWriter {
	return &NameWriter{
		buf:  buf,
		dict: make(map[string]int),
	}
}

// Bytes returns the accumulated buffer.
func (w *NameWriter) Bytes() []byte { return w.buf }

// WriteName appends name (compressed where possible) to the writer's buffer,
// which Bytes returns. Root/empty names are written as a single zero byte and never enter
// the dictionary (pointing at the root is never a useful compression).
func (w *NameWriter) WriteName(name string) error {
	if name == "" || name == "." {
		w.buf = append(w.buf, 0)
		return nil
	}

	labels := strings.Split(strings.TrimSuffix(name, "."), ".")

	for i := 0; i < len(labels); i++ {
		suffix := strings.ToLower(strings.Join(labels[i:], "."))

		if offset, ok := w.dict[suffix]; ok && offset <= 0x3FFF {
			pointer := uint16(protocol.CompressionMask)<<8 | uint16(offset)
			w.buf = append(w.buf, byte(pointer>>8), byte(pointer))
			return nil
		}

		// Record this suffix's offset before writing it, provided it fits
		// in the 14-bit pointer space future names could reference.
		if len(w.buf) <= 0x3FFF {
			w.dict[suffix] = len(w.buf)
		}

		label := labels[i]
		if len(label) > protocol.MaxLabelLength {
			return &errors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: "label exceeds maximum length 63 bytes",
			}
		}
		w.buf = append(w.buf, byte(len(label)))
		w.buf = append(w.buf, []byte(label)...)
	}

	w.buf = append(w.buf, 0)
	return nil
}

// WriteServiceInstanceName appends an RFC 6763 §4.3 service instance name:
// the instance portion is a single opaque (non-compressible, non-dictionary)
// label, followed by the normally-compressible service-type suffix.
func (w *NameWriter) WriteServiceInstanceName(instanceName, serviceType string) error {
	if len(instanceName) > protocol.MaxLabelLength {
		return &errors.ValidationError{
			Field:   "instanceName",
			Value:   instanceName,
			Message: "instance name exceeds maximum label length 63 bytes",
		}
	}
	w.buf = append(w.buf, byte(len(instanceName)))
	w.buf = append(w.buf, []byte(instanceName)...)
	return w.WriteName(serviceType)
}
