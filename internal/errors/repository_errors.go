package errors

import "fmt"

// NameConflictError is returned when addService is rejected because the
// requested instance (or custom host) name equals an existing active local
// name (spec §3 Invariant A, §7).
type NameConflictError struct {
	Name string
	Err  error
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("name conflict: %q is already registered", e.Name)
}

func (e *NameConflictError) Unwrap() error { return e.Err }

// DuplicateIDError is returned when addService is called with a service id
// that is already registered and active.
type DuplicateIDError struct {
	ID int32
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate service id %d", e.ID)
}

// UnknownIDError is returned by updateService/exitService/removeService/
// setServiceProbing/getOffloadPacket for a service id that was never
// registered, or has already been fully removed.
type UnknownIDError struct {
	ID int32
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown service id %d", e.ID)
}

// PacketMalformedError wraps a decode failure that caused an inbound packet
// to be dropped without mutating any state.
type PacketMalformedError struct {
	Reason string
	Err    error
}

func (e *PacketMalformedError) Error() string {
	return fmt.Sprintf("malformed packet: %s", e.Reason)
}

func (e *PacketMalformedError) Unwrap() error { return e.Err }

// UnknownRecordTypeError marks an rdata payload whose type is not
// interpreted; it is preserved opaquely during framing and ignored during
// interpretation, never surfaced as a fatal error.
type UnknownRecordTypeError struct {
	Type uint16
}

func (e *UnknownRecordTypeError) Error() string {
	return fmt.Sprintf("unknown record type %d", e.Type)
}

// QuotaExceededError is returned when an optional cap on listeners or
// registrations per process has been reached.
type QuotaExceededError struct {
	Resource string
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: limit %d", e.Resource, e.Limit)
}
