package servicetype

import (
	"strings"

	"github.com/nimbusdns/beacon/internal/records"
)

// ServiceInfo is the aggregated view of a discovered service instance handed
// to listener callbacks.
type ServiceInfo struct {
	InstanceName string
	ServiceType  string
	Hostname     string
	Port         uint16
	TXT          []records.TXTEntry
	IPv4         [][]byte
	IPv6         [][]byte
	Subtypes     []string
}

// hasAddress reports whether at least one address record is known, the
// third leg of Invariant C completeness.
func (s ServiceInfo) hasAddress() bool {
	return len(s.IPv4) > 0 || len(s.IPv6) > 0
}

// Listener subscribes to one Client's discovery stream. A zero-value
// Listener observes every instance of the Client's service-type with no
// filtering.
type Listener struct {
	// ID is assigned by Client.AddListener and used to unsubscribe.
	ID int64

	// Mode selects the query burst/backoff schedule this listener
	// contributes to the shared Client scheduler.
	Mode Mode

	// ResolveInstanceName, when non-empty, restricts this listener to one
	// instance and switches the Client's question list to ANY(instance)
	// instead of PTR(service-type) for as long as any listener requests it.
	ResolveInstanceName string

	// Subtypes restricts callbacks to instances whose observed subtype PTRs
	// intersect this set (case-insensitive). Empty means no restriction.
	Subtypes []string

	OnServiceNameDiscovered func(info ServiceInfo, fromCache bool)
	OnServiceFound          func(info ServiceInfo, fromCache bool)
	OnServiceUpdated        func(info ServiceInfo)
	OnServiceRemoved        func(info ServiceInfo)
	OnServiceNameRemoved    func(info ServiceInfo)
}

func (l *Listener) matches(instanceName string, subtypes []string) bool {
	if l.ResolveInstanceName != "" && !strings.EqualFold(l.ResolveInstanceName, instanceName) {
		return false
	}
	if len(l.Subtypes) == 0 {
		return true
	}
	for _, want := range l.Subtypes {
		for _, got := range subtypes {
			if strings.EqualFold(want, got) {
				return true
			}
		}
	}
	return false
}

func (l *Listener) fireNameDiscovered(info ServiceInfo, fromCache bool) {
	if l.OnServiceNameDiscovered != nil {
		l.OnServiceNameDiscovered(info, fromCache)
	}
}

func (l *Listener) fireFound(info ServiceInfo, fromCache bool) {
	if l.OnServiceFound != nil {
		l.OnServiceFound(info, fromCache)
	}
}

func (l *Listener) fireUpdated(info ServiceInfo) {
	if l.OnServiceUpdated != nil {
		l.OnServiceUpdated(info)
	}
}

func (l *Listener) fireRemoved(info ServiceInfo) {
	if l.OnServiceRemoved != nil {
		l.OnServiceRemoved(info)
	}
}

func (l *Listener) fireNameRemoved(info ServiceInfo) {
	if l.OnServiceNameRemoved != nil {
		l.OnServiceNameRemoved(info)
	}
}
