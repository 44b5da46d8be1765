// Package repository implements the Record Repository: the single-owner
// actor that tracks every service this process advertises, drives its
// probe/announce/exit lifecycle, and answers inbound queries.
//
// Per the concurrency model, a Repository is not safe for concurrent use.
// Every exported method is meant to be invoked from one dedicated goroutine
// (the caller's event loop); there is no internal locking.
package repository

import (
	"strings"
	"time"

	"github.com/nimbusdns/beacon/internal/clock"
	"github.com/nimbusdns/beacon/internal/errors"
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/records"
)

// state tracks the per-registration lifecycle.
type state int

const (
	stateNew state = iota
	stateProbing
	stateConflict
	stateProbed
	stateAnnouncing
	stateActive
	stateExiting
	stateRemoved
)

// service is the repository's internal record for one registration.
type service struct {
	id                   int32
	info                 records.ServiceInfo
	ttlOverrideMillis     uint32 // 0 means "use protocol defaults"
	state                state
	repliedRequestsCount int
	sentPacketCount      int
	goodbyeSent          bool
}

func (s *service) instanceFQDN() string {
	return s.info.InstanceName + "." + s.info.ServiceType
}

// ProbingInfo is the packet template returned by setServiceProbing.
type ProbingInfo struct {
	ID      int32
	Packet  []byte
	Owned   []*recordsResourceRecord
	Unicast bool
}

// recordsResourceRecord aliases the wire record type to avoid importing
// internal/message in callers that only need the repository API.
type recordsResourceRecord = records.ResourceRecord

// AnnouncementInfo is the packet template returned by onProbingSucceeded,
// exitService, and the restart* operations.
type AnnouncementInfo struct {
	ID     int32
	Packet []byte
}

// MdnsReplyInfo is the result of getReply: a ready-to-send wire packet plus
// its destination.
type MdnsReplyInfo struct {
	Packet      []byte
	Unicast     bool
	Destination string // address:port, set when Unicast is true

	// Delay is how long the caller should wait before sending Packet, per
	// §4.2 step 5's shared-name (PTR) answer jitter. Zero when the reply
	// carries no shared-name answers (e.g. unique-record-only replies).
	Delay time.Duration
}

// ConflictKind classifies a conflicting record observed in getConflictingServices.
type ConflictKind int

const (
	// ConflictService marks a conflict on the service instance name.
	ConflictService ConflictKind = iota
	// ConflictHost marks a conflict on a custom hostname.
	ConflictHost
)

// Repository is the Record Repository actor. Zero value is not usable; use
// New.
type Repository struct {
	clock clock.Clock

	services map[int32]*service
	nextID   int32

	// activeNames indexes every name (instance FQDN or custom hostname,
	// case-folded) currently owned by an active/probing/announcing service,
	// to Invariant 1 (no two active registrations share a case-folded name).
	activeNames map[string]int32

	// exitedNames indexes services that have sent their goodbye but have not
	// yet been removed, so the next addService for the same name can
	// "resurrect" them instead of treating them as a fresh id.
	exitedNames map[string]int32

	// hostnames indexes which service ids target a given hostname, for
	// restartProbingForHostname / restartAnnouncingForHostname /
	// updateAddresses.
	hostnames map[string]map[int32]bool

	throttle *throttle

	probeAddressesPolicy bool // if true, probe authority includes A/AAAA
	knownAnswerEnabled   bool
	unicastReplyEnabled  bool

	// heldQueries tracks truncated (TC-flagged) queries awaiting the
	// known-answer continuation packet from the same source, per §4.2
	// step 2.
	heldQueries map[string]*heldQuery
}

// heldQuery accumulates known-answer records from a truncated query while
// the repository waits (400-500ms) for the sender's follow-up packet.
type heldQuery struct {
	answers []message.Answer
	expires time.Time
}

// New creates an empty Repository driven by clk (use clock.System{} in
// production, clock.NewMock for tests).
func New(clk clock.Clock) *Repository {
	return &Repository{
		clock:               clk,
		services:            make(map[int32]*service),
		activeNames:         make(map[string]int32),
		exitedNames:         make(map[string]int32),
		hostnames:           make(map[string]map[int32]bool),
		throttle:            newThrottle(clk),
		knownAnswerEnabled:  true,
		unicastReplyEnabled: true,
		heldQueries:         make(map[string]*heldQuery),
	}
}

func fold(name string) string { return strings.ToLower(name) }

// addService registers a new advertisement. If id is already registered and
// active, DuplicateId is returned. If the instance name (or custom
// hostname) is already active under a different id, NameConflict is
// returned. If a service under the same name previously sent its goodbye
// (is "exiting"/removed-pending), its prior id is returned instead of -1 so
// the caller can treat this as a resurrection rather than a fresh
// registration.
func (r *Repository) addService(id int32, info records.ServiceInfo, ttlMillis uint32) (int32, error) {
	if existing, ok := r.services[id]; ok && existing.state != stateRemoved {
		return -1, &errors.DuplicateIDError{ID: id}
	}

	name := fold(info.InstanceName + "." + info.ServiceType)
	if ownerID, ok := r.activeNames[name]; ok && ownerID != id {
		return -1, &errors.NameConflictError{Name: info.InstanceName + "." + info.ServiceType}
	}

	resurrected := int32(-1)
	if priorID, ok := r.exitedNames[name]; ok {
		resurrected = priorID
		delete(r.exitedNames, name)
	}

	svc := &service{
		id:                id,
		info:              info,
		ttlOverrideMillis: ttlMillis,
		state:             stateNew,
	}
	r.services[id] = svc
	r.activeNames[name] = id
	r.indexHostname(svc)

	return resurrected, nil
}

func (r *Repository) indexHostname(svc *service) {
	h := fold(svc.info.Hostname)
	if h == "" {
		return
	}
	if r.hostnames[h] == nil {
		r.hostnames[h] = make(map[int32]bool)
	}
	r.hostnames[h][svc.id] = true
}

func (r *Repository) unindexHostname(svc *service) {
	h := fold(svc.info.Hostname)
	if set, ok := r.hostnames[h]; ok {
		delete(set, svc.id)
		if len(set) == 0 {
			delete(r.hostnames, h)
		}
	}
}

// updateService replaces the subtype set for an already-registered service.
func (r *Repository) updateService(id int32, subtypes []string) error {
	svc, ok := r.services[id]
	if !ok {
		return &errors.UnknownIDError{ID: id}
	}
	svc.info.Subtypes = subtypes
	return nil
}

// getServiceInfo returns the stored registration info for id, so callers
// that already track the id (e.g. responder.Responder's serviceIDs index)
// can project live repository state without keeping a second copy of it.
func (r *Repository) getServiceInfo(id int32) (records.ServiceInfo, bool) {
	svc, ok := r.services[id]
	if !ok {
		return records.ServiceInfo{}, false
	}
	return svc.info, true
}

// updateServiceTXT replaces the TXT record set of an already-registered
// service and returns the announcement packet to re-multicast, per §4.2's
// "updateService/UpdateService TXT changes" update flow: TXT edits don't
// require re-probing (the instance name is unchanged) but do require
// telling the network the old TXT answer is stale.
func (r *Repository) updateServiceTXT(id int32, txt []records.TXTEntry) (*AnnouncementInfo, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, &errors.UnknownIDError{ID: id}
	}
	svc.info.TXTRecords = txt

	packet, err := buildAnnouncementPacket(&svc.info)
	if err != nil {
		return nil, err
	}
	return &AnnouncementInfo{ID: id, Packet: packet}, nil
}

// setServiceProbing transitions id into PROBING and returns the probe
// packet template it should defend: a question for ANY on the owned name,
// with the authority section carrying the tentative SRV (and A/AAAA when
// the probe-addresses policy is enabled).
func (r *Repository) setServiceProbing(id int32) (ProbingInfo, error) {
	svc, ok := r.services[id]
	if !ok {
		return ProbingInfo{}, &errors.UnknownIDError{ID: id}
	}
	svc.state = stateProbing

	owned := r.probeAuthorityRecords(svc)
	packet, err := buildProbePacket(svc.instanceFQDN(), owned)
	if err != nil {
		return ProbingInfo{}, err
	}
	return ProbingInfo{ID: id, Packet: packet, Owned: owned}, nil
}

func (r *Repository) probeAuthorityRecords(svc *service) []*recordsResourceRecord {
	owned := []*recordsResourceRecord{buildSRVProbeRecord(&svc.info)}
	if r.probeAddressesPolicy {
		if len(svc.info.IPv4Address) == 4 {
			owned = append(owned, buildAProbeRecord(&svc.info))
		}
		for _, addr := range svc.info.IPv6Addresses {
			owned = append(owned, buildAAAAProbeRecord(svc.info.Hostname, addr))
		}
	}
	return owned
}

// onProbingSucceeded transitions the probed service to ANNOUNCING and
// returns its announcement packet template.
func (r *Repository) onProbingSucceeded(info ProbingInfo) (AnnouncementInfo, error) {
	svc, ok := r.services[info.ID]
	if !ok {
		return AnnouncementInfo{}, &errors.UnknownIDError{ID: info.ID}
	}
	svc.state = stateAnnouncing

	packet, err := buildAnnouncementPacket(&svc.info)
	if err != nil {
		return AnnouncementInfo{}, err
	}
	return AnnouncementInfo{ID: info.ID, Packet: packet}, nil
}

// onAdvertisementSent records that sentCount unsolicited announcements have
// gone out; once the driver has sent enough of them (per its own backoff
// schedule) the service is considered ACTIVE.
func (r *Repository) onAdvertisementSent(id int32, sentPacketCount int) error {
	svc, ok := r.services[id]
	if !ok {
		return &errors.UnknownIDError{ID: id}
	}
	svc.sentPacketCount = sentPacketCount
	svc.state = stateActive
	return nil
}

// exitService transitions id to EXITING and returns its goodbye packet, or
// nil if the service never reached ANNOUNCING/ACTIVE (nothing to retract).
func (r *Repository) exitService(id int32) (*AnnouncementInfo, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, &errors.UnknownIDError{ID: id}
	}
	if svc.state != stateAnnouncing && svc.state != stateActive {
		return nil, nil
	}
	svc.state = stateExiting
	svc.goodbyeSent = true
	r.exitedNames[fold(svc.instanceFQDN())] = id

	packet, err := buildGoodbyePacket(&svc.info)
	if err != nil {
		return nil, err
	}
	return &AnnouncementInfo{ID: id, Packet: packet}, nil
}

// removeService releases id entirely, freeing its name for reuse by an
// unrelated registration.
func (r *Repository) removeService(id int32) error {
	svc, ok := r.services[id]
	if !ok {
		return &errors.UnknownIDError{ID: id}
	}
	svc.state = stateRemoved
	delete(r.activeNames, fold(svc.instanceFQDN()))
	delete(r.exitedNames, fold(svc.instanceFQDN()))
	r.unindexHostname(svc)
	delete(r.services, id)
	return nil
}

// getOffloadPacket returns a pre-serialized announcement suitable for
// hardware offload.
func (r *Repository) getOffloadPacket(id int32) ([]byte, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, &errors.UnknownIDError{ID: id}
	}
	return records.BuildOffloadPacket(&svc.info)
}

// restartProbingForHostname returns a probing template for every service
// whose hostname matches (case-insensitive), transitioning each back to
// PROBING. Used when the set of addresses for that hostname changes.
func (r *Repository) restartProbingForHostname(hostname string) ([]ProbingInfo, error) {
	var out []ProbingInfo
	for id := range r.hostnames[fold(hostname)] {
		info, err := r.setServiceProbing(id)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// restartAnnouncingForHostname returns an announcement template for every
// service whose hostname matches, without touching its probing state.
func (r *Repository) restartAnnouncingForHostname(hostname string) ([]AnnouncementInfo, error) {
	var out []AnnouncementInfo
	for id := range r.hostnames[fold(hostname)] {
		svc, ok := r.services[id]
		if !ok {
			continue
		}
		packet, err := buildAnnouncementPacket(&svc.info)
		if err != nil {
			continue
		}
		out = append(out, AnnouncementInfo{ID: id, Packet: packet})
	}
	return out, nil
}

// updateAddresses records a fresh set of link addresses for the process's
// default hostname. Callers combine this with restartProbingForHostname to
// re-probe/re-announce affected services; the repository itself holds no
// interface list, only the per-hostname service index used by that lookup.
func (r *Repository) updateAddresses(hostname string, ipv4 []byte, ipv6 [][]byte) {
	for id := range r.hostnames[fold(hostname)] {
		svc, ok := r.services[id]
		if !ok {
			continue
		}
		svc.info.IPv4Address = ipv4
		svc.info.IPv6Addresses = ipv6
	}
}
