package repository

import (
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/records"
)

// AddService registers a new advertisement under the repository's event
// loop. See addService for the full contract (Invariant 1, resurrection of
// exited names).
func (r *Repository) AddService(id int32, info records.ServiceInfo, ttlMillis uint32) (int32, error) {
	return r.addService(id, info, ttlMillis)
}

// UpdateService replaces the subtype set of an already-registered service.
// Called from responder.Responder.UpdateServiceSubtypes.
func (r *Repository) UpdateService(id int32, subtypes []string) error {
	return r.updateService(id, subtypes)
}

// GetServiceInfo returns the stored registration info for id.
func (r *Repository) GetServiceInfo(id int32) (records.ServiceInfo, bool) {
	return r.getServiceInfo(id)
}

// UpdateServiceTXT replaces a registered service's TXT records and returns
// the re-announcement packet the caller should multicast so listeners pick
// up the change. Called from responder.Responder.UpdateService.
func (r *Repository) UpdateServiceTXT(id int32, txt []records.TXTEntry) (*AnnouncementInfo, error) {
	return r.updateServiceTXT(id, txt)
}

// SetServiceProbing transitions a registration into the probing state and
// returns the probe packet template to send three times, 250ms apart.
func (r *Repository) SetServiceProbing(id int32) (ProbingInfo, error) {
	return r.setServiceProbing(id)
}

// OnProbingSucceeded transitions a probed service into announcing and
// returns the first announcement packet template.
func (r *Repository) OnProbingSucceeded(info ProbingInfo) (AnnouncementInfo, error) {
	return r.onProbingSucceeded(info)
}

// OnAdvertisementSent records that an announcement packet was sent,
// advancing the announce counter used to decide when the service becomes
// active.
func (r *Repository) OnAdvertisementSent(id int32, sentPacketCount int) error {
	return r.onAdvertisementSent(id, sentPacketCount)
}

// ExitService marks a service as leaving and returns its goodbye packet
// (TTL=0 records), or nil if the service had not yet announced.
func (r *Repository) ExitService(id int32) (*AnnouncementInfo, error) {
	return r.exitService(id)
}

// RemoveService deletes a service's bookkeeping entirely. Call after its
// goodbye packet (if any) has been sent.
func (r *Repository) RemoveService(id int32) error {
	return r.removeService(id)
}

// GetOffloadPacket returns the full announcement packet for a currently
// active service, for sleep-proxy / offload handoff.
func (r *Repository) GetOffloadPacket(id int32) ([]byte, error) {
	return r.getOffloadPacket(id)
}

// RestartProbingForHostname re-probes every service whose SRV/A/AAAA rdata
// names hostname, after its address changed.
func (r *Repository) RestartProbingForHostname(hostname string) ([]ProbingInfo, error) {
	return r.restartProbingForHostname(hostname)
}

// RestartAnnouncingForHostname re-announces every service bound to
// hostname, after its address changed but while it was already active.
func (r *Repository) RestartAnnouncingForHostname(hostname string) ([]AnnouncementInfo, error) {
	return r.restartAnnouncingForHostname(hostname)
}

// UpdateAddresses records a new address set for hostname, used by the next
// restart operation and by getReply's A/AAAA rdata.
func (r *Repository) UpdateAddresses(hostname string, ipv4 []byte, ipv6 [][]byte) {
	r.updateAddresses(hostname, ipv4, ipv6)
}

// GetReply inspects an inbound query and returns the reply packet to send,
// or nil if nothing in the repository answers it.
func (r *Repository) GetReply(inbound *message.DNSMessage, srcAddr string, srcIsIPv6 bool) (*MdnsReplyInfo, error) {
	return r.getReply(inbound, srcAddr, srcIsIPv6)
}

// GetConflictingServices inspects an inbound message for records that
// conflict with services currently probing or announcing, keyed by service
// id.
func (r *Repository) GetConflictingServices(inbound *message.DNSMessage) map[int32]ConflictKind {
	return r.getConflictingServices(inbound)
}
