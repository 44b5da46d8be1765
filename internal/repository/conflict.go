package repository

import (
	"bytes"

	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
	"github.com/nimbusdns/beacon/internal/records"
)

// getConflictingServices inspects every answer/authority record in an
// inbound packet against locally-owned unique names and reports which
// service ids conflict, and whether the conflict is on the instance name or
// a custom host.
//
// Identical records (same rdata, any TTL) never conflict. Address-record
// conflict for a custom host is only declared when the remote set strictly
// disagrees or is a superset of ours; a subset match is not a conflict.
func (r *Repository) getConflictingServices(inbound *message.DNSMessage) map[int32]ConflictKind {
	result := make(map[int32]ConflictKind)

	candidates := append([]message.Answer{}, inbound.Answers...)
	candidates = append(candidates, inbound.Authorities...)

	// Group remote records by owner name so multi-record comparisons (e.g.
	// several AAAA for one hostname) see the whole remote set at once.
	byName := make(map[string][]message.Answer)
	for _, rr := range candidates {
		key := fold(rr.NAME)
		byName[key] = append(byName[key], rr)
	}

	for foldedName, remoteRecords := range byName {
		id, isInstance := r.ownerOfInstanceName(foldedName)
		if isInstance {
			if r.instanceConflicts(id, remoteRecords) {
				result[id] = ConflictService
			}
			continue
		}
		if hostIDs, ok := r.hostnames[foldedName]; ok {
			for id := range hostIDs {
				if r.hostConflicts(id, remoteRecords) {
					result[id] = ConflictHost
				}
			}
		}
	}

	return result
}

func (r *Repository) ownerOfInstanceName(foldedName string) (int32, bool) {
	id, ok := r.activeNames[foldedName]
	if !ok {
		return 0, false
	}
	svc, ok := r.services[id]
	if !ok {
		return 0, false
	}
	return id, fold(svc.instanceFQDN()) == foldedName
}

// instanceConflicts reports whether any remote record for the instance name
// disagrees byte-for-byte with our own SRV or TXT rdata at the canonical
// TTL. Services carry no KEY record (see ownedKey), so KEY is not compared.
func (r *Repository) instanceConflicts(id int32, remote []message.Answer) bool {
	svc, ok := r.services[id]
	if !ok {
		return false
	}
	ours := []*recordsResourceRecord{
		buildSRVProbeRecord(&svc.info),
		{Type: protocol.RecordTypeTXT, Data: records.EncodeTXTEntries(svc.info.TXTRecords)},
	}
	for _, rr := range remote {
		for _, our := range ours {
			if uint16(our.Type) != rr.TYPE {
				continue
			}
			if !bytes.Equal(our.Data, rr.RDATA) {
				return true
			}
		}
	}
	return false
}

// hostConflicts implements the asymmetric address-set comparison: a subset
// of our addresses is not a conflict, but a strict superset or any
// disagreeing address is.
func (r *Repository) hostConflicts(id int32, remote []message.Answer) bool {
	svc, ok := r.services[id]
	if !ok {
		return false
	}

	var ourAddrs [][]byte
	if len(svc.info.IPv4Address) == 4 {
		ourAddrs = append(ourAddrs, svc.info.IPv4Address)
	}
	ourAddrs = append(ourAddrs, svc.info.IPv6Addresses...)

	var remoteAddrs [][]byte
	for _, rr := range remote {
		if rr.TYPE == uint16(protocol.RecordTypeA) || rr.TYPE == uint16(protocol.RecordTypeAAAA) {
			remoteAddrs = append(remoteAddrs, rr.RDATA)
		}
		if rr.TYPE == uint16(protocol.RecordTypeKEY) {
			if ourKey, ok := ownedKey(svc); ok && !bytes.Equal(ourKey, rr.RDATA) {
				return true
			}
		}
	}
	if len(remoteAddrs) == 0 {
		return false
	}
	if len(remoteAddrs) > len(ourAddrs) {
		return true
	}
	for _, ra := range remoteAddrs {
		found := false
		for _, oa := range ourAddrs {
			if bytes.Equal(ra, oa) {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}

// ownedKey is a hook for services that carry a KEY record; the current
// ServiceInfo model has no key field, so this always reports absent.
func ownedKey(_ *service) ([]byte, bool) { return nil, false }

// compareProbeData implements the RFC 6762 §8.2.1 lexicographic
// tie-breaker: the lexicographically later rdata wins.
func compareProbeData(ours, theirs []byte) bool {
	return bytes.Compare(ours, theirs) > 0
}
