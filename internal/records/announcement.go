package records

import (
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
)

// EnumerationServiceType is the well-known DNS-SD service-type enumeration
// name per RFC 6763 §9.
const EnumerationServiceType = "_services._dns-sd._udp.local"

// BuildAnnouncementRecords constructs the full unsolicited-response answer
// set for a service per spec §4.2's Announcement packet definition:
// reverse-PTR + A/AAAA per address, service-type PTR, one PTR per subtype,
// SRV, TXT, and the DNS-SD enumeration PTR — together with the NSEC
// additionals asserting completeness of each owner name.
//
// Order matches scenario S2: address records first (reverse-PTR then
// A/AAAA per address), then service-type PTR, subtype PTRs, SRV, TXT, then
// the enumeration PTR.
func BuildAnnouncementRecords(service *ServiceInfo) (answers, additionals []*message.ResourceRecord) {
	instanceFQDN := service.InstanceName + "." + service.ServiceType

	hostTypes := make([]uint16, 0, 3)
	var reverseNames []string
	if len(service.IPv4Address) == 4 {
		rev, err := ReverseName(service.IPv4Address)
		if err == nil {
			answers = append(answers, buildReversePTRRecord(rev, service.Hostname))
			reverseNames = append(reverseNames, rev)
		}
		answers = append(answers, buildARecord(service))
		hostTypes = append(hostTypes, uint16(protocol.RecordTypeA))
	}
	for _, addr := range service.IPv6Addresses {
		if len(addr) != 16 {
			continue
		}
		rev, err := ReverseName(addr)
		if err == nil {
			answers = append(answers, buildReversePTRRecord(rev, service.Hostname))
			reverseNames = append(reverseNames, rev)
		}
		answers = append(answers, buildAAAARecord(service.Hostname, addr))
		hostTypes = append(hostTypes, uint16(protocol.RecordTypeAAAA))
	}

	answers = append(answers, buildPTRRecord(service))

	for _, subtype := range service.Subtypes {
		answers = append(answers, buildSubtypePTRRecord(service, subtype))
	}

	answers = append(answers, buildSRVRecord(service))
	answers = append(answers, buildTXTRecordFromService(service))
	answers = append(answers, buildEnumerationPTRRecord(service.ServiceType))

	// §4.2: "Additionals contain NSEC per owner (reverse-PTR, host,
	// instance)" - one NSEC asserting PTR existence for each reverse name,
	// in addition to the host's and the instance's.
	for _, rev := range reverseNames {
		additionals = append(additionals, buildNSECRecord(rev, []uint16{uint16(protocol.RecordTypePTR)}))
	}
	if len(hostTypes) > 0 {
		additionals = append(additionals, buildNSECRecord(service.Hostname, hostTypes))
	}
	additionals = append(additionals, buildNSECRecord(instanceFQDN, []uint16{
		uint16(protocol.RecordTypeSRV), uint16(protocol.RecordTypeTXT),
	}))

	return answers, additionals
}

// BuildGoodbyeRecords returns the answer records for exitService: identical
// owner names/rdata to the announcement's PTR set, but TTL=0.
func BuildGoodbyeRecords(service *ServiceInfo) []*message.ResourceRecord {
	ptr := buildPTRRecord(service)
	ptr.TTL = 0
	records := []*message.ResourceRecord{ptr}
	for _, subtype := range service.Subtypes {
		sub := buildSubtypePTRRecord(service, subtype)
		sub.TTL = 0
		records = append(records, sub)
	}
	return records
}

// BuildOffloadPacket constructs the pre-serialized announcement suitable for
// hardware offload per spec §4.2/§6: AA response, no questions, answers =
// {service-type PTR, SRV, TXT, A/AAAA}, no NSEC, no additionals.
func BuildOffloadPacket(service *ServiceInfo) ([]byte, error) {
	answers := []*message.ResourceRecord{
		buildPTRRecord(service),
		buildSRVRecord(service),
		buildTXTRecordFromService(service),
	}
	if len(service.IPv4Address) == 4 {
		answers = append(answers, buildARecord(service))
	}
	for _, addr := range service.IPv6Addresses {
		if len(addr) == 16 {
			answers = append(answers, buildAAAARecord(service.Hostname, addr))
		}
	}
	return message.BuildResponse(answers)
}

func buildAAAARecord(hostname string, addr []byte) *message.ResourceRecord {
	return &message.ResourceRecord{
		Name:       hostname,
		Type:       protocol.RecordTypeAAAA,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       addr,
		CacheFlush: true,
	}
}

func buildReversePTRRecord(reverseName, hostname string) *message.ResourceRecord {
	target, _ := message.EncodeName(hostname) // nosemgrep: beacon-error-swallowing
	return &message.ResourceRecord{
		Name:       reverseName,
		Type:       protocol.RecordTypePTR,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       target,
		CacheFlush: true,
	}
}

func buildSubtypePTRRecord(service *ServiceInfo, subtype string) *message.ResourceRecord {
	name := "_" + subtype + "._sub." + service.ServiceType
	targetEncoded, _ := message.EncodeServiceInstanceName(service.InstanceName, service.ServiceType) // nosemgrep: beacon-error-swallowing
	return &message.ResourceRecord{
		Name:       name,
		Type:       protocol.RecordTypePTR,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLService,
		Data:       targetEncoded,
		CacheFlush: false,
	}
}

func buildEnumerationPTRRecord(serviceType string) *message.ResourceRecord {
	target, _ := message.EncodeName(serviceType) // nosemgrep: beacon-error-swallowing
	return &message.ResourceRecord{
		Name:       EnumerationServiceType,
		Type:       protocol.RecordTypePTR,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLService,
		Data:       target,
		CacheFlush: false,
	}
}

// buildNSECRecord constructs an mDNS-flavor NSEC record asserting that
// exactly the given types exist for owner. The next-domain name for mDNS
// NSEC is conventionally the owner name itself (RFC 6762 §6.1).
func buildNSECRecord(owner string, types []uint16) *message.ResourceRecord {
	nextDomain, _ := message.EncodeName(owner) // nosemgrep: beacon-error-swallowing
	bitmap := message.EncodeTypeBitmap(types)
	data := append(nextDomain, bitmap...)
	return &message.ResourceRecord{
		Name:       owner,
		Type:       protocol.RecordTypeNSEC,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       data,
		CacheFlush: true,
	}
}
