package repository

import (
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
	"github.com/nimbusdns/beacon/internal/records"
)

// buildProbePacket constructs the probe question+authority packet for name
// per §4.2: a single ANY question, authority carrying the tentative records
// owned passed in.
func buildProbePacket(name string, owned []*recordsResourceRecord) ([]byte, error) {
	msg := &message.DNSMessage{
		Header: message.DNSHeader{
			Flags:   0x0000,
			QDCount: 1,
			NSCount: uint16(len(owned)),
		},
		Questions: []message.Question{{
			QNAME:  name,
			QTYPE:  uint16(protocol.RecordTypeANY),
			QCLASS: uint16(protocol.ClassIN),
		}},
	}
	for _, rr := range owned {
		msg.Authorities = append(msg.Authorities, answerFromRecord(rr))
	}
	return message.Serialize(msg)
}

// buildAnnouncementPacket wraps records.BuildAnnouncementRecords into a full
// AA response with NSEC additionals.
func buildAnnouncementPacket(info *records.ServiceInfo) ([]byte, error) {
	answers, additionals := records.BuildAnnouncementRecords(info)
	return buildResponse(answers, additionals)
}

// buildGoodbyePacket wraps records.BuildGoodbyeRecords into a TTL=0 response
// with no additionals.
func buildGoodbyePacket(info *records.ServiceInfo) ([]byte, error) {
	answers := records.BuildGoodbyeRecords(info)
	return buildResponse(answers, nil)
}

// buildResponse assembles a standard AA=1, no-questions mDNS response from
// answer and additional resource records.
func buildResponse(answers, additionals []*recordsResourceRecord) ([]byte, error) {
	msg := &message.DNSMessage{
		Header: message.DNSHeader{
			Flags:   0x8400, // QR=1, AA=1
			ANCount: uint16(len(answers)),
			ARCount: uint16(len(additionals)),
		},
	}
	for _, rr := range answers {
		msg.Answers = append(msg.Answers, answerFromRecord(rr))
	}
	for _, rr := range additionals {
		msg.Additionals = append(msg.Additionals, answerFromRecord(rr))
	}
	return message.Serialize(msg)
}

func answerFromRecord(rr *recordsResourceRecord) message.Answer {
	class := uint16(rr.Class)
	if rr.CacheFlush {
		class |= protocol.ClassUnicastResponseBit
	}
	return message.Answer{
		NAME:     rr.Name,
		TYPE:     uint16(rr.Type),
		CLASS:    class,
		TTL:      rr.TTL,
		RDLENGTH: uint16(len(rr.Data)),
		RDATA:    rr.Data,
	}
}

func buildSRVProbeRecord(info *records.ServiceInfo) *recordsResourceRecord {
	target, _ := message.EncodeName(info.Hostname) // nosemgrep: beacon-error-swallowing
	data := make([]byte, 6, 6+len(target))
	// priority=0, weight=0
	data[4] = byte(info.Port >> 8)
	data[5] = byte(info.Port)
	data = append(data, target...)
	return &message.ResourceRecord{
		Name:       info.InstanceName + "." + info.ServiceType,
		Type:       protocol.RecordTypeSRV,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       data,
		CacheFlush: true,
	}
}

func buildAProbeRecord(info *records.ServiceInfo) *recordsResourceRecord {
	return &message.ResourceRecord{
		Name:       info.Hostname,
		Type:       protocol.RecordTypeA,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       info.IPv4Address,
		CacheFlush: true,
	}
}

func buildAAAAProbeRecord(hostname string, addr []byte) *recordsResourceRecord {
	return &message.ResourceRecord{
		Name:       hostname,
		Type:       protocol.RecordTypeAAAA,
		Class:      protocol.ClassIN,
		TTL:        protocol.TTLHostname,
		Data:       addr,
		CacheFlush: true,
	}
}
