package repository

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
	"github.com/nimbusdns/beacon/internal/records"
)

// truncatedHoldMin and truncatedHoldMax bound how long the repository waits
// for the known-answer continuation of a TC-flagged query from the same
// source, per §4.2 step 2 ("merged... within 400-500ms").
const (
	truncatedHoldMin = 400 * time.Millisecond
	truncatedHoldMax = 500 * time.Millisecond
)

// candidateAnswer pairs a matched owned record with the id of the service
// that owns it, so contributing services can have their reply counters
// incremented.
type candidateAnswer struct {
	record   *recordsResourceRecord
	ownerID  int32
	queryName string // the name exactly as it appeared in the question (for echo)
}

// getReply builds the response to an inbound query from src, or nil if
// nothing matches, everything is suppressed, or the reply is throttled.
//
// srcIsIPv6 selects which multicast group a multicast reply targets.
func (r *Repository) getReply(inbound *message.DNSMessage, srcAddr string, srcIsIPv6 bool) (*MdnsReplyInfo, error) {
	r.expireHeldQueries()

	effectiveAnswers := inbound.Answers
	if held, ok := r.heldQueries[srcAddr]; ok {
		effectiveAnswers = append(append([]message.Answer{}, held.answers...), inbound.Answers...)
	}

	if inbound.Header.Flags&protocol.FlagTC != 0 {
		r.holdQuery(srcAddr, effectiveAnswers)
		return nil, nil
	}
	delete(r.heldQueries, srcAddr)
	merged := *inbound
	merged.Answers = effectiveAnswers
	inbound = &merged

	candidates := r.collectCandidates(inbound)
	if len(candidates) == 0 {
		return nil, nil
	}

	if r.knownAnswerEnabled {
		candidates = r.suppressKnownAnswers(candidates, inbound)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	answers, additionalSet := r.expandWithAdditionals(candidates)

	unicast := r.unicastReplyEnabled && r.allQuestionsUnicast(inbound)

	group := protocol.MulticastAddrIPv4
	if srcIsIPv6 {
		group = protocol.MulticastAddrIPv6
	}
	if !unicast {
		if !r.throttle.allow(group) {
			return nil, nil
		}
	}

	msg := &message.DNSMessage{
		Header: message.DNSHeader{
			Flags:   0x8400,
			ANCount: uint16(len(answers)),
			ARCount: uint16(len(additionalSet)),
		},
	}
	for _, a := range answers {
		msg.Answers = append(msg.Answers, a)
	}
	for _, a := range additionalSet {
		msg.Additionals = append(msg.Additionals, a)
	}

	packet, err := message.Serialize(msg)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if svc, ok := r.services[c.ownerID]; ok {
			svc.repliedRequestsCount++
		}
	}

	dest := ""
	if unicast {
		dest = srcAddr
	}

	var delay time.Duration
	if !unicast {
		for _, c := range candidates {
			if c.record.Type == protocol.RecordTypePTR && !c.record.CacheFlush {
				delay = sharedNameJitter()
				break
			}
		}
	}

	return &MdnsReplyInfo{Packet: packet, Unicast: unicast, Destination: dest, Delay: delay}, nil
}

// holdQuery records answers (combined with any already-held for src) as the
// known-answer set for a truncated query, to be merged into src's next
// non-truncated packet within the 400-500ms hold window.
func (r *Repository) holdQuery(srcAddr string, answers []message.Answer) {
	hold := truncatedHoldMin + time.Duration(rand.Int63n(int64(truncatedHoldMax-truncatedHoldMin)+1))
	r.heldQueries[srcAddr] = &heldQuery{
		answers: answers,
		expires: r.clock.Now().Add(hold),
	}
}

// expireHeldQueries drops held truncated-query state whose hold window has
// elapsed without a follow-up packet arriving.
func (r *Repository) expireHeldQueries() {
	now := r.clock.Now()
	for src, held := range r.heldQueries {
		if !now.Before(held.expires) {
			delete(r.heldQueries, src)
		}
	}
}

// collectCandidates matches owned records against each inbound question by
// name (case-insensitive) and type (ANY matches every type), deduplicating
// by (name, type, rdata).
func (r *Repository) collectCandidates(inbound *message.DNSMessage) []candidateAnswer {
	var out []candidateAnswer
	seen := make(map[string]bool)

	for _, q := range inbound.Questions {
		qNameFold := fold(q.QNAME)
		for _, svc := range r.services {
			if svc.state != stateActive && svc.state != stateAnnouncing {
				continue
			}
			owned := r.ownedUniverse(svc)
			for _, rr := range owned {
				if fold(rr.Name) != qNameFold {
					continue
				}
				if q.QTYPE != uint16(protocol.RecordTypeANY) && q.QTYPE != uint16(rr.Type) {
					continue
				}
				key := qNameFold + "|" + rr.Type.String() + "|" + string(rr.Data)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, candidateAnswer{record: rr, ownerID: svc.id, queryName: q.QNAME})
			}
		}
	}
	return out
}

// ownedUniverse returns every record a service can answer with: the full
// announcement answer+additional set (PTR/subtype-PTR/SRV/TXT/enumeration,
// reverse-PTR/A/AAAA, and the NSEC additionals).
func (r *Repository) ownedUniverse(svc *service) []*recordsResourceRecord {
	answers, additionals := announcementRecordsFor(svc)
	return append(answers, additionals...)
}

// suppressKnownAnswers drops candidates already present in the inbound
// packet's answer section at TTL >= half the authoritative TTL.
func (r *Repository) suppressKnownAnswers(candidates []candidateAnswer, inbound *message.DNSMessage) []candidateAnswer {
	out := candidates[:0]
	for _, c := range candidates {
		suppressed := false
		for _, known := range inbound.Answers {
			if fold(known.NAME) != fold(c.record.Name) {
				continue
			}
			if known.TYPE != uint16(c.record.Type) {
				continue
			}
			if !bytes.Equal(known.RDATA, c.record.Data) {
				continue
			}
			if known.TTL >= c.record.TTL/2 {
				suppressed = true
			}
			break
		}
		if !suppressed {
			out = append(out, c)
		}
	}
	return out
}

// expandWithAdditionals converts matched candidates into Answer entries and
// appends the additional records §4.2 step 3 requires: host A/AAAA for
// every SRV answer, SRV+TXT for every PTR answer, NSEC for every host or
// instance answer.
func (r *Repository) expandWithAdditionals(candidates []candidateAnswer) ([]message.Answer, []message.Answer) {
	var answers []message.Answer
	additionalRecords := make(map[string]*recordsResourceRecord)

	for _, c := range candidates {
		a := answerFromRecord(c.record)
		a.NAME = c.queryName // echo exactly as queried
		answers = append(answers, a)

		svc, ok := r.services[c.ownerID]
		if !ok {
			continue
		}
		owned := r.ownedUniverse(svc)
		switch c.record.Type {
		case protocol.RecordTypeSRV:
			addAdditionalsOfTypes(additionalRecords, owned, svc.info.Hostname, protocol.RecordTypeA, protocol.RecordTypeAAAA)
			addAdditionalsOfTypes(additionalRecords, owned, svc.instanceFQDN(), protocol.RecordTypeNSEC)
		case protocol.RecordTypeTXT:
			addAdditionalsOfTypes(additionalRecords, owned, svc.instanceFQDN(), protocol.RecordTypeNSEC)
		case protocol.RecordTypePTR:
			if target, _, err := message.ParseName(c.record.Data, 0); err == nil {
				addAdditionalsOfTypes(additionalRecords, owned, target, protocol.RecordTypeSRV, protocol.RecordTypeTXT)
			}
		case protocol.RecordTypeA, protocol.RecordTypeAAAA:
			addAdditionalsOfTypes(additionalRecords, owned, svc.info.Hostname, protocol.RecordTypeNSEC)
		}
	}

	var additionals []message.Answer
	for _, rr := range additionalRecords {
		additionals = append(additionals, answerFromRecord(rr))
	}
	return answers, additionals
}

func addAdditionalsOfTypes(dst map[string]*recordsResourceRecord, owned []*recordsResourceRecord, name string, types ...protocol.RecordType) {
	nameFold := fold(name)
	for _, rr := range owned {
		if fold(rr.Name) != nameFold {
			continue
		}
		for _, t := range types {
			if rr.Type == t {
				key := nameFold + "|" + rr.Type.String() + "|" + string(rr.Data)
				dst[key] = rr
			}
		}
	}
}

// allQuestionsUnicast reports whether every question in the packet has the
// unicast-response (QU) bit set.
func (r *Repository) allQuestionsUnicast(inbound *message.DNSMessage) bool {
	if len(inbound.Questions) == 0 {
		return false
	}
	for _, q := range inbound.Questions {
		if q.QCLASS&protocol.ClassUnicastResponseBit == 0 {
			return false
		}
	}
	return true
}

// announcementRecordsFor is a small indirection so tests can stub it; in
// production it always calls records.BuildAnnouncementRecords.
var announcementRecordsFor = func(svc *service) (answers, additionals []*recordsResourceRecord) {
	return records.BuildAnnouncementRecords(&svc.info)
}
