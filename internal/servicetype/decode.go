package servicetype

import (
	"strings"

	"github.com/nimbusdns/beacon/internal/cache"
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/records"
)

// completenessState mirrors the per-cached-service state machine of §4.5:
// unknown -> nameKnown -> complete -> (updated* ->) removed.
type completenessState int

const (
	stateUnknown completenessState = iota
	stateNameKnown
	stateComplete
	stateRemoved
)

// instance aggregates the partial records observed for one service instance
// into the fields a complete ServiceInfo needs.
type instance struct {
	name     string // instance FQDN, case preserved as first observed
	subtypes []string
	hostname string
	port     uint16
	txt      []records.TXTEntry
	state    completenessState
}

func (in *instance) snapshot(serviceType string, addrs *hostAddrs) ServiceInfo {
	info := ServiceInfo{
		InstanceName: in.name,
		ServiceType:  serviceType,
		Hostname:     in.hostname,
		Port:         in.port,
		TXT:          in.txt,
		Subtypes:     in.subtypes,
	}
	if addrs != nil {
		info.IPv4 = addrs.ipv4
		info.IPv6 = addrs.ipv6
	}
	return info
}

// hostAddrs aggregates A/AAAA records observed for a hostname, shared across
// every instance whose SRV target names that host.
type hostAddrs struct {
	ipv4 [][]byte
	ipv6 [][]byte
}

func foldName(s string) string { return strings.ToLower(s) }

// subtypeFromOwnerName reports whether name is a subtype-enumeration PTR
// owner name of the form "<subtype>._sub.<serviceType>" and, if so, returns
// the subtype label.
func subtypeFromOwnerName(name, serviceType string) (string, bool) {
	suffix := "._sub." + serviceType
	if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix)) {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}

// mergeMessage folds every answer (and additional) record in msg relevant to
// this client's service-type into the cache and the per-instance aggregates,
// then returns the set of instance keys whose completeness may have changed
// so the caller can recompute and dispatch listener callbacks.
func (c *Client) mergeMessage(msg *message.DNSMessage) map[string]bool {
	touched := make(map[string]bool)
	sections := append(append([]message.Answer{}, msg.Answers...), msg.Additionals...)

	for _, a := range sections {
		switch a.TYPE {
		case 12: // PTR
			c.mergePTR(a, touched)
		case 33: // SRV
			c.mergeSRV(a, touched)
		case 16: // TXT
			c.mergeTXT(a, touched)
		case 1: // A
			c.mergeAddress(a, cache.KindA, touched)
		case 28: // AAAA
			c.mergeAddress(a, cache.KindAAAA, touched)
		}
	}
	return touched
}

func (c *Client) getOrCreateInstance(fqdn string) *instance {
	key := foldName(fqdn)
	in, ok := c.instances[key]
	if !ok {
		in = &instance{name: fqdn, state: stateUnknown}
		c.instances[key] = in
	}
	return in
}

func (c *Client) mergePTR(a message.Answer, touched map[string]bool) {
	if subtype, ok := subtypeFromOwnerName(a.NAME, c.serviceType); ok {
		target, _, err := message.ParseName(a.RDATA, 0)
		if err != nil {
			return
		}
		in := c.getOrCreateInstance(target)
		if !containsFold(in.subtypes, subtype) {
			in.subtypes = append(in.subtypes, subtype)
		}
		touched[foldName(target)] = true
		return
	}
	if !strings.EqualFold(a.NAME, c.serviceType) {
		return
	}
	target, _, err := message.ParseName(a.RDATA, 0)
	if err != nil {
		return
	}
	key := foldName(target)

	result := c.cache.AddOrUpdate(c.cacheKey(), target, cache.KindPTR, a.RDATA, a.TTL*1000)
	if result == cache.MergeGoodbye {
		if in, ok := c.instances[key]; ok {
			in.state = stateRemoved
			touched[key] = true
		}
		return
	}

	in := c.getOrCreateInstance(target)
	if in.state == stateUnknown {
		in.state = stateNameKnown
	}
	touched[key] = true
}

func (c *Client) mergeSRV(a message.Answer, touched map[string]bool) {
	parsed, err := message.ParseRDATA(33, a.RDATA)
	if err != nil {
		return
	}
	srv, ok := parsed.(message.SRVData)
	if !ok {
		return
	}
	key := foldName(a.NAME)
	if _, known := c.instances[key]; !known && a.NAME != "" {
		// SRV arriving before its PTR: still track it under resolve mode.
		c.getOrCreateInstance(a.NAME)
	}
	c.cache.AddOrUpdate(c.cacheKey(), a.NAME, cache.KindSRV, a.RDATA, a.TTL*1000)
	in := c.instances[key]
	if in == nil {
		return
	}
	in.hostname = srv.Target
	in.port = srv.Port
	touched[key] = true
}

func (c *Client) mergeTXT(a message.Answer, touched map[string]bool) {
	key := foldName(a.NAME)
	in, ok := c.instances[key]
	if !ok {
		return
	}
	c.cache.AddOrUpdate(c.cacheKey(), a.NAME, cache.KindTXT, a.RDATA, a.TTL*1000)
	in.txt = parseTXT(a.RDATA)
	touched[key] = true
}

func parseTXT(rdata []byte) []records.TXTEntry {
	parsed, err := message.ParseRDATA(16, rdata)
	if err != nil {
		return nil
	}
	strs, ok := parsed.([]string)
	if !ok {
		return nil
	}
	return records.DecodeTXTEntries(strs)
}

func (c *Client) mergeAddress(a message.Answer, kind cache.RecordKind, touched map[string]bool) {
	hostKey := foldName(a.NAME)
	addrs, ok := c.hosts[hostKey]
	if !ok {
		addrs = &hostAddrs{}
		c.hosts[hostKey] = addrs
	}
	c.cache.AddOrUpdate(c.cacheKey(), a.NAME, kind, a.RDATA, a.TTL*1000)
	switch kind {
	case cache.KindA:
		addrs.ipv4 = appendUnique(addrs.ipv4, a.RDATA)
	case cache.KindAAAA:
		addrs.ipv6 = appendUnique(addrs.ipv6, a.RDATA)
	}

	for key, in := range c.instances {
		if foldName(in.hostname) == hostKey {
			touched[key] = true
		}
	}
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func appendUnique(list [][]byte, v []byte) [][]byte {
	for _, existing := range list {
		if string(existing) == string(v) {
			return list
		}
	}
	return append(list, v)
}
