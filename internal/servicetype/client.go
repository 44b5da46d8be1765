package servicetype

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/nimbusdns/beacon/internal/cache"
	"github.com/nimbusdns/beacon/internal/clock"
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
	"github.com/nimbusdns/beacon/internal/transport"
)

// Client is the Service-Type Client actor for one (service-type, socket)
// pair. It owns the listener registry, the Service Cache slice for its key,
// and the query scheduler. Every exported method other than Run posts its
// work onto the dedicated event-loop goroutine started by Run and waits for
// it to complete, so the Client's state is only touched by that goroutine.
type Client struct {
	serviceType   string
	networkHandle string

	clock clock.Clock
	tr    transport.Transport
	ipv6  bool

	cache     *cache.Cache
	instances map[string]*instance
	hosts     map[string]*hostAddrs

	listeners map[int64]*Listener

	tasks chan func()

	burstIndex        int
	betweenBurstDelay time.Duration
	queriesSent       int
	timer             <-chan time.Time
	timerCancel       func()
}

var clientIDs int64

// New creates a Client for serviceType (e.g. "_http._tcp.local"), sending
// and receiving through tr. ipv6 selects the multicast destination family.
func New(serviceType, networkHandle string, clk clock.Clock, tr transport.Transport, ipv6 bool) *Client {
	return &Client{
		serviceType:   serviceType,
		networkHandle: networkHandle,
		clock:         clk,
		tr:            tr,
		ipv6:          ipv6,
		cache:         cache.New(clk),
		instances:     make(map[string]*instance),
		hosts:         make(map[string]*hostAddrs),
		listeners:     make(map[int64]*Listener),
		tasks:         make(chan func(), 32),
	}
}

func (c *Client) cacheKey() cache.Key {
	return cache.Key{ServiceType: c.serviceType, NetworkHandle: c.networkHandle}
}

// Run drives the Client's event loop until ctx is canceled: it dequeues
// posted tasks, fires the query scheduler's timer, and exits when ctx is
// done.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.tasks:
			fn()
		case <-c.fireTimer():
			c.sendScheduledQuery(ctx)
		}
	}
}

// fireTimer returns the scheduler's pending timer channel, or a nil channel
// (which blocks forever in a select) if nothing is scheduled.
func (c *Client) fireTimer() <-chan time.Time {
	return c.timer
}

// post runs fn on the Client's event-loop goroutine and blocks the caller
// until it completes.
func (c *Client) post(fn func()) {
	done := make(chan struct{})
	c.tasks <- func() {
		fn()
		close(done)
	}
	<-done
}

// AddListener registers l and recomputes the question list and schedule. If
// this is the first listener, scheduling starts immediately. Existing
// complete cached services matching l's filters are replayed as
// onServiceNameDiscovered/onServiceFound with fromCache=true.
func (c *Client) AddListener(l *Listener) int64 {
	var id int64
	c.post(func() {
		id = atomic.AddInt64(&clientIDs, 1)
		l.ID = id
		c.listeners[id] = l
		c.replayCacheTo(l)
		if len(c.listeners) == 1 {
			c.resetSchedule()
			c.scheduleNext(0)
		}
	})
	return id
}

// RemoveListener implements stopSendAndReceive: it removes the listener and,
// if none remain, cancels the pending query.
func (c *Client) RemoveListener(id int64) {
	c.post(func() {
		delete(c.listeners, id)
		if len(c.listeners) == 0 && c.timerCancel != nil {
			c.timerCancel()
			c.timer = nil
			c.timerCancel = nil
		}
	})
}

// NotifySocketDestroyed emits onServiceRemoved+onServiceNameRemoved for every
// complete cached instance, clears the cache slice, and cancels scheduling.
func (c *Client) NotifySocketDestroyed() {
	c.post(func() {
		for _, in := range c.instances {
			if in.state == stateComplete {
				info := in.snapshot(c.serviceType, c.hosts[foldName(in.hostname)])
				c.dispatchRemoved(info)
			}
		}
		c.instances = make(map[string]*instance)
		c.hosts = make(map[string]*hostAddrs)
		c.cache.Clear(c.cacheKey())
		if c.timerCancel != nil {
			c.timerCancel()
		}
		c.timer = nil
		c.timerCancel = nil
	})
}

func (c *Client) replayCacheTo(l *Listener) {
	for _, in := range c.instances {
		if in.state == stateRemoved {
			continue
		}
		if !l.matches(in.name, in.subtypes) {
			continue
		}
		if in.state == stateNameKnown || in.state == stateComplete {
			l.fireNameDiscovered(in.snapshot(c.serviceType, nil), true)
		}
		if in.state == stateComplete {
			l.fireFound(in.snapshot(c.serviceType, c.hosts[foldName(in.hostname)]), true)
		}
	}
}

// OnPacket implements response ingestion: merge every record relevant to
// this service-type, then recompute completeness for each touched instance
// and dispatch the matching listener callbacks. Safe to call from any
// goroutine; the work is posted onto the Client's own event loop.
func (c *Client) OnPacket(msg *message.DNSMessage) {
	c.post(func() {
		touched := c.mergeMessage(msg)
		for key := range touched {
			c.transition(key)
		}
		c.maybeRescheduleForBackoff()
	})
}

func (c *Client) transition(key string) {
	in, ok := c.instances[key]
	if !ok {
		return
	}
	addrs := c.hosts[foldName(in.hostname)]
	wasComplete := false
	// completeness requires SRV, TXT, and at least one address (Invariant C)
	info := in.snapshot(c.serviceType, addrs)
	isComplete := in.hostname != "" && in.txt != nil && info.hasAddress()

	switch in.state {
	case stateRemoved:
		c.dispatchRemoved(info)
		c.dispatchNameRemoved(info)
		delete(c.instances, key)
		return
	case stateComplete:
		wasComplete = true
	}

	if isComplete && !wasComplete {
		in.state = stateComplete
		c.dispatchFound(info, false)
		return
	}
	if isComplete && wasComplete {
		c.dispatchUpdated(info)
	}
}

func (c *Client) dispatchFound(info ServiceInfo, fromCache bool) {
	for _, l := range c.listeners {
		if l.matches(info.InstanceName, info.Subtypes) {
			l.fireFound(info, fromCache)
		}
	}
}

func (c *Client) dispatchUpdated(info ServiceInfo) {
	for _, l := range c.listeners {
		if l.matches(info.InstanceName, info.Subtypes) {
			l.fireUpdated(info)
		}
	}
}

func (c *Client) dispatchRemoved(info ServiceInfo) {
	for _, l := range c.listeners {
		if l.matches(info.InstanceName, info.Subtypes) {
			l.fireRemoved(info)
		}
	}
}

func (c *Client) dispatchNameRemoved(info ServiceInfo) {
	for _, l := range c.listeners {
		if l.matches(info.InstanceName, info.Subtypes) {
			l.fireNameRemoved(info)
		}
	}
}

// resetSchedule reinitializes the burst/backoff counters for a fresh query
// cycle (first listener subscribed, or after a full union recompute).
func (c *Client) resetSchedule() {
	c.burstIndex = 0
	c.betweenBurstDelay = c.primaryMode().firstBetweenBurstDelay()
	c.queriesSent = 0
}

// primaryMode returns the tightest (most eager) mode among current
// listeners: Aggressive > Active > Passive, so the union of schedules uses
// the tighter one per burst slot per the spec's resolve-mode open question.
func (c *Client) primaryMode() Mode {
	best := ModePassive
	for _, l := range c.listeners {
		switch {
		case l.Mode == ModeAggressive:
			return ModeAggressive
		case l.Mode == ModeActive && best == ModePassive:
			best = ModeActive
		}
	}
	return best
}

func (c *Client) scheduleNext(delay time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.timerCancel = cancel
	ch := make(chan time.Time, 1)
	c.timer = ch
	go func() {
		select {
		case t := <-c.clock.After(delay):
			select {
			case ch <- t:
			default:
			}
		case <-ctx.Done():
		}
	}()
}

// maybeRescheduleForBackoff implements the backoff comparison: once past
// numOfQueriesBeforeBackoff sends, if 80% of the cache's smallest remaining
// TTL is later than the currently pending task, the pending task is
// canceled and rescheduled for that later time.
func (c *Client) maybeRescheduleForBackoff() {
	if c.queriesSent < numOfQueriesBeforeBackoff || c.timerCancel == nil {
		return
	}
	remaining := c.cache.SmallestRemainingTTLMillis(c.cacheKey())
	if remaining <= 0 {
		return
	}
	backoff := time.Duration(remaining*8/10) * time.Millisecond
	if backoff <= 0 {
		return
	}
	c.timerCancel()
	c.scheduleNext(backoff)
}

// sendScheduledQuery builds and sends the next burst/single query, then
// arms the timer for the following one per the active mode's schedule.
func (c *Client) sendScheduledQuery(ctx context.Context) {
	if len(c.listeners) == 0 {
		return
	}
	mode := c.primaryMode()
	delays := mode.intraBurstDelays()
	idx := c.burstIndex
	if mode.singleQueryAfterFirstBurst() && c.queriesSent >= len(delays) {
		idx = 0 // single-query bursts always use the immediate slot
	}
	unicastExpected := idx == 0

	packets := c.buildQueryPackets(unicastExpected)
	for _, p := range packets {
		_ = c.tr.Send(ctx, p, c.multicastDest())
	}
	c.queriesSent++

	var next time.Duration
	if mode.singleQueryAfterFirstBurst() && c.queriesSent >= len(delays) {
		next = 60 * time.Second
	} else if c.burstIndex+1 < len(delays) {
		c.burstIndex++
		next = delays[c.burstIndex]
	} else {
		c.burstIndex = 0
		next = c.betweenBurstDelay
		c.betweenBurstDelay = mode.nextBetweenBurstDelay(c.betweenBurstDelay)
	}
	c.scheduleNext(next)
}

func (c *Client) multicastDest() net.Addr {
	if c.ipv6 {
		return protocol.MulticastGroupIPv6()
	}
	return protocol.MulticastGroupIPv4()
}

// buildQueryPackets assembles the question list (discovery PTRs, or
// resolve-mode ANY, plus any resolve-mode address follow-up) and the known
// answers, splitting across multiple TC-flagged packets when the MTU budget
// is exceeded.
func (c *Client) buildQueryPackets(unicastExpected bool) [][]byte {
	questions := c.buildQuestions(unicastExpected)
	knownAnswers := c.buildKnownAnswers()

	return splitIntoPackets(questions, knownAnswers)
}

func (c *Client) buildQuestions(unicastExpected bool) []message.Question {
	var resolveNames []string
	subtypes := make(map[string]bool)
	for _, l := range c.listeners {
		if l.ResolveInstanceName != "" {
			resolveNames = append(resolveNames, l.ResolveInstanceName)
			continue
		}
		for _, st := range l.Subtypes {
			subtypes[st] = true
		}
	}

	qclass := uint16(protocol.ClassIN)
	if unicastExpected {
		qclass |= protocol.ClassUnicastResponseBit
	}

	var out []message.Question
	if len(resolveNames) > 0 {
		for _, name := range resolveNames {
			out = append(out, message.Question{QNAME: name, QTYPE: uint16(protocol.RecordTypeANY), QCLASS: qclass})
			if in, ok := c.instances[foldName(name)]; ok && in.hostname != "" {
				out = append(out,
					message.Question{QNAME: in.hostname, QTYPE: uint16(protocol.RecordTypeA), QCLASS: qclass},
					message.Question{QNAME: in.hostname, QTYPE: uint16(protocol.RecordTypeAAAA), QCLASS: qclass},
				)
			}
		}
		return out
	}

	out = append(out, message.Question{QNAME: c.serviceType, QTYPE: uint16(protocol.RecordTypePTR), QCLASS: qclass})
	for st := range subtypes {
		out = append(out, message.Question{
			QNAME:  st + "._sub." + c.serviceType,
			QTYPE:  uint16(protocol.RecordTypePTR),
			QCLASS: qclass,
		})
	}
	return out
}

// buildKnownAnswers returns every cached record for this client's key whose
// remaining TTL is more than half its authoritative TTL, per §4.3.
func (c *Client) buildKnownAnswers() []message.Answer {
	var out []message.Answer
	now := c.clock.Now().UnixMilli()
	for _, e := range c.cache.GetAll(c.cacheKey()) {
		remaining := e.ReceivedAt + int64(e.TTLMillis) - now
		if remaining*2 <= int64(e.TTLMillis) {
			continue
		}
		out = append(out, message.Answer{
			NAME:  e.Name,
			TYPE:  kindToType(e.Kind),
			CLASS: uint16(protocol.ClassIN),
			TTL:   e.TTLMillis / 1000,
			RDATA: e.RDATA,
		})
	}
	return out
}

func kindToType(k cache.RecordKind) uint16 {
	switch k {
	case cache.KindPTR:
		return uint16(protocol.RecordTypePTR)
	case cache.KindSRV:
		return uint16(protocol.RecordTypeSRV)
	case cache.KindTXT:
		return uint16(protocol.RecordTypeTXT)
	case cache.KindA:
		return uint16(protocol.RecordTypeA)
	case cache.KindAAAA:
		return uint16(protocol.RecordTypeAAAA)
	default:
		return uint16(protocol.RecordTypeKEY)
	}
}

// splitIntoPackets lays out questions in the first packet and known answers
// across it and follow-on packets, setting TC on every packet but the last
// once the MTU budget (protocol.MaxMessageSizeMTU) is exceeded.
func splitIntoPackets(questions []message.Question, knownAnswers []message.Answer) [][]byte {
	var packets [][]byte
	msg := &message.DNSMessage{
		Header:    message.DNSHeader{ID: 0, Flags: 0},
		Questions: questions,
	}
	answerIdx := 0
	for {
		msg.Answers = nil
		for answerIdx < len(knownAnswers) {
			msg.Answers = append(msg.Answers, knownAnswers[answerIdx])
			encoded, err := message.Serialize(msg)
			if err != nil {
				msg.Answers = msg.Answers[:len(msg.Answers)-1]
				break
			}
			if len(encoded) > protocol.MaxMessageSizeMTU && len(msg.Answers) > 1 {
				msg.Answers = msg.Answers[:len(msg.Answers)-1]
				break
			}
			answerIdx++
		}
		more := answerIdx < len(knownAnswers)
		if more {
			msg.Header.Flags |= protocol.FlagTC
		} else {
			msg.Header.Flags &^= protocol.FlagTC
		}
		encoded, err := message.Serialize(msg)
		if err == nil {
			packets = append(packets, encoded)
		}
		msg.Questions = nil // only the first packet repeats the question list
		if !more {
			break
		}
	}
	return packets
}
