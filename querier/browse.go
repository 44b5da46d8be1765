package querier

import (
	"sync"

	"github.com/nimbusdns/beacon/internal/clock"
	"github.com/nimbusdns/beacon/internal/message"
	"github.com/nimbusdns/beacon/internal/protocol"
	"github.com/nimbusdns/beacon/internal/servicetype"
)

// ServiceInfo is the public view of a discovered service instance, mirrored
// from servicetype.ServiceInfo so callers of Browse never need to import an
// internal package.
type ServiceInfo = servicetype.ServiceInfo

// BrowseListener is the public view of servicetype.Listener: the set of
// callbacks and filters a Browse subscription uses.
type BrowseListener = servicetype.Listener

// QueryMode selects a Browse subscription's burst/backoff schedule.
type QueryMode = servicetype.Mode

const (
	QueryModeActive     = servicetype.ModeActive
	QueryModePassive    = servicetype.ModePassive
	QueryModeAggressive = servicetype.ModeAggressive
)

// browseRegistry owns the Service-Type Clients multiplexed over this
// Querier's single transport, one per distinct service type being browsed.
type browseRegistry struct {
	mu      sync.Mutex
	clients map[string]*servicetype.Client
	q       *Querier
}

func (q *Querier) browse() *browseRegistry {
	q.browseOnce.Do(func() {
		q.browseReg = &browseRegistry{clients: make(map[string]*servicetype.Client), q: q}
	})
	return q.browseReg
}

func (r *browseRegistry) clientFor(serviceType string) *servicetype.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[serviceType]
	if !ok {
		c = servicetype.New(serviceType, "", clock.System{}, r.q.transport, false)
		r.clients[serviceType] = c
		go c.Run(r.q.ctx)
	}
	return c
}

func (r *browseRegistry) dispatch(msg *message.DNSMessage) {
	r.mu.Lock()
	clients := make([]*servicetype.Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()
	for _, c := range clients {
		c.OnPacket(msg)
	}
}

// Browse subscribes l to continuous discovery of serviceType (e.g.
// "_http._tcp.local"), starting the Service-Type Client scheduler for that
// type if this is the first subscriber. It returns an unsubscribe function
// implementing stopSendAndReceive: call it to stop receiving callbacks and,
// once no subscriber remains for serviceType, cancel its pending query.
func (q *Querier) Browse(serviceType string, l *BrowseListener) (unsubscribe func(), err error) {
	if err := protocol.ValidateName(serviceType); err != nil {
		return nil, err
	}
	c := q.browse().clientFor(serviceType)
	id := c.AddListener(l)
	return func() { c.RemoveListener(id) }, nil
}
