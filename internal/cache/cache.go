// Package cache implements the Service Cache: per (service-type, socket)
// storage of discovered service records, ordered by expiry so lazy
// expiry-scans only ever touch the head of the list.
package cache

import (
	"strings"

	"github.com/nimbusdns/beacon/internal/clock"
)

// Key identifies one Service-Type Client's cache partition.
type Key struct {
	ServiceType    string
	NetworkHandle  string
	InterfaceIndex int
}

// RecordKind distinguishes the record families the cache merges, per §3's
// merge rules.
type RecordKind int

const (
	KindPTR RecordKind = iota
	KindSRV
	KindTXT
	KindA
	KindAAAA
	KindKEY
)

// Entry is one cached record: an instance's observed PTR/SRV/TXT/address
// data plus bookkeeping for expiry and completeness.
type Entry struct {
	Name       string // owner name (e.g. instance FQDN, or hostname for address records)
	Kind       RecordKind
	RDATA      []byte
	TTLMillis  uint32
	ReceivedAt int64 // clock.Now().UnixMilli() at last refresh

	// expiresAt is ReceivedAt + TTLMillis, kept denormalized so the
	// insertion-sorted slice orders purely on this field.
	expiresAt int64
}

func (e *Entry) remainingTTLMillis(nowMillis int64) int64 {
	remaining := e.expiresAt - nowMillis
	if remaining < 0 {
		return 0
	}
	return remaining
}

// partition is the ordered-by-expiry list of entries for one Key.
type partition struct {
	entries  []*Entry
	onExpire func(previous *Entry, replacement *Entry)
}

// Cache is the Service Cache. Not safe for concurrent use; it is owned by
// one Service-Type Client's event loop.
type Cache struct {
	clock      clock.Clock
	partitions map[Key]*partition
}

// New creates an empty Cache driven by clk.
func New(clk clock.Clock) *Cache {
	return &Cache{clock: clk, partitions: make(map[Key]*partition)}
}

func fold(s string) string { return strings.ToLower(s) }

func (c *Cache) partitionFor(key Key) *partition {
	p, ok := c.partitions[key]
	if !ok {
		p = &partition{}
		c.partitions[key] = p
	}
	return p
}

// RegisterExpiredCallback installs the callback fired when an entry in key
// lazily expires. expireHead always passes nil as replacement: a refreshed
// or replaced record updates its existing entry in place instead.
func (c *Cache) RegisterExpiredCallback(key Key, cb func(previous *Entry, replacement *Entry)) {
	c.partitionFor(key).onExpire = cb
}

// nowMillis returns the cache's clock in epoch milliseconds.
func (c *Cache) nowMillis() int64 {
	return c.clock.Now().UnixMilli()
}

// MergeResult is the outcome of AddOrUpdate.
type MergeResult int

const (
	MergeInserted MergeResult = iota
	MergeRefreshed
	MergeReplaced
	MergeGoodbye // TTL=0: withdrawal
)

// AddOrUpdate merges a freshly-received record into the cache per §3's
// merge rules:
//   - no prior entry: insert.
//   - identical rdata and TTL: no-op except refreshing ReceivedAt.
//   - rdata or TTL changed: replace.
//
// Returns the merge outcome so the caller (the Service-Type Client) can
// decide which completeness callbacks to fire.
func (c *Cache) AddOrUpdate(key Key, name string, kind RecordKind, rdata []byte, ttlMillis uint32) MergeResult {
	p := c.partitionFor(key)
	now := c.nowMillis()
	nameFold := fold(name)

	for _, e := range p.entries {
		if fold(e.Name) != nameFold || e.Kind != kind {
			continue
		}
		if ttlMillis == 0 {
			c.remove(p, e)
			return MergeGoodbye
		}
		if string(e.RDATA) == string(rdata) && e.TTLMillis == ttlMillis {
			e.ReceivedAt = now
			e.expiresAt = now + int64(ttlMillis)
			c.resort(p)
			return MergeRefreshed
		}
		e.RDATA = rdata
		e.TTLMillis = ttlMillis
		e.ReceivedAt = now
		e.expiresAt = now + int64(ttlMillis)
		c.resort(p)
		return MergeReplaced
	}

	if ttlMillis == 0 {
		// Goodbye for a record we never had: no-op.
		return MergeGoodbye
	}
	entry := &Entry{
		Name:       name,
		Kind:       kind,
		RDATA:      rdata,
		TTLMillis:  ttlMillis,
		ReceivedAt: now,
		expiresAt:  now + int64(ttlMillis),
	}
	p.entries = append(p.entries, entry)
	c.resort(p)
	return MergeInserted
}

// resort keeps entries ordered by expiresAt ascending via a stable
// insertion sort over the whole list; with only the just-changed element
// out of place, each call is one linear pass plus that element's moves.
func (c *Cache) resort(p *partition) {
	entries := p.entries
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].expiresAt > entries[j].expiresAt {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func (c *Cache) remove(p *partition, target *Entry) {
	for i, e := range p.entries {
		if e == target {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// Remove deletes the named entry of the given kind from key, if present.
func (c *Cache) Remove(key Key, name string, kind RecordKind) {
	p := c.partitionFor(key)
	nameFold := fold(name)
	for _, e := range p.entries {
		if fold(e.Name) == nameFold && e.Kind == kind {
			c.remove(p, e)
			return
		}
	}
}

// Get returns the named entry of the given kind, expiring head entries
// first.
func (c *Cache) Get(key Key, name string, kind RecordKind) (*Entry, bool) {
	c.expireHead(key)
	p := c.partitionFor(key)
	nameFold := fold(name)
	for _, e := range p.entries {
		if fold(e.Name) == nameFold && e.Kind == kind {
			return e, true
		}
	}
	return nil, false
}

// GetAll returns every live entry for key, earliest-expiry first.
func (c *Cache) GetAll(key Key) []*Entry {
	c.expireHead(key)
	p := c.partitionFor(key)
	out := make([]*Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// SmallestRemainingTTLMillis returns the remaining TTL of the
// soonest-to-expire entry for key, used by the query scheduler's backoff
// computation. Returns 0 if the partition is empty.
func (c *Cache) SmallestRemainingTTLMillis(key Key) int64 {
	c.expireHead(key)
	p := c.partitionFor(key)
	if len(p.entries) == 0 {
		return 0
	}
	return p.entries[0].remainingTTLMillis(c.nowMillis())
}

// expireHead lazily evicts every entry at the front of key's list whose
// receipt+TTL has passed, firing the registered callback for each.
func (c *Cache) expireHead(key Key) {
	p := c.partitionFor(key)
	now := c.nowMillis()
	for len(p.entries) > 0 && p.entries[0].expiresAt <= now {
		expired := p.entries[0]
		p.entries = p.entries[1:]
		if p.onExpire != nil {
			p.onExpire(expired, nil)
		}
	}
}

// Clear removes every entry for key without firing expiry callbacks (used
// by notifySocketDestroyed, which emits its own removal callbacks instead).
func (c *Cache) Clear(key Key) {
	delete(c.partitions, key)
}
