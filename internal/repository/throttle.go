package repository

import (
	"math/rand"
	"time"

	"github.com/nimbusdns/beacon/internal/clock"
)

// minMulticastInterval is the minimum spacing between two multicast replies
// to the same destination group per §4.2 step 5.
const minMulticastInterval = 1000 * time.Millisecond

// sharedNameJitterMin and sharedNameJitterMax bound the random delay added
// before a shared-name (PTR) answer is sent. The source draws uniformly
// from this range; per the Design Notes this implementation does the same
// rather than guessing a stricter distribution.
const (
	sharedNameJitterMin = 20 * time.Millisecond
	sharedNameJitterMax = 120 * time.Millisecond
)

// throttle tracks the last multicast reply time per destination group.
type throttle struct {
	clock clock.Clock
	last  map[string]time.Time
}

func newThrottle(clk clock.Clock) *throttle {
	return &throttle{clock: clk, last: make(map[string]time.Time)}
}

// allow reports whether a multicast reply to group may be sent now, and if
// so records the send time.
func (t *throttle) allow(group string) bool {
	now := t.clock.Now()
	if last, ok := t.last[group]; ok && now.Sub(last) < minMulticastInterval {
		return false
	}
	t.last[group] = now
	return true
}

// sharedNameJitter draws a uniform random delay in
// [sharedNameJitterMin, sharedNameJitterMax].
func sharedNameJitter() time.Duration {
	span := sharedNameJitterMax - sharedNameJitterMin
	return sharedNameJitterMin + time.Duration(rand.Int63n(int64(span)+1))
}
