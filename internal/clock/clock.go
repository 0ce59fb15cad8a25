// Package clock estimates the server's wall-clock time from periodic
// TimeSyncMessage samples, compensating for one-way network latency (spec
// §4.D/§4.O). It is grounded on the single-mutex, read-mostly state pattern
// used throughout the example pack's presence/peer tables.
package clock

import (
	"sync"
	"time"
)

// defaultLatency is used before any RTT sample has been observed.
const defaultLatency = 200 * time.Millisecond

// Clock estimates current server global time from the most recent
// low-latency TimeSyncMessage sample plus a running minimum RTT.
type Clock struct {
	mu sync.Mutex

	haveSample            bool
	lastGlobalTimeReceived time.Time // server_t of the best sample so far
	localTimeReceived      time.Time // local time.Now() when that sample arrived
	inferredLatency        time.Duration

	haveRTT bool
	minRTT  time.Duration
}

// New returns a Clock with no samples yet; GetCurrentGlobalTime is undefined
// (zero time) until the first UpdateWithGlobalTimeReceived call.
func New() *Clock {
	return &Clock{}
}

// UpdateWithGlobalTimeReceived records a new (server_t, local_recv_time)
// sample, keeping whichever sample has the shortest inferred one-way
// latency — that sample has the least queuing delay (spec §4.D).
//
// inferredLatency for a candidate sample is server_t + k - local_recv_time,
// where k is the current one-way latency estimate (min_rtt/2, or the
// default if no RTT sample exists yet). Smaller is a tighter sample.
func (c *Clock) UpdateWithGlobalTimeReceived(serverT time.Time, localRecvTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := c.oneWayLatencyLocked()
	candidateLatency := serverT.Add(k).Sub(localRecvTime)

	if !c.haveSample || candidateLatency < c.inferredLatency {
		c.haveSample = true
		c.lastGlobalTimeReceived = serverT
		c.localTimeReceived = localRecvTime
		c.inferredLatency = candidateLatency
	}
}

// NewRoundTripTimeComputed folds a new RTT sample into the running minimum.
func (c *Clock) NewRoundTripTimeComputed(rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveRTT || rtt < c.minRTT {
		c.minRTT = rtt
		c.haveRTT = true
	}
}

// GetCurrentGlobalTime returns the estimated current server time:
// last_global_time_received + (now - local_time_global_time_received) +
// estimated_one_way_latency. Monotonically non-decreasing in local time
// between successive UpdateWithGlobalTimeReceived calls (spec P5).
func (c *Clock) GetCurrentGlobalTime(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.haveSample {
		return now
	}
	elapsed := now.Sub(c.localTimeReceived)
	return c.lastGlobalTimeReceived.Add(elapsed).Add(c.oneWayLatencyLocked())
}

// oneWayLatencyLocked returns min_rtt/2 once an RTT sample exists, else the default.
func (c *Clock) oneWayLatencyLocked() time.Duration {
	if c.haveRTT {
		return c.minRTT / 2
	}
	return defaultLatency
}

// MinRTT returns the current minimum observed round-trip time, or 0 if none yet.
func (c *Clock) MinRTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minRTT
}
