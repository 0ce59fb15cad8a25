// Package physics arbitrates which client simulates each dynamic object:
// take/release/renewal and the self-owned check (spec §4.M). Grounded on
// the teacher's internal/state peer-table pattern (a single mutex-guarded
// map keyed by identity, with a staleness check against a last-seen
// timestamp) -- here the map is keyed by object UID instead of peer ID, and
// staleness gates ownership instead of presence.
package physics

import (
	"sync"
	"time"

	"github.com/petervdpas/substrata-client/internal/session"
	"github.com/petervdpas/substrata-client/internal/wire"
	"github.com/petervdpas/substrata-client/internal/world"
)

// DefaultRenewalPeriod and DefaultStaleThreshold match the source's physics
// ownership cadence: renew well inside the stale window so transient
// network jitter doesn't cause a spurious handover.
const (
	DefaultRenewalPeriod  = 2 * time.Second
	DefaultStaleThreshold = 6 * time.Second
)

// Arbiter tracks physics ownership for every dynamic object this client
// knows about, and drives the client's own renewal timer for objects it
// owns.
type Arbiter struct {
	mu sync.Mutex

	selfClientID    string
	renewalPeriod   time.Duration
	staleThreshold  time.Duration

	owned map[world.UID]time.Time // uid -> last renewal time, objects this client owns
}

// NewArbiter creates an Arbiter identifying this client as selfClientID.
func NewArbiter(selfClientID string) *Arbiter {
	return &Arbiter{
		selfClientID:   selfClientID,
		renewalPeriod:  DefaultRenewalPeriod,
		staleThreshold: DefaultStaleThreshold,
		owned:          make(map[world.UID]time.Time),
	}
}

// IsObjectPhysicsOwnedBySelf implements spec §4.M's self-owned check:
// ob.owner_id == my_avatar_uid && now - last_renewal < stale_threshold.
func (a *Arbiter) IsObjectPhysicsOwnedBySelf(ob *world.WorldObject, now time.Time) bool {
	if ob.PhysicsOwner == nil {
		return false
	}
	if ob.PhysicsOwner.OwnerClientID != a.selfClientID {
		return false
	}
	return now.Sub(ob.PhysicsOwner.LastRenewal) < a.staleThreshold
}

// IsUnowned reports whether ob currently has no live owner -- either it was
// never claimed, or its owner's last renewal is older than stale_threshold
// (spec Scenario 4: "A crashes ... B's isObjectPhysicsOwned returns false").
func (a *Arbiter) IsUnowned(ob *world.WorldObject, now time.Time) bool {
	if ob.PhysicsOwner == nil {
		return true
	}
	return now.Sub(ob.PhysicsOwner.LastRenewal) >= a.staleThreshold
}

// TakeOwnership claims ob for this client, sending ObjectPhysicsOwnershipTaken
// over sender and recording the local take so RenewAll picks it up.
func (a *Arbiter) TakeOwnership(sender *session.Sender, ob *world.WorldObject, now time.Time) {
	a.mu.Lock()
	a.owned[ob.UID] = now
	a.mu.Unlock()

	ob.PhysicsOwner = &world.PhysicsOwnerInfo{OwnerClientID: a.selfClientID, TakeTime: now, LastRenewal: now}

	msg := &wire.ObjectPhysicsOwnershipTaken{UID: ob.UID, OwnerClientID: a.selfClientID, TakeTime: now}
	w := wire.NewWriter()
	msg.Encode(w)
	sender.EnqueueMessage(wire.MsgObjectPhysicsOwnershipTaken, w.Bytes())
}

// ReleaseOwnership drops this client's claim on uid without waiting for it
// to go stale (e.g. the object stopped moving).
func (a *Arbiter) ReleaseOwnership(uid world.UID) {
	a.mu.Lock()
	delete(a.owned, uid)
	a.mu.Unlock()
}

// RenewDue returns every locally-owned UID whose last local renewal is at
// least renewalPeriod old, and should be re-sent now.
func (a *Arbiter) RenewDue(now time.Time) []world.UID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var due []world.UID
	for uid, last := range a.owned {
		if now.Sub(last) >= a.renewalPeriod {
			due = append(due, uid)
		}
	}
	return due
}

// MarkRenewed updates the local renewal timestamp for uid after a renewal
// message has been sent.
func (a *Arbiter) MarkRenewed(uid world.UID, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.owned[uid]; ok {
		a.owned[uid] = now
	}
}
