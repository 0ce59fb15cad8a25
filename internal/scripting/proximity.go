package scripting

import (
	"sync"

	"github.com/petervdpas/substrata-client/internal/world"
)

// scriptProximityThreshold is the fixed 20 m radius from spec §4.L. Reading
// gui_client/ScriptedObjectProximityChecker.cpp in original_source/ confirms
// there is no dead band around this threshold -- the flag toggles on every
// crossing, so this checker intentionally implements none (SPEC_FULL.md
// Section C item 2, resolving the spec's open question).
const scriptProximityThreshold = 20.0

// ProximityChecker's OnEnter and OnExit are invoked once per crossing; the caller
// supplies these to also emit the matching server-bound message (spec
// §4.L: "send the event to the server so other clients' handlers also
// run").
type ProximityChecker struct {
	mu      sync.Mutex
	tracked map[world.UID]*world.WorldObject

	handlers *HandlerLists

	OnEnter func(ob *world.WorldObject)
	OnExit  func(ob *world.WorldObject)
}

func NewProximityChecker(handlers *HandlerLists) *ProximityChecker {
	return &ProximityChecker{tracked: make(map[world.UID]*world.WorldObject), handlers: handlers}
}

// Track adds ob to the set of objects checked each tick (it has at least
// one scripted handler registered).
func (p *ProximityChecker) Track(ob *world.WorldObject) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[ob.UID] = ob
}

// Untrack removes ob (destroyed, or its last handler was removed).
func (p *ProximityChecker) Untrack(uid world.UID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracked, uid)
}

// Tick evaluates every tracked object's distance to cam and fires
// enter/exit transitions (spec §4.L "Proximity checker").
func (p *ProximityChecker) Tick(cam world.Vec3d) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ob := range p.tracked {
		closest := ob.AABBWorldSpace().ClosestPointTo(cam)
		dist := closest.Dist(cam)
		near := dist < scriptProximityThreshold

		if near && !ob.InScriptProximity {
			ob.InScriptProximity = true
			p.handlers.Fire(ob.UID, OnUserMovedNearTo)
			if p.OnEnter != nil {
				p.OnEnter(ob)
			}
		} else if !near && ob.InScriptProximity {
			ob.InScriptProximity = false
			p.handlers.Fire(ob.UID, OnUserMovedAwayFrom)
			if p.OnExit != nil {
				p.OnExit(ob)
			}
		}
	}
}
