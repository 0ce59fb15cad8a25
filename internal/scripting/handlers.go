// Package scripting hosts per-object Lua event handlers, the proximity
// checker that turns camera movement into "user moved near/away" events,
// and the per-script timer queue (spec §4.L). Grounded on the teacher's
// internal/lua package (engine.go, sandbox.go, memlimit.go, ratelimit.go),
// which already implements a sandboxed gopher-lua evaluator with per-script
// resource limits -- reused here as the evaluator behind each handler
// entry, generalised from goop2's fixed API surface to the object-event
// surface this spec names.
package scripting

import (
	"github.com/petervdpas/substrata-client/internal/world"
)

// EventKind enumerates the six handler lists a scripted object owns.
type EventKind int

const (
	OnUserUsed EventKind = iota
	OnUserTouched
	OnUserMovedNearTo
	OnUserMovedAwayFrom
	OnUserEnteredParcel
	OnUserExitedParcel

	numEventKinds
)

// FunctionName returns the Lua global a script defines to handle this event.
func (k EventKind) FunctionName() string {
	switch k {
	case OnUserUsed:
		return "onUserUsed"
	case OnUserTouched:
		return "onUserTouched"
	case OnUserMovedNearTo:
		return "onUserMovedNearTo"
	case OnUserMovedAwayFrom:
		return "onUserMovedAwayFrom"
	case OnUserEnteredParcel:
		return "onUserEnteredParcel"
	case OnUserExitedParcel:
		return "onUserExitedParcel"
	}
	return ""
}

// EventKinds lists every handler kind in declaration order, for callers
// probing a freshly-compiled script for the functions it defines.
func EventKinds() [numEventKinds]EventKind {
	return [numEventKinds]EventKind{
		OnUserUsed, OnUserTouched, OnUserMovedNearTo,
		OnUserMovedAwayFrom, OnUserEnteredParcel, OnUserExitedParcel,
	}
}

// Evaluator is the minimal surface this package needs from a script engine:
// a way to check the backing script is still alive and a way to invoke one
// named function. The concrete embedded-Lua-VM implementation lives in
// engine.go; tests can substitute a fake.
type Evaluator interface {
	// Alive reports whether the evaluator (and its owning object) is still
	// valid -- the Go analogue of the source's weak-reference resolve check.
	Alive() bool
	CallHandler(fnRef string, args ...any) error
}

// handlerEntry is one registered callback: which evaluator owns it and
// which function to call.
type handlerEntry struct {
	eval   Evaluator
	fnRef  string
}

// HandlerLists owns the six event handler lists for every scripted object,
// keyed by object UID (spec §4.L "Event handlers").
type HandlerLists struct {
	lists map[world.UID][numEventKinds][]handlerEntry
}

func NewHandlerLists() *HandlerLists {
	return &HandlerLists{lists: make(map[world.UID][numEventKinds][]handlerEntry)}
}

// Register adds a handler for uid's event kind.
func (h *HandlerLists) Register(uid world.UID, kind EventKind, eval Evaluator, fnRef string) {
	entry := h.lists[uid]
	entry[kind] = append(entry[kind], handlerEntry{eval: eval, fnRef: fnRef})
	h.lists[uid] = entry
}

// HasAny reports whether uid has at least one registered handler in any of
// its six lists -- the foreground uses this to decide whether an object is
// worth tracking in the proximity checker at all.
func (h *HandlerLists) HasAny(uid world.UID) bool {
	entry, ok := h.lists[uid]
	if !ok {
		return false
	}
	for _, list := range entry {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

// Forget drops every handler list for uid (object destroyed).
func (h *HandlerLists) Forget(uid world.UID) {
	delete(h.lists, uid)
}

// Fire walks uid's handler list for kind, calling each still-alive
// evaluator and swap-removing any whose evaluator has gone away -- O(1)
// amortised cleanup per spec §4.L.
func (h *HandlerLists) Fire(uid world.UID, kind EventKind, args ...any) {
	entry, ok := h.lists[uid]
	if !ok {
		return
	}
	list := entry[kind]
	i := 0
	for i < len(list) {
		e := list[i]
		if !e.eval.Alive() {
			// swap-remove: move the last element into i, shrink by one,
			// and do not advance i so the swapped-in entry is still visited.
			last := len(list) - 1
			list[i] = list[last]
			list = list[:last]
			continue
		}
		_ = e.eval.CallHandler(e.fnRef, args...)
		i++
	}
	entry[kind] = list
	h.lists[uid] = entry
}
