package world

import (
	"sync"

	"github.com/petervdpas/substrata-client/internal/clock"
)

// State is the client's replicated view of the world: objects, avatars,
// parcels, and LOD chunks, plus the dirty sets the foreground drains each
// tick. A single coarse lock protects every map, matching the teacher's
// PeerTable convention of one mutex guarding one aggregate so that
// high-frequency foreground code can traverse it atomically (spec §4.D,
// §5 "Shared-resource policy").
type State struct {
	mu sync.Mutex

	objects   map[UID]*WorldObject
	avatars   map[UID]*Avatar
	parcels   map[ParcelID]*Parcel
	lodChunks map[[3]int32]*LODChunk

	dirtyFromRemote map[UID]struct{}
	dirtyFromLocal  map[UID]struct{}

	clock *clock.Clock
}

// New creates an empty world state bound to clk for time estimation.
func New(clk *clock.Clock) *State {
	return &State{
		objects:         make(map[UID]*WorldObject),
		avatars:         make(map[UID]*Avatar),
		parcels:         make(map[ParcelID]*Parcel),
		lodChunks:       make(map[[3]int32]*LODChunk),
		dirtyFromRemote: make(map[UID]struct{}),
		dirtyFromLocal:  make(map[UID]struct{}),
		clock:           clk,
	}
}

// InsertObject adds or replaces an object. A remove of a missing UID or an
// insert of an existing one are both well-defined, idempotent operations —
// there are no map-mutation failure modes (spec §4.D "Fails: none").
func (s *State) InsertObject(ob *WorldObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ob.UID] = ob
}

// RemoveObject deletes uid from the object map. No-op if absent.
func (s *State) RemoveObject(uid UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, uid)
	delete(s.dirtyFromRemote, uid)
	delete(s.dirtyFromLocal, uid)
}

// GetObject returns the object for uid, if present.
func (s *State) GetObject(uid UID) (*WorldObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ob, ok := s.objects[uid]
	return ob, ok
}

// ForEachObject calls fn for every object under the lock. fn must not
// re-enter State methods.
func (s *State) ForEachObject(fn func(*WorldObject)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ob := range s.objects {
		fn(ob)
	}
}

// MarkDirtyFromRemote records that a receiver-applied mutation touched uid.
// This is the sole channel by which the foreground learns about
// receiver-applied changes (spec §5), and it is unordered.
func (s *State) MarkDirtyFromRemote(uid UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyFromRemote[uid] = struct{}{}
}

// MarkDirtyFromLocal records a foreground-originated mutation pending
// outbound send.
func (s *State) MarkDirtyFromLocal(uid UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirtyFromLocal[uid] = struct{}{}
}

// DrainDirtyFromRemote returns and clears the set of UIDs mutated by the
// receiver since the last drain.
func (s *State) DrainDirtyFromRemote() []UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UID, 0, len(s.dirtyFromRemote))
	for uid := range s.dirtyFromRemote {
		out = append(out, uid)
	}
	s.dirtyFromRemote = make(map[UID]struct{})
	return out
}

// DrainDirtyFromLocal returns and clears the set of locally-dirtied UIDs.
func (s *State) DrainDirtyFromLocal() []UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UID, 0, len(s.dirtyFromLocal))
	for uid := range s.dirtyFromLocal {
		out = append(out, uid)
	}
	s.dirtyFromLocal = make(map[UID]struct{})
	return out
}

// --- Avatars ---

func (s *State) InsertAvatar(av *Avatar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatars[av.UID] = av
}

func (s *State) RemoveAvatar(uid UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.avatars, uid)
}

func (s *State) GetAvatar(uid UID) (*Avatar, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	av, ok := s.avatars[uid]
	return av, ok
}

func (s *State) ForEachAvatar(fn func(*Avatar)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, av := range s.avatars {
		fn(av)
	}
}

// --- Parcels ---

func (s *State) InsertParcel(p *Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parcels[p.ID] = p
}

func (s *State) GetParcel(id ParcelID) (*Parcel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[id]
	return p, ok
}

func (s *State) ForEachParcel(fn func(*Parcel)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parcels {
		fn(p)
	}
}

// --- LOD chunks ---

func (s *State) InsertLODChunk(c *LODChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lodChunks[c.Coord] = c
}

func (s *State) GetLODChunk(coord [3]int32) (*LODChunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.lodChunks[coord]
	return c, ok
}

// Clock exposes the bound clock for the receiver's TimeSyncMessage handler.
func (s *State) Clock() *clock.Clock {
	return s.clock
}
