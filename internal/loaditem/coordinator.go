package loaditem

import (
	"fmt"
	"sync"

	"github.com/petervdpas/substrata-client/internal/download"
	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/world"
)

// modelKey identifies an in-flight model decode by URL and whether it wants
// a dynamic physics shape built alongside the render mesh (spec §4.J).
type modelKey struct {
	URL                     string
	WantDynamicPhysicsShape bool
}

// Coordinator is the foreground per-tick driver described in spec §4.J. It
// gates duplicate work via four processing sets, fans download/load-item
// queue entries out from newly-in-proximity objects, and -- once a task
// completes -- applies the result to every subscriber via a
// URL-to-object-UID multimap. Grounded on the teacher's internal/entangle
// and internal/realtime subscription-fan-out managers, which keep exactly
// this kind of "who is waiting on this key" multimap.
type Coordinator struct {
	mu sync.Mutex

	texturesProcessing map[string]struct{}
	modelsProcessing    map[modelKey]struct{}
	audioProcessing     map[string]struct{}
	scriptsProcessing   map[string]struct{}

	modelSubs   map[string][]world.UID
	textureSubs map[string][]world.UID
	audioSubs   map[string][]world.UID
	scriptSubs  map[string][]world.UID

	downloadQ *download.Queue
	loadQ     *Queue
	mq        *msgqueue.Queue

	rollingCursor int
}

// NewCoordinator creates a Coordinator driving dq/lq and posting completions to mq.
func NewCoordinator(dq *download.Queue, lq *Queue, mq *msgqueue.Queue) *Coordinator {
	return &Coordinator{
		texturesProcessing: make(map[string]struct{}),
		modelsProcessing:    make(map[modelKey]struct{}),
		audioProcessing:     make(map[string]struct{}),
		scriptsProcessing:   make(map[string]struct{}),
		modelSubs:           make(map[string][]world.UID),
		textureSubs:         make(map[string][]world.UID),
		audioSubs:           make(map[string][]world.UID),
		scriptSubs:          make(map[string][]world.UID),
		downloadQ:           dq,
		loadQ:                lq,
		mq:                   mq,
	}
}

// checkAddModel returns true iff key was newly inserted into the models
// processing set -- only then should the caller actually enqueue work
// (spec §4.J "check_add_X").
func (c *Coordinator) checkAddModel(key modelKey) bool {
	if _, ok := c.modelsProcessing[key]; ok {
		return false
	}
	c.modelsProcessing[key] = struct{}{}
	return true
}

func (c *Coordinator) checkAddTexture(url string) bool {
	if _, ok := c.texturesProcessing[url]; ok {
		return false
	}
	c.texturesProcessing[url] = struct{}{}
	return true
}

func (c *Coordinator) checkAddAudio(url string) bool {
	if _, ok := c.audioProcessing[url]; ok {
		return false
	}
	c.audioProcessing[url] = struct{}{}
	return true
}

func (c *Coordinator) checkAddScript(content string) bool {
	if _, ok := c.scriptsProcessing[content]; ok {
		return false
	}
	c.scriptsProcessing[content] = struct{}{}
	return true
}

// localPresence reports whether a resource is already on disk; callers pass
// the check so this package stays independent of localstore's on-disk
// layout.
type localPresence func(url string) bool

// ObjectEnteredProximity is called once per object transitioning to
// in_proximity = true (spec §4.J step 1-2). It computes the object's LOD
// level, then for each referenced resource either queues a download (not
// present) or a load-item (present, not yet decoded), gated by the
// processing sets so a shared URL across many objects is only fetched or
// decoded once.
func (c *Coordinator) ObjectEnteredProximity(ob *world.WorldObject, cam world.Vec3d, present localPresence) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lod := lodLevelForDistance(ob.CentroidWorldSpace().Dist(cam), ob.MaxModelLODLevel)
	sizeFactor := sizeFactorFor(ob)

	if ob.ModelURL != "" {
		c.subscribe(c.modelSubs, ob.ModelURL, ob.UID)
		key := modelKey{URL: ob.ModelURL, WantDynamicPhysicsShape: ob.Flags&world.FlagDynamic != 0}
		if !present(ob.ModelURL) {
			c.downloadQ.EnqueueOrUpdate(ob.ModelURL, ob.Pos, sizeFactor)
		} else if c.checkAddModel(key) {
			c.loadQ.Enqueue(Task{
				Kind: TaskDecodeMesh, Key: ob.ModelURL, ObjectUID: ob.UID, Pos: ob.Pos,
				TaskMaxDist: ob.AABBWorldSpace().LongestEdge() * 20,
				WantDynamicPhysicsShape: key.WantDynamicPhysicsShape, LODLevel: lod,
			})
		}
	}

	if ob.LightmapURL != "" {
		c.enqueueTexture(ob, ob.LightmapURL, cam, present, sizeFactor)
	}
	for _, m := range ob.Materials {
		if m.ColourTexURL != "" {
			c.enqueueTexture(ob, m.ColourTexURL, cam, present, sizeFactor)
		}
		if m.EmissionTexURL != "" {
			c.enqueueTexture(ob, m.EmissionTexURL, cam, present, sizeFactor)
		}
	}

	if ob.AudioSourceURL != "" {
		c.subscribe(c.audioSubs, ob.AudioSourceURL, ob.UID)
		if !present(ob.AudioSourceURL) {
			c.downloadQ.EnqueueOrUpdate(ob.AudioSourceURL, ob.Pos, sizeFactor)
		} else if c.checkAddAudio(ob.AudioSourceURL) {
			c.loadQ.Enqueue(Task{Kind: TaskDecodeAudio, Key: ob.AudioSourceURL, ObjectUID: ob.UID, Pos: ob.Pos})
		}
	}

	// Script source is embedded in the object, not fetched -- two objects
	// carrying the same text still only compile it once while cached.
	if ob.ScriptSource != "" {
		c.subscribe(c.scriptSubs, ob.ScriptSource, ob.UID)
		if c.checkAddScript(ob.ScriptSource) {
			c.loadQ.Enqueue(Task{
				Kind: TaskCompileScript, Key: ob.ScriptSource, ObjectUID: ob.UID,
				Pos: ob.Pos, ScriptSource: ob.ScriptSource,
			})
		}
	}
}

func (c *Coordinator) enqueueTexture(ob *world.WorldObject, url string, cam world.Vec3d, present localPresence, sizeFactor float64) {
	c.subscribe(c.textureSubs, url, ob.UID)
	if !present(url) {
		c.downloadQ.EnqueueOrUpdate(url, ob.Pos, sizeFactor)
		return
	}
	if c.checkAddTexture(url) {
		c.loadQ.Enqueue(Task{Kind: TaskDecodeTexture, Key: url, ObjectUID: ob.UID, Pos: ob.Pos})
	}
}

// ResourceDownloaded is called once a previously-missing resource lands on
// disk (a KindResourceDownloaded message drained from the foreground queue).
// Every object still subscribed to url moves from "present but not yet
// loaded" to a queued load-item, gated by the same processing sets as
// ObjectEnteredProximity so a resource shared by many objects is decoded
// exactly once (spec §4.J step 2-3).
func (c *Coordinator) ResourceDownloaded(url string, lookup func(world.UID) (*world.WorldObject, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, uid := range c.modelSubs[url] {
		ob, ok := lookup(uid)
		if !ok {
			continue
		}
		key := modelKey{URL: url, WantDynamicPhysicsShape: ob.Flags&world.FlagDynamic != 0}
		if c.checkAddModel(key) {
			c.loadQ.Enqueue(Task{
				Kind: TaskDecodeMesh, Key: url, ObjectUID: uid, Pos: ob.Pos,
				TaskMaxDist: ob.AABBWorldSpace().LongestEdge() * 20,
				WantDynamicPhysicsShape: key.WantDynamicPhysicsShape,
			})
		}
	}

	if subs := c.textureSubs[url]; len(subs) > 0 && c.checkAddTexture(url) {
		pos := world.Vec3d{}
		if ob, ok := lookup(subs[0]); ok {
			pos = ob.Pos
		}
		c.loadQ.Enqueue(Task{Kind: TaskDecodeTexture, Key: url, ObjectUID: subs[0], Pos: pos})
	}

	if subs := c.audioSubs[url]; len(subs) > 0 && c.checkAddAudio(url) {
		pos := world.Vec3d{}
		if ob, ok := lookup(subs[0]); ok {
			pos = ob.Pos
		}
		c.loadQ.Enqueue(Task{Kind: TaskDecodeAudio, Key: url, ObjectUID: subs[0], Pos: pos})
	}
}

func (c *Coordinator) subscribe(m map[string][]world.UID, key string, uid world.UID) {
	for _, existing := range m[key] {
		if existing == uid {
			return
		}
	}
	m[key] = append(m[key], uid)
}

// TaskCompleted is called when a *Loaded message is drained from the
// message queue. It clears the processing-set entry and returns every
// subscribed object UID so the caller can apply the decoded artifact to
// each (spec §4.J step 3).
func (c *Coordinator) TaskCompleted(kind TaskKind, key string, wantDynamicPhysicsShape bool) []world.UID {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case TaskDecodeMesh:
		delete(c.modelsProcessing, modelKey{URL: key, WantDynamicPhysicsShape: wantDynamicPhysicsShape})
		return append([]world.UID(nil), c.modelSubs[key]...)
	case TaskDecodeTexture:
		delete(c.texturesProcessing, key)
		return append([]world.UID(nil), c.textureSubs[key]...)
	case TaskDecodeAudio:
		delete(c.audioProcessing, key)
		return append([]world.UID(nil), c.audioSubs[key]...)
	case TaskCompileScript:
		delete(c.scriptsProcessing, key)
		return append([]world.UID(nil), c.scriptSubs[key]...)
	}
	return nil
}

// SweepLODChanges walks a rolling window of objs (size budget per call),
// reissuing a mesh load for any object whose LOD level has changed since
// last checked. The cursor advances across calls so the per-frame cost is
// independent of world size (spec §4.J "LOD changes").
func (c *Coordinator) SweepLODChanges(objs []*world.WorldObject, cam world.Vec3d, budget int, present localPresence, lastLOD map[world.UID]int) {
	if len(objs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := budget
	if n > len(objs) {
		n = len(objs)
	}
	for i := 0; i < n; i++ {
		idx := (c.rollingCursor + i) % len(objs)
		ob := objs[idx]
		if !ob.InProximity || ob.ModelURL == "" {
			continue
		}
		lod := lodLevelForDistance(ob.CentroidWorldSpace().Dist(cam), ob.MaxModelLODLevel)
		if lastLOD[ob.UID] == lod {
			continue
		}
		lastLOD[ob.UID] = lod
		key := modelKey{URL: ob.ModelURL, WantDynamicPhysicsShape: ob.Flags&world.FlagDynamic != 0}
		if present(ob.ModelURL) && c.checkAddModel(key) {
			c.loadQ.Enqueue(Task{
				Kind: TaskDecodeMesh, Key: ob.ModelURL, ObjectUID: ob.UID, Pos: ob.Pos,
				WantDynamicPhysicsShape: key.WantDynamicPhysicsShape, LODLevel: lod,
			})
		}
	}
	c.rollingCursor = (c.rollingCursor + n) % len(objs)
}

func lodLevelForDistance(dist float64, maxLevel int) int {
	level := 0
	switch {
	case dist > 200:
		level = 2
	case dist > 80:
		level = 1
	}
	if level > maxLevel {
		level = maxLevel
	}
	return level
}

func sizeFactorFor(ob *world.WorldObject) float64 {
	edge := ob.AABBWorldSpace().LongestEdge()
	if edge < 1 {
		edge = 1
	}
	return 1 / edge
}

// Diagnostics reports processing-set sizes for operator visibility.
func (c *Coordinator) Diagnostics() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("models=%d textures=%d audio=%d scripts=%d",
		len(c.modelsProcessing), len(c.texturesProcessing), len(c.audioProcessing), len(c.scriptsProcessing))
}
