package runtime

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/clock"
	"github.com/petervdpas/substrata-client/internal/download"
	"github.com/petervdpas/substrata-client/internal/loaditem"
	"github.com/petervdpas/substrata-client/internal/localstore"
	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/notify"
	"github.com/petervdpas/substrata-client/internal/physics"
	"github.com/petervdpas/substrata-client/internal/playback"
	"github.com/petervdpas/substrata-client/internal/scripting"
	"github.com/petervdpas/substrata-client/internal/session"
	"github.com/petervdpas/substrata-client/internal/voice"
	"github.com/petervdpas/substrata-client/internal/wire"
	"github.com/petervdpas/substrata-client/internal/world"
)

// camMoveThreshold is the spec's minimum camera displacement before
// UpdateCamPos re-sweeps the proximity grid (spec §4.E "executed when the
// camera has moved more than 1 m since the last call").
const camMoveThreshold = 1.0

// Runtime is the composition root: every long-lived component is built once
// here and threaded through constructors, rather than reached for as a
// package-level global (spec §9 design note).
type Runtime struct {
	Config Config
	Logger *zap.Logger

	SelfClientID string
	TLSConfig    *tls.Config

	Clock        *clock.Clock
	State        *world.State
	Proximity    *world.ProximityLoader
	Store        *localstore.DB
	MsgQueue     *msgqueue.Queue
	Notify       *notify.Center
	Physics      *physics.Arbiter
	Handlers     *scripting.HandlerLists
	Timers       *scripting.Queue
	ScriptProx   *scripting.ProximityChecker

	// LocalScripts and ScriptWatcher implement the §4.L hot-reload
	// supplement: locally-authored override scripts under
	// <data dir>/scripts are recompiled without a client restart.
	LocalScripts  *scripting.LocalScriptStore
	ScriptWatcher *scripting.Watcher

	Voice *voice.Receiver

	DownloadQueue *download.Queue
	DownloadPool  *download.WorkerPool
	UploadQueue   *download.UploadQueue
	UploadPool    *download.UploadWorkerPool

	LoadQueue     *loaditem.Queue
	LoadCoord     *loaditem.Coordinator
	CPUPool       *loaditem.WorkerPool

	Playback *playback.Coordinator

	Session  *session.Session
	Sender   *session.Sender
	Receiver *session.Receiver

	voiceDecoderFactory func(world.UID) voice.Decoder

	lastCamPos  world.Vec3d
	haveCamPos  bool

	// lastLODLevels remembers each in-proximity object's last issued LOD
	// level for the rolling per-tick sweep (spec §4.J "LOD changes").
	lastLODLevels map[world.UID]int

	// scriptEngines owns the live Lua evaluator for each scripted object;
	// handler lists hold the same engine behind the Evaluator interface,
	// with Alive() standing in for the original's weak-reference check.
	scriptEngines map[world.UID]*scripting.Engine
}

// lodSweepBudget bounds how many objects one Tick re-checks for an LOD
// boundary crossing, keeping per-frame work independent of world size.
const lodSweepBudget = 64

// New builds a Runtime from cfg. It opens the local store and wires every
// queue/coordinator, but does not dial the server -- that happens in
// Connect, once addressing and credentials are known.
func New(cfg Config) (*Runtime, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("runtime: build logger: %w", err)
	}

	store, err := localstore.Open(cfg.Paths.DataDir)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("runtime: open local store: %w", err)
	}

	clk := clock.New()
	state := world.New(clk)
	proximity := world.NewProximityLoader(cfg.World.LoadDistance, 4096)
	mq := msgqueue.New(1024)

	dq := download.New()
	uq := download.NewUploadQueue()
	lq := loaditem.NewQueue()
	loadCoord := loaditem.NewCoordinator(dq, lq, mq)

	handlers := scripting.NewHandlerLists()
	selfClientID := uuid.NewString()

	rt := &Runtime{
		Config:       cfg,
		Logger:       logger,
		SelfClientID: selfClientID,
		TLSConfig:    &tls.Config{InsecureSkipVerify: cfg.Server.InsecureTLS},

		Clock:      clk,
		State:      state,
		Proximity:  proximity,
		Store:      store,
		MsgQueue:   mq,
		Notify:     notify.New(),
		Physics:    physics.NewArbiter(selfClientID),
		Handlers:   handlers,
		Timers:     scripting.NewQueue(),
		ScriptProx: scripting.NewProximityChecker(handlers),

		DownloadQueue: dq,
		UploadQueue:   uq,
		LoadQueue:     lq,
		LoadCoord:     loadCoord,
		Playback:      playback.New(),

		voiceDecoderFactory: func(world.UID) voice.Decoder { return stubVoiceDecoder{} },
		lastLODLevels:       make(map[world.UID]int),
		scriptEngines:       make(map[world.UID]*scripting.Engine),
	}

	rt.DownloadPool = download.NewWorkerPool(dq, mq, cfg.Paths.DataDir+"/resources", cfg.Server.Addr, rt.TLSConfig, logger, cfg.Workers.MaxConcurrentDownloads)
	rt.UploadPool = download.NewUploadWorkerPool(uq, mq, cfg.Server.Addr, rt.TLSConfig, logger)
	rt.CPUPool = loaditem.NewWorkerPool(lq, mq, stubDecoder, func() world.Vec3d { return rt.lastCamPos })

	// LoadCallback/UnloadCallback are the join point between the proximity
	// grid (§4.E) and the rest of the foreground: crossing into proximity
	// fans out downloads/load-items (§4.J) and starts script-proximity
	// tracking for objects with registered handlers (§4.L); crossing out
	// tears the latter down. Both fire synchronously under Proximity's lock
	// per its own contract, so they must not call back into Proximity.
	rt.Proximity.LoadCallback = func(ob *world.WorldObject) {
		rt.LoadCoord.ObjectEnteredProximity(ob, rt.lastCamPos, rt.Store.IsPresent)
		if rt.Handlers.HasAny(ob.UID) {
			rt.ScriptProx.Track(ob)
		}
	}
	rt.Proximity.UnloadCallback = func(ob *world.WorldObject) {
		rt.ScriptProx.Untrack(ob.UID)
	}

	localScripts := scripting.NewLocalScriptStore()
	scriptWatcher, err := scripting.NewWatcher(filepath.Join(cfg.Paths.DataDir, "scripts"), logger)
	if err != nil {
		store.Close()
		logger.Sync()
		return nil, fmt.Errorf("runtime: create script watcher: %w", err)
	}
	scriptWatcher.OnReload = localScripts.Set
	scriptWatcher.OnRemove = localScripts.Delete
	scriptWatcher.ScanExisting()
	rt.LocalScripts = localScripts
	rt.ScriptWatcher = scriptWatcher

	return rt, nil
}

// stubDecoder is the CPUPool's default Decoder: mesh/texture/audio parsing
// and script compilation are external collaborators (spec §1), so a
// production composition root replaces this via SetDecoder before Start.
// The default keeps every load-item task from blocking forever in a
// freshly-built Runtime (e.g. in tests that never call SetDecoder).
func stubDecoder(t loaditem.Task) (any, error) {
	return nil, nil
}

// stubVoiceDecoder is the default Opus decoder injected into the voice
// receiver: the codec is an external collaborator (spec §1), so a
// production composition root replaces it via SetVoiceDecoder before
// Connect. The default keeps the receiver's per-avatar reorder/ring-buffer
// bookkeeping exercised without pulling in an Opus codec dependency.
type stubVoiceDecoder struct{}

func (stubVoiceDecoder) Decode(payload []byte) ([]float32, error) {
	return nil, nil
}

// SetVoiceDecoder overrides the per-avatar Opus decoder factory the voice
// receiver uses. Call before Connect.
func (rt *Runtime) SetVoiceDecoder(factory func(world.UID) voice.Decoder) {
	rt.voiceDecoderFactory = factory
}

// SetDecoder overrides the CPU task-pool's decode function. Call before
// Start; the external mesh/texture/audio/script codecs are wired in here by
// the composition root, keeping this package free of any rendering or
// codec dependency (spec §1 Non-goals).
func (rt *Runtime) SetDecoder(d loaditem.Decoder) {
	rt.CPUPool = loaditem.NewWorkerPool(rt.LoadQueue, rt.MsgQueue, d, func() world.Vec3d { return rt.lastCamPos })
}

// Start launches the background worker pools. Call once after New.
func (rt *Runtime) Start() {
	rt.DownloadPool.Start(rt.Config.Workers.DownloadWorkers)
	rt.UploadPool.Start(rt.Config.Workers.UploadWorkers)
	rt.CPUPool.Start(2)
	go rt.ScriptWatcher.Run()
}

// Connect dials the server, performs the Updates handshake, authenticates,
// and starts the sender/receiver tasks (spec §4.A-§4.C). The receiver's Run
// loop is launched here in its own goroutine (spec §5: "1 receiver ... 1
// long-running task"); callers only need to call Tick from the foreground.
func (rt *Runtime) Connect(ctx context.Context, username, password string) error {
	sess, err := session.Dial(ctx, rt.Config.Server.Addr, wire.ConnUpdates, rt.TLSConfig, rt.Logger)
	if err != nil {
		return fmt.Errorf("runtime: connect: %w", err)
	}
	if err := sess.AuthenticateUpdates(username, password, rt.Config.Server.WorldName); err != nil {
		sess.Close()
		return fmt.Errorf("runtime: authenticate: %w", err)
	}

	rt.Session = sess
	rt.Sender = session.NewSender(sess.Conn(), rt.Logger)
	rt.Receiver = session.NewReceiver(sess.Conn(), rt.State, rt.MsgQueue, rt.Logger, sess.Handshake.ClientAvatarUID)
	go rt.runReceiver(rt.Receiver)

	// With a live sender, script-proximity crossings and newly-surveyed
	// grid cells now have somewhere to go: the enter/exit events mirror the
	// local handler invocation to the server (spec §4.L), and each new cell
	// asks the server for the initial send of its objects (spec §4.E
	// newCellInProximity).
	rt.ScriptProx.OnEnter = func(ob *world.WorldObject) {
		rt.sendUserObjectEvent(wire.MsgUserMovedNearToObject, ob.UID)
	}
	rt.ScriptProx.OnExit = func(ob *world.WorldObject) {
		rt.sendUserObjectEvent(wire.MsgUserMovedAwayFromObject, ob.UID)
	}
	rt.Proximity.NewCellInProximity = func(cell [3]int32) {
		rt.queryCellObjects(cell)
	}

	if rt.Config.Voice.Enabled {
		rt.connectVoice(sess)
	}
	return nil
}

// connectVoice binds the UDP voice socket (spec §4.N) to the same server
// the Updates session just connected to. A failure here is logged and
// leaves rt.Voice nil rather than failing Connect: voice is an optional
// long-running task alongside the session, not part of the handshake
// contract itself.
func (rt *Runtime) connectVoice(sess *session.Session) {
	serverIP := hostIP(sess.Conn().RemoteAddr())
	if serverIP == nil {
		rt.Logger.Warn("runtime: could not determine server IP for voice receiver")
		return
	}
	vr, err := voice.NewReceiver(rt.Config.Voice.LocalAddr, serverIP, rt.voiceDecoderFactory, rt.Logger)
	if err != nil {
		rt.Logger.Warn("runtime: voice receiver disabled", zap.Error(err))
		return
	}
	rt.Voice = vr
	go rt.runVoiceReceiver(vr)
}

// runVoiceReceiver drives vr.Run() for the lifetime of one session,
// reporting a fatal error to the foreground queue per spec §7's worker
// propagation policy instead of letting it escape this goroutine.
func (rt *Runtime) runVoiceReceiver(vr *voice.Receiver) {
	if err := vr.Run(); err != nil {
		rt.MsgQueue.PostError(fmt.Errorf("voice receiver: %w", err))
	}
}

// sendUserObjectEvent enqueues one of the client-to-server script event
// messages (UserUsedObject, UserTouchedObject, UserMovedNearToObject,
// UserMovedAwayFromObject) for ob.
func (rt *Runtime) sendUserObjectEvent(typ wire.MsgType, uid world.UID) {
	if rt.Sender == nil {
		return
	}
	msg := &wire.UserObjectEvent{ObjectUID: uid}
	w := wire.NewWriter()
	msg.Encode(w)
	rt.Sender.EnqueueMessage(typ, w.Bytes())
}

// queryCellObjects asks the server for the initial send of every object in
// a grid cell that just entered proximity for the first time.
func (rt *Runtime) queryCellObjects(cell [3]int32) {
	if rt.Sender == nil {
		return
	}
	msg := &wire.QueryObjectsInAABB{AABB: world.AABB{
		Min: world.Vec3d{
			X: float64(cell[0]) * world.CellWidth,
			Y: float64(cell[1]) * world.CellWidth,
			Z: float64(cell[2]) * world.CellWidth,
		},
		Max: world.Vec3d{
			X: float64(cell[0]+1) * world.CellWidth,
			Y: float64(cell[1]+1) * world.CellWidth,
			Z: float64(cell[2]+1) * world.CellWidth,
		},
	}}
	w := wire.NewWriter()
	msg.Encode(w)
	rt.Sender.EnqueueMessage(wire.MsgObjectQueryInAABB, w.Bytes())
}

// hostIP extracts the bare IP from a net.Addr of the form "host:port".
func hostIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// runReceiver drives rc.Run() for the lifetime of one session. A returned
// error is fatal to the session (spec §7 ProtocolError/NetworkError: "the
// connection is dropped and session transitions to Reconnecting"); per
// spec §7's worker propagation policy it is reported to the foreground
// queue rather than escaping this goroutine, and Shutdown/Goto already
// call Receiver.Stop plus Session.Close to unblock the pending read that
// caused it.
func (rt *Runtime) runReceiver(rc *session.Receiver) {
	if err := rc.Run(); err != nil {
		rt.MsgQueue.PostError(fmt.Errorf("receiver: %w", err))
	}
}

// Tick drives one foreground frame (spec §5 "the foreground never blocks on
// network I/O; it only polls per-tick queues with zero timeout"): it moves
// the proximity camera if it has moved far enough, reconciles every
// receiver-dirtied object against the proximity grid and script-proximity
// checker, retires dead objects from every derived set, and drains worker
// results back into the load coordinator and local store.
func (rt *Runtime) Tick(camPos world.Vec3d, now time.Time) {
	if !rt.haveCamPos || camPos.Dist2(rt.lastCamPos) > camMoveThreshold*camMoveThreshold {
		rt.Proximity.UpdateCamPos(camPos)
		rt.lastCamPos = camPos
		rt.haveCamPos = true
	}

	rt.drainDirty(rt.State.DrainDirtyFromRemote(), false)
	rt.drainDirty(rt.State.DrainDirtyFromLocal(), true)

	rt.ScriptProx.Tick(camPos)
	rt.fireTimers(now)
	rt.renewPhysicsOwnership(now)
	rt.reconcileVoiceAvatars()
	rt.sweepLODChanges(camPos)

	// Re-rank both work queues against the camera that just moved, so the
	// next dequeue hands workers the nearest/largest work first (spec P4).
	rt.DownloadQueue.Sort(camPos)
	rt.LoadQueue.Sort(camPos)

	for _, item := range rt.MsgQueue.Drain() {
		rt.applyMessage(item)
	}
}

// sweepLODChanges walks a bounded rolling window of in-proximity objects,
// reissuing a mesh decode for any that crossed an LOD distance boundary
// since last visited (spec §4.J "LOD changes").
func (rt *Runtime) sweepLODChanges(camPos world.Vec3d) {
	var objs []*world.WorldObject
	rt.State.ForEachObject(func(ob *world.WorldObject) {
		if ob.InProximity {
			objs = append(objs, ob)
		}
	})
	rt.LoadCoord.SweepLODChanges(objs, camPos, lodSweepBudget, rt.Store.IsPresent, rt.lastLODLevels)
}

// reconcileVoiceAvatars drops per-avatar decode state for any avatar no
// longer in world state (spec §4.N step 2: "On world_state.avatars_changed,
// reconciles the decoder map").
func (rt *Runtime) reconcileVoiceAvatars() {
	if rt.Voice == nil {
		return
	}
	live := make(map[world.UID]struct{})
	rt.State.ForEachAvatar(func(av *world.Avatar) {
		live[av.UID] = struct{}{}
	})
	rt.Voice.ReconcileAvatars(live)
}

// fireTimers runs every due script timer and re-adds repeating ones for
// their next period (spec §4.L: "Repeating timers are re-added by the
// foreground after firing").
func (rt *Runtime) fireTimers(now time.Time) {
	for _, t := range rt.Timers.Update(now) {
		t.Fn()
		if t.Repeating {
			rt.Timers.Reschedule(t)
		}
	}
}

// renewPhysicsOwnership re-sends ObjectPhysicsOwnershipTaken for every
// locally-owned object whose renewal period has elapsed, keeping other
// clients from treating it as stale (spec §4.M).
func (rt *Runtime) renewPhysicsOwnership(now time.Time) {
	if rt.Sender == nil {
		return
	}
	for _, uid := range rt.Physics.RenewDue(now) {
		ob, ok := rt.State.GetObject(uid)
		if !ok {
			continue
		}
		rt.Physics.TakeOwnership(rt.Sender, ob, now)
	}
}

func (rt *Runtime) drainDirty(uids []world.UID, fromLocal bool) {
	for _, uid := range uids {
		ob, ok := rt.State.GetObject(uid)
		if !ok {
			continue
		}
		if ob.State == world.StateDead {
			rt.Proximity.RemoveObject(ob)
			rt.ScriptProx.Untrack(uid)
			rt.Handlers.Forget(uid)
			if eng, ok := rt.scriptEngines[uid]; ok {
				eng.Close()
				delete(rt.scriptEngines, uid)
			}
			rt.Timers.CancelScript(fmt.Sprintf("ob_%d", uid))
			delete(rt.lastLODLevels, uid)
			rt.State.RemoveObject(uid)
			continue
		}
		// Safe for both a brand-new object (lastPos is its zero value, so
		// the remove half is a harmless no-op) and a moved one.
		rt.Proximity.ObjectTransformChanged(ob)

		// Locally-originated mutations are what the server hasn't seen yet;
		// composing the outbound update here is the only place foreground
		// state flows back out (spec §2 data flow).
		if fromLocal && rt.Sender != nil {
			rt.sendObjectTransformUpdate(ob)
		}
	}
}

// CreateObject inserts a locally-authored object under a provisional UID and
// sends a CreateObject request; the server's ObjectCreated broadcast later
// supersedes the provisional entry with the permanent one (spec §3
// Lifecycles). The provisional UID is derived from a fresh UUID's leading
// bytes with the top bit forced, keeping it far away from the server's
// low-numbered sequential assignments.
func (rt *Runtime) CreateObject(ob *world.WorldObject, now time.Time) world.UID {
	id := uuid.New()
	provisional := world.UID(binary.LittleEndian.Uint64(id[:8]) | 1<<63)
	if provisional == world.InvalidUID {
		provisional--
	}
	ob.UID = provisional
	ob.CreatedTime = now
	ob.LastModifiedTime = now
	ob.State = world.StateJustCreated
	ob.MarkTransformDirty()
	rt.State.InsertObject(ob)
	rt.State.MarkDirtyFromLocal(ob.UID)

	if rt.Sender != nil {
		msg := &wire.ObjectCreated{
			UID: ob.UID, CreatorID: rt.Receiver.SelfUID(), CreatedTime: now,
			Pos: ob.Pos, Axis: ob.Axis, Angle: ob.Angle, Scale: ob.Scale,
			ObjectType: ob.ObjectType, ModelURL: ob.ModelURL,
			LightmapURL: ob.LightmapURL, AudioSourceURL: ob.AudioSourceURL,
			Flags: ob.Flags, MaxModelLODLevel: int32(ob.MaxModelLODLevel),
			Materials: ob.Materials, AABBOS: ob.AABBObjectSpace,
		}
		w := wire.NewWriter()
		msg.Encode(w)
		rt.Sender.EnqueueMessage(wire.MsgCreateObject, w.Bytes())
	}
	return ob.UID
}

func (rt *Runtime) sendObjectTransformUpdate(ob *world.WorldObject) {
	msg := &wire.ObjectTransformUpdate{
		UID: ob.UID, Pos: ob.Pos, Axis: ob.Axis, Angle: ob.Angle, Scale: ob.Scale,
	}
	w := wire.NewWriter()
	msg.Encode(w)
	rt.Sender.EnqueueMessage(wire.MsgObjectTransformUpdate, w.Bytes())
}

func (rt *Runtime) applyMessage(item msgqueue.Item) {
	switch item.Kind {
	case msgqueue.KindResourceDownloaded:
		rt.recordResourcePresent(item.URL)
		rt.LoadCoord.ResourceDownloaded(item.URL, rt.State.GetObject)
	case msgqueue.KindResourceNotFound:
		if err := rt.Store.MarkFailed(item.URL); err != nil {
			rt.Logger.Warn("runtime: record failed resource", zap.String("url", item.URL), zap.Error(err))
		}
	case msgqueue.KindModelLoaded:
		rt.applyArtifactToSubscribers(rt.LoadCoord.TaskCompleted(loaditem.TaskDecodeMesh, item.URL, item.WantDynamicPhysicsShape))
	case msgqueue.KindTextureLoaded:
		rt.applyArtifactToSubscribers(rt.LoadCoord.TaskCompleted(loaditem.TaskDecodeTexture, item.URL, false))
	case msgqueue.KindAudioLoaded:
		rt.applyArtifactToSubscribers(rt.LoadCoord.TaskCompleted(loaditem.TaskDecodeAudio, item.URL, false))
	case msgqueue.KindScriptCompiled:
		rt.buildScriptEngines(rt.LoadCoord.TaskCompleted(loaditem.TaskCompileScript, item.URL, false))
	case msgqueue.KindError:
		rt.Notify.Post(notify.LevelError, item.Err.Error(), 0)
	case msgqueue.KindLog:
		rt.Logger.Info(item.Text)
	case msgqueue.KindChat:
		rt.Notify.Post(notify.LevelInfo, item.Text, 0)
	case msgqueue.KindWorldChanged:
		rt.Notify.Post(notify.LevelInfo, "server moved you to a different world; reconnect to follow", 0)
	case msgqueue.KindMapTileResult:
		rt.Logger.Debug("runtime: map tile available", zap.String("url", item.URL))
	}
}

// buildScriptEngines stands up one sandboxed Lua evaluator per subscriber
// object once its script content is known to compile, registers the engine
// on every handler list the script actually defines, and starts
// script-proximity tracking for objects that gained a near/away handler
// (spec §4.L). A local override script for the object, if one exists under
// <data dir>/scripts/ob_<uid>.lua, takes precedence over the embedded text.
func (rt *Runtime) buildScriptEngines(uids []world.UID) {
	for _, uid := range uids {
		ob, ok := rt.State.GetObject(uid)
		if !ok || ob.ScriptSource == "" {
			continue
		}
		if _, exists := rt.scriptEngines[uid]; exists {
			continue
		}

		source := ob.ScriptSource
		scriptID := fmt.Sprintf("ob_%d", uid)
		if override, ok := rt.LocalScripts.Get(scriptID); ok {
			source = override
		}

		eng, err := scripting.NewEngine(ob, scriptID, source, rt.Config.Lua.MaxMemoryMB, rt.Config.Lua.MaxExecTime())
		if err != nil {
			rt.MsgQueue.PostLog(fmt.Sprintf("script for object %d failed to compile: %v", uid, err))
			continue
		}
		rt.scriptEngines[uid] = eng

		registered := false
		for _, kind := range scripting.EventKinds() {
			if fn := kind.FunctionName(); eng.HasFunction(fn) {
				rt.Handlers.Register(uid, kind, eng, fn)
				registered = true
			}
		}
		if registered && ob.InProximity {
			rt.ScriptProx.Track(ob)
		}
	}
}

// applyArtifactToSubscribers walks every object that was waiting on a
// completed decode and promotes those still JustCreated to Alive -- the
// point at which the render/physics proxies (attached by the out-of-scope
// renderer through the same subscriber list) become meaningful.
func (rt *Runtime) applyArtifactToSubscribers(uids []world.UID) {
	for _, uid := range uids {
		ob, ok := rt.State.GetObject(uid)
		if !ok {
			continue
		}
		if ob.State == world.StateJustCreated {
			ob.State = world.StateAlive
		}
	}
}

// recordResourcePresent files a freshly-downloaded blob in the local index,
// with the hash parsed out of its own URL -- the worker already verified the
// bytes against it before renaming the file into place.
func (rt *Runtime) recordResourcePresent(url string) {
	var hash uint64
	if _, h, _, err := localstore.ParseURL(url); err == nil {
		hash = h
	}
	path := filepath.Join(rt.Config.Paths.DataDir, "resources", url)
	if err := rt.Store.MarkPresent(url, hash, path); err != nil {
		rt.Logger.Warn("runtime: record downloaded resource", zap.String("url", url), zap.Error(err))
	}
}

// Shutdown stops every background worker pool, half-closes the session if
// one is open, and closes the local store.
func (rt *Runtime) Shutdown() {
	if rt.Sender != nil {
		rt.Sender.Shutdown(2 * time.Second)
	}
	if rt.Receiver != nil {
		rt.Receiver.Stop()
	}
	if rt.Voice != nil {
		rt.Voice.Stop()
	}
	if rt.Session != nil {
		rt.Session.Close()
	}
	rt.DownloadPool.Stop()
	rt.UploadPool.Stop()
	rt.CPUPool.Stop()
	rt.ScriptWatcher.Stop()
	for _, eng := range rt.scriptEngines {
		eng.Close()
	}
	rt.Store.Close()
	rt.Logger.Sync()
}
