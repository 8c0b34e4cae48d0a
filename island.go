package bedrock

import (
	"math"
	"sync/atomic"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/graph"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

type workerState int

const (
	stateInit workerState = iota
	stateStep
	stateBeginStep
	stateSolve
	stateBroadphase
	stateBroadphaseAsync
	stateNarrowphase
	stateNarrowphaseAsync
	stateFinishStep
)

// IslandWorker owns the private registry of one island and advances it in
// fixed steps. It runs as a job posted repeatedly to the dispatcher: each
// state handler runs to completion, then the worker reschedules itself.
// Parallel regions suspend the worker (async states) and the completion
// continuation re-posts the job.
type IslandWorker struct {
	id  uuid.UUID
	log Logger
	cfg Config

	reg          *registry.Registry
	islandEntity registry.Entity // worker-local
	emap         *EntityMap
	builder      *DeltaBuilder
	queues       QueuePair

	graph  *graph.Graph
	bphase *Broadphase
	nphase *Narrowphase
	solver *constraint.Solver

	dispatcher *Dispatcher
	now        clock

	state     workerState
	paused    bool
	stepStart float64

	rescheduleCounter atomic.Int32
	terminating       atomic.Bool
	terminatedFlag    atomic.Bool
	terminated        chan struct{}

	importingDelta       bool
	newImportedManifolds []registry.Entity
	topologyChanged      bool
	pendingSplit         bool
	calculateSplitstamp  float64
	sleepArmed           bool
	sleepTimestamp       float64
}

// NewIslandWorker creates a worker for the island known to the coordinator
// as remoteIsland. The worker allocates its own registry and a local
// counterpart for the island entity.
func NewIslandWorker(remoteIsland registry.Entity, cfg Config, queues QueuePair, d *Dispatcher, now clock) *IslandWorker {
	if now == nil {
		now = wallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}

	w := &IslandWorker{
		id:         uuid.New(),
		log:        cfg.Logger,
		cfg:        cfg,
		reg:        registry.New(),
		emap:       NewEntityMap(),
		builder:    NewDeltaBuilder(),
		queues:     queues,
		graph:      graph.New(),
		dispatcher: d,
		now:        now,
		state:      stateInit,
	}

	w.terminated = make(chan struct{})
	w.islandEntity = w.reg.Create()
	w.emap.Insert(remoteIsland, w.islandEntity)
	registry.Emplace(w.reg, w.islandEntity, IslandTimestamp{Value: now()})

	w.bphase = NewBroadphase(w.reg, w.makeContactManifold)
	w.nphase = NewNarrowphase(w.reg)
	w.solver = constraint.NewSolver(w.reg)
	w.solver.Iterations = cfg.SolverIterations

	w.registerHooks()
	w.connectSinks()

	return w
}

// ID returns the worker's identity, used for log and message correlation
func (w *IslandWorker) ID() uuid.UUID {
	return w.id
}

// Job returns the function posted to the dispatcher for every invocation
// of this worker
func (w *IslandWorker) Job() Job {
	return func() {
		if w.terminating.Load() {
			w.doTerminate()
			return
		}
		w.update()
	}
}

// registerHooks wires the registry lifecycle into the graph: bodies become
// nodes, manifolds and joint constraints become edges
func (w *IslandWorker) registerHooks() {
	registerGraphMaintenance(w.reg, w.graph, graphCallbacks{
		nodeDestroyed: func(e registry.Entity) {
			if !w.importingDelta {
				w.builder.DestroyedEntity(e)
			}
		},
		edgeDestroyed: func(e registry.Entity) {
			w.topologyChanged = true
			if !w.importingDelta {
				w.builder.DestroyedEntity(e)
			}
		},
		manifoldConstructed: func(e registry.Entity) {
			if w.importingDelta {
				w.newImportedManifolds = append(w.newImportedManifolds, e)
			}
		},
	})
}

func (w *IslandWorker) connectSinks() {
	SinkOf[*IslandDelta](w.queues.Input).Connect(w.onIslandDelta)
	SinkOf[MsgSetPaused](w.queues.Input).Connect(w.onSetPaused)
	SinkOf[MsgStepSimulation](w.queues.Input).Connect(w.onStepSimulation)
	SinkOf[MsgWakeUpIsland](w.queues.Input).Connect(w.onWakeUpIsland)
}

// makeContactManifold creates a manifold between two bodies and records it
// for the coordinator unless it arrived through a delta
func (w *IslandWorker) makeContactManifold(bodyA, bodyB registry.Entity) {
	e := MakeContactManifold(w.reg, bodyA, bodyB)
	if e == registry.Null {
		return
	}

	if !w.importingDelta {
		w.builder.CreatedEntity(e)
		BuilderCreated(w.builder, e, registry.Get[actor.Material](w.reg, e))
		BuilderCreated(w.builder, e, registry.Get[collide.Manifold](w.reg, e))
		BuilderCreated(w.builder, e, registry.Get[constraint.Constraint](w.reg, e))
		BuilderCreated(w.builder, e, registry.Get[constraint.Impulse](w.reg, e))
	}
}

// update is the worker state machine entry point, one run-to-completion
// invocation per job execution
func (w *IslandWorker) update() {
	switch w.state {
	case stateInit:
		w.init()
		w.maybeReschedule()

	case stateStep:
		w.processMessages()

		if w.shouldStep() {
			w.beginStep()
			w.runSolver()
			if w.runBroadphase() {
				if w.runNarrowphase() {
					w.finishStep()
					w.maybeReschedule()
				}
			}
		} else {
			w.maybeReschedule()
		}

	case stateBeginStep:
		w.beginStep()
		w.rescheduleNow()
	case stateSolve:
		w.runSolver()
		w.rescheduleNow()
	case stateBroadphase:
		if w.runBroadphase() {
			w.rescheduleNow()
		}
	case stateBroadphaseAsync:
		w.finishBroadphase()
		if w.runNarrowphase() {
			w.finishStep()
			w.maybeReschedule()
		}
	case stateNarrowphase:
		if w.runNarrowphase() {
			w.finishStep()
			w.maybeReschedule()
		}
	case stateNarrowphaseAsync:
		w.finishNarrowphase()
		w.finishStep()
		w.maybeReschedule()
	case stateFinishStep:
		w.finishStep()
		w.maybeReschedule()
	}
}

func (w *IslandWorker) init() {
	w.builder.InsertMapping(w.islandEntity, w.remoteIsland())

	w.processMessages()

	if externalInit != nil {
		externalInit(w.reg)
	}

	// Seed the broadphase tree and publish the initial tree view
	w.bphase.Update()
	view := w.bphase.View()
	registry.EmplaceOrReplace(w.reg, w.islandEntity, view)
	BuilderUpdated(w.builder, w.islandEntity, &view)

	w.sync()
	w.state = stateStep
	w.log.Debugf("island worker %s initialized with %d entities", w.id, w.reg.Len())
}

func (w *IslandWorker) remoteIsland() registry.Entity {
	remote, _ := w.emap.LocRem(w.islandEntity)
	return remote
}

func (w *IslandWorker) processMessages() {
	w.queues.Input.Update()
}

func (w *IslandWorker) onIslandDelta(d *IslandDelta) {
	w.importingDelta = true
	created := d.Apply(w.reg, w.emap)
	w.importingDelta = false

	// Answer with mappings for entities that just got a local
	// counterpart, so the coordinator can address them.
	for _, local := range created {
		if remote, ok := w.emap.LocRem(local); ok {
			w.builder.InsertMapping(local, remote)
		}
	}
}

func (w *IslandWorker) onSetPaused(msg MsgSetPaused) {
	w.paused = msg.Paused
	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	ts.Value = w.now()
}

func (w *IslandWorker) onStepSimulation(MsgStepSimulation) {
	if !registry.Has[actor.SleepingTag](w.reg, w.islandEntity) {
		w.state = stateBeginStep
	}
}

func (w *IslandWorker) onWakeUpIsland(MsgWakeUpIsland) {
	if !registry.Has[actor.SleepingTag](w.reg, w.islandEntity) {
		return
	}

	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	ts.Value = w.now()
	BuilderUpdated(w.builder, w.islandEntity, ts)

	registry.View(w.reg, func(e registry.Entity, tag *actor.SleepingTag) {
		BuilderDestroyed[actor.SleepingTag](w.builder, e)
	})
	registry.Clear[actor.SleepingTag](w.reg)

	w.send(w.builder.Finish())
	w.log.Debugf("island worker %s woke up", w.id)
}

func (w *IslandWorker) shouldStep() bool {
	time := w.now()

	if w.state == stateBeginStep {
		w.stepStart = time
		return true
	}

	if w.paused || registry.Has[actor.SleepingTag](w.reg, w.islandEntity) {
		return false
	}

	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	if time-ts.Value < w.cfg.FixedDt {
		return false
	}

	w.stepStart = time
	w.state = stateBeginStep
	return true
}

func (w *IslandWorker) beginStep() {
	if externalPreStep != nil {
		externalPreStep(w.reg)
	}

	// Find contact points for manifolds imported from the coordinator
	w.nphase.UpdateManifolds(w.newImportedManifolds)
	w.newImportedManifolds = w.newImportedManifolds[:0]

	w.state = stateSolve
}

func (w *IslandWorker) runSolver() {
	w.solver.Update(w.cfg.FixedDt)
	w.state = stateBroadphase
}

func (w *IslandWorker) runBroadphase() bool {
	if w.bphase.Parallelizable() {
		w.state = stateBroadphaseAsync
		w.bphase.UpdateAsync(w.dispatcher, w.Job())
		return false
	}

	w.bphase.Update()
	w.state = stateNarrowphase
	return true
}

func (w *IslandWorker) finishBroadphase() {
	w.bphase.FinishAsync()
	w.state = stateNarrowphase
}

func (w *IslandWorker) runNarrowphase() bool {
	if w.nphase.Parallelizable() {
		w.state = stateNarrowphaseAsync
		w.nphase.UpdateAsync(w.dispatcher, w.Job())
		return false
	}

	w.nphase.Update()
	w.state = stateFinishStep
	return true
}

func (w *IslandWorker) finishNarrowphase() {
	w.nphase.FinishAsync()
	w.state = stateFinishStep
}

func (w *IslandWorker) finishStep() {
	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	dt := w.stepStart - ts.Value

	// Cap how far the worker lags behind the present, dropping time
	// instead of replaying it after a substantial slowdown.
	numSteps := int(math.Floor(dt / w.cfg.FixedDt))
	if numSteps > maxLaggingSteps {
		remainder := dt - float64(numSteps)*w.cfg.FixedDt
		ts.Value = w.stepStart - (remainder + float64(maxLaggingSteps)*w.cfg.FixedDt)
	} else {
		ts.Value += w.cfg.FixedDt
	}
	BuilderUpdated(w.builder, w.islandEntity, ts)

	// Refresh the tree view snapshot
	view := w.bphase.View()
	registry.EmplaceOrReplace(w.reg, w.islandEntity, view)
	BuilderUpdated(w.builder, w.islandEntity, &view)

	w.maybeGoToSleep()

	if w.topologyChanged {
		time := w.now()
		if w.pendingSplit {
			if time-w.calculateSplitstamp > w.cfg.SplitDelay {
				w.pendingSplit = false
				if !w.graph.IsSingleConnectedComponent() {
					w.queues.Output.Push(MsgSplitIsland{})
					w.log.Debugf("island worker %s requests split", w.id)
				}
				w.topologyChanged = false
			}
		} else {
			w.pendingSplit = true
			w.calculateSplitstamp = time
		}
	}

	if externalPostStep != nil {
		externalPostStep(w.reg)
	}

	w.sync()
	w.state = stateStep
}

// sync records the step's observable effects and sends the delta to the
// coordinator
func (w *IslandWorker) sync() {
	reg := w.reg

	// AABBs are always refreshed: the coordinator feeds them to its
	// top-level broadphase.
	registry.View(reg, func(e registry.Entity, bb *actor.BoundingBox) {
		BuilderUpdated(w.builder, e, bb)
	})

	registry.View2(reg, func(e registry.Entity, kind *actor.BodyKind, transform *actor.Transform) {
		if !kind.Procedural() {
			return
		}
		BuilderUpdated(w.builder, e, transform)
		if vel := registry.TryGet[actor.Velocity](reg, e); vel != nil {
			BuilderUpdated(w.builder, e, vel)
		}
		if present := registry.TryGet[actor.Present](reg, e); present != nil {
			BuilderUpdated(w.builder, e, present)
		}
	})

	// Manifold state carries the warm-start impulses; the coordinator
	// needs it to rehydrate workers after splits and merges.
	registry.View2(reg, func(e registry.Entity, m *collide.Manifold, imp *constraint.Impulse) {
		BuilderUpdated(w.builder, e, m)
		BuilderUpdated(w.builder, e, imp)
	})

	if !w.builder.Empty() {
		w.send(w.builder.Finish())
	}
}

func (w *IslandWorker) send(d *IslandDelta) {
	if d.Empty() {
		return
	}
	w.queues.Output.Push(d)
}

func (w *IslandWorker) maybeGoToSleep() {
	if !w.couldGoToSleep() {
		w.sleepArmed = false
		return
	}

	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	if !w.sleepArmed {
		w.sleepArmed = true
		w.sleepTimestamp = ts.Value
		return
	}

	if ts.Value-w.sleepTimestamp > w.cfg.TimeToSleep {
		w.goToSleep()
		w.sleepArmed = false
	}
}

func (w *IslandWorker) couldGoToSleep() bool {
	// Any entity with sleep disabled keeps the whole island awake: the
	// movement of all entities in an island depends on one another.
	if registry.Count[actor.SleepingDisabledTag](w.reg) > 0 {
		return false
	}

	linear2 := w.cfg.LinearSleepThreshold * w.cfg.LinearSleepThreshold
	angular2 := w.cfg.AngularSleepThreshold * w.cfg.AngularSleepThreshold

	awake := false
	registry.View2(w.reg, func(e registry.Entity, kind *actor.BodyKind, vel *actor.Velocity) {
		if *kind != actor.BodyKindDynamic {
			return
		}
		if vel.Linear.LenSqr() > linear2 || vel.Angular.LenSqr() > angular2 {
			awake = true
		}
	})
	return !awake
}

func (w *IslandWorker) goToSleep() {
	registry.Emplace(w.reg, w.islandEntity, actor.SleepingTag{})
	BuilderCreated(w.builder, w.islandEntity, &actor.SleepingTag{})

	registry.View2(w.reg, func(e registry.Entity, kind *actor.BodyKind, vel *actor.Velocity) {
		if !kind.Procedural() {
			return
		}
		vel.Linear = mgl64.Vec3{}
		vel.Angular = mgl64.Vec3{}
		BuilderUpdated(w.builder, e, vel)

		registry.Emplace(w.reg, e, actor.SleepingTag{})
		BuilderCreated(w.builder, e, &actor.SleepingTag{})
	})

	w.log.Debugf("island worker %s going to sleep", w.id)
}

func (w *IslandWorker) rescheduleNow() {
	w.dispatcher.Async(w.Job())
}

func (w *IslandWorker) maybeReschedule() {
	sleeping := registry.Has[actor.SleepingTag](w.reg, w.islandEntity)
	paused := w.paused

	// The update is done; the job may be rescheduled from here on. A
	// count above one means external requests arrived during the update:
	// always reschedule immediately in that case.
	count := w.rescheduleCounter.Swap(0)
	if count <= 1 {
		if !paused && !sleeping {
			w.rescheduleLater()
		}
	} else {
		w.Reschedule()
	}
}

func (w *IslandWorker) rescheduleLater() {
	// Coalesce: only reschedule if no request is pending already
	if w.rescheduleCounter.Add(1) > 1 {
		return
	}

	ts := registry.Get[IslandTimestamp](w.reg, w.islandEntity)
	delay := ts.Value + w.cfg.FixedDt - w.now()

	if delay > 0 {
		w.dispatcher.AsyncAfter(delay, w.Job())
	} else {
		w.dispatcher.Async(w.Job())
	}
}

// Reschedule posts the worker job for immediate execution unless a request
// is already pending. Safe to call from any goroutine; the coordinator
// uses it to force message processing.
func (w *IslandWorker) Reschedule() {
	if w.rescheduleCounter.Add(1) > 1 {
		return
	}
	w.dispatcher.Async(w.Job())
}

// Terminate flags the worker for termination and schedules its final run
func (w *IslandWorker) Terminate() {
	w.terminating.Store(true)
	w.Reschedule()
}

func (w *IslandWorker) doTerminate() {
	if w.terminatedFlag.Swap(true) {
		return
	}
	w.reg = nil
	close(w.terminated)
}

// Join blocks until the worker has terminated
func (w *IslandWorker) Join() {
	<-w.terminated
}
