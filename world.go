package bedrock

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/dtree"
	"github.com/akmonengine/bedrock/graph"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// World is the coordinator: it owns the master registry, assigns bodies
// and constraints to islands, routes deltas between the host and the
// island workers, and merges or splits islands as the constraint graph
// changes. All World methods must be called from the host goroutine.
type World struct {
	cfg Config
	log Logger

	reg        *registry.Registry
	graph      *graph.Graph
	dispatcher *Dispatcher
	now        clock

	handles map[registry.Entity]*islandHandle

	// islandTree is the top-level broadphase: one leaf per island,
	// bounding the island's bodies
	islandTree   *dtree.Tree
	islandLeaves map[registry.Entity]dtree.NodeID

	// npTree indexes static bodies for routing them into islands
	npTree   *dtree.Tree
	npLeaves map[registry.Entity]dtree.NodeID

	paused bool
	time   float64
}

type islandHandle struct {
	island  registry.Entity // master-side island entity
	worker  *IslandWorker
	queues  QueuePair
	emap    *EntityMap
	builder *DeltaBuilder

	splitRequested bool
}

// NewWorld creates a world with the given configuration
func NewWorld(cfg Config) *World {
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}
	InitGlobalDispatcher(cfg.Workers)

	w := &World{
		cfg:          cfg,
		log:          cfg.Logger,
		reg:          registry.New(),
		graph:        graph.New(),
		dispatcher:   GlobalDispatcher(),
		now:          wallClock,
		handles:      make(map[registry.Entity]*islandHandle),
		islandTree:   dtree.New(),
		islandLeaves: make(map[registry.Entity]dtree.NodeID),
		npTree:       dtree.New(),
		npLeaves:     make(map[registry.Entity]dtree.NodeID),
	}

	w.registerHooks()
	return w
}

// registerHooks mirrors the worker's graph maintenance on the master
// registry, so the coordinator can partition islands without asking the
// workers
func (w *World) registerHooks() {
	registerGraphMaintenance(w.reg, w.graph, graphCallbacks{})
}

// Registry exposes the master registry. The host may read it at any time
// between Step calls; mutations must go through the World methods.
func (w *World) Registry() *registry.Registry {
	return w.reg
}

// Islands returns the master entities of the current islands
func (w *World) Islands() []registry.Entity {
	out := make([]registry.Entity, 0, len(w.handles))
	for island := range w.handles {
		out = append(out, island)
	}
	return out
}

// CreateBody creates a rigid body in the master registry and assigns it to
// an island. Dynamic bodies spawn a fresh island; static and kinematic
// bodies are routed into every island whose bounds they touch.
func (w *World) CreateBody(def actor.BodyDef) registry.Entity {
	e := MakeRigidBody(w.reg, def)
	registry.Emplace(w.reg, e, IslandContainer{})

	if def.Kind == actor.BodyKindDynamic {
		w.newIsland([]registry.Entity{e})
	} else if bb := registry.TryGet[actor.BoundingBox](w.reg, e); bb != nil {
		id := w.npTree.Create(bb.AABB, e)
		w.npLeaves[e] = id
		w.routeBody(e, bb.AABB)
	}

	return e
}

// DestroyBody removes a body and its dependent constraints and manifolds
// everywhere
func (w *World) DestroyBody(e registry.Entity) {
	container := registry.Get[IslandContainer](w.reg, e)
	islands := append([]registry.Entity(nil), container.Islands...)

	if id, ok := w.npLeaves[e]; ok {
		w.npTree.Destroy(id)
		delete(w.npLeaves, e)
	}

	// Master-side destroy removes the graph node and destroys dependent
	// edge entities through the hooks.
	w.reg.Destroy(e)

	for _, island := range islands {
		if h, ok := w.handles[island]; ok {
			h.builder.DestroyedEntity(e)
			w.wakeIsland(h)
		}
	}
}

// CreateConstraint creates a constraint of the given kind between two
// bodies. The params' kind and body references are overwritten.
func (w *World) CreateConstraint(kind constraint.Kind, bodyA, bodyB registry.Entity, params constraint.Constraint) registry.Entity {
	params.Kind = kind
	params.Body = [2]registry.Entity{bodyA, bodyB}

	e := w.reg.Create()
	registry.Emplace(w.reg, e, params)
	registry.Emplace(w.reg, e, constraint.Impulse{})

	islands := w.islandsOfBodies(bodyA, bodyB)
	switch len(islands) {
	case 0:
		// Both endpoints static: nothing to simulate
	case 1:
		h := w.handles[islands[0]]
		w.addBodyToIsland(h, bodyA)
		w.addBodyToIsland(h, bodyB)
		h.builder.CreatedEntity(e)
		BuilderAllComponents(h.builder, w.reg, e)
		w.wakeIsland(h)
	default:
		merged := w.mergeIslands(islands)
		// The merge hydrates every member from the master registry,
		// including this new constraint.
		w.wakeIsland(merged)
	}

	return e
}

// DestroyConstraint removes a constraint everywhere
func (w *World) DestroyConstraint(e registry.Entity) {
	con := registry.Get[constraint.Constraint](w.reg, e)
	islands := w.islandsOfBodies(con.Body[0], con.Body[1])

	w.reg.Destroy(e)

	for _, island := range islands {
		if h, ok := w.handles[island]; ok {
			h.builder.DestroyedEntity(e)
			w.wakeIsland(h)
		}
	}
}

// islandsOfBodies returns the union of the islands containing the dynamic
// endpoints
func (w *World) islandsOfBodies(bodies ...registry.Entity) []registry.Entity {
	var out []registry.Entity
	seen := make(map[registry.Entity]bool)
	for _, b := range bodies {
		container := registry.TryGet[IslandContainer](w.reg, b)
		if container == nil {
			continue
		}
		kind := registry.Get[actor.BodyKind](w.reg, b)
		if *kind != actor.BodyKindDynamic {
			continue
		}
		for _, island := range container.Islands {
			if !seen[island] {
				seen[island] = true
				out = append(out, island)
			}
		}
	}
	return out
}

// SetPaused pauses or resumes the whole simulation
func (w *World) SetPaused(paused bool) {
	w.paused = paused
	for _, h := range w.handles {
		h.queues.Input.Push(MsgSetPaused{Paused: paused})
		h.worker.Reschedule()
	}
}

// StepOnce forces every awake island to run exactly one step, regardless
// of pause state
func (w *World) StepOnce() {
	for _, h := range w.handles {
		h.queues.Input.Push(MsgStepSimulation{})
		h.worker.Reschedule()
	}
}

// ApplyImpulse applies an impulse to a body and wakes its islands
func (w *World) ApplyImpulse(e registry.Entity, impulse, relLocation mgl64.Vec3) {
	ApplyImpulse(w.reg, e, impulse, relLocation)
	vel := registry.Get[actor.Velocity](w.reg, e)

	for _, island := range w.islandsOf(e) {
		if h, ok := w.handles[island]; ok {
			BuilderUpdated(h.builder, e, vel)
			w.wakeIsland(h)
		}
	}
}

// SetKinematicPosition moves a kinematic body, deriving its velocity, and
// routes the change to its islands
func (w *World) SetKinematicPosition(e registry.Entity, pos mgl64.Vec3, dt float64) {
	UpdateKinematicPosition(w.reg, e, pos, dt)
	w.routeKinematicState(e)
}

// SetKinematicOrientation rotates a kinematic body, deriving its angular
// velocity, and routes the change to its islands
func (w *World) SetKinematicOrientation(e registry.Entity, orn mgl64.Quat, dt float64) {
	UpdateKinematicOrientation(w.reg, e, orn, dt)
	w.routeKinematicState(e)
}

func (w *World) routeKinematicState(e registry.Entity) {
	transform := registry.Get[actor.Transform](w.reg, e)
	vel := registry.Get[actor.Velocity](w.reg, e)

	if shape := registry.TryGet[actor.ShapeRef](w.reg, e); shape != nil {
		bb := registry.Get[actor.BoundingBox](w.reg, e)
		bb.AABB = shape.Shape.AABB(*transform)
	}

	for _, island := range w.islandsOf(e) {
		if h, ok := w.handles[island]; ok {
			BuilderUpdated(h.builder, e, transform)
			BuilderUpdated(h.builder, e, vel)
			w.wakeIsland(h)
		}
	}
}

func (w *World) islandsOf(e registry.Entity) []registry.Entity {
	container := registry.TryGet[IslandContainer](w.reg, e)
	if container == nil {
		return nil
	}
	return container.Islands
}

// Wake wakes every island containing the entity
func (w *World) Wake(e registry.Entity) {
	for _, island := range w.islandsOf(e) {
		if h, ok := w.handles[island]; ok {
			w.wakeIsland(h)
		}
	}
}

func (w *World) wakeIsland(h *islandHandle) {
	if registry.Has[actor.SleepingTag](w.reg, h.island) {
		h.queues.Input.Push(MsgWakeUpIsland{})
		// The master copy of the tag clears immediately; the worker
		// confirms through its wake delta.
		registry.Remove[actor.SleepingTag](w.reg, h.island)
	}
	h.worker.Reschedule()
}

// Step advances the wall clock: it drains worker deltas into the master
// registry, routes static bodies and merges islands whose bounds began to
// overlap, processes split requests, and flushes pending deltas out to the
// workers.
func (w *World) Step(realDt float64) {
	w.time += realDt

	for _, h := range w.handles {
		h.queues.Output.Update()
	}

	w.processSplitRequests()
	w.routeAndMerge()

	// Nudge awake workers whose integrated simulation time lags behind;
	// they self-schedule, but a nudge recovers ones whose delayed jobs
	// were starved.
	if !w.paused {
		now := w.now()
		for _, h := range w.handles {
			if registry.Has[actor.SleepingTag](w.reg, h.island) {
				continue
			}
			ts := registry.TryGet[IslandTimestamp](w.reg, h.island)
			if ts != nil && now-ts.Value > 2*w.cfg.FixedDt {
				h.worker.Reschedule()
			}
		}
	}

	for _, h := range w.handles {
		if !h.builder.Empty() {
			h.queues.Input.Push(h.builder.Finish())
			h.worker.Reschedule()
		}
	}

	ClearKinematicVelocities(w.reg)
}

// Terminate shuts down every island worker and blocks until they are gone
func (w *World) Terminate() {
	for _, h := range w.handles {
		h.worker.Terminate()
	}
	for _, h := range w.handles {
		h.worker.Join()
	}
	w.handles = make(map[registry.Entity]*islandHandle)
}

// newIsland spawns a worker for a fresh island containing the given
// members (bodies plus any edge entities between them) and hydrates it
// from the master registry
func (w *World) newIsland(members []registry.Entity) *islandHandle {
	island := w.reg.Create()
	registry.Emplace(w.reg, island, IslandTimestamp{Value: w.now()})

	queues := NewQueuePair()
	worker := NewIslandWorker(island, w.cfg, queues, w.dispatcher, w.now)

	h := &islandHandle{
		island:  island,
		worker:  worker,
		queues:  queues,
		emap:    NewEntityMap(),
		builder: NewDeltaBuilder(),
	}
	w.handles[island] = h

	SinkOf[*IslandDelta](queues.Output).Connect(func(d *IslandDelta) {
		w.onWorkerDelta(h, d)
	})
	SinkOf[MsgSplitIsland](queues.Output).Connect(func(MsgSplitIsland) {
		h.splitRequested = true
	})

	// Hydrate: the island entity's own state plus every member with all
	// of its components.
	BuilderUpdated(h.builder, island, registry.Get[IslandTimestamp](w.reg, island))
	for _, e := range members {
		if !w.reg.Valid(e) {
			continue
		}
		if container := registry.TryGet[IslandContainer](w.reg, e); container != nil {
			container.Add(island)
		}
		h.builder.CreatedEntity(e)
		BuilderAllComponents(h.builder, w.reg, e)
	}

	h.queues.Input.Push(h.builder.Finish())
	w.dispatcher.Async(worker.Job())

	w.log.Debugf("spawned island %d with %d members on worker %s", island, len(members), worker.ID())
	return h
}

// addBodyToIsland hydrates a body into an existing island if it is not a
// member yet
func (w *World) addBodyToIsland(h *islandHandle, e registry.Entity) {
	container := registry.TryGet[IslandContainer](w.reg, e)
	if container == nil || container.Contains(h.island) {
		return
	}
	container.Add(h.island)

	h.builder.CreatedEntity(e)
	BuilderAllComponents(h.builder, w.reg, e)
}

// onWorkerDelta applies a worker's delta to the master registry and
// answers with entity mappings for anything the worker created
func (w *World) onWorkerDelta(h *islandHandle, d *IslandDelta) {
	created := d.Apply(w.reg, h.emap)

	for _, local := range created {
		// Worker-created entities (manifolds) get announced back so the
		// worker can be addressed about them later.
		if remote, ok := h.emap.LocRem(local); ok {
			h.builder.InsertMapping(local, remote)
		}
	}
}

// islandAABB returns the bounds of an island from its last tree view
func (w *World) islandAABB(h *islandHandle) (actor.AABB, bool) {
	view := registry.TryGet[dtree.View](w.reg, h.island)
	if view == nil || len(view.Leaves) == 0 {
		return actor.AABB{}, false
	}
	return view.RootAABB, true
}

// routeBody adds a non-procedural body to every island whose bounds it
// touches
func (w *World) routeBody(e registry.Entity, aabb actor.AABB) {
	for _, h := range w.handles {
		islandBox, ok := w.islandAABB(h)
		if !ok {
			continue
		}
		if aabb.Overlaps(islandBox) {
			w.addBodyToIsland(h, e)
			w.wakeIsland(h)
		}
	}
}

// routeAndMerge refreshes the top-level island tree, pulls static bodies
// into islands they began to touch, and merges islands whose bodies'
// AABBs started overlapping
func (w *World) routeAndMerge() {
	for island, h := range w.handles {
		aabb, ok := w.islandAABB(h)
		if !ok {
			continue
		}
		if id, exists := w.islandLeaves[island]; exists {
			w.islandTree.Move(id, aabb)
		} else {
			w.islandLeaves[island] = w.islandTree.Create(aabb, island)
		}
	}

	var mergePairs [][2]registry.Entity

	for island, h := range w.handles {
		aabb, ok := w.islandAABB(h)
		if !ok {
			continue
		}
		query := aabb

		// Static bodies this island began to touch
		w.npTree.Query(query, func(id dtree.NodeID) bool {
			e := w.npTree.Entity(id)
			container := registry.TryGet[IslandContainer](w.reg, e)
			if container != nil && !container.Contains(island) {
				w.addBodyToIsland(h, e)
			}
			return true
		})

		// Other islands whose bodies began to overlap this island's.
		// Merging two sleeping islands is pointless: they only meet a
		// newly-awake body through an awake island.
		w.islandTree.Query(query, func(id dtree.NodeID) bool {
			other := w.islandTree.Entity(id)
			if other == island || !w.reg.Valid(other) {
				return true
			}
			oh, ok := w.handles[other]
			if !ok {
				return true
			}

			if registry.Has[actor.SleepingTag](w.reg, island) &&
				registry.Has[actor.SleepingTag](w.reg, other) {
				return true
			}

			if island < other && w.islandsTouch(h, oh) {
				mergePairs = append(mergePairs, [2]registry.Entity{island, other})
			}
			return true
		})
	}

	for _, pair := range mergePairs {
		// Either island may already be gone from an earlier merge
		if _, ok := w.handles[pair[0]]; !ok {
			continue
		}
		if _, ok := w.handles[pair[1]]; !ok {
			continue
		}
		w.mergeIslands(pair[:])
	}
}

// islandsTouch checks leaf-level AABB overlap between two islands' tree
// views
func (w *World) islandsTouch(a, b *islandHandle) bool {
	viewA := registry.TryGet[dtree.View](w.reg, a.island)
	viewB := registry.TryGet[dtree.View](w.reg, b.island)
	if viewA == nil || viewB == nil {
		return false
	}

	for _, la := range viewA.Leaves {
		// Leaf entities are worker-local; compare their master counterparts
		ea, _ := a.emap.RemLoc(la.Entity)
		for _, lb := range viewB.Leaves {
			eb, _ := b.emap.RemLoc(lb.Entity)
			if ea != registry.Null && ea == eb {
				continue
			}
			if la.AABB.Overlaps(lb.AABB) {
				return true
			}
		}
	}
	return false
}

// mergeIslands terminates the workers of the given islands and spawns one
// worker hydrated from the union of their members
func (w *World) mergeIslands(islands []registry.Entity) *islandHandle {
	members := w.collectMembers(islands)
	w.retireIslands(islands)
	h := w.newIsland(members)
	w.log.Infof("merged %d islands into island %d", len(islands), h.island)
	return h
}

// collectMembers gathers the bodies contained in any of the islands plus
// every edge entity whose endpoints are within the set
func (w *World) collectMembers(islands []registry.Entity) []registry.Entity {
	inSet := make(map[registry.Entity]bool)
	for _, island := range islands {
		inSet[island] = true
	}

	bodySet := make(map[registry.Entity]bool)
	var members []registry.Entity

	registry.View(w.reg, func(e registry.Entity, container *IslandContainer) {
		for _, island := range container.Islands {
			if inSet[island] {
				if !bodySet[e] {
					bodySet[e] = true
					members = append(members, e)
				}
				return
			}
		}
	})

	registry.View(w.reg, func(e registry.Entity, edge *graphEdge) {
		a, b := w.graph.EdgeNodes(graph.EdgeIndex(edge.index))
		if bodySet[w.graph.NodeEntity(a)] && bodySet[w.graph.NodeEntity(b)] {
			members = append(members, e)
		}
	})

	return members
}

// retireIslands terminates workers and removes every trace of the islands
func (w *World) retireIslands(islands []registry.Entity) {
	for _, island := range islands {
		h, ok := w.handles[island]
		if !ok {
			continue
		}

		h.worker.Terminate()
		h.worker.Join()
		// Capture the worker's final delta
		h.queues.Output.Update()

		if id, ok := w.islandLeaves[island]; ok {
			w.islandTree.Destroy(id)
			delete(w.islandLeaves, island)
		}
		delete(w.handles, island)
		w.reg.Destroy(island)
	}

	registry.View(w.reg, func(e registry.Entity, container *IslandContainer) {
		for _, island := range islands {
			container.RemoveIsland(island)
		}
	})
}

// processSplitRequests re-partitions islands whose workers reported a
// disconnected graph
func (w *World) processSplitRequests() {
	var requested []registry.Entity
	for island, h := range w.handles {
		if h.splitRequested {
			h.splitRequested = false
			requested = append(requested, island)
		}
	}
	for _, island := range requested {
		w.splitIsland(island)
	}
}

// splitIsland enumerates the connected components of the island's members
// and spawns one worker per component
func (w *World) splitIsland(island registry.Entity) {
	if _, ok := w.handles[island]; !ok {
		return
	}

	memberBodies := make(map[registry.Entity]bool)
	registry.View(w.reg, func(e registry.Entity, container *IslandContainer) {
		if container.Contains(island) {
			memberBodies[e] = true
		}
	})

	var components []graph.Component
	w.graph.ConnectedComponents(func(c graph.Component) {
		for _, n := range c.Nodes {
			if memberBodies[w.graph.NodeEntity(n)] {
				components = append(components, c)
				return
			}
		}
	})

	if len(components) <= 1 {
		return
	}

	w.retireIslands([]registry.Entity{island})

	for _, c := range components {
		var members []registry.Entity
		for _, n := range c.Nodes {
			members = append(members, w.graph.NodeEntity(n))
		}
		for _, edge := range c.Edges {
			members = append(members, w.graph.EdgeEntity(edge))
		}
		w.newIsland(members)
	}

	w.log.Infof("split island %d into %d islands", island, len(components))
}
