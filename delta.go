package bedrock

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/constraint"
	"github.com/akmonengine/bedrock/dtree"
	"github.com/akmonengine/bedrock/registry"
	"github.com/jinzhu/copier"
)

// componentOps is the per-type vtable driving generic delta handling.
// Component type indices are fixed: they define the wire format.
type componentOps struct {
	typ    reflect.Type
	copy   func(src any) any
	set    func(*registry.Registry, registry.Entity, any)
	remove func(*registry.Registry, registry.Entity)
}

// entityMapper is implemented by components that embed entity references,
// which must be translated when crossing a registry boundary
type entityMapper interface {
	MapEntities(func(registry.Entity) registry.Entity)
}

var (
	componentTable   []componentOps
	componentIndexOf = make(map[reflect.Type]int)
)

// deepCopy clones a component value through copier so no slice or map
// storage is shared across goroutines
func deepCopy[T any](src any) any {
	dst := new(T)
	if err := copier.CopyWithOption(dst, src.(*T), copier.Option{DeepCopy: true}); err != nil {
		panic(fmt.Sprintf("delta: copy of %T failed: %v", *dst, err))
	}
	return dst
}

// shallowCopy clones by value; used for components holding immutable
// shared state such as shapes
func shallowCopy[T any](src any) any {
	dst := new(T)
	*dst = *src.(*T)
	return dst
}

func registerComponent[T any](copyFn func(any) any) {
	var zero T
	t := reflect.TypeOf(zero)
	if copyFn == nil {
		copyFn = deepCopy[T]
	}
	componentIndexOf[t] = len(componentTable)
	componentTable = append(componentTable, componentOps{
		typ:  t,
		copy: copyFn,
		set: func(r *registry.Registry, e registry.Entity, v any) {
			registry.EmplaceOrReplace(r, e, *v.(*T))
		},
		remove: func(r *registry.Registry, e registry.Entity) {
			registry.Remove[T](r, e)
		},
	})
}

// The registration order fixes the component type indices of the wire
// format; changing it breaks compatibility between peers.
func init() {
	registerComponent[actor.Transform](shallowCopy[actor.Transform])
	registerComponent[actor.Velocity](shallowCopy[actor.Velocity])
	registerComponent[actor.DeltaVelocity](shallowCopy[actor.DeltaVelocity])
	registerComponent[actor.Acceleration](shallowCopy[actor.Acceleration])
	registerComponent[actor.MassProps](shallowCopy[actor.MassProps])
	registerComponent[actor.WorldInertia](shallowCopy[actor.WorldInertia])
	registerComponent[actor.BodyKind](shallowCopy[actor.BodyKind])
	registerComponent[actor.ShapeRef](shallowCopy[actor.ShapeRef])
	registerComponent[actor.Material](shallowCopy[actor.Material])
	registerComponent[actor.CollisionFilter](shallowCopy[actor.CollisionFilter])
	registerComponent[actor.BoundingBox](shallowCopy[actor.BoundingBox])
	registerComponent[actor.Present](shallowCopy[actor.Present])
	registerComponent[actor.SleepingTag](shallowCopy[actor.SleepingTag])
	registerComponent[actor.SleepingDisabledTag](shallowCopy[actor.SleepingDisabledTag])
	registerComponent[constraint.Constraint](shallowCopy[constraint.Constraint])
	registerComponent[constraint.Impulse](shallowCopy[constraint.Impulse])
	registerComponent[collide.Manifold](shallowCopy[collide.Manifold])
	registerComponent[IslandContainer](nil)
	registerComponent[IslandTimestamp](shallowCopy[IslandTimestamp])
	registerComponent[dtree.View](nil)
}

// EntityPair maps an entity across a queue: Local is the sender's
// identifier, Remote the receiver's
type EntityPair struct {
	Local  registry.Entity
	Remote registry.Entity
}

// Record is one component change: the entity in sender-local terms plus
// the component value for created and updated records
type Record struct {
	Entity registry.Entity
	Value  any
}

// Pool groups the records of one component type
type Pool struct {
	TypeIndex int
	Created   []Record
	Updated   []Record
	Destroyed []registry.Entity
}

// IslandDelta is a batch of registry changes addressed to the other side
// of a queue pair. It is append-only during a step and dispatched
// atomically.
type IslandDelta struct {
	Mappings  []EntityPair
	Created   []registry.Entity
	Destroyed []registry.Entity
	Pools     []Pool
}

// Empty reports whether the delta carries no changes
func (d *IslandDelta) Empty() bool {
	return len(d.Mappings) == 0 && len(d.Created) == 0 && len(d.Destroyed) == 0 && len(d.Pools) == 0
}

func (d *IslandDelta) pool(typeIndex int) *Pool {
	for i := range d.Pools {
		if d.Pools[i].TypeIndex == typeIndex {
			return &d.Pools[i]
		}
	}
	d.Pools = append(d.Pools, Pool{TypeIndex: typeIndex})
	return &d.Pools[len(d.Pools)-1]
}

// DeltaBuilder accumulates changes during a step
type DeltaBuilder struct {
	delta *IslandDelta
}

// NewDeltaBuilder creates a builder with an empty delta
func NewDeltaBuilder() *DeltaBuilder {
	return &DeltaBuilder{delta: &IslandDelta{}}
}

// InsertMapping records a (senderLocal, receiverLocal) pair. Remote may be
// Null when the receiver has not assigned a counterpart yet.
func (b *DeltaBuilder) InsertMapping(local, remote registry.Entity) {
	b.delta.Mappings = append(b.delta.Mappings, EntityPair{Local: local, Remote: remote})
}

// CreatedEntity records an entity creation
func (b *DeltaBuilder) CreatedEntity(e registry.Entity) {
	b.delta.Created = append(b.delta.Created, e)
}

// DestroyedEntity records an entity destruction
func (b *DeltaBuilder) DestroyedEntity(e registry.Entity) {
	b.delta.Destroyed = append(b.delta.Destroyed, e)
}

// Finish returns the accumulated delta and resets the builder
func (b *DeltaBuilder) Finish() *IslandDelta {
	d := b.delta
	b.delta = &IslandDelta{}
	return d
}

// Empty reports whether nothing has been recorded since the last Finish
func (b *DeltaBuilder) Empty() bool {
	return b.delta.Empty()
}

func componentIndex(t reflect.Type) int {
	idx, ok := componentIndexOf[t]
	if !ok {
		panic(fmt.Sprintf("delta: unregistered component type %v", t))
	}
	return idx
}

// BuilderCreated records a created component with a snapshot of its value
func BuilderCreated[T any](b *DeltaBuilder, e registry.Entity, v *T) {
	var zero T
	idx := componentIndex(reflect.TypeOf(zero))
	p := b.delta.pool(idx)
	p.Created = append(p.Created, Record{Entity: e, Value: componentTable[idx].copy(v)})
}

// BuilderUpdated records an updated component with a snapshot of its value
func BuilderUpdated[T any](b *DeltaBuilder, e registry.Entity, v *T) {
	var zero T
	idx := componentIndex(reflect.TypeOf(zero))
	p := b.delta.pool(idx)
	p.Updated = append(p.Updated, Record{Entity: e, Value: componentTable[idx].copy(v)})
}

// BuilderDestroyed records a destroyed component
func BuilderDestroyed[T any](b *DeltaBuilder, e registry.Entity) {
	var zero T
	idx := componentIndex(reflect.TypeOf(zero))
	p := b.delta.pool(idx)
	p.Destroyed = append(p.Destroyed, e)
}

// BuilderAllComponents snapshots every registered component of an entity
// as created records. Used when hydrating a fresh worker.
func BuilderAllComponents(b *DeltaBuilder, reg *registry.Registry, e registry.Entity) {
	reg.VisitComponents(e, func(t reflect.Type, v any) {
		idx, ok := componentIndexOf[t]
		if !ok {
			// Side-table components never cross the wire
			return
		}
		p := b.delta.pool(idx)
		p.Created = append(p.Created, Record{Entity: e, Value: componentTable[idx].copy(v)})
	})
}

// Apply imports the delta into a registry, translating entities through
// the receiver's map. Unmapped created entities get a local counterpart;
// the returned slice lists those new locals so the caller can answer with
// mapping records. Records referencing entities missing from the map are
// skipped silently: the sender re-sends on reconciliation.
func (d *IslandDelta) Apply(reg *registry.Registry, emap *EntityMap) []registry.Entity {
	var created []registry.Entity

	for _, pair := range d.Mappings {
		// The sender's local id is our remote
		if pair.Remote != registry.Null {
			emap.Insert(pair.Local, pair.Remote)
		}
	}

	for _, remote := range d.Created {
		if emap.HasRem(remote) {
			continue
		}
		local := reg.Create()
		emap.Insert(remote, local)
		created = append(created, local)
	}

	translate := func(remote registry.Entity) registry.Entity {
		if local, ok := emap.RemLoc(remote); ok {
			return local
		}
		return registry.Null
	}

	// Pools apply in type-index order: graph hooks rely on body
	// components landing before constraints and manifolds.
	pools := append([]Pool(nil), d.Pools...)
	sort.Slice(pools, func(i, j int) bool { return pools[i].TypeIndex < pools[j].TypeIndex })

	for _, p := range pools {
		ops := componentTable[p.TypeIndex]

		applyRecord := func(rec Record) {
			local, ok := emap.RemLoc(rec.Entity)
			if !ok || !reg.Valid(local) {
				return
			}
			value := ops.copy(rec.Value)
			if mapper, ok := value.(entityMapper); ok {
				mapper.MapEntities(translate)
			}
			ops.set(reg, local, value)
		}

		for _, rec := range p.Created {
			applyRecord(rec)
		}
		for _, rec := range p.Updated {
			applyRecord(rec)
		}
		for _, remote := range p.Destroyed {
			if local, ok := emap.RemLoc(remote); ok && reg.Valid(local) {
				ops.remove(reg, local)
			}
		}
	}

	for _, remote := range d.Destroyed {
		if local, ok := emap.RemLoc(remote); ok {
			if reg.Valid(local) {
				reg.Destroy(local)
			}
			emap.EraseRem(remote)
		}
	}

	return created
}
