package bedrock

import (
	"reflect"

	"github.com/akmonengine/bedrock/registry"
)

// PoolSnapshot encodes the values of one component type for a set of
// entities: the networking exchange format. Entity references must be
// translated through the recipient's entity map.
type PoolSnapshot struct {
	TypeIndex int
	Records   []Record
}

// SnapshotPools captures every registered component of the given entities,
// one pool per component type present
func SnapshotPools(reg *registry.Registry, entities []registry.Entity) []PoolSnapshot {
	pools := make(map[int]*PoolSnapshot)

	for _, e := range entities {
		if !reg.Valid(e) {
			continue
		}
		reg.VisitComponents(e, func(t reflect.Type, v any) {
			idx, ok := componentIndexOf[t]
			if !ok {
				return
			}
			p, ok := pools[idx]
			if !ok {
				p = &PoolSnapshot{TypeIndex: idx}
				pools[idx] = p
			}
			p.Records = append(p.Records, Record{Entity: e, Value: componentTable[idx].copy(v)})
		})
	}

	out := make([]PoolSnapshot, 0, len(pools))
	for i := range componentTable {
		if p, ok := pools[i]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// ApplyPoolSnapshot imports a pool into a registry, translating entities
// through the recipient's map. Records of unmapped entities are skipped.
func ApplyPoolSnapshot(reg *registry.Registry, emap *EntityMap, pool PoolSnapshot) {
	ops := componentTable[pool.TypeIndex]

	translate := func(remote registry.Entity) registry.Entity {
		if local, ok := emap.RemLoc(remote); ok {
			return local
		}
		return registry.Null
	}

	for _, rec := range pool.Records {
		local, ok := emap.RemLoc(rec.Entity)
		if !ok || !reg.Valid(local) {
			continue
		}
		value := ops.copy(rec.Value)
		if mapper, ok := value.(entityMapper); ok {
			mapper.MapEntities(translate)
		}
		ops.set(reg, local, value)
	}
}
