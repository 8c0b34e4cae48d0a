package bedrock

import "github.com/akmonengine/bedrock/registry"

// EntityMap is a bijection between remote entity identifiers (the other
// side of a queue pair) and local identifiers. Each worker keeps its own
// map; the coordinator keeps one per worker.
type EntityMap struct {
	remloc map[registry.Entity]registry.Entity
	locrem map[registry.Entity]registry.Entity
}

// NewEntityMap creates an empty map
func NewEntityMap() *EntityMap {
	return &EntityMap{
		remloc: make(map[registry.Entity]registry.Entity),
		locrem: make(map[registry.Entity]registry.Entity),
	}
}

// Insert registers the pair (remote, local)
func (m *EntityMap) Insert(remote, local registry.Entity) {
	m.remloc[remote] = local
	m.locrem[local] = remote
}

// HasRem reports whether the remote entity is mapped
func (m *EntityMap) HasRem(remote registry.Entity) bool {
	_, ok := m.remloc[remote]
	return ok
}

// HasLoc reports whether the local entity is mapped
func (m *EntityMap) HasLoc(local registry.Entity) bool {
	_, ok := m.locrem[local]
	return ok
}

// RemLoc translates a remote entity to its local counterpart
func (m *EntityMap) RemLoc(remote registry.Entity) (registry.Entity, bool) {
	local, ok := m.remloc[remote]
	return local, ok
}

// LocRem translates a local entity to its remote counterpart
func (m *EntityMap) LocRem(local registry.Entity) (registry.Entity, bool) {
	remote, ok := m.locrem[local]
	return remote, ok
}

// EraseLoc removes the pair of a local entity
func (m *EntityMap) EraseLoc(local registry.Entity) {
	if remote, ok := m.locrem[local]; ok {
		delete(m.remloc, remote)
		delete(m.locrem, local)
	}
}

// EraseRem removes the pair of a remote entity
func (m *EntityMap) EraseRem(remote registry.Entity) {
	if local, ok := m.remloc[remote]; ok {
		delete(m.remloc, remote)
		delete(m.locrem, local)
	}
}

// EachLoc visits every (local, remote) pair
func (m *EntityMap) EachLoc(fn func(local, remote registry.Entity)) {
	for local, remote := range m.locrem {
		fn(local, remote)
	}
}
