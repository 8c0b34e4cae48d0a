package bedrock

import "github.com/akmonengine/bedrock/registry"

// IslandContainer lists the island(s) an entity belongs to. Dynamic bodies
// belong to exactly one island; static and kinematic bodies may touch
// several.
type IslandContainer struct {
	Islands []registry.Entity
}

// Contains reports membership of the given island
func (c *IslandContainer) Contains(island registry.Entity) bool {
	for _, e := range c.Islands {
		if e == island {
			return true
		}
	}
	return false
}

// Add inserts an island if absent
func (c *IslandContainer) Add(island registry.Entity) {
	if !c.Contains(island) {
		c.Islands = append(c.Islands, island)
	}
}

// RemoveIsland drops an island from the container
func (c *IslandContainer) RemoveIsland(island registry.Entity) {
	for i, e := range c.Islands {
		if e == island {
			c.Islands = append(c.Islands[:i], c.Islands[i+1:]...)
			return
		}
	}
}

// MapEntities translates the contained island references
func (c *IslandContainer) MapEntities(translate func(registry.Entity) registry.Entity) {
	out := c.Islands[:0]
	for _, e := range c.Islands {
		if mapped := translate(e); mapped != registry.Null {
			out = append(out, mapped)
		}
	}
	c.Islands = out
}

// IslandTimestamp is the simulation time of an island's last step
type IslandTimestamp struct {
	Value float64
}

// graphNode ties a body entity to its node slot in the worker's graph
type graphNode struct {
	index uint32
}

// graphEdge ties a constraint or manifold entity to its edge slot
type graphEdge struct {
	index uint32
}

// treeNode ties a shaped entity to its broadphase tree leaf
type treeNode struct {
	id         int32
	procedural bool
}
