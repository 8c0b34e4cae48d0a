package dtree

import (
	"fmt"
	"testing"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x, y, z, size float64) actor.AABB {
	h := size / 2
	return actor.AABB{
		Min: mgl64.Vec3{x - h, y - h, z - h},
		Max: mgl64.Vec3{x + h, y + h, z + h},
	}
}

func queryEntities(t *Tree, aabb actor.AABB) map[registry.Entity]bool {
	out := make(map[registry.Entity]bool)
	t.Query(aabb, func(id NodeID) bool {
		out[t.Entity(id)] = true
		return true
	})
	return out
}

func TestTree_CreateAndQuery(t *testing.T) {
	tree := New()

	a := tree.Create(box(0, 0, 0, 1), registry.Entity(1))
	tree.Create(box(10, 0, 0, 1), registry.Entity(2))

	require.Equal(t, 2, tree.Count())

	found := queryEntities(tree, box(0, 0, 0, 2))
	assert.True(t, found[registry.Entity(1)])
	assert.False(t, found[registry.Entity(2)])

	assert.Equal(t, registry.Entity(1), tree.Entity(a))
}

func TestTree_QueryAllAndNone(t *testing.T) {
	tree := New()
	for i := 0; i < 20; i++ {
		tree.Create(box(float64(i)*3, 0, 0, 1), registry.Entity(i+1))
	}

	all := queryEntities(tree, box(30, 0, 0, 100))
	assert.Len(t, all, 20)

	none := queryEntities(tree, box(0, 100, 0, 1))
	assert.Empty(t, none)
}

func TestTree_Destroy(t *testing.T) {
	tree := New()
	a := tree.Create(box(0, 0, 0, 1), registry.Entity(1))
	b := tree.Create(box(5, 0, 0, 1), registry.Entity(2))

	tree.Destroy(a)
	require.Equal(t, 1, tree.Count())

	found := queryEntities(tree, box(0, 0, 0, 20))
	assert.False(t, found[registry.Entity(1)])
	assert.True(t, found[registry.Entity(2)])

	_ = b
}

func TestTree_DestroyUnknownPanics(t *testing.T) {
	tree := New()
	assert.Panics(t, func() { tree.Destroy(NodeID(7)) })

	a := tree.Create(box(0, 0, 0, 1), registry.Entity(1))
	tree.Destroy(a)
	// Double destroy is a hard failure too
	assert.Panics(t, func() { tree.Destroy(a) })
}

func TestTree_MoveWithinFatAABBKeepsLeaf(t *testing.T) {
	tree := New()
	a := tree.Create(box(0, 0, 0, 1), registry.Entity(1))

	// A small motion stays inside the fattened box
	moved := tree.Move(a, box(0.02, 0, 0, 1))
	assert.False(t, moved)

	// A large motion forces a re-insert
	moved = tree.Move(a, box(50, 0, 0, 1))
	assert.True(t, moved)

	found := queryEntities(tree, box(50, 0, 0, 2))
	assert.True(t, found[registry.Entity(1)])
}

func TestTree_MoveNonLeafPanics(t *testing.T) {
	tree := New()
	tree.Create(box(0, 0, 0, 1), registry.Entity(1))
	assert.Panics(t, func() { tree.Move(NodeID(99), box(0, 0, 0, 1)) })
}

func TestTree_BalanceKeepsHeightLogarithmic(t *testing.T) {
	tree := New()

	// Sorted insertion order is the worst case for an unbalanced tree
	const n = 256
	for i := 0; i < n; i++ {
		tree.Create(box(float64(i)*2, 0, 0, 1), registry.Entity(i+1))
	}

	require.Equal(t, n, tree.Count())
	// A balanced tree of 256 leaves has height 8; allow generous slack
	// for the rotation heuristic.
	assert.Less(t, tree.Height(), int32(24), fmt.Sprintf("height %d too large", tree.Height()))

	// Every leaf must remain reachable
	all := queryEntities(tree, box(float64(n), 0, 0, float64(4*n)))
	assert.Len(t, all, n)
}

func TestTree_View(t *testing.T) {
	tree := New()
	tree.Create(box(0, 0, 0, 1), registry.Entity(1))
	tree.Create(box(4, 0, 0, 1), registry.Entity(2))

	view := tree.View()
	require.Len(t, view.Leaves, 2)
	assert.True(t, view.RootAABB.Overlaps(box(0, 0, 0, 1)))
	assert.True(t, view.RootAABB.Overlaps(box(4, 0, 0, 1)))
}

func TestTree_FattenedAABBContainsOriginal(t *testing.T) {
	tree := New()
	original := box(0, 0, 0, 1)
	a := tree.Create(original, registry.Entity(1))

	assert.True(t, tree.AABB(a).Contains(original))
}
