// Package dtree implements a dynamic AABB tree used as the broadphase
// spatial index. Leaves carry a fattened AABB and an entity payload;
// internal nodes bound their children. Insertion descends along the
// cheapest surface-area path and the tree is rebalanced with rotations
// along the ancestor chain.
package dtree

import (
	"fmt"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/registry"
)

// NodeID identifies a node inside a tree
type NodeID int32

// NullNode is the invalid node id
const NullNode NodeID = -1

// AABBMargin is the constant fattening applied to leaf AABBs so small
// motions do not force a re-insertion
const AABBMargin = 0.1

type node struct {
	aabb   actor.AABB
	entity registry.Entity

	parent NodeID
	child1 NodeID
	child2 NodeID

	// height is 0 for leaves, -1 for free nodes
	height int32
}

func (n *node) isLeaf() bool {
	return n.child1 == NullNode
}

// Tree is a dynamic AABB tree
type Tree struct {
	root     NodeID
	nodes    []node
	freeList NodeID
}

// New creates an empty tree
func New() *Tree {
	return &Tree{root: NullNode, freeList: NullNode}
}

func (t *Tree) allocate() NodeID {
	if t.freeList == NullNode {
		t.nodes = append(t.nodes, node{})
		id := NodeID(len(t.nodes) - 1)
		n := &t.nodes[id]
		n.parent = NullNode
		n.child1 = NullNode
		n.child2 = NullNode
		n.height = 0
		n.entity = registry.Null
		return id
	}

	id := t.freeList
	n := &t.nodes[id]
	t.freeList = n.parent
	n.parent = NullNode
	n.child1 = NullNode
	n.child2 = NullNode
	n.height = 0
	n.entity = registry.Null
	return id
}

func (t *Tree) free(id NodeID) {
	n := &t.nodes[id]
	n.parent = t.freeList
	n.height = -1
	t.freeList = id
}

// Create inserts a leaf for the given AABB and entity payload and
// returns its node id. The stored AABB is fattened by AABBMargin.
func (t *Tree) Create(aabb actor.AABB, entity registry.Entity) NodeID {
	id := t.allocate()
	n := &t.nodes[id]
	n.aabb = aabb.Inset(-AABBMargin)
	n.entity = entity
	n.height = 0

	t.insertLeaf(id)
	return id
}

// Destroy removes a leaf from the tree. Destroying an unknown or
// internal node is a hard failure.
func (t *Tree) Destroy(id NodeID) {
	if id < 0 || int(id) >= len(t.nodes) || t.nodes[id].height < 0 {
		panic(fmt.Sprintf("dtree: destroy of unknown node %d", id))
	}
	if !t.nodes[id].isLeaf() {
		panic(fmt.Sprintf("dtree: destroy of internal node %d", id))
	}

	t.removeLeaf(id)
	t.free(id)
}

// Move updates a leaf's AABB. If the new AABB is still contained in the
// node's fattened AABB the tree is left untouched; otherwise the leaf is
// re-inserted. Returns true when a re-insertion happened.
func (t *Tree) Move(id NodeID, aabb actor.AABB) bool {
	if id < 0 || int(id) >= len(t.nodes) || !t.nodes[id].isLeaf() {
		panic(fmt.Sprintf("dtree: move of non-leaf node %d", id))
	}

	if t.nodes[id].aabb.Contains(aabb) {
		return false
	}

	t.removeLeaf(id)
	t.nodes[id].aabb = aabb.Inset(-AABBMargin)
	t.insertLeaf(id)
	return true
}

// Entity returns the payload of a leaf node
func (t *Tree) Entity(id NodeID) registry.Entity {
	return t.nodes[id].entity
}

// AABB returns the fattened AABB stored for a node
func (t *Tree) AABB(id NodeID) actor.AABB {
	return t.nodes[id].aabb
}

// Query visits every leaf whose AABB intersects the given box. The visitor
// returns false to stop the traversal early.
func (t *Tree) Query(aabb actor.AABB, visitor func(NodeID) bool) {
	if t.root == NullNode {
		return
	}

	stack := make([]NodeID, 0, 64)
	stack = append(stack, t.root)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[id]
		if !n.aabb.Overlaps(aabb) {
			continue
		}

		if n.isLeaf() {
			if !visitor(id) {
				return
			}
		} else {
			stack = append(stack, n.child1, n.child2)
		}
	}
}

func (t *Tree) insertLeaf(leaf NodeID) {
	if t.root == NullNode {
		t.root = leaf
		t.nodes[leaf].parent = NullNode
		return
	}

	// Descend along the cheapest surface-area path
	leafAABB := t.nodes[leaf].aabb
	index := t.root
	for !t.nodes[index].isLeaf() {
		child1 := t.nodes[index].child1
		child2 := t.nodes[index].child2

		area := t.nodes[index].aabb.SurfaceArea()
		combinedArea := t.nodes[index].aabb.Union(leafAABB).SurfaceArea()

		// Cost of creating a new parent for this node and the leaf
		cost := 2.0 * combinedArea
		// Minimum cost of pushing the leaf further down the tree
		inheritance := 2.0 * (combinedArea - area)

		descendCost := func(child NodeID) float64 {
			childAABB := t.nodes[child].aabb
			if t.nodes[child].isLeaf() {
				return leafAABB.Union(childAABB).SurfaceArea() + inheritance
			}
			oldArea := childAABB.SurfaceArea()
			newArea := leafAABB.Union(childAABB).SurfaceArea()
			return (newArea - oldArea) + inheritance
		}

		cost1 := descendCost(child1)
		cost2 := descendCost(child2)

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			index = child1
		} else {
			index = child2
		}
	}

	sibling := index

	// Create a new parent
	oldParent := t.nodes[sibling].parent
	newParent := t.allocate()
	t.nodes[newParent].parent = oldParent
	t.nodes[newParent].aabb = leafAABB.Union(t.nodes[sibling].aabb)
	t.nodes[newParent].height = t.nodes[sibling].height + 1

	if oldParent != NullNode {
		if t.nodes[oldParent].child1 == sibling {
			t.nodes[oldParent].child1 = newParent
		} else {
			t.nodes[oldParent].child2 = newParent
		}
	} else {
		t.root = newParent
	}

	t.nodes[newParent].child1 = sibling
	t.nodes[newParent].child2 = leaf
	t.nodes[sibling].parent = newParent
	t.nodes[leaf].parent = newParent

	t.refitAncestors(t.nodes[leaf].parent)
}

func (t *Tree) removeLeaf(leaf NodeID) {
	if leaf == t.root {
		t.root = NullNode
		return
	}

	parent := t.nodes[leaf].parent
	grandParent := t.nodes[parent].parent

	var sibling NodeID
	if t.nodes[parent].child1 == leaf {
		sibling = t.nodes[parent].child2
	} else {
		sibling = t.nodes[parent].child1
	}

	if grandParent != NullNode {
		if t.nodes[grandParent].child1 == parent {
			t.nodes[grandParent].child1 = sibling
		} else {
			t.nodes[grandParent].child2 = sibling
		}
		t.nodes[sibling].parent = grandParent
		t.free(parent)

		t.refitAncestors(grandParent)
	} else {
		t.root = sibling
		t.nodes[sibling].parent = NullNode
		t.free(parent)
	}
}

// refitAncestors walks up from the given node refitting AABBs, heights and
// applying balance rotations
func (t *Tree) refitAncestors(index NodeID) {
	for index != NullNode {
		index = t.balance(index)

		child1 := t.nodes[index].child1
		child2 := t.nodes[index].child2

		t.nodes[index].height = 1 + maxInt32(t.nodes[child1].height, t.nodes[child2].height)
		t.nodes[index].aabb = t.nodes[child1].aabb.Union(t.nodes[child2].aabb)

		index = t.nodes[index].parent
	}
}

// balance performs a rotation if node a is imbalanced.
// Returns the root of the balanced subtree.
func (t *Tree) balance(a NodeID) NodeID {
	if t.nodes[a].isLeaf() || t.nodes[a].height < 2 {
		return a
	}

	b := t.nodes[a].child1
	c := t.nodes[a].child2
	bal := t.nodes[c].height - t.nodes[b].height

	if bal > 1 {
		return t.rotate(a, c, b)
	}
	if bal < -1 {
		return t.rotate(a, b, c)
	}
	return a
}

// rotate lifts child up to a's place and pushes a down one level,
// adopting the shallower grandchild
func (t *Tree) rotate(a, child, other NodeID) NodeID {
	f := t.nodes[child].child1
	g := t.nodes[child].child2

	t.nodes[child].child1 = a
	t.nodes[child].parent = t.nodes[a].parent
	t.nodes[a].parent = child

	parent := t.nodes[child].parent
	if parent != NullNode {
		if t.nodes[parent].child1 == a {
			t.nodes[parent].child1 = child
		} else {
			t.nodes[parent].child2 = child
		}
	} else {
		t.root = child
	}

	if t.nodes[f].height > t.nodes[g].height {
		t.nodes[child].child2 = f
		t.replaceChild(a, child, g)
		t.nodes[g].parent = a
		t.refitPair(a, child, other, g)
	} else {
		t.nodes[child].child2 = g
		t.replaceChild(a, child, f)
		t.nodes[f].parent = a
		t.refitPair(a, child, other, f)
	}

	return child
}

func (t *Tree) replaceChild(parent, oldChild, newChild NodeID) {
	if t.nodes[parent].child1 == oldChild {
		t.nodes[parent].child1 = newChild
	} else {
		t.nodes[parent].child2 = newChild
	}
}

func (t *Tree) refitPair(lower, upper, lowerOther, adopted NodeID) {
	t.nodes[lower].aabb = t.nodes[lowerOther].aabb.Union(t.nodes[adopted].aabb)
	t.nodes[lower].height = 1 + maxInt32(t.nodes[lowerOther].height, t.nodes[adopted].height)

	t.nodes[upper].aabb = t.nodes[lower].aabb.Union(t.nodes[t.nodes[upper].child2].aabb)
	t.nodes[upper].height = 1 + maxInt32(t.nodes[lower].height, t.nodes[t.nodes[upper].child2].height)
}

// Height returns the height of the tree, -1 when empty
func (t *Tree) Height() int32 {
	if t.root == NullNode {
		return -1
	}
	return t.nodes[t.root].height
}

// Count returns the number of leaves in the tree
func (t *Tree) Count() int {
	count := 0
	for i := range t.nodes {
		if t.nodes[i].height == 0 {
			count++
		}
	}
	return count
}

// View captures an immutable snapshot of the tree: the root AABB plus all
// leaf AABBs with their payloads. The coordinator stores views of island
// trees in its top-level broadphase.
type View struct {
	RootAABB actor.AABB
	Leaves   []Leaf
}

// Leaf is one entry of a tree view
type Leaf struct {
	AABB   actor.AABB
	Entity registry.Entity
}

// View snapshots the tree
func (t *Tree) View() View {
	v := View{}
	if t.root == NullNode {
		return v
	}
	v.RootAABB = t.nodes[t.root].aabb
	t.Query(v.RootAABB, func(id NodeID) bool {
		v.Leaves = append(v.Leaves, Leaf{AABB: t.nodes[id].aabb, Entity: t.nodes[id].entity})
		return true
	})
	return v
}

func maxInt32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
