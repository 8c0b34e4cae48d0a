package collide

import (
	"math"

	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/dtree"
	"github.com/akmonengine/bedrock/epa"
	"github.com/akmonengine/bedrock/gjk"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// TriangleMesh is a concave triangle soup with an internal AABB tree over
// its triangles. Meshes are static-only shapes.
//
// Triangles record which of their edges border a convex crease of the hull;
// contacts whose normal would pull against a concave (hidden) edge are
// snapped to the triangle face normal so bodies do not catch on internal
// geometry.
type TriangleMesh struct {
	Vertices []mgl64.Vec3
	Indices  [][3]int

	// ConvexEdges[t][e] reports whether edge e of triangle t lies on a
	// convex crease. Populated by Build.
	ConvexEdges [][3]bool

	tree   *dtree.Tree
	bounds actor.AABB
}

// NewTriangleMesh builds a mesh shape from vertices and triangle indices,
// deriving edge convexity and the internal tree
func NewTriangleMesh(vertices []mgl64.Vec3, indices [][3]int) *TriangleMesh {
	m := &TriangleMesh{Vertices: vertices, Indices: indices}
	m.Build()
	return m
}

// Build computes the internal AABB tree, overall bounds and edge convexity
func (m *TriangleMesh) Build() {
	m.tree = dtree.New()
	m.ConvexEdges = make([][3]bool, len(m.Indices))

	if len(m.Vertices) > 0 {
		m.bounds = actor.AABB{Min: m.Vertices[0], Max: m.Vertices[0]}
	}
	for _, v := range m.Vertices {
		m.bounds = m.bounds.Union(actor.AABB{Min: v, Max: v})
	}

	type edgeKey struct{ a, b int }
	normalize := func(a, b int) edgeKey {
		if a > b {
			a, b = b, a
		}
		return edgeKey{a, b}
	}

	type edgeRef struct {
		tri  int
		edge int
	}
	shared := make(map[edgeKey][]edgeRef)

	for t, tri := range m.Indices {
		aabb := actor.AABB{Min: m.Vertices[tri[0]], Max: m.Vertices[tri[0]]}
		for _, vi := range tri[1:] {
			aabb = aabb.Union(actor.AABB{Min: m.Vertices[vi], Max: m.Vertices[vi]})
		}
		// Leaf payloads are triangle indices, offset past Null
		m.tree.Create(aabb, registry.Entity(t+1))

		for e := 0; e < 3; e++ {
			key := normalize(tri[e], tri[(e+1)%3])
			shared[key] = append(shared[key], edgeRef{tri: t, edge: e})
			// Boundary edges stay convex unless a neighbor proves otherwise
			m.ConvexEdges[t][e] = true
		}
	}

	// An interior edge is concave when the neighbor's opposite vertex lies
	// above the triangle plane.
	for _, refs := range shared {
		if len(refs) != 2 {
			continue
		}
		for i := 0; i < 2; i++ {
			self := refs[i]
			other := refs[1-i]
			n := m.triangleNormal(self.tri)
			opposite := m.Vertices[m.oppositeVertex(other.tri, self.tri)]
			if opposite.Sub(m.Vertices[m.Indices[self.tri][0]]).Dot(n) > 1e-9 {
				m.ConvexEdges[self.tri][self.edge] = false
			}
		}
	}
}

func (m *TriangleMesh) triangleNormal(t int) mgl64.Vec3 {
	tri := m.Indices[t]
	v0, v1, v2 := m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]]
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	if n.LenSqr() < 1e-18 {
		return mgl64.Vec3{0, 1, 0}
	}
	return n.Normalize()
}

// oppositeVertex returns the vertex of triangle t not shared with triangle s
func (m *TriangleMesh) oppositeVertex(t, s int) int {
	in := func(vi int, tri [3]int) bool {
		return vi == tri[0] || vi == tri[1] || vi == tri[2]
	}
	for _, vi := range m.Indices[t] {
		if !in(vi, m.Indices[s]) {
			return vi
		}
	}
	return m.Indices[t][0]
}

func (m *TriangleMesh) Type() actor.ShapeType { return actor.ShapeTypeMesh }

func (m *TriangleMesh) AABB(transform actor.Transform) actor.AABB {
	corners := [8]mgl64.Vec3{
		{m.bounds.Min.X(), m.bounds.Min.Y(), m.bounds.Min.Z()},
		{m.bounds.Max.X(), m.bounds.Min.Y(), m.bounds.Min.Z()},
		{m.bounds.Min.X(), m.bounds.Max.Y(), m.bounds.Min.Z()},
		{m.bounds.Max.X(), m.bounds.Max.Y(), m.bounds.Min.Z()},
		{m.bounds.Min.X(), m.bounds.Min.Y(), m.bounds.Max.Z()},
		{m.bounds.Max.X(), m.bounds.Min.Y(), m.bounds.Max.Z()},
		{m.bounds.Min.X(), m.bounds.Max.Y(), m.bounds.Max.Z()},
		{m.bounds.Max.X(), m.bounds.Max.Y(), m.bounds.Max.Z()},
	}

	world := transform.ToWorld(corners[0])
	out := actor.AABB{Min: world, Max: world}
	for _, c := range corners[1:] {
		world = transform.ToWorld(c)
		out = out.Union(actor.AABB{Min: world, Max: world})
	}
	return out
}

// ComputeMass reports infinite mass; meshes only attach to static bodies
func (m *TriangleMesh) ComputeMass(density float64) float64 {
	return math.Inf(1)
}

func (m *TriangleMesh) ComputeInertia(mass float64) mgl64.Vec3 {
	return mgl64.Vec3{}
}

func (m *TriangleMesh) Support(direction mgl64.Vec3) mgl64.Vec3 {
	best := mgl64.Vec3{}
	bestDot := -math.MaxFloat64
	for _, v := range m.Vertices {
		if d := v.Dot(direction); d > bestDot {
			bestDot = d
			best = v
		}
	}
	return best
}

func (m *TriangleMesh) Feature(direction mgl64.Vec3) []mgl64.Vec3 {
	return []mgl64.Vec3{m.Support(direction)}
}

// collideMeshConvex visits the mesh tree with the other shape's bounds and
// runs a per-triangle convex sub-collision for every overlapping leaf
func collideMeshConvex(a, b actor.Shape, ctx Context) Result {
	mesh := a.(*TriangleMesh)

	supportB := func(dir mgl64.Vec3) mgl64.Vec3 { return actor.SupportWorld(b, ctx.TransformB, dir) }

	// The other shape's bounds in mesh-local space, inflated by the margin
	worldAABB := b.AABB(ctx.TransformB).Inset(-ctx.Threshold)
	localAABB := aabbToLocal(worldAABB, ctx.TransformA)

	var result Result
	mesh.tree.Query(localAABB, func(id dtree.NodeID) bool {
		t := int(mesh.tree.Entity(id)) - 1
		tri := mesh.Indices[t]

		w0 := ctx.TransformA.ToWorld(mesh.Vertices[tri[0]])
		w1 := ctx.TransformA.ToWorld(mesh.Vertices[tri[1]])
		w2 := ctx.TransformA.ToWorld(mesh.Vertices[tri[2]])

		supportTri := func(dir mgl64.Vec3) mgl64.Vec3 {
			best := w0
			if w1.Dot(dir) > best.Dot(dir) {
				best = w1
			}
			if w2.Dot(dir) > best.Dot(dir) {
				best = w2
			}
			return best
		}

		simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
		defer gjk.SimplexPool.Put(simplex)
		simplex.Reset()

		center := w0.Add(w1).Add(w2).Mul(1.0 / 3.0)
		if !gjk.Intersect(supportTri, supportB, ctx.TransformB.Position.Sub(center), simplex) {
			return true
		}

		normalAB, depth, err := epa.Penetration(supportTri, supportB, simplex)
		if err != nil {
			return true
		}

		// Face normal oriented toward the other body
		faceNormal := ctx.TransformA.Rotation.Rotate(mesh.triangleNormal(t))
		if faceNormal.Dot(ctx.TransformB.Position.Sub(w0)) < 0 {
			faceNormal = faceNormal.Mul(-1)
		}

		// Concave-edge masking: a normal that deviates from the face can
		// only come from an edge or vertex feature; suppress it when the
		// triangle borders a hidden crease.
		if normalAB.Dot(faceNormal) < 0.999 && !allEdgesConvex(mesh.ConvexEdges[t]) {
			normalAB = faceNormal
		}

		normal := normalAB.Mul(-1)
		pointOnB := supportB(normal)
		pointOnA := pointOnB.Sub(normal.Mul(depth))

		result.add(
			ctx.TransformA.ToLocal(pointOnA),
			ctx.TransformB.ToLocal(pointOnB),
			normal,
			-depth,
		)
		return true
	})

	return result
}

func allEdgesConvex(edges [3]bool) bool {
	return edges[0] && edges[1] && edges[2]
}

func aabbToLocal(aabb actor.AABB, transform actor.Transform) actor.AABB {
	corners := [8]mgl64.Vec3{
		{aabb.Min.X(), aabb.Min.Y(), aabb.Min.Z()},
		{aabb.Max.X(), aabb.Min.Y(), aabb.Min.Z()},
		{aabb.Min.X(), aabb.Max.Y(), aabb.Min.Z()},
		{aabb.Max.X(), aabb.Max.Y(), aabb.Min.Z()},
		{aabb.Min.X(), aabb.Min.Y(), aabb.Max.Z()},
		{aabb.Max.X(), aabb.Min.Y(), aabb.Max.Z()},
		{aabb.Min.X(), aabb.Max.Y(), aabb.Max.Z()},
		{aabb.Max.X(), aabb.Max.Y(), aabb.Max.Z()},
	}

	local := transform.ToLocal(corners[0])
	out := actor.AABB{Min: local, Max: local}
	for _, c := range corners[1:] {
		local = transform.ToLocal(c)
		out = out.Union(actor.AABB{Min: local, Max: local})
	}
	return out
}
