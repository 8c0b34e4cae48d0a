package collide

import (
	"github.com/akmonengine/bedrock/actor"
)

// Kernel computes the candidate contact points between two shapes in the
// given configuration
type Kernel func(a, b actor.Shape, ctx Context) Result

// kernelTable dispatches a shape pair to its collision routine. Pairs
// without an entry fall back to the generic convex-convex kernel; pairs
// registered in one direction only are handled by the swap wrapper.
var kernelTable [actor.ShapeTypeCount][actor.ShapeTypeCount]Kernel

func init() {
	register(actor.ShapeTypeSphere, actor.ShapeTypeSphere, collideSphereSphere)
	register(actor.ShapeTypeSphere, actor.ShapeTypeBox, collideSphereBox)
	register(actor.ShapeTypeSphere, actor.ShapeTypePlane, collideSpherePlane)
	register(actor.ShapeTypeBox, actor.ShapeTypeBox, collideConvexConvex)
	register(actor.ShapeTypeBox, actor.ShapeTypePlane, collideConvexPlane)
	register(actor.ShapeTypeCapsule, actor.ShapeTypePlane, collideConvexPlane)
	register(actor.ShapeTypeCylinder, actor.ShapeTypePlane, collideConvexPlane)
	register(actor.ShapeTypeMesh, actor.ShapeTypeSphere, collideMeshConvex)
	register(actor.ShapeTypeMesh, actor.ShapeTypeBox, collideMeshConvex)
	register(actor.ShapeTypeMesh, actor.ShapeTypeCapsule, collideMeshConvex)
	register(actor.ShapeTypeMesh, actor.ShapeTypeCylinder, collideMeshConvex)
}

func register(a, b actor.ShapeType, k Kernel) {
	kernelTable[a][b] = k
}

// Collide dispatches the pair (shapeA, shapeB) to its kernel. Swap-symmetric
// pairs run the canonical ordering and flip the result's pivots and normal.
func Collide(shapeA, shapeB actor.Shape, ctx Context) Result {
	ta, tb := shapeA.Type(), shapeB.Type()

	if k := kernelTable[ta][tb]; k != nil {
		return k(shapeA, shapeB, ctx)
	}
	if k := kernelTable[tb][ta]; k != nil {
		return k(shapeB, shapeA, ctx.Swapped()).swapped()
	}

	// No analytic routine for this pair: generic convex fallback. Mesh
	// pairs without a registered kernel (mesh-mesh, mesh-plane) are
	// unsupported and report no contact.
	if ta == actor.ShapeTypeMesh || tb == actor.ShapeTypeMesh {
		return Result{}
	}
	return collideConvexConvex(shapeA, shapeB, ctx)
}
