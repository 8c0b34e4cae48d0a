package constraint

import (
	"github.com/akmonengine/bedrock/actor"
	"github.com/akmonengine/bedrock/collide"
	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// prepareContacts emits two rows per manifold point: the normal row
// followed by its friction row. Friction limits stay zero here; they are
// refreshed every iteration from the partner normal row's accumulated
// impulse.
func (s *Solver) prepareContacts(dt float64) {
	reg := s.reg

	registry.View2(reg, func(entity registry.Entity, con *Constraint, imp *Impulse) {
		if con.Kind != KindContact {
			return
		}
		manifold := registry.Get[collide.Manifold](reg, entity)
		if manifold.NumPoints == 0 {
			s.prepared = append(s.prepared, entity)
			s.cache.ConNumRows = append(s.cache.ConNumRows, 0)
			return
		}

		a := fetchBody(reg, con.Body[0])
		b := fetchBody(reg, con.Body[1])

		for i := 0; i < manifold.NumPoints; i++ {
			cp := &manifold.Points[i]

			normal := b.transform.Rotation.Rotate(cp.LocalNormal)
			rA := a.transform.Rotation.Rotate(cp.PivotA)
			rB := b.transform.Rotation.Rotate(cp.PivotB)

			velA := a.vel.Linear.Add(a.vel.Angular.Cross(rA))
			velB := b.vel.Linear.Add(b.vel.Angular.Cross(rB))
			relvel := velA.Sub(velB)
			normalRelvel := relvel.Dot(normal)

			// Normal row
			normalRow := s.cache.AddRow()
			normalRow.J = [4]mgl64.Vec3{
				normal,
				rA.Cross(normal),
				normal.Mul(-1),
				rB.Cross(normal).Mul(-1),
			}
			bind(normalRow, a, b)
			normalRow.Impulse = imp.Values[2*i]
			normalRow.LowerLimit = 0

			mat := registry.Get[actor.Material](reg, entity)
			if mat.Stiffness < actor.LargeStiffness {
				springForce := cp.Distance * mat.Stiffness
				damperForce := normalRelvel * mat.Damping
				normalRow.UpperLimit = abs(springForce+damperForce) * dt
			} else {
				normalRow.UpperLimit = LargeImpulse
			}

			penetration := a.transform.Position.Add(rA).Sub(b.transform.Position).Sub(rB).Dot(normal)
			pvel := penetration / dt

			options := RowOptions{Restitution: cp.Restitution}
			if penetration > 0 && pvel > -cp.Restitution*normalRelvel {
				// Not penetrating, and the velocity to touch within dt
				// is below the bounce velocity: allow approaching just
				// enough to avoid penetration after the next update.
				options.Error = maxf(pvel, 0)
			} else {
				// Penetration correction applies regardless of the
				// point's lifetime.
				options.Error = minf(pvel, 0)
			}

			normalRow.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
			normalRow.warmStart()

			// Friction row, along the tangential relative velocity, or a
			// stable basis direction when the tangential speed vanishes
			tangentRelvel := relvel.Sub(normal.Mul(normalRelvel))
			tangentRelspd := tangentRelvel.Len()
			var tangent mgl64.Vec3
			if tangentRelspd > 1e-9 {
				tangent = tangentRelvel.Mul(1.0 / tangentRelspd)
			} else {
				tangent, _ = actor.TangentBasis(normal)
			}

			frictionRow := s.cache.AddRow()
			frictionRow.J = [4]mgl64.Vec3{
				tangent,
				rA.Cross(tangent),
				tangent.Mul(-1),
				rB.Cross(tangent).Mul(-1),
			}
			bind(frictionRow, a, b)
			frictionRow.Impulse = imp.Values[2*i+1]
			frictionRow.LowerLimit = 0
			frictionRow.UpperLimit = 0

			frictionRow.prepare(RowOptions{}, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
			frictionRow.warmStart()

			con.friction[i] = cp.Friction
			s.frictionPairs = append(s.frictionPairs, frictionPair{
				normalIdx:   len(s.cache.Rows) - 2,
				frictionIdx: len(s.cache.Rows) - 1,
				friction:    cp.Friction,
			})
		}

		s.prepared = append(s.prepared, entity)
		s.cache.ConNumRows = append(s.cache.ConNumRows, 2*manifold.NumPoints)
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
