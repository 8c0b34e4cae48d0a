package constraint

import (
	"math"

	"github.com/akmonengine/bedrock/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// prepareKind walks the constraint pool and prepares every constraint of
// the given kind, keeping the pool order
func (s *Solver) prepareKind(kind Kind, dt float64) {
	registry.View2(s.reg, func(entity registry.Entity, con *Constraint, imp *Impulse) {
		if con.Kind != kind {
			return
		}

		var numRows int
		switch kind {
		case KindPoint:
			numRows = s.preparePoint(con, imp, dt)
		case KindDistance, KindSoftDistance:
			numRows = s.prepareDistance(con, imp, dt)
		case KindHinge:
			numRows = s.prepareHinge(con, imp, dt)
		case KindGeneric:
			numRows = s.prepareGeneric(con, imp, dt)
		}

		s.prepared = append(s.prepared, entity)
		s.cache.ConNumRows = append(s.cache.ConNumRows, numRows)
	})
}

// preparePoint emits three rows pinning the world positions of the two
// pivots together, one per axis
func (s *Solver) preparePoint(con *Constraint, imp *Impulse, dt float64) int {
	a := fetchBody(s.reg, con.Body[0])
	b := fetchBody(s.reg, con.Body[1])

	rA := a.transform.Rotation.Rotate(con.PivotA)
	rB := b.transform.Rotation.Rotate(con.PivotB)

	for i := 0; i < 3; i++ {
		var axis mgl64.Vec3
		axis[i] = 1

		row := s.cache.AddRow()
		row.J = [4]mgl64.Vec3{
			axis,
			rA.Cross(axis),
			axis.Mul(-1),
			rB.Cross(axis).Mul(-1),
		}
		bind(row, a, b)
		row.Impulse = imp.Values[i]
		row.LowerLimit = -LargeImpulse
		row.UpperLimit = LargeImpulse

		options := RowOptions{
			Error: (a.transform.Position[i] + rA[i] - b.transform.Position[i] - rB[i]) / dt,
		}
		row.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
		row.warmStart()
	}

	return 3
}

// prepareDistance emits one row along the pivot separation. Hard distance
// constraints clamp to unbounded impulses; soft ones bound the impulse by
// the spring and damper forces over dt.
func (s *Solver) prepareDistance(con *Constraint, imp *Impulse, dt float64) int {
	a := fetchBody(s.reg, con.Body[0])
	b := fetchBody(s.reg, con.Body[1])

	rA := a.transform.Rotation.Rotate(con.PivotA)
	rB := b.transform.Rotation.Rotate(con.PivotB)

	d := a.transform.Position.Add(rA).Sub(b.transform.Position).Sub(rB)
	l2 := maxf(d.LenSqr(), 1e-12)
	l := math.Sqrt(l2)
	dn := d.Mul(1.0 / l)

	row := s.cache.AddRow()
	row.J = [4]mgl64.Vec3{
		d,
		rA.Cross(d),
		d.Mul(-1),
		rB.Cross(d).Mul(-1),
	}
	bind(row, a, b)
	row.Impulse = imp.Values[0]

	if con.Kind == KindSoftDistance {
		relvel := a.vel.Linear.Add(a.vel.Angular.Cross(rA)).
			Sub(b.vel.Linear).Sub(b.vel.Angular.Cross(rB)).Dot(dn)
		force := con.Stiffness*l + con.Damping*abs(relvel)
		impulse := force * dt
		row.LowerLimit = -impulse
		row.UpperLimit = impulse
	} else {
		row.LowerLimit = -LargeImpulse
		row.UpperLimit = LargeImpulse
	}

	options := RowOptions{
		Error: 0.5 * (l2 - con.Distance*con.Distance) / dt,
	}
	row.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
	row.warmStart()

	return 1
}

// prepareHinge emits five rows: three pinning the pivots together and two
// keeping the hinge axes aligned
func (s *Solver) prepareHinge(con *Constraint, imp *Impulse, dt float64) int {
	numRows := s.preparePoint(con, imp, dt)

	a := fetchBody(s.reg, con.Body[0])
	b := fetchBody(s.reg, con.Body[1])

	axisA := a.transform.Rotation.Rotate(con.AxisA)
	axisB := b.transform.Rotation.Rotate(con.AxisB)
	p, q := hingeBasis(axisA)

	misalignment := axisA.Cross(axisB)

	for i, t := range [2]mgl64.Vec3{p, q} {
		row := s.cache.AddRow()
		row.J = [4]mgl64.Vec3{
			{},
			t,
			{},
			t.Mul(-1),
		}
		bind(row, a, b)
		row.Impulse = imp.Values[numRows+i]
		row.LowerLimit = -LargeImpulse
		row.UpperLimit = LargeImpulse

		options := RowOptions{Error: misalignment.Dot(t) / dt}
		row.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
		row.warmStart()
	}

	return numRows + 2
}

// prepareGeneric emits six rows: three linear and three angular, each with
// its own limits. Equal lower and upper limits lock an axis.
func (s *Solver) prepareGeneric(con *Constraint, imp *Impulse, dt float64) int {
	a := fetchBody(s.reg, con.Body[0])
	b := fetchBody(s.reg, con.Body[1])

	rA := a.transform.Rotation.Rotate(con.PivotA)
	rB := b.transform.Rotation.Rotate(con.PivotB)
	offset := a.transform.Position.Add(rA).Sub(b.transform.Position).Sub(rB)

	for i := 0; i < 3; i++ {
		var axis mgl64.Vec3
		axis[i] = 1

		row := s.cache.AddRow()
		row.J = [4]mgl64.Vec3{
			axis,
			rA.Cross(axis),
			axis.Mul(-1),
			rB.Cross(axis).Mul(-1),
		}
		bind(row, a, b)
		row.Impulse = imp.Values[i]
		row.LowerLimit = -LargeImpulse
		row.UpperLimit = LargeImpulse

		options := RowOptions{
			Error: limitError(offset[i], con.LinearLower[i], con.LinearUpper[i]) / dt,
		}
		row.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
		row.warmStart()
	}

	// Relative rotation, small-angle approximation from the vector part
	qrel := a.transform.Rotation.Inverse().Mul(b.transform.Rotation).Normalize()
	angles := qrel.V.Mul(2)
	if qrel.W < 0 {
		angles = angles.Mul(-1)
	}

	for i := 0; i < 3; i++ {
		var axis mgl64.Vec3
		axis[i] = 1
		worldAxis := a.transform.Rotation.Rotate(axis)

		row := s.cache.AddRow()
		row.J = [4]mgl64.Vec3{
			{},
			worldAxis,
			{},
			worldAxis.Mul(-1),
		}
		bind(row, a, b)
		row.Impulse = imp.Values[3+i]
		row.LowerLimit = -LargeImpulse
		row.UpperLimit = LargeImpulse

		options := RowOptions{
			Error: -limitError(angles[i], con.AngularLower[i], con.AngularUpper[i]) / dt,
		}
		row.prepare(options, a.vel.Linear, a.vel.Angular, b.vel.Linear, b.vel.Angular)
		row.warmStart()
	}

	return 6
}

// limitError returns the positional violation outside [lower, upper].
// Equal limits behave as a lock at that value.
func limitError(value, lower, upper float64) float64 {
	if value < lower {
		return value - lower
	}
	if value > upper {
		return value - upper
	}
	return 0
}

// hingeBasis builds two directions orthogonal to the hinge axis
func hingeBasis(axis mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	var ref mgl64.Vec3
	if abs(axis.X()) > 0.9 {
		ref = mgl64.Vec3{0, 1, 0}
	} else {
		ref = mgl64.Vec3{1, 0, 0}
	}
	p := axis.Cross(ref).Normalize()
	q := axis.Cross(p).Normalize()
	return p, q
}
