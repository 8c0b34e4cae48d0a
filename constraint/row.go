// Package constraint implements the constraint variants, their per-row
// preparation, and the Projected Gauss-Seidel sequential-impulse solver
// that iterates over the prepared row cache.
package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// LargeImpulse stands in for an unbounded row limit
const LargeImpulse = math.MaxFloat64

// Row is a single scalar constraint equation fed to the solver
type Row struct {
	// J holds the four Jacobian columns: linear A, angular A,
	// linear B, angular B
	J [4]mgl64.Vec3

	InvMassA    float64
	InvMassB    float64
	InvInertiaA mgl64.Mat3
	InvInertiaB mgl64.Mat3

	// DvA, DwA, DvB, DwB point at the two bodies' delta-velocity slots
	DvA *mgl64.Vec3
	DwA *mgl64.Vec3
	DvB *mgl64.Vec3
	DwB *mgl64.Vec3

	// EffMass is 1 / (J M⁻¹ Jᵀ)
	EffMass float64
	RHS     float64

	Impulse    float64
	LowerLimit float64
	UpperLimit float64

	Restitution float64
	// Error is the baumgarte-style positional error term, in units of
	// velocity; consumed by prepare
	Error float64
}

// RowOptions carries the optional terms of row preparation
type RowOptions struct {
	Error       float64
	Restitution float64
}

// prepare computes the row's effective mass and right-hand side from the
// bodies' current velocities
func (row *Row) prepare(opts RowOptions, linvelA, angvelA, linvelB, angvelB mgl64.Vec3) {
	jmjt := row.J[0].Dot(row.J[0])*row.InvMassA +
		row.InvInertiaA.Mul3x1(row.J[1]).Dot(row.J[1]) +
		row.J[2].Dot(row.J[2])*row.InvMassB +
		row.InvInertiaB.Mul3x1(row.J[3]).Dot(row.J[3])

	if jmjt > 1e-12 {
		row.EffMass = 1.0 / jmjt
	} else {
		// Degenerate mass configuration: the row contributes nothing
		row.EffMass = 0
	}

	relvel := row.J[0].Dot(linvelA) +
		row.J[1].Dot(angvelA) +
		row.J[2].Dot(linvelB) +
		row.J[3].Dot(angvelB)

	row.Restitution = opts.Restitution
	row.Error = opts.Error
	row.RHS = -(relvel*(1+opts.Restitution) + opts.Error)
}

// warmStart applies the impulse accumulated in the previous step as the
// initial guess
func (row *Row) warmStart() {
	row.apply(row.Impulse)
}

// solve computes the clamped impulse increment for one iteration
func (row *Row) solve() float64 {
	deltaRelvel := row.J[0].Dot(*row.DvA) +
		row.J[1].Dot(*row.DwA) +
		row.J[2].Dot(*row.DvB) +
		row.J[3].Dot(*row.DwB)

	deltaImpulse := (row.RHS - deltaRelvel) * row.EffMass
	impulse := row.Impulse + deltaImpulse

	if impulse < row.LowerLimit {
		deltaImpulse = row.LowerLimit - row.Impulse
		row.Impulse = row.LowerLimit
	} else if impulse > row.UpperLimit {
		deltaImpulse = row.UpperLimit - row.Impulse
		row.Impulse = row.UpperLimit
	} else {
		row.Impulse = impulse
	}

	return deltaImpulse
}

// apply adds M⁻¹ Jᵀ Δλ to the two bodies' delta-velocities
func (row *Row) apply(deltaImpulse float64) {
	*row.DvA = row.DvA.Add(row.J[0].Mul(row.InvMassA * deltaImpulse))
	*row.DwA = row.DwA.Add(row.InvInertiaA.Mul3x1(row.J[1].Mul(deltaImpulse)))
	*row.DvB = row.DvB.Add(row.J[2].Mul(row.InvMassB * deltaImpulse))
	*row.DwB = row.DwB.Add(row.InvInertiaB.Mul3x1(row.J[3].Mul(deltaImpulse)))
}
