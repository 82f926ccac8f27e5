package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestEulerIdentity(t *testing.T) {
	rot := EulerToRotationMatrix(0, 0, 0)
	test.That(t, mat.EqualApprox(rot, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-15), test.ShouldBeTrue)
}

func TestEulerOrthonormal(t *testing.T) {
	rot := EulerToRotationMatrix(0.00307711, -0.33278773, 0.00524556)
	var rrt mat.Dense
	rrt.Mul(rot, rot.T())
	test.That(t, mat.EqualApprox(&rrt, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.Det(rot), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestEulerRoundTrip(t *testing.T) {
	for _, angles := range [][3]float64{
		{0.1, -0.2, 0.3},
		{0.00307711, -0.33278773, 0.00524556},
		{-1.2, 0.7, 2.9},
	} {
		rx, ry, rz := RotationMatrixToEuler(EulerToRotationMatrix(angles[0], angles[1], angles[2]))
		test.That(t, rx, test.ShouldAlmostEqual, angles[0], 1e-12)
		test.That(t, ry, test.ShouldAlmostEqual, angles[1], 1e-12)
		test.That(t, rz, test.ShouldAlmostEqual, angles[2], 1e-12)
	}
}

func TestRodriguesMatchesSingleAxisEuler(t *testing.T) {
	theta := 0.4
	test.That(t, mat.EqualApprox(RodriguesToRotationMatrix(r3.Vector{X: theta}), RotationX(theta), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(RodriguesToRotationMatrix(r3.Vector{Y: theta}), RotationY(theta), 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(RodriguesToRotationMatrix(r3.Vector{Z: theta}), RotationZ(theta), 1e-12), test.ShouldBeTrue)

	id := RodriguesToRotationMatrix(r3.Vector{})
	test.That(t, mat.EqualApprox(id, EulerToRotationMatrix(0, 0, 0), 0), test.ShouldBeTrue)
}

func TestRotationZActsCounterClockwise(t *testing.T) {
	v := MulVec(RotationZ(math.Pi/2), r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-15)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-15)
}

func TestCrossProductMatrix(t *testing.T) {
	p := r3.Vector{X: 1, Y: -2, Z: 3}
	v := r3.Vector{X: 0.5, Y: 4, Z: -1}
	got := MulVec(CrossProductMatrix(p), v)
	want := p.Cross(v)
	test.That(t, got.X, test.ShouldAlmostEqual, want.X)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z)
}
