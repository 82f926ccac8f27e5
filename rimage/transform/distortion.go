package transform

import (
	"math"

	"github.com/golang/geo/r2"
)

// distortNormalized applies the rational radial and tangential model to a point of the
// normalized image plane.
func (ci CameraIntrinsics) distortNormalized(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + ci.K1*r2 + ci.K2*r4 + ci.K3*r6) / (1 + ci.K4*r2 + ci.K5*r4 + ci.K6*r6)
	xd := x*radial + 2*ci.P1*x*y + ci.P2*(r2+2*x*x)
	yd := y*radial + ci.P1*(r2+2*y*y) + 2*ci.P2*x*y
	return xd, yd
}

// Distort maps an ideal pixel coordinate to the pixel coordinate observed through the lens.
func (c *Calibration) Distort(p r2.Point) r2.Point {
	if !c.Intrinsics.HasDistortion() {
		return p
	}
	n := c.SensorToImage(p)
	xd, yd := c.Intrinsics.distortNormalized(n.X, n.Y)
	return c.ImageToSensor(r2.Point{X: xd, Y: yd})
}

// UndistortExact maps an observed pixel coordinate to its ideal position by the bounded
// fixed-point iteration Prepare runs for every map node. It needs no map and suits small
// point sets.
func (c *Calibration) UndistortExact(p r2.Point) r2.Point {
	return c.solveUndistortion(p, c.convergence, c.iteration)
}

// solveUndistortion finds u with Distort(u) = p by the correction u ← u + (p − Distort(u)),
// starting at u = p. It stops once a step is shorter than convergence or after iteration
// steps, returning the last estimate.
func (c *Calibration) solveUndistortion(p r2.Point, convergence float64, iteration int) r2.Point {
	u := p
	for i := 0; i < iteration; i++ {
		step := p.Sub(c.Distort(u))
		u = u.Add(step)
		if step.Norm() < convergence || math.IsNaN(step.X) || math.IsNaN(step.Y) {
			break
		}
	}
	return u
}
