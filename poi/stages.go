package poi

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/stereodic/rimage"
	"go.viam.com/stereodic/rimage/transform"
)

// Registration refines the deformation of every POI between a reference and a target image,
// updating Deformation and Result (ZNCC, convergence, iteration).
type Registration interface {
	Compute(ctx context.Context, ref, tar *rimage.Image2D, pois []POI2D) error
}

// FeatureMatcher finds matched keypoints between two images. The returned slices are index
// aligned.
type FeatureMatcher interface {
	Match(ctx context.Context, ref, tar *rimage.Image2D) ([]r2.Point, []r2.Point, error)
}

// AffineEstimator initializes POI deformations from matched keypoints around each POI and
// records the number of keypoints used in Result.Features.
type AffineEstimator interface {
	Estimate(ctx context.Context, pois []POI2D, refKeypoints, tarKeypoints []r2.Point) error
}

// EpipolarSearcher initializes the view 2 match of each view 1 POI by searching along its
// epipolar line.
type EpipolarSearcher interface {
	Search(ctx context.Context, pois []POI2D) error
}

// StrainCalculator fills the strain tensor of every POI from the displacement of its neighbors.
type StrainCalculator interface {
	Compute(ctx context.Context, pois []POI3D) error
}

// EpipolarGuide exposes the epipolar geometry of a prepared stereo pair to search stages.
type EpipolarGuide struct {
	sv *transform.Stereovision
}

// NewEpipolarGuide wraps a prepared stereo pair.
func NewEpipolarGuide(sv *transform.Stereovision) *EpipolarGuide {
	return &EpipolarGuide{sv: sv}
}

// Line returns the view 2 epipolar line (a, b, c) of the view 1 point p1 with a² + b² = 1.
func (g *EpipolarGuide) Line(p1 r2.Point) r3.Vector {
	l := g.sv.EpipolarLine(p1)
	n := math.Hypot(l.X, l.Y)
	if n == 0 {
		return l
	}
	return l.Mul(1 / n)
}

// Foot returns the point of the epipolar line of p1 closest to guess.
func (g *EpipolarGuide) Foot(p1, guess r2.Point) r2.Point {
	l := g.Line(p1)
	d := l.X*guess.X + l.Y*guess.Y + l.Z
	return r2.Point{X: guess.X - d*l.X, Y: guess.Y - d*l.Y}
}

// Candidates lists positions on the epipolar line of p1, spaced by step pixels and reaching
// up to maxDistance on both sides of the foot of guess. The foot comes first, then positions
// in order of increasing distance, alternating sides.
func (g *EpipolarGuide) Candidates(p1, guess r2.Point, maxDistance, step float64) ([]r2.Point, error) {
	if !(step > 0) || maxDistance < 0 {
		return nil, errors.Errorf("invalid epipolar search range %v with step %v", maxDistance, step)
	}
	l := g.Line(p1)
	dir := r2.Point{X: -l.Y, Y: l.X}
	foot := g.Foot(p1, guess)
	out := []r2.Point{foot}
	for k := 1; float64(k)*step <= maxDistance; k++ {
		off := dir.Mul(float64(k) * step)
		out = append(out, foot.Add(off), foot.Sub(off))
	}
	return out, nil
}

// Reconstruct triangulates the reference and target positions of every stereo POI and
// assembles the 3D displacement field.
func Reconstruct(ctx context.Context, sv *transform.Stereovision, pois []POI2DS) ([]POI2DS, error) {
	r1 := make([]r2.Point, len(pois))
	r2s := make([]r2.Point, len(pois))
	t1 := make([]r2.Point, len(pois))
	t2 := make([]r2.Point, len(pois))
	for i, p := range pois {
		r1[i], r2s[i] = p.Point, p.Result.R2
		t1[i], t2[i] = p.Result.T1, p.Result.T2
	}
	ref, err := sv.ReconstructAll(ctx, r1, r2s)
	if err != nil {
		return nil, errors.Wrap(err, "reconstructing reference state")
	}
	tar, err := sv.ReconstructAll(ctx, t1, t2)
	if err != nil {
		return nil, errors.Wrap(err, "reconstructing target state")
	}
	return Assemble3D(pois, ref, tar)
}
