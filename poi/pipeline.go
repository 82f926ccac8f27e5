package poi

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/stereodic/rimage"
	"go.viam.com/stereodic/rimage/transform"
)

// StereoImages are the four images of a stereo DIC run.
type StereoImages struct {
	Ref1, Ref2 *rimage.Image2D // reference state, view 1 and view 2
	Tar1, Tar2 *rimage.Image2D // target state, view 1 and view 2
}

// Pipeline chains the correlation stages of a stereo DIC run. Matcher and Affine are optional
// and seed the view 1 temporal registration together. Strain is optional.
type Pipeline struct {
	Stereo       *transform.Stereovision
	Registration Registration
	Searcher     EpipolarSearcher
	Matcher      FeatureMatcher
	Affine       AffineEstimator
	Strain       StrainCalculator
}

// Run correlates view 1 reference points across both views and states, triangulates them and
// computes strain when a strain stage is set. The returned slices are index aligned with points.
func (p *Pipeline) Run(ctx context.Context, imgs StereoImages, points []r2.Point) ([]POI2DS, []POI3D, error) {
	if p.Stereo == nil || p.Registration == nil || p.Searcher == nil {
		return nil, nil, errors.New("pipeline needs a stereo pair, a registration and an epipolar searcher")
	}

	temporal := NewPOI2DQueue(points)
	if p.Matcher != nil && p.Affine != nil {
		kpRef, kpTar, err := p.Matcher.Match(ctx, imgs.Ref1, imgs.Tar1)
		if err != nil {
			return nil, nil, errors.Wrap(err, "matching view 1 features")
		}
		if err := p.Affine.Estimate(ctx, temporal, kpRef, kpTar); err != nil {
			return nil, nil, errors.Wrap(err, "estimating view 1 deformation")
		}
	}
	if err := p.Registration.Compute(ctx, imgs.Ref1, imgs.Tar1, temporal); err != nil {
		return nil, nil, errors.Wrap(err, "registering view 1 target")
	}

	stereo := NewPOI2DQueue(points)
	if err := p.Searcher.Search(ctx, stereo); err != nil {
		return nil, nil, errors.Wrap(err, "searching view 2 matches")
	}
	if err := p.Registration.Compute(ctx, imgs.Ref1, imgs.Ref2, stereo); err != nil {
		return nil, nil, errors.Wrap(err, "registering view 2 reference")
	}

	// seeded with the stereo and temporal displacements combined
	cross := NewPOI2DQueue(points)
	for i := range cross {
		cross[i].Deformation.U = stereo[i].Deformation.U + temporal[i].Deformation.U
		cross[i].Deformation.V = stereo[i].Deformation.V + temporal[i].Deformation.V
	}
	if err := p.Registration.Compute(ctx, imgs.Ref1, imgs.Tar2, cross); err != nil {
		return nil, nil, errors.Wrap(err, "registering view 2 target")
	}

	pois := make([]POI2DS, len(points))
	for i, pt := range points {
		pois[i] = POI2DS{Point: pt, Result: StereoResult{
			R2:       stereo[i].Target(),
			T1:       temporal[i].Target(),
			T2:       cross[i].Target(),
			R1R2ZNCC: stereo[i].Result.ZNCC,
			R1T1ZNCC: temporal[i].Result.ZNCC,
			R1T2ZNCC: cross[i].Result.ZNCC,
		}}
	}
	pois, err := Reconstruct(ctx, p.Stereo, pois)
	if err != nil {
		return nil, nil, err
	}

	field := ToPOI3D(pois)
	if p.Strain != nil {
		if err := p.Strain.Compute(ctx, field); err != nil {
			return nil, nil, errors.Wrap(err, "computing strain")
		}
		for i := range pois {
			pois[i].Strain = field[i].Strain
		}
	}
	return pois, field, nil
}

// ToPOI3D returns the 3D field of reconstructed stereo POIs, located at their reference
// coordinates. ZNCC is the lowest of the three matches.
func ToPOI3D(pois []POI2DS) []POI3D {
	out := make([]POI3D, len(pois))
	for i, p := range pois {
		out[i] = POI3D{
			Vector:       p.RefCoor,
			Displacement: p.Displacement,
			ZNCC:         math.Min(p.Result.R1R2ZNCC, math.Min(p.Result.R1T1ZNCC, p.Result.R1T2ZNCC)),
			Strain:       p.Strain,
		}
	}
	return out
}
