// Package poi holds the point-of-interest records exchanged between the correlation stages of
// stereo DIC, the interfaces of those stages, and table I/O.
package poi

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Deformation2D is the first order shape function of a subset: displacement and its gradient.
type Deformation2D struct {
	U, Ux, Uy float64
	V, Vx, Vy float64
}

// Result2D is the outcome of correlating one POI.
type Result2D struct {
	ZNCC        float64
	Convergence float64
	Iteration   int
	Features    int
}

// POI2D is a point of interest in one view with its correlation state.
type POI2D struct {
	r2.Point
	Deformation Deformation2D
	Result      Result2D
}

// NewPOI2D returns a POI at p with zero deformation.
func NewPOI2D(p r2.Point) POI2D {
	return POI2D{Point: p}
}

// Target returns where the POI lands in the target image.
func (p POI2D) Target() r2.Point {
	return r2.Point{X: p.X + p.Deformation.U, Y: p.Y + p.Deformation.V}
}

// NewPOI2DQueue builds one POI per point.
func NewPOI2DQueue(pts []r2.Point) []POI2D {
	pois := make([]POI2D, len(pts))
	for i, p := range pts {
		pois[i] = NewPOI2D(p)
	}
	return pois
}

// Strain3D is the Green-Lagrange strain tensor of a POI.
type Strain3D struct {
	Exx, Eyy, Ezz float64
	Exy, Eyz, Ezx float64
}

// StereoResult records the matched positions of a stereo POI. The view 1 reference position
// is the POI itself.
type StereoResult struct {
	R2 r2.Point // view 2, reference state
	T1 r2.Point // view 1, target state
	T2 r2.Point // view 2, target state

	R1R2ZNCC float64
	R1T1ZNCC float64
	R1T2ZNCC float64
}

// POI2DS is a stereo POI: a view 1 reference location with its matches and the
// reconstructed 3D displacement.
type POI2DS struct {
	r2.Point
	Result  StereoResult
	RefCoor r3.Vector
	TarCoor r3.Vector

	// Displacement is TarCoor - RefCoor.
	Displacement r3.Vector
	Strain       Strain3D
}

// POI3D is a point of interest of a volume.
type POI3D struct {
	r3.Vector
	Displacement r3.Vector
	ZNCC         float64
	Strain       Strain3D
}

// Assemble3D fills the 3D coordinates and displacement of each stereo POI from its
// reconstructed reference and target positions. The three slices are index aligned.
func Assemble3D(pois []POI2DS, ref, tar []r3.Vector) ([]POI2DS, error) {
	if len(ref) != len(pois) || len(tar) != len(pois) {
		return nil, errors.Errorf("cannot assemble %d POIs from %d reference and %d target points",
			len(pois), len(ref), len(tar))
	}
	out := make([]POI2DS, len(pois))
	for i, p := range pois {
		p.RefCoor = ref[i]
		p.TarCoor = tar[i]
		p.Displacement = tar[i].Sub(ref[i])
		out[i] = p
	}
	return out, nil
}
