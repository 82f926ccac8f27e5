package transform

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereodic/spatialmath"
)

// EssentialFromFundamental returns E = K2ᵀ·F·K1 with rank 2 enforced.
func EssentialFromFundamental(k1, k2, f mat.Matrix) (*mat.Dense, error) {
	var ess mat.Dense
	ess.Mul(k2.T(), f)
	ess.Mul(&ess, k1)
	s, err := performSVD(&ess)
	if err != nil {
		return nil, err
	}
	// equal non-zero singular values
	sigma := (s.S.At(0, 0) + s.S.At(1, 1)) / 2
	s.S.Set(0, 0, sigma)
	s.S.Set(1, 1, sigma)
	s.S.Set(2, 2, 0)
	ess.Mul(s.U, s.S)
	ess.Mul(&ess, s.V.T())
	return &ess, nil
}

// DecomposeEssentialMatrix returns the two rotations and the unit translation direction an
// essential matrix factors into. The translation sign is undetermined.
func DecomposeEssentialMatrix(ess mat.Matrix) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	s, err := performSVD(ess)
	if err != nil {
		return nil, nil, r3.Vector{}, err
	}
	if mat.Det(s.U) < 0 {
		s.U.Scale(-1, s.U)
	}
	if mat.Det(s.V) < 0 {
		s.V.Scale(-1, s.V)
	}
	w := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	})
	var rot1, rot2 mat.Dense
	rot1.Mul(s.U, w)
	rot1.Mul(&rot1, s.V.T())
	rot2.Mul(s.U, w.T())
	rot2.Mul(&rot2, s.V.T())
	t := r3.Vector{X: s.U.At(0, 2), Y: s.U.At(1, 2), Z: s.U.At(2, 2)}
	return &rot1, &rot2, t.Normalize(), nil
}

// RecoverRelativePose estimates the pose of view 2 relative to view 1 from ideal pixel
// correspondences and both intrinsic matrices. Of the four factorizations of the essential
// matrix it keeps the one placing most triangulated points in front of both cameras. The
// translation is only known up to scale and is returned with unit length.
func RecoverRelativePose(pts1, pts2 []r2.Point, k1, k2 mat.Matrix) (*mat.Dense, r3.Vector, error) {
	f, err := EstimateFundamentalMatrix(pts1, pts2)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	ess, err := EssentialFromFundamental(k1, k2, f)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	rot1, rot2, t, err := DecomposeEssentialMatrix(ess)
	if err != nil {
		return nil, r3.Vector{}, err
	}

	var proj1 mat.Dense
	proj1.Mul(k1, eye3x4())

	var bestRot *mat.Dense
	var bestT r3.Vector
	bestCount := -1
	for _, rot := range []*mat.Dense{rot1, rot2} {
		for _, tt := range []r3.Vector{t, t.Mul(-1)} {
			var rt, proj2 mat.Dense
			rt.Augment(rot, mat.NewDense(3, 1, []float64{tt.X, tt.Y, tt.Z}))
			proj2.Mul(k2, &rt)

			count := 0
			for i := range pts1 {
				x := TriangulateDLT(pts1[i], pts2[i], &proj1, &proj2)
				if x.Z > 0 && spatialmath.MulVec(rot, x).Add(tt).Z > 0 {
					count++
				}
			}
			if count > bestCount {
				bestRot, bestT, bestCount = rot, tt, count
			}
		}
	}
	if bestCount == 0 {
		return nil, r3.Vector{}, errors.New("no pose places the points in front of both cameras")
	}
	return bestRot, bestT, nil
}

func eye3x4() *mat.Dense {
	return mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
}
