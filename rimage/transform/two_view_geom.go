package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereodic/spatialmath"
)

// RelativePose returns the rotation and translation taking view1 camera coordinates to view2
// camera coordinates: R = R2·R1ᵀ, t = t2 − R·t1.
func RelativePose(view1, view2 *Calibration) (*mat.Dense, r3.Vector) {
	var rot mat.Dense
	rot.Mul(view2.RotationMatrix, view1.RotationMatrix.T())
	t1 := r3.Vector{X: view1.Extrinsics.Tx, Y: view1.Extrinsics.Ty, Z: view1.Extrinsics.Tz}
	t2 := r3.Vector{X: view2.Extrinsics.Tx, Y: view2.Extrinsics.Ty, Z: view2.Extrinsics.Tz}
	return &rot, t2.Sub(spatialmath.MulVec(&rot, t1))
}

// FundamentalMatrixFromCameras computes F = K2⁻ᵀ·[t]×·R·K1⁻¹ for the relative pose of the two
// views, scaled to unit Frobenius norm. Ideal pixels x1, x2 of one scene point satisfy x2ᵀ·F·x1 = 0.
func FundamentalMatrixFromCameras(view1, view2 *Calibration) (*mat.Dense, error) {
	rot, t := RelativePose(view1, view2)

	var k1Inv, k2Inv mat.Dense
	if err := k1Inv.Inverse(view1.IntrinsicMatrix); err != nil {
		return nil, errors.Wrap(err, "inverting intrinsic matrix of view 1")
	}
	if err := k2Inv.Inverse(view2.IntrinsicMatrix); err != nil {
		return nil, errors.Wrap(err, "inverting intrinsic matrix of view 2")
	}

	var ess, f mat.Dense
	ess.Mul(spatialmath.CrossProductMatrix(t), rot)
	f.Mul(k2Inv.T(), &ess)
	f.Mul(&f, &k1Inv)

	if norm := mat.Norm(&f, 2); norm > 0 {
		f.Scale(1/norm, &f)
	}
	return &f, nil
}

// EstimateFundamentalMatrix estimates F from at least 8 ideal pixel correspondences with the
// normalized eight point algorithm (Multiple View Geometry, Alg 11.1), rank 2 enforced and
// scaled to unit Frobenius norm.
func EstimateFundamentalMatrix(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.Errorf("point sets have different sizes: %d and %d", len(pts1), len(pts2))
	}
	if len(pts1) < 8 {
		return nil, errors.Errorf("need at least 8 correspondences, got %d", len(pts1))
	}
	n1, t1 := normalizePoints(pts1)
	n2, t2 := normalizePoints(pts2)

	a := mat.NewDense(len(pts1), 9, nil)
	for i := range n1 {
		u, v := n1[i], n2[i]
		a.SetRow(i, []float64{
			v.X * u.X, v.X * u.Y, v.X,
			v.Y * u.X, v.Y * u.Y, v.Y,
			u.X, u.Y, 1,
		})
	}
	// a may have fewer than 9 rows; pad so SVDFull exposes the whole null space
	if r, _ := a.Dims(); r < 9 {
		padded := mat.NewDense(9, 9, nil)
		padded.Slice(0, r, 0, 9).(*mat.Dense).Copy(a)
		a = padded
	}
	svdA, err := performSVD(a)
	if err != nil {
		return nil, err
	}
	f := mat.NewDense(3, 3, mat.Col(nil, 8, svdA.V))

	svdF, err := performSVD(f)
	if err != nil {
		return nil, err
	}
	svdF.S.Set(2, 2, 0)
	f.Mul(svdF.U, svdF.S)
	f.Mul(f, svdF.V.T())

	// undo normalization: T2ᵀ·F·T1
	f.Mul(t2.T(), f)
	f.Mul(f, t1)
	f.Scale(1/mat.Norm(f, 2), f)
	return f, nil
}

// normalizePoints moves the centroid to the origin and scales the mean distance to √2.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	var mu r2.Point
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1 / float64(len(pts)))

	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm()
	}
	d /= float64(len(pts))
	scale := 1.0
	if d > 0 {
		scale = math.Sqrt2 / d
	}

	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt.Sub(mu).Mul(scale)
	}
	return out, mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
}

// TriangulateDLT solves the homogeneous linear system built from two ideal pixel observations
// and their 3x4 projection matrices and returns the dehomogenized point. Each view contributes
// the rows x·P₃ − P₁ and y·P₃ − P₂, normalized to unit length. Degenerate geometry (parallel
// rays, a point at infinity) shows up as very large, infinite or NaN coordinates.
func TriangulateDLT(p1, p2 r2.Point, proj1, proj2 mat.Matrix) r3.Vector {
	a := mat.NewDense(4, 4, nil)
	setDLTRows(a, 0, p1, proj1)
	setDLTRows(a, 2, p2, proj2)

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return r3.Vector{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
	}
	var v mat.Dense
	svd.VTo(&v)
	w := v.At(3, 3)
	return r3.Vector{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}
}

func setDLTRows(a *mat.Dense, at int, p r2.Point, proj mat.Matrix) {
	rowX := make([]float64, 4)
	rowY := make([]float64, 4)
	for j := 0; j < 4; j++ {
		rowX[j] = p.X*proj.At(2, j) - proj.At(0, j)
		rowY[j] = p.Y*proj.At(2, j) - proj.At(1, j)
	}
	for _, row := range [][]float64{rowX, rowY} {
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}
	a.SetRow(at, rowX)
	a.SetRow(at+1, rowY)
}

// matsSVD stores the matrices of an SVD decomposition.
type matsSVD struct {
	U *mat.Dense
	V *mat.Dense
	S *mat.Dense
}

// performSVD fully decomposes m into U·S·Vᵀ.
func performSVD(m mat.Matrix) (*matsSVD, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, errors.New("singular value decomposition failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)
	r, c := m.Dims()
	s := mat.NewDense(r, c, nil)
	for i, val := range values {
		s.Set(i, i, val)
	}
	return &matsSVD{U: &u, V: &v, S: s}, nil
}
