package transform

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereodic/logging"
)

func TestRecoverRelativePose(t *testing.T) {
	logger := logging.NewTestLogger(t)
	view1, err := NewCalibration(testIntrinsics1, CameraExtrinsics{}, logger)
	test.That(t, err, test.ShouldBeNil)
	extr := convergedRig(120, 1000)
	extr.Rx = 0.02
	view2, err := NewCalibration(testIntrinsics2, extr, logger)
	test.That(t, err, test.ShouldBeNil)

	var pts1, pts2 []r2.Point
	for _, x := range []float64{-300, 0, 250} {
		for _, y := range []float64{-200, 180} {
			for _, z := range []float64{600, 1500} {
				pt := r3.Vector{X: x, Y: y, Z: z + x/3}
				pts1 = append(pts1, view1.Project(pt))
				pts2 = append(pts2, view2.Project(pt))
			}
		}
	}

	rot, tr, err := RecoverRelativePose(pts1, pts2, view1.IntrinsicMatrix, view2.IntrinsicMatrix)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, rot.At(i, j), test.ShouldAlmostEqual, view2.RotationMatrix.At(i, j), 1e-4)
		}
	}
	want := r3.Vector{X: extr.Tx, Y: extr.Ty, Z: extr.Tz}.Normalize()
	test.That(t, tr.Sub(want).Norm(), test.ShouldBeLessThan, 1e-4)
	test.That(t, mat.Det(rot), test.ShouldAlmostEqual, 1, 1e-9)
}

func TestDecomposeEssentialMatrix(t *testing.T) {
	logger := logging.NewTestLogger(t)
	view1 := NewDefaultCalibration(logger)
	view2, err := NewCalibration(CameraIntrinsics{Fx: 1, Fy: 1}, CameraExtrinsics{Tx: -1, Rz: 0.3}, logger)
	test.That(t, err, test.ShouldBeNil)

	f, err := FundamentalMatrixFromCameras(view1, view2)
	test.That(t, err, test.ShouldBeNil)
	ess, err := EssentialFromFundamental(view1.IntrinsicMatrix, view2.IntrinsicMatrix, f)
	test.That(t, err, test.ShouldBeNil)

	rot1, rot2, tr, err := DecomposeEssentialMatrix(ess)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tr.Norm(), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, mat.Det(rot1), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, mat.Det(rot2), test.ShouldAlmostEqual, 1, 1e-9)
	// t is along the baseline
	test.That(t, tr.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, tr.Z, test.ShouldAlmostEqual, 0, 1e-9)
	// one candidate is the true rotation
	match := func(r *mat.Dense) bool {
		return mat.EqualApprox(r, view2.RotationMatrix, 1e-9)
	}
	test.That(t, match(rot1) || match(rot2), test.ShouldBeTrue)
}
