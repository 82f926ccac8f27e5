package transform

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereodic/logging"
	"go.viam.com/stereodic/utils"
)

// Stereovision triangulates matched observations of a calibrated camera pair. It borrows
// the two calibrations: the caller keeps them alive and does not reconfigure them while
// reconstructing.
type Stereovision struct {
	view1, view2 *Calibration

	FundamentalMatrix *mat.Dense

	threads int
	logger  logging.Logger

	prepared                 bool
	generation1, generation2 uint64
}

// NewStereovision binds a camera pair. Prepare must be called before reconstructing.
// A threads value <= 0 uses utils.ParallelFactor.
func NewStereovision(view1, view2 *Calibration, threads int, logger logging.Logger) *Stereovision {
	if logger == nil {
		logger = logging.Global()
	}
	return &Stereovision{
		view1:   view1,
		view2:   view2,
		threads: threads,
		logger:  logger,
	}
}

// UpdateCameras re-points the pair. The stereo setup is unprepared afterwards.
func (sv *Stereovision) UpdateCameras(view1, view2 *Calibration) {
	sv.view1 = view1
	sv.view2 = view2
	sv.prepared = false
}

// Views returns the bound calibrations.
func (sv *Stereovision) Views() (*Calibration, *Calibration) {
	return sv.view1, sv.view2
}

// SetThreads sets how many workers ReconstructAll fans out to.
func (sv *Stereovision) SetThreads(threads int) {
	sv.threads = threads
}

// UpdateFundamentalMatrix recomputes the fundamental matrix from the bound calibrations.
func (sv *Stereovision) UpdateFundamentalMatrix() error {
	if sv.view1 == nil || sv.view2 == nil {
		return errors.New("stereovision needs two cameras")
	}
	f, err := FundamentalMatrixFromCameras(sv.view1, sv.view2)
	if err != nil {
		return err
	}
	sv.FundamentalMatrix = f
	return nil
}

// Prepare rebuilds the fundamental matrix and records the camera states it was built for.
// Reconfiguring either camera afterwards requires another Prepare.
func (sv *Stereovision) Prepare() error {
	if sv.view1 == nil || sv.view2 == nil {
		return errors.New("stereovision needs two cameras")
	}
	if err := multiCheckFresh(sv.view1, sv.view2); err != nil {
		return err
	}
	if err := sv.UpdateFundamentalMatrix(); err != nil {
		return err
	}
	sv.generation1 = sv.view1.generation
	sv.generation2 = sv.view2.generation
	sv.prepared = true
	return nil
}

func multiCheckFresh(views ...*Calibration) error {
	for i, v := range views {
		if err := v.checkFresh(); err != nil {
			return errors.Wrapf(err, "view %d", i+1)
		}
	}
	return nil
}

func (sv *Stereovision) checkPrepared() error {
	if !sv.prepared {
		return errors.Wrap(ErrNotPrepared, "stereovision was not prepared")
	}
	if sv.view1.generation != sv.generation1 || sv.view2.generation != sv.generation2 {
		return errors.Wrap(ErrNotPrepared, "camera changed since stereovision was prepared")
	}
	return multiCheckFresh(sv.view1, sv.view2)
}

// Reconstruct undistorts a pair of observed pixel coordinates through each camera's map and
// triangulates the world point. Degenerate geometry is reported through non-finite
// coordinates, not an error.
func (sv *Stereovision) Reconstruct(p1, p2 r2.Point) (r3.Vector, error) {
	if err := sv.checkPrepared(); err != nil {
		return r3.Vector{}, err
	}
	u1, err := sv.view1.Undistort(p1)
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "view 1")
	}
	u2, err := sv.view2.Undistort(p2)
	if err != nil {
		return r3.Vector{}, errors.Wrap(err, "view 2")
	}
	return TriangulateDLT(u1, u2, sv.view1.ProjectionMatrix, sv.view2.ProjectionMatrix), nil
}

// ReconstructAll triangulates pts1[i] with pts2[i] for every i, fanning contiguous index
// ranges out to the configured workers. Output order follows input order. If any pair fails
// the first failing index is reported.
func (sv *Stereovision) ReconstructAll(ctx context.Context, pts1, pts2 []r2.Point) ([]r3.Vector, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.Errorf("point lists differ in length: %d and %d", len(pts1), len(pts2))
	}
	if err := sv.checkPrepared(); err != nil {
		return nil, err
	}
	start := time.Now()
	out := make([]r3.Vector, len(pts1))
	errs := make([]error, len(pts1))
	err := utils.GroupWorkParallel(ctx, sv.threads, len(pts1), nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			return func(memberNum, i int) {
				out[i], errs[i] = sv.Reconstruct(pts1[i], pts2[i])
			}, nil
		})
	if err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			sv.logger.Warnw("reconstruction failed", "index", i, "error", err)
			return nil, errors.Wrapf(err, "point %d", i)
		}
	}
	sv.logger.Debugw("reconstructed points", "count", len(out), "duration", time.Since(start))
	return out, nil
}

// EpipolarLine returns the line l = F·[p1, 1] in view 2 on which the ideal match of the ideal
// view 1 point p1 lies, as coefficients (a, b, c) of a·x + b·y + c = 0.
func (sv *Stereovision) EpipolarLine(p1 r2.Point) r3.Vector {
	f := sv.FundamentalMatrix
	return r3.Vector{
		X: f.At(0, 0)*p1.X + f.At(0, 1)*p1.Y + f.At(0, 2),
		Y: f.At(1, 0)*p1.X + f.At(1, 1)*p1.Y + f.At(1, 2),
		Z: f.At(2, 0)*p1.X + f.At(2, 1)*p1.Y + f.At(2, 2),
	}
}

// EpipolarResidual returns p2ᵀ·F·p1 for ideal pixel coordinates.
func (sv *Stereovision) EpipolarResidual(p1, p2 r2.Point) float64 {
	l := sv.EpipolarLine(p1)
	return l.X*p2.X + l.Y*p2.Y + l.Z
}

// EpipolarDistance returns the distance in pixels from p2 to the epipolar line of p1.
func (sv *Stereovision) EpipolarDistance(p1, p2 r2.Point) float64 {
	l := sv.EpipolarLine(p1)
	return math.Abs(l.X*p2.X+l.Y*p2.Y+l.Z) / math.Hypot(l.X, l.Y)
}

// ReprojectionError projects a world point into both views (with distortion) and returns the
// pixel distances to the observed coordinates.
func (sv *Stereovision) ReprojectionError(pt r3.Vector, p1, p2 r2.Point) (float64, float64) {
	return sv.view1.ProjectDistorted(pt).Sub(p1).Norm(), sv.view2.ProjectDistorted(pt).Sub(p2).Norm()
}
