// Package transform models calibrated cameras: pinhole intrinsics with rational lens
// distortion, world to camera extrinsics, dense undistortion maps and two view triangulation.
package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/stereodic/logging"
	"go.viam.com/stereodic/spatialmath"
	"go.viam.com/stereodic/utils"
)

const (
	// NumIntrinsics is the length of the flat intrinsics array.
	NumIntrinsics = 13
	// NumExtrinsics is the length of the flat extrinsics array.
	NumExtrinsics = 6

	// DefaultConvergence is the default stop threshold, in pixels, of the undistortion iteration.
	DefaultConvergence = 0.001
	// DefaultIteration is the default iteration cap of the undistortion iteration.
	DefaultIteration = 20
)

var (
	// ErrInvalidIntrinsics is when camera intrinsic parameters violate fx, fy > 0 or are not finite.
	ErrInvalidIntrinsics = errors.New("invalid camera intrinsic parameters")
	// ErrNotPrepared is returned when a derived artifact (undistortion map, matrices, fundamental matrix)
	// is queried before being built for the current parameters.
	ErrNotPrepared = errors.New("calibration is not prepared")
)

// NewInvalidIntrinsicsError is used when the intrinsics cannot describe a camera.
func NewInvalidIntrinsicsError(msg string) error {
	return errors.Wrap(ErrInvalidIntrinsics, msg)
}

// CameraIntrinsics holds the pinhole parameters (pixel units) and the lens distortion coefficients.
// The radial model is (1 + k1·r² + k2·r⁴ + k3·r⁶) / (1 + k4·r² + k5·r⁴ + k6·r⁶), tangential
// terms use p1 and p2.
type CameraIntrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Fs float64 `json:"fs"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`
	K5 float64 `json:"k5"`
	K6 float64 `json:"k6"`
	P1 float64 `json:"p1"`
	P2 float64 `json:"p2"`
}

// Array returns the intrinsics in the order fx, fy, fs, cx, cy, k1..k6, p1, p2.
func (ci CameraIntrinsics) Array() [NumIntrinsics]float64 {
	return [NumIntrinsics]float64{
		ci.Fx, ci.Fy, ci.Fs, ci.Cx, ci.Cy,
		ci.K1, ci.K2, ci.K3, ci.K4, ci.K5, ci.K6,
		ci.P1, ci.P2,
	}
}

// IntrinsicsFromArray is the inverse of CameraIntrinsics.Array.
func IntrinsicsFromArray(a [NumIntrinsics]float64) CameraIntrinsics {
	return CameraIntrinsics{
		Fx: a[0], Fy: a[1], Fs: a[2], Cx: a[3], Cy: a[4],
		K1: a[5], K2: a[6], K3: a[7], K4: a[8], K5: a[9], K6: a[10],
		P1: a[11], P2: a[12],
	}
}

// CheckValid checks the focal lengths are positive and every parameter is finite.
func (ci CameraIntrinsics) CheckValid() error {
	var errs error
	if !(ci.Fx > 0) {
		errs = multierr.Append(errs, NewInvalidIntrinsicsError(fmt.Sprintf("invalid focal length fx = %#v", ci.Fx)))
	}
	if !(ci.Fy > 0) {
		errs = multierr.Append(errs, NewInvalidIntrinsicsError(fmt.Sprintf("invalid focal length fy = %#v", ci.Fy)))
	}
	for i, v := range ci.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = multierr.Append(errs, NewInvalidIntrinsicsError(fmt.Sprintf("intrinsic parameter %d is not finite", i)))
		}
	}
	return errs
}

// HasDistortion reports whether any distortion coefficient is non-zero.
func (ci CameraIntrinsics) HasDistortion() bool {
	return ci.K1 != 0 || ci.K2 != 0 || ci.K3 != 0 || ci.K4 != 0 || ci.K5 != 0 || ci.K6 != 0 ||
		ci.P1 != 0 || ci.P2 != 0
}

// CameraExtrinsics is the world to camera transform Xc = R·Xw + t. The rotation is given as Euler
// angles in radians, composed as R = Rz·Ry·Rx. The reference camera keeps all zeros.
type CameraExtrinsics struct {
	Tx float64 `json:"tx"`
	Ty float64 `json:"ty"`
	Tz float64 `json:"tz"`
	Rx float64 `json:"rx"`
	Ry float64 `json:"ry"`
	Rz float64 `json:"rz"`
}

// Array returns the extrinsics in the order tx, ty, tz, rx, ry, rz.
func (ce CameraExtrinsics) Array() [NumExtrinsics]float64 {
	return [NumExtrinsics]float64{ce.Tx, ce.Ty, ce.Tz, ce.Rx, ce.Ry, ce.Rz}
}

// ExtrinsicsFromArray is the inverse of CameraExtrinsics.Array.
func ExtrinsicsFromArray(a [NumExtrinsics]float64) CameraExtrinsics {
	return CameraExtrinsics{Tx: a[0], Ty: a[1], Tz: a[2], Rx: a[3], Ry: a[4], Rz: a[5]}
}

// ExtrinsicsFromPose builds extrinsics from a rotation matrix and translation vector.
func ExtrinsicsFromPose(rot mat.Matrix, t r3.Vector) CameraExtrinsics {
	rx, ry, rz := spatialmath.RotationMatrixToEuler(rot)
	return CameraExtrinsics{Tx: t.X, Ty: t.Y, Tz: t.Z, Rx: rx, Ry: ry, Rz: rz}
}

// CheckValid checks every extrinsic parameter is finite.
func (ce CameraExtrinsics) CheckValid() error {
	for i, v := range ce.Array() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("extrinsic parameter %d is not finite", i)
		}
	}
	return nil
}

// Calibration is one camera's model: parameters, the matrices derived from them and the dense
// undistortion map used by Undistort.
//
// Intrinsics and Extrinsics may be edited directly, after which UpdateMatrices must be called;
// until then the projection and undistortion paths return ErrNotPrepared. A Calibration is not
// safe for configuration changes concurrent with queries: configure, Prepare, then fan out
// read-only queries.
type Calibration struct {
	Intrinsics CameraIntrinsics
	Extrinsics CameraExtrinsics

	IntrinsicMatrix   *mat.Dense // 3x3
	RotationMatrix    *mat.Dense // 3x3
	TranslationVector *mat.Dense // 3x1
	ProjectionMatrix  *mat.Dense // 3x4, K·[R|t]

	convergence float64
	iteration   int
	threads     int
	logger      logging.Logger

	// parameters the matrices were last derived from
	matricesFor struct {
		intrinsics CameraIntrinsics
		extrinsics CameraExtrinsics
	}
	generation uint64

	umap *undistortionMap
}

// NewCalibration creates a calibration from intrinsics and extrinsics and derives its matrices.
func NewCalibration(intrinsics CameraIntrinsics, extrinsics CameraExtrinsics, logger logging.Logger) (*Calibration, error) {
	if logger == nil {
		logger = logging.Global()
	}
	c := &Calibration{
		convergence: DefaultConvergence,
		iteration:   DefaultIteration,
		threads:     utils.ParallelFactor,
		logger:      logger,
	}
	if err := c.UpdateCalibration(intrinsics, extrinsics); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefaultCalibration returns a unit focal length camera at the world origin with no distortion.
func NewDefaultCalibration(logger logging.Logger) *Calibration {
	c, err := NewCalibration(CameraIntrinsics{Fx: 1, Fy: 1}, CameraExtrinsics{}, logger)
	if err != nil {
		panic(err) // impossible
	}
	return c
}

// UpdateIntrinsicMatrix recomputes K = [[fx fs cx] [0 fy cy] [0 0 1]].
func (c *Calibration) UpdateIntrinsicMatrix() {
	ci := c.Intrinsics
	c.IntrinsicMatrix = mat.NewDense(3, 3, []float64{
		ci.Fx, ci.Fs, ci.Cx,
		0, ci.Fy, ci.Cy,
		0, 0, 1,
	})
}

// UpdateRotationMatrix recomputes R from the extrinsic Euler angles.
func (c *Calibration) UpdateRotationMatrix() {
	c.RotationMatrix = spatialmath.EulerToRotationMatrix(c.Extrinsics.Rx, c.Extrinsics.Ry, c.Extrinsics.Rz)
}

// UpdateTranslationVector recomputes t.
func (c *Calibration) UpdateTranslationVector() {
	c.TranslationVector = mat.NewDense(3, 1, []float64{c.Extrinsics.Tx, c.Extrinsics.Ty, c.Extrinsics.Tz})
}

// UpdateProjectionMatrix recomputes P = K·[R|t] from the current K, R and t.
func (c *Calibration) UpdateProjectionMatrix() {
	var rt mat.Dense
	rt.Augment(c.RotationMatrix, c.TranslationVector)
	proj := mat.NewDense(3, 4, nil)
	proj.Mul(c.IntrinsicMatrix, &rt)
	c.ProjectionMatrix = proj
}

// UpdateMatrices recomputes every derived matrix from the current Intrinsics and Extrinsics.
func (c *Calibration) UpdateMatrices() {
	c.UpdateIntrinsicMatrix()
	c.UpdateRotationMatrix()
	c.UpdateTranslationVector()
	c.UpdateProjectionMatrix()
	c.matricesFor.intrinsics = c.Intrinsics
	c.matricesFor.extrinsics = c.Extrinsics
	c.generation++
}

// UpdateCalibration replaces both parameter sets and recomputes the matrices. An undistortion map
// built for other intrinsics is no longer usable until Prepare is called again.
func (c *Calibration) UpdateCalibration(intrinsics CameraIntrinsics, extrinsics CameraExtrinsics) error {
	if err := multierr.Combine(intrinsics.CheckValid(), extrinsics.CheckValid()); err != nil {
		return err
	}
	c.Intrinsics = intrinsics
	c.Extrinsics = extrinsics
	c.UpdateMatrices()
	return nil
}

// SetUndistortion configures the stop rule of the undistortion iteration: stop once a step moves
// the estimate by less than convergence pixels, or after iteration steps.
func (c *Calibration) SetUndistortion(convergence float64, iteration int) error {
	if !(convergence > 0) {
		return errors.Errorf("undistortion convergence must be positive, got %v", convergence)
	}
	if iteration < 1 {
		return errors.Errorf("undistortion iteration must be at least 1, got %d", iteration)
	}
	c.convergence = convergence
	c.iteration = iteration
	return nil
}

// Convergence returns the undistortion stop threshold in pixels.
func (c *Calibration) Convergence() float64 {
	return c.convergence
}

// Iteration returns the undistortion iteration cap.
func (c *Calibration) Iteration() int {
	return c.iteration
}

// SetThreads sets how many workers Prepare fans out to. Values <= 0 use utils.ParallelFactor.
func (c *Calibration) SetThreads(threads int) {
	c.threads = threads
}

// checkFresh reports ErrNotPrepared when the public parameters were edited without UpdateMatrices.
func (c *Calibration) checkFresh() error {
	if c.Intrinsics != c.matricesFor.intrinsics || c.Extrinsics != c.matricesFor.extrinsics {
		return errors.Wrap(ErrNotPrepared, "camera parameters changed since the last UpdateMatrices")
	}
	return nil
}

// ImageToSensor converts a point of the ideal image (retina) plane to pixel coordinates.
func (c *Calibration) ImageToSensor(p r2.Point) r2.Point {
	ci := c.Intrinsics
	return r2.Point{
		X: ci.Fx*p.X + ci.Fs*p.Y + ci.Cx,
		Y: ci.Fy*p.Y + ci.Cy,
	}
}

// SensorToImage converts pixel coordinates to the ideal image (retina) plane.
func (c *Calibration) SensorToImage(p r2.Point) r2.Point {
	ci := c.Intrinsics
	y := (p.Y - ci.Cy) / ci.Fy
	return r2.Point{
		X: (p.X - ci.Cx - ci.Fs*y) / ci.Fx,
		Y: y,
	}
}

// Project maps a world point to its ideal (undistorted) pixel coordinates through the projection
// matrix. Points on the camera plane map to infinite or NaN coordinates.
func (c *Calibration) Project(pt r3.Vector) r2.Point {
	p := c.ProjectionMatrix
	x := p.At(0, 0)*pt.X + p.At(0, 1)*pt.Y + p.At(0, 2)*pt.Z + p.At(0, 3)
	y := p.At(1, 0)*pt.X + p.At(1, 1)*pt.Y + p.At(1, 2)*pt.Z + p.At(1, 3)
	w := p.At(2, 0)*pt.X + p.At(2, 1)*pt.Y + p.At(2, 2)*pt.Z + p.At(2, 3)
	return r2.Point{X: x / w, Y: y / w}
}

// ProjectDistorted maps a world point to the pixel where the real, distorted lens images it.
func (c *Calibration) ProjectDistorted(pt r3.Vector) r2.Point {
	return c.Distort(c.Project(pt))
}

// CameraCenter returns the optical center in world coordinates, -Rᵀ·t.
func (c *Calibration) CameraCenter() r3.Vector {
	t := r3.Vector{X: c.Extrinsics.Tx, Y: c.Extrinsics.Ty, Z: c.Extrinsics.Tz}
	return spatialmath.MulVec(c.RotationMatrix.T(), t).Mul(-1)
}
