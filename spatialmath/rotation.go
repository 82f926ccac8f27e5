// Package spatialmath builds the rotation and skew matrices used by the camera model.
//
// Extrinsic rotations are stored either as three Euler angles (rx, ry, rz, radians) or as an
// R3 axis-angle (Rodrigues) vector whose direction is the axis and whose length is the angle.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// RotationX returns the right-handed rotation of angle theta about the X axis.
func RotationX(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// RotationY returns the right-handed rotation of angle theta about the Y axis.
func RotationY(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

// RotationZ returns the right-handed rotation of angle theta about the Z axis.
func RotationZ(theta float64) *mat.Dense {
	s, c := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// EulerToRotationMatrix composes R = Rz(rz)·Ry(ry)·Rx(rx), i.e. X is applied first.
func EulerToRotationMatrix(rx, ry, rz float64) *mat.Dense {
	var rot mat.Dense
	rot.Mul(RotationZ(rz), RotationY(ry))
	rot.Mul(&rot, RotationX(rx))
	return &rot
}

// RotationMatrixToEuler is the inverse of EulerToRotationMatrix. For ry = ±π/2 (gimbal lock)
// rx is set to zero and the whole remaining rotation is reported in rz.
func RotationMatrixToEuler(rot mat.Matrix) (rx, ry, rz float64) {
	r20 := rot.At(2, 0)
	switch {
	case r20 <= -1:
		ry = math.Pi / 2
		rz = math.Atan2(-rot.At(0, 1), rot.At(1, 1))
	case r20 >= 1:
		ry = -math.Pi / 2
		rz = math.Atan2(-rot.At(0, 1), rot.At(1, 1))
	default:
		ry = math.Asin(-r20)
		rx = math.Atan2(rot.At(2, 1), rot.At(2, 2))
		rz = math.Atan2(rot.At(1, 0), rot.At(0, 0))
	}
	return rx, ry, rz
}

// R3ToQuat converts an R3 axis-angle vector into a unit quaternion.
// See: https://www.euclideanspace.com/maths/geometry/rotations/conversions/angleToQuaternion/index.htm
func R3ToQuat(aa r3.Vector) quat.Number {
	theta := aa.Norm()
	if theta == 0 {
		return quat.Number{Real: 1}
	}
	sinA := math.Sin(theta / 2)
	return quat.Number{
		Real: math.Cos(theta / 2),
		Imag: aa.X / theta * sinA,
		Jmag: aa.Y / theta * sinA,
		Kmag: aa.Z / theta * sinA,
	}
}

// QuatToRotationMatrix converts a unit quaternion into a 3x3 rotation matrix.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RodriguesToRotationMatrix converts an R3 axis-angle vector into a rotation matrix.
func RodriguesToRotationMatrix(aa r3.Vector) *mat.Dense {
	return QuatToRotationMatrix(R3ToQuat(aa))
}

// CrossProductMatrix returns the skew symmetric matrix [p]x such that [p]x·v = p × v.
func CrossProductMatrix(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// MulVec multiplies a 3x3 matrix with a vector.
func MulVec(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}
