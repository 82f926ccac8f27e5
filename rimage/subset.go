package rimage

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DegenerateNormThreshold is the zero-mean norm under which a subset is considered flat.
const DegenerateNormThreshold = 1e-6

// ErrSubsetOutOfBounds is returned when a subset window does not lie entirely inside its image.
var ErrSubsetOutOfBounds = errors.New("subset window is outside the image")

// IsDegenerateNorm reports whether a zero-mean norm is too small to be used as a
// correlation denominator.
func IsDegenerateNorm(norm float64) bool {
	return !(norm >= DegenerateNormThreshold)
}

// Subset2D is a (2·RadiusY+1) x (2·RadiusX+1) window of intensities centered on a point.
type Subset2D struct {
	Center           r2.Point
	RadiusX, RadiusY int
	Height, Width    int
	Size             int

	// Data is Height x Width, row r holding image row center.y - RadiusY + r.
	Data *mat.Dense
	// ZeroMean holds Data minus its mean, written by ZeroMeanNorm.
	ZeroMean *mat.Dense
	// Norm is the last value returned by ZeroMeanNorm.
	Norm float64
}

// NewSubset2D allocates an empty subset. Radii must be non-negative.
func NewSubset2D(center r2.Point, radiusX, radiusY int) (*Subset2D, error) {
	if radiusX < 0 || radiusY < 0 {
		return nil, errors.Errorf("subset radii must be non-negative, got (%d, %d)", radiusX, radiusY)
	}
	height, width := 2*radiusY+1, 2*radiusX+1
	return &Subset2D{
		Center:   center,
		RadiusX:  radiusX,
		RadiusY:  radiusY,
		Height:   height,
		Width:    width,
		Size:     height * width,
		Data:     mat.NewDense(height, width, nil),
		ZeroMean: mat.NewDense(height, width, nil),
	}, nil
}

// TopLeft returns the pixel index of the first window sample. The center is rounded to the
// nearest pixel.
func (s *Subset2D) TopLeft() (int, int) {
	return int(math.Round(s.Center.X)) - s.RadiusX, int(math.Round(s.Center.Y)) - s.RadiusY
}

// Fill copies the window intensities from img. The whole window must be inside the image;
// it is never clamped, since that would bias the correlation statistics.
func (s *Subset2D) Fill(img *Image2D) error {
	x0, y0 := s.TopLeft()
	if !img.In(x0, y0) || !img.In(x0+s.Width-1, y0+s.Height-1) {
		return errors.Wrapf(ErrSubsetOutOfBounds, "window [%d,%d]x[%d,%d] in %dx%d image",
			x0, x0+s.Width-1, y0, y0+s.Height-1, img.Width(), img.Height())
	}
	raw := s.Data.RawMatrix()
	for r := 0; r < s.Height; r++ {
		row := raw.Data[r*raw.Stride : r*raw.Stride+s.Width]
		for c := range row {
			row[c] = float64(img.GetXY(x0+c, y0+r))
		}
	}
	return nil
}

// ZeroMeanNorm writes Data minus its mean into ZeroMean and returns
// sqrt(sum((v - mean)^2)), also cached in Norm. Data is left untouched. A flat window yields a
// norm at or near zero, see IsDegenerateNorm.
func (s *Subset2D) ZeroMeanNorm() float64 {
	s.ZeroMean.Copy(s.Data)
	s.Norm = zeroMeanNorm(s.ZeroMean.RawMatrix().Data)
	return s.Norm
}

// Subset3D is the cuboid counterpart of Subset2D.
type Subset3D struct {
	Center                    r3.Vector
	RadiusX, RadiusY, RadiusZ int
	DimX, DimY, DimZ          int
	Size                      int

	// Data is indexed (x, y, z) with x varying fastest, see At.
	Data []float64
	// ZeroMean holds Data minus its mean, written by ZeroMeanNorm.
	ZeroMean []float64
	// Norm is the last value returned by ZeroMeanNorm.
	Norm float64
}

// NewSubset3D allocates an empty cuboid subset. Radii must be non-negative.
func NewSubset3D(center r3.Vector, radiusX, radiusY, radiusZ int) (*Subset3D, error) {
	if radiusX < 0 || radiusY < 0 || radiusZ < 0 {
		return nil, errors.Errorf("subset radii must be non-negative, got (%d, %d, %d)", radiusX, radiusY, radiusZ)
	}
	dimX, dimY, dimZ := 2*radiusX+1, 2*radiusY+1, 2*radiusZ+1
	return &Subset3D{
		Center:   center,
		RadiusX:  radiusX,
		RadiusY:  radiusY,
		RadiusZ:  radiusZ,
		DimX:     dimX,
		DimY:     dimY,
		DimZ:     dimZ,
		Size:     dimX * dimY * dimZ,
		Data:     make([]float64, dimX*dimY*dimZ),
		ZeroMean: make([]float64, dimX*dimY*dimZ),
	}, nil
}

// At returns the sample at window offset (x, y, z), each in [0, Dim).
func (s *Subset3D) At(x, y, z int) float64 {
	return s.Data[(z*s.DimY+y)*s.DimX+x]
}

// Origin returns the voxel index of the first window sample.
func (s *Subset3D) Origin() (int, int, int) {
	return int(math.Round(s.Center.X)) - s.RadiusX,
		int(math.Round(s.Center.Y)) - s.RadiusY,
		int(math.Round(s.Center.Z)) - s.RadiusZ
}

// Fill copies the cuboid intensities from vol. The whole window must be inside the volume.
func (s *Subset3D) Fill(vol *Image3D) error {
	x0, y0, z0 := s.Origin()
	if !vol.In(x0, y0, z0) || !vol.In(x0+s.DimX-1, y0+s.DimY-1, z0+s.DimZ-1) {
		dx, dy, dz := vol.Dims()
		return errors.Wrapf(ErrSubsetOutOfBounds, "window origin (%d,%d,%d) size (%d,%d,%d) in %dx%dx%d volume",
			x0, y0, z0, s.DimX, s.DimY, s.DimZ, dx, dy, dz)
	}
	i := 0
	for z := 0; z < s.DimZ; z++ {
		for y := 0; y < s.DimY; y++ {
			for x := 0; x < s.DimX; x++ {
				s.Data[i] = float64(vol.GetXYZ(x0+x, y0+y, z0+z))
				i++
			}
		}
	}
	return nil
}

// ZeroMeanNorm writes Data minus its mean into ZeroMean and returns its L2 norm.
func (s *Subset3D) ZeroMeanNorm() float64 {
	copy(s.ZeroMean, s.Data)
	s.Norm = zeroMeanNorm(s.ZeroMean)
	return s.Norm
}

func zeroMeanNorm(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := floats.Sum(data) / float64(len(data))
	floats.AddConst(-mean, data)
	return floats.Norm(data, 2)
}
