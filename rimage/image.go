// Package rimage holds the gray-level image buffers and the subsets (patches) extracted from them
// for correlation.
package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Image2D is a dense, row-major, single channel float32 image.
type Image2D struct {
	data          []float32
	width, height int
}

// NewImage2D returns a zeroed image of the given size.
func NewImage2D(width, height int) *Image2D {
	return &Image2D{
		data:   make([]float32, width*height),
		width:  width,
		height: height,
	}
}

// NewImage2DFromData wraps row-major intensities without copying them.
func NewImage2DFromData(width, height int, data []float32) (*Image2D, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size (%d, %d)", width, height)
	}
	if len(data) != width*height {
		return nil, errors.Errorf("image data has %d values, expected %d x %d = %d", len(data), width, height, width*height)
	}
	return &Image2D{data: data, width: width, height: height}, nil
}

// NewImage2DFromStdImage converts an already decoded image to gray levels in [0, 255].
// The result is indexed from (0, 0) regardless of the source bounds origin.
func NewImage2DFromStdImage(img image.Image) *Image2D {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	out := NewImage2D(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.height; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+4*out.width]
		for x := 0; x < out.width; x++ {
			out.data[out.kxy(x, y)] = float32(row[4*x])
		}
	}
	return out
}

// In reports whether (x, y) is a valid pixel index.
func (i *Image2D) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image2D) kxy(x, y int) int {
	return (y * i.width) + x
}

// Bounds returns the image rectangle.
func (i *Image2D) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width returns the number of columns.
func (i *Image2D) Width() int {
	return i.width
}

// Height returns the number of rows.
func (i *Image2D) Height() int {
	return i.height
}

// GetXY returns the intensity at column x, row y. The caller keeps (x, y) in bounds.
func (i *Image2D) GetXY(x, y int) float32 {
	return i.data[i.kxy(x, y)]
}

// SetXY sets the intensity at column x, row y.
func (i *Image2D) SetXY(x, y int, v float32) {
	i.data[i.kxy(x, y)] = v
}

// Data returns the row-major backing slice.
func (i *Image2D) Data() []float32 {
	return i.data
}

// Bilinear interpolates the intensity at a sub-pixel location. It returns false when a
// neighbor with non-zero weight is outside the image.
func (i *Image2D) Bilinear(p r2.Point) (float64, bool) {
	x0, y0 := math.Floor(p.X), math.Floor(p.Y)
	x, y := int(x0), int(y0)
	dx, dy := p.X-x0, p.Y-y0
	x1, y1 := x, y
	if dx > 0 {
		x1++
	}
	if dy > 0 {
		y1++
	}
	if !i.In(x, y) || !i.In(x1, y1) {
		return 0, false
	}
	top := float64(i.GetXY(x, y))*(1-dx) + float64(i.GetXY(x1, y))*dx
	bottom := float64(i.GetXY(x, y1))*(1-dx) + float64(i.GetXY(x1, y1))*dx
	return top*(1-dy) + bottom*dy, true
}

// Image3D is a dense float32 volume indexed (x, y, z) with x varying fastest.
type Image3D struct {
	data             []float32
	dimX, dimY, dimZ int
}

// NewImage3D returns a zeroed volume of the given size.
func NewImage3D(dimX, dimY, dimZ int) *Image3D {
	return &Image3D{
		data: make([]float32, dimX*dimY*dimZ),
		dimX: dimX,
		dimY: dimY,
		dimZ: dimZ,
	}
}

// Dims returns the volume size along x, y and z.
func (v *Image3D) Dims() (int, int, int) {
	return v.dimX, v.dimY, v.dimZ
}

// In reports whether (x, y, z) is a valid voxel index.
func (v *Image3D) In(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.dimX && y < v.dimY && z < v.dimZ
}

func (v *Image3D) k(x, y, z int) int {
	return (z*v.dimY+y)*v.dimX + x
}

// GetXYZ returns the intensity of a voxel. The caller keeps the index in bounds.
func (v *Image3D) GetXYZ(x, y, z int) float32 {
	return v.data[v.k(x, y, z)]
}

// SetXYZ sets the intensity of a voxel.
func (v *Image3D) SetXYZ(x, y, z int, val float32) {
	v.data[v.k(x, y, z)] = val
}
