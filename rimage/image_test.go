package rimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestImage2DFromData(t *testing.T) {
	_, err := NewImage2DFromData(2, 2, []float32{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewImage2DFromData(0, 2, nil)
	test.That(t, err, test.ShouldNotBeNil)

	img, err := NewImage2DFromData(3, 2, []float32{0, 1, 2, 3, 4, 5})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.GetXY(2, 1), test.ShouldEqual, float32(5))
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 3, 2))
	test.That(t, img.In(3, 0), test.ShouldBeFalse)
}

func TestImage2DFromStdImage(t *testing.T) {
	src := image.NewGray(image.Rect(10, 20, 14, 23))
	src.SetGray(11, 21, color.Gray{Y: 200})
	img := NewImage2DFromStdImage(src)
	test.That(t, img.Width(), test.ShouldEqual, 4)
	test.That(t, img.Height(), test.ShouldEqual, 3)
	test.That(t, img.GetXY(1, 1), test.ShouldEqual, float32(200))
	test.That(t, img.GetXY(0, 0), test.ShouldEqual, float32(0))
}

func TestBilinear(t *testing.T) {
	img := rampImage(6, 6)
	v, ok := img.Bilinear(r2.Point{X: 2.5, Y: 3.25})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldAlmostEqual, 28.25)

	v, ok = img.Bilinear(r2.Point{X: 5, Y: 5})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 55.)

	_, ok = img.Bilinear(r2.Point{X: 5.5, Y: 1})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = img.Bilinear(r2.Point{X: -0.5, Y: 1})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestBilinearLastRowColumn(t *testing.T) {
	img := rampImage(4, 4)
	v, ok := img.Bilinear(r2.Point{X: 3, Y: 1.5})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldAlmostEqual, 31.5)

	v, ok = img.Bilinear(r2.Point{X: 1.5, Y: 3})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldAlmostEqual, 18.)

	_, ok = img.Bilinear(r2.Point{X: 3.5, Y: 1})
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = img.Bilinear(r2.Point{X: 1, Y: 3.5})
	test.That(t, ok, test.ShouldBeFalse)
}
