package poi

import (
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// MapQuantities lists the quantities SaveMapPlot can color a map by.
var MapQuantities = []string{"u", "v", "w", "r1r2_zncc", "r1t1_zncc", "r1t2_zncc", "exx", "eyy", "ezz", "exy", "eyz", "ezx"}

// Quantity returns the named per POI value of a stereo POI.
func Quantity(p POI2DS, name string) (float64, error) {
	switch name {
	case "u":
		return p.Displacement.X, nil
	case "v":
		return p.Displacement.Y, nil
	case "w":
		return p.Displacement.Z, nil
	case "r1r2_zncc":
		return p.Result.R1R2ZNCC, nil
	case "r1t1_zncc":
		return p.Result.R1T1ZNCC, nil
	case "r1t2_zncc":
		return p.Result.R1T2ZNCC, nil
	case "exx":
		return p.Strain.Exx, nil
	case "eyy":
		return p.Strain.Eyy, nil
	case "ezz":
		return p.Strain.Ezz, nil
	case "exy":
		return p.Strain.Exy, nil
	case "eyz":
		return p.Strain.Eyz, nil
	case "ezx":
		return p.Strain.Ezx, nil
	default:
		return 0, errors.Errorf("unknown quantity %q", name)
	}
}

// SaveMapPlot draws every POI at its view 1 reference location, colored by the named quantity,
// and saves the figure. The format follows the file extension (png, svg, pdf, ...).
func SaveMapPlot(pois []POI2DS, quantity, path string) error {
	if len(pois) == 0 {
		return errors.New("no POIs to plot")
	}
	xys := make(plotter.XYs, len(pois))
	values := make([]float64, len(pois))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, p := range pois {
		v, err := Quantity(p, quantity)
		if err != nil {
			return err
		}
		xys[i] = plotter.XY{X: p.X, Y: p.Y}
		values[i] = v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if !(hi > lo) {
		hi = lo + 1
	}
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(lo)
	cmap.SetMax(hi)

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		c, err := cmap.At(values[i])
		if err != nil {
			c = color.Black
		}
		return draw.GlyphStyle{Color: c, Radius: vg.Points(2), Shape: draw.CircleGlyph{}}
	}

	p := plot.New()
	p.Title.Text = quantity
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	// image rows grow downwards
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(scatter)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
