package poi

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/stereodic/logging"
	"go.viam.com/stereodic/rimage/transform"
)

func TestAssemble3D(t *testing.T) {
	pois := []POI2DS{{Point: r2.Point{X: 1, Y: 2}}, {Point: r2.Point{X: 3, Y: 4}}}
	ref := []r3.Vector{{X: 0, Y: 0, Z: 1000}, {X: 1, Y: 1, Z: 1001}}
	tar := []r3.Vector{{X: 0.5, Y: -0.25, Z: 1002}, {X: 1, Y: 1, Z: 1001}}

	out, err := Assemble3D(pois, ref, tar)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, 2)
	test.That(t, out[0].Displacement, test.ShouldResemble, r3.Vector{X: 0.5, Y: -0.25, Z: 2})
	test.That(t, out[0].RefCoor, test.ShouldResemble, ref[0])
	test.That(t, out[0].TarCoor, test.ShouldResemble, tar[0])
	test.That(t, out[1].Displacement.Norm(), test.ShouldEqual, 0.)
	test.That(t, out[1].Point, test.ShouldResemble, r2.Point{X: 3, Y: 4})
	// input untouched
	test.That(t, pois[0].RefCoor, test.ShouldResemble, r3.Vector{})

	_, err = Assemble3D(pois, ref[:1], tar)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPOI2DTarget(t *testing.T) {
	pois := NewPOI2DQueue([]r2.Point{{X: 10, Y: 20}, {X: 30, Y: 40}})
	test.That(t, pois, test.ShouldHaveLength, 2)
	pois[1].Deformation.U = 1.5
	pois[1].Deformation.V = -2
	test.That(t, pois[0].Target(), test.ShouldResemble, r2.Point{X: 10, Y: 20})
	test.That(t, pois[1].Target(), test.ShouldResemble, r2.Point{X: 31.5, Y: 38})
}

func TestLoadPoints2D(t *testing.T) {
	in := "x,y\n10.5,20\n 30, 40.25,extra\n"
	pts, err := LoadPoints2D(strings.NewReader(in), DefaultDelimiter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pts, test.ShouldResemble, []r2.Point{{X: 10.5, Y: 20}, {X: 30, Y: 40.25}})

	pts, err = LoadPoints2D(strings.NewReader("1;2\n3;4\n"), ';')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pts, test.ShouldHaveLength, 2)

	_, err = LoadPoints2D(strings.NewReader("x,y\n1\n"), DefaultDelimiter)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = LoadPoints2D(strings.NewReader("x,y\n1,abc\n"), DefaultDelimiter)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line 2")

	var buf bytes.Buffer
	test.That(t, SavePoints2D(&buf, DefaultDelimiter, pts), test.ShouldBeNil)
	back, err := LoadPoints2D(&buf, DefaultDelimiter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, pts)
}

func TestPOI2DSTable(t *testing.T) {
	pois := []POI2DS{{
		Point: r2.Point{X: 100.125, Y: 200},
		Result: StereoResult{
			R2: r2.Point{X: 90, Y: 201}, T1: r2.Point{X: 101, Y: 199}, T2: r2.Point{X: 91, Y: 200.5},
			R1R2ZNCC: 0.99, R1T1ZNCC: 0.98, R1T2ZNCC: 0.97,
		},
		RefCoor:      r3.Vector{X: 1, Y: 2, Z: 1000},
		TarCoor:      r3.Vector{X: 1.1, Y: 2, Z: 1000.3},
		Displacement: r3.Vector{X: 0.1, Y: 0, Z: 0.3},
		Strain:       Strain3D{Exx: 1e-4, Eyz: -2e-5},
	}, {
		Point: r2.Point{X: 1.0 / 3, Y: math.Pi},
	}}

	var buf bytes.Buffer
	test.That(t, SavePOI2DSTable(&buf, '\t', pois), test.ShouldBeNil)
	header := strings.SplitN(buf.String(), "\n", 2)[0]
	test.That(t, header, test.ShouldEqual, strings.Join(POI2DSColumns, "\t"))

	back, err := LoadPOI2DSTable(&buf, '\t')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, pois)
}

func TestLoadStereoMatches(t *testing.T) {
	in := "r1_x,r1_y,r2_x,r2_y\n10,20,11,21\n"
	pois, err := LoadStereoMatches(strings.NewReader(in), DefaultDelimiter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pois, test.ShouldHaveLength, 1)
	test.That(t, pois[0].Result.T1, test.ShouldResemble, r2.Point{X: 10, Y: 20})
	test.That(t, pois[0].Result.T2, test.ShouldResemble, r2.Point{X: 11, Y: 21})

	pois, err = LoadStereoMatches(strings.NewReader("1,2,3,4,5,6,7,8\n"), DefaultDelimiter)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pois[0].Result.R2, test.ShouldResemble, r2.Point{X: 3, Y: 4})
	test.That(t, pois[0].Result.T2, test.ShouldResemble, r2.Point{X: 7, Y: 8})
}

func newTestPair(t *testing.T) *transform.Stereovision {
	t.Helper()
	logger := logging.NewTestLogger(t)
	intr := transform.CameraIntrinsics{Fx: 6670, Fy: 6670, Cx: 872, Cy: 580}
	view1, err := transform.NewCalibration(intr, transform.CameraExtrinsics{}, logger)
	test.That(t, err, test.ShouldBeNil)
	view2, err := transform.NewCalibration(intr, transform.CameraExtrinsics{Tx: -120}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, view1.Prepare(context.Background(), 1160, 1744), test.ShouldBeNil)
	test.That(t, view2.Prepare(context.Background(), 1160, 1744), test.ShouldBeNil)
	sv := transform.NewStereovision(view1, view2, 2, logger)
	test.That(t, sv.Prepare(), test.ShouldBeNil)
	return sv
}

func TestReconstruct(t *testing.T) {
	sv := newTestPair(t)
	view1, view2 := sv.Views()

	// view 2 sits 120 mm to the right, keep the scene in both maps
	ref := []r3.Vector{{X: 30, Y: 0, Z: 1000}, {X: 40, Y: -8, Z: 1010}, {X: 25, Y: 12, Z: 995}}
	move := r3.Vector{X: 0.2, Y: -0.1, Z: 0.5}
	pois := make([]POI2DS, len(ref))
	for i, x := range ref {
		pois[i].Point = view1.Project(x)
		pois[i].Result.R2 = view2.Project(x)
		pois[i].Result.T1 = view1.Project(x.Add(move))
		pois[i].Result.T2 = view2.Project(x.Add(move))
	}

	out, err := Reconstruct(context.Background(), sv, pois)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldHaveLength, len(ref))
	for i, p := range out {
		test.That(t, p.RefCoor.Sub(ref[i]).Norm(), test.ShouldBeLessThan, 1e-3)
		test.That(t, p.Displacement.Sub(move).Norm(), test.ShouldBeLessThan, 1e-3)
	}

	summary, err := SummarizeDisplacements(out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary, test.ShouldHaveLength, 4)
	test.That(t, summary[2].Name, test.ShouldEqual, "w")
	test.That(t, summary[2].Mean, test.ShouldAlmostEqual, 0.5, 1e-3)
	test.That(t, summary.String(), test.ShouldContainSubstring, "Quantity")

	pois[1].Result.T2 = r2.Point{X: 5000, Y: 5}
	_, err = Reconstruct(context.Background(), sv, pois)
	test.That(t, err, test.ShouldWrap, transform.ErrOutOfMap)
	test.That(t, err.Error(), test.ShouldContainSubstring, "target")
}

func TestEpipolarGuide(t *testing.T) {
	sv := newTestPair(t)
	view1, view2 := sv.Views()
	guide := NewEpipolarGuide(sv)

	x := r3.Vector{X: 5, Y: 7, Z: 1000}
	p1, p2 := view1.Project(x), view2.Project(x)

	l := guide.Line(p1)
	test.That(t, math.Hypot(l.X, l.Y), test.ShouldAlmostEqual, 1, 1e-12)

	// translation along X keeps the line horizontal
	foot := guide.Foot(p1, r2.Point{X: p2.X + 4, Y: p2.Y + 3})
	test.That(t, foot.X, test.ShouldAlmostEqual, p2.X+4, 1e-6)
	test.That(t, foot.Y, test.ShouldAlmostEqual, p2.Y, 1e-6)

	cands, err := guide.Candidates(p1, p2, 2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cands, test.ShouldHaveLength, 5)
	test.That(t, cands[0].X, test.ShouldAlmostEqual, p2.X, 1e-6)
	for _, c := range cands {
		test.That(t, sv.EpipolarDistance(p1, c), test.ShouldBeLessThan, 1e-6)
	}
	test.That(t, cands[3].Sub(cands[0]).Norm(), test.ShouldAlmostEqual, 2, 1e-9)

	_, err = guide.Candidates(p1, p2, 2, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := SummarizeDisplacements(nil)
	test.That(t, err, test.ShouldNotBeNil)

	st, err := Summarize("c", []float64{1, 2, 3, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.Mean, test.ShouldEqual, 2.5)
	test.That(t, st.Max, test.ShouldEqual, 4.)
}

func TestSaveMapPlot(t *testing.T) {
	pois := []POI2DS{
		{Point: r2.Point{X: 10, Y: 10}, Displacement: r3.Vector{Z: 0.1}},
		{Point: r2.Point{X: 20, Y: 10}, Displacement: r3.Vector{Z: 0.3}},
		{Point: r2.Point{X: 10, Y: 20}, Displacement: r3.Vector{Z: 0.2}},
	}
	path := filepath.Join(t.TempDir(), "w.png")
	test.That(t, SaveMapPlot(pois, "w", path), test.ShouldBeNil)
	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)

	test.That(t, SaveMapPlot(pois, "nope", path), test.ShouldNotBeNil)
	test.That(t, SaveMapPlot(nil, "w", path), test.ShouldNotBeNil)

	for _, q := range MapQuantities {
		_, err := Quantity(pois[0], q)
		test.That(t, err, test.ShouldBeNil)
	}
}
