package poi

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// DefaultDelimiter separates table columns unless told otherwise.
const DefaultDelimiter = ','

// POI2DSColumns is the header of a stereo POI table.
var POI2DSColumns = []string{
	"x", "y", "u", "v", "w",
	"r1r2_zncc", "r1t1_zncc", "r1t2_zncc",
	"r2_x", "r2_y", "t1_x", "t1_y", "t2_x", "t2_y",
	"ref_x", "ref_y", "ref_z", "tar_x", "tar_y", "tar_z",
	"exx", "eyy", "ezz", "exy", "eyz", "ezx",
}

func newReader(r io.Reader, delimiter rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr
}

func parseFloats(record []string, n int) ([]float64, error) {
	if len(record) < n {
		return nil, errors.Errorf("expected at least %d columns, got %d", n, len(record))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// isHeader reports whether a first record is a column header rather than data.
func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}

// LoadPoints2D reads POI locations, one "x,y" pair per line; further columns are ignored and
// a header line is skipped.
func LoadPoints2D(r io.Reader, delimiter rune) ([]r2.Point, error) {
	records, err := newReader(r, delimiter).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading point table")
	}
	var pts []r2.Point
	for i, rec := range records {
		if i == 0 && isHeader(rec) {
			continue
		}
		v, err := parseFloats(rec, 2)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		pts = append(pts, r2.Point{X: v[0], Y: v[1]})
	}
	return pts, nil
}

// SavePoints2D writes one "x,y" line per point after a header.
func SavePoints2D(w io.Writer, delimiter rune, pts []r2.Point) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write([]string{"x", "y"}); err != nil {
		return err
	}
	for _, p := range pts {
		if err := cw.Write([]string{formatFloat(p.X), formatFloat(p.Y)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// SavePOI2DSTable writes stereo POIs with the POI2DSColumns header.
func SavePOI2DSTable(w io.Writer, delimiter rune, pois []POI2DS) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(POI2DSColumns); err != nil {
		return err
	}
	row := make([]string, len(POI2DSColumns))
	for _, p := range pois {
		vals := []float64{
			p.X, p.Y, p.Displacement.X, p.Displacement.Y, p.Displacement.Z,
			p.Result.R1R2ZNCC, p.Result.R1T1ZNCC, p.Result.R1T2ZNCC,
			p.Result.R2.X, p.Result.R2.Y, p.Result.T1.X, p.Result.T1.Y, p.Result.T2.X, p.Result.T2.Y,
			p.RefCoor.X, p.RefCoor.Y, p.RefCoor.Z, p.TarCoor.X, p.TarCoor.Y, p.TarCoor.Z,
			p.Strain.Exx, p.Strain.Eyy, p.Strain.Ezz, p.Strain.Exy, p.Strain.Eyz, p.Strain.Ezx,
		}
		for i, v := range vals {
			row[i] = formatFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadPOI2DSTable reads a table written by SavePOI2DSTable.
func LoadPOI2DSTable(r io.Reader, delimiter rune) ([]POI2DS, error) {
	records, err := newReader(r, delimiter).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading POI table")
	}
	var pois []POI2DS
	for i, rec := range records {
		if i == 0 && isHeader(rec) {
			continue
		}
		v, err := parseFloats(rec, len(POI2DSColumns))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		pois = append(pois, POI2DS{
			Point:        r2.Point{X: v[0], Y: v[1]},
			Displacement: r3.Vector{X: v[2], Y: v[3], Z: v[4]},
			Result: StereoResult{
				R1R2ZNCC: v[5], R1T1ZNCC: v[6], R1T2ZNCC: v[7],
				R2: r2.Point{X: v[8], Y: v[9]},
				T1: r2.Point{X: v[10], Y: v[11]},
				T2: r2.Point{X: v[12], Y: v[13]},
			},
			RefCoor: r3.Vector{X: v[14], Y: v[15], Z: v[16]},
			TarCoor: r3.Vector{X: v[17], Y: v[18], Z: v[19]},
			Strain: Strain3D{
				Exx: v[20], Eyy: v[21], Ezz: v[22],
				Exy: v[23], Eyz: v[24], Ezx: v[25],
			},
		})
	}
	return pois, nil
}

// LoadStereoMatches reads matched observations for reconstruction, one line per POI with
// columns r1_x, r1_y, r2_x, r2_y, t1_x, t1_y, t2_x, t2_y. Only the reference pair is required;
// missing target columns leave the target equal to the reference.
func LoadStereoMatches(r io.Reader, delimiter rune) ([]POI2DS, error) {
	records, err := newReader(r, delimiter).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading match table")
	}
	var pois []POI2DS
	for i, rec := range records {
		if i == 0 && isHeader(rec) {
			continue
		}
		n := 4
		if len(rec) >= 8 {
			n = 8
		}
		v, err := parseFloats(rec, n)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		p := POI2DS{Point: r2.Point{X: v[0], Y: v[1]}}
		p.Result.R2 = r2.Point{X: v[2], Y: v[3]}
		p.Result.T1, p.Result.T2 = p.Point, p.Result.R2
		if n == 8 {
			p.Result.T1 = r2.Point{X: v[4], Y: v[5]}
			p.Result.T2 = r2.Point{X: v[6], Y: v[7]}
		}
		pois = append(pois, p)
	}
	return pois, nil
}
