package poi

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Statistic summarizes one quantity over a POI queue.
type Statistic struct {
	Name   string
	Mean   float64
	StdDev float64
	P95    float64
	Max    float64
}

// Summarize computes the statistic of a series of values.
func Summarize(name string, values []float64) (Statistic, error) {
	data := stats.Float64Data(values)
	mean, err1 := data.Mean()
	sd, err2 := data.StandardDeviation()
	p95, err3 := data.Percentile(95)
	maxV, err4 := data.Max()
	if err := multierr.Combine(err1, err2, err3, err4); err != nil {
		return Statistic{}, errors.Wrapf(err, "summarizing %s", name)
	}
	return Statistic{Name: name, Mean: mean, StdDev: sd, P95: p95, Max: maxV}, nil
}

// Summary is a set of statistics of a reconstruction run.
type Summary []Statistic

// SummarizeDisplacements returns statistics of the displacement components and magnitude.
func SummarizeDisplacements(pois []POI2DS) (Summary, error) {
	u := make([]float64, len(pois))
	v := make([]float64, len(pois))
	w := make([]float64, len(pois))
	mag := make([]float64, len(pois))
	for i, p := range pois {
		u[i], v[i], w[i] = p.Displacement.X, p.Displacement.Y, p.Displacement.Z
		mag[i] = p.Displacement.Norm()
	}
	var out Summary
	for _, s := range []struct {
		name string
		vals []float64
	}{{"u", u}, {"v", v}, {"w", w}, {"|d|", mag}} {
		st, err := Summarize(s.name, s.vals)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// String renders the summary as a table.
func (s Summary) String() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Quantity", "Mean", "Std dev", "P95", "Max"})
	for _, st := range s {
		t.AppendRow(table.Row{
			st.Name,
			fmt.Sprintf("%.6f", st.Mean),
			fmt.Sprintf("%.6f", st.StdDev),
			fmt.Sprintf("%.6f", st.P95),
			fmt.Sprintf("%.6f", st.Max),
		})
	}
	return t.Render()
}
