package trace

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// Recorder keeps the observed samples in memory.
type Recorder struct {
	params  []parameter.Handle
	sources []Columns
	names   []string
	iters   []int
	series  [][]float64
	row     []float64
}

// NewRecorder creates a recorder of the given parameters and sources.
func NewRecorder(params []parameter.Handle, sources ...Columns) *Recorder {
	return &Recorder{
		params:  append([]parameter.Handle(nil), params...),
		sources: sources,
	}
}

// Observe records a sample.
func (r *Recorder) Observe(iter int, logDensity float64, store *parameter.Store) error {
	if r.names == nil {
		r.names = header(store, r.params, r.sources)[1:]
		r.series = make([][]float64, len(r.names))
	}
	r.row = append(r.row[:0], logDensity)
	var err error
	r.row, err = row(r.row, store, r.params, r.sources)
	if err != nil {
		return err
	}
	if len(r.row) != len(r.names) {
		return errors.Errorf("sample at iteration %d has %d columns, expected %d", iter, len(r.row), len(r.names))
	}
	r.iters = append(r.iters, iter)
	for i, v := range r.row {
		r.series[i] = append(r.series[i], v)
	}
	return nil
}

// Names returns the recorded column names.
func (r *Recorder) Names() []string {
	return r.names
}

// Len returns the number of samples.
func (r *Recorder) Len() int {
	return len(r.iters)
}

// Series returns the samples of a column, or nil if there is no such
// column.
func (r *Recorder) Series(name string) []float64 {
	for i, n := range r.names {
		if n == name {
			return r.series[i]
		}
	}
	return nil
}

// Summary is a column summary.
type Summary struct {
	Name     string
	Mean, SD float64
	Min, Max float64
}

// Summarize summarizes every column, skipping the first burnin
// fraction of samples.
func (r *Recorder) Summarize(burnin float64) []Summary {
	start := int(burnin * float64(r.Len()))
	res := make([]Summary, 0, len(r.names))
	for i, name := range r.names {
		x := r.series[i][start:]
		s := Summary{Name: name}
		if len(x) > 0 {
			s.Mean, s.SD = stat.MeanStdDev(x, nil)
			s.Min, s.Max = x[0], x[0]
			for _, v := range x {
				if v < s.Min {
					s.Min = v
				}
				if v > s.Max {
					s.Max = v
				}
			}
		}
		res = append(res, s)
	}
	return res
}

// Plot saves trace plots of the named columns (all columns if none are
// given) to a png, svg or pdf file, depending on the extension.
func (r *Recorder) Plot(path string, names ...string) error {
	if len(names) == 0 {
		names = r.names
	}
	p := plot.New()
	p.Title.Text = "Trace"
	p.X.Label.Text = "iteration"

	var lines []interface{}
	for _, name := range names {
		y := r.Series(name)
		if y == nil {
			return errors.Errorf("no column %s", name)
		}
		pts := make(plotter.XYs, len(y))
		for i, v := range y {
			pts[i].X = float64(r.iters[i])
			pts[i].Y = v
		}
		lines = append(lines, name, pts)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return errors.Wrap(err, "cannot create trace plot")
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot save trace plot %s", path)
	}
	log.Infof("Saved trace plot to %s", path)
	return nil
}
