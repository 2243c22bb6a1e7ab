package dirichlet

import (
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/dist"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// DefaultColumns is the number of clusters reported by the
// diagnostics columns.
const DefaultColumns = 5

// Prior is the Dirichlet process prior of the assignments and the
// realized values.
type Prior struct {
	z, theta, intensity parameter.Handle
	base                BaseMeasure
	lf                  dist.LogFactorials
	st                  state
	// Columns is the number of largest clusters reported by
	// ColumnNames and ColumnValues.
	Columns int
}

// NewPrior creates a Dirichlet process prior.
func NewPrior(store *parameter.Store, z, theta, intensity parameter.Handle, base BaseMeasure) (*Prior, error) {
	if err := checkParameters(store, z, theta, intensity, base.Dim()); err != nil {
		return nil, err
	}
	return &Prior{
		z:         z,
		theta:     theta,
		intensity: intensity,
		base:      base,
		Columns:   DefaultColumns,
	}, nil
}

// checkParameters validates the dimensions of the Dirichlet process
// parameters.
func checkParameters(store *parameter.Store, z, theta, intensity parameter.Handle, dim int) error {
	if dim <= 0 {
		return errors.Wrapf(operator.ErrConfiguration, "cluster parameter dimension %d", dim)
	}
	if n := store.Get(z).Dim(); n == 0 {
		return errors.Wrapf(operator.ErrConfiguration, "%s: no observations", store.Get(z).Name())
	}
	if d := store.Get(intensity).Dim(); d != 1 {
		return errors.Wrapf(operator.ErrConfiguration, "%s should be a scalar, has dimension %d",
			store.Get(intensity).Name(), d)
	}
	var st state
	return errors.WithMessage(st.load(store.Get(z), store.Get(theta), dim), "initial configuration")
}

// CategoriesLogDensity returns the Chinese restaurant process log
// probability of the assignments,
//
//	K*log(g) + sum_k log((n_k-1)!) - sum_{i=1}^{N} log(g+i-1).
func (p *Prior) CategoriesLogDensity(store *parameter.Store) (float64, error) {
	if err := p.st.load(store.Get(p.z), store.Get(p.theta), p.base.Dim()); err != nil {
		return 0, err
	}
	return p.crp(store.Get(p.intensity).Get(0)), nil
}

func (p *Prior) crp(g float64) float64 {
	if !(g > 0) {
		return math.Inf(-1)
	}
	n := len(p.st.labels)
	l := float64(p.st.K()) * math.Log(g)
	for _, c := range p.st.counts {
		l += p.lf.At(c - 1)
	}
	for i := 1; i <= n; i++ {
		l -= math.Log(g + float64(i) - 1)
	}
	return l
}

// RealizedValuesLogDensity returns the base measure log density of
// every realized cluster parameter.
func (p *Prior) RealizedValuesLogDensity(store *parameter.Store) (float64, error) {
	if err := p.st.load(store.Get(p.z), store.Get(p.theta), p.base.Dim()); err != nil {
		return 0, err
	}
	return p.realized(), nil
}

func (p *Prior) realized() float64 {
	l := 0.0
	for _, v := range p.st.values {
		l += p.base.LogDensity(v)
	}
	return l
}

// LogDensity returns the sum of the categories and the realized values
// log densities.
func (p *Prior) LogDensity(store *parameter.Store) (float64, error) {
	if err := p.st.load(store.Get(p.z), store.Get(p.theta), p.base.Dim()); err != nil {
		return 0, err
	}
	return p.crp(store.Get(p.intensity).Get(0)) + p.realized(), nil
}

// ColumnNames returns the names of the diagnostics columns: number of
// clusters, intensity, sizes of the largest clusters and their realized
// values.
func (p *Prior) ColumnNames(store *parameter.Store) []string {
	prefix := store.Get(p.z).Name()
	names := []string{prefix + ".K", store.Get(p.intensity).Name()}
	for c := 0; c < p.Columns; c++ {
		names = append(names, prefix+".size."+strconv.Itoa(c))
	}
	theta := store.Get(p.theta).Name()
	for c := 0; c < p.Columns; c++ {
		for j := 0; j < p.base.Dim(); j++ {
			names = append(names, theta+"."+strconv.Itoa(c)+"."+strconv.Itoa(j))
		}
	}
	return names
}

// ColumnValues returns the diagnostics columns. Clusters are ordered by
// decreasing size; missing clusters have size 0 and NaN values.
func (p *Prior) ColumnValues(store *parameter.Store) ([]float64, error) {
	if err := p.st.load(store.Get(p.z), store.Get(p.theta), p.base.Dim()); err != nil {
		return nil, err
	}
	order := make([]int, p.st.K())
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.st.counts[order[a]] > p.st.counts[order[b]]
	})
	values := []float64{float64(p.st.K()), store.Get(p.intensity).Get(0)}
	for c := 0; c < p.Columns; c++ {
		if c < len(order) {
			values = append(values, float64(p.st.counts[order[c]]))
		} else {
			values = append(values, 0)
		}
	}
	for c := 0; c < p.Columns; c++ {
		for j := 0; j < p.base.Dim(); j++ {
			if c < len(order) {
				values = append(values, p.st.values[order[c]][j])
			} else {
				values = append(values, math.NaN())
			}
		}
	}
	return values, nil
}

// ClusterSizes returns the cluster sizes ordered by label.
func (p *Prior) ClusterSizes(store *parameter.Store) ([]int, error) {
	if err := p.st.load(store.Get(p.z), store.Get(p.theta), p.base.Dim()); err != nil {
		return nil, err
	}
	return append([]int(nil), p.st.counts...), nil
}
