package dirichlet

import (
	"math"

	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// state is a dense working copy of a Dirichlet process configuration.
type state struct {
	labels []int
	counts []int
	// values[k] is the realized parameter of cluster k.
	values [][]float64
	dim    int
}

// load reads and validates the assignments and the realized values.
func (s *state) load(z, theta *parameter.Parameter, dim int) error {
	if theta.Dim()%dim != 0 {
		return errors.Wrapf(operator.ErrInvariant, "%s has dimension %d, not a multiple of %d",
			theta.Name(), theta.Dim(), dim)
	}
	k := theta.Dim() / dim
	s.dim = dim
	s.labels = s.labels[:0]
	s.counts = resizeInts(s.counts, k)
	for i := 0; i < z.Dim(); i++ {
		v := z.Get(i)
		l := int(v)
		if float64(l) != v || l < 0 || l >= k {
			return errors.Wrapf(operator.ErrInvariant, "%s[%d]=%v is not a label in [0, %d)", z.Name(), i, v, k)
		}
		s.labels = append(s.labels, l)
		s.counts[l]++
	}
	for l, c := range s.counts {
		if c == 0 {
			return errors.Wrapf(operator.ErrInvariant, "%s: cluster %d is empty", z.Name(), l)
		}
	}
	for len(s.values) < k {
		s.values = append(s.values, make([]float64, dim))
	}
	s.values = s.values[:k]
	for l, v := range s.values {
		if len(v) != dim {
			v = make([]float64, dim)
			s.values[l] = v
		}
		for j := range v {
			v[j] = theta.Get(l*dim + j)
		}
	}
	return nil
}

// store writes the assignments and the realized values back. lower and
// upper are the bounds of a cluster parameter.
func (s *state) store(z, theta *parameter.Parameter, lower, upper []float64) {
	for i, l := range s.labels {
		z.Set(i, float64(l))
	}
	for theta.Dim() > 0 {
		theta.Remove(theta.Dim() - 1)
	}
	for _, v := range s.values {
		for j, x := range v {
			theta.Append(x, lower[j], upper[j])
		}
	}
}

// K returns the number of clusters.
func (s *state) K() int {
	return len(s.counts)
}

// remove deletes the cluster k, decrementing every label above it.
func (s *state) remove(k int) {
	for i, l := range s.labels {
		if l > k {
			s.labels[i] = l - 1
		}
	}
	s.counts = append(s.counts[:k], s.counts[k+1:]...)
	// keep the slice buffer for reuse
	v := s.values[k]
	copy(s.values[k:], s.values[k+1:])
	s.values[len(s.values)-1] = v
	s.values = s.values[:len(s.values)-1]
}

// add appends a new cluster with the realized value v and returns its
// label.
func (s *state) add(v []float64) int {
	k := len(s.counts)
	s.counts = append(s.counts, 0)
	if cap(s.values) > k {
		s.values = s.values[:k+1]
		if len(s.values[k]) != s.dim {
			s.values[k] = make([]float64, s.dim)
		}
	} else {
		s.values = append(s.values, make([]float64, s.dim))
	}
	copy(s.values[k], v)
	return k
}

// members returns the observations assigned to cluster k.
func (s *state) members(k int, dst []int) []int {
	dst = dst[:0]
	for i, l := range s.labels {
		if l == k {
			dst = append(dst, i)
		}
	}
	return dst
}

// check verifies that the counts match the labels and that the labels
// are contiguous.
func (s *state) check() error {
	counts := make([]int, len(s.counts))
	for i, l := range s.labels {
		if l < 0 || l >= len(counts) {
			return errors.Wrapf(operator.ErrInvariant, "observation %d has label %d outside [0, %d)", i, l, len(counts))
		}
		counts[l]++
	}
	total := 0
	for k, c := range counts {
		if c == 0 || c != s.counts[k] {
			return errors.Wrapf(operator.ErrInvariant, "cluster %d has %d members, counted %d", k, c, s.counts[k])
		}
		total += c
	}
	if total != len(s.labels) {
		return errors.Wrapf(operator.ErrInvariant, "%d assignments for %d observations", total, len(s.labels))
	}
	return nil
}

func resizeInts(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

// clusterBounds returns the bounds of the first cluster parameter.
func clusterBounds(theta *parameter.Parameter, dim int) (lower, upper []float64) {
	lower = make([]float64, dim)
	upper = make([]float64, dim)
	for j := 0; j < dim; j++ {
		if j < theta.Dim() {
			lower[j], upper[j] = theta.Bounds(j)
		} else {
			lower[j], upper[j] = math.Inf(-1), math.Inf(1)
		}
	}
	return
}
