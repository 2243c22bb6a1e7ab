package dirichlet

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/rng"
)

const smallDiff = 1e-9

// appreq tests if a and b are approximately equal.
func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

type fixture struct {
	store               *parameter.Store
	z, theta, intensity parameter.Handle
}

func newFixture(labels, values []float64, g float64) fixture {
	store := parameter.NewStore()
	return fixture{
		store:     store,
		z:         store.MustAdd(parameter.New("z", labels...)),
		theta:     store.MustAdd(parameter.New("theta", values...)),
		intensity: store.MustAdd(parameter.NewBounded("intensity", 0, math.Inf(1), g)),
	}
}

func TestCategoriesLogDensity(t *testing.T) {
	f := newFixture([]float64{0, 0, 1}, []float64{0.5, -1}, 2)
	base := &NormalBase{Mu: 0, Sigma: 1}
	p, err := NewPrior(f.store, f.z, f.theta, f.intensity, base)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := p.CategoriesLogDensity(f.store)
	if err != nil {
		t.Fatal(err)
	}
	// K*log(g) + log(1!) + log(0!) - log(2*3*4)
	if expected := 2*math.Log(2) - math.Log(24); !appreq(cat, expected) {
		t.Errorf("categories log density %v, expected %v", cat, expected)
	}
	realized, err := p.RealizedValuesLogDensity(f.store)
	if err != nil {
		t.Fatal(err)
	}
	n := distuv.Normal{Mu: 0, Sigma: 1}
	if expected := n.LogProb(0.5) + n.LogProb(-1); !appreq(realized, expected) {
		t.Errorf("realized values log density %v, expected %v", realized, expected)
	}
	total, err := p.LogDensity(f.store)
	if err != nil {
		t.Fatal(err)
	}
	if !appreq(total, cat+realized) {
		t.Errorf("log density %v, expected %v", total, cat+realized)
	}
}

// TestPartitionsSumToOne sums the CRP probability over all the
// partitions of three observations.
func TestPartitionsSumToOne(t *testing.T) {
	partitions := [][]float64{
		{0, 0, 0},
		{0, 0, 1},
		{0, 1, 0},
		{0, 1, 1},
		{0, 1, 2},
	}
	for _, g := range []float64{0.3, 1, 7} {
		sum := 0.0
		for _, z := range partitions {
			k := int(z[0])
			for _, l := range z {
				if int(l) > k {
					k = int(l)
				}
			}
			f := newFixture(z, make([]float64, k+1), g)
			p, err := NewPrior(f.store, f.z, f.theta, f.intensity, &NormalBase{Sigma: 1})
			if err != nil {
				t.Fatal(err)
			}
			l, err := p.CategoriesLogDensity(f.store)
			if err != nil {
				t.Fatal(err)
			}
			sum += math.Exp(l)
		}
		if !appreq(sum, 1) {
			t.Errorf("intensity %v: partition probabilities sum to %v", g, sum)
		}
	}
}

func TestInvalidState(t *testing.T) {
	base := &NormalBase{Sigma: 1}
	// label outside of [0, K)
	f := newFixture([]float64{0, 2}, []float64{0, 0}, 1)
	if _, err := NewPrior(f.store, f.z, f.theta, f.intensity, base); !errors.Is(err, operator.ErrInvariant) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
	// empty cluster
	f = newFixture([]float64{0, 0}, []float64{0, 0}, 1)
	if _, err := NewPrior(f.store, f.z, f.theta, f.intensity, base); !errors.Is(err, operator.ErrInvariant) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
	// non-integer label
	f = newFixture([]float64{0, 0.5}, []float64{0}, 1)
	if _, err := NewPrior(f.store, f.z, f.theta, f.intensity, base); !errors.Is(err, operator.ErrInvariant) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
	// realized values do not match the base dimension
	f = newFixture([]float64{0, 0}, []float64{0, 0, 0}, 1)
	if _, err := NewPrior(f.store, f.z, f.theta, f.intensity, &NormalGamma{Kappa0: 1, Alpha: 1, Beta: 1}); !errors.Is(err, operator.ErrInvariant) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
}

func TestRemoveCompacts(t *testing.T) {
	st := state{
		labels: []int{0, 2, 3, 2, 0},
		counts: []int{2, 0, 2, 1},
		values: [][]float64{{0}, {1}, {2}, {3}},
		dim:    1,
	}
	st.remove(1)
	expected := []int{0, 1, 2, 1, 0}
	for i, l := range st.labels {
		if l != expected[i] {
			t.Fatalf("labels %v, expected %v", st.labels, expected)
		}
	}
	if st.K() != 3 || st.values[1][0] != 2 || st.values[2][0] != 3 {
		t.Errorf("values %v after removing cluster 1", st.values)
	}
	if err := st.check(); err != nil {
		t.Error(err)
	}
	k := st.add([]float64{4})
	if k != 3 || st.values[3][0] != 4 {
		t.Errorf("added cluster %d with values %v", k, st.values)
	}
}

// TestNormalGammaPredictive checks the Student-t predictive density
// with p(y) = p(y|theta)p(theta)/p(theta|y).
func TestNormalGammaPredictive(t *testing.T) {
	m := &NormalGamma{Mu0: 1, Kappa0: 0.5, Alpha: 2, Beta: 3, Data: []float64{2.5, -0.3}}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	for i := range m.Data {
		for _, theta := range [][]float64{{1.7, 0.8}, {-2, 3}} {
			r := m.LogLikelihood(i, theta) + m.LogDensity(theta) - m.LogPosterior([]int{i}, theta)
			if !appreq(m.LogPredictive(i), r) {
				t.Errorf("log predictive %v, expected %v", m.LogPredictive(i), r)
			}
		}
	}
	if err := (&NormalGamma{Kappa0: 1, Alpha: 0, Beta: 1, Data: []float64{1}}).Validate(); err == nil {
		t.Error("zero alpha accepted")
	}
}

func gaussianData() []float64 {
	y := make([]float64, 40)
	for i := range y {
		c := -5.0
		if i >= 20 {
			c = 5
		}
		y[i] = c + 0.1*float64(i%5-2)
	}
	return y
}

// sweep runs n sweeps and checks the configuration after each.
func sweep(t *testing.T, f fixture, op *Operator, prior *Prior, n int) {
	ctx := operator.NewContext(f.store, rng.New(int64(n)))
	N := f.store.Get(f.z).Dim()
	for s := 0; s < n; s++ {
		if _, err := op.Propose(ctx); err != nil {
			t.Fatal(err)
		}
		op.Accept(0)
		sizes, err := prior.ClusterSizes(f.store)
		if err != nil {
			t.Fatal(err)
		}
		total := 0
		for k, c := range sizes {
			if c <= 0 {
				t.Fatalf("sweep %d: cluster %d has %d members", s, k, c)
			}
			total += c
		}
		if total != N {
			t.Fatalf("sweep %d: %d members for %d observations", s, total, N)
		}
		if d := f.store.Get(f.theta).Dim(); d != len(sizes)*op.dim {
			t.Fatalf("sweep %d: %d realized values for %d clusters", s, d, len(sizes))
		}
	}
	if op.Sweeps() != n || op.Count() != n {
		t.Errorf("%d sweeps, %d accepted, expected %d", op.Sweeps(), op.Count(), n)
	}
}

// modal returns the most frequent label and its count.
func modal(labels []float64) (int, int) {
	counts := map[int]int{}
	best, bestCount := 0, 0
	for _, l := range labels {
		counts[int(l)]++
		if c := counts[int(l)]; c > bestCount {
			best, bestCount = int(l), c
		}
	}
	return best, bestCount
}

func TestConjugateSweep(t *testing.T) {
	y := gaussianData()
	model := &NormalGamma{Mu0: 0, Kappa0: 0.01, Alpha: 2, Beta: 0.5, Data: y}
	f := newFixture(make([]float64, len(y)), []float64{0, 1}, 1)
	f.store.Get(f.theta).SetBounds(1, 0, math.Inf(1))
	op, err := NewOperator("dp", f.store, f.z, f.theta, f.intensity, 1, model, NewSettings())
	if err != nil {
		t.Fatal(err)
	}
	if !op.Conjugate() || !operator.IsGibbs(op) {
		t.Fatal("expected a conjugate Gibbs operator")
	}
	prior, err := NewPrior(f.store, f.z, f.theta, f.intensity, model)
	if err != nil {
		t.Fatal(err)
	}
	sweep(t, f, op, prior, 50)

	z := f.store.Get(f.z).Values(nil)
	a, na := modal(z[:20])
	b, nb := modal(z[20:])
	if a == b || na < 18 || nb < 18 {
		t.Errorf("groups are not separated: %v", z)
	}
	// realized values keep the bounds of the first cluster
	theta := f.store.Get(f.theta)
	for j := 1; j < theta.Dim(); j += 2 {
		if lo, _ := theta.Bounds(j); lo != 0 {
			t.Errorf("precision %d has lower bound %v", j, lo)
		}
	}
}

func TestNonConjugateSweep(t *testing.T) {
	y := gaussianData()
	model := Compose(&NormalBase{Mu: 0, Sigma: 5}, &GaussianData{Y: y, Sigma: 0.5})
	// every observation starts in its own cluster
	labels := make([]float64, len(y))
	for i := range labels {
		labels[i] = float64(i)
	}
	f := newFixture(labels, append([]float64(nil), y...), 0.5)
	op, err := NewOperator("dp", f.store, f.z, f.theta, f.intensity, 1, model, NewSettings())
	if err != nil {
		t.Fatal(err)
	}
	if op.Conjugate() {
		t.Fatal("composed model reported as conjugate")
	}
	prior, err := NewPrior(f.store, f.z, f.theta, f.intensity, model)
	if err != nil {
		t.Fatal(err)
	}
	sweep(t, f, op, prior, 100)

	sizes, _ := prior.ClusterSizes(f.store)
	if len(sizes) >= len(y) {
		t.Errorf("clusters were not merged: %v", sizes)
	}
	z := f.store.Get(f.z).Values(nil)
	if a, _ := modal(z[:20]); a == int(z[39]) {
		t.Errorf("groups share a label: %v", z)
	}
}

func TestOperatorConfiguration(t *testing.T) {
	model := &NormalGamma{Kappa0: 1, Alpha: 1, Beta: 1, Data: []float64{1, 2, 3}}
	f := newFixture([]float64{0, 0}, []float64{0, 1}, 1)
	if _, err := NewOperator("dp", f.store, f.z, f.theta, f.intensity, 1, model, NewSettings()); !errors.Is(err, operator.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
	f = newFixture([]float64{0, 0, 0}, []float64{0, 1}, 1)
	if _, err := NewOperator("dp", f.store, f.z, f.theta, f.intensity, 0, model, NewSettings()); !errors.Is(err, operator.ErrConfiguration) {
		t.Errorf("expected a configuration error for zero weight, got %v", err)
	}
}

func TestNonPositiveIntensityFails(t *testing.T) {
	model := &NormalGamma{Kappa0: 1, Alpha: 1, Beta: 1, Data: []float64{1, 2, 3}}
	f := newFixture([]float64{0, 0, 0}, []float64{0, 1}, 1)
	op, err := NewOperator("dp", f.store, f.z, f.theta, f.intensity, 1, model, NewSettings())
	if err != nil {
		t.Fatal(err)
	}
	f.store.Get(f.intensity).Set(0, 0)
	_, err = op.Propose(operator.NewContext(f.store, rng.New(1)))
	if !operator.IsFailure(err) {
		t.Errorf("expected an operator failure, got %v", err)
	}
}

func TestColumns(t *testing.T) {
	f := newFixture([]float64{1, 0, 1, 1}, []float64{-1, 2}, 1.5)
	p, err := NewPrior(f.store, f.z, f.theta, f.intensity, &NormalBase{Sigma: 1})
	if err != nil {
		t.Fatal(err)
	}
	p.Columns = 3
	names := p.ColumnNames(f.store)
	values, err := p.ColumnValues(f.store)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != len(values) || len(names) != 2+3+3 {
		t.Fatalf("%d names, %d values", len(names), len(values))
	}
	expected := []float64{2, 1.5, 3, 1, 0, 2, -1}
	for i, v := range expected {
		if values[i] != v {
			t.Errorf("column %s=%v, expected %v", names[i], values[i], v)
		}
	}
	if !math.IsNaN(values[7]) {
		t.Errorf("missing cluster value %v", values[7])
	}
}
