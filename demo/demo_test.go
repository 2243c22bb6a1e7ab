package demo

import (
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"bitbucket.org/Davydov/mcmckernel/config"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/rng"
	"bitbucket.org/Davydov/mcmckernel/sampler"
	"bitbucket.org/Davydov/mcmckernel/trace"
)

// sample runs a model with its default configuration and returns the
// samples after a 10% burn-in.
func sample(t *testing.T, name string, seed int64, n int, observers ...sampler.Observer) *trace.Recorder {
	src := rng.New(seed)
	d, err := New(name, src)
	require.NoError(t, err)
	cfg, err := config.Parse([]byte(d.Config))
	require.NoError(t, err)

	b := config.NewBuilder(d.Store)
	b.Models = d.Models
	b.Designs = d.Designs
	s, err := b.Build(cfg)
	require.NoError(t, err)

	chain := sampler.NewChain(operator.NewContext(d.Store, src), s, d.Target)
	chain.SamplePeriod = 10
	chain.Coerce = cfg.Coercion
	rec := trace.NewRecorder(d.Trace, d.Columns...)
	chain.AddObserver(rec)
	for _, o := range observers {
		chain.AddObserver(o)
	}
	require.NoError(t, chain.Run(n))
	assert.Zero(t, chain.Failures(), "%s: failed proposals", name)
	return rec
}

func mean(rec *trace.Recorder, name string) float64 {
	x := rec.Series(name)
	return stat.Mean(x[len(x)/10:], nil)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"discrete", "mixture", "mvn", "regression"}, Names())
	_, err := New("nonexistent", rng.New(1))
	assert.Error(t, err)
}

func TestMVN(t *testing.T) {
	rec := sample(t, "mvn", 1, 50000)
	assert.InDelta(t, 1, mean(rec, "x.0"), 0.15)
	assert.InDelta(t, -1, mean(rec, "x.1"), 0.2)
}

func TestRegression(t *testing.T) {
	rec := sample(t, "regression", 2, 30000)
	for i, b := range []float64{2, -1, 0.5} {
		assert.InDelta(t, b, mean(rec, "beta."+strconv.Itoa(i)), 0.3)
	}
	assert.InDelta(t, 0.5, mean(rec, "sigma"), 0.15)
}

// labels records the values of a parameter by name.
type labels struct {
	name   string
	values [][]float64
}

func (l *labels) Observe(iter int, logDensity float64, store *parameter.Store) error {
	h, ok := store.Lookup(l.name)
	if !ok {
		return errors.Errorf("no parameter %s", l.name)
	}
	l.values = append(l.values, store.Get(h).Values(nil))
	return nil
}

// coclustering returns the fraction of pairs of observations from the
// same group and from different groups which share a label. Groups are
// consecutive blocks of size observations.
func coclustering(z []float64, size int) (same, different float64) {
	var nSame, nDiff int
	for i := range z {
		for j := i + 1; j < len(z); j++ {
			shared := 0.0
			if z[i] == z[j] {
				shared = 1
			}
			if i/size == j/size {
				same += shared
				nSame++
			} else {
				different += shared
				nDiff++
			}
		}
	}
	return same / float64(nSame), different / float64(nDiff)
}

func TestMixture(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		z := &labels{name: "z"}
		rec := sample(t, "mixture", seed, 4000, z)
		assert.GreaterOrEqual(t, mean(rec, "z.K"), 2.5)
		assert.Less(t, mean(rec, "z.size.0"), 25.0)

		// three groups of 20 observations
		var same, different []float64
		for _, v := range z.values[len(z.values)/10:] {
			s, d := coclustering(v, 20)
			same = append(same, s)
			different = append(different, d)
		}
		assert.Greater(t, stat.Mean(same, nil), 0.6, "seed %d", seed)
		assert.Less(t, stat.Mean(different, nil), 0.02, "seed %d", seed)
	}
}

func TestDiscrete(t *testing.T) {
	rec := sample(t, "discrete", 4, 50000)
	assert.InDelta(t, 6, mean(rec, "n"), 0.3)

	var sums []float64
	for i := 0; i < rec.Len(); i++ {
		sum := 0.0
		for j := 0; j < 8; j++ {
			top := rec.Series("top." + strconv.Itoa(j))[i]
			s1 := rec.Series("stratum1." + strconv.Itoa(j))[i]
			// flips are shared, so the levels differ where they
			// differed initially
			require.Equal(t, j%2 == 0, top != s1, "sample %d, bit %d", i, j)
			sum += top
		}
		sums = append(sums, sum)
	}
	assert.InDelta(t, 4, stat.Mean(sums[len(sums)/10:], nil), 0.3)
}
