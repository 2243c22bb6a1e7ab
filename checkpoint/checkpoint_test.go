package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/Davydov/mcmckernel/operator"
)

func TestSaveLoad(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewStatsIO(db, []byte("run1"), 10)
	data, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, data)

	saved := &StatsData{
		RunID: "run1",
		Seed:  7,
		Iter:  1000,
		Operators: []operator.Stats{
			{Name: "mvn", Weight: 2, Accepted: 300, Rejected: 700, LastDeviation: -0.5, SumDeviation: 12},
			{Name: "dp", Weight: 1, Accepted: 50},
		},
	}
	require.NoError(t, s.Save(saved))
	assert.False(t, s.Old())

	data, err = s.Load()
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "run1", data.RunID)
	assert.Equal(t, int64(7), data.Seed)
	assert.Equal(t, 1000, data.Iter)
	assert.Equal(t, saved.Operators, data.Operators)
	assert.False(t, data.Final)
	assert.InDelta(t, 0.3, data.Operators[0].AcceptanceProbability(), 1e-12)

	saved.Final = true
	saved.Iter = 2000
	require.NoError(t, s.Save(saved))
	data, err = s.Load()
	require.NoError(t, err)
	assert.True(t, data.Final)
	assert.Equal(t, 2000, data.Iter)
}

func TestRuns(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer db.Close()

	keys, err := Runs(db)
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, k := range []string{"b", "a"} {
		s := NewStatsIO(db, []byte(k), 0)
		require.NoError(t, s.Save(&StatsData{RunID: k, Operators: []operator.Stats{{Name: "rw", Weight: 1}}}))
	}
	keys, err = Runs(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	data, err := LoadStats(db, []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", data.RunID)
}

func TestNilDatabase(t *testing.T) {
	s := NewStatsIO(nil, []byte("run"), 0)
	require.NoError(t, s.Save(&StatsData{}))
	data, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}
