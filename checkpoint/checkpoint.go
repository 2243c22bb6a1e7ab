// Package checkpoint stores snapshots of operator statistics in a bolt
// database.
//
// Every run is stored under its own key, so statistics of earlier runs
// can be listed and compared. The chain state itself is not stored.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/mcmckernel/operator"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// STATS is the bucket name for operator statistics.
var STATS = []byte("stats")

// StatsData is a snapshot of operator statistics.
type StatsData struct {
	RunID      string
	Seed       int64
	Iter       int
	LogDensity float64
	Operators  []operator.Stats
	Final      bool
	Time       time.Time
}

// StatsIO saves and loads statistics snapshots of one run.
type StatsIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// Open opens (or creates) a statistics database.
func Open(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open statistics database %s", path)
	}
	return db, nil
}

// NewStatsIO creates a new StatsIO. Snapshots are considered old after
// the given number of seconds.
func NewStatsIO(db *bolt.DB, key []byte, seconds float64) *StatsIO {
	return &StatsIO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save saves a snapshot.
func (s *StatsIO) Save(data *StatsData) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	if data.Time.IsZero() {
		data.Time = s.last
	}
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing operator statistics", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving operator statistics", err)
	}
	return err
}

// Load returns the last snapshot or nil if there is none.
func (s *StatsIO) Load() (*StatsData, error) {
	return LoadStats(s.db, s.key)
}

// LoadStats returns the snapshot stored under key or nil.
func LoadStats(db *bolt.DB, key []byte) (*StatsData, error) {
	b, err := LoadData(db, key)
	if err != nil || b == nil {
		return nil, err
	}
	var data *StatsData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, errors.Wrapf(err, "corrupted statistics for %s", key)
	}
	if data == nil || len(data.Operators) == 0 {
		return nil, nil
	}
	if data.Final {
		log.Noticef("Found statistics of a finished run %s (iter=%v)", data.RunID, data.Iter)
	} else {
		log.Noticef("Found statistics of an unfinished run %s (iter=%v)", data.RunID, data.Iter)
	}
	return data, nil
}

// Old returns true if last save time too long ago.
func (s *StatsIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last save time to now.
func (s *StatsIO) SetNow() {
	s.last = time.Now()
}

// Runs returns the keys of all the stored runs.
func Runs(db *bolt.DB) ([]string, error) {
	var keys []string
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(STATS)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(STATS)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(STATS)
		if b == nil {
			return nil
		}
		// the value is only valid during the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
