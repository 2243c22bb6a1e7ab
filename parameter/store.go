package parameter

import (
	"strconv"

	"github.com/pkg/errors"
)

// Store is the arena holding every parameter of a model.
type Store struct {
	params []*Parameter
	byName map[string]Handle
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byName: make(map[string]Handle)}
}

// Add registers a parameter and returns its handle. Names must be
// unique.
func (s *Store) Add(p *Parameter) (Handle, error) {
	if p.name == "" {
		return -1, errors.New("parameter without a name")
	}
	if _, ok := s.byName[p.name]; ok {
		return -1, errors.Errorf("duplicate parameter name: %s", p.name)
	}
	h := Handle(len(s.params))
	s.params = append(s.params, p)
	s.byName[p.name] = h
	log.Debugf("registered parameter %s (dim=%d) as %d", p.name, p.Dim(), h)
	return h, nil
}

// MustAdd is like Add but panics on error.
func (s *Store) MustAdd(p *Parameter) Handle {
	h, err := s.Add(p)
	if err != nil {
		panic(err)
	}
	return h
}

// Get returns the parameter for a handle.
func (s *Store) Get(h Handle) *Parameter {
	return s.params[h]
}

// Lookup finds a parameter handle by name.
func (s *Store) Lookup(name string) (Handle, bool) {
	h, ok := s.byName[name]
	return h, ok
}

// Len returns the number of parameters.
func (s *Store) Len() int {
	return len(s.params)
}

// Handles returns all handles in registration order.
func (s *Store) Handles() []Handle {
	hs := make([]Handle, len(s.params))
	for i := range hs {
		hs[i] = Handle(i)
	}
	return hs
}

// Save copies the state of the given parameters into snapshots,
// reusing buffers from dst.
func (s *Store) Save(dst []Snapshot, hs ...Handle) []Snapshot {
	if cap(dst) < len(hs) {
		dst = make([]Snapshot, len(hs))
	}
	dst = dst[:len(hs)]
	for i, h := range hs {
		p := s.params[h]
		dst[i].Param = h
		dst[i].values = append(dst[i].values[:0], p.values...)
		dst[i].lower = append(dst[i].lower[:0], p.lower...)
		dst[i].upper = append(dst[i].upper[:0], p.upper...)
	}
	return dst
}

// Restore puts saved snapshots back, restoring dimensions as well.
func (s *Store) Restore(snaps []Snapshot) {
	for _, sn := range snaps {
		p := s.params[sn.Param]
		p.values = append(p.values[:0], sn.values...)
		p.lower = append(p.lower[:0], sn.lower...)
		p.upper = append(p.upper[:0], sn.upper...)
	}
}

// Names returns column names for all elements of all parameters
// (name for scalars, name.i for vectors).
func (s *Store) Names() (names []string) {
	for _, p := range s.params {
		names = append(names, p.ColumnNames()...)
	}
	return
}

// ColumnNames returns column names of a parameter's elements.
func (p *Parameter) ColumnNames() []string {
	if len(p.values) == 1 {
		return []string{p.name}
	}
	names := make([]string, len(p.values))
	for i := range names {
		names[i] = p.name + "." + strconv.Itoa(i)
	}
	return names
}

// ColumnValues returns the values to log.
func (p *Parameter) ColumnValues() []float64 {
	return p.Values(nil)
}
