package schedule

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/coercion"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/rng"
)

func newOperators(t *testing.T, weights ...float64) []operator.Operator {
	return newOperatorsIn(t, parameter.NewStore(), weights...)
}

func newOperatorsIn(t *testing.T, store *parameter.Store, weights ...float64) []operator.Operator {
	h, ok := store.Lookup("x")
	if !ok {
		h = store.MustAdd(parameter.New("x", 0))
	}
	ops := make([]operator.Operator, len(weights))
	for i, w := range weights {
		op, err := operator.NewRandomWalk(string(rune('a'+i)), h, w, 1, true, operator.DefaultTuning())
		if err != nil {
			t.Fatal(err)
		}
		ops[i] = op
	}
	return ops
}

func newSimple(t *testing.T, policy Policy, weights ...float64) *Simple {
	s := NewSimple(policy, coercion.Sqrt)
	for _, op := range newOperators(t, weights...) {
		if err := s.AddOperator(op); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestWeightedFrequencies(t *testing.T) {
	s := newSimple(t, Weighted, 1, 2, 3, 4)
	src := rng.New(1)
	n := 200000
	counts := make([]int, s.OperatorCount())
	for i := 0; i < n; i++ {
		counts[s.NextOperatorIndex(src)]++
	}
	for i, c := range counts {
		expected := float64(i+1) / 10
		if f := float64(c) / float64(n); math.Abs(f-expected) > 0.01 {
			t.Errorf("operator %d frequency %v, expected %v", i, f, expected)
		}
	}
}

func TestWeightChange(t *testing.T) {
	s := newSimple(t, Weighted, 1, 1)
	s.Operator(0).SetWeight(1e-12)
	src := rng.New(2)
	for i := 0; i < 1000; i++ {
		if s.NextOperatorIndex(src) == 0 {
			t.Fatal("operator with negligible weight selected")
		}
	}
}

func TestSequential(t *testing.T) {
	s := newSimple(t, Sequential, 1, 5, 1)
	src := rng.New(3)
	for i := 0; i < 10; i++ {
		if j := s.NextOperatorIndex(src); j != i%3 {
			t.Fatalf("step %d: selected %d, expected %d", i, j, i%3)
		}
	}
	s.Reset()
	if j := s.NextOperatorIndex(src); j != 0 {
		t.Errorf("after reset selected %d", j)
	}
}

func TestAddTwice(t *testing.T) {
	s := NewSimple(Weighted, coercion.Sqrt)
	op := newOperators(t, 1)[0]
	if err := s.AddOperator(op); err != nil {
		t.Fatal(err)
	}
	if err := s.AddOperator(op); !errors.Is(err, operator.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestEmptySchedulePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("no panic on an empty schedule")
		}
	}()
	NewSimple(Weighted, coercion.Sqrt).NextOperatorIndex(rng.New(4))
}

func TestCheck(t *testing.T) {
	full := newSimple(t, Weighted, 1, 2)
	empty := NewSimple(Weighted, coercion.Sqrt)
	if err := Check(full); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Check(NewCombined(full, newSimple(t, Weighted, 1))); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for i, s := range []Schedule{
		empty,
		NewCombined(),
		NewCombined(full, empty),
		NewCombined(full, NewCombined(empty)),
	} {
		if err := Check(s); !errors.Is(err, operator.ErrConfiguration) {
			t.Errorf("schedule %d: expected a configuration error, got %v", i, err)
		}
	}
}

func TestCombinedFrequencies(t *testing.T) {
	a := newSimple(t, Weighted, 1)
	b := newSimple(t, Weighted, 10, 10, 10)
	c := NewCombined(a, b)
	if c.OperatorCount() != 4 {
		t.Fatalf("operator count %d, expected 4", c.OperatorCount())
	}
	src := rng.New(5)
	n := 200000
	counts := make([]int, c.OperatorCount())
	for i := 0; i < n; i++ {
		counts[c.NextOperatorIndex(src)]++
	}
	expected := []float64{0.5, 1.0 / 6, 1.0 / 6, 1.0 / 6}
	for i, cnt := range counts {
		if f := float64(cnt) / float64(n); math.Abs(f-expected[i]) > 0.01 {
			t.Errorf("operator %d frequency %v, expected %v", i, f, expected[i])
		}
	}
}

func TestCombinedIndices(t *testing.T) {
	a := newSimple(t, Weighted, 1, 1)
	b := NewSimple(Sequential, coercion.Log)
	for _, op := range newOperators(t, 1, 1, 1) {
		if err := b.AddOperator(op); err != nil {
			t.Fatal(err)
		}
	}
	c := NewCombined(a, b)
	ops := c.Operators()
	if len(ops) != 5 {
		t.Fatalf("%d operators, expected 5", len(ops))
	}
	for i, op := range ops {
		if c.Operator(i) != op {
			t.Errorf("operator %d mismatch", i)
		}
	}
	if c.Operator(2) != b.Operator(0) {
		t.Error("operator 2 is not the first operator of the second schedule")
	}
	if tr := c.Tuner(3).Transform; tr != coercion.Log {
		t.Errorf("tuner transform %v, expected log", tr)
	}
	if tr := c.Tuner(1).Transform; tr != coercion.Sqrt {
		t.Errorf("tuner transform %v, expected sqrt", tr)
	}
}

func TestCombinedAddOperator(t *testing.T) {
	c := NewCombined(newSimple(t, Weighted, 1))
	err := c.AddOperator(newOperators(t, 1)[0])
	if !errors.Is(err, operator.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
	if c.OperatorCount() != 1 {
		t.Error("operator added to a combined schedule")
	}
}

func TestCombinedReset(t *testing.T) {
	ctx := operator.NewContext(parameter.NewStore(), rng.New(6))
	a := NewSimple(Weighted, coercion.Sqrt)
	b := NewSimple(Weighted, coercion.Sqrt)
	ops := newOperatorsIn(t, ctx.Store, 1, 1)
	if err := a.AddOperator(ops[0]); err != nil {
		t.Fatal(err)
	}
	if err := b.AddOperator(ops[1]); err != nil {
		t.Fatal(err)
	}
	c := NewCombined(a, b)
	for _, op := range c.Operators() {
		if _, err := op.Propose(ctx); err != nil {
			t.Fatal(err)
		}
		op.Accept(0)
		if op.Count() != 1 {
			t.Fatalf("%s: count %d", op.Name(), op.Count())
		}
	}
	c.Reset()
	for _, op := range c.Operators() {
		if op.Count() != 0 {
			t.Errorf("%s: count %d after reset", op.Name(), op.Count())
		}
	}
}
