package operator

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

func TestHierarchicalBitFlipBinary(t *testing.T) {
	ctx := newContext(31)
	top := ctx.Store.MustAdd(parameter.New("top", 0, 1, 0, 1, 1))
	s1 := ctx.Store.MustAdd(parameter.New("s1", 1, 1, 0, 0, 1))
	s2 := ctx.Store.MustAdd(parameter.New("s2", 0, 0, 0, 0, 0))
	op, err := NewHierarchicalBitFlip("hbf", ctx.Store, top, []parameter.Handle{s1, s2}, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		prop, err := op.Propose(ctx)
		if err != nil {
			t.Fatal(err)
		}
		op.Accept(0)
		if prop.LogHastingsRatio != 0 {
			t.Fatalf("log HR %v without prior on sum", prop.LogHastingsRatio)
		}
		if n := len(prop.Changed); n < 3 || n > 3*maxFlips {
			t.Fatalf("%d changes, expected 3 to %d", n, 3*maxFlips)
		}
		for _, h := range op.Parameters() {
			for j, v := range ctx.Store.Get(h).Values(nil) {
				if v != 0 && v != 1 {
					t.Fatalf("%s[%d]=%v", ctx.Store.Get(h).Name(), j, v)
				}
			}
		}
	}
}

func TestHierarchicalBitFlipInvalidValue(t *testing.T) {
	ctx := newContext(32)
	top := ctx.Store.MustAdd(parameter.New("top", 2, 2))
	op, err := NewHierarchicalBitFlip("hbf", ctx.Store, top, nil, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	_, err = op.Propose(ctx)
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("expected an invariant violation, got %v", err)
	}
	if IsFailure(err) {
		t.Error("invariant violation reported as an operator failure")
	}
}

func TestHierarchicalBitFlipDimensions(t *testing.T) {
	ctx := newContext(33)
	top := ctx.Store.MustAdd(parameter.New("top", 0, 0))
	s := ctx.Store.MustAdd(parameter.New("s", 0, 0, 0))
	if _, err := NewHierarchicalBitFlip("hbf", ctx.Store, top, []parameter.Handle{s}, 1, false); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

// TestHierarchicalBitFlipPriorOnSum checks the Hastings ratio of a
// single flip against the bit flip formula.
func TestHierarchicalBitFlipPriorOnSum(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		ctx := newContext(seed)
		top := ctx.Store.MustAdd(parameter.New("top", 1, 0, 0, 0, 1))
		op, _ := NewHierarchicalBitFlip("hbf", ctx.Store, top, nil, 1, true)
		prop, err := op.Propose(ctx)
		if err != nil {
			t.Fatal(err)
		}
		op.Reject()

		// replay the flips on the starting configuration
		d, sum := 5, 2
		bits := []int{1, 0, 0, 0, 1}
		expected := 0.0
		for _, c := range prop.Changed {
			if bits[c.Index] == 0 {
				expected -= math.Log(float64(d-sum) / float64(sum+1))
				sum++
			} else {
				expected -= math.Log(float64(sum) / float64(d-sum+1))
				sum--
			}
			bits[c.Index] = 1 - bits[c.Index]
		}
		if !appreq(prop.LogHastingsRatio, expected) {
			t.Errorf("seed %d: log HR %v, expected %v", seed, prop.LogHastingsRatio, expected)
		}
	}
}

func TestHierarchicalBitFlipUniformSum(t *testing.T) {
	const (
		d = 4
		n = 200000
	)
	ctx := newContext(35)
	top := ctx.Store.MustAdd(parameter.New("top", make([]float64, d)...))
	op, err := NewHierarchicalBitFlip("hbf", ctx.Store, top, nil, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	flat := func() float64 { return 0 }
	counts := make([]int, d+1)
	for i := 0; i < n; i++ {
		mh(t, ctx, op, flat, 1)
		sum := 0
		for _, v := range ctx.Store.Get(top).Values(nil) {
			sum += int(v)
		}
		counts[sum]++
	}
	for k, c := range counts {
		if f := float64(c) / n; math.Abs(f-1.0/(d+1)) > 0.01 {
			t.Errorf("P(sum=%d)=%v, expected %v", k, f, 1.0/(d+1))
		}
	}
}
