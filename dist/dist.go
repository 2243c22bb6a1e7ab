// Package dist implements helper functions for discrete distributions.
package dist

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// LogFactorials is a table of log(n!) which grows on demand. The zero
// value is ready to use.
type LogFactorials struct {
	table []float64
}

// At returns log(n!).
func (f *LogFactorials) At(n int) float64 {
	if n < 0 {
		panic("factorial of a negative number")
	}
	if len(f.table) == 0 {
		f.table = append(f.table, 0)
	}
	for i := len(f.table); i <= n; i++ {
		f.table = append(f.table, f.table[i-1]+math.Log(float64(i)))
	}
	return f.table[n]
}

// Len returns the number of memoized values.
func (f *LogFactorials) Len() int {
	return len(f.table)
}

// LogChoose returns log of the binomial coefficient n choose k, or -Inf
// if k is outside of [0, n].
func LogChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return -math.Log(float64(n+1)) - LnBeta(float64(n-k+1), float64(k+1))
}

// LnBeta returns log of Beta function.
func LnBeta(p, q float64) float64 {
	return mathext.Lbeta(p, q)
}
