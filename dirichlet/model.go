// Package dirichlet implements a Dirichlet process mixture: a Gibbs
// operator reassigning observations to clusters and the Chinese
// restaurant process prior over the assignments.
//
// The state lives in three parameters of a parameter.Store: the
// assignment vector z (one label per observation), the realized cluster
// parameters (flattened, cluster k occupies elements [k*d, (k+1)*d))
// and the scalar concentration. Labels are always the contiguous range
// [0, K) and every label is occupied.
package dirichlet

import (
	"math"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/mcmckernel/rng"
)

// log is the global logging variable.
var log = logging.MustGetLogger("dirichlet")

// BaseMeasure is the distribution of realized cluster parameters.
type BaseMeasure interface {
	// Dim is the dimension of a cluster parameter.
	Dim() int
	LogDensity(theta []float64) float64
	// Sample draws a cluster parameter into dst.
	Sample(src *rng.Source, dst []float64)
}

// Likelihood is the density of observations given a cluster parameter.
type Likelihood interface {
	// Len is the number of observations.
	Len() int
	// LogLikelihood returns log f(x_i | theta).
	LogLikelihood(i int, theta []float64) float64
}

// Model is a base measure together with the observations.
type Model interface {
	BaseMeasure
	Likelihood
}

// Conjugate models have a closed form prior predictive density and
// posterior.
type Conjugate interface {
	Model
	// LogPredictive returns the log prior predictive density of
	// observation i.
	LogPredictive(i int) float64
	// SamplePosterior draws a cluster parameter given the observations
	// members.
	SamplePosterior(src *rng.Source, members []int, dst []float64)
}

type composed struct {
	BaseMeasure
	Likelihood
}

// Compose combines a base measure and a likelihood into a
// non-conjugate model.
func Compose(base BaseMeasure, lik Likelihood) Model {
	return composed{BaseMeasure: base, Likelihood: lik}
}

// NormalGamma is the conjugate model of normal observations with an
// unknown mean and precision. The cluster parameter is (mu, tau),
//
//	tau ~ Gamma(Alpha, Beta), mu | tau ~ N(Mu0, 1/(Kappa0*tau)).
type NormalGamma struct {
	Mu0, Kappa0 float64
	Alpha, Beta float64
	Data        []float64
}

// Validate checks the hyperparameters.
func (m *NormalGamma) Validate() error {
	if !(m.Kappa0 > 0 && m.Alpha > 0 && m.Beta > 0) {
		return errors.Errorf("normal-gamma hyperparameters should be positive (kappa0=%v, alpha=%v, beta=%v)",
			m.Kappa0, m.Alpha, m.Beta)
	}
	if len(m.Data) == 0 {
		return errors.New("no observations")
	}
	return nil
}

// Dim returns 2.
func (m *NormalGamma) Dim() int { return 2 }

// Len returns the number of observations.
func (m *NormalGamma) Len() int { return len(m.Data) }

// LogLikelihood returns log N(x_i | mu, 1/tau).
func (m *NormalGamma) LogLikelihood(i int, theta []float64) float64 {
	if !(theta[1] > 0) {
		return math.Inf(-1)
	}
	return distuv.Normal{Mu: theta[0], Sigma: 1 / math.Sqrt(theta[1])}.LogProb(m.Data[i])
}

// LogDensity returns the log base measure density.
func (m *NormalGamma) LogDensity(theta []float64) float64 {
	return logNormalGamma(theta, m.Mu0, m.Kappa0, m.Alpha, m.Beta)
}

func logNormalGamma(theta []float64, mu0, kappa, alpha, beta float64) float64 {
	mu, tau := theta[0], theta[1]
	if !(tau > 0) {
		return math.Inf(-1)
	}
	return distuv.Gamma{Alpha: alpha, Beta: beta}.LogProb(tau) +
		distuv.Normal{Mu: mu0, Sigma: 1 / math.Sqrt(kappa*tau)}.LogProb(mu)
}

func sampleNormalGamma(src *rng.Source, dst []float64, mu0, kappa, alpha, beta float64) {
	tau := distuv.Gamma{Alpha: alpha, Beta: beta, Src: src}.Rand()
	dst[0] = distuv.Normal{Mu: mu0, Sigma: 1 / math.Sqrt(kappa*tau), Src: src}.Rand()
	dst[1] = tau
}

// Sample draws (mu, tau) from the base measure.
func (m *NormalGamma) Sample(src *rng.Source, dst []float64) {
	sampleNormalGamma(src, dst, m.Mu0, m.Kappa0, m.Alpha, m.Beta)
}

// Posterior returns the hyperparameters of the posterior given the
// observations members.
func (m *NormalGamma) Posterior(members []int) (mu, kappa, alpha, beta float64) {
	n := float64(len(members))
	if n == 0 {
		return m.Mu0, m.Kappa0, m.Alpha, m.Beta
	}
	mean := 0.0
	for _, i := range members {
		mean += m.Data[i]
	}
	mean /= n
	ss := 0.0
	for _, i := range members {
		d := m.Data[i] - mean
		ss += d * d
	}
	kappa = m.Kappa0 + n
	mu = (m.Kappa0*m.Mu0 + n*mean) / kappa
	alpha = m.Alpha + n/2
	d := mean - m.Mu0
	beta = m.Beta + ss/2 + m.Kappa0*n*d*d/(2*kappa)
	return
}

// LogPosterior returns the log posterior density of theta given the
// observations members.
func (m *NormalGamma) LogPosterior(members []int, theta []float64) float64 {
	mu, kappa, alpha, beta := m.Posterior(members)
	return logNormalGamma(theta, mu, kappa, alpha, beta)
}

// LogPredictive returns the Student-t prior predictive density of
// observation i.
func (m *NormalGamma) LogPredictive(i int) float64 {
	t := distuv.StudentsT{
		Mu:    m.Mu0,
		Sigma: math.Sqrt(m.Beta * (m.Kappa0 + 1) / (m.Alpha * m.Kappa0)),
		Nu:    2 * m.Alpha,
	}
	return t.LogProb(m.Data[i])
}

// SamplePosterior draws (mu, tau) from the posterior.
func (m *NormalGamma) SamplePosterior(src *rng.Source, members []int, dst []float64) {
	mu, kappa, alpha, beta := m.Posterior(members)
	sampleNormalGamma(src, dst, mu, kappa, alpha, beta)
}

// NormalBase is a normal base measure of a scalar cluster mean. It is
// used together with GaussianData as a non-conjugate model.
type NormalBase struct {
	Mu, Sigma float64
}

// Dim returns 1.
func (b *NormalBase) Dim() int { return 1 }

// LogDensity returns log N(theta | Mu, Sigma^2).
func (b *NormalBase) LogDensity(theta []float64) float64 {
	return distuv.Normal{Mu: b.Mu, Sigma: b.Sigma}.LogProb(theta[0])
}

// Sample draws a cluster mean.
func (b *NormalBase) Sample(src *rng.Source, dst []float64) {
	dst[0] = distuv.Normal{Mu: b.Mu, Sigma: b.Sigma, Src: src}.Rand()
}

// GaussianData are normal observations with a known standard
// deviation and a cluster specific mean.
type GaussianData struct {
	Y     []float64
	Sigma float64
}

// Len returns the number of observations.
func (d *GaussianData) Len() int { return len(d.Y) }

// LogLikelihood returns log N(y_i | theta, Sigma^2).
func (d *GaussianData) LogLikelihood(i int, theta []float64) float64 {
	return distuv.Normal{Mu: theta[0], Sigma: d.Sigma}.LogProb(d.Y[i])
}
