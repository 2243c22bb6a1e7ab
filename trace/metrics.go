package trace

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// Metrics exports operator statistics in the prometheus text format.
// It uses its own registry, so several chains in one process do not
// collide.
type Metrics struct {
	reg        *prometheus.Registry
	ops        []operator.Operator
	accepted   *prometheus.GaugeVec
	rejected   *prometheus.GaugeVec
	acceptance *prometheus.GaugeVec
	weight     *prometheus.GaugeVec
	iteration  prometheus.Gauge
	logDensity prometheus.Gauge
}

// NewMetrics creates metrics for the operators.
func NewMetrics(ops []operator.Operator) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		ops: ops,
		accepted: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcmc_operator_accepted",
			Help: "Number of accepted proposals",
		}, []string{"operator"}),
		rejected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcmc_operator_rejected",
			Help: "Number of rejected proposals",
		}, []string{"operator"}),
		acceptance: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcmc_operator_acceptance_probability",
			Help: "Fraction of accepted proposals",
		}, []string{"operator"}),
		weight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mcmc_operator_weight",
			Help: "Operator selection weight",
		}, []string{"operator"}),
		iteration: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcmc_iteration",
			Help: "Current iteration",
		}),
		logDensity: f.NewGauge(prometheus.GaugeOpts{
			Name: "mcmc_log_density",
			Help: "Current log target density",
		}),
	}
}

// Observe updates the gauges.
func (m *Metrics) Observe(iter int, logDensity float64, store *parameter.Store) error {
	m.iteration.Set(float64(iter))
	m.logDensity.Set(logDensity)
	for _, op := range m.ops {
		s := op.Stats()
		m.accepted.WithLabelValues(s.Name).Set(float64(s.Accepted))
		m.rejected.WithLabelValues(s.Name).Set(float64(s.Rejected))
		m.acceptance.WithLabelValues(s.Name).Set(s.AcceptanceProbability())
		m.weight.WithLabelValues(s.Name).Set(s.Weight)
	}
	return nil
}

// Registry returns the registry of the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WriteTextfile writes the metrics to a file for the node exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.reg), "cannot write metrics to %s", path)
}
