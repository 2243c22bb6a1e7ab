// Package sampler implements the Metropolis-Hastings loop driving the
// operators of a schedule.
package sampler

import (
	"math"
	"os"
	"os/signal"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/checkpoint"
	"bitbucket.org/Davydov/mcmckernel/coercion"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/schedule"
)

// log is the global logging variable.
var log = logging.MustGetLogger("sampler")

// Target is the density the chain samples from, usually the product of
// the likelihood and the priors.
type Target interface {
	LogDensity(store *parameter.Store) (float64, error)
}

// TargetFunc is a function implementing Target.
type TargetFunc func(store *parameter.Store) (float64, error)

// LogDensity calls f.
func (f TargetFunc) LogDensity(store *parameter.Store) (float64, error) {
	return f(store)
}

// Observer receives the chain state every sample period.
type Observer interface {
	Observe(iter int, logDensity float64, store *parameter.Store) error
}

// Chain is a Metropolis-Hastings sampler. Proposals are made by the
// operators of a schedule; rejected or failed proposals are rolled
// back by restoring the saved parameters.
type Chain struct {
	ctx      *operator.Context
	schedule schedule.Schedule
	target   Target

	// AccPeriod is the period of acceptance rate logging.
	AccPeriod int
	// SamplePeriod is the period of observer calls.
	SamplePeriod int
	// Coerce enables tuning of coercable operators.
	Coerce bool

	observers []Observer
	stats     *checkpoint.StatsIO
	runID     string

	i        int
	l        float64
	maxL     float64
	accepted int
	failures int
	snaps    []parameter.Snapshot
	sig      chan os.Signal
}

// NewChain creates a new chain.
func NewChain(ctx *operator.Context, s schedule.Schedule, target Target) *Chain {
	return &Chain{
		ctx:          ctx,
		schedule:     s,
		target:       target,
		AccPeriod:    1000,
		SamplePeriod: 100,
		Coerce:       true,
	}
}

// AddObserver adds an observer.
func (c *Chain) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// SetStatsIO enables saving operator statistics snapshots.
func (c *Chain) SetStatsIO(s *checkpoint.StatsIO, runID string) {
	c.stats = s
	c.runID = runID
}

// WatchSignals stops the chain after the current iteration if one of
// the signals is received.
func (c *Chain) WatchSignals(sigs ...os.Signal) {
	c.sig = make(chan os.Signal, 1)
	signal.Notify(c.sig, sigs...)
}

// LogDensity returns the current log target density.
func (c *Chain) LogDensity() float64 {
	return c.l
}

// MaxLogDensity returns the highest log target density seen.
func (c *Chain) MaxLogDensity() float64 {
	return c.maxL
}

// Iterations returns the number of completed iterations.
func (c *Chain) Iterations() int {
	return c.i
}

// Failures returns the number of failed proposals.
func (c *Chain) Failures() int {
	return c.failures
}

// Run performs the given number of iterations. Configuration and
// invariant errors from operators or the target stop the chain and are
// returned.
func (c *Chain) Run(iterations int) error {
	if err := schedule.Check(c.schedule); err != nil {
		return err
	}
	l, err := c.target.LogDensity(c.ctx.Store)
	if err != nil {
		return errors.WithMessage(err, "initial state")
	}
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return errors.Wrapf(operator.ErrConfiguration, "initial log density is %v", l)
	}
	c.l = l
	c.maxL = l
	log.Noticef("Starting the chain, log density %f", l)

	lastSample := -1
	c.accepted = 0
Iter:
	for c.i = 0; c.i < iterations; c.i++ {
		if c.i > 0 && c.AccPeriod > 0 && c.i%c.AccPeriod == 0 {
			log.Infof("Acceptance rate %.2f%%", 100*float64(c.accepted)/float64(c.AccPeriod))
			c.accepted = 0
		}
		if c.SamplePeriod > 0 && c.i%c.SamplePeriod == 0 {
			if err := c.observe(); err != nil {
				return err
			}
			lastSample = c.i
		}
		if err := c.step(); err != nil {
			return err
		}
		if c.stats != nil && c.stats.Old() {
			c.saveStats(false)
		}

		select {
		case s := <-c.sig:
			log.Warningf("Received signal %v, exiting.", s)
			c.i++
			break Iter
		default:
		}
	}

	if c.i != lastSample {
		if err := c.observe(); err != nil {
			return err
		}
	}
	if c.stats != nil {
		c.saveStats(true)
	}
	log.Noticef("Finished after %d iterations, log density %f, maximum %f", c.i, c.l, c.maxL)
	for _, op := range c.schedule.Operators() {
		if cc, ok := op.(coercion.Coercable); ok {
			if s := coercion.Suggest(cc); s != "" {
				log.Warning(s)
			}
		}
	}
	return nil
}

// step makes a single proposal and accepts or rejects it.
func (c *Chain) step() error {
	k := c.schedule.NextOperatorIndex(c.ctx.Rand)
	op := c.schedule.Operator(k)
	c.snaps = c.ctx.Store.Save(c.snaps, op.Parameters()...)

	prop, err := op.Propose(c.ctx)
	if err != nil {
		if !operator.IsFailure(err) {
			return errors.WithMessagef(err, "iteration %d", c.i)
		}
		log.Debugf("%d: %v", c.i, err)
		c.ctx.Store.Restore(c.snaps)
		op.Reject()
		c.failures++
		c.coerce(k, op, math.Inf(-1))
		return nil
	}

	newL, err := c.target.LogDensity(c.ctx.Store)
	if err != nil {
		return errors.WithMessagef(err, "iteration %d, operator %s", c.i, op.Name())
	}

	var logr float64
	accept := false
	if operator.IsGibbs(op) {
		accept = true
	} else {
		logr = newL - c.l + prop.LogHastingsRatio
		accept = logr >= 0 || math.Log(c.ctx.Rand.Float64()) < logr
	}
	if math.IsNaN(newL) {
		accept = false
		logr = math.Inf(-1)
	}

	if accept {
		op.Accept(newL - c.l)
		c.l = newL
		c.accepted++
		if c.l > c.maxL {
			c.maxL = c.l
		}
	} else {
		c.ctx.Store.Restore(c.snaps)
		op.Reject()
	}
	c.coerce(k, op, logr)
	return nil
}

// coerce tunes the operator k given the log acceptance ratio.
func (c *Chain) coerce(k int, op operator.Operator, logr float64) {
	if !c.Coerce {
		return
	}
	if cc, ok := op.(coercion.Coercable); ok {
		c.schedule.Tuner(k).Coerce(cc, logr)
	}
}

func (c *Chain) observe() error {
	for _, o := range c.observers {
		if err := o.Observe(c.i, c.l, c.ctx.Store); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the statistics of all the operators.
func (c *Chain) Stats() []operator.Stats {
	ops := c.schedule.Operators()
	stats := make([]operator.Stats, len(ops))
	for i, op := range ops {
		stats[i] = op.Stats()
	}
	return stats
}

func (c *Chain) saveStats(final bool) {
	err := c.stats.Save(&checkpoint.StatsData{
		RunID:      c.runID,
		Seed:       c.ctx.Rand.InitialSeed(),
		Iter:       c.i,
		LogDensity: c.l,
		Operators:  c.Stats(),
		Final:      final,
	})
	if err != nil {
		log.Warningf("Cannot save operator statistics: %v", err)
	}
}
