// Package operator implements MCMC proposal operators.
//
// An operator proposes a new value of one or more parameters of a
// parameter.Store and returns the log Hastings ratio of the proposal.
// It never evaluates the target density: the caller does that, decides
// acceptance and reports it back with Accept or Reject. The operator
// does not roll back rejected proposals, the caller restores the saved
// state.
package operator

import (
	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/rng"
)

// log is the global logging variable.
var log = logging.MustGetLogger("operator")

var (
	// ErrOperatorFailed means that a proposal could not be formed.
	// The caller treats it as a rejection.
	ErrOperatorFailed = errors.New("operator failed")
	// ErrConfiguration is a fatal construction error.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvariant is a fatal state-consistency error.
	ErrInvariant = errors.New("invariant violation")
)

// Context is passed to every proposal. A chain has exactly one
// Context, so all operators share the parameter arena and the random
// stream.
type Context struct {
	Store *parameter.Store
	Rand  *rng.Source
}

// NewContext creates a new proposal context.
func NewContext(store *parameter.Store, src *rng.Source) *Context {
	return &Context{Store: store, Rand: src}
}

// Proposal is the result of a successful proposal.
type Proposal struct {
	// LogHastingsRatio is log q(x|x') - log q(x'|x).
	LogHastingsRatio float64
	// Changed lists the modified elements.
	Changed []parameter.Change
}

// Operator is an MCMC proposal operator.
type Operator interface {
	Name() string
	// Propose modifies the parameters in place. An error wrapping
	// ErrOperatorFailed is an ordinary rejection, any other error is
	// fatal.
	Propose(ctx *Context) (Proposal, error)
	// Accept and Reject are called exactly once after each Propose.
	Accept(deviation float64)
	Reject()
	Weight() float64
	SetWeight(w float64)
	Reset()
	Count() int
	AcceptanceProbability() float64
	Stats() Stats
	SetStats(s Stats)
	// Parameters lists the parameters the operator may modify.
	Parameters() []parameter.Handle
}

// Gibbs is implemented by operators which draw from a full conditional
// distribution. Their proposals are always accepted.
type Gibbs interface {
	Operator
	Gibbs()
}

// IsGibbs returns true if op is a Gibbs operator.
func IsGibbs(op Operator) bool {
	_, ok := op.(Gibbs)
	return ok
}

// IsFailure returns true if err is a recoverable proposal failure.
func IsFailure(err error) bool {
	return errors.Is(err, ErrOperatorFailed)
}

// failf creates a recoverable proposal failure.
func failf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrOperatorFailed, format, args...)
}

// configf creates a configuration error.
func configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// invariantf creates an invariant violation error.
func invariantf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvariant, format, args...)
}
