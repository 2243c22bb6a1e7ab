// Package schedule selects which operator proposes next.
package schedule

import (
	"fmt"

	"github.com/op/go-logging"
	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/coercion"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/rng"
)

// log is the global logging variable.
var log = logging.MustGetLogger("schedule")

// Schedule is an ordered collection of operators with a selection
// policy.
type Schedule interface {
	AddOperator(op operator.Operator) error
	Operator(i int) operator.Operator
	OperatorCount() int
	// NextOperatorIndex selects the index of the next operator.
	NextOperatorIndex(src *rng.Source) int
	// Reset resets the counters of every operator.
	Reset()
	Operators() []operator.Operator
	// Tuner returns the coercion tuner for the operator i.
	Tuner(i int) coercion.Tuner
}

// Policy is an operator selection policy.
type Policy int

const (
	// Weighted selects operators with probability proportional to
	// their weights.
	Weighted Policy = iota
	// Sequential cycles through the operators in order.
	Sequential
)

// ParsePolicy converts a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "weighted", "default":
		return Weighted, nil
	case "sequential":
		return Sequential, nil
	}
	return Weighted, fmt.Errorf("unknown schedule policy: %s", s)
}

func (p Policy) String() string {
	if p == Sequential {
		return "sequential"
	}
	return "weighted"
}

// Simple is a flat schedule.
type Simple struct {
	ops       []operator.Operator
	policy    Policy
	transform coercion.Transform
	next      int
	weights   []float64
}

// NewSimple creates an empty schedule.
func NewSimple(policy Policy, transform coercion.Transform) *Simple {
	return &Simple{
		policy:    policy,
		transform: transform,
	}
}

// AddOperator appends an operator to the schedule.
func (s *Simple) AddOperator(op operator.Operator) error {
	if op == nil {
		return errors.Wrap(operator.ErrConfiguration, "nil operator")
	}
	for _, o := range s.ops {
		if o == op {
			return errors.Wrapf(operator.ErrConfiguration, "operator %s added twice", op.Name())
		}
	}
	s.ops = append(s.ops, op)
	return nil
}

// Operator returns the operator i.
func (s *Simple) Operator(i int) operator.Operator {
	return s.ops[i]
}

// OperatorCount returns the number of operators.
func (s *Simple) OperatorCount() int {
	return len(s.ops)
}

// Operators returns the operators in schedule order.
func (s *Simple) Operators() []operator.Operator {
	return append([]operator.Operator(nil), s.ops...)
}

// Policy returns the selection policy.
func (s *Simple) Policy() Policy {
	return s.policy
}

// NextOperatorIndex selects the next operator. Weights are read on
// every call, since operators may change them.
func (s *Simple) NextOperatorIndex(src *rng.Source) int {
	if len(s.ops) == 0 {
		panic("selecting an operator from an empty schedule")
	}
	if s.policy == Sequential {
		i := s.next
		s.next = (s.next + 1) % len(s.ops)
		return i
	}
	if len(s.ops) == 1 {
		return 0
	}
	s.weights = s.weights[:0]
	for _, op := range s.ops {
		s.weights = append(s.weights, op.Weight())
	}
	return src.Categorical(s.weights)
}

// Reset resets every operator and restarts the sequential cycle.
func (s *Simple) Reset() {
	s.next = 0
	for _, op := range s.ops {
		op.Reset()
	}
}

// Tuner returns the tuner using the schedule transform.
func (s *Simple) Tuner(i int) coercion.Tuner {
	return coercion.Tuner{Transform: s.transform}
}

// Combined picks one of its sub-schedules uniformly and delegates the
// selection to it. Operator indices are the sub-schedule offset plus
// the index within the sub-schedule.
type Combined struct {
	schedules []Schedule
}

// NewCombined creates a combined schedule.
func NewCombined(schedules ...Schedule) *Combined {
	return &Combined{schedules: append([]Schedule(nil), schedules...)}
}

// AddSchedule appends a sub-schedule.
func (c *Combined) AddSchedule(s Schedule) {
	c.schedules = append(c.schedules, s)
}

// Schedules returns the sub-schedules.
func (c *Combined) Schedules() []Schedule {
	return append([]Schedule(nil), c.schedules...)
}

// AddOperator always fails: operators belong to the sub-schedules.
func (c *Combined) AddOperator(op operator.Operator) error {
	name := "<nil>"
	if op != nil {
		name = op.Name()
	}
	log.Errorf("Cannot add operator %s to a combined schedule, add it to a sub-schedule", name)
	return errors.Wrapf(operator.ErrConfiguration, "cannot add operator %s to a combined schedule", name)
}

// locate converts a combined index to a sub-schedule and its local
// index.
func (c *Combined) locate(i int) (Schedule, int) {
	if i >= 0 {
		for _, s := range c.schedules {
			n := s.OperatorCount()
			if i < n {
				return s, i
			}
			i -= n
		}
	}
	panic(fmt.Sprintf("operator index %d out of range", i))
}

// Operator returns the operator i.
func (c *Combined) Operator(i int) operator.Operator {
	s, j := c.locate(i)
	return s.Operator(j)
}

// OperatorCount returns the total number of operators.
func (c *Combined) OperatorCount() int {
	n := 0
	for _, s := range c.schedules {
		n += s.OperatorCount()
	}
	return n
}

// Operators returns all the operators, sub-schedule by sub-schedule.
func (c *Combined) Operators() []operator.Operator {
	var ops []operator.Operator
	for _, s := range c.schedules {
		ops = append(ops, s.Operators()...)
	}
	return ops
}

// NextOperatorIndex selects a sub-schedule uniformly and returns its
// offset plus the sub-schedule selection.
func (c *Combined) NextOperatorIndex(src *rng.Source) int {
	if len(c.schedules) == 0 {
		panic("selecting an operator from an empty combined schedule")
	}
	k := src.Intn(len(c.schedules))
	offset := 0
	for _, s := range c.schedules[:k] {
		offset += s.OperatorCount()
	}
	return offset + c.schedules[k].NextOperatorIndex(src)
}

// Reset resets every sub-schedule.
func (c *Combined) Reset() {
	for _, s := range c.schedules {
		s.Reset()
	}
}

// Tuner returns the tuner of the sub-schedule owning the operator i.
func (c *Combined) Tuner(i int) coercion.Tuner {
	s, j := c.locate(i)
	return s.Tuner(j)
}

// Check returns a configuration error if the schedule, or any
// sub-schedule of a combined schedule, has no operators.
func Check(s Schedule) error {
	c, ok := s.(*Combined)
	if !ok {
		if s.OperatorCount() == 0 {
			return errors.Wrap(operator.ErrConfiguration, "no operators")
		}
		return nil
	}
	if len(c.schedules) == 0 {
		return errors.Wrap(operator.ErrConfiguration, "combined schedule without sub-schedules")
	}
	for i, sub := range c.schedules {
		if err := Check(sub); err != nil {
			return errors.WithMessagef(err, "sub-schedule %d", i)
		}
	}
	return nil
}
