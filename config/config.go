// Package config loads operator and schedule descriptions and builds
// schedules from them.
//
// Values are resolved in the order defaults, YAML file, environment
// (MCMC_SEED, MCMC_ITERATIONS), then validated.
package config

import (
	"bytes"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/mcmckernel/operator"
)

// log is the global logging variable.
var log = logging.MustGetLogger("config")

// Operator kinds.
const (
	RandomWalk          = "random-walk"
	AdaptiveRandomWalk  = "adaptive-random-walk"
	AdaptiveMVN         = "adaptive-mvn"
	RandomWalkInteger   = "random-walk-integer"
	HierarchicalBitFlip = "hierarchical-bit-flip"
	DirichletProcess    = "dirichlet-process"
)

const (
	envSeed              = "MCMC_SEED"
	envIterations        = "MCMC_ITERATIONS"
	defaultAccPeriod     = 1000
	defaultSamplePeriod  = 100
	defaultIterations    = 10000
	defaultStatsInterval = 60
)

var validate = validator.New()

// Config is a chain description.
type Config struct {
	// Seed of the random stream, 0 means a seed derived from the time.
	Seed         int64 `yaml:"seed"`
	Iterations   int   `yaml:"iterations" validate:"gte=0"`
	SamplePeriod int   `yaml:"sample_period" validate:"gte=0"`
	AccPeriod    int   `yaml:"acceptance_period" validate:"gte=0"`
	// Coercion enables tuning of coercable operators.
	Coercion bool `yaml:"coercion"`
	// StatsInterval is the number of seconds between operator
	// statistics snapshots.
	StatsInterval float64 `yaml:"stats_interval" validate:"gte=0"`
	// Schedules lists the schedules; more than one schedule builds a
	// combined schedule.
	Schedules []Schedule `yaml:"schedules" validate:"required,min=1,dive"`
}

// Schedule describes a schedule.
type Schedule struct {
	Policy    string     `yaml:"policy" validate:"omitempty,oneof=weighted sequential default"`
	Transform string     `yaml:"transform" validate:"omitempty,oneof=default sqrt log linear"`
	Operators []Operator `yaml:"operators" validate:"required,min=1,dive"`
}

// Operator describes an operator. Fields which do not apply to the
// kind are ignored, zero values are replaced by defaults.
type Operator struct {
	Name      string  `yaml:"name" validate:"required"`
	Kind      string  `yaml:"kind" validate:"required,oneof=random-walk adaptive-random-walk adaptive-mvn random-walk-integer hierarchical-bit-flip dirichlet-process"`
	Weight    float64 `yaml:"weight" validate:"gt=0"`
	Parameter string  `yaml:"parameter"`

	// coercion
	Coercion         string  `yaml:"coercion" validate:"omitempty,oneof=default on off true false"`
	TargetAcceptance float64 `yaml:"target_acceptance" validate:"gte=0,lt=1"`

	// random-walk
	WindowSize float64 `yaml:"window_size" validate:"gte=0"`
	Uniform    bool    `yaml:"uniform"`

	// adaptive-random-walk
	SD       float64 `yaml:"sd" validate:"gte=0"`
	Skip     int     `yaml:"skip" validate:"gte=0"`
	MaxAdapt int     `yaml:"max_adapt" validate:"gte=0"`

	// adaptive-mvn
	ScaleFactor     float64  `yaml:"scale_factor" validate:"gte=0"`
	UpdateEvery     int      `yaml:"update_every" validate:"omitempty,gte=2"`
	InitialVariance float64  `yaml:"initial_variance" validate:"gte=0"`
	Design          string   `yaml:"design"`
	Transforms      []string `yaml:"transforms" validate:"dive,oneof=identity none log logit"`

	// random-walk-integer
	Window int `yaml:"window" validate:"gte=0"`

	// hierarchical-bit-flip
	Strata     []string `yaml:"strata"`
	PriorOnSum bool     `yaml:"prior_on_sum"`

	// dirichlet-process
	Model       string  `yaml:"model"`
	Assignments string  `yaml:"assignments"`
	Realized    string  `yaml:"realized"`
	Intensity   string  `yaml:"intensity"`
	Step        float64 `yaml:"step" validate:"gte=0"`
	Steps       int     `yaml:"steps" validate:"gte=0"`
	FixRealized bool    `yaml:"fix_realized"`
}

// Default returns the default configuration without schedules.
func Default() *Config {
	return &Config{
		Iterations:    defaultIterations,
		SamplePeriod:  defaultSamplePeriod,
		AccPeriod:     defaultAccPeriod,
		Coercion:      true,
		StatsInterval: defaultStatsInterval,
	}
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read configuration")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	log.Infof("Loaded configuration from %s", path)
	return cfg, nil
}

// Parse parses and validates a YAML configuration, applying the
// environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(operator.ErrConfiguration, "cannot parse configuration: %v", err)
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv overrides the seed and the number of iterations from the
// environment.
func (c *Config) loadEnv() error {
	if v := os.Getenv(envSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(operator.ErrConfiguration, "%s: %v", envSeed, err)
		}
		c.Seed = seed
	}
	if v := os.Getenv(envIterations); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(operator.ErrConfiguration, "%s: %v", envIterations, err)
		}
		c.Iterations = n
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(operator.ErrConfiguration, "invalid configuration: %v", err)
	}
	names := map[string]bool{}
	for _, s := range c.Schedules {
		for _, o := range s.Operators {
			if names[o.Name] {
				return errors.Wrapf(operator.ErrConfiguration, "duplicate operator name %s", o.Name)
			}
			names[o.Name] = true
		}
	}
	return nil
}
