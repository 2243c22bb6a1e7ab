/*
Mcmcrun samples one of the demo models with a configurable operator
schedule.

The basic usage looks like this:

	mcmcrun run mixture

, this will sample the Dirichlet process mixture with its default
schedule. A different schedule can be read from a YAML file:

	mcmcrun run -config schedule.yaml -out trace.tsv -plot trace.png mvn

Operator statistics can be saved to a database with -stats and listed
later:

	mcmcrun runs stats.db
	mcmcrun runs stats.db 5fd2c0c1-...

To see all the options run:

	mcmcrun -h
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/mcmckernel/checkpoint"
	"bitbucket.org/Davydov/mcmckernel/config"
	"bitbucket.org/Davydov/mcmckernel/demo"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/rng"
	"bitbucket.org/Davydov/mcmckernel/sampler"
	"bitbucket.org/Davydov/mcmckernel/trace"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("mcmcrun")
var formatter = logging.MustStringFormatter(`%{message}`)

// modules lists the loggers whose level is set from the command line.
var modules = []string{"mcmcrun", "sampler", "operator", "coercion", "schedule",
	"dirichlet", "parameter", "config", "checkpoint", "trace"}

// command-line options
var (
	// application
	app = kingpin.New("mcmcrun", "MCMC operator kernel sampler").Version(version)

	// technical
	seed       = app.Flag("seed", "random generator seed, any integer; by default from the configuration or time based").String()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()
	outLogF    = app.Flag("log", "write log to a file").String()
	logLevel   = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")

	// run
	runCmd = app.Command("run", "sample a model").Default()
	model  = runCmd.Arg("model", "model to sample").Required().Enum(demo.Names()...)
	cfgF   = runCmd.Flag("config", "YAML schedule configuration, the model default if not set").ExistingFile()

	iterations = runCmd.Flag("iter", "number of iterations").Default("-1").Int()
	report     = runCmd.Flag("report", "report every N iterations").Default("-1").Int()
	accept     = runCmd.Flag("accept", "report acceptance rate every N iterations").Default("-1").Int()
	noCoerce   = runCmd.Flag("nocoerce", "don't tune operator parameters").Bool()
	burnin     = runCmd.Flag("burnin", "fraction of samples to discard in the summary").Default("0.1").Float64()

	// input/output
	outF     = runCmd.Flag("out", "write samples to a file").String()
	plotF    = runCmd.Flag("plot", "write trace plots to a png, svg or pdf file").String()
	metricsF = runCmd.Flag("metrics", "write metrics in the text exposition format to a file").String()
	statsF   = runCmd.Flag("stats", "save operator statistics to a database").String()
	jsonF    = runCmd.Flag("json", "write json output to a file").String()

	// runs
	runsCmd = app.Command("runs", "list runs saved in a statistics database")
	runsDB  = runsCmd.Arg("db", "statistics database").Required().ExistingFile()
	runID   = runsCmd.Arg("id", "print statistics of a run").String()
)

// RunSummary is the json output.
type RunSummary struct {
	Version       string
	CommandLine   []string
	RunID         string
	Model         string
	Seed          int64
	Iterations    int
	Failures      int
	LogDensity    float64
	MaxLogDensity float64
	Operators     []operator.Stats
	Summary       []trace.Summary
	Time          float64
}

// loadConfig reads the configuration and applies the command line.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *cfgF != "" {
		log.Infof("Reading configuration from %s", *cfgF)
		cfg, err = config.Load(*cfgF)
	} else {
		log.Infof("Using the default configuration of %s", *model)
		var text string
		if text, err = demo.Config(*model); err != nil {
			return nil, err
		}
		cfg, err = config.Parse([]byte(text))
	}
	if err != nil {
		return nil, err
	}
	if *iterations >= 0 {
		cfg.Iterations = *iterations
	}
	if *report >= 0 {
		cfg.SamplePeriod = *report
	}
	if *accept >= 0 {
		cfg.AccPeriod = *accept
	}
	if *noCoerce {
		cfg.Coercion = false
	}
	if cfg.Seed, err = resolveSeed(*seed, cfg.Seed, timeSeed); err != nil {
		return nil, err
	}
	return cfg, nil
}

// timeSeed returns a seed based on the current time.
func timeSeed() int64 {
	log.Debug("Random seed from time")
	return time.Now().UnixNano()
}

// resolveSeed returns the seed given on the command line (any integer,
// including 0), otherwise the configuration seed. A zero configuration
// seed means a seed from now.
func resolveSeed(flag string, cfgSeed int64, now func() int64) (int64, error) {
	if flag != "" {
		s, err := strconv.ParseInt(flag, 10, 64)
		if err != nil {
			return 0, errors.Errorf("invalid seed %q", flag)
		}
		return s, nil
	}
	if cfgSeed != 0 {
		return cfgSeed, nil
	}
	return now(), nil
}

func run() *RunSummary {
	startTime := time.Now()
	summary := &RunSummary{Model: *model}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	src := rng.New(cfg.Seed)
	d, err := demo.New(*model, src)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Random seed=%v", src.InitialSeed())
	summary.Seed = src.InitialSeed()

	b := config.NewBuilder(d.Store)
	b.Models = d.Models
	b.Designs = d.Designs
	sched, err := b.Build(cfg)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Schedule has %d operators", sched.OperatorCount())

	chain := sampler.NewChain(operator.NewContext(d.Store, src), sched, d.Target)
	chain.SamplePeriod = cfg.SamplePeriod
	chain.AccPeriod = cfg.AccPeriod
	chain.Coerce = cfg.Coercion
	chain.WatchSignals(os.Interrupt, syscall.SIGTERM)

	summary.RunID = uuid.New().String()
	log.Infof("Run id: %s", summary.RunID)

	if *statsF != "" {
		db, err := checkpoint.Open(*statsF)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		chain.SetStatsIO(checkpoint.NewStatsIO(db, []byte(summary.RunID), cfg.StatsInterval), summary.RunID)
	}

	var logger *trace.Logger
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating output file:", err)
		}
		defer f.Close()
		logger = trace.NewLogger(f, d.Trace, d.Columns...)
		chain.AddObserver(logger)
	}
	rec := trace.NewRecorder(d.Trace, d.Columns...)
	chain.AddObserver(rec)
	var metrics *trace.Metrics
	if *metricsF != "" {
		metrics = trace.NewMetrics(sched.Operators())
		chain.AddObserver(metrics)
	}

	runErr := chain.Run(cfg.Iterations)
	if logger != nil {
		if err := logger.Flush(); err != nil {
			log.Error("Error writing samples:", err)
		}
	}
	if runErr != nil {
		log.Fatal(runErr)
	}

	if err := trace.Report(os.Stderr, sched.Operators()); err != nil {
		log.Error(err)
	}
	summary.Summary = rec.Summarize(*burnin)
	for _, s := range summary.Summary {
		log.Noticef("%s\tmean=%g\tsd=%g", s.Name, s.Mean, s.SD)
	}
	if *plotF != "" {
		if err := rec.Plot(*plotF); err != nil {
			log.Error("Error plotting:", err)
		}
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(*metricsF); err != nil {
			log.Error("Error writing metrics:", err)
		}
	}

	summary.Iterations = chain.Iterations()
	summary.Failures = chain.Failures()
	summary.LogDensity = chain.LogDensity()
	summary.MaxLogDensity = chain.MaxLogDensity()
	summary.Operators = chain.Stats()
	summary.Time = time.Since(startTime).Seconds()
	return summary
}

// runs prints the run ids of a database or the statistics of one run.
func runs() {
	db, err := checkpoint.Open(*runsDB)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if *runID == "" {
		ids, err := checkpoint.Runs(db)
		if err != nil {
			log.Fatal(err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return
	}
	data, err := checkpoint.LoadStats(db, []byte(*runID))
	if err != nil {
		log.Fatal(err)
	}
	if data == nil {
		log.Fatalf("No run %s", *runID)
	}
	j, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(j))
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, m := range modules {
		logging.SetLevel(level, m)
	}

	if cmd == runsCmd.FullCommand() {
		runs()
		return
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.Version = version
	summary.CommandLine = os.Args

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
