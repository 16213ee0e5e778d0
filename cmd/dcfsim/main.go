// dcfsim builds an experiment of stations contending for a shared medium
// from a description file, runs it, and writes what it observed.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iti/pktdcf"
	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	cfgFile := flag.String("config", "", "TOML run configuration")
	expFile := flag.String("exp", "", "experiment description, .yaml or .json")
	traceFile := flag.String("trace", "", "output path for the frame trace")
	summaryFile := flag.String("summary", "", "output path for the run summary")
	duration := flag.Duration("duration", 0, "simulated time to run")
	level := flag.String("log", "", "log level: debug|info|warn|error")
	flag.Parse()

	cfg := defaultRunConfig()
	if *cfgFile != "" {
		var err error
		if cfg, err = loadRunConfig(*cfgFile); err != nil {
			fmt.Fprintf(os.Stderr, "dcfsim: %v\n", err)
			os.Exit(1)
		}
	}

	// flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "exp":
			cfg.ExpFile = *expFile
		case "trace":
			cfg.TraceFile = *traceFile
		case "summary":
			cfg.SummaryFile = *summaryFile
		case "duration":
			cfg.Duration = *duration
		case "log":
			cfg.LogLevel = *level
		}
	})

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dcfsim: %v\n", err)
		os.Exit(1)
	}
}

func buildLogger(cfg runConfig) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func run(cfg runConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	err := multierr.Combine(
		pktdcf.CheckReadableFiles([]string{cfg.ExpFile}),
		pktdcf.CheckOutputFiles([]string{cfg.TraceFile, cfg.SummaryFile}))
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	pktdcf.SetLogger(logger)

	if cfg.SystemID != 0 {
		packet.SetSystemID(cfg.SystemID)
	}
	switch {
	case cfg.MetaChecking:
		packet.EnableMetadataChecking()
	case cfg.Metadata:
		packet.EnableMetadata()
	}

	expCfg, err := pktdcf.ReadExpCfg(cfg.ExpFile, cfg.expIsYAML(), nil)
	if err != nil {
		return err
	}
	exp, err := pktdcf.BuildExperiment(expCfg, pktdcf.BuildOpts{
		UseEvtm:        cfg.UseEvtm,
		Trace:          cfg.TraceFile != "",
		RouteCacheSize: cfg.RouteCache,
	})
	if err != nil {
		return err
	}

	started := time.Now()
	exp.Run(sim.Time(cfg.Duration.Nanoseconds()))
	logger.Info("run complete",
		zap.String("expname", expCfg.Name),
		zap.Duration("simulated", cfg.Duration),
		zap.Duration("wallclock", time.Since(started)))

	sum := exp.Summary()
	fmt.Print(sum.String())

	if cfg.TraceFile != "" {
		err = multierr.Append(err, exp.WriteTrace(cfg.TraceFile))
	}
	if cfg.SummaryFile != "" {
		err = multierr.Append(err, sum.WriteToFile(cfg.SummaryFile))
	}
	return err
}
