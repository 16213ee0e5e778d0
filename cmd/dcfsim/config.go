package main

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// runConfig holds the options of one run of the simulator
type runConfig struct {
	ExpFile      string
	TraceFile    string
	SummaryFile  string
	Duration     time.Duration
	UseEvtm      bool
	LogLevel     string
	Development  bool
	Metadata     bool
	MetaChecking bool
	SystemID     uint32
	RouteCache   int
}

func defaultRunConfig() runConfig {
	return runConfig{
		Duration:   10 * time.Second,
		LogLevel:   "info",
		RouteCache: 64,
	}
}

type fileConfig struct {
	Experiment   string `toml:"experiment"`
	Trace        string `toml:"trace"`
	Summary      string `toml:"summary"`
	Duration     string `toml:"duration"`
	Evtm         bool   `toml:"evtm"`
	LogLevel     string `toml:"log_level"`
	Development  bool   `toml:"development"`
	Metadata     bool   `toml:"metadata"`
	MetaChecking bool   `toml:"metadata_checking"`
	SystemID     uint32 `toml:"system_id"`
	RouteCache   int    `toml:"route_cache"`
}

// loadRunConfig overlays the values the TOML file at filename defines on the defaults
func loadRunConfig(filename string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(filename, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load run config: %w", err)
	}

	if meta.IsDefined("experiment") {
		cfg.ExpFile = strings.TrimSpace(raw.Experiment)
	}
	if meta.IsDefined("trace") {
		cfg.TraceFile = strings.TrimSpace(raw.Trace)
	}
	if meta.IsDefined("summary") {
		cfg.SummaryFile = strings.TrimSpace(raw.Summary)
	}
	if meta.IsDefined("duration") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Duration))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse duration: %w", err)
		}
		cfg.Duration = d
	}
	if meta.IsDefined("evtm") {
		cfg.UseEvtm = raw.Evtm
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("development") {
		cfg.Development = raw.Development
	}
	if meta.IsDefined("metadata") {
		cfg.Metadata = raw.Metadata
	}
	if meta.IsDefined("metadata_checking") {
		cfg.MetaChecking = raw.MetaChecking
	}
	if meta.IsDefined("system_id") {
		cfg.SystemID = raw.SystemID
	}
	if meta.IsDefined("route_cache") {
		cfg.RouteCache = raw.RouteCache
	}
	return cfg, nil
}

// validate reports a configuration that cannot be run
func (cfg runConfig) validate() error {
	if cfg.ExpFile == "" {
		return errors.New("no experiment file given")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration %v is not positive", cfg.Duration)
	}
	return nil
}

// expIsYAML reports whether the experiment file is YAML, judged by its extension
func (cfg runConfig) expIsYAML() bool {
	switch path.Ext(cfg.ExpFile) {
	case ".yaml", ".YAML", ".yml":
		return true
	}
	return false
}
