package config

import (
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// Config represents a tuning experiment and the services around it
type Config struct {
	LogLevel  string                `yaml:"log_level" toml:"log_level"`
	LogFormat string                `yaml:"log_format,omitempty" toml:"log_format,omitempty"` // text or json
	Problem   models.ProblemSize    `yaml:"problem" toml:"problem"`
	Initial   *models.Configuration `yaml:"initial,omitempty" toml:"initial,omitempty"`
	Algorithm Algorithm             `yaml:"algorithm" toml:"algorithm"`
	Benchmark Benchmark             `yaml:"benchmark" toml:"benchmark"`
	Results   Results               `yaml:"results" toml:"results"`
	Server    Server                `yaml:"server" toml:"server"`
}

// Algorithm selects the search method and its hyperparameters.
// Fields that do not apply to the chosen method are ignored.
type Algorithm struct {
	Method        string  `yaml:"method" toml:"method"` // ghc, sa, tabu_sa, tunnel_sa, lahc
	MaxIterations int     `yaml:"max_iterations" toml:"max_iterations"`
	Seed          int64   `yaml:"seed,omitempty" toml:"seed,omitempty"`
	T0            float64 `yaml:"t0" toml:"t0"`
	TempDecay     string  `yaml:"temp_decay" toml:"temp_decay"` // linear or geometric
	TabuSize      int     `yaml:"tabu_size" toml:"tabu_size"`
	CostFun       string  `yaml:"cost_fun" toml:"cost_fun"` // average or stochastic
	ETunnel       float64 `yaml:"e_tunnel" toml:"e_tunnel"`
	Lh            int     `yaml:"lh" toml:"lh"`
	Parallelism   int     `yaml:"parallelism,omitempty" toml:"parallelism,omitempty"`
	Repeat        int     `yaml:"repeat,omitempty" toml:"repeat,omitempty"` // independent trials, seeds Seed, Seed+1, ...
}

// Benchmark describes how the iso3dfd binary is built and measured
type Benchmark struct {
	SourceDir  string `yaml:"source_dir" toml:"source_dir"`
	BinDir     string `yaml:"bin_dir" toml:"bin_dir"`
	TimeSteps  int    `yaml:"time_steps" toml:"time_steps"`
	Affinity   string `yaml:"affinity" toml:"affinity"`
	Timeout    string `yaml:"timeout,omitempty" toml:"timeout,omitempty"` // per measurement, e.g. "5m"
	Energy     Energy `yaml:"energy" toml:"energy"`
	MakeTarget string `yaml:"make_target" toml:"make_target"`
}

// Energy describes the external power monitor
type Energy struct {
	Monitor    string  `yaml:"monitor" toml:"monitor"`
	PlotCmd    string  `yaml:"plot_cmd" toml:"plot_cmd"`
	WorkDir    string  `yaml:"work_dir" toml:"work_dir"`
	CSVPath    string  `yaml:"csv_path" toml:"csv_path"`
	MaxPowerMW float64 `yaml:"max_power" toml:"max_power"`
}

// Results selects where finished runs are persisted
type Results struct {
	Backend    string `yaml:"backend" toml:"backend"` // file or sqlite
	Dir        string `yaml:"dir" toml:"dir"`
	SQLitePath string `yaml:"sqlite_path,omitempty" toml:"sqlite_path,omitempty"`
}

// Server holds the listen addresses of the tuning daemon
type Server struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// InitialConfiguration returns the configured S0, or the default start
// point for the problem size when none is set
func (c *Config) InitialConfiguration() models.Configuration {
	if c.Initial != nil {
		return *c.Initial
	}
	return models.DefaultConfiguration(c.Problem)
}

// GetTimeout parses the per-measurement timeout. Zero means none.
func (b *Benchmark) GetTimeout() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(b.Timeout)
}
