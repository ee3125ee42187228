package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	validMethods  = map[string]bool{"ghc": true, "sa": true, "tabu_sa": true, "tunnel_sa": true, "lahc": true}
	validDecays   = map[string]bool{"linear": true, "geometric": true}
	validCostFuns = map[string]bool{"average": true, "stochastic": true}
	validBackends = map[string]bool{"file": true, "sqlite": true}
)

// LoadConfig loads and parses a configuration file. Files ending in .toml
// are read as TOML, anything else as YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	parse := ParseConfigYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseConfigTOML
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}

	if err := cfg.Problem.Validate(); err != nil {
		return fmt.Errorf("problem validation failed: %w", err)
	}

	if cfg.Initial != nil {
		if err := cfg.Initial.Validate(cfg.Problem); err != nil {
			return fmt.Errorf("initial configuration validation failed: %w", err)
		}
	}

	if err := validateAlgorithm(&cfg.Algorithm); err != nil {
		return fmt.Errorf("algorithm validation failed: %w", err)
	}

	if err := validateBenchmark(&cfg.Benchmark); err != nil {
		return fmt.Errorf("benchmark validation failed: %w", err)
	}

	if err := validateResults(&cfg.Results); err != nil {
		return fmt.Errorf("results validation failed: %w", err)
	}

	return nil
}

// validateAlgorithm checks only the fields the chosen method uses
func validateAlgorithm(a *Algorithm) error {
	if !validMethods[a.Method] {
		return fmt.Errorf("invalid method: %s (must be ghc, sa, tabu_sa, tunnel_sa, or lahc)", a.Method)
	}
	if a.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative, got %d", a.MaxIterations)
	}
	if a.Parallelism < 0 {
		return fmt.Errorf("parallelism cannot be negative, got %d", a.Parallelism)
	}
	if a.Repeat < 0 {
		return fmt.Errorf("repeat cannot be negative, got %d", a.Repeat)
	}

	switch a.Method {
	case "sa", "tabu_sa", "tunnel_sa":
		if a.T0 < 0 {
			return fmt.Errorf("t0 cannot be negative, got %f", a.T0)
		}
		if !validDecays[a.TempDecay] {
			return fmt.Errorf("invalid temp_decay: %s (must be linear or geometric)", a.TempDecay)
		}
	}

	switch a.Method {
	case "tabu_sa":
		if a.TabuSize < 0 {
			return fmt.Errorf("tabu_size cannot be negative, got %d", a.TabuSize)
		}
	case "tunnel_sa":
		if !validCostFuns[a.CostFun] {
			return fmt.Errorf("invalid cost_fun: %s (must be average or stochastic)", a.CostFun)
		}
	case "lahc":
		if a.Lh <= 0 {
			return fmt.Errorf("lh must be positive, got %d", a.Lh)
		}
	}

	return nil
}

// validateBenchmark validates the benchmark configuration
func validateBenchmark(b *Benchmark) error {
	if b.TimeSteps <= 0 {
		return fmt.Errorf("time_steps must be positive, got %d", b.TimeSteps)
	}
	if _, err := b.GetTimeout(); err != nil {
		return fmt.Errorf("invalid timeout %s: %w", b.Timeout, err)
	}
	if b.Energy.MaxPowerMW < 0 {
		return fmt.Errorf("energy max_power cannot be negative, got %f", b.Energy.MaxPowerMW)
	}
	return nil
}

// validateResults validates the persistence configuration
func validateResults(r *Results) error {
	if !validBackends[r.Backend] {
		return fmt.Errorf("invalid backend: %s (must be file or sqlite)", r.Backend)
	}
	if r.Backend == "file" && r.Dir == "" {
		return fmt.Errorf("dir is required for the file backend")
	}
	if r.Backend == "sqlite" && r.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required for the sqlite backend")
	}
	return nil
}
