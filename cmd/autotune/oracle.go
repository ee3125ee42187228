package main

import (
	"fmt"

	"github.com/iso3dfd-st7/autotune/internal/benchmark"
	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/internal/tunerd"
	"github.com/iso3dfd-st7/autotune/pkg/config"
)

// newOracle builds the benchmark oracle for objective, "throughput" when empty
func newOracle(cfg *config.Config, objective string) (improvement.Oracle, error) {
	builder := benchmark.NewBuilder(cfg.Benchmark, benchmark.ExecCommander{})
	switch objective {
	case "", tunerd.ObjectiveThroughput:
		runner, err := benchmark.NewRunner(cfg.Benchmark, builder, benchmark.ExecCommander{})
		if err != nil {
			return nil, err
		}
		return runner, nil
	case tunerd.ObjectiveEnergy:
		meter, err := benchmark.NewEnergyMeter(cfg.Benchmark, builder, benchmark.ExecCommander{})
		if err != nil {
			return nil, err
		}
		return meter, nil
	default:
		return nil, fmt.Errorf("unknown objective %q (must be throughput or energy)", objective)
	}
}
