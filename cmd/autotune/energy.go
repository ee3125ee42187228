package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/iso3dfd-st7/autotune/internal/benchmark"
	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

const energyUsage = `usage: autotune energy [flags] n1 n2 n3 Olevel simd NbTh n1_thrd_block n2_thrd_block n3_thrd_block
       autotune energy [flags] -list FILE n1 n2 n3`

func runEnergy(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("energy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (defaults when empty)")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	listPath := fs.String("list", "", "file with one configuration per line")
	fs.Usage = func() {
		fmt.Fprintln(stderr, energyUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	size, cfgs, err := parseEnergyArgs(fs.Args(), *listPath)
	if err != nil {
		fs.Usage()
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Problem = size
	setupLogging(cfg, *logLevel, stderr)

	builder := benchmark.NewBuilder(cfg.Benchmark, benchmark.ExecCommander{})
	meter, err := benchmark.NewEnergyMeter(cfg.Benchmark, builder, benchmark.ExecCommander{})
	if err != nil {
		return err
	}

	if len(cfgs) == 1 {
		return measureOne(ctx, meter, cfgs[0], size, stdout)
	}
	return measureMany(ctx, cfg, meter, cfgs, stdout)
}

// parseEnergyArgs accepts either a full configuration on the command line
// or a problem size plus a list file
func parseEnergyArgs(args []string, listPath string) (models.ProblemSize, []models.Configuration, error) {
	if listPath != "" {
		if len(args) != 3 {
			return models.ProblemSize{}, nil, fmt.Errorf("with -list, expected n1 n2 n3, got %d arguments", len(args))
		}
		size, err := parseSize(strings.Join(args, " "))
		if err != nil {
			return models.ProblemSize{}, nil, err
		}
		cfgs, err := readConfigurationList(listPath)
		if err != nil {
			return models.ProblemSize{}, nil, err
		}
		return size, cfgs, nil
	}

	if len(args) != 9 {
		return models.ProblemSize{}, nil, fmt.Errorf("expected 9 arguments, got %d", len(args))
	}
	size, err := parseSize(strings.Join(args[:3], " "))
	if err != nil {
		return models.ProblemSize{}, nil, err
	}
	c, err := models.ParseConfigurationFields(args[3:])
	if err != nil {
		return models.ProblemSize{}, nil, err
	}
	return size, []models.Configuration{c}, nil
}

// readConfigurationList reads one configuration per line. Blank lines and
// lines starting with # are skipped.
func readConfigurationList(path string) ([]models.Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfgs []models.Configuration
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		c, err := models.ParseConfiguration(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		cfgs = append(cfgs, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("%s: no configurations", path)
	}
	return cfgs, nil
}

func measureOne(ctx context.Context, meter *benchmark.EnergyMeter, c models.Configuration, size models.ProblemSize, stdout io.Writer) error {
	if err := c.Validate(size); err != nil {
		return err
	}
	e, err := meter.Measure(ctx, c, size)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Analysing energy consumption for: %s, and problem size: %s\n", c, size)
	fmt.Fprintf(stdout, "DRAM_energy: %g kJ\n", e.DRAM)
	fmt.Fprintf(stdout, "PKG_energy: %g kJ\n", e.Package)
	fmt.Fprintf(stdout, "DRAM_PKG_combined: %g kJ\n", e.Combined)
	return nil
}

// measureMany runs the list one configuration at a time; measurements on a
// shared machine must not overlap
func measureMany(ctx context.Context, cfg *config.Config, meter *benchmark.EnergyMeter, cfgs []models.Configuration, stdout io.Writer) error {
	orch := improvement.NewOrchestrator(cfg, meter, nil)
	candidates, err := orch.EvaluateConfigurationsParallel(ctx, cfgs)
	for _, cand := range candidates {
		if cand.Err != nil {
			fmt.Fprintf(stdout, "%s: error: %v\n", cand.Config, cand.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s: DRAM_PKG_combined %g kJ\n", cand.Config, -cand.Score)
	}
	return err
}
