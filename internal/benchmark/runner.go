package benchmark

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// ErrNoThroughput is returned when the benchmark output has no throughput line
var ErrNoThroughput = errors.New("no throughput line in benchmark output")

// Runner measures the throughput of a configuration in MPoints/s by running
// the compiled benchmark. It satisfies improvement.Oracle.
type Runner struct {
	builder   *Builder
	cmd       Commander
	timeSteps int
	affinity  string
	timeout   time.Duration
	log       *slog.Logger
}

// NewRunner creates a throughput runner from the benchmark configuration
func NewRunner(cfg config.Benchmark, builder *Builder, cmd Commander) (*Runner, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if cmd == nil {
		cmd = ExecCommander{}
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid timeout: %w", err)
	}
	return &Runner{
		builder:   builder,
		cmd:       cmd,
		timeSteps: cfg.TimeSteps,
		affinity:  cfg.Affinity,
		timeout:   timeout,
		log:       logger.Default,
	}, nil
}

// WithLogger sets the logger used for measurements
func (r *Runner) WithLogger(l *slog.Logger) *Runner {
	if l != nil {
		r.log = l
	}
	return r
}

// benchmarkArgs is the iso3dfd command line: n1 n2 n3 threads steps b1 b2 b3
func benchmarkArgs(cfg models.Configuration, size models.ProblemSize, timeSteps int) []string {
	return []string{
		strconv.Itoa(size.N1),
		strconv.Itoa(size.N2),
		strconv.Itoa(size.N3),
		strconv.Itoa(cfg.Threads),
		strconv.Itoa(timeSteps),
		strconv.Itoa(cfg.Block1),
		strconv.Itoa(cfg.Block2),
		strconv.Itoa(cfg.Block3),
	}
}

// Evaluate builds if needed, runs the benchmark and returns its throughput
func (r *Runner) Evaluate(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error) {
	bin, err := r.builder.Ensure(ctx, cfg.OptLevel, cfg.SIMD)
	if err != nil {
		return 0, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var env []string
	if r.affinity != "" {
		env = append(env, "KMP_AFFINITY="+r.affinity)
	}

	start := time.Now()
	out, err := r.cmd.Run(ctx, "", env, bin, benchmarkArgs(cfg, size, r.timeSteps)...)
	if err != nil {
		return 0, err
	}
	throughput, err := ParseThroughput(out)
	if err != nil {
		r.log.Error("unparsable benchmark output", "config", cfg.String(), "output", string(out))
		return 0, err
	}

	r.log.Debug("benchmark measured", "config", cfg.String(), "throughput", throughput, "elapsed", time.Since(start))
	return throughput, nil
}

// ParseThroughput returns the second field of the first line containing
// "throughput:"
func ParseThroughput(output []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "throughput:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed throughput line %q: %w", line, ErrNoThroughput)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("malformed throughput value %q: %w", fields[1], err)
		}
		return v, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read benchmark output: %w", err)
	}
	return 0, ErrNoThroughput
}
