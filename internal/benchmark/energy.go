package benchmark

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/integrate"

	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/logger"
	"github.com/iso3dfd-st7/autotune/pkg/models"
)

// DefaultMaxPower is the per-column power reading, in the monitor's unit,
// above which a sample row is discarded as a glitch
const DefaultMaxPower = 8000.0

// ErrNotEnoughSamples is returned when fewer than two samples survive filtering
var ErrNotEnoughSamples = errors.New("not enough power samples to integrate")

// Energy is the consumption of one benchmark run in kJ
type Energy struct {
	DRAM     float64 `json:"dram_kj"`
	Package  float64 `json:"pkg_kj"`
	Combined float64 `json:"combined_kj"`
}

func (e Energy) String() string {
	return fmt.Sprintf("dram=%.3f kJ pkg=%.3f kJ combined=%.3f kJ", e.DRAM, e.Package, e.Combined)
}

// EnergyMeter runs the benchmark under the cpu_monitor wrapper and integrates
// the power trace it writes
type EnergyMeter struct {
	builder   *Builder
	cmd       Commander
	cfg       config.Energy
	timeSteps int
	log       *slog.Logger
}

// NewEnergyMeter creates an energy meter from the benchmark configuration
func NewEnergyMeter(cfg config.Benchmark, builder *Builder, cmd Commander) (*EnergyMeter, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if cfg.Energy.Monitor == "" {
		return nil, fmt.Errorf("energy monitor path is required")
	}
	if cfg.Energy.CSVPath == "" {
		return nil, fmt.Errorf("energy csv path is required")
	}
	if cmd == nil {
		cmd = ExecCommander{}
	}
	return &EnergyMeter{
		builder:   builder,
		cmd:       cmd,
		cfg:       cfg.Energy,
		timeSteps: cfg.TimeSteps,
		log:       logger.Default,
	}, nil
}

// WithLogger sets the logger used for measurements
func (m *EnergyMeter) WithLogger(l *slog.Logger) *EnergyMeter {
	if l != nil {
		m.log = l
	}
	return m
}

// Measure runs one monitored benchmark and returns its energy
func (m *EnergyMeter) Measure(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (Energy, error) {
	bin, err := m.builder.Ensure(ctx, cfg.OptLevel, cfg.SIMD)
	if err != nil {
		return Energy{}, err
	}
	// the monitor runs from its own directory
	bin, err = filepath.Abs(bin)
	if err != nil {
		return Energy{}, err
	}

	args := []string{"--csv", "--quiet", "--redirect"}
	if m.cfg.PlotCmd != "" {
		args = append(args, "--plot-cmd="+m.cfg.PlotCmd)
	}
	args = append(args, "--", bin)
	args = append(args, benchmarkArgs(cfg, size, m.timeSteps)...)

	if _, err := m.cmd.Run(ctx, m.cfg.WorkDir, nil, m.cfg.Monitor, args...); err != nil {
		return Energy{}, fmt.Errorf("energy monitor: %w", err)
	}

	f, err := os.Open(m.cfg.CSVPath)
	if err != nil {
		return Energy{}, fmt.Errorf("failed to open power trace: %w", err)
	}
	defer f.Close()

	maxPower := m.cfg.MaxPowerMW
	if maxPower <= 0 {
		maxPower = DefaultMaxPower
	}
	energy, err := ParseEnergyCSV(f, maxPower)
	if err != nil {
		return Energy{}, fmt.Errorf("failed to parse power trace %s: %w", m.cfg.CSVPath, err)
	}
	m.log.Info("energy measured", "config", cfg.String(), "dram_kj", energy.DRAM, "pkg_kj", energy.Package, "combined_kj", energy.Combined)
	return energy, nil
}

// Evaluate scores a configuration by its negated combined energy, so lower
// consumption ranks higher. It satisfies improvement.Oracle.
func (m *EnergyMeter) Evaluate(ctx context.Context, cfg models.Configuration, size models.ProblemSize) (float64, error) {
	e, err := m.Measure(ctx, cfg, size)
	if err != nil {
		return 0, err
	}
	return -e.Combined, nil
}

// ParseEnergyCSV integrates a cpu_monitor power trace.
//
// The trace is ';' separated with a trailing empty column. Its third physical
// line is not data and is skipped. Rows where any PW column exceeds maxPower
// are dropped. Every PW_PKG and PW_DRAM column is integrated over TIME with
// the trapezoid rule and the sums are divided by 1000.
func ParseEnergyCSV(r io.Reader, maxPower float64) (Energy, error) {
	var kept strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if line == 3 {
			continue
		}
		kept.WriteString(scanner.Text())
		kept.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return Energy{}, err
	}

	reader := csv.NewReader(strings.NewReader(kept.String()))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return Energy{}, err
	}
	if len(records) == 0 {
		return Energy{}, fmt.Errorf("empty power trace")
	}

	header := records[0]
	if len(header) > 0 {
		header = header[:len(header)-1]
	}
	timeCol := -1
	var powerCols, pkgCols, dramCols []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == "TIME":
			timeCol = i
		case strings.HasPrefix(name, "PW_PKG"):
			pkgCols = append(pkgCols, i)
		case strings.HasPrefix(name, "PW_DRAM"):
			dramCols = append(dramCols, i)
		}
		if strings.HasPrefix(name, "PW") {
			powerCols = append(powerCols, i)
		}
	}
	if timeCol < 0 {
		return Energy{}, fmt.Errorf("no TIME column in power trace")
	}

	var rows [][]float64
	for n, rec := range records[1:] {
		if len(rec) < len(header) {
			return Energy{}, fmt.Errorf("row %d has %d fields, want %d", n+1, len(rec), len(header))
		}
		row := make([]float64, len(header))
		for i := range header {
			if i != timeCol && !contains(powerCols, i) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return Energy{}, fmt.Errorf("row %d column %q: %w", n+1, header[i], err)
			}
			row[i] = v
		}
		if exceeds(row, powerCols, maxPower) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) < 2 {
		return Energy{}, ErrNotEnoughSamples
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i][timeCol] < rows[j][timeCol] })
	t := column(rows, timeCol)

	var e Energy
	for _, c := range dramCols {
		e.DRAM += integrate.Trapezoidal(t, column(rows, c)) / 1000
	}
	for _, c := range pkgCols {
		e.Package += integrate.Trapezoidal(t, column(rows, c)) / 1000
	}
	e.Combined = e.DRAM + e.Package
	return e, nil
}

func exceeds(row []float64, cols []int, limit float64) bool {
	for _, c := range cols {
		if row[c] > limit {
			return true
		}
	}
	return false
}

func column(rows [][]float64, c int) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = row[c]
	}
	return out
}

func contains(cols []int, c int) bool {
	for _, x := range cols {
		if x == c {
			return true
		}
	}
	return false
}
