package results

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/iso3dfd-st7/autotune/pkg/utils"
)

const summaryFile = "summary.json"

// trajectoryHeader is the column layout of a trial CSV. The first column is
// the unnamed row index.
var trajectoryHeader = []string{"", "Olevel", "simd", "NbTh", "n1_thrd_block", "n2_thrd_block", "n3_thrd_block", "E"}

// summaryEntry is one trial in summary.json
type summaryEntry struct {
	Params            models.Params      `json:"params"`
	SBest             []any              `json:"S_best"`
	EBest             float64            `json:"E_best"`
	Runtime           float64            `json:"runtime"` // seconds
	RunID             string             `json:"run_id,omitempty"`
	Converged         bool               `json:"converged,omitempty"`
	ConvergenceReason string             `json:"convergence_reason,omitempty"`
	Diagnostics       map[string]float64 `json:"diagnostics,omitempty"`
}

// FileStore keeps a shared summary.json keyed by trial number and one
// zero padded CSV trajectory per trial in a directory
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the results directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Close() error {
	return nil
}

// Save writes the trial under the next free number: one past the highest
// existing CSV
func (s *FileStore) Save(ctx context.Context, res *models.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("result is nil")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.trialNumbers()
	if err != nil {
		return "", err
	}
	n := 0
	if len(ids) > 0 {
		n = ids[len(ids)-1] + 1
	}

	summary, err := s.readSummary()
	if err != nil {
		return "", err
	}
	summary[strconv.Itoa(n)] = summaryEntry{
		Params:            res.Params,
		SBest:             configFields(res.Best),
		EBest:             res.BestScore,
		Runtime:           res.Runtime.Seconds(),
		RunID:             res.ID,
		Converged:         res.Converged,
		ConvergenceReason: res.ConvergenceReason,
		Diagnostics:       res.Diagnostics,
	}

	if err := s.writeTrajectory(n, res.Trajectory); err != nil {
		return "", err
	}
	if err := s.writeSummary(summary); err != nil {
		return "", err
	}
	return utils.FormatTrialID(n), nil
}

// Load reads a trial back. Numeric params come back as float64.
func (s *FileStore) Load(ctx context.Context, id string) (*models.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, err := utils.ParseTrialID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summary, err := s.readSummary()
	if err != nil {
		return nil, err
	}
	entry, ok := summary[strconv.Itoa(n)]
	if !ok {
		return nil, fmt.Errorf("trial %s: %w", id, ErrNotFound)
	}

	best, err := parseConfigFields(entry.SBest)
	if err != nil {
		return nil, fmt.Errorf("trial %s: S_best: %w", id, err)
	}
	trajectory, err := s.readTrajectory(n)
	if err != nil {
		return nil, fmt.Errorf("trial %s: %w", id, err)
	}

	iterations := len(trajectory) - 1
	if iterations < 0 {
		iterations = 0
	}
	return &models.Result{
		ID:                entry.RunID,
		Algorithm:         entry.Params.String("method"),
		Params:            entry.Params,
		Best:              best,
		BestScore:         entry.EBest,
		Trajectory:        trajectory,
		Runtime:           time.Duration(entry.Runtime * float64(time.Second)),
		Iterations:        iterations,
		Converged:         entry.Converged,
		ConvergenceReason: entry.ConvergenceReason,
		Diagnostics:       entry.Diagnostics,
	}, nil
}

// List returns the ids of every trial with a CSV, in numeric order
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nums, err := s.trialNumbers()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(nums))
	for i, n := range nums {
		ids[i] = utils.FormatTrialID(n)
	}
	return ids, nil
}

func (s *FileStore) trialNumbers() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		n, err := utils.ParseTrialID(strings.TrimSuffix(name, ".csv"))
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

func (s *FileStore) readSummary() (map[string]summaryEntry, error) {
	summary := make(map[string]summaryEntry)
	data, err := os.ReadFile(filepath.Join(s.dir, summaryFile))
	if errors.Is(err, os.ErrNotExist) {
		return summary, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return summary, nil
}

func (s *FileStore) writeSummary(summary map[string]summaryEntry) error {
	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(s.dir, summaryFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) csvPath(n int) string {
	return filepath.Join(s.dir, utils.FormatTrialID(n)+".csv")
}

func (s *FileStore) writeTrajectory(n int, steps []models.Step) error {
	f, err := os.Create(s.csvPath(n))
	if err != nil {
		return fmt.Errorf("failed to create trajectory file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(trajectoryHeader); err != nil {
		return err
	}
	for i, step := range steps {
		c := step.Config
		row := []string{
			strconv.Itoa(i),
			string(c.OptLevel),
			string(c.SIMD),
			strconv.Itoa(c.Threads),
			strconv.Itoa(c.Block1),
			strconv.Itoa(c.Block2),
			strconv.Itoa(c.Block3),
			strconv.FormatFloat(step.Score, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (s *FileStore) readTrajectory(n int) ([]models.Step, error) {
	f, err := os.Open(s.csvPath(n))
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trajectory: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("trajectory has no header")
	}

	steps := make([]models.Step, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(trajectoryHeader) {
			return nil, fmt.Errorf("trajectory row %d has %d fields", i, len(rec))
		}
		cfg, err := models.ParseConfigurationFields(rec[1:7])
		if err != nil {
			return nil, fmt.Errorf("trajectory row %d: %w", i, err)
		}
		score, err := strconv.ParseFloat(rec[7], 64)
		if err != nil {
			return nil, fmt.Errorf("trajectory row %d: %w", i, err)
		}
		steps = append(steps, models.Step{Iteration: i, Config: cfg, Score: score})
	}
	return steps, nil
}

// configFields renders a configuration as the mixed string and number list
// used for S_best
func configFields(c models.Configuration) []any {
	return []any{string(c.OptLevel), string(c.SIMD), c.Threads, c.Block1, c.Block2, c.Block3}
}

// parseConfigFields accepts S_best as decoded from JSON
func parseConfigFields(fields []any) (models.Configuration, error) {
	strs := make([]string, len(fields))
	for i, f := range fields {
		switch v := f.(type) {
		case string:
			strs[i] = v
		case float64:
			strs[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			strs[i] = strconv.Itoa(v)
		default:
			return models.Configuration{}, fmt.Errorf("unexpected field %v (%T)", f, f)
		}
	}
	return models.ParseConfigurationFields(strs)
}
