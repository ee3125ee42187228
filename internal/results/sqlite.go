package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/iso3dfd-st7/autotune/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trials (
	id                 TEXT PRIMARY KEY,
	run_id             TEXT,
	algorithm          TEXT NOT NULL,
	params_json        TEXT NOT NULL,
	best               TEXT NOT NULL,
	best_score         REAL NOT NULL,
	runtime_ns         INTEGER NOT NULL,
	iterations         INTEGER NOT NULL,
	converged          INTEGER NOT NULL,
	convergence_reason TEXT,
	diagnostics_json   TEXT,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trial_steps (
	trial_id  TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	config    TEXT NOT NULL,
	score     REAL NOT NULL,
	PRIMARY KEY (trial_id, iteration),
	FOREIGN KEY (trial_id) REFERENCES trials(id)
);

CREATE INDEX IF NOT EXISTS idx_trials_created ON trials(created_at);
`

// SQLiteStore keeps trials and their trajectories in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database and runs migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts the trial and its trajectory in one transaction
func (s *SQLiteStore) Save(ctx context.Context, res *models.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("result is nil")
	}
	id := uuid.New().String()

	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	diagJSON, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trials (id, run_id, algorithm, params_json, best, best_score, runtime_ns,
		                     iterations, converged, convergence_reason, diagnostics_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.ID, res.Algorithm, string(paramsJSON), res.Best.String(), res.BestScore,
		int64(res.Runtime), res.Iterations, res.Converged, res.ConvergenceReason, string(diagJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert trial: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trial_steps (trial_id, iteration, config, score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare steps: %w", err)
	}
	defer stmt.Close()
	for _, step := range res.Trajectory {
		if _, err := stmt.ExecContext(ctx, id, step.Iteration, step.Config.String(), step.Score); err != nil {
			return "", fmt.Errorf("insert step %d: %w", step.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Load reads a trial and its ordered trajectory
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Result, error) {
	var (
		res              models.Result
		paramsJSON, best string
		diagJSON, reason sql.NullString
		runID            sql.NullString
		runtimeNs        int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, algorithm, params_json, best, best_score, runtime_ns, iterations,
		        converged, convergence_reason, diagnostics_json
		 FROM trials WHERE id = ?`, id,
	).Scan(&runID, &res.Algorithm, &paramsJSON, &best, &res.BestScore, &runtimeNs, &res.Iterations,
		&res.Converged, &reason, &diagJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trial %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query trial: %w", err)
	}

	res.ID = runID.String
	res.ConvergenceReason = reason.String
	res.Runtime = time.Duration(runtimeNs)
	if err := json.Unmarshal([]byte(paramsJSON), &res.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if diagJSON.Valid && diagJSON.String != "" && diagJSON.String != "null" {
		if err := json.Unmarshal([]byte(diagJSON.String), &res.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
		}
	}
	if res.Best, err = models.ParseConfiguration(best); err != nil {
		return nil, fmt.Errorf("parse best: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, config, score FROM trial_steps WHERE trial_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step models.Step
		var cfg string
		if err := rows.Scan(&step.Iteration, &cfg, &step.Score); err != nil {
			return nil, err
		}
		if step.Config, err = models.ParseConfiguration(cfg); err != nil {
			return nil, fmt.Errorf("parse step %d: %w", step.Iteration, err)
		}
		res.Trajectory = append(res.Trajectory, step)
	}
	return &res, rows.Err()
}

// List returns trial ids in insertion order
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM trials ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
