package tunerd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iso3dfd-st7/autotune/internal/improvement"
	"github.com/iso3dfd-st7/autotune/pkg/config"
	"github.com/iso3dfd-st7/autotune/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorCompletesAndPersists(t *testing.T) {
	store := NewRunStore()
	sink := &memorySink{}
	exec := NewRunExecutor(store, staticOracles(peakOracle), sink)

	_, err := store.Create("run-1", &RunInput{ConfigYAML: testConfigYAML})
	require.NoError(t, err)

	started, err := exec.Start("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, started.Run.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.Wait(ctx, "run-1"))

	rec, _ := store.Get("run-1")
	require.Equal(t, StatusCompleted, rec.Run.Status, rec.Run.Error)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "ghc", rec.Run.Method)
	assert.Equal(t, "trial-a", rec.Run.ResultID)
	require.Len(t, sink.saved, 1)
	assert.Same(t, sink.saved[0], rec.Result)
	assert.Greater(t, rec.Result.BestScore, 90.0)

	require.Eventually(t, func() bool { return trackedRuns(exec) == 0 }, time.Second, 5*time.Millisecond)
}

// trackedRuns counts runs that still hold cancel funcs, done channels or orchestrators
func trackedRuns(e *RunExecutor) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cancels) + len(e.done) + len(e.orchs)
}

func TestExecutorReleasesFinishedRuns(t *testing.T) {
	store := NewRunStore()
	exec := NewRunExecutor(store, staticOracles(peakOracle), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Create(id, &RunInput{ConfigYAML: testConfigYAML})
		require.NoError(t, err)
		_, err = exec.Start(id)
		require.NoError(t, err)
		require.NoError(t, exec.Wait(ctx, id))
	}

	require.Eventually(t, func() bool { return trackedRuns(exec) == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, exec.Wait(ctx, "a"))
}

func TestExecutorStartIsIdempotentWhileRunning(t *testing.T) {
	store := NewRunStore()
	exec := NewRunExecutor(store, staticOracles(blockingOracle), nil)
	_, err := store.Create("run-1", &RunInput{ConfigYAML: testConfigYAML})
	require.NoError(t, err)

	_, err = exec.Start("run-1")
	require.NoError(t, err)
	again, err := exec.Start("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, again.Run.Status)

	_, err = exec.Stop("run-1")
	require.NoError(t, err)
}

func TestExecutorStopCancelsRun(t *testing.T) {
	store := NewRunStore()
	exec := NewRunExecutor(store, staticOracles(blockingOracle), nil)
	_, err := store.Create("run-1", &RunInput{ConfigYAML: testConfigYAML})
	require.NoError(t, err)
	_, err = exec.Start("run-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.orchs["run-1"] != nil
	}, 5*time.Second, 5*time.Millisecond, "orchestrator never registered")

	stopped, err := exec.Stop("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stopped.Run.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.Wait(ctx, "run-1"))

	rec, _ := store.Get("run-1")
	assert.Equal(t, StatusCancelled, rec.Run.Status)
	assert.Nil(t, rec.Result)

	_, err = exec.Start("run-1")
	assert.ErrorIs(t, err, ErrRunTerminal)
	_, err = exec.Stop("run-1")
	assert.ErrorIs(t, err, ErrRunTerminal)

	require.Eventually(t, func() bool { return trackedRuns(exec) == 0 }, time.Second, 5*time.Millisecond)
}

func TestExecutorFailures(t *testing.T) {
	crashingOracle := improvement.OracleFunc(func(context.Context, models.Configuration, models.ProblemSize) (float64, error) {
		return 0, errors.New("benchmark crashed")
	})

	tests := []struct {
		name    string
		input   string
		oracles OracleFactory
		wantErr string
	}{
		{
			name:    "invalid config",
			input:   "algorithm: {method: nope}",
			oracles: staticOracles(peakOracle),
			wantErr: "invalid config",
		},
		{
			name:  "oracle factory error",
			input: testConfigYAML,
			oracles: func(*config.Config, string) (improvement.Oracle, error) {
				return nil, errors.New("no monitor")
			},
			wantErr: "oracle setup failed",
		},
		{
			name:    "oracle error",
			input:   testConfigYAML,
			oracles: staticOracles(crashingOracle),
			wantErr: "benchmark crashed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewRunStore()
			exec := NewRunExecutor(store, tt.oracles, nil)
			_, err := store.Create("run-1", &RunInput{ConfigYAML: tt.input})
			require.NoError(t, err)
			_, err = exec.Start("run-1")
			require.NoError(t, err)

			rec := waitForStatus(t, store, "run-1", StatusFailed)
			assert.Contains(t, rec.Run.Error, tt.wantErr)
		})
	}
}

func TestExecutorArgumentErrors(t *testing.T) {
	exec := NewRunExecutor(NewRunStore(), staticOracles(peakOracle), nil)

	_, err := exec.Start("")
	assert.ErrorIs(t, err, ErrRunIDMissing)
	_, err = exec.Start("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = exec.Stop("")
	assert.ErrorIs(t, err, ErrRunIDMissing)
	_, err = exec.Stop("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, exec.Wait(context.Background(), "never-started"))
}

func TestExecutorStopAll(t *testing.T) {
	store := NewRunStore()
	exec := NewRunExecutor(store, staticOracles(blockingOracle), nil)
	for _, id := range []string{"a", "b"} {
		_, err := store.Create(id, &RunInput{ConfigYAML: testConfigYAML})
		require.NoError(t, err)
		_, err = exec.Start(id)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, exec.StopAll())
	for _, id := range []string{"a", "b"} {
		rec, _ := store.Get(id)
		assert.Equal(t, StatusCancelled, rec.Run.Status)
	}
}
