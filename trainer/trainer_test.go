package trainer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AnthonyKot/chess-rl-sub010/backend"
	"github.com/AnthonyKot/chess-rl-sub010/backend/linearq"
	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/config"
	"github.com/AnthonyKot/chess-rl-sub010/diag"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
)

func smokeConfig() config.TrainingConfig {
	return config.TrainingConfig{
		Backend:                  config.LinearQ,
		MaxCycles:                2,
		GamesPerCycle:            2,
		MaxPliesPerGame:          8,
		StepLimitPenalty:         -1,
		BatchSize:                4,
		BatchesPerCycle:          2,
		Gamma:                    0.9,
		TargetSyncInterval:       1,
		BufferCapacity:           64,
		CleanupRatio:             0.5,
		ExplorationStrategy:      config.EpsilonGreedy,
		EpsilonStart:             1.0,
		EpsilonEnd:               0.1,
		EpsilonDecaySteps:        100,
		OpponentStrategy:         config.BaselineHeuristic,
		OpponentSnapshotInterval: 1,
		CheckpointInterval:       1,
		EvaluationInterval:       1,
		EvaluationGames:          2,
		TrendWindow:              2,
		Seed:                     1,
		HasSeed:                  true,
		WorkerCount:              2,
	}
}

func newLinearQBackend() (*linearq.Backend, error) {
	return linearq.New(linearq.Config{LearningRate: 0.01, Tau: 1.0})
}

func envFactory() chessenv.Environment {
	env, _ := chessenv.NewMiniEnv(8, -1)
	return env
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	cfg := smokeConfig()
	live, err := newLinearQBackend()
	if err != nil {
		t.Fatalf("newLinearQBackend: %v", err)
	}
	path := func(cycle int, kind string) string { return fmt.Sprintf("%s-%d.ckpt", kind, cycle) }

	if _, err := New(Options{Config: cfg, Backend: nil, EnvFactory: envFactory, CheckpointPath: path}); err == nil {
		t.Fatal("New should reject a nil Backend")
	}
	if _, err := New(Options{Config: cfg, Backend: live, EnvFactory: nil, CheckpointPath: path}); err == nil {
		t.Fatal("New should reject a nil EnvFactory")
	}
	if _, err := New(Options{Config: cfg, Backend: live, EnvFactory: envFactory, CheckpointPath: nil}); err == nil {
		t.Fatal("New should reject a nil CheckpointPath")
	}

	badCfg := cfg
	badCfg.MaxCycles = 0
	if _, err := New(Options{Config: badCfg, Backend: live, EnvFactory: envFactory, CheckpointPath: path}); err == nil {
		t.Fatal("New should reject an invalid TrainingConfig")
	}
}

func TestRunCompletesConfiguredCycles(t *testing.T) {
	dir := t.TempDir()
	cfg := smokeConfig()
	live, err := newLinearQBackend()
	if err != nil {
		t.Fatalf("newLinearQBackend: %v", err)
	}

	tr, err := New(Options{
		Config:     cfg,
		Backend:    live,
		NewBackend: func() (backend.Backend, error) { return newLinearQBackend() },
		EnvFactory: envFactory,
		CheckpointPath: func(cycle int, kind string) string {
			return filepath.Join(dir, fmt.Sprintf("%s-%d.ckpt", kind, cycle))
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.cycle != cfg.MaxCycles {
		t.Fatalf("cycle = %d after Run, want MaxCycles = %d", tr.cycle, cfg.MaxCycles)
	}
}

func TestRunStopsEarlyOnCanceledContext(t *testing.T) {
	dir := t.TempDir()
	cfg := smokeConfig()
	cfg.MaxCycles = 100
	live, err := newLinearQBackend()
	if err != nil {
		t.Fatalf("newLinearQBackend: %v", err)
	}

	tr, err := New(Options{
		Config:     cfg,
		Backend:    live,
		EnvFactory: envFactory,
		CheckpointPath: func(cycle int, kind string) string {
			return filepath.Join(dir, fmt.Sprintf("%s-%d.ckpt", kind, cycle))
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Run(ctx); err != nil {
		t.Fatalf("Run with an already-canceled context should still write a final checkpoint and return nil: %v", err)
	}
	if tr.cycle != 0 {
		t.Fatalf("cycle = %d, want 0 (Run should stop before the first cycle)", tr.cycle)
	}
}

// nanOnNthBatchBackend wraps a *linearq.Backend and forces the nth
// TrainOnBatch call (1-indexed, across the backend's lifetime) to
// return a NaN loss, simulating the numerical-instability case the
// Trainer's per-batch rejection loop (spec scenario: one bad batch
// mid-cycle must not fail the whole cycle) is meant to survive.
type nanOnNthBatchBackend struct {
	*linearq.Backend

	mu    sync.Mutex
	calls int
	nanOn int
}

func (b *nanOnNthBatchBackend) TrainOnBatch(batch []replay.Experience, gamma float64) (backend.TrainResult, error) {
	b.mu.Lock()
	b.calls++
	inject := b.calls == b.nanOn
	b.mu.Unlock()

	result, err := b.Backend.TrainOnBatch(batch, gamma)
	if err != nil {
		return result, err
	}
	if inject {
		result.Loss = math.NaN()
	}
	return result, nil
}

// recordingSink implements diag.Sink, capturing Issues reported to it
// so tests can assert on them without depending on log output.
type recordingSink struct {
	mu     sync.Mutex
	issues []diag.Issue
}

func (s *recordingSink) Infof(format string, args ...any) {}
func (s *recordingSink) Warnf(format string, args ...any) {}
func (s *recordingSink) Errorf(format string, args ...any) {}
func (s *recordingSink) Issue(i diag.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, i)
}

func TestRunRejectsOneNonFiniteBatchWithoutFailingTheCycle(t *testing.T) {
	dir := t.TempDir()
	cfg := smokeConfig()
	cfg.MaxCycles = 1
	cfg.BatchesPerCycle = 4

	underlying, err := newLinearQBackend()
	if err != nil {
		t.Fatalf("newLinearQBackend: %v", err)
	}
	live := &nanOnNthBatchBackend{Backend: underlying, nanOn: 2}
	sink := &recordingSink{}

	tr, err := New(Options{
		Config:     cfg,
		Backend:    live,
		EnvFactory: envFactory,
		Sink:       sink,
		CheckpointPath: func(cycle int, kind string) string {
			return filepath.Join(dir, fmt.Sprintf("%s-%d.ckpt", kind, cycle))
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.cycle != 1 {
		t.Fatalf("cycle = %d after Run, want 1", tr.cycle)
	}

	live.mu.Lock()
	calls := live.calls
	live.mu.Unlock()
	if calls != cfg.BatchesPerCycle {
		t.Fatalf("TrainOnBatch was called %d times, want %d (batch 2 rejected, batches 3-4 still run)", calls, cfg.BatchesPerCycle)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	instabilityIssues := 0
	for _, issue := range sink.issues {
		if issue.Kind == "NumericalInstability" {
			instabilityIssues++
		}
	}
	if instabilityIssues != 1 {
		t.Fatalf("got %d NumericalInstability issues, want exactly 1 (only batch 2 was non-finite)", instabilityIssues)
	}
}
