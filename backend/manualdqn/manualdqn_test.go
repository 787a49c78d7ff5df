package manualdqn

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/network"
	"github.com/AnthonyKot/chess-rl-sub010/observation"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/solver"
)

func tinyConfig() Config {
	return Config{
		HiddenSizes:  []int{4},
		Biases:       []bool{true},
		Activations:  []*network.Activation{network.ReLU()},
		InitGain:     1.0,
		LearningRate: 0.01,
		SolverKind:   solver.Vanilla,
		BatchSize:    2,
		Tau:          1.0,
	}
}

func newObservation(fill float64) *mat.VecDense {
	data := make([]float64, observation.Length)
	for i := range data {
		data[i] = fill
	}
	return mat.NewVecDense(observation.Length, data)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := tinyConfig()
	bad.BatchSize = 0
	if _, err := New(bad); err == nil {
		t.Fatal("New should reject a non-positive BatchSize")
	}

	bad = tinyConfig()
	bad.Activations = nil
	if _, err := New(bad); err == nil {
		t.Fatal("New should reject mismatched HiddenSizes/Biases/Activations lengths")
	}

	bad = tinyConfig()
	bad.Tau = 0
	if _, err := New(bad); err == nil {
		t.Fatal("New should reject Tau <= 0")
	}
}

func TestScoreActionsReturnsFiniteValues(t *testing.T) {
	b, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	scores := b.ScoreActions(newObservation(0.1))
	for a, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("ScoreActions produced a non-finite value at action %d: %v", a, v)
		}
	}
}

func TestTrainOnBatchRejectsWrongBatchSize(t *testing.T) {
	cfg := tinyConfig()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state := newObservation(0.1)
	batch := []replay.Experience{
		{State: state, NextState: state, Action: actioncodec.ActionID(0), Reward: 1.0, Done: true},
	}
	if _, err := b.TrainOnBatch(batch, 0.9); err == nil {
		t.Fatalf("TrainOnBatch should reject a batch of size %d when configured for %d", len(batch), cfg.BatchSize)
	}
}

func TestTrainOnBatchProducesFiniteResult(t *testing.T) {
	cfg := tinyConfig()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	state := newObservation(0.1)
	batch := make([]replay.Experience, cfg.BatchSize)
	for i := range batch {
		batch[i] = replay.Experience{
			State:     state,
			NextState: state,
			Action:    actioncodec.ActionID(i),
			Reward:    0.5,
			Done:      i%2 == 0,
		}
	}

	result, err := b.TrainOnBatch(batch, 0.9)
	if err != nil {
		t.Fatalf("TrainOnBatch: %v", err)
	}
	if !result.Finite() {
		t.Fatalf("TrainResult is not finite: %+v", result)
	}
	if result.BufferSampledSize != cfg.BatchSize {
		t.Fatalf("BufferSampledSize = %d, want %d", result.BufferSampledSize, cfg.BatchSize)
	}
}

func TestSyncTargetNetworkDoesNotPanic(t *testing.T) {
	b, err := New(tinyConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SyncTargetNetwork()

	polyak := tinyConfig()
	polyak.Tau = 0.5
	pb, err := New(polyak)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pb.SyncTargetNetwork()
}

func TestSaveLoadRoundTripPreservesParamHash(t *testing.T) {
	cfg := tinyConfig()
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	wantHash := b.ParamHash()

	path := filepath.Join(t.TempDir(), "checkpoint.bin")
	if err := b.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := restored.ParamHash(); got != wantHash {
		t.Fatalf("ParamHash after round-trip = %q, want %q", got, wantHash)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig(32)
	if err := cfg.validate(); err != nil {
		t.Fatalf("DefaultConfig(32).validate(): %v", err)
	}
}
