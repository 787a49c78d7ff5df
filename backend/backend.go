// Package backend defines the LearningBackend capability the training
// core consumes: scoring observations, training on a batch of
// experiences, syncing a target network, and saving/loading opaque
// parameter artifacts. The core treats every Backend as a black box;
// concrete variants (backend/manualdqn, backend/linearq) are chosen at
// construction by config.BackendKind, not by runtime type reflection.
package backend

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
)

// QStats summarizes the distribution of scored action-values over a
// training batch.
type QStats struct {
	Mean, Min, Max, Variance float64
}

// TrainResult is the enumerated return shape of TrainOnBatch. Loss and
// GradientNorm must be finite for the update to be accepted by the
// Trainer; non-finite values signal a rejected batch.
type TrainResult struct {
	Loss             float64
	GradientNorm     float64
	Entropy          float64
	QStats           QStats
	BufferSampledSize int
}

// Finite reports whether Loss and GradientNorm are both finite, the
// precondition the Trainer checks before accepting an update.
func (r TrainResult) Finite() bool {
	return !math.IsNaN(r.Loss) && !math.IsInf(r.Loss, 0) &&
		!math.IsNaN(r.GradientNorm) && !math.IsInf(r.GradientNorm, 0)
}

// Backend is the narrow capability the training core depends on. It
// never exposes its internal network/graph/solver types; everything
// crosses the boundary as plain vectors, Experiences, or opaque bytes.
type Backend interface {
	// Identifier names the concrete backend, stored in checkpoint
	// metadata.
	Identifier() string

	// ScoreActions returns q-values/logits for every action id.
	ScoreActions(observation *mat.VecDense) [actioncodec.NumActions]float64

	// ActionProbabilities returns a distribution over the full action
	// space (sums to 1); illegal entries may be non-zero, masking is
	// the caller's job.
	ActionProbabilities(observation *mat.VecDense) [actioncodec.NumActions]float64

	// TrainOnBatch runs one gradient update from batch under discount
	// gamma and reports the result. The backend itself does not reject
	// non-finite results; the Trainer inspects TrainResult.Finite().
	TrainOnBatch(batch []replay.Experience, gamma float64) (TrainResult, error)

	// SyncTargetNetwork copies live parameters into the frozen target
	// set used to bootstrap TD targets.
	SyncTargetNetwork()

	// Save writes an opaque parameter artifact to path.
	Save(path string) error
	// Load restores parameters from an artifact previously written by
	// Save.
	Load(path string) error

	// ParamHash returns a content hash of the live parameters, used by
	// CheckpointMetadata and the save/load round-trip test.
	ParamHash() string
}
