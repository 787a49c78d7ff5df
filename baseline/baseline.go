// Package baseline implements a fixed, non-learning opponent used by
// config.BaselineHeuristic: a deterministic pseudo-scoring function of
// the observation vector, giving self-play a stable difficulty floor
// that never drifts as training progresses.
package baseline

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
)

// Scorer assigns every action a deterministic pseudo-score derived
// from the observation vector and a fixed seed. It implements
// selfplay.Scorer without importing selfplay, avoiding a dependency
// cycle; any caller holding a selfplay.Scorer-shaped variable can
// assign a *Scorer to it directly.
type Scorer struct {
	seed float64
}

// New constructs a Scorer. Two Scorers built with the same seed score
// identically on identical observations.
func New(seed float64) *Scorer {
	return &Scorer{seed: seed}
}

// ScoreActions returns a fixed pseudo-score per action, a function of
// the observation's weighted feature sum and the seed. It carries no
// chess knowledge; it exists only to give self-play and evaluation an
// opponent whose parameters never change.
func (s *Scorer) ScoreActions(observation *mat.VecDense) [actioncodec.NumActions]float64 {
	weighted := 0.0
	for i := 0; i < observation.Len(); i++ {
		weighted += observation.AtVec(i) * float64(i+1)
	}

	var out [actioncodec.NumActions]float64
	for a := range out {
		out[a] = math.Sin(s.seed + weighted*float64(a+1)*1e-3)
	}
	return out
}
