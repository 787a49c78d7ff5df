package baseline

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/observation"
)

func TestScoreActionsIsDeterministic(t *testing.T) {
	obs := mat.NewVecDense(observation.Length, nil)
	for i := 0; i < observation.Length; i++ {
		obs.SetVec(i, float64(i%3)-1)
	}

	a := New(1.5)
	b := New(1.5)

	sa := a.ScoreActions(obs)
	sb := b.ScoreActions(obs)
	if sa != sb {
		t.Fatal("two Scorers built with the same seed must score an identical observation identically")
	}
}

func TestScoreActionsDiffersAcrossActions(t *testing.T) {
	obs := mat.NewVecDense(observation.Length, nil)
	for i := 0; i < observation.Length; i++ {
		obs.SetVec(i, 0.37*float64(i+1))
	}

	s := New(0.25)
	scores := s.ScoreActions(obs)

	distinct := map[float64]bool{}
	for _, v := range scores {
		distinct[v] = true
	}
	if len(distinct) < actioncodec.NumActions/2 {
		t.Fatalf("ScoreActions produced only %d distinct values across %d actions, want substantial variation",
			len(distinct), actioncodec.NumActions)
	}
}

func TestScoreActionsBoundedByBaselineFormula(t *testing.T) {
	obs := mat.NewVecDense(observation.Length, nil)
	s := New(0.0)
	scores := s.ScoreActions(obs)
	for a, v := range scores {
		if v < -1 || v > 1 {
			t.Fatalf("score for action %d = %v, want in [-1, 1] (math.Sin range)", a, v)
		}
	}
}
