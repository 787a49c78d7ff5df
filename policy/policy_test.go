package policy

import (
	"testing"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/config"
)

func TestScheduleValue(t *testing.T) {
	cases := []struct {
		name string
		s    Schedule
		step int
		want float64
	}{
		{"before start", Schedule{Start: 1.0, End: 0.1, Steps: 100}, 0, 1.0},
		{"midway", Schedule{Start: 1.0, End: 0.0, Steps: 100}, 50, 0.5},
		{"at end", Schedule{Start: 1.0, End: 0.1, Steps: 100}, 100, 0.1},
		{"past end", Schedule{Start: 1.0, End: 0.1, Steps: 100}, 500, 0.1},
		{"zero steps", Schedule{Start: 1.0, End: 0.1, Steps: 0}, 0, 0.1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.s.Value(c.step); got != c.want {
				t.Errorf("Value(%d) = %v, want %v", c.step, got, c.want)
			}
		})
	}
}

func TestSelectNeverPicksIllegalAction(t *testing.T) {
	legal := []actioncodec.ActionID{3, 7, 42}
	var scores [actioncodec.NumActions]float64
	// Make the raw (unmasked) argmax an illegal action.
	scores[100] = 1000.0
	scores[3] = 1.0
	scores[7] = 2.0
	scores[42] = 0.5

	mp := New(config.Greedy, Schedule{}, Schedule{}, 1)
	id, err := mp.Select(scores, legal)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if id != 7 {
		t.Fatalf("greedy Select among legal = %d, want 7 (highest masked score)", id)
	}
	if mp.IllegalActionCount() != 1 {
		t.Fatalf("IllegalActionCount() = %d, want 1 (raw argmax 100 was illegal)", mp.IllegalActionCount())
	}
}

func TestSelectNoLegalActions(t *testing.T) {
	mp := New(config.Greedy, Schedule{}, Schedule{}, 1)
	var scores [actioncodec.NumActions]float64
	if _, err := mp.Select(scores, nil); err != NoLegalActions {
		t.Fatalf("Select with no legal actions: got %v, want NoLegalActions", err)
	}
}

func TestSelectEpsilonGreedyAlwaysLegal(t *testing.T) {
	legal := []actioncodec.ActionID{1, 2, 3, 4, 5}
	var scores [actioncodec.NumActions]float64
	mp := New(config.EpsilonGreedy, Schedule{Start: 1.0, End: 1.0, Steps: 1}, Schedule{}, 7)

	legalSet := map[actioncodec.ActionID]bool{}
	for _, id := range legal {
		legalSet[id] = true
	}

	for i := 0; i < 200; i++ {
		id, err := mp.Select(scores, legal)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if !legalSet[id] {
			t.Fatalf("Select returned illegal action %d", id)
		}
	}
}

func TestSelectBoltzmannAlwaysLegal(t *testing.T) {
	legal := []actioncodec.ActionID{10, 20, 30}
	var scores [actioncodec.NumActions]float64
	scores[10], scores[20], scores[30] = 0.1, 5.0, -3.0
	mp := New(config.Boltzmann, Schedule{}, Schedule{Start: 1.0, End: 1.0, Steps: 1}, 3)

	legalSet := map[actioncodec.ActionID]bool{10: true, 20: true, 30: true}
	for i := 0; i < 200; i++ {
		id, err := mp.Select(scores, legal)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if !legalSet[id] {
			t.Fatalf("Select returned illegal action %d", id)
		}
	}
}
