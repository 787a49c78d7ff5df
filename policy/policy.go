// Package policy implements masked action selection: given raw
// per-action scores from a LearningBackend and the legal-action set
// for the current position, it enforces legality by construction
// (illegal scores are forced to -Inf before any strategy runs) and
// then picks one action under a configurable exploration strategy.
package policy

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/config"
)

// NoLegalActions is returned by Select when the supplied legal set is
// empty. Callers must have already handled the terminal case; this
// error signals a precondition violation, not a normal outcome.
var NoLegalActions = fmt.Errorf("policy: no legal actions supplied")

// Schedule decays a scalar parameter (epsilon or temperature) linearly
// from Start to End over Steps calls to Value.
type Schedule struct {
	Start, End float64
	Steps      int
}

// Value returns the schedule's value at the given step count, clamped
// to [min(Start,End), max(Start,End)].
func (s Schedule) Value(step int) float64 {
	if s.Steps <= 0 || step >= s.Steps {
		return s.End
	}
	frac := float64(step) / float64(s.Steps)
	return s.Start + frac*(s.End-s.Start)
}

// MaskedPolicy selects an action under one of three exploration
// strategies, with illegal actions masked to -Inf before selection so
// an illegal id can never be chosen.
type MaskedPolicy struct {
	strategy    config.ExplorationStrategy
	epsilon     Schedule
	temperature Schedule
	rng         *rand.Rand

	step            int
	illegalObserved int
}

// New constructs a MaskedPolicy. seed fixes the policy's internal RNG
// so that, given the same seed, scores, legal set, and schedule state,
// Select always returns the same action.
func New(strategy config.ExplorationStrategy, epsilon, temperature Schedule, seed int64) *MaskedPolicy {
	return &MaskedPolicy{
		strategy:    strategy,
		epsilon:     epsilon,
		temperature: temperature,
		rng:         rand.New(rand.NewSource(uint64(seed))),
	}
}

// IllegalActionCount returns how many times Select observed a
// backend-returned argmax outside the legal set. Masking always
// prevents this from ever being the *returned* action, but the raw
// count is exported to metrics, and the validator reports any nonzero
// count as a HIGH-severity IllegalActionObserved issue.
func (mp *MaskedPolicy) IllegalActionCount() int {
	return mp.illegalObserved
}

// Select masks scores by legal, then chooses an action under the
// policy's configured exploration strategy. legal need not be sorted.
// The returned id is always a member of legal. Select fails with
// NoLegalActions if legal is empty.
//
// legal is taken as a slice, not a set, so that iteration order (and
// therefore tie-breaking and the uniform-sampling draw) is a pure
// function of its contents rather than Go's randomized map iteration
// order -- required for the documented determinism guarantee.
func (mp *MaskedPolicy) Select(scores [actioncodec.NumActions]float64,
	legal []actioncodec.ActionID) (actioncodec.ActionID, error) {

	if len(legal) == 0 {
		return 0, NoLegalActions
	}

	sorted := append([]actioncodec.ActionID(nil), legal...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	legalSet := make(map[actioncodec.ActionID]bool, len(sorted))
	for _, id := range sorted {
		legalSet[id] = true
	}

	masked := scores
	rawArgmax := argmax(scores[:])
	if !legalSet[actioncodec.ActionID(rawArgmax)] {
		mp.illegalObserved++
	}
	for i := range masked {
		if !legalSet[actioncodec.ActionID(i)] {
			masked[i] = math.Inf(-1)
		}
	}

	mp.step++

	switch mp.strategy {
	case config.Greedy:
		return argmaxLegal(masked, sorted), nil
	case config.EpsilonGreedy:
		return mp.selectEpsilonGreedy(masked, sorted), nil
	case config.Boltzmann:
		return mp.selectBoltzmann(masked, sorted), nil
	default:
		return argmaxLegal(masked, sorted), nil
	}
}

func (mp *MaskedPolicy) selectEpsilonGreedy(masked [actioncodec.NumActions]float64,
	sorted []actioncodec.ActionID) actioncodec.ActionID {

	eps := mp.epsilon.Value(mp.step)
	if mp.rng.Float64() < eps {
		return sorted[mp.rng.Intn(len(sorted))]
	}
	return argmaxLegal(masked, sorted)
}

func (mp *MaskedPolicy) selectBoltzmann(masked [actioncodec.NumActions]float64,
	sorted []actioncodec.ActionID) actioncodec.ActionID {

	tau := mp.temperature.Value(mp.step)
	if tau <= 0 {
		tau = 1e-6
	}

	maxScore := math.Inf(-1)
	for _, id := range sorted {
		if v := masked[id]; v > maxScore {
			maxScore = v
		}
	}

	weights := make([]float64, len(sorted))
	total := 0.0
	for i, id := range sorted {
		w := math.Exp((masked[id] - maxScore) / tau)
		weights[i] = w
		total += w
	}

	r := mp.rng.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if r <= cum {
			return sorted[i]
		}
	}
	return sorted[len(sorted)-1]
}

func argmax(scores []float64) int {
	best, bestScore := 0, math.Inf(-1)
	for i, s := range scores {
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func argmaxLegal(masked [actioncodec.NumActions]float64, sorted []actioncodec.ActionID) actioncodec.ActionID {
	best := sorted[0]
	bestScore := masked[best]
	for _, id := range sorted[1:] {
		if masked[id] > bestScore {
			best, bestScore = id, masked[id]
		}
	}
	return best
}
