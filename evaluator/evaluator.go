// Package evaluator plays a fixed-size greedy match between the
// current backend and a selectable opponent and reports win/draw/loss
// statistics together with their statistical significance, built
// directly on gonum/stat/distuv rather than hand-rolled probability
// math.
package evaluator

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/config"
	"github.com/AnthonyKot/chess-rl-sub010/policy"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/selfplay"
	"github.com/AnthonyKot/chess-rl-sub010/utils/floatutils"
)

// Config configures an Evaluator.
type Config struct {
	Games           int     // must be > 0 and even; M/2 games played as each color
	ConfidenceLevel float64 // Wilson CI level, default 0.95
	NullWinRate     float64 // p0 for the binomial significance test, default 0.5
	Alpha           float64 // significance threshold, default 0.05
}

func (cfg Config) withDefaults() Config {
	if cfg.ConfidenceLevel <= 0 {
		cfg.ConfidenceLevel = 0.95
	}
	if cfg.NullWinRate <= 0 {
		cfg.NullWinRate = 0.5
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.05
	}
	return cfg
}

// WilsonInterval is a Wilson-score confidence interval for a binomial
// proportion.
type WilsonInterval struct {
	Level, Lower, Upper float64
}

// Result is the outcome of one evaluation match.
type Result struct {
	Games               int
	Wins, Draws, Losses int
	WinRate             float64
	DrawRate            float64
	LossRate            float64
	AvgPly              float64
	CI                  WilsonInterval
	PValue              float64
	Significant         bool
}

// Evaluator plays Config.Games games between a main Scorer and an
// opponent Scorer, alternating colors, using greedy (exploration-free)
// policies on both sides so the match measures pure parameter
// strength.
type Evaluator struct {
	envFactory func() chessenv.Environment
	cfg        Config
}

// New constructs an Evaluator. envFactory builds a fresh Environment
// per game.
func New(envFactory func() chessenv.Environment, cfg Config) (*Evaluator, error) {
	if envFactory == nil {
		return nil, fmt.Errorf("evaluator: envFactory must not be nil")
	}
	if cfg.Games <= 0 || cfg.Games%2 != 0 {
		return nil, fmt.Errorf("evaluator: games must be > 0 and even, got %d", cfg.Games)
	}
	return &Evaluator{envFactory: envFactory, cfg: cfg.withDefaults()}, nil
}

type evalOutcome struct {
	result chessenv.GameResult
	err    error
}

// Run plays the configured match and returns its statistics. main
// plays Games/2 games as white and Games/2 as black.
func (e *Evaluator) Run(ctx context.Context, main, opponent selfplay.Scorer) (Result, error) {
	half := e.cfg.Games / 2
	mainPolicy := policy.New(config.Greedy, policy.Schedule{}, policy.Schedule{}, 1)
	opponentPolicy := policy.New(config.Greedy, policy.Schedule{}, policy.Schedule{}, 2)

	wins, draws, losses, totalPly := 0, 0, 0, 0

	for i := 0; i < e.cfg.Games; i++ {
		mainIsWhite := i < half

		white := selfplay.Player{Scorer: opponent, Policy: opponentPolicy}
		black := selfplay.Player{Scorer: main, Policy: mainPolicy}
		if mainIsWhite {
			white, black = selfplay.Player{Scorer: main, Policy: mainPolicy}, selfplay.Player{Scorer: opponent, Policy: opponentPolicy}
		}

		worker := selfplay.NewWorker(e.envFactory(), white, black)
		out := make(chan replay.Experience, 64)
		done := make(chan evalOutcome, 1)
		go func() {
			res, err := worker.Play(ctx, out)
			done <- evalOutcome{result: res, err: err}
		}()
		for range out {
		}
		outcome := <-done
		if outcome.err != nil {
			return Result{}, fmt.Errorf("evaluator: game %d failed: %w", i, outcome.err)
		}

		totalPly += outcome.result.PlyCount
		switch {
		case mainIsWhite && outcome.result.Outcome == chessenv.WhiteWins,
			!mainIsWhite && outcome.result.Outcome == chessenv.BlackWins:
			wins++
		case mainIsWhite && outcome.result.Outcome == chessenv.BlackWins,
			!mainIsWhite && outcome.result.Outcome == chessenv.WhiteWins:
			losses++
		default:
			draws++
		}
	}

	n := e.cfg.Games
	result := Result{
		Games:    n,
		Wins:     wins,
		Draws:    draws,
		Losses:   losses,
		WinRate:  float64(wins) / float64(n),
		DrawRate: float64(draws) / float64(n),
		LossRate: float64(losses) / float64(n),
		AvgPly:   float64(totalPly) / float64(n),
		CI:       wilsonInterval(wins, n, e.cfg.ConfidenceLevel),
		PValue:   twoTailedBinomialP(wins, n, e.cfg.NullWinRate),
	}
	result.Significant = result.PValue < e.cfg.Alpha
	return result, nil
}

// wilsonInterval computes the Wilson-score confidence interval for a
// binomial proportion, accurate for small or extreme win counts where
// the normal approximation breaks down.
func wilsonInterval(wins, n int, level float64) WilsonInterval {
	if n == 0 {
		return WilsonInterval{Level: level}
	}
	phat := float64(wins) / float64(n)
	nf := float64(n)
	alpha := 1 - level
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - alpha/2)
	z2 := z * z

	denom := 1 + z2/nf
	center := phat + z2/(2*nf)
	margin := z * math.Sqrt(phat*(1-phat)/nf+z2/(4*nf*nf))

	lower := floatutils.ClipUnit((center - margin) / denom)
	upper := floatutils.ClipUnit((center + margin) / denom)
	return WilsonInterval{Level: level, Lower: lower, Upper: upper}
}

// twoTailedBinomialP computes the exact two-tailed binomial test
// p-value: the probability mass of every outcome count at least as
// extreme (no more likely under the null) as the observed count k.
func twoTailedBinomialP(k, n int, p0 float64) float64 {
	if n == 0 {
		return 1
	}
	dist := distuv.Binomial{N: float64(n), P: p0}
	pObs := dist.Prob(float64(k))
	const slack = 1e-9

	total := 0.0
	for i := 0; i <= n; i++ {
		pi := dist.Prob(float64(i))
		if pi <= pObs*(1+slack) {
			total += pi
		}
	}
	if total > 1 {
		total = 1
	}
	return total
}

// CohensH is the effect size between two proportions:
// 2*(arcsin(sqrt(p1)) - arcsin(sqrt(p2))).
func CohensH(p1, p2 float64) float64 {
	return 2*math.Asin(math.Sqrt(p1)) - 2*math.Asin(math.Sqrt(p2))
}

// CohensHLabel classifies |h| per Cohen's conventional thresholds.
func CohensHLabel(h float64) string {
	a := math.Abs(h)
	switch {
	case a < 0.2:
		return "negligible"
	case a < 0.5:
		return "small"
	case a < 0.8:
		return "medium"
	default:
		return "large"
	}
}
