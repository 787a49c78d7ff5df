package selfplay

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/diag"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
	"github.com/AnthonyKot/chess-rl-sub010/utils/intutils"
)

// GameRecord pairs a completed game's result with the game index
// makePlayers assigned it, so callers can recover which color their
// own side played without the Driver needing to know anything about
// "main" vs "opponent".
type GameRecord struct {
	Index  int
	Result chessenv.GameResult
}

// CycleResult summarizes one self-play cycle's worth of games: every
// transition collected from completed games, one GameRecord per
// completed game, and the drop accounting the Trainer uses to decide
// whether the whole cycle failed.
type CycleResult struct {
	Experiences  []replay.Experience
	Games        []GameRecord
	GamesPlayed  int
	GamesDropped int
	// Failed reports whether more than half of the cycle's games were
	// dropped, in which case the Trainer applies no updates this
	// cycle.
	Failed bool
}

// Driver fans a cycle's games out across a fixed pool of workers, each
// holding its own Environment so games never contend on shared state.
type Driver struct {
	envFactory  func() chessenv.Environment
	workerCount int
	sink        diag.Sink
}

// NewDriver constructs a Driver. workerCount <= 0 selects
// runtime.NumCPU(). envFactory is called once per worker (not once per
// game); the resulting Environment is reset and reused across that
// worker's games.
func NewDriver(envFactory func() chessenv.Environment, workerCount int, sink diag.Sink) (*Driver, error) {
	if envFactory == nil {
		return nil, fmt.Errorf("selfplay: envFactory must not be nil")
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if sink == nil {
		sink = diag.Discard
	}
	return &Driver{envFactory: envFactory, workerCount: workerCount, sink: sink}, nil
}

type gameOutcome struct {
	index       int
	experiences []replay.Experience
	result      chessenv.GameResult
	err         error
}

type gameCompletion struct {
	result chessenv.GameResult
	err    error
}

// RunCycle plays n games across the Driver's worker pool, each worker
// taking the next unplayed game index as soon as it is free.
// makePlayers assigns white/black for game index i (0 <= i < n),
// letting the caller alternate colors and pick an opponent per the
// configured OpponentStrategy. RunCycle returns once every worker has
// finished or ctx is canceled.
func (d *Driver) RunCycle(ctx context.Context, n int, makePlayers func(gameIndex int) (white, black Player)) (CycleResult, error) {
	if n <= 0 {
		return CycleResult{}, fmt.Errorf("selfplay: n must be > 0, got %d", n)
	}

	workers := intutils.Min(d.workerCount, n)

	g, gctx := errgroup.WithContext(ctx)
	outcomes := make(chan gameOutcome, n)

	// A shared, atomically-incremented game-index counter lets every
	// worker pull its next game as soon as it finishes the last one,
	// so a slow game on one worker never idles the others.
	var next int64 = -1

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			env := d.envFactory()
			for {
				i := int(atomic.AddInt64(&next, 1))
				if i >= n {
					return nil
				}
				white, black := makePlayers(i)
				worker := NewWorker(env, white, black)

				out := make(chan replay.Experience, 64)
				completion := make(chan gameCompletion, 1)
				go func() {
					res, err := worker.Play(gctx, out)
					completion <- gameCompletion{result: res, err: err}
				}()

				exps := make([]replay.Experience, 0, 64)
				for e := range out {
					exps = append(exps, e)
				}
				done := <-completion

				select {
				case outcomes <- gameOutcome{index: i, experiences: exps, result: done.result, err: done.err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	go func() {
		g.Wait()
		close(outcomes)
	}()

	var result CycleResult
	for oc := range outcomes {
		if oc.err != nil {
			result.GamesDropped++
			d.sink.Warnf("selfplay: game %d dropped: %v", oc.index, oc.err)
			continue
		}
		result.Experiences = append(result.Experiences, oc.experiences...)
		result.Games = append(result.Games, GameRecord{Index: oc.index, Result: oc.result})
		result.GamesPlayed++
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return result, fmt.Errorf("selfplay: cycle aborted: %w", err)
	}

	result.Failed = result.GamesDropped*2 > n
	return result, nil
}
