// Package selfplay plays chess games between two policies and streams
// the resulting transitions into the replay buffer. A Worker owns one
// Environment and plays one game at a time; a Driver fans work out
// across a pool of Workers for a whole self-play cycle.
package selfplay

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/actioncodec"
	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/observation"
	"github.com/AnthonyKot/chess-rl-sub010/policy"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
)

// Scorer is the narrow, read-only capability a Worker needs in order
// to play a game: raw action scores for an observation. A
// backend.Backend satisfies this trivially; so does a frozen
// snapshot or a non-learning baseline opponent.
type Scorer interface {
	ScoreActions(observation *mat.VecDense) [actioncodec.NumActions]float64
}

// Player pairs a Scorer with the exploration policy that turns its
// scores into a chosen legal action.
type Player struct {
	Scorer Scorer
	Policy *policy.MaskedPolicy
}

// Worker plays one game at a time between a white and a black Player
// on a private Environment.
type Worker struct {
	env   chessenv.Environment
	white Player
	black Player
}

// NewWorker constructs a Worker. env is owned exclusively by this
// Worker for the duration of Play: MiniEnv tracks per-game history
// internally and Reset clears it, so one Environment instance can be
// reused sequentially across many games but never shared between two
// games in flight at once.
func NewWorker(env chessenv.Environment, white, black Player) *Worker {
	return &Worker{env: env, white: white, black: black}
}

func (w *Worker) playerFor(c chessenv.Color) Player {
	if c == chessenv.White {
		return w.white
	}
	return w.black
}

// Play resets the Worker's Environment and runs one game to
// completion, streaming every transition to out in order. Play closes
// out before returning, whether the game ends naturally, hits the
// step limit, or ctx is canceled mid-game (in which case the final
// transition carries chessenv.Manual and done=true so the buffer never
// retains a dangling incomplete episode).
func (w *Worker) Play(ctx context.Context, out chan<- replay.Experience) (chessenv.GameResult, error) {
	defer close(out)

	p := w.env.Reset()
	seen := map[chessenv.Position]int{p: 1}
	ply := 0

	for {
		select {
		case <-ctx.Done():
			return w.abort(ctx, out, p, ply, seen[p] > 1)
		default:
		}

		legal := w.env.LegalMoves(p)
		if len(legal) == 0 {
			return chessenv.GameResult{
				Outcome:           w.env.Outcome(p),
				PlyCount:          ply,
				TerminationReason: chessenv.Natural,
				FinalPosition:     p,
			}, nil
		}

		mover := w.playerFor(p.SideToMove)
		mask := actioncodec.EncodeAll(legal)
		legalIDs := make([]actioncodec.ActionID, 0, len(mask))
		for id := range mask {
			legalIDs = append(legalIDs, id)
		}

		obs := observation.Encode(p, seen[p] > 1)
		scores := mover.Scorer.ScoreActions(obs)

		actionID, err := mover.Policy.Select(scores, legalIDs)
		if err != nil {
			return chessenv.GameResult{}, fmt.Errorf("selfplay: could not select an action at ply %d: %w", ply, err)
		}
		move, ok := mask[actionID]
		if !ok {
			return chessenv.GameResult{}, fmt.Errorf("selfplay: policy selected action %d outside the legal mask at ply %d", actionID, ply)
		}

		next, reward, done, reason := w.env.Step(p, move)
		ply++
		seen[next]++
		nextObs := observation.Encode(next, seen[next] > 1)

		exp := replay.Experience{
			State:     obs,
			Action:    actionID,
			Reward:    reward,
			NextState: nextObs,
			Done:      done,
			Reason:    reason,
		}
		select {
		case out <- exp:
		case <-ctx.Done():
			return w.abort(ctx, out, next, ply, seen[next] > 1)
		}

		if done {
			return chessenv.GameResult{
				Outcome:           w.env.Outcome(next),
				PlyCount:          ply,
				TerminationReason: reason,
				FinalPosition:     next,
			}, nil
		}
		p = next
	}
}

// abort emits a single terminal Manual-reason experience anchored at
// the current position and returns a matching GameResult.
func (w *Worker) abort(ctx context.Context, out chan<- replay.Experience, p chessenv.Position, ply int, repeated bool) (chessenv.GameResult, error) {
	obs := observation.Encode(p, repeated)
	exp := replay.Experience{State: obs, NextState: obs, Done: true, Reason: chessenv.Manual}
	// ctx is already done here, so a single select would choose between
	// the send and ctx.Done() at random; try the send on its own first.
	select {
	case out <- exp:
	default:
		select {
		case out <- exp:
		case <-ctx.Done():
		}
	}
	return chessenv.GameResult{
		Outcome:           w.env.Outcome(p),
		PlyCount:          ply,
		TerminationReason: chessenv.Manual,
		FinalPosition:     p,
	}, nil
}
