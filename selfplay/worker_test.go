package selfplay

import (
	"context"
	"testing"
	"time"

	"github.com/AnthonyKot/chess-rl-sub010/baseline"
	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
	"github.com/AnthonyKot/chess-rl-sub010/config"
	"github.com/AnthonyKot/chess-rl-sub010/policy"
	"github.com/AnthonyKot/chess-rl-sub010/replay"
)

func newTestPlayer(seed int64) Player {
	return Player{
		Scorer: baseline.New(float64(seed)),
		Policy: policy.New(config.Greedy, policy.Schedule{}, policy.Schedule{}, seed),
	}
}

func TestWorkerPlayReachesATerminalResult(t *testing.T) {
	env, err := chessenv.NewMiniEnv(40, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	w := NewWorker(env, newTestPlayer(1), newTestPlayer(2))

	out := make(chan replay.Experience, 4096)
	result, err := w.Play(context.Background(), out)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if result.TerminationReason == chessenv.NotTerminal {
		t.Fatal("a completed game must not report NotTerminal")
	}

	var exps []replay.Experience
	for e := range out {
		exps = append(exps, e)
	}
	if len(exps) != result.PlyCount {
		t.Fatalf("collected %d experiences, want one per ply (%d)", len(exps), result.PlyCount)
	}
	if len(exps) > 0 && !exps[len(exps)-1].Done {
		t.Fatal("the last experience of a completed game must have Done=true")
	}
}

func TestWorkerPlayCancellationEmitsOneManualExperience(t *testing.T) {
	env, err := chessenv.NewMiniEnv(1000, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	w := NewWorker(env, newTestPlayer(1), newTestPlayer(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan replay.Experience, 4)
	result, err := w.Play(ctx, out)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if result.TerminationReason != chessenv.Manual {
		t.Fatalf("TerminationReason = %v, want Manual", result.TerminationReason)
	}

	var exps []replay.Experience
	for e := range out {
		exps = append(exps, e)
	}
	if len(exps) != 1 {
		t.Fatalf("cancellation before any ply should emit exactly one experience, got %d", len(exps))
	}
	if !exps[0].Done || exps[0].Reason != chessenv.Manual {
		t.Fatalf("the abort experience should be Done with reason Manual, got %+v", exps[0])
	}
}

func TestWorkerPlayRespectsDeadline(t *testing.T) {
	env, err := chessenv.NewMiniEnv(1000, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	w := NewWorker(env, newTestPlayer(1), newTestPlayer(2))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out := make(chan replay.Experience, 4096)
	done := make(chan struct{})
	go func() {
		w.Play(ctx, out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after its context deadline elapsed")
	}
	for range out {
	}
}
