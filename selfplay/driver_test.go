package selfplay

import (
	"context"
	"testing"

	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
)

func TestRunCycleRejectsNonPositiveN(t *testing.T) {
	d, err := NewDriver(func() chessenv.Environment {
		env, _ := chessenv.NewMiniEnv(40, -1)
		return env
	}, 2, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if _, err := d.RunCycle(context.Background(), 0, func(int) (Player, Player) {
		return newTestPlayer(1), newTestPlayer(2)
	}); err == nil {
		t.Fatal("RunCycle with n=0 should fail")
	}
}

func TestRunCyclePlaysEveryGame(t *testing.T) {
	const n = 6
	d, err := NewDriver(func() chessenv.Environment {
		env, _ := chessenv.NewMiniEnv(30, -1)
		return env
	}, 3, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	seen := make([]bool, n)
	makePlayers := func(i int) (Player, Player) {
		seen[i] = true
		return newTestPlayer(int64(i)), newTestPlayer(int64(i + 100))
	}

	result, err := d.RunCycle(context.Background(), n, makePlayers)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.GamesPlayed+result.GamesDropped != n {
		t.Fatalf("GamesPlayed(%d)+GamesDropped(%d) != n(%d)", result.GamesPlayed, result.GamesDropped, n)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("makePlayers was never called for game index %d", i)
		}
	}
	if len(result.Games) != result.GamesPlayed {
		t.Fatalf("len(Games) = %d, want GamesPlayed = %d", len(result.Games), result.GamesPlayed)
	}
}

func TestRunCycleClampsWorkerCountToGameCount(t *testing.T) {
	d, err := NewDriver(func() chessenv.Environment {
		env, _ := chessenv.NewMiniEnv(30, -1)
		return env
	}, 64, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	// Fewer games than configured workers must not deadlock or panic;
	// RunCycle should simply run with min(workerCount, n) workers.
	result, err := d.RunCycle(context.Background(), 1, func(int) (Player, Player) {
		return newTestPlayer(1), newTestPlayer(2)
	})
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.GamesPlayed != 1 {
		t.Fatalf("GamesPlayed = %d, want 1", result.GamesPlayed)
	}
}
