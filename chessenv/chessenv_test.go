package chessenv

import "testing"

func mustSquare(t *testing.T, s string) Square {
	t.Helper()
	sq, err := SquareFromString(s)
	if err != nil {
		t.Fatalf("SquareFromString(%q): %v", s, err)
	}
	return sq
}

func mustMove(t *testing.T, from, to string) Move {
	t.Helper()
	return Move{From: mustSquare(t, from), To: mustSquare(t, to)}
}

func TestInitialPositionHasThirtyTwoPiecesAndTwentyLegalMoves(t *testing.T) {
	p := InitialPosition()
	count := 0
	for sq := Square(0); sq < 64; sq++ {
		if p.At(sq) != NoPiece {
			count++
		}
	}
	if count != 32 {
		t.Fatalf("initial position has %d occupied squares, want 32", count)
	}
	if got := len(p.LegalMoves()); got != 20 {
		t.Fatalf("initial position has %d legal moves, want 20", got)
	}
}

func TestFoolsMateEndsInCheckmate(t *testing.T) {
	env, err := NewMiniEnv(100, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	p := env.Reset()

	moves := []Move{
		mustMove(t, "f2", "f3"),
		mustMove(t, "e7", "e5"),
		mustMove(t, "g2", "g4"),
		mustMove(t, "d8", "h4"),
	}

	var done bool
	var reward float64
	var reason TerminationReason
	for i, m := range moves {
		p, reward, done, reason = env.Step(p, m)
		if i < len(moves)-1 && done {
			t.Fatalf("game ended prematurely after move %d (%v)", i, m)
		}
	}

	if !done {
		t.Fatal("fool's mate should end the game")
	}
	if reason != Natural {
		t.Fatalf("TerminationReason = %v, want Natural", reason)
	}
	if reward != 1.0 {
		t.Fatalf("reward on the mating move = %v, want 1.0", reward)
	}
	if len(p.LegalMoves()) != 0 {
		t.Fatal("the mated side must have no legal moves")
	}
	if got := env.Outcome(p); got != BlackWins {
		t.Fatalf("Outcome = %v, want BlackWins", got)
	}
}

func TestStalematePositionHasNoLegalMovesAndIsNotCheck(t *testing.T) {
	var p Position
	p.Board[RankFile(0, 0)] = MakePiece(White, King) // a1
	p.Board[RankFile(2, 1)] = MakePiece(Black, Queen) // b3
	p.Board[RankFile(1, 2)] = MakePiece(Black, King)  // c2
	p.SideToMove = White
	p.EnPassant = NoSquare

	if len(p.LegalMoves()) != 0 {
		t.Fatal("the constructed position should have no legal moves")
	}
	if p.inCheck(White) {
		t.Fatal("the constructed position should not be check")
	}

	env, err := NewMiniEnv(100, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	if got := env.Outcome(p); got != Draw {
		t.Fatalf("Outcome = %v, want Draw (stalemate)", got)
	}
}

func TestInsufficientMaterialBareKings(t *testing.T) {
	var p Position
	p.Board[RankFile(0, 0)] = MakePiece(White, King)
	p.Board[RankFile(7, 7)] = MakePiece(Black, King)
	if !insufficientMaterial(p) {
		t.Fatal("bare king vs king must be insufficient material")
	}
}

func TestSufficientMaterialKingRookVsKing(t *testing.T) {
	var p Position
	p.Board[RankFile(0, 0)] = MakePiece(White, King)
	p.Board[RankFile(0, 1)] = MakePiece(White, Rook)
	p.Board[RankFile(7, 7)] = MakePiece(Black, King)
	if insufficientMaterial(p) {
		t.Fatal("king+rook vs king must be sufficient material")
	}
}

func TestFiftyMoveRuleTriggersOnHalfmoveClock(t *testing.T) {
	var p Position
	p.Board[RankFile(0, 0)] = MakePiece(White, King)
	p.Board[RankFile(1, 0)] = MakePiece(White, Rook)
	p.Board[RankFile(7, 7)] = MakePiece(Black, King)
	p.SideToMove = White
	p.EnPassant = NoSquare
	p.HalfmoveClock = 99

	env, err := NewMiniEnv(1000, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}

	_, reward, done, reason := env.Step(p, Move{From: RankFile(1, 0), To: RankFile(2, 0)})
	if !done {
		t.Fatal("a halfmove clock reaching 100 must end the game")
	}
	if reason != Natural {
		t.Fatalf("TerminationReason = %v, want Natural", reason)
	}
	if reward != 0.0 {
		t.Fatalf("reward = %v, want 0.0 (drawn by the fifty-move rule)", reward)
	}
}

func TestThreefoldRepetitionEndsTheGame(t *testing.T) {
	env, err := NewMiniEnv(1000, -1)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	p := env.Reset()

	cycle := []Move{
		mustMove(t, "g1", "f3"),
		mustMove(t, "g8", "f6"),
		mustMove(t, "f3", "g1"),
		mustMove(t, "f6", "g8"),
	}

	var done bool
	var reason TerminationReason
	for rep := 0; rep < 2 && !done; rep++ {
		for _, m := range cycle {
			p, _, done, reason = env.Step(p, m)
			if done {
				break
			}
		}
	}

	if !done {
		t.Fatal("repeating the starting position three times must end the game")
	}
	if reason != Natural {
		t.Fatalf("TerminationReason = %v, want Natural", reason)
	}
}

func TestStepLimitEndsTheGameWithConfiguredPenalty(t *testing.T) {
	env, err := NewMiniEnv(1, -0.5)
	if err != nil {
		t.Fatalf("NewMiniEnv: %v", err)
	}
	p := env.Reset()

	_, reward, done, reason := env.Step(p, mustMove(t, "e2", "e4"))
	if !done {
		t.Fatal("reaching MaxPlies must end the game")
	}
	if reason != StepLimit {
		t.Fatalf("TerminationReason = %v, want StepLimit", reason)
	}
	if reward != -0.5 {
		t.Fatalf("reward = %v, want the configured stepLimitPenalty -0.5", reward)
	}
}

func TestNewMiniEnvRejectsInvalidConfig(t *testing.T) {
	if _, err := NewMiniEnv(0, -1); err == nil {
		t.Fatal("NewMiniEnv should reject maxPlies <= 0")
	}
	if _, err := NewMiniEnv(10, 1); err == nil {
		t.Fatal("NewMiniEnv should reject a positive stepLimitPenalty")
	}
}
