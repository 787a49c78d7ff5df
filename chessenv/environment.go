package chessenv

import "fmt"

// Environment is the external contract the training core consumes: a
// deterministic state machine over Positions, legal-move generation,
// and outcome classification. Implementations need not be
// goroutine-safe; callers hold one Environment per concurrent game.
type Environment interface {
	// Reset returns a fresh game's starting Position and clears any
	// per-game history (used for repetition/step-limit bookkeeping).
	Reset() Position

	// LegalMoves returns every legal move in p. Empty iff p is
	// terminal (checkmate or stalemate).
	LegalMoves(p Position) []Move

	// Step applies m to p and returns the resulting Position, the
	// reward for the side to move in p, whether the game has ended,
	// and why. Preconditions: m is legal in p.
	Step(p Position, m Move) (next Position, reward float64, done bool, reason TerminationReason)

	// Outcome classifies p without mutating any per-game state.
	Outcome(p Position) Outcome

	// MaxPlies reports the configured step limit for this
	// Environment instance.
	MaxPlies() int
}

// repetitionKey is the comparable subset of Position used to detect
// threefold repetition: board, side to move, castling rights, and the
// en-passant target square. The two clocks are deliberately excluded.
type repetitionKey struct {
	board     [64]Piece
	side      Color
	castling  Castle
	enPassant Square
}

func keyOf(p Position) repetitionKey {
	return repetitionKey{p.Board, p.SideToMove, p.Castling, p.EnPassant}
}

// MiniEnv is the reference Environment implementation: a complete,
// correct (if unoptimized) mailbox-board chess rules engine covering
// checkmate, stalemate, the 50-move rule, threefold repetition, and
// insufficient material, plus a caller-configured step limit.
type MiniEnv struct {
	maxPlies         int
	stepLimitPenalty float64

	history  []repetitionKey
	plyCount int
}

// NewMiniEnv constructs a MiniEnv with the given step limit and
// step-limit penalty reward (must be <= 0).
func NewMiniEnv(maxPlies int, stepLimitPenalty float64) (*MiniEnv, error) {
	if maxPlies <= 0 {
		return nil, fmt.Errorf("chessenv: maxPlies must be > 0, got %d", maxPlies)
	}
	if stepLimitPenalty > 0 {
		return nil, fmt.Errorf("chessenv: stepLimitPenalty must be <= 0, got %v",
			stepLimitPenalty)
	}
	return &MiniEnv{maxPlies: maxPlies, stepLimitPenalty: stepLimitPenalty}, nil
}

// MaxPlies reports the configured step limit.
func (e *MiniEnv) MaxPlies() int { return e.maxPlies }

// Reset starts a new game and returns the standard initial Position.
func (e *MiniEnv) Reset() Position {
	p := InitialPosition()
	e.history = e.history[:0]
	e.history = append(e.history, keyOf(p))
	e.plyCount = 0
	return p
}

// LegalMoves returns every legal move available in p.
func (e *MiniEnv) LegalMoves(p Position) []Move {
	return p.LegalMoves()
}

// Outcome classifies p. It does not consult per-game history, so it
// cannot detect repetition or the 50-move rule on its own; those are
// applied by Step as the game progresses.
func (e *MiniEnv) Outcome(p Position) Outcome {
	legal := p.LegalMoves()
	inCheck := p.inCheck(p.SideToMove)

	if len(legal) == 0 {
		if inCheck {
			if p.SideToMove == White {
				return BlackWins
			}
			return WhiteWins
		}
		return Draw
	}
	if inCheck {
		return InCheck
	}
	return Ongoing
}

// Step applies m to p, updates per-game history, and reports the
// reward/termination outcome of the resulting Position.
func (e *MiniEnv) Step(p Position, m Move) (Position, float64, bool, TerminationReason) {
	next := p.applyMove(m)
	e.plyCount++
	e.history = append(e.history, keyOf(next))

	legal := next.LegalMoves()
	if len(legal) == 0 {
		if next.inCheck(next.SideToMove) {
			// next.SideToMove is checkmated; the side that just moved won.
			return next, 1.0, true, Natural
		}
		return next, 0.0, true, Natural // stalemate
	}

	if next.HalfmoveClock >= 100 {
		return next, 0.0, true, Natural // 50-move rule
	}

	if e.repetitions(keyOf(next)) >= 3 {
		return next, 0.0, true, Natural // threefold repetition
	}

	if insufficientMaterial(next) {
		return next, 0.0, true, Natural
	}

	if e.plyCount >= e.maxPlies {
		return next, e.stepLimitPenalty, true, StepLimit
	}

	return next, 0.0, false, NotTerminal
}

func (e *MiniEnv) repetitions(key repetitionKey) int {
	count := 0
	for _, k := range e.history {
		if k == key {
			count++
		}
	}
	return count
}

// insufficientMaterial reports whether neither side has enough force
// remaining to deliver checkmate: K-vs-K, K+minor-vs-K, or
// same-colored-bishop-vs-same-colored-bishop.
func insufficientMaterial(p Position) bool {
	white, black := p.pieceCounts()

	total := func(m map[Figure]int) int {
		n := 0
		for _, c := range m {
			n += c
		}
		return n
	}

	// Counts include each side's king, so a total of 2 is the king plus
	// one other piece.
	if total(white) > 2 || total(black) > 2 {
		return false
	}

	if total(white) == 2 && total(black) == 2 {
		if white[Bishop] == 1 && total(white) == 1+white[Bishop] &&
			black[Bishop] == 1 && total(black) == 1+black[Bishop] {
			// King+bishop vs king+bishop: sufficient only if bishops sit on
			// opposite-colored squares.
			var whiteBishopSq, blackBishopSq Square = -1, -1
			for sq := Square(0); sq < 64; sq++ {
				pc := p.Board[sq]
				if pc.Figure() == Bishop {
					if pc.Color() == White {
						whiteBishopSq = sq
					} else {
						blackBishopSq = sq
					}
				}
			}
			if whiteBishopSq >= 0 && blackBishopSq >= 0 {
				return isDark(whiteBishopSq) == isDark(blackBishopSq)
			}
		}
		return false
	}

	// At least one side has a bare king; the other has at most one
	// non-king piece.
	soleFigure := func(m map[Figure]int) (Figure, bool) {
		for f, c := range m {
			if f != King && c == 1 {
				return f, true
			}
		}
		return NoFigure, false
	}

	wf, wHas := soleFigure(white)
	bf, bHas := soleFigure(black)

	switch {
	case !wHas && !bHas:
		return true // K vs K
	case wHas && !bHas:
		return wf == Knight || wf == Bishop
	case !wHas && bHas:
		return bf == Knight || bf == Bishop
	default:
		return (wf == Knight || wf == Bishop) && (bf == Knight || bf == Bishop)
	}
}
