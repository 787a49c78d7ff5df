// Package actioncodec implements a bijective mapping between chess
// moves and a fixed discrete action-id space of size 4096 (64 source
// squares x 64 destination squares). Encode is a pure, allocation-free
// closed-form computation; Decode additionally validates the id
// against a position's legal moves, which allocates.
//
// Promotion is always to a queen (see chessenv's move generator), so
// a move is fully identified by its (from, to) pair alone; no
// additional bits are needed to distinguish underpromotion choices,
// which keeps the codec exact within the fixed 4096-id budget rather
// than approximate.
package actioncodec

import (
	"fmt"

	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
)

// NumActions is the size of the fixed discrete action space.
const NumActions = 4096

// ActionID identifies a move under the codec, in [0, NumActions).
type ActionID int

// InvalidAction reports that an ActionID could not be decoded to a
// move legal in the Position supplied to Decode.
type InvalidAction struct {
	ID ActionID
}

func (e *InvalidAction) Error() string {
	return fmt.Sprintf("actioncodec: action id %d is not legal in the given position", e.ID)
}

// Encode returns the ActionID for m. Encoding is pure, allocation-free,
// and a closed-form function of m's From/To squares alone: id =
// from*64 + to.
func Encode(m chessenv.Move) ActionID {
	return ActionID(int(m.From)*64 + int(m.To))
}

// Decode recovers the Move corresponding to id among the legal moves
// of position p. Decode fails with *InvalidAction if id does not
// correspond to any legal move in p (including the case where id is
// out of range).
func Decode(id ActionID, p chessenv.Position) (chessenv.Move, error) {
	if id < 0 || id >= NumActions {
		return chessenv.Move{}, &InvalidAction{ID: id}
	}

	from := chessenv.Square(int(id) / 64)
	to := chessenv.Square(int(id) % 64)

	for _, m := range p.LegalMoves() {
		if m.From == from && m.To == to {
			return m, nil
		}
	}
	return chessenv.Move{}, &InvalidAction{ID: id}
}

// EncodeAll builds the legal-action mask for a slice of legal moves:
// every ActionID those moves encode to, mapped back to the move
// itself so callers can look up which move an id refers to without
// re-querying the environment.
func EncodeAll(moves []chessenv.Move) map[ActionID]chessenv.Move {
	mask := make(map[ActionID]chessenv.Move, len(moves))
	for _, m := range moves {
		mask[Encode(m)] = m
	}
	return mask
}
