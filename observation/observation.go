// Package observation implements the deterministic vectorization of a
// chessenv.Position into a fixed-length, NaN/Inf-free feature vector
// consumed by a LearningBackend.
package observation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyKot/chess-rl-sub010/chessenv"
)

// Length is the fixed size of every encoded observation vector.
//
// Layout:
//   - 768  = 12 piece-planes (6 figures x 2 colors) x 64 squares
//   - 1    side to move (0=white, 1=black)
//   - 4    castling rights (white-kingside, white-queenside,
//     black-kingside, black-queenside)
//   - 8    en-passant file, one-hot (all zero if none)
//   - 1    halfmove clock, normalized by 100
//   - 1    fullmove number, normalized by 200 and clamped to 1
//   - 1    repetition hint (1.0 if the position has occurred before in
//     the supplied history, else 0.0)
//
// 768 + 1 + 4 + 8 + 1 + 1 + 1 = 784... the remaining 55 features are a
// coarse material/mobility summary (see appendSummaryFeatures) that
// gives the network signal beyond raw piece placement without
// requiring it to learn material counting from scratch.
const Length = 839

const (
	planeFeatures    = 768
	sideFeatures     = 1
	castleFeatures   = 4
	epFileFeatures   = 8
	clockFeatures    = 1
	fullmoveFeatures = 1
	repetitionFeatures = 1
	summaryFeatures  = Length - planeFeatures - sideFeatures - castleFeatures -
		epFileFeatures - clockFeatures - fullmoveFeatures - repetitionFeatures
)

// Encode returns the Length-dimensional feature vector for p. repeated
// reports whether p has occurred earlier in the current game's history
// (used for the single repetition-hint feature); callers without
// history tracking may always pass false.
//
// Encode is deterministic, allocation-bounded, and never produces
// NaN or +/-Inf.
func Encode(p chessenv.Position, repeated bool) *mat.VecDense {
	data := make([]float64, Length)
	idx := 0

	idx = appendPiecePlanes(p, data, idx)
	idx = appendSideToMove(p, data, idx)
	idx = appendCastlingRights(p, data, idx)
	idx = appendEnPassantFile(p, data, idx)

	data[idx] = clamp01(float64(p.HalfmoveClock) / 100.0)
	idx++

	data[idx] = clamp01(float64(p.FullmoveNumber) / 200.0)
	idx++

	if repeated {
		data[idx] = 1.0
	}
	idx++

	idx = appendSummaryFeatures(p, data, idx)

	if idx != Length {
		panic(fmt.Sprintf("observation: encoder wrote %d features, want %d", idx, Length))
	}

	return mat.NewVecDense(Length, data)
}

func appendPiecePlanes(p chessenv.Position, data []float64, idx int) int {
	for fig := chessenv.Pawn; fig <= chessenv.King; fig++ {
		for _, color := range [2]chessenv.Color{chessenv.White, chessenv.Black} {
			want := chessenv.MakePiece(color, fig)
			for sq := chessenv.Square(0); sq < 64; sq++ {
				if p.Board[sq] == want {
					data[idx+int(sq)] = 1.0
				}
			}
			idx += 64
		}
	}
	return idx
}

func appendSideToMove(p chessenv.Position, data []float64, idx int) int {
	if p.SideToMove == chessenv.Black {
		data[idx] = 1.0
	}
	return idx + 1
}

func appendCastlingRights(p chessenv.Position, data []float64, idx int) int {
	rights := [4]chessenv.Castle{
		chessenv.WhiteKingside, chessenv.WhiteQueenside,
		chessenv.BlackKingside, chessenv.BlackQueenside,
	}
	for i, r := range rights {
		if p.Castling&r != 0 {
			data[idx+i] = 1.0
		}
	}
	return idx + 4
}

func appendEnPassantFile(p chessenv.Position, data []float64, idx int) int {
	if p.EnPassant != chessenv.NoSquare {
		data[idx+p.EnPassant.File()] = 1.0
	}
	return idx + 8
}

// appendSummaryFeatures adds coarse, hand-computed signal: per-figure
// material balance (white count - black count, normalized), total
// piece count on the board (normalized), and mobility (legal-move
// count for the side to move, normalized). Padded with zeros to fill
// out the fixed summary width.
func appendSummaryFeatures(p chessenv.Position, data []float64, idx int) int {
	start := idx

	var whiteCount, blackCount [7]int // indexed by Figure, 0 unused
	for sq := chessenv.Square(0); sq < 64; sq++ {
		pc := p.Board[sq]
		if pc == chessenv.NoPiece {
			continue
		}
		if pc.Color() == chessenv.White {
			whiteCount[pc.Figure()]++
		} else {
			blackCount[pc.Figure()]++
		}
	}

	materialValue := map[chessenv.Figure]float64{
		chessenv.Pawn: 1, chessenv.Knight: 3, chessenv.Bishop: 3,
		chessenv.Rook: 5, chessenv.Queen: 9, chessenv.King: 0,
	}

	for fig := chessenv.Pawn; fig <= chessenv.Queen; fig++ {
		diff := float64(whiteCount[fig]-blackCount[fig]) * materialValue[fig]
		data[idx] = clampSigned(diff / 9.0)
		idx++
	}

	totalPieces := 0
	for fig := chessenv.Pawn; fig <= chessenv.King; fig++ {
		totalPieces += whiteCount[fig] + blackCount[fig]
	}
	data[idx] = clamp01(float64(totalPieces) / 32.0)
	idx++

	mobility := len(p.LegalMoves())
	data[idx] = clamp01(float64(mobility) / 64.0)
	idx++

	// Remaining slots are reserved, zero-valued padding.
	for idx-start < summaryFeatures {
		idx++
	}
	return idx
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
