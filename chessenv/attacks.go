package chessenv

var knightDeltas = [8][2]int{
	{2, 1}, {2, -1}, {-2, 1}, {-2, -1},
	{1, 2}, {1, -2}, {-1, 2}, {-1, -2},
}

var kingDeltas = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

var bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func onBoard(rank, file int) bool {
	return rank >= 0 && rank < 8 && file >= 0 && file < 8
}

// attacked reports whether sq is attacked by any piece of color by.
func (p Position) attacked(sq Square, by Color) bool {
	rank, file := sq.Rank(), sq.File()

	// Pawns: a pawn of color `by` attacks sq if it sits one rank behind
	// (from by's perspective) and one file to either side.
	pawnRankDelta := 1
	if by == Black {
		pawnRankDelta = -1
	}
	for _, df := range [2]int{-1, 1} {
		r, f := rank-pawnRankDelta, file+df
		if onBoard(r, f) {
			pc := p.Board[RankFile(r, f)]
			if pc.Figure() == Pawn && pc.Color() == by {
				return true
			}
		}
	}

	for _, d := range knightDeltas {
		r, f := rank+d[0], file+d[1]
		if onBoard(r, f) {
			pc := p.Board[RankFile(r, f)]
			if pc.Figure() == Knight && pc.Color() == by {
				return true
			}
		}
	}

	for _, d := range kingDeltas {
		r, f := rank+d[0], file+d[1]
		if onBoard(r, f) {
			pc := p.Board[RankFile(r, f)]
			if pc.Figure() == King && pc.Color() == by {
				return true
			}
		}
	}

	for _, d := range bishopDirs {
		r, f := rank+d[0], file+d[1]
		for onBoard(r, f) {
			pc := p.Board[RankFile(r, f)]
			if pc != NoPiece {
				if pc.Color() == by && (pc.Figure() == Bishop || pc.Figure() == Queen) {
					return true
				}
				break
			}
			r, f = r+d[0], f+d[1]
		}
	}

	for _, d := range rookDirs {
		r, f := rank+d[0], file+d[1]
		for onBoard(r, f) {
			pc := p.Board[RankFile(r, f)]
			if pc != NoPiece {
				if pc.Color() == by && (pc.Figure() == Rook || pc.Figure() == Queen) {
					return true
				}
				break
			}
			r, f = r+d[0], f+d[1]
		}
	}

	return false
}

// inCheck reports whether c's king is currently attacked.
func (p Position) inCheck(c Color) bool {
	return p.attacked(p.KingSquare(c), c.Opposite())
}
