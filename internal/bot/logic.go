package bot

import (
	"math/rand/v2"

	"github.com/jaminalder/tictactoe-web/internal/domain"
)

const center = 4

var (
	corners = [4]int{0, 2, 6, 8}
	sides   = [4]int{1, 3, 5, 7}
)

// Rand is the random source used to break ties between corners or sides.
// *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Opponent picks moves by a fixed priority: win, block, center, corner, side.
// It looks exactly one ply ahead and is beatable.
type Opponent struct {
	rng Rand
}

// New returns an Opponent drawing from rng. A nil rng uses an unseeded
// PCG source.
func New(rng Rand) *Opponent {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Opponent{rng: rng}
}

// NewSeeded returns an Opponent whose tie-breaks are reproducible.
func NewSeeded(seed uint64) *Opponent {
	return New(rand.New(rand.NewPCG(seed, seed)))
}

// ChooseMove returns the cell to play for self, or false when the board is
// full.
func (o *Opponent) ChooseMove(board domain.Board, self domain.Cell) (int, bool) {
	// 1. Win
	if idx, ok := findWinningMove(board, self); ok {
		return idx, true
	}
	// 2. Block
	if idx, ok := findWinningMove(board, self.Opponent()); ok {
		return idx, true
	}
	// 3. Center
	if board[center] == domain.Empty {
		return center, true
	}
	// 4. Corners, then 5. sides
	if idx, ok := o.pick(board, corners); ok {
		return idx, true
	}
	if idx, ok := o.pick(board, sides); ok {
		return idx, true
	}
	return -1, false
}

func (o *Opponent) pick(board domain.Board, cells [4]int) (int, bool) {
	available := make([]int, 0, len(cells))
	for _, i := range cells {
		if board[i] == domain.Empty {
			available = append(available, i)
		}
	}
	if len(available) == 0 {
		return -1, false
	}
	return available[o.rng.IntN(len(available))], true
}

// findWinningMove looks for a line holding two of mark and one empty cell.
// Within a line the third slot is tried first, then the second, then the
// first.
func findWinningMove(board domain.Board, mark domain.Cell) (int, bool) {
	if mark == domain.Empty {
		return -1, false
	}
	for _, ln := range domain.WinningLines {
		a, b, c := ln[0], ln[1], ln[2]
		if board[a] == mark && board[b] == mark && board[c] == domain.Empty {
			return c, true
		}
		if board[a] == mark && board[c] == mark && board[b] == domain.Empty {
			return b, true
		}
		if board[b] == mark && board[c] == mark && board[a] == domain.Empty {
			return a, true
		}
	}
	return -1, false
}
