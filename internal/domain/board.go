package domain

import (
	"errors"
	"fmt"
)

// Cell represents a board cell state.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

// Errors returned by domain operations.
var (
	ErrOutOfBounds = errors.New("out of bounds")
	ErrOccupied    = errors.New("cell occupied")
	ErrGameOver    = errors.New("game over")
	ErrInvalidCell = errors.New("invalid cell value")
	ErrInvalidMode = errors.New("invalid game mode")
)

func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Opponent returns the other marker. Empty has no opponent.
func (c Cell) Opponent() Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

// ParseCell accepts "X", "O" or "" (Empty).
func ParseCell(s string) (Cell, error) {
	switch s {
	case "X", "x":
		return X, nil
	case "O", "o":
		return O, nil
	case "":
		return Empty, nil
	}
	return Empty, fmt.Errorf("%w: %q", ErrInvalidCell, s)
}

func (c Cell) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cell) UnmarshalText(b []byte) error {
	v, err := ParseCell(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Board is a fixed 3x3 board stored row-major:
//
//	0 1 2
//	3 4 5
//	6 7 8
type Board [9]Cell

// WinningLines lists rows, then columns, then diagonals. Evaluation and the
// opponent both scan in this order.
var WinningLines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// Place puts player on index and returns the new board. The receiver is
// never modified.
func (b Board) Place(index int, player Cell) (Board, error) {
	if index < 0 || index >= len(b) {
		return b, ErrOutOfBounds
	}
	if b[index] != Empty {
		return b, ErrOccupied
	}
	if player != X && player != O {
		return b, ErrInvalidCell
	}
	b[index] = player
	return b, nil
}

// Full reports whether no Empty cell remains.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Count returns the number of occupied cells.
func (b Board) Count() int {
	n := 0
	for _, c := range b {
		if c != Empty {
			n++
		}
	}
	return n
}

// OutcomeKind classifies a board evaluation.
type OutcomeKind uint8

const (
	Continue OutcomeKind = iota
	Win
	Draw
)

func (k OutcomeKind) String() string {
	switch k {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "continue"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "win":
		*k = Win
	case "draw":
		*k = Draw
	case "continue", "":
		*k = Continue
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Outcome is the result of evaluating a board. Winner and Line are only
// meaningful when Kind is Win.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Winner Cell        `json:"winner"`
	Line   [3]int      `json:"line"`
}

// Evaluate reports the first completed line in WinningLines order, then a
// draw if the board is full, otherwise Continue.
func Evaluate(b Board) Outcome {
	for _, ln := range WinningLines {
		v := b[ln[0]]
		if v == Empty {
			continue
		}
		if b[ln[1]] == v && b[ln[2]] == v {
			return Outcome{Kind: Win, Winner: v, Line: ln}
		}
	}
	if b.Full() {
		return Outcome{Kind: Draw}
	}
	return Outcome{Kind: Continue}
}

// OnLine reports whether index is part of the winning line.
func (o Outcome) OnLine(index int) bool {
	if o.Kind != Win {
		return false
	}
	for _, i := range o.Line {
		if i == index {
			return true
		}
	}
	return false
}
