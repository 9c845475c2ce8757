// Package table stores the scores of one configuration: two 12-bit signed
// scores per table index, one per side to move, packed into three bytes.
package table

import (
	"fmt"

	"github.com/hailam/tablegen/internal/board"
)

// Score is a game-theoretic value from the side to move's point of view.
// 0 is a draw, 2000-p wins at ply p, p-2000 loses at ply p.
type Score int16

const (
	MinScore Score = -2048
	MaxScore Score = 2047

	Draw  Score = 0
	Mated Score = -2000 // side to move is checkmated

	// Undefined marks a legal position without a score yet.
	Undefined Score = MinScore
	// Unreachable marks an index that is not a legal canonical position.
	Unreachable Score = MaxScore

	mateBase = 2000

	// MaxPly is the deepest distance to mate a score can hold.
	MaxPly = mateBase - 1
)

// WinIn returns the score of a forced mate delivered at the given ply.
func WinIn(ply int) Score { return Score(mateBase - ply) }

// LossIn returns the score of being mated at the given ply.
func LossIn(ply int) Score { return Score(ply - mateBase) }

// IsDecided reports whether s is a real score rather than a sentinel.
func (s Score) IsDecided() bool {
	return s != Undefined && s != Unreachable
}

// IsWin reports whether the side to move forces mate.
func (s Score) IsWin() bool { return s.IsDecided() && s > 0 }

// IsLoss reports whether the side to move gets mated.
func (s Score) IsLoss() bool { return s.IsDecided() && s < 0 }

// Plies returns the distance to mate in plies; 0 for draws.
func (s Score) Plies() int {
	switch {
	case s > 0:
		return mateBase - int(s)
	case s < 0:
		return mateBase + int(s)
	}
	return 0
}

// Negate converts a child's score into the parent's point of view, one ply
// further from mate.
func (s Score) Negate() Score {
	switch {
	case s < 0:
		return -s - 1
	case s > 0:
		return -s + 1
	}
	return 0
}

// Normalize maps the sentinels to Draw.
func (s Score) Normalize() Score {
	if !s.IsDecided() {
		return Draw
	}
	return s
}

func (s Score) String() string {
	switch {
	case s == Undefined:
		return "undefined"
	case s == Unreachable:
		return "unreachable"
	case s == Draw:
		return "draw"
	case s > 0:
		return fmt.Sprintf("win in %d", s.Plies())
	default:
		return fmt.Sprintf("loss in %d", s.Plies())
	}
}

// Pair holds the scores of one table index, indexed by side to move.
type Pair [2]Score

// Side returns the score with c to move.
func (p Pair) Side(c board.Color) Score { return p[c] }
