package table

import (
	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

// Stats summarises the scores of a table over both sides to move.
type Stats struct {
	Wins        uint64
	Losses      uint64
	Draws       uint64
	Undefined   uint64
	Unreachable uint64
	// MaxPlies is the longest distance to mate in the table.
	MaxPlies int
}

// Add counts one score.
func (s *Stats) Add(v Score) {
	switch {
	case v == Unreachable:
		s.Unreachable++
	case v == Undefined:
		s.Undefined++
	case v == Draw:
		s.Draws++
	case v > 0:
		s.Wins++
		s.MaxPlies = max(s.MaxPlies, v.Plies())
	default:
		s.Losses++
		s.MaxPlies = max(s.MaxPlies, v.Plies())
	}
}

// Legal returns the number of scored positions.
func (s Stats) Legal() uint64 {
	return s.Wins + s.Losses + s.Draws
}

// Count scans a table.
func Count(r Reader) Stats {
	var s Stats
	for t := uint64(0); t < r.Size(); t++ {
		p := r.Pair(index.Index(t))
		s.Add(p[board.White])
		s.Add(p[board.Black])
	}
	return s
}
