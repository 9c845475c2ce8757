// Package tablebase answers queries against generated tables: the score of a
// table index, and win/draw/loss with distance to mate for a position.
package tablebase

import (
	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/table"
)

// WDL represents Win/Draw/Loss result.
type WDL int

const (
	WDLLoss WDL = -2
	WDLDraw WDL = 0
	WDLWin  WDL = 2
)

func (w WDL) String() string {
	switch w {
	case WDLWin:
		return "win"
	case WDLLoss:
		return "loss"
	}
	return "draw"
}

// MateScore is the engine score of being mated at the root.
const MateScore = 30000

// ProbeResult contains the result of a tablebase probe.
type ProbeResult struct {
	Found bool
	WDL   WDL
	DTM   int // plies to mate, 0 for draws
	Score table.Score
}

// RootResult contains the best move from tablebase at root position.
type RootResult struct {
	Found bool
	Move  board.Move
	WDL   WDL
	DTM   int
}

// Prober is the interface for tablebase probing.
type Prober interface {
	// Probe looks up a position in the tablebase.
	Probe(pos *board.Position) ProbeResult

	// ProbeRoot finds the move keeping the best result: the fastest mate
	// when winning, the longest resistance when losing.
	ProbeRoot(pos *board.Position) RootResult

	// MaxPieces returns the maximum number of non-king pieces supported.
	MaxPieces() int

	// Available returns true if tablebases are loaded and available.
	Available() bool
}

// EngineScore converts a table score to a search score: positive wins, closer
// mates score higher. Sentinels read as draws.
func EngineScore(s table.Score) int {
	s = s.Normalize()
	switch {
	case s > 0:
		return MateScore - s.Plies()
	case s < 0:
		return -MateScore + s.Plies()
	}
	return 0
}

// WDLOf classifies a table score.
func WDLOf(s table.Score) WDL {
	s = s.Normalize()
	switch {
	case s > 0:
		return WDLWin
	case s < 0:
		return WDLLoss
	}
	return WDLDraw
}

func resultOf(s table.Score) ProbeResult {
	s = s.Normalize()
	return ProbeResult{Found: true, WDL: WDLOf(s), DTM: s.Plies(), Score: s}
}

// NoopProber is a prober that always returns "not found".
type NoopProber struct{}

func (NoopProber) Probe(pos *board.Position) ProbeResult {
	return ProbeResult{Found: false}
}

func (NoopProber) ProbeRoot(pos *board.Position) RootResult {
	return RootResult{Found: false}
}

func (NoopProber) MaxPieces() int {
	return 0
}

func (NoopProber) Available() bool {
	return false
}

// CountPieces returns the number of pieces on the board other than kings.
func CountPieces(pos *board.Position) int {
	return pos.AllOccupied.PopCount() - 2
}
