package index

import (
	"errors"
	"fmt"

	"github.com/hailam/tablegen/internal/board"
)

// ErrStop can be returned by a ForEachPosition callback to end the scan
// early without an error.
var ErrStop = errors.New("stop enumeration")

// VisitFunc receives each legal position. pos is reused between calls; the
// callback may make and unmake moves on it but must leave it unchanged.
type VisitFunc func(t Index, pos *board.Position) error

// ForEachPosition visits every legal (index, side to move) pair of the
// layout exactly once, in strictly increasing index order with White to move
// before Black at the same index. A position is legal when the kings are
// apart, the side not to move is not in check, any en passant pawn belongs to
// the side not to move with the squares it passed empty and an enemy pawn
// beside it, and the placement is the canonical one of its symmetry class.
func ForEachPosition(l *Layout, fn VisitFunc) error {
	e := &enumerator{l: l, fn: fn, pos: board.NewEmptyPosition(), last: -1}
	err := e.walk(0, 0, 0, false)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

type enumerator struct {
	l    *Layout
	fn   VisitFunc
	pos  *board.Position
	d    [maxDigits]uint64
	last int64
}

func (e *enumerator) walk(k int, t uint64, occ board.Bitboard, epUsed bool) error {
	l := e.l
	if k == len(l.radix) {
		return e.leaf(Index(t))
	}

	var g group
	if k >= 2 {
		g = l.groupOf(k)
	}
	for v := uint64(0); v < l.radix[k]; v++ {
		if l.sameGroup[k] && v <= e.d[k-1] {
			continue
		}
		var sq board.Square
		ep := false
		switch k {
		case 0:
			sq = l.whiteKingSquare(v)
		case 1:
			sq = board.Square(v)
			if board.KingAttacks(l.whiteKingSquare(e.d[0])).IsSet(sq) {
				continue
			}
		default:
			sq, ep = l.pieceSquare(g.color, g.pt, v)
		}
		if occ.IsSet(sq) || (ep && epUsed) {
			continue
		}
		e.d[k] = v
		if err := e.walk(k+1, t+v*l.weight[k], occ|board.SquareBB(sq), epUsed || ep); err != nil {
			return err
		}
	}
	return nil
}

func (e *enumerator) leaf(t Index) error {
	if int64(t) <= e.last {
		panic(fmt.Sprintf("index: enumeration of %s not increasing: %d after %d", e.l.id, t, e.last))
	}
	e.last = int64(t)

	for _, side := range board.Colors {
		pos := e.pos
		pos.Clear()
		if err := e.l.place(pos, e.d[:len(e.l.radix)], side); err != nil {
			continue
		}
		if !legal(pos) {
			continue
		}
		if e.l.Encode(pos) != t {
			continue
		}
		if err := e.fn(t, pos); err != nil {
			return err
		}
	}
	return nil
}

// legal checks the parts of legality the digit walk cannot see.
func legal(pos *board.Position) bool {
	them := pos.SideToMove.Other()
	if pos.IsSquareAttacked(pos.KingSquare[them], pos.SideToMove) {
		return false
	}
	if pos.EnPassant == board.NoSquare {
		return true
	}
	if !pos.EnPassantCapturable() {
		return false
	}
	return pos.Validate() == nil
}
