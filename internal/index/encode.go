package index

import (
	"fmt"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/material"
)

// Encode returns the index of a position in its own configuration. The
// configuration must be canonical; callers flip positions of reversed
// configurations first.
func Encode(pos *board.Position) Index {
	return LayoutFor(material.FromPosition(pos)).Encode(pos)
}

// Encode returns the index of pos. Symmetric positions share one index. It
// panics when the material of pos does not match the layout.
func (l *Layout) Encode(pos *board.Position) Index {
	if id := material.FromPosition(pos); id != l.id {
		panic(fmt.Errorf("%w: %s in %s layout", ErrMaterialMismatch, id.Name(), l.id.Name()))
	}

	ep := board.NoSquare
	if l.ep && pos.EnPassantCapturable() {
		ep = pos.EnPassantPawn()
	}

	wk := pos.KingSquare[board.White]
	var sym board.Symmetry
	if wk.File() > 3 {
		sym |= board.FlipFile
	}
	if !l.pawns {
		if wk.Rank() > 3 {
			sym |= board.FlipRank
		}
		if k := sym.Apply(wk); k.Rank() > k.File() {
			sym |= board.Transpose
		}
	}

	var buf [maxDigits]uint64
	d := buf[:len(l.radix)]
	l.digits(pos, sym, ep, d)
	t := l.compose(d)

	// With the king on the diagonal both orientations keep it in the wedge;
	// the smaller index is the one whose first off-diagonal piece lies below
	// the diagonal.
	if !l.pawns && sym.Apply(wk).OnDiagonal() {
		var alt [maxDigits]uint64
		a := alt[:len(l.radix)]
		l.digits(pos, sym|board.Transpose, ep, a)
		t = min(t, l.compose(a))
	}
	return t
}

// digits fills d with the digits of pos seen through sym. Identical pieces
// are sorted so the digits of a group ascend.
func (l *Layout) digits(pos *board.Position, sym board.Symmetry, ep board.Square, d []uint64) {
	wk := sym.Apply(pos.KingSquare[board.White])
	if l.pawns {
		d[0] = uint64(wk.Rank()*4 + wk.File())
	} else {
		w := wedgeIndex[wk]
		if w < 0 {
			panic(fmt.Sprintf("index: king on %s outside the wedge", wk))
		}
		d[0] = uint64(w)
	}
	d[1] = uint64(sym.Apply(pos.KingSquare[board.Black]))

	for _, g := range l.groups {
		bb := pos.Pieces[g.color][g.pt]
		k := g.first
		for bb != 0 {
			sq := bb.PopLSB()
			to := sym.Apply(sq)
			switch {
			case g.pt != board.Pawn:
				d[k] = uint64(to)
			case sq == ep:
				d[k] = epDigit + uint64(to.File())
			default:
				d[k] = uint64(to) - 8
			}
			k++
		}
		sortDigits(d[g.first : g.first+g.n])
	}
}

// sortDigits is an insertion sort; groups hold a handful of pieces.
func sortDigits(d []uint64) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j] < d[j-1]; j-- {
			d[j], d[j-1] = d[j-1], d[j]
		}
	}
}

// Decode returns the position of index t with the given side to move.
// Indexes that do not describe a placement (out of range, colliding pieces,
// misplaced en passant marks) return an error.
func (l *Layout) Decode(t Index, side board.Color) (*board.Position, error) {
	pos := board.NewEmptyPosition()
	if err := l.DecodeInto(pos, t, side); err != nil {
		return nil, err
	}
	return pos, nil
}

// DecodeInto is Decode writing into an existing position.
func (l *Layout) DecodeInto(pos *board.Position, t Index, side board.Color) error {
	if uint64(t) >= l.size {
		return fmt.Errorf("%w: %d >= %d", ErrOutOfRange, t, l.size)
	}
	var buf [maxDigits]uint64
	pos.Clear()
	if err := l.place(pos, l.split(t, buf[:]), side); err != nil {
		return fmt.Errorf("decode %s/%d: %w", l.id, t, err)
	}
	return nil
}

// place puts the pieces of digits d on a cleared position.
func (l *Layout) place(pos *board.Position, d []uint64, side board.Color) error {
	pos.SetPiece(board.WhiteKing, l.whiteKingSquare(d[0]))
	bk := board.Square(d[1])
	if !pos.IsEmpty(bk) {
		return ErrCollision
	}
	pos.SetPiece(board.BlackKing, bk)

	epPawn := board.NoSquare
	for _, g := range l.groups {
		for k := g.first; k < g.first+g.n; k++ {
			sq, ep := l.pieceSquare(g.color, g.pt, d[k])
			if !pos.IsEmpty(sq) {
				return ErrCollision
			}
			if ep {
				if epPawn != board.NoSquare {
					return ErrEnPassantCount
				}
				if g.color == side {
					return ErrEnPassantMover
				}
				epPawn = sq
			}
			pos.SetPiece(board.NewPiece(g.pt, g.color), sq)
		}
	}

	pos.SideToMove = side
	if epPawn != board.NoSquare {
		if side == board.Black {
			pos.EnPassant = epPawn - 8
		} else {
			pos.EnPassant = epPawn + 8
		}
	}
	pos.UpdateCheckers()
	return nil
}
