// Package index maps positions of one material configuration to and from a
// dense table index, folding board symmetries away.
//
// An index is a mixed-radix number whose digits, most significant first, are:
// the White king (10 wedge squares without pawns, 32 squares on files a-d
// with pawns), the Black king (64), every non-pawn piece (64) in the order
// White Q,R,B,N then Black Q,R,B,N, and every pawn, White first (48, or 56
// when both sides have pawns). Pawn digits below 48 are the square minus 8;
// digits 48-55 mark a pawn that just double-stepped on file digit-48.
package index

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/material"
)

// Index is a table index within one configuration.
type Index uint64

const (
	maxDigits = 32

	pawnRadix   = 48
	pawnEPRadix = 56
	epDigit     = 48
)

var (
	ErrOutOfRange       = errors.New("table index out of range")
	ErrCollision        = errors.New("two pieces on one square")
	ErrEnPassantCount   = errors.New("more than one en passant pawn")
	ErrEnPassantMover   = errors.New("en passant pawn belongs to the side to move")
	ErrMaterialMismatch = errors.New("position material does not match layout")
)

// The ten White king squares of a pawnless position: a1-d1-d4.
var wedge = [10]board.Square{
	board.A1, board.B1, board.C1, board.D1,
	board.B2, board.C2, board.D2,
	board.C3, board.D3,
	board.D4,
}

var wedgeIndex = func() (w [64]int8) {
	for i := range w {
		w[i] = -1
	}
	for i, sq := range wedge {
		w[sq] = int8(i)
	}
	return w
}()

type group struct {
	color board.Color
	pt    board.PieceType
	first int // digit of the first member
	n     int
}

// Layout is the digit layout of one configuration.
type Layout struct {
	id     material.ID
	pawns  bool
	ep     bool
	groups []group
	radix  []uint64
	weight []uint64
	// sameGroup[k] is true when digit k continues the group of digit k-1.
	sameGroup []bool
	size      uint64
}

// NewLayout builds the layout of a configuration.
func NewLayout(id material.ID) *Layout {
	l := &Layout{
		id:    id,
		pawns: id.HasPawns(),
		ep:    id.BothHavePawns(),
	}
	if l.pawns {
		l.radix = append(l.radix, 32)
	} else {
		l.radix = append(l.radix, uint64(len(wedge)))
	}
	l.radix = append(l.radix, 64)
	l.sameGroup = append(l.sameGroup, false, false)

	addGroup := func(c board.Color, pt board.PieceType, radix uint64) {
		n := id.Count(c, pt)
		if n == 0 {
			return
		}
		l.groups = append(l.groups, group{color: c, pt: pt, first: len(l.radix), n: n})
		for i := 0; i < n; i++ {
			l.radix = append(l.radix, radix)
			l.sameGroup = append(l.sameGroup, i > 0)
		}
	}
	for _, c := range board.Colors {
		for _, pt := range material.Order[:4] {
			addGroup(c, pt, 64)
		}
	}
	pr := uint64(pawnRadix)
	if l.ep {
		pr = pawnEPRadix
	}
	for _, c := range board.Colors {
		addGroup(c, board.Pawn, pr)
	}
	if len(l.radix) > maxDigits {
		panic(fmt.Sprintf("index: %s has too many pieces", id.Name()))
	}

	l.weight = make([]uint64, len(l.radix))
	w := uint64(1)
	for k := len(l.radix) - 1; k >= 0; k-- {
		l.weight[k] = w
		hi, lo := bits.Mul64(w, l.radix[k])
		if hi != 0 {
			panic(fmt.Sprintf("index: %s does not fit in 64 bits", id.Name()))
		}
		w = lo
	}
	l.size = w
	return l
}

var (
	layoutsMu sync.Mutex
	layouts   = make(map[material.ID]*Layout)
)

// LayoutFor returns the shared layout of a configuration.
func LayoutFor(id material.ID) *Layout {
	layoutsMu.Lock()
	defer layoutsMu.Unlock()
	l, ok := layouts[id]
	if !ok {
		l = NewLayout(id)
		layouts[id] = l
	}
	return l
}

// ID returns the configuration of the layout.
func (l *Layout) ID() material.ID { return l.id }

// Size returns the number of table indexes.
func (l *Layout) Size() uint64 { return l.size }

// HasPawns reports whether the configuration has pawns, which limits the
// symmetry reduction to left-right mirroring.
func (l *Layout) HasPawns() bool { return l.pawns }

// split breaks t into its digits.
func (l *Layout) split(t Index, d []uint64) []uint64 {
	d = d[:len(l.radix)]
	v := uint64(t)
	for k := len(l.radix) - 1; k >= 0; k-- {
		d[k] = v % l.radix[k]
		v /= l.radix[k]
	}
	return d
}

// compose joins digits into an index.
func (l *Layout) compose(d []uint64) Index {
	var t uint64
	for k, v := range d {
		t += v * l.weight[k]
	}
	return Index(t)
}

// whiteKingSquare maps the first digit to a square.
func (l *Layout) whiteKingSquare(v uint64) board.Square {
	if l.pawns {
		return board.NewSquare(int(v%4), int(v/4))
	}
	return wedge[v]
}

// pieceSquare maps the digit of a piece to its square. For pawns it also
// reports whether the pawn carries the en passant mark.
func (l *Layout) pieceSquare(c board.Color, pt board.PieceType, v uint64) (board.Square, bool) {
	if pt != board.Pawn {
		return board.Square(v), false
	}
	if v < epDigit {
		return board.Square(v + 8), false
	}
	file := int(v - epDigit)
	if c == board.White {
		return board.NewSquare(file, 3), true
	}
	return board.NewSquare(file, 4), true
}

// groupOf returns the group holding digit k (k >= 2).
func (l *Layout) groupOf(k int) group {
	for _, g := range l.groups {
		if k >= g.first && k < g.first+g.n {
			return g
		}
	}
	panic(fmt.Sprintf("index: digit %d outside layout", k))
}
