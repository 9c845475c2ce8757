package index

import (
	"fmt"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/material"
)

func layoutOf(t *testing.T, name string) *Layout {
	t.Helper()
	id, err := material.ParseName(name)
	require.NoError(t, err)
	return LayoutFor(id)
}

func fen(t *testing.T, s string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(s)
	require.NoError(t, err)
	return pos
}

func TestLayoutSize(t *testing.T) {
	is := is.New(t)
	is.Equal(layoutOf(t, "KQvK").Size(), uint64(10*64*64))
	is.Equal(layoutOf(t, "KRvKB").Size(), uint64(10*64*64*64))
	is.Equal(layoutOf(t, "KPvK").Size(), uint64(32*64*48))
	is.Equal(layoutOf(t, "KPvKP").Size(), uint64(32*64*56*56))
	is.Equal(layoutOf(t, "KRPvKP").Size(), uint64(32*64*64*56*56))
	is.True(layoutOf(t, "KQvK") == layoutOf(t, "KQvK")) // layouts are shared
}

func TestEnumerationRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		// long tables only run without -short.
		long bool
	}{
		{"KQvK", false},
		{"KPvK", false},
		{"KBvKN", false},
		{"KRRvK", true}, // identical pieces and the diagonal tie-break
		{"KPvKP", true}, // en passant digits
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.long && testing.Short() {
				t.Skip("large table")
			}
			l := layoutOf(t, tc.name)
			last := Index(0)
			count, enPassant := 0, 0
			err := ForEachPosition(l, func(ti Index, pos *board.Position) error {
				if count > 0 && ti < last {
					return fmt.Errorf("index %d after %d", ti, last)
				}
				last = ti
				count++
				if pos.EnPassant != board.NoSquare {
					enPassant++
				}

				if err := pos.Validate(); err != nil {
					return fmt.Errorf("%s: %w", pos.ToFEN(), err)
				}
				if got := l.Encode(pos); got != ti {
					return fmt.Errorf("%s: encodes to %d, want %d", pos.ToFEN(), got, ti)
				}
				back, err := l.Decode(ti, pos.SideToMove)
				if err != nil {
					return fmt.Errorf("decode %d: %w", ti, err)
				}
				if !back.Equal(pos) {
					return fmt.Errorf("decode(%d) = %s, want %s", ti, back.ToFEN(), pos.ToFEN())
				}
				if !l.HasPawns() && count%31 == 0 {
					for sym := board.Identity; sym < 8; sym++ {
						if got := l.Encode(pos.Transform(sym)); got != ti {
							return fmt.Errorf("%s under symmetry %d: %d, want %d", pos.ToFEN(), sym, got, ti)
						}
					}
				}
				return nil
			})
			require.NoError(t, err)
			require.Greater(t, count, 0)
			if l.ID().BothHavePawns() {
				require.Greater(t, enPassant, 0)
			}
		})
	}
}

func TestEnumerationVisitsEachIndexOncePerSide(t *testing.T) {
	l := layoutOf(t, "KRvK")
	seen := make(map[[2]uint64]bool)
	err := ForEachPosition(l, func(ti Index, pos *board.Position) error {
		key := [2]uint64{uint64(ti), uint64(pos.SideToMove)}
		require.False(t, seen[key], "index %d side %s visited twice", ti, pos.SideToMove)
		seen[key] = true
		return nil
	})
	require.NoError(t, err)
}

func TestEncodeSymmetryInvariant(t *testing.T) {
	pawnless := []string{
		"8/8/3k4/8/8/2RK4/8/8 b - - 0 1",
		"7k/8/8/8/8/2K5/8/R7 w - - 0 1",
		"6k1/8/8/8/3b4/8/1K6/7R w - - 0 1",
		// King on the diagonal with a pair of rooks on opposite sides of it.
		"7k/8/8/8/R7/2K5/8/2R5 w - - 0 1",
	}
	for _, s := range pawnless {
		pos := fen(t, s)
		want := Encode(pos)
		for sym := board.Identity; sym < 8; sym++ {
			require.Equal(t, want, Encode(pos.Transform(sym)), "%s under symmetry %d", s, sym)
		}
	}

	pos := fen(t, "8/8/8/4k3/8/8/5PK1/8 w - - 0 1")
	require.Equal(t, Encode(pos), Encode(pos.Transform(board.FlipFile)))
}

func TestEnPassantEncoding(t *testing.T) {
	is := is.New(t)
	l := layoutOf(t, "KPvKP")

	pos := fen(t, "8/8/8/8/3pP3/8/8/K6k b - e3 0 1")
	ti := l.Encode(pos)
	back, err := l.Decode(ti, board.Black)
	is.NoErr(err)
	is.Equal(back.EnPassant, board.E3)
	is.True(back.Equal(pos))

	// The same placement with White to move cannot carry the mark.
	_, err = l.Decode(ti, board.White)
	is.True(err != nil)

	// Without an enemy pawn beside it the mark is dropped.
	far := fen(t, "8/p7/8/8/4P3/8/8/K6k b - e3 0 1")
	plain := fen(t, "8/p7/8/8/4P3/8/8/K6k b - - 0 1")
	is.Equal(l.Encode(far), l.Encode(plain))
}

func TestDecodeErrors(t *testing.T) {
	l := layoutOf(t, "KQvK")
	_, err := l.Decode(Index(l.Size()), board.White)
	require.ErrorIs(t, err, ErrOutOfRange)

	// Index 0 puts both kings on a1.
	_, err = l.Decode(0, board.White)
	require.ErrorIs(t, err, ErrCollision)

	require.Panics(t, func() {
		l.Encode(fen(t, "7k/8/8/8/8/8/8/R6K w - - 0 1"))
	})
}
