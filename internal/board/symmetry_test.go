package board

import "testing"

func TestSymmetryApply(t *testing.T) {
	tests := []struct {
		sym  Symmetry
		in   Square
		want Square
	}{
		{Identity, C2, C2},
		{FlipFile, C2, F2},
		{FlipRank, C2, C7},
		{Transpose, C2, B3},
		{FlipFile | FlipRank, A1, H8},
		{FlipFile | Transpose, H1, A1},
		{FlipRank | Transpose, A8, A1},
		// Flips apply before the transpose.
		{FlipFile | Transpose, B1, A7},
		{FlipRank | Transpose, B1, H2},
	}
	for _, tc := range tests {
		if got := tc.sym.Apply(tc.in); got != tc.want {
			t.Errorf("Symmetry(%d).Apply(%s) = %s, want %s", tc.sym, tc.in, got, tc.want)
		}
	}
	if FlipFile.Apply(NoSquare) != NoSquare {
		t.Error("NoSquare must map to itself")
	}
}

func TestTransformPreservesMoveCount(t *testing.T) {
	pos, err := ParseFEN("8/8/3k4/8/8/2RK4/8/8 b - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	want := pos.GenerateLegalMoves().Len()
	for sym := Identity; sym < 8; sym++ {
		q := pos.Transform(sym)
		if got := q.GenerateLegalMoves().Len(); got != want {
			t.Errorf("symmetry %d: %d legal moves, want %d", sym, got, want)
		}
		if q.InCheck() != pos.InCheck() {
			t.Errorf("symmetry %d changed check status", sym)
		}
	}
}

func TestFlip(t *testing.T) {
	pos, err := ParseFEN("8/8/8/8/3Pp3/8/8/k6K b - d3 0 1")
	if err != nil {
		t.Fatal(err)
	}
	flipped := pos.Flip()
	if got, want := flipped.ToFEN(), "K6k/8/8/3pP3/8/8/8/8 w - d6 0 1"; got != want {
		t.Errorf("Flip() = %q, want %q", got, want)
	}
	if err := flipped.Validate(); err != nil {
		t.Errorf("flipped position invalid: %v", err)
	}
	if !flipped.Flip().Equal(pos) {
		t.Error("Flip is not an involution")
	}
	if flipped.GenerateLegalMoves().Len() != pos.GenerateLegalMoves().Len() {
		t.Error("Flip changed the number of legal moves")
	}
}

func TestKey(t *testing.T) {
	a, _ := ParseFEN("k7/8/1Q6/8/8/8/8/7K b - - 0 1")
	b, _ := ParseFEN("k7/8/1Q6/8/8/8/8/7K w - - 0 1")
	if a.Key() == b.Key() {
		t.Error("side to move must change the key")
	}
	if a.Key() != a.Copy().Key() {
		t.Error("copies must share a key")
	}
}
