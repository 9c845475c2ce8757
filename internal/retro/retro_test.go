package retro

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/table"
)

func scoreTable(t *testing.T, mode Mode, name string, finished table.Arena) (*table.Memory, Stats) {
	t.Helper()
	id, err := material.Parse(name)
	require.NoError(t, err)
	store := table.NewMemory(index.LayoutFor(id).Size())
	s := NewScorer(Config{Logger: zerolog.Nop(), Mode: mode, TempDir: t.TempDir()})
	stats, err := s.Score(context.Background(), id, store, finished)
	require.NoError(t, err)
	return store, stats
}

func scoreAt(t *testing.T, r table.Reader, fen string) table.Score {
	t.Helper()
	pos, err := board.ParseFEN(fen)
	require.NoError(t, err)
	return r.Get(index.Encode(pos), pos.SideToMove)
}

func TestKQvK(t *testing.T) {
	is := is.New(t)
	kqk, stats := scoreTable(t, Forward, "KQvK", table.Arena{})

	is.Equal(stats.Table.Undefined, uint64(0))
	is.True(stats.Table.Wins > 0)
	is.True(stats.Table.Losses > 0)

	var whiteMax int
	for i := uint64(0); i < kqk.Size(); i++ {
		w := kqk.Get(index.Index(i), board.White)
		if w == table.Unreachable {
			continue
		}
		is.True(w.IsWin()) // white to move always mates
		whiteMax = max(whiteMax, w.Plies())
	}
	is.Equal(whiteMax, 19) // mate in ten

	is.Equal(scoreAt(t, kqk, "8/8/8/8/8/8/1Q6/k1K5 b - - 0 1"), table.Mated)
	is.Equal(scoreAt(t, kqk, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1"), table.WinIn(1))
	// Black to move captures the hanging queen.
	is.Equal(scoreAt(t, kqk, "8/8/8/8/8/8/1Q6/k6K b - - 0 1"), table.Draw)
	// Stalemate.
	is.Equal(scoreAt(t, kqk, "k7/8/1QK5/8/8/8/8/8 b - - 0 1"), table.Draw)
}

func TestKRvKDecidesEverything(t *testing.T) {
	is := is.New(t)
	krk, stats := scoreTable(t, Forward, "KRvK", table.Arena{})
	is.Equal(stats.Table.Undefined, uint64(0))
	var whiteMax int
	for i := uint64(0); i < krk.Size(); i++ {
		w := krk.Get(index.Index(i), board.White)
		is.True(w == table.Unreachable || w.IsWin())
		if w.IsWin() {
			whiteMax = max(whiteMax, w.Plies())
		}
	}
	is.Equal(whiteMax, 31) // mate in sixteen
}

func TestBackwardMatchesForward(t *testing.T) {
	for _, name := range []string{"KQvK", "KRvK"} {
		t.Run(name, func(t *testing.T) {
			fwd, fs := scoreTable(t, Forward, name, table.Arena{})
			bwd, bs := scoreTable(t, Backward, name, table.Arena{})
			require.Equal(t, fwd.Bytes(), bwd.Bytes())
			require.Equal(t, fs.Table, bs.Table)
			require.Equal(t, fs.Decided, bs.Decided)
		})
	}
}

func TestPawnTableUsesFinishedTables(t *testing.T) {
	is := is.New(t)
	finished := table.Arena{}
	for _, name := range []string{"KQvK", "KRvK"} {
		store, _ := scoreTable(t, Forward, name, finished)
		id, _ := material.Parse(name)
		finished[id] = store
	}

	kpk, stats := scoreTable(t, Forward, "KPvK", finished)
	is.Equal(stats.Table.Undefined, uint64(0))
	is.True(stats.MaxSearchPly > 0)

	// The pawn promotes unopposed.
	is.True(scoreAt(t, kpk, "8/6P1/8/8/8/k7/8/K7 w - - 0 1").IsWin())
	// The defending king reaches the corner of the rook pawn.
	is.Equal(scoreAt(t, kpk, "k7/8/P7/8/8/8/8/6K1 w - - 0 1"), table.Draw)
	// The pawn hangs.
	is.Equal(scoreAt(t, kpk, "8/8/8/8/8/8/kP6/7K b - - 0 1"), table.Draw)

	bwd, _ := scoreTable(t, Backward, "KPvK", finished)
	require.Equal(t, kpk.Bytes(), bwd.Bytes())
}

// childScore reads the score of a position reached by one move from a table
// of id: from r when the material is unchanged, otherwise from finished.
// Configurations missing from finished are draws.
func childScore(id material.ID, r table.Reader, finished table.Arena, pos *board.Position) table.Score {
	cid := material.FromPosition(pos)
	if cid == id {
		return r.Get(index.LayoutFor(id).Encode(pos), pos.SideToMove)
	}
	cid, reversed := cid.Canonical()
	fr, ok := finished.Lookup(cid)
	if !ok {
		return table.Draw
	}
	if reversed {
		pos = pos.Flip()
	}
	return fr.Get(index.LayoutFor(cid).Encode(pos), pos.SideToMove)
}

// checkConsistent walks every position of a scored table. A position
// without legal moves must be mated when in check and drawn otherwise; any
// other position must score the best negated score of its children.
func checkConsistent(t *testing.T, name string, r table.Reader, finished table.Arena) (positions, enPassant int) {
	t.Helper()
	id, err := material.Parse(name)
	require.NoError(t, err)
	var ml board.MoveList
	err = index.ForEachPosition(index.LayoutFor(id), func(ti index.Index, pos *board.Position) error {
		positions++
		if pos.EnPassant != board.NoSquare {
			enPassant++
		}
		got := r.Get(ti, pos.SideToMove)
		pos.LegalMoves(&ml)
		if ml.Len() == 0 {
			want := table.Draw
			if pos.InCheck() {
				want = table.Mated
			}
			if got != want {
				return fmt.Errorf("%s: terminal position scored %s, want %s", pos.ToFEN(), got, want)
			}
			return nil
		}
		work := pos.Copy()
		best := table.MinScore
		for _, m := range ml.Slice() {
			undo := work.MakeMove(m)
			best = max(best, childScore(id, r, finished, work).Negate())
			work.UnmakeMove(m, undo)
		}
		if got != best {
			return fmt.Errorf("%s: scored %s, children give %s", pos.ToFEN(), got, best)
		}
		return nil
	})
	require.NoError(t, err)
	return positions, enPassant
}

func TestTablesAreConsistent(t *testing.T) {
	finished := table.Arena{}
	for _, name := range []string{"KQvK", "KRvK", "KPvK"} {
		t.Run(name, func(t *testing.T) {
			store, _ := scoreTable(t, Forward, name, finished)
			n, _ := checkConsistent(t, name, store, finished)
			require.Greater(t, n, 0)
			id, _ := material.Parse(name)
			finished[id] = store
		})
	}
}

func TestBothSidesWithPawns(t *testing.T) {
	if testing.Short() {
		t.Skip("scores a 6.4M-entry table")
	}
	is := is.New(t)
	// Captures and promotions leave the table; with no finished tables they
	// all score as draws.
	kpkp, stats := scoreTable(t, Forward, "KPvKP", table.Arena{})
	is.Equal(stats.Table.Undefined, uint64(0))
	is.True(stats.Table.Wins > 0) // mates with the pawns still on the board

	positions, enPassant := checkConsistent(t, "KPvKP", kpkp, table.Arena{})
	is.True(positions > 0)
	is.True(enPassant > 0)

	// The en passant right gets an entry of its own, scored like any other.
	withEP, err := board.ParseFEN("8/8/8/8/Pp6/8/8/K1k5 b - a3 0 1")
	is.NoErr(err)
	plain, err := board.ParseFEN("8/8/8/8/Pp6/8/8/K1k5 b - - 0 1")
	is.NoErr(err)
	is.True(index.Encode(withEP) != index.Encode(plain))
	for _, pos := range []*board.Position{withEP, plain} {
		s := kpkp.Get(index.Encode(pos), board.Black)
		is.True(s != table.Undefined && s != table.Unreachable)
	}
}

func TestUnfinishedWorkPanics(t *testing.T) {
	id, _ := material.Parse("KQvK")
	store := table.NewMemory(index.LayoutFor(id).Size())
	s := NewScorer(Config{Logger: zerolog.Nop(), Work: map[material.ID]bool{0: true}})
	require.Panics(t, func() {
		s.Score(context.Background(), id, store, table.Arena{})
	})
}

func TestScoreRejects(t *testing.T) {
	s := NewScorer(Config{Logger: zerolog.Nop()})
	reversed, _ := material.Parse("KvKQ")
	_, err := s.Score(context.Background(), reversed, table.NewMemory(1), table.Arena{})
	require.Error(t, err)

	id, _ := material.Parse("KQvK")
	_, err = s.Score(context.Background(), id, table.NewMemory(7), table.Arena{})
	require.Error(t, err)
}

func TestScoreCancelled(t *testing.T) {
	id, _ := material.Parse("KQvK")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScorer(Config{Logger: zerolog.Nop()})
	_, err := s.Score(ctx, id, table.NewMemory(index.LayoutFor(id).Size()), table.Arena{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestEdgeFile(t *testing.T) {
	is := is.New(t)
	const nodes = 5000
	s, err := newEdgeSorter(t.TempDir(), nodes)
	require.NoError(t, err)

	want := map[uint64][]uint64{}
	rng := rand.New(rand.NewPCG(1, 2))
	for range 20000 {
		c, p := rng.Uint64N(nodes), rng.Uint64N(nodes)
		want[c] = append(want[c], p)
		require.NoError(t, s.add(c, p))
	}
	f, err := s.finish(t.TempDir() + "/edges.bin")
	require.NoError(t, err)
	defer f.close()
	is.Equal(f.n, uint64(20000))

	var prev edge
	for i := uint64(0); i < f.n; i++ {
		e, err := f.read(i)
		require.NoError(t, err)
		is.True(e.child > prev.child || (e.child == prev.child && e.parent >= prev.parent))
		prev = e
	}
	for c := uint64(0); c < nodes; c += 37 {
		got, err := f.parents(c, nil)
		require.NoError(t, err)
		require.ElementsMatch(t, want[c], got)
	}
}

func TestParseMode(t *testing.T) {
	is := is.New(t)
	m, err := ParseMode("backward")
	is.NoErr(err)
	is.Equal(m, Backward)
	m, err = ParseMode("")
	is.NoErr(err)
	is.Equal(m, Forward)
	_, err = ParseMode("sideways")
	is.True(err != nil)
}
