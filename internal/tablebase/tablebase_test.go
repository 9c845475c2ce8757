package tablebase

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/retro"
	"github.com/hailam/tablegen/internal/table"
)

// buildTables generates and compresses the one-piece tables into a directory.
func buildTables(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	finished := table.Arena{}
	s := retro.NewScorer(retro.Config{Logger: zerolog.Nop()})
	for _, id := range material.Plan(1) {
		raw := table.NewMemory(index.LayoutFor(id).Size())
		_, err := s.Score(context.Background(), id, raw, finished)
		require.NoError(t, err)
		finished[id] = raw
		_, err = codec.CompressFile(filepath.Join(dir, id.CompressedFileName()), id, raw)
		require.NoError(t, err)
	}
	return dir
}

func fen(t *testing.T, s string) *board.Position {
	t.Helper()
	pos, err := board.ParseFEN(s)
	require.NoError(t, err)
	return pos
}

func TestNoopProber(t *testing.T) {
	is := is.New(t)
	prober := NoopProber{}
	is.True(!prober.Available())
	is.Equal(prober.MaxPieces(), 0)

	pos := fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1")
	is.True(!prober.Probe(pos).Found)
	is.True(!prober.ProbeRoot(pos).Found)
}

func TestCountPieces(t *testing.T) {
	is := is.New(t)
	is.Equal(CountPieces(fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1")), 1)
	is.Equal(CountPieces(fen(t, "k7/8/1K6/8/8/8/8/8 w - - 0 1")), 0)
}

func TestEngineScore(t *testing.T) {
	is := is.New(t)
	is.Equal(EngineScore(table.Draw), 0)
	is.Equal(EngineScore(table.Mated), -MateScore)
	is.Equal(EngineScore(table.WinIn(1)), MateScore-1)
	is.Equal(EngineScore(table.LossIn(4)), -MateScore+4)
	is.Equal(EngineScore(table.Unreachable), 0)
	is.True(EngineScore(table.WinIn(3)) > EngineScore(table.WinIn(5)))
	is.Equal(WDLOf(table.LossIn(2)), WDLLoss)
	is.Equal(WDLOf(table.WinIn(2)).String(), "win")
}

func TestLocalProber(t *testing.T) {
	is := is.New(t)
	dir := buildTables(t)
	lp, err := NewLocalProber(LocalConfig{Logger: zerolog.Nop(), Dir: dir})
	is.NoErr(err)
	defer lp.Close()
	is.True(lp.Available())
	is.Equal(lp.MaxPieces(), 1)

	r := lp.Probe(fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1"))
	is.True(r.Found)
	is.Equal(r.WDL, WDLWin)
	is.Equal(r.DTM, 1)

	// Colours reversed: the KQvK table answers for KvKQ.
	r = lp.Probe(fen(t, "K7/8/1k6/8/8/8/7q/8 b - - 0 1"))
	is.True(r.Found)
	is.Equal(r.DTM, 1)
	is.Equal(r.WDL, WDLWin)

	r = lp.Probe(fen(t, "8/8/8/8/8/8/1Q6/k1K5 b - - 0 1"))
	is.Equal(r.WDL, WDLLoss)
	is.Equal(r.DTM, 0)

	// No forced mate possible: a draw without a table.
	r = lp.Probe(fen(t, "k7/8/1K6/8/8/8/7B/8 w - - 0 1"))
	is.True(r.Found)
	is.Equal(r.WDL, WDLDraw)

	// Two pieces: no table.
	is.True(!lp.Probe(fen(t, "k7/8/1K6/8/8/8/6RQ/8 w - - 0 1")).Found)
}

func TestProbeRootFindsMate(t *testing.T) {
	is := is.New(t)
	lp, err := NewLocalProber(LocalConfig{Logger: zerolog.Nop(), Dir: buildTables(t)})
	is.NoErr(err)
	defer lp.Close()

	root := lp.ProbeRoot(fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1"))
	is.True(root.Found)
	is.Equal(root.Move.String(), "h2h8")
	is.Equal(root.DTM, 1)

	// Promoting to a queen wins; the root search sees through the capture
	// into the smaller table.
	root = lp.ProbeRoot(fen(t, "8/6P1/8/8/8/k7/8/K7 w - - 0 1"))
	is.True(root.Found)
	is.Equal(root.WDL, WDLWin)
}

func TestTableGetScore(t *testing.T) {
	is := is.New(t)
	dir := buildTables(t)
	id, _ := material.Parse("KQvK")
	tb, err := OpenTable(filepath.Join(dir, id.CompressedFileName()))
	is.NoErr(err)
	defer tb.Close()
	is.Equal(tb.ID(), id)

	pos := fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1")
	is.Equal(tb.GetScore(index.Encode(pos), true), MateScore-1)
}

func TestCachedProber(t *testing.T) {
	is := is.New(t)
	lp, err := NewLocalProber(LocalConfig{Logger: zerolog.Nop(), Dir: buildTables(t)})
	is.NoErr(err)
	defer lp.Close()

	cp := NewCachedProber(lp, 2)
	a := fen(t, "k7/8/1K6/8/8/8/7Q/8 w - - 0 1")
	b := fen(t, "k7/8/1K6/8/8/8/7R/8 w - - 0 1")
	c := fen(t, "k7/8/1K6/8/8/8/6R1/8 w - - 0 1")
	is.Equal(cp.Probe(a), lp.Probe(a))
	is.Equal(cp.Probe(a), lp.Probe(a))
	is.Equal(cp.HitRate(), 50.0)
	cp.Probe(b)
	cp.Probe(c)
	is.True(cp.CacheSize() <= 2)
	cp.Clear()
	is.Equal(cp.CacheSize(), 0)
	is.Equal(cp.HitRate(), 0.0)
}
