package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

func TestScoreArithmetic(t *testing.T) {
	is := is.New(t)
	is.Equal(Mated.Negate(), WinIn(1))
	is.Equal(WinIn(1).Negate(), LossIn(2))
	is.Equal(LossIn(2).Negate(), WinIn(3))
	is.Equal(Draw.Negate(), Draw)
	is.Equal(WinIn(7).Plies(), 7)
	is.Equal(LossIn(8).Plies(), 8)
	is.Equal(Unreachable.Normalize(), Draw)
	is.Equal(Undefined.Normalize(), Draw)
	is.Equal(WinIn(3).Normalize(), WinIn(3))
	is.True(!Undefined.IsDecided())
	is.Equal(WinIn(5).String(), "win in 5")
}

func TestPacking(t *testing.T) {
	is := is.New(t)
	b := make([]byte, EntrySize)
	for w := MinScore; w <= MaxScore; w += 7 {
		for _, k := range []Score{MinScore, -1, 0, 1, 1999, MaxScore, -w} {
			if k < MinScore || k > MaxScore {
				continue
			}
			pack(b, Pair{w, k})
			is.Equal(unpack(b), Pair{w, k})
		}
	}
}

func stores(t *testing.T, size uint64) map[string]Store {
	t.Helper()
	disk, err := NewDisk(filepath.Join(t.TempDir(), "disk.endgame"), size)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return map[string]Store{
		"memory": NewMemory(size),
		"disk":   disk,
	}
}

func TestStoreContract(t *testing.T) {
	const size = 1000
	for name, s := range stores(t, size) {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(s.Size(), uint64(size))

			s.Fill(Unreachable)
			is.Equal(s.Get(0, board.White), Unreachable)
			is.Equal(s.Pair(size-1), Pair{Unreachable, Unreachable})

			s.Set(5, board.White, WinIn(3))
			s.Set(5, board.Black, LossIn(4))
			s.Set(6, board.Black, Mated)
			is.Equal(s.Pair(5), Pair{WinIn(3), LossIn(4)})
			is.Equal(s.Get(6, board.Black), Mated)
			is.Equal(s.Get(6, board.White), Unreachable)

			require.Panics(t, func() { s.Get(size, board.White) })
			require.Panics(t, func() { s.Set(0, board.White, MaxScore+1) })
			require.Panics(t, func() { s.Set(0, board.White, MinScore-1) })

			path := filepath.Join(t.TempDir(), "saved.endgame")
			require.NoError(t, s.Save(path))

			loaded, err := Load(path, size)
			require.NoError(t, err)
			is.Equal(loaded.Pair(5), Pair{WinIn(3), LossIn(4)})
			require.Panics(t, func() { loaded.Set(0, board.White, Draw) })

			ro, err := s.ReadOnly()
			require.NoError(t, err)
			defer ro.Close()
			is.Equal(ro.Get(6, board.Black), Mated)

			st := Count(ro)
			is.Equal(st.Wins, uint64(1))
			is.Equal(st.Losses, uint64(2))
			is.Equal(st.Unreachable, uint64(2*size-3))
			is.Equal(st.MaxPlies, 4)
		})
	}
}

func TestLoadWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.endgame")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))

	_, err := Load(path, 4)
	require.ErrorIs(t, err, ErrWrongSize)
	_, err = OpenDisk(path, 4)
	require.ErrorIs(t, err, ErrWrongSize)
}

func TestRangeError(t *testing.T) {
	m := NewMemory(3)
	defer func() {
		r := recover()
		re, ok := r.(*RangeError)
		require.True(t, ok, "panic value %v", r)
		require.Equal(t, index.Index(3), re.Index)
	}()
	m.Get(3, board.Black)
}

func TestArenaClone(t *testing.T) {
	is := is.New(t)
	a := Arena{1000000000: NewMemory(1)}
	c := a.Clone()
	c[100000000] = NewMemory(1)
	is.Equal(len(a), 1)
	_, ok := c.Lookup(100000000)
	is.True(ok)
}
