package tablebase

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/table"
)

// Table is an opened compressed table.
type Table struct {
	r *codec.Reader
}

// OpenTable opens a compressed table file.
func OpenTable(path string) (*Table, error) {
	r, err := codec.Open(path)
	if err != nil {
		return nil, err
	}
	return &Table{r: r}, nil
}

// ID returns the configuration of the table.
func (t *Table) ID() material.ID { return t.r.Header().Config }

// Size returns the number of table indexes.
func (t *Table) Size() uint64 { return t.r.Size() }

// GetScore returns the engine score of index ti for the given side to move.
func (t *Table) GetScore(ti index.Index, whiteToMove bool) int {
	return EngineScore(t.r.Score(ti, whiteToMove))
}

// Raw returns the stored score of index ti.
func (t *Table) Raw(ti index.Index, side board.Color) table.Score {
	return t.r.Get(ti, side)
}

func (t *Table) Close() error { return t.r.Close() }

// LocalConfig configures a LocalProber.
type LocalConfig struct {
	Logger zerolog.Logger
	// Dir holds <id>.tbz files.
	Dir string
}

// LocalProber probes compressed tables in a directory. Tables are opened on
// first use and kept open until Close.
type LocalProber struct {
	log       zerolog.Logger
	dir       string
	maxPieces int

	mu     sync.Mutex
	tables map[material.ID]*Table
}

// NewLocalProber scans dir for compressed tables.
func NewLocalProber(cfg LocalConfig) (*LocalProber, error) {
	lp := &LocalProber{log: cfg.Logger, dir: cfg.Dir, tables: make(map[material.ID]*Table)}
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	found := 0
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".tbz")
		if !ok {
			continue
		}
		id, err := material.Parse(name)
		if err != nil {
			continue
		}
		found++
		lp.maxPieces = max(lp.maxPieces, id.Pieces())
	}
	lp.log.Info().Str("dir", cfg.Dir).Int("tables", found).Int("max_pieces", lp.maxPieces).Msg("local tables found")
	return lp, nil
}

// table returns the open table of a canonical configuration, or nil when it
// has no file.
func (lp *LocalProber) table(id material.ID) *Table {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if t, ok := lp.tables[id]; ok {
		return t
	}
	t, err := OpenTable(filepath.Join(lp.dir, id.CompressedFileName()))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			lp.log.Warn().Err(err).Str("config", id.Name()).Msg("table unreadable")
		}
		t = nil
	}
	lp.tables[id] = t
	return t
}

// Probe looks up a position. Configurations that cannot force mate are draws
// without a table; invalid positions are not found.
func (lp *LocalProber) Probe(pos *board.Position) ProbeResult {
	if pos.Validate() != nil {
		return ProbeResult{}
	}
	id, reversed := material.FromPosition(pos).Canonical()
	if !id.Valid() {
		return ProbeResult{}
	}
	if !material.ForcedMatePossible(id) {
		return resultOf(table.Draw)
	}
	t := lp.table(id)
	if t == nil {
		return ProbeResult{}
	}
	if reversed {
		pos = pos.Flip()
	}
	return resultOf(t.Raw(index.LayoutFor(id).Encode(pos), pos.SideToMove))
}

// ProbeRoot probes every child of pos and picks the move whose result is
// best for the side to move.
func (lp *LocalProber) ProbeRoot(pos *board.Position) RootResult {
	var ml board.MoveList
	pos.LegalMoves(&ml)
	if ml.Len() == 0 {
		return RootResult{}
	}
	work := pos.Copy()
	best := RootResult{}
	bestScore := table.MinScore
	for _, m := range ml.Slice() {
		undo := work.MakeMove(m)
		var s table.Score
		if work.HasLegalMoves() {
			r := lp.Probe(work)
			if !r.Found {
				work.UnmakeMove(m, undo)
				return RootResult{}
			}
			s = r.Score
		} else if work.InCheck() {
			s = table.Mated
		}
		work.UnmakeMove(m, undo)

		if v := s.Negate(); !best.Found || v > bestScore {
			bestScore = v
			best = RootResult{Found: true, Move: m, WDL: WDLOf(v), DTM: v.Plies()}
		}
	}
	return best
}

func (lp *LocalProber) MaxPieces() int { return lp.maxPieces }

func (lp *LocalProber) Available() bool { return lp.maxPieces > 0 }

// Close closes every open table.
func (lp *LocalProber) Close() error {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	var first error
	for id, t := range lp.tables {
		if t != nil {
			if err := t.Close(); err != nil && first == nil {
				first = err
			}
		}
		delete(lp.tables, id)
	}
	return first
}
