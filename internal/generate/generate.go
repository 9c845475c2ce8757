// Package generate drives table generation end to end: planning, scheduling
// scorers, saving raw tables, compressing and verifying them, and keeping
// the catalog up to date.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/retro"
	"github.com/hailam/tablegen/internal/scheduler"
	"github.com/hailam/tablegen/internal/storage"
	"github.com/hailam/tablegen/internal/table"
)

// Store placement for tables under construction.
type Placement int

const (
	Auto Placement = iota
	Memory
	Disk
)

// ParsePlacement parses "auto", "memory" or "disk".
func ParsePlacement(s string) (Placement, error) {
	switch s {
	case "", "auto":
		return Auto, nil
	case "memory":
		return Memory, nil
	case "disk":
		return Disk, nil
	}
	return Auto, fmt.Errorf("unknown store placement %q", s)
}

type Config struct {
	Logger  zerolog.Logger
	Layout  storage.Layout
	Catalog *storage.Storage
	Workers int
	Mode    retro.Mode
	Store   Placement
	// KeepRaw keeps raw tables once they are compressed.
	KeepRaw bool
}

// Generator builds tables under a data directory.
type Generator struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) *Generator {
	cfg.Workers = max(cfg.Workers, 1)
	return &Generator{cfg: cfg, log: cfg.Logger}
}

// Summary describes a generation run.
type Summary struct {
	Tables   int
	Computed int
	Resumed  int
	Elapsed  time.Duration
}

// RawPath returns the raw table file of a configuration.
func (g *Generator) RawPath(id material.ID) string {
	return filepath.Join(g.cfg.Layout.Tables(), id.FileName())
}

// CompressedPath returns the compressed table file of a configuration.
func (g *Generator) CompressedPath(id material.ID) string {
	return filepath.Join(g.cfg.Layout.Tables(), id.CompressedFileName())
}

func (g *Generator) kind(size uint64) table.Kind {
	switch g.cfg.Store {
	case Memory:
		return table.InMemory
	case Disk:
		return table.OnDisk
	}
	return table.Choose(size, g.cfg.Workers)
}

// Run generates every table with up to maxPieces non-king pieces. Tables
// already on disk are reused, so an interrupted run picks up where it
// stopped.
func (g *Generator) Run(ctx context.Context, maxPieces int) (Summary, error) {
	if err := g.cfg.Layout.Ensure(); err != nil {
		return Summary{}, err
	}
	work := material.Plan(maxPieces)
	inWork := make(map[material.ID]bool, len(work))
	for _, id := range work {
		inWork[id] = true
	}

	run := storage.RunRecord{
		MaxPieces: maxPieces,
		Workers:   g.cfg.Workers,
		Mode:      g.cfg.Mode.String(),
		Tables:    len(work),
		Started:   time.Now().UTC(),
	}
	if err := g.cfg.Catalog.SaveRun(run); err != nil {
		return Summary{}, err
	}

	scorers := make([]*retro.Scorer, g.cfg.Workers)
	for w := range scorers {
		scorers[w] = retro.NewScorer(retro.Config{
			Logger:  g.log.With().Int("worker", w).Logger(),
			Mode:    g.cfg.Mode,
			TempDir: g.cfg.Layout.Work(),
			Work:    inWork,
		})
	}

	var computed, resumed atomic.Int64
	job := func(ctx context.Context, w int, id material.ID, finished table.Arena) (table.Reader, error) {
		r, fresh, err := g.table(ctx, scorers[w], id, finished)
		if err == nil {
			if fresh {
				computed.Add(1)
			} else {
				resumed.Add(1)
			}
		}
		return r, err
	}

	g.log.Info().Int("tables", len(work)).Int("max_pieces", maxPieces).Int("workers", g.cfg.Workers).Str("mode", g.cfg.Mode.String()).Msg("generation started")
	arena, err := scheduler.Run(ctx, scheduler.Config{Logger: g.log, Workers: g.cfg.Workers}, work, job)
	if cerr := arena.Close(); err == nil {
		err = cerr
	}

	sum := Summary{Tables: len(work), Computed: int(computed.Load()), Resumed: int(resumed.Load()), Elapsed: time.Since(run.Started)}
	run.Computed = sum.Computed
	run.Finished = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	if serr := g.cfg.Catalog.SaveRun(run); err == nil {
		err = serr
	}
	if err != nil {
		return sum, fmt.Errorf("generate: %w", err)
	}
	g.log.Info().Int("computed", sum.Computed).Int("resumed", sum.Resumed).Dur("elapsed", sum.Elapsed).Msg("generation finished")
	return sum, nil
}

// table returns a finished table for id, reusing a raw or compressed file
// when one exists and computing it otherwise. fresh reports a computation.
func (g *Generator) table(ctx context.Context, s *retro.Scorer, id material.ID, finished table.Arena) (table.Reader, bool, error) {
	size := index.LayoutFor(id).Size()
	raw := g.RawPath(id)
	log := g.log.With().Str("config", id.Name()).Logger()

	if _, err := os.Stat(raw); err == nil {
		r, err := g.open(raw, size)
		if err == nil {
			log.Info().Str("file", raw).Msg("raw table reused")
			return r, false, nil
		}
		// A wrong-sized file is a leftover of an interrupted save.
		if !errors.Is(err, table.ErrWrongSize) {
			return nil, false, err
		}
		log.Warn().Err(err).Msg("raw table discarded")
	} else if r, err := codec.Open(g.CompressedPath(id)); err == nil {
		if r.Size() == size {
			log.Info().Msg("compressed table reused")
			return r, false, nil
		}
		r.Close()
	}

	kind := g.kind(size)
	store, err := table.Create(kind, g.cfg.Layout.Work(), id, size)
	if err != nil {
		return nil, false, err
	}
	log.Debug().Str("store", kind.String()).Str("size", humanize.Bytes(uint64(table.FileSize(size)))).Msg("table store created")

	stats, err := s.Score(ctx, id, store, finished)
	if err == nil {
		err = store.Save(raw)
	}
	var ro table.Reader
	if err == nil && kind == table.InMemory {
		ro, err = store.ReadOnly()
	}
	cerr := store.Close()
	if d, ok := store.(*table.Disk); ok {
		os.Remove(d.Path())
	}
	if err == nil {
		err = cerr
	}
	if err == nil && ro == nil {
		ro, err = table.OpenDisk(raw, size)
	}
	if err != nil {
		return nil, false, err
	}

	sum, err := Checksum(raw)
	if err != nil {
		ro.Close()
		return nil, false, err
	}
	rec := storage.TableRecord{
		ID:          id,
		Name:        id.Name(),
		Size:        size,
		RawPath:     raw,
		RawChecksum: sum,
		Wins:        stats.Table.Wins,
		Losses:      stats.Table.Losses,
		Draws:       stats.Table.Draws,
		MaxPly:      stats.Table.MaxPlies,
		Passes:      stats.Passes(),
		Mode:        g.cfg.Mode.String(),
		Elapsed:     stats.Elapsed,
		GeneratedAt: time.Now().UTC(),
	}
	if err := g.cfg.Catalog.PutTable(rec); err != nil {
		ro.Close()
		return nil, false, err
	}
	log.Info().
		Str("positions", humanize.Comma(int64(stats.Table.Legal()))).
		Str("raw", humanize.Bytes(uint64(table.FileSize(size)))).
		Int("max_ply", rec.MaxPly).
		Msg("raw table saved")
	return ro, true, nil
}

// open opens a finished raw table, in memory when it fits.
func (g *Generator) open(path string, size uint64) (table.Reader, error) {
	if g.kind(size) == table.InMemory {
		return table.Load(path, size)
	}
	return table.OpenDisk(path, size)
}

// Checksum returns the xxhash of a file.
func Checksum(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("checksum %s: %w", path, err)
	}
	return h.Sum64(), nil
}
