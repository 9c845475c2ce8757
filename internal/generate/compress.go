package generate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/storage"
	"github.com/hailam/tablegen/internal/table"
)

// RawTables lists the configurations with a raw table in the tables
// directory, in work order.
func (g *Generator) RawTables() ([]material.ID, error) {
	entries, err := os.ReadDir(g.cfg.Layout.Tables())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []material.ID
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".endgame")
		if !ok || e.IsDir() {
			continue
		}
		id, err := material.Parse(name)
		if err != nil || !id.IsCanonical() {
			g.log.Warn().Str("file", e.Name()).Msg("not a table file")
			continue
		}
		ids = append(ids, id)
	}
	material.SortWork(ids)
	return ids, nil
}

// CompressAll compresses every raw table that has no compressed file yet.
// Tables are compressed concurrently, one per worker. It returns the number
// of tables compressed.
func (g *Generator) CompressAll(ctx context.Context) (int, error) {
	ids, err := g.RawTables()
	if err != nil {
		return 0, err
	}
	var todo []material.ID
	for _, id := range ids {
		if _, err := os.Stat(g.CompressedPath(id)); err == nil {
			continue
		}
		todo = append(todo, id)
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Workers)
	for _, id := range todo {
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return g.Compress(id)
		})
	}
	if err := grp.Wait(); err != nil {
		return 0, err
	}
	g.log.Info().Int("compressed", len(todo)).Int("tables", len(ids)).Msg("compression finished")
	return len(todo), nil
}

// Compress compresses the raw table of id and records the result.
func (g *Generator) Compress(id material.ID) error {
	size := index.LayoutFor(id).Size()
	rawPath, dst := g.RawPath(id), g.CompressedPath(id)
	raw, err := table.OpenDisk(rawPath, size)
	if err != nil {
		return fmt.Errorf("compress %s: %w", id.Name(), err)
	}
	info, err := codec.CompressFile(dst, id, raw)
	raw.Close()
	if err != nil {
		return err
	}

	err = g.cfg.Catalog.UpdateTable(id, func(rec *storage.TableRecord) {
		rec.Size = size
		rec.CompressedPath = dst
		rec.CompressedBytes = info.Bytes
		if !g.cfg.KeepRaw {
			rec.RawPath = ""
		}
	})
	if err != nil {
		return err
	}
	if !g.cfg.KeepRaw {
		if err := os.Remove(rawPath); err != nil {
			return err
		}
	}
	g.log.Info().
		Str("config", id.Name()).
		Str("raw", humanize.Bytes(uint64(info.RawBytes))).
		Str("compressed", humanize.Bytes(uint64(info.Bytes))).
		Float64("ratio", float64(info.RawBytes)/float64(max(info.Bytes, 1))).
		Int("blocks", info.Blocks).
		Msg("table compressed")
	return nil
}
