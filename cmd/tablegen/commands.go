package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/pflag"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/generate"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/scheduler"
	"github.com/hailam/tablegen/internal/storage"
	"github.com/hailam/tablegen/internal/table"
	"github.com/hailam/tablegen/internal/tablebase"
)

func generateFlags(fs *pflag.FlagSet) {
	fs.Bool("compress", false, "compress the tables once they are generated")
}

func listFlags(fs *pflag.FlagSet) {
	fs.Bool("all", false, "include unreachable indices")
	fs.Bool("fen", false, "print the white-to-move position of each index")
}

// catalog opens the badger catalog of the data directory.
func (a *app) catalog() (*storage.Storage, error) {
	layout := a.cfg.Layout()
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	return storage.NewStorage(storage.Options{Dir: layout.Catalog(), Logger: a.log})
}

// generator opens the catalog and returns a generator over it. The caller
// closes the catalog.
func (a *app) generator() (*generate.Generator, *storage.Storage, error) {
	place, err := generate.ParsePlacement(a.cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	cat, err := a.catalog()
	if err != nil {
		return nil, nil, err
	}
	g := generate.New(generate.Config{
		Logger:  a.log,
		Layout:  a.cfg.Layout(),
		Catalog: cat,
		Workers: a.cfg.Workers,
		Mode:    a.cfg.ScoringMode(),
		Store:   place,
		KeepRaw: a.cfg.KeepRaw,
	})
	return g, cat, nil
}

func parseConfig(s string) (material.ID, error) {
	id, err := material.Parse(s)
	if err != nil {
		return 0, err
	}
	if !id.IsCanonical() {
		return 0, fmt.Errorf("%s is stored as %s", id.Name(), id.Reverse().Name())
	}
	return id, nil
}

func runPlan(_ context.Context, a *app) error {
	work := material.Plan(a.cfg.MaxPieces)
	waves, err := scheduler.Plan(work)
	if err != nil {
		return err
	}
	var total uint64
	for i, wave := range waves {
		names := lo.Map(wave, func(id material.ID, _ int) string { return id.Name() })
		fmt.Fprintf(a.out, "wave %d: %s\n", i+1, strings.Join(names, " "))
		for _, id := range wave {
			total += index.LayoutFor(id).Size()
		}
	}
	fmt.Fprintf(a.out, "%d tables, %s indices, %s raw\n",
		len(work), humanize.Comma(int64(total)), humanize.Bytes(uint64(table.FileSize(total))))
	return nil
}

func runGenerate(ctx context.Context, a *app) error {
	g, cat, err := a.generator()
	if err != nil {
		return err
	}
	defer cat.Close()
	sum, err := g.Run(ctx, a.cfg.MaxPieces)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d tables: %d computed, %d resumed in %s\n", sum.Tables, sum.Computed, sum.Resumed, sum.Elapsed.Round(1e6))
	if ok, _ := a.fs.GetBool("compress"); ok {
		n, err := g.CompressAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d tables compressed\n", n)
	}
	return nil
}

func runCompress(ctx context.Context, a *app) error {
	g, cat, err := a.generator()
	if err != nil {
		return err
	}
	defer cat.Close()
	n, err := g.CompressAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d tables compressed\n", n)
	return nil
}

func runVerify(ctx context.Context, a *app) error {
	g, cat, err := a.generator()
	if err != nil {
		return err
	}
	defer cat.Close()

	var ids []material.ID
	if a.fs.NArg() > 0 {
		for _, s := range a.fs.Args() {
			id, err := parseConfig(s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	} else if ids, err = g.RawTables(); err != nil {
		return err
	}

	var errs []error
	checked := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(g.CompressedPath(id)); errors.Is(err, fs.ErrNotExist) {
			a.log.Warn().Str("config", id.Name()).Msg("no compressed table to verify")
			continue
		}
		res, err := g.Verify(id, a.cfg.Samples)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		checked++
		fmt.Fprintf(a.out, "%s ok, %s entries checked\n", id.Name(), humanize.Comma(int64(res.Checked)))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	fmt.Fprintf(a.out, "%d tables verified\n", checked)
	return nil
}

// openAny opens the raw table of id, or its compressed table when the raw
// file is gone.
func openAny(g *generate.Generator, id material.ID) (table.Reader, error) {
	size := index.LayoutFor(id).Size()
	r, err := table.OpenDisk(g.RawPath(id), size)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return codec.Open(g.CompressedPath(id))
}

func runList(_ context.Context, a *app) error {
	if a.fs.NArg() != 1 {
		return fmt.Errorf("list takes one configuration")
	}
	id, err := parseConfig(a.fs.Arg(0))
	if err != nil {
		return err
	}
	g := generate.New(generate.Config{Logger: a.log, Layout: a.cfg.Layout()})
	r, err := openAny(g, id)
	if err != nil {
		return err
	}
	defer r.Close()

	all, _ := a.fs.GetBool("all")
	withFEN, _ := a.fs.GetBool("fen")
	layout := index.LayoutFor(id)
	pos := board.NewEmptyPosition()
	w := bufio.NewWriter(a.out)
	for t := range r.Size() {
		ti := index.Index(t)
		white, black := r.Get(ti, board.White), r.Get(ti, board.Black)
		if !all && white == table.Unreachable && black == table.Unreachable {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s", t, white, black)
		if withFEN && layout.DecodeInto(pos, ti, board.White) == nil {
			fmt.Fprintf(w, "\t%s", pos.ToFEN())
		}
		w.WriteByte('\n')
	}
	return w.Flush()
}

func parseSide(s string) (board.Color, error) {
	switch strings.ToLower(s) {
	case "w", "white":
		return board.White, nil
	case "b", "black":
		return board.Black, nil
	}
	return board.White, fmt.Errorf("unknown side %q", s)
}

func runDecode(_ context.Context, a *app) error {
	args := a.fs.Args()
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("decode takes a configuration, an index and an optional side")
	}
	id, err := parseConfig(args[0])
	if err != nil {
		return err
	}
	t, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	side := board.White
	if len(args) == 3 {
		if side, err = parseSide(args[2]); err != nil {
			return err
		}
	}
	layout := index.LayoutFor(id)
	if t >= layout.Size() {
		return fmt.Errorf("index %d out of range for %s (%d entries)", t, id.Name(), layout.Size())
	}
	pos, err := layout.Decode(index.Index(t), side)
	if err != nil {
		return fmt.Errorf("%s index %d: %w", id.Name(), t, err)
	}
	fmt.Fprintln(a.out, pos.ToFEN())
	return nil
}

func runProbe(_ context.Context, a *app) error {
	lp, err := tablebase.NewLocalProber(tablebase.LocalConfig{Logger: a.log, Dir: a.cfg.Layout().Tables()})
	if err != nil {
		return err
	}
	defer lp.Close()
	prober := tablebase.NewCachedProber(lp, 1<<16)

	probe := func(fen string) {
		pos, err := board.ParseFEN(fen)
		if err != nil {
			fmt.Fprintf(a.out, "%s: %v\n", fen, err)
			return
		}
		res := prober.Probe(pos)
		if !res.Found {
			fmt.Fprintf(a.out, "%s: not found\n", fen)
			return
		}
		line := fmt.Sprintf("%s: %s", fen, res.WDL)
		if res.WDL != tablebase.WDLDraw {
			line += fmt.Sprintf(" in %d", res.DTM)
		}
		if root := prober.ProbeRoot(pos); root.Found {
			line += " best " + root.Move.String()
		}
		fmt.Fprintln(a.out, line)
	}

	if a.fs.NArg() > 0 {
		probe(strings.Join(a.fs.Args(), " "))
		return nil
	}
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" {
			break
		}
		if line != "" {
			probe(line)
		}
	}
	return scanner.Err()
}

func runStatus(_ context.Context, a *app) error {
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	run, err := cat.LastRun()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintln(a.out, "no run recorded")
	case err != nil:
		return err
	default:
		state := "finished"
		if run.Finished.IsZero() {
			state = "interrupted"
		} else if run.Error != "" {
			state = "failed: " + run.Error
		}
		fmt.Fprintf(a.out, "last run %s: up to %d pieces, %d tables, %d computed, %s mode, %s\n",
			humanize.Time(run.Started), run.MaxPieces, run.Tables, run.Computed, run.Mode, state)
	}

	recs, err := cat.ListTables()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "config\tid\tindices\twins\tlosses\tdraws\tmax ply\traw\tcompressed")
	for _, rec := range recs {
		packed := "-"
		if rec.Compressed() {
			packed = humanize.Bytes(uint64(rec.CompressedBytes))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			rec.Name, rec.ID, humanize.Comma(int64(rec.Size)), rec.Wins, rec.Losses, rec.Draws, rec.MaxPly,
			humanize.Bytes(uint64(table.FileSize(rec.Size))), packed)
	}
	return tw.Flush()
}
