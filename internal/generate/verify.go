package generate

import (
	"errors"
	"fmt"

	"lukechampine.com/frand"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/codec"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/storage"
	"github.com/hailam/tablegen/internal/table"
)

// ErrMismatch is returned when a compressed table disagrees with its raw
// table or a raw table with its catalog checksum.
var ErrMismatch = errors.New("table mismatch")

// VerifyResult reports a verification.
type VerifyResult struct {
	ID         material.ID
	Checked    uint64
	Mismatches uint64
	// First is the first mismatching index, valid when Mismatches > 0.
	First index.Index
	// Checksum is false when the raw file no longer matches the catalog.
	Checksum bool
}

// Verify compares the compressed table of id against its raw table at
// samples random (index, side) pairs, or at every pair when samples is zero
// or covers the table. It also checks the raw file against the checksum
// recorded in the catalog.
func (g *Generator) Verify(id material.ID, samples int) (VerifyResult, error) {
	res := VerifyResult{ID: id, Checksum: true}
	size := index.LayoutFor(id).Size()
	rawPath := g.RawPath(id)

	if rec, err := g.cfg.Catalog.GetTable(id); err == nil && rec.RawChecksum != 0 {
		sum, err := Checksum(rawPath)
		if err != nil {
			return res, err
		}
		res.Checksum = sum == rec.RawChecksum
	} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return res, err
	}

	raw, err := table.OpenDisk(rawPath, size)
	if err != nil {
		return res, err
	}
	defer raw.Close()
	packed, err := codec.Open(g.CompressedPath(id))
	if err != nil {
		return res, err
	}
	defer packed.Close()
	if packed.Size() != size || packed.Header().Config != id {
		return res, fmt.Errorf("%w: %s header describes %s with %d entries", ErrMismatch, id.Name(), packed.Header().Config.Name(), packed.Size())
	}

	check := func(t index.Index, side board.Color) {
		res.Checked++
		if raw.Get(t, side).Normalize() != packed.Get(t, side) {
			if res.Mismatches == 0 {
				res.First = t
			}
			res.Mismatches++
		}
	}
	if samples <= 0 || uint64(samples) >= 2*size {
		for t := uint64(0); t < size; t++ {
			for _, side := range board.Colors {
				check(index.Index(t), side)
			}
		}
	} else {
		for range samples {
			check(index.Index(frand.Uint64n(size)), board.Colors[frand.Intn(2)])
		}
	}

	log := g.log.Info()
	if res.Mismatches > 0 || !res.Checksum {
		log = g.log.Error()
	}
	log.Str("config", id.Name()).Uint64("checked", res.Checked).Uint64("mismatches", res.Mismatches).Bool("checksum", res.Checksum).Msg("table verified")
	if res.Mismatches > 0 {
		return res, fmt.Errorf("%w: %s differs at %d of %d samples, first at index %d", ErrMismatch, id.Name(), res.Mismatches, res.Checked, res.First)
	}
	if !res.Checksum {
		return res, fmt.Errorf("%w: %s raw file checksum changed", ErrMismatch, id.Name())
	}
	return res, nil
}
