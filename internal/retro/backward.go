package retro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/table"
)

// backwardVisitor records the move graph during the initial pass.
type backwardVisitor struct {
	sorter *edgeSorter
	// pending counts the in-configuration children of each node that are
	// not decided yet.
	pending []uint8
	// events lists, per ply, the nodes a foreign child may decide at that ply.
	events map[int][]uint64
}

func (v *backwardVisitor) inConfig(parent, child uint64) error {
	if v.pending[parent] == 255 {
		panic(fmt.Sprintf("retro: node %d has more than 255 moves", parent))
	}
	v.pending[parent]++
	return v.sorter.add(child, parent)
}

func (v *backwardVisitor) foreign(parent uint64, ply int) {
	v.events[ply] = append(v.events[ply], parent)
}

// backward decides positions ply by ply like forward, but only looks at the
// parents of the nodes decided on the previous ply plus the nodes a foreign
// child can decide now. On even plies a node with undecided children cannot
// lose yet and is skipped without generating its moves.
func (s *Scorer) backward(ctx context.Context, stats *Stats) error {
	dir, err := os.MkdirTemp(s.cfg.TempDir, "edges-")
	if err != nil {
		return fmt.Errorf("create edge directory: %w", err)
	}
	defer os.RemoveAll(dir)

	nodes := s.store.Size() * 2
	sorter, err := newEdgeSorter(dir, nodes)
	if err != nil {
		return err
	}
	v := &backwardVisitor{
		sorter:  sorter,
		pending: make([]uint8, nodes),
		events:  make(map[int][]uint64),
	}
	horizon, err := s.initialPass(ctx, stats, v)
	if err != nil {
		sorter.abort()
		return err
	}
	edges, err := sorter.finish(filepath.Join(dir, "edges.bin"))
	if err != nil {
		return err
	}
	defer edges.close()
	s.log.Debug().Str("config", s.id.Name()).Uint64("edges", edges.n).Msg("move graph sorted")

	// Everything decided by the initial pass, stalemates included, releases
	// its parents.
	var frontier []uint64
	for t := uint64(0); t < s.store.Size(); t++ {
		p := s.store.Pair(index.Index(t))
		for _, side := range board.Colors {
			if p[side] == table.Mated || p[side] == table.Draw {
				frontier = append(frontier, t*2+uint64(side))
			}
		}
	}

	pos := board.NewEmptyPosition()
	var candidates, next []uint64
	for ply := 1; ; ply++ {
		if ply > table.MaxPly {
			return fmt.Errorf("no convergence after %d plies", table.MaxPly)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates = candidates[:0]
		for _, n := range frontier {
			before := len(candidates)
			candidates, err = edges.parents(n, candidates)
			if err != nil {
				return err
			}
			for _, parent := range candidates[before:] {
				if v.pending[parent] == 0 {
					panic(fmt.Sprintf("retro: %s node %d released more often than it has children", s.id.Name(), parent))
				}
				v.pending[parent]--
			}
		}
		candidates = append(candidates, v.events[ply]...)
		delete(v.events, ply)
		slices.Sort(candidates)
		candidates = slices.Compact(candidates)

		next = next[:0]
		for _, n := range candidates {
			t, side := fromNode(n)
			if s.store.Get(t, side) != table.Undefined {
				continue
			}
			if ply%2 == 0 && v.pending[n] > 0 {
				continue
			}
			if err := s.layout.DecodeInto(pos, t, side); err != nil {
				panic(fmt.Sprintf("retro: %s undefined entry %d/%s does not decode: %v", s.id.Name(), t, side, err))
			}
			if sc := s.rule(pos, ply); sc != table.Undefined {
				s.store.Set(t, side, sc)
				next = append(next, n)
			}
		}

		changed := uint64(len(next))
		stats.Decided = append(stats.Decided, changed)
		s.log.Debug().Str("config", s.id.Name()).Int("ply", ply).Int("candidates", len(candidates)).Uint64("decided", changed).Msg("ply pass done")
		if changed == 0 && ply > horizon {
			return nil
		}
		frontier, next = next, frontier
	}
}
