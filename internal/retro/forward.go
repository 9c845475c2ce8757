package retro

import (
	"context"
	"fmt"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/table"
)

// forward decides positions ply by ply, sweeping the whole table each pass.
// Scores written during a pass are never the ones the same pass looks for, so
// updating in place gives the same result as a two-buffer sweep.
func (s *Scorer) forward(ctx context.Context, stats *Stats) error {
	horizon, err := s.initialPass(ctx, stats, nil)
	if err != nil {
		return err
	}

	pos := board.NewEmptyPosition()
	size := s.store.Size()
	for ply := 1; ; ply++ {
		if ply > table.MaxPly {
			return fmt.Errorf("no convergence after %d plies", table.MaxPly)
		}
		var changed uint64
		for t := uint64(0); t < size; t++ {
			if t%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			ti := index.Index(t)
			p := s.store.Pair(ti)
			for _, side := range board.Colors {
				if p[side] != table.Undefined {
					continue
				}
				if err := s.layout.DecodeInto(pos, ti, side); err != nil {
					panic(fmt.Sprintf("retro: %s undefined entry %d/%s does not decode: %v", s.id.Name(), t, side, err))
				}
				if v := s.rule(pos, ply); v != table.Undefined {
					s.store.Set(ti, side, v)
					changed++
				}
			}
		}

		stats.Decided = append(stats.Decided, changed)
		s.log.Debug().Str("config", s.id.Name()).Int("ply", ply).Uint64("decided", changed).Msg("ply pass done")
		if changed == 0 && ply > horizon {
			return nil
		}
	}
}
