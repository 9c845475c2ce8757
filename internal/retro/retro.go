// Package retro scores every position of a material configuration by
// retrograde analysis: mates and stalemates first, then forced wins and
// losses one ply at a time until nothing changes, with whatever remains
// undecided scored as a draw.
package retro

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/table"
)

// Mode selects the propagation algorithm. Both produce identical tables.
type Mode int

const (
	// Forward sweeps every undecided position on every ply.
	Forward Mode = iota
	// Backward inverts the move graph into a sorted edge file and only
	// revisits the parents of positions decided on the previous ply.
	Backward
)

func (m Mode) String() string {
	if m == Backward {
		return "backward"
	}
	return "forward"
}

// ParseMode parses "forward" or "backward".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	}
	return Forward, fmt.Errorf("unknown scoring mode %q", s)
}

// Config configures a Scorer.
type Config struct {
	Logger zerolog.Logger
	Mode   Mode
	// TempDir holds edge files in backward mode; empty means the system
	// temporary directory.
	TempDir string
	// Work is the set of configurations being generated in this run. A child
	// configuration in Work without a finished table is a scheduling error;
	// any other missing configuration scores as a draw.
	Work map[material.ID]bool
}

// Stats describes one scoring run.
type Stats struct {
	ID material.ID
	// Decided counts the positions decided on each ply pass, starting at 0.
	Decided []uint64
	// MaxSearchPly is the deepest mate reachable through foreign tables.
	MaxSearchPly int
	Table        table.Stats
	Elapsed      time.Duration
}

// Passes returns the number of ply passes run after the initial one.
func (s Stats) Passes() int { return max(len(s.Decided)-1, 0) }

// Scorer computes tables. A scorer is owned by one worker and reused across
// configurations; it is not safe for concurrent use.
type Scorer struct {
	cfg Config
	log zerolog.Logger

	// Per configuration state.
	id       material.ID
	layout   *index.Layout
	store    table.Store
	finished table.Arena

	moves board.MoveList
}

// NewScorer creates a scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg, log: cfg.Logger}
}

// Score fills store with the scores of configuration id. finished holds the
// tables of every configuration already computed; the scorer only reads it.
func (s *Scorer) Score(ctx context.Context, id material.ID, store table.Store, finished table.Arena) (Stats, error) {
	if !id.IsCanonical() {
		return Stats{}, fmt.Errorf("score %s: configuration is not canonical", id.Name())
	}
	s.id = id
	s.layout = index.LayoutFor(id)
	s.store = store
	s.finished = finished
	defer func() { s.store, s.finished = nil, nil }()

	if store.Size() != s.layout.Size() {
		return Stats{}, fmt.Errorf("score %s: store has %d entries, layout needs %d", id.Name(), store.Size(), s.layout.Size())
	}

	start := time.Now()
	stats := Stats{ID: id}
	var err error
	switch s.cfg.Mode {
	case Backward:
		err = s.backward(ctx, &stats)
	default:
		err = s.forward(ctx, &stats)
	}
	if err != nil {
		return stats, fmt.Errorf("score %s: %w", id.Name(), err)
	}

	s.resolveDraws(&stats)
	stats.Elapsed = time.Since(start)
	s.log.Info().
		Str("config", id.Name()).
		Str("mode", s.cfg.Mode.String()).
		Int("passes", stats.Passes()).
		Int("max_plies", stats.Table.MaxPlies).
		Uint64("wins", stats.Table.Wins).
		Uint64("losses", stats.Table.Losses).
		Uint64("draws", stats.Table.Draws).
		Dur("elapsed", stats.Elapsed).
		Msg("table scored")
	return stats, nil
}

// checkEvery is how many positions a pass handles between context checks.
const checkEvery = 1 << 16

// visitor receives pass 0 facts about an undecided position.
type visitor interface {
	// inConfig reports a move that stays in the configuration.
	inConfig(parent, child uint64) error
	// foreign reports a move leaving the configuration and the ply at which
	// it decides the parent.
	foreign(parent uint64, ply int)
}

// initialPass fills the table with Unreachable, scores mates and
// stalemates, marks every other legal position Undefined and returns the
// deepest foreign mate horizon. v may be nil.
func (s *Scorer) initialPass(ctx context.Context, stats *Stats, v visitor) (int, error) {
	s.store.Fill(table.Unreachable)

	maxSearchPly := 0
	var decided uint64
	var last int64 = -1
	var seen uint64
	err := index.ForEachPosition(s.layout, func(t index.Index, pos *board.Position) error {
		if int64(t) < last {
			panic(fmt.Sprintf("retro: %s index %d visited after %d", s.id.Name(), t, last))
		}
		last = int64(t)
		if seen++; seen%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		side := pos.SideToMove
		pos.LegalMoves(&s.moves)
		if s.moves.Len() == 0 {
			if pos.InCheck() {
				s.store.Set(t, side, table.Mated)
			} else {
				s.store.Set(t, side, table.Draw)
			}
			decided++
			return nil
		}

		s.store.Set(t, side, table.Undefined)
		parent := node(t, side)
		for _, m := range s.moves.Slice() {
			if !m.ChangesMaterial(pos) {
				if v != nil {
					undo := pos.MakeMove(m)
					child := node(s.layout.Encode(pos), pos.SideToMove)
					pos.UnmakeMove(m, undo)
					if err := v.inConfig(parent, child); err != nil {
						return err
					}
				}
				continue
			}
			cs := s.child(pos, m)
			if cs == table.Draw {
				continue
			}
			ply := cs.Negate().Plies()
			maxSearchPly = max(maxSearchPly, ply)
			if v != nil {
				v.foreign(parent, ply)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	stats.Decided = append(stats.Decided, decided)
	stats.MaxSearchPly = maxSearchPly
	s.log.Debug().Str("config", s.id.Name()).Uint64("decided", decided).Int("horizon", maxSearchPly).Msg("terminal positions scored")
	return maxSearchPly, nil
}

// rule applies the ply rule to an undecided position and returns its new
// score, or Undefined when the position stays open. On odd plies a position
// wins if any move reaches a position lost at the previous ply. On even
// plies it loses if every child is decided and the best of them still loses
// at this ply.
func (s *Scorer) rule(pos *board.Position, ply int) table.Score {
	pos.LegalMoves(&s.moves)
	if ply%2 == 1 {
		want := table.WinIn(ply)
		for _, m := range s.moves.Slice() {
			if cs := s.child(pos, m); cs.IsDecided() && cs.Negate() == want {
				return want
			}
		}
		return table.Undefined
	}

	best := table.MinScore
	for _, m := range s.moves.Slice() {
		cs := s.child(pos, m)
		if cs == table.Undefined {
			return table.Undefined
		}
		best = max(best, cs.Negate())
	}
	if best == table.LossIn(ply) {
		return best
	}
	return table.Undefined
}

// child returns the score of the position after m, read from the table under
// construction or from the finished table the move leads into. The move
// list of the scorer is not touched.
func (s *Scorer) child(pos *board.Position, m board.Move) table.Score {
	foreign := m.ChangesMaterial(pos)
	undo := pos.MakeMove(m)
	var cs table.Score
	if foreign {
		cs = s.foreignScore(pos)
	} else {
		cs = s.store.Get(s.layout.Encode(pos), pos.SideToMove)
	}
	if cs == table.Unreachable {
		fen := pos.ToFEN()
		pos.UnmakeMove(m, undo)
		panic(fmt.Sprintf("retro: %s move %s reaches unreachable position %s", s.id.Name(), m, fen))
	}
	pos.UnmakeMove(m, undo)
	return cs
}

// foreignScore looks a position up in the finished table of its own
// configuration, flipping colors when that configuration is stored reversed.
func (s *Scorer) foreignScore(pos *board.Position) table.Score {
	id, reversed := material.FromPosition(pos).Canonical()
	r, ok := s.finished.Lookup(id)
	if !ok {
		if s.cfg.Work[id] {
			panic(fmt.Sprintf("retro: %s needs %s which is not finished", s.id.Name(), id.Name()))
		}
		return table.Draw
	}
	if reversed {
		pos = pos.Flip()
	}
	return r.Get(index.LayoutFor(id).Encode(pos), pos.SideToMove)
}

// resolveDraws scores the remaining undefined positions as draws and
// collects the table statistics.
func (s *Scorer) resolveDraws(stats *Stats) {
	var st table.Stats
	for t := uint64(0); t < s.store.Size(); t++ {
		ti := index.Index(t)
		p := s.store.Pair(ti)
		for _, side := range board.Colors {
			if p[side] == table.Undefined {
				s.store.Set(ti, side, table.Draw)
				p[side] = table.Draw
			}
			st.Add(p[side])
		}
	}
	stats.Table = st
}

func node(t index.Index, side board.Color) uint64 {
	return uint64(t)*2 + uint64(side)
}

func fromNode(n uint64) (index.Index, board.Color) {
	return index.Index(n / 2), board.Color(n % 2)
}
