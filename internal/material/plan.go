package material

import (
	"cmp"
	"slices"

	"github.com/samber/lo"

	"github.com/hailam/tablegen/internal/board"
)

// Configurations known not to force mate although they have two minors on
// one side. The list is best effort; anything it misses is still scored
// correctly, only at the cost of computing a table of draws.
var nonForcing = []string{"KNNvK", "KBNvKB", "KBNvKN"}

var nonForcingIDs = func() map[ID]bool {
	m := make(map[ID]bool)
	for _, name := range nonForcing {
		id, err := ParseName(name)
		if err != nil {
			panic(err)
		}
		m[id] = true
		m[id.Reverse()] = true
	}
	return m
}()

// ForcedMatePossible reports whether either side could possibly force mate.
// It may return true for configurations that cannot, never the reverse.
func ForcedMatePossible(id ID) bool {
	for _, c := range board.Colors {
		if id.Count(c, board.Queen)+id.Count(c, board.Rook)+id.Count(c, board.Pawn) > 0 {
			return true
		}
	}
	minors := func(c board.Color) int {
		return id.Count(c, board.Bishop) + id.Count(c, board.Knight)
	}
	if minors(board.White) <= 1 && minors(board.Black) <= 1 {
		return false
	}
	return !nonForcingIDs[id]
}

// Plan returns every canonical configuration with 1..maxPieces non-king
// pieces that passes ForcedMatePossible, ordered by piece count, then pawn
// count, then id. Dependencies of a configuration always sort before it.
func Plan(maxPieces int) []ID {
	var out []ID
	var counts Counts
	var walk func(k, left int, ahead bool)
	walk = func(k, left int, ahead bool) {
		if k == len(Order) {
			id := FromCounts(counts)
			if id.Pieces() > 0 && ForcedMatePossible(id) {
				out = append(out, id)
			}
			return
		}
		limit := min(left, maxDigit)
		if Order[k] == board.Pawn {
			limit = min(limit, 8)
		}
		for w := 0; w <= limit; w++ {
			for b := 0; b <= min(left-w, limit); b++ {
				// White's digit string may never fall below Black's.
				if !ahead && w < b {
					continue
				}
				counts[board.White][k], counts[board.Black][k] = w, b
				walk(k+1, left-w-b, ahead || w > b)
			}
		}
		counts[board.White][k], counts[board.Black][k] = 0, 0
	}
	walk(0, maxPieces, false)

	SortWork(out)
	return out
}

// SortWork orders ids by (pieces, pawns, id).
func SortWork(ids []ID) {
	slices.SortFunc(ids, func(a, b ID) int {
		return cmp.Or(
			cmp.Compare(a.Pieces(), b.Pieces()),
			cmp.Compare(a.Pawns(), b.Pawns()),
			cmp.Compare(a, b),
		)
	})
}

// Dependencies returns the canonical configurations reachable from id by one
// capture, promotion or capturing promotion, in ascending order.
func Dependencies(id ID) []ID {
	base := id.Counts()
	var deps []ID
	add := func(c Counts) {
		for side := range c {
			for k := range c[side] {
				if c[side][k] < 0 || c[side][k] > maxDigit {
					return
				}
			}
		}
		canon, _ := FromCounts(c).Canonical()
		deps = append(deps, canon)
	}

	for _, us := range board.Colors {
		them := us.Other()
		// Captures: any piece of the side not moving disappears.
		for k := range Order {
			if base[them][k] > 0 {
				c := base
				c[them][k]--
				add(c)
			}
		}
		// Promotions, quiet or capturing a non-pawn piece on the back rank.
		pawn := len(Order) - 1
		if base[us][pawn] == 0 {
			continue
		}
		for promo := 0; promo < pawn; promo++ {
			c := base
			c[us][pawn]--
			c[us][promo]++
			add(c)
			for k := 0; k < pawn; k++ {
				if c[them][k] > 0 {
					cc := c
					cc[them][k]--
					add(cc)
				}
			}
		}
	}

	deps = lo.Uniq(deps)
	slices.Sort(deps)
	return deps
}
