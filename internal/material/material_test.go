package material

import (
	"testing"

	"github.com/matryer/is"

	"github.com/hailam/tablegen/internal/board"
)

func mustParse(t *testing.T, s string) ID {
	t.Helper()
	id, err := Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestIDDigits(t *testing.T) {
	is := is.New(t)
	kqk := mustParse(t, "KQvK")
	is.Equal(kqk, ID(1000000000))
	is.Equal(kqk.String(), "1000000000")
	is.Equal(kqk.FileName(), "1000000000.endgame")
	is.Equal(kqk.CompressedFileName(), "1000000000.tbz")

	id := mustParse(t, "KQRRPvKBNP")
	is.Equal(id.String(), "1200100111")
	is.Equal(id.Name(), "KQRRPvKBNP")
	is.Equal(id.Count(board.White, board.Rook), 2)
	is.Equal(id.Count(board.Black, board.Knight), 1)
	is.Equal(id.Pieces(), 7)
	is.Equal(id.Pawns(), 2)
	is.True(id.BothHavePawns())
	is.Equal(mustParse(t, "1200100111"), id)
}

func TestReverseInvolution(t *testing.T) {
	is := is.New(t)
	for _, id := range Plan(3) {
		is.Equal(id.Reverse().Reverse(), id)
		is.True(id.IsCanonical())
		canon, reversed := id.Reverse().Canonical()
		is.Equal(canon, id)
		is.Equal(reversed, id.Reverse() != id)
	}
	is.Equal(mustParse(t, "KvKQ").Reverse(), mustParse(t, "KQvK"))
}

func TestParseErrors(t *testing.T) {
	is := is.New(t)
	for _, s := range []string{"", "KQK", "QvK", "KXvK", "KPPPPPPPPPvK", "99999999999"} {
		_, err := Parse(s)
		is.True(err != nil) // invalid material must be rejected
	}
}

func TestForcedMatePossible(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"KQvK", true},
		{"KRvK", true},
		{"KPvK", true},
		{"KBvK", false},
		{"KNvK", false},
		{"KBvKN", false},
		{"KBvKB", false},
		{"KNNvK", false},
		{"KBNvKB", false},
		{"KBNvKN", false},
		{"KBNvK", true},
		{"KBBvK", true},
		{"KBvKBN", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(ForcedMatePossible(mustParse(t, tc.name)), tc.want)
		})
	}
}

func TestPlan(t *testing.T) {
	is := is.New(t)
	is.Equal(Plan(1), []ID{mustParse(t, "KRvK"), mustParse(t, "KQvK"), mustParse(t, "KPvK")})

	plan := Plan(3)
	seen := make(map[ID]int)
	for i, id := range plan {
		is.True(id.IsCanonical())
		is.True(id.Pieces() >= 1 && id.Pieces() <= 3)
		is.True(ForcedMatePossible(id))
		_, dup := seen[id]
		is.True(!dup) // each configuration planned once
		seen[id] = i
	}
	_, ok := seen[mustParse(t, "KBvKN")]
	is.True(!ok) // KBvKN can never force mate
	_, ok = seen[mustParse(t, "KNNvK")]
	is.True(!ok)
	_, ok = seen[mustParse(t, "KRvKB")]
	is.True(ok)

	// Every planned dependency comes earlier in the plan.
	for i, id := range plan {
		for _, dep := range Dependencies(id) {
			if j, ok := seen[dep]; ok {
				is.True(j < i)
			}
		}
	}
}

func TestDependencies(t *testing.T) {
	is := is.New(t)
	is.Equal(Dependencies(mustParse(t, "KQvK")), []ID{0})
	is.Equal(Dependencies(mustParse(t, "KPvK")), []ID{
		0,
		mustParse(t, "KNvK"),
		mustParse(t, "KBvK"),
		mustParse(t, "KRvK"),
		mustParse(t, "KQvK"),
	})
	is.Equal(Dependencies(mustParse(t, "KRvKB")), []ID{mustParse(t, "KBvK"), mustParse(t, "KRvK")})

	// A promotion that captures on the back rank.
	deps := Dependencies(mustParse(t, "KPvKR"))
	is.True(contains(deps, mustParse(t, "KQvK")))
	is.True(contains(deps, mustParse(t, "KQvKR")))
	is.True(contains(deps, mustParse(t, "KRvK"))) // rook takes pawn, colours reversed
	is.True(contains(deps, mustParse(t, "KPvK")))
}

func contains(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func TestFromPosition(t *testing.T) {
	is := is.New(t)
	pos, err := board.ParseFEN("8/8/8/3k4/8/1n6/3P4/RK6 w - - 0 1")
	is.NoErr(err)
	is.Equal(FromPosition(pos), mustParse(t, "KRPvKN"))
}

func TestPackageTablesReady(t *testing.T) {
	is := is.New(t)
	is.Equal(pow10[0], uint64(1_000_000_000))
	is.Equal(pow10[digits-1], uint64(1))
	// The denylist is parsed at package load and holds both colour orders.
	is.Equal(len(nonForcingIDs), 2*len(nonForcing))
	is.True(nonForcingIDs[mustParse(t, "KNNvK")])
	is.True(nonForcingIDs[mustParse(t, "KvKNN")])
}

func TestPlanLargePieceCounts(t *testing.T) {
	is := is.New(t)
	plan := Plan(11)
	is.True(len(plan) > 0)
	for _, id := range plan {
		is.True(id.Valid())
		for _, c := range board.Colors {
			for _, pt := range Order {
				is.True(id.Count(c, pt) <= maxDigit)
			}
		}
	}
	is.True(lenOf(plan, 11) > 0)
}

// lenOf counts the configurations of plan with exactly n pieces.
func lenOf(plan []ID, n int) int {
	k := 0
	for _, id := range plan {
		if id.Pieces() == n {
			k++
		}
	}
	return k
}
