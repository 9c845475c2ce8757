// Package material identifies endgame material configurations.
//
// A configuration is the count of queens, rooks, bishops, knights and pawns
// on each side (kings are implied). It is stored as a 10-digit decimal ID,
// most significant digit first: White Q,R,B,N,P then Black Q,R,B,N,P. KQvK is
// 1000000000.
package material

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hailam/tablegen/internal/board"
)

// ID is a 10-digit configuration identifier.
type ID uint64

// Order is the scan order of non-king piece types. It fixes both the digit
// order of an ID and the order pieces are placed in a table index.
var Order = [5]board.PieceType{board.Queen, board.Rook, board.Bishop, board.Knight, board.Pawn}

const (
	halfBase = 100000
	maxDigit = 9
	digits   = 10
)

// pow10[i] is the place value of digit i. It must be a variable initializer:
// nonForcingIDs reads it during package initialization.
var pow10 = func() (w [digits]uint64) {
	p := uint64(1)
	for i := digits - 1; i >= 0; i-- {
		w[i] = p
		p *= 10
	}
	return w
}()

// slot returns the digit position (0 = most significant) of a piece type.
func slot(c board.Color, pt board.PieceType) int {
	for k, t := range Order {
		if t == pt {
			return int(c)*5 + k
		}
	}
	panic(fmt.Sprintf("material: no digit for %s", pt))
}

// Counts holds the per-side piece counts in Order.
type Counts [2][5]int

// FromCounts builds an ID from piece counts. Counts must be in [0, 9].
func FromCounts(c Counts) ID {
	var id uint64
	for side := 0; side < 2; side++ {
		for k := 0; k < 5; k++ {
			n := c[side][k]
			if n < 0 || n > maxDigit {
				panic(fmt.Sprintf("material: count %d out of range", n))
			}
			id += uint64(n) * pow10[side*5+k]
		}
	}
	return ID(id)
}

// Counts returns the per-side piece counts in Order.
func (id ID) Counts() Counts {
	var c Counts
	for side := 0; side < 2; side++ {
		for k := 0; k < 5; k++ {
			c[side][k] = int(uint64(id) / pow10[side*5+k] % 10)
		}
	}
	return c
}

// Count returns the number of pieces of type pt that side c has.
func (id ID) Count(c board.Color, pt board.PieceType) int {
	return int(uint64(id) / pow10[slot(c, pt)] % 10)
}

// White returns the White half of the id (five digits).
func (id ID) White() uint64 { return uint64(id) / halfBase }

// Black returns the Black half of the id (five digits).
func (id ID) Black() uint64 { return uint64(id) % halfBase }

// Reverse swaps the colors. Reverse(Reverse(id)) == id.
func (id ID) Reverse() ID {
	return ID(id.Black()*halfBase + id.White())
}

// IsCanonical reports whether White has at least Black's material under the
// digit ordering.
func (id ID) IsCanonical() bool {
	return id.White() >= id.Black()
}

// Canonical returns the canonical form of the id and whether the colors had
// to be reversed to get it.
func (id ID) Canonical() (ID, bool) {
	if id.IsCanonical() {
		return id, false
	}
	return id.Reverse(), true
}

// Side returns the number of non-king pieces of one side.
func (id ID) Side(c board.Color) int {
	n := 0
	for _, pt := range Order {
		n += id.Count(c, pt)
	}
	return n
}

// Pieces returns the total number of non-king pieces.
func (id ID) Pieces() int {
	return id.Side(board.White) + id.Side(board.Black)
}

// Pawns returns the total number of pawns.
func (id ID) Pawns() int {
	return id.Count(board.White, board.Pawn) + id.Count(board.Black, board.Pawn)
}

// HasPawns reports whether either side has a pawn.
func (id ID) HasPawns() bool {
	return id.Pawns() > 0
}

// BothHavePawns reports whether both sides have at least one pawn, which is
// when en passant captures are possible.
func (id ID) BothHavePawns() bool {
	return id.Count(board.White, board.Pawn) > 0 && id.Count(board.Black, board.Pawn) > 0
}

// Valid reports whether the id describes a placeable configuration.
func (id ID) Valid() bool {
	if uint64(id) >= pow10[0]*10 {
		return false
	}
	for _, c := range board.Colors {
		if id.Count(c, board.Pawn) > 8 || id.Side(c) > 15 {
			return false
		}
	}
	return true
}

// String returns the id as 10 zero-padded digits.
func (id ID) String() string {
	return fmt.Sprintf("%010d", uint64(id))
}

// Name returns the conventional name, e.g. "KQRvKB".
func (id ID) Name() string {
	var sb strings.Builder
	for i, c := range board.Colors {
		if i > 0 {
			sb.WriteByte('v')
		}
		sb.WriteByte('K')
		for _, pt := range Order {
			for n := id.Count(c, pt); n > 0; n-- {
				sb.WriteByte(pt.Letter())
			}
		}
	}
	return sb.String()
}

// FileName returns the raw table file name.
func (id ID) FileName() string {
	return id.String() + ".endgame"
}

// CompressedFileName returns the compressed table file name.
func (id ID) CompressedFileName() string {
	return id.String() + ".tbz"
}

// Parse accepts either a 10-digit id or a name such as "KRPvKR".
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty material")
	}
	if s[0] >= '0' && s[0] <= '9' {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse material id %q: %w", s, err)
		}
		id := ID(v)
		if !id.Valid() {
			return 0, fmt.Errorf("invalid material id %q", s)
		}
		return id, nil
	}
	return ParseName(s)
}

// ParseName parses a name such as "KQvK" or "KBNvKB".
func ParseName(name string) (ID, error) {
	sides := strings.Split(strings.ToUpper(name), "V")
	if len(sides) != 2 {
		return 0, fmt.Errorf("invalid material name %q", name)
	}
	var counts Counts
	for c, side := range sides {
		if !strings.HasPrefix(side, "K") {
			return 0, fmt.Errorf("invalid material name %q: side must start with K", name)
		}
		for _, r := range side[1:] {
			k := strings.IndexRune("QRBNP", r)
			if k < 0 {
				return 0, fmt.Errorf("invalid material name %q: unknown piece %c", name, r)
			}
			counts[c][k]++
			if counts[c][k] > maxDigit {
				return 0, fmt.Errorf("invalid material name %q: too many pieces", name)
			}
		}
	}
	id := FromCounts(counts)
	if !id.Valid() {
		return 0, fmt.Errorf("invalid material name %q", name)
	}
	return id, nil
}

// FromPosition returns the configuration of a position.
func FromPosition(pos *board.Position) ID {
	var counts Counts
	for _, c := range board.Colors {
		for k, pt := range Order {
			counts[c][k] = pos.Count(c, pt)
		}
	}
	return FromCounts(counts)
}
