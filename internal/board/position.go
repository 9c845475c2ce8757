package board

import (
	"errors"
	"fmt"
	"strings"
)

// Position represents a chess position without castling rights or move
// counters. Tablebase positions are fully described by piece placement, side
// to move and the en passant target.
type Position struct {
	// Piece bitboards: [Color][PieceType]
	Pieces [2][6]Bitboard

	// Occupancy bitboards (cached for efficiency)
	Occupied    [2]Bitboard
	AllOccupied Bitboard

	SideToMove Color
	EnPassant  Square // Target square for en passant, NoSquare if none

	// King positions (cached for check detection)
	KingSquare [2]Square

	// Checkers bitboard (pieces giving check to the side to move)
	Checkers Bitboard
}

// NewEmptyPosition returns a board with no pieces and White to move.
func NewEmptyPosition() *Position {
	p := &Position{}
	p.Clear()
	return p
}

// Copy creates a deep copy of the position.
func (p *Position) Copy() *Position {
	newPos := *p
	return &newPos
}

// Clear resets the position to an empty board.
func (p *Position) Clear() {
	*p = Position{EnPassant: NoSquare}
	p.KingSquare[White] = NoSquare
	p.KingSquare[Black] = NoSquare
}

// PieceAt returns the piece at the given square, or NoPiece if empty.
func (p *Position) PieceAt(sq Square) Piece {
	bb := SquareBB(sq)
	if p.AllOccupied&bb == 0 {
		return NoPiece
	}
	c := White
	if p.Occupied[Black]&bb != 0 {
		c = Black
	}
	for pt := Pawn; pt <= King; pt++ {
		if p.Pieces[c][pt]&bb != 0 {
			return NewPiece(pt, c)
		}
	}
	return NoPiece
}

// IsEmpty returns true if the square is empty.
func (p *Position) IsEmpty(sq Square) bool {
	return p.AllOccupied&SquareBB(sq) == 0
}

// SetPiece places a piece on an empty square. Callers building a position
// piece by piece finish with UpdateCheckers.
func (p *Position) SetPiece(piece Piece, sq Square) {
	if piece == NoPiece {
		return
	}
	c := piece.Color()
	pt := piece.Type()
	bb := SquareBB(sq)

	p.Pieces[c][pt] |= bb
	p.Occupied[c] |= bb
	p.AllOccupied |= bb

	if pt == King {
		p.KingSquare[c] = sq
	}
}

// removePiece removes a piece from a square.
func (p *Position) removePiece(sq Square) Piece {
	piece := p.PieceAt(sq)
	if piece == NoPiece {
		return NoPiece
	}
	bb := SquareBB(sq)
	p.Pieces[piece.Color()][piece.Type()] &^= bb
	p.Occupied[piece.Color()] &^= bb
	p.AllOccupied &^= bb
	return piece
}

// movePiece moves a piece from one square to another.
func (p *Position) movePiece(from, to Square) {
	piece := p.PieceAt(from)
	if piece == NoPiece {
		return
	}
	c := piece.Color()
	pt := piece.Type()
	moveBB := SquareBB(from) | SquareBB(to)

	p.Pieces[c][pt] ^= moveBB
	p.Occupied[c] ^= moveBB
	p.AllOccupied ^= moveBB

	if pt == King {
		p.KingSquare[c] = to
	}
}

// InCheck returns true if the side to move is in check.
func (p *Position) InCheck() bool {
	return p.Checkers != 0
}

// Count returns how many pieces of the given type and color are on the board.
func (p *Position) Count(c Color, pt PieceType) int {
	return p.Pieces[c][pt].PopCount()
}

// EnPassantPawn returns the square of the pawn that just double-stepped, or
// NoSquare when no en passant capture is available.
func (p *Position) EnPassantPawn() Square {
	if p.EnPassant == NoSquare {
		return NoSquare
	}
	if p.SideToMove == White {
		return p.EnPassant - 8
	}
	return p.EnPassant + 8
}

// EnPassantCapturable reports whether the en passant target is backed by a
// pawn of the side to move standing beside the pawn that just double-stepped.
func (p *Position) EnPassantCapturable() bool {
	pawn := p.EnPassantPawn()
	if pawn == NoSquare {
		return false
	}
	return p.canBeCapturedEnPassant(pawn, p.SideToMove.Other())
}

// canBeCapturedEnPassant reports whether a pawn of color c that just moved
// to sq has an enemy pawn beside it.
func (p *Position) canBeCapturedEnPassant(sq Square, c Color) bool {
	bb := SquareBB(sq)
	return (bb.East()|bb.West())&p.Pieces[c.Other()][Pawn] != 0
}

var (
	errKingCount     = errors.New("each side must have exactly one king")
	errPawnRank      = errors.New("pawns cannot be on rank 1 or 8")
	errKingsAdjacent = errors.New("kings are adjacent")
	errOpponentCheck = errors.New("side not to move is in check")
	errEnPassant     = errors.New("inconsistent en passant square")
)

// Validate checks that the position could arise in a game: one king per side,
// no pawns on the back ranks, kings apart, the side not to move not in check
// and a consistent en passant target.
func (p *Position) Validate() error {
	if p.Pieces[White][King].PopCount() != 1 || p.Pieces[Black][King].PopCount() != 1 {
		return errKingCount
	}
	if (p.Pieces[White][Pawn]|p.Pieces[Black][Pawn])&(Rank1|Rank8) != 0 {
		return errPawnRank
	}
	if KingAttacks(p.KingSquare[White])&p.Pieces[Black][King] != 0 {
		return errKingsAdjacent
	}
	them := p.SideToMove.Other()
	if p.IsSquareAttacked(p.KingSquare[them], p.SideToMove) {
		return errOpponentCheck
	}
	if p.EnPassant != NoSquare {
		if err := p.validateEnPassant(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Position) validateEnPassant() error {
	them := p.SideToMove.Other()
	wantRank := 5
	if them == White {
		wantRank = 2
	}
	if p.EnPassant.Rank() != wantRank {
		return fmt.Errorf("%w: %s", errEnPassant, p.EnPassant)
	}
	pawn := p.EnPassantPawn()
	if p.Pieces[them][Pawn]&SquareBB(pawn) == 0 {
		return fmt.Errorf("%w: no pawn on %s", errEnPassant, pawn)
	}
	// The square passed over and the starting square must be empty.
	start := p.EnPassant + p.EnPassant - pawn
	if !p.IsEmpty(p.EnPassant) || !p.IsEmpty(start) {
		return fmt.Errorf("%w: path of %s blocked", errEnPassant, pawn)
	}
	return nil
}

// Flip returns the color-reversed position: every piece changes color and is
// mirrored across the horizontal mid line, and the other side is to move.
func (p *Position) Flip() *Position {
	q := NewEmptyPosition()
	for _, c := range Colors {
		for pt := Pawn; pt <= King; pt++ {
			bb := p.Pieces[c][pt]
			for bb != 0 {
				sq := bb.PopLSB()
				q.SetPiece(NewPiece(pt, c.Other()), sq.Mirror())
			}
		}
	}
	q.SideToMove = p.SideToMove.Other()
	if p.EnPassant != NoSquare {
		q.EnPassant = p.EnPassant.Mirror()
	}
	q.UpdateCheckers()
	return q
}

// Transform returns the position with every square mapped through sym.
// Symmetries other than the identity and the left-right mirror are only
// meaningful for positions without pawns.
func (p *Position) Transform(sym Symmetry) *Position {
	if sym == Identity {
		return p.Copy()
	}
	q := NewEmptyPosition()
	for _, c := range Colors {
		for pt := Pawn; pt <= King; pt++ {
			bb := p.Pieces[c][pt]
			for bb != 0 {
				q.SetPiece(NewPiece(pt, c), sym.Apply(bb.PopLSB()))
			}
		}
	}
	q.SideToMove = p.SideToMove
	q.EnPassant = sym.Apply(p.EnPassant)
	q.UpdateCheckers()
	return q
}

// Equal reports whether two positions have the same placement, side to move
// and en passant target.
func (p *Position) Equal(o *Position) bool {
	return p.Pieces == o.Pieces && p.SideToMove == o.SideToMove && p.EnPassant == o.EnPassant
}

// String returns a visual representation of the position.
func (p *Position) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	for rank := 7; rank >= 0; rank-- {
		fmt.Fprintf(&sb, "%d  ", rank+1)
		for file := 0; file < 8; file++ {
			piece := p.PieceAt(NewSquare(file, rank))
			if piece == NoPiece {
				sb.WriteString(". ")
			} else {
				sb.WriteString(piece.String() + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n   a b c d e f g h\n\n")
	fmt.Fprintf(&sb, "Side to move: %s\n", p.SideToMove)
	fmt.Fprintf(&sb, "En passant: %s\n", p.EnPassant)
	fmt.Fprintf(&sb, "Key: %016x\n", p.Key())
	return sb.String()
}
