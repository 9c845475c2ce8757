package board

// LegalMoves fills ml with every legal move for the side to move. The list is
// cleared first so one buffer can be reused for a whole scan.
func (p *Position) LegalMoves(ml *MoveList) {
	ml.Clear()
	p.generatePseudoLegal(ml)

	n := 0
	for i := 0; i < ml.count; i++ {
		m := ml.moves[i]
		if p.IsLegal(m) {
			ml.moves[n] = m
			n++
		}
	}
	ml.count = n
}

// GenerateLegalMoves returns a fresh list of legal moves.
func (p *Position) GenerateLegalMoves() *MoveList {
	ml := NewMoveList()
	p.LegalMoves(ml)
	return ml
}

// generatePseudoLegal generates moves that may leave the own king in check.
func (p *Position) generatePseudoLegal(ml *MoveList) {
	us := p.SideToMove
	them := us.Other()
	own := p.Occupied[us]
	enemies := p.Occupied[them]
	occupied := p.AllOccupied

	p.generatePawnMoves(ml, us, enemies, occupied)

	knights := p.Pieces[us][Knight]
	for knights != 0 {
		from := knights.PopLSB()
		addMoves(ml, from, KnightAttacks(from)&^own)
	}

	bishops := p.Pieces[us][Bishop]
	for bishops != 0 {
		from := bishops.PopLSB()
		addMoves(ml, from, BishopAttacks(from, occupied)&^own)
	}

	rooks := p.Pieces[us][Rook]
	for rooks != 0 {
		from := rooks.PopLSB()
		addMoves(ml, from, RookAttacks(from, occupied)&^own)
	}

	queens := p.Pieces[us][Queen]
	for queens != 0 {
		from := queens.PopLSB()
		addMoves(ml, from, QueenAttacks(from, occupied)&^own)
	}

	if p.Pieces[us][King] != 0 {
		from := p.KingSquare[us]
		addMoves(ml, from, KingAttacks(from)&^own)
	}
}

func addMoves(ml *MoveList, from Square, targets Bitboard) {
	for targets != 0 {
		ml.Add(NewMove(from, targets.PopLSB()))
	}
}

// generatePawnMoves generates all pawn moves.
func (p *Position) generatePawnMoves(ml *MoveList, us Color, enemies, occupied Bitboard) {
	pawns := p.Pieces[us][Pawn]
	if pawns == 0 {
		return
	}
	empty := ^occupied

	var push1, push2, attackW, attackE, promotionRank Bitboard
	var pushDir int
	if us == White {
		push1 = pawns.North() & empty
		push2 = (push1 & Rank3).North() & empty
		attackW = pawns.North().West() & enemies
		attackE = pawns.North().East() & enemies
		promotionRank = Rank8
		pushDir = 8
	} else {
		push1 = pawns.South() & empty
		push2 = (push1 & Rank6).South() & empty
		attackW = pawns.South().West() & enemies
		attackE = pawns.South().East() & enemies
		promotionRank = Rank1
		pushDir = -8
	}

	addPawnTargets(ml, push1, pushDir, promotionRank)
	addPawnTargets(ml, attackW, pushDir-1, promotionRank)
	addPawnTargets(ml, attackE, pushDir+1, promotionRank)

	for push2 != 0 {
		to := push2.PopLSB()
		ml.Add(NewMove(Square(int(to)-2*pushDir), to))
	}

	if p.EnPassant != NoSquare {
		attackers := PawnAttacks(p.EnPassant, us.Other()) & pawns
		for attackers != 0 {
			ml.Add(NewEnPassant(attackers.PopLSB(), p.EnPassant))
		}
	}
}

// addPawnTargets adds moves to targets reached by a step of delta squares,
// expanding arrivals on the promotion rank into all four promotions.
func addPawnTargets(ml *MoveList, targets Bitboard, delta int, promotionRank Bitboard) {
	for targets != 0 {
		to := targets.PopLSB()
		from := Square(int(to) - delta)
		if SquareBB(to)&promotionRank != 0 {
			ml.Add(NewPromotion(from, to, Queen))
			ml.Add(NewPromotion(from, to, Rook))
			ml.Add(NewPromotion(from, to, Bishop))
			ml.Add(NewPromotion(from, to, Knight))
			continue
		}
		ml.Add(NewMove(from, to))
	}
}

// IsLegal reports whether a pseudo-legal move leaves the own king safe.
func (p *Position) IsLegal(m Move) bool {
	us := p.SideToMove
	from := m.From()
	if from == p.KingSquare[us] {
		occ := p.AllOccupied &^ SquareBB(from)
		return p.AttackersByColor(m.To(), us.Other(), occ)&^SquareBB(m.To()) == 0
	}
	undo := p.MakeMove(m)
	legal := !p.IsSquareAttacked(p.KingSquare[us], us.Other())
	p.UnmakeMove(m, undo)
	return legal
}

// MakeMove applies a move to the position and returns undo information.
// The move must be pseudo-legal for the side to move.
func (p *Position) MakeMove(m Move) UndoInfo {
	undo := UndoInfo{
		CapturedPiece: NoPiece,
		EnPassant:     p.EnPassant,
		Checkers:      p.Checkers,
		KingSquare:    p.KingSquare,
		Pieces:        p.Pieces,
		Occupied:      p.Occupied,
		AllOccupied:   p.AllOccupied,
	}

	us := p.SideToMove
	them := us.Other()
	from := m.From()
	to := m.To()
	pt := p.PieceAt(from).Type()

	p.EnPassant = NoSquare

	if m.IsEnPassant() {
		capturedSq := to - 8
		if us == Black {
			capturedSq = to + 8
		}
		undo.CapturedPiece = p.removePiece(capturedSq)
	} else if captured := p.PieceAt(to); captured != NoPiece {
		undo.CapturedPiece = p.removePiece(to)
	}

	p.movePiece(from, to)

	if m.IsPromotion() {
		p.Pieces[us][Pawn] &^= SquareBB(to)
		p.Pieces[us][m.Promotion()] |= SquareBB(to)
	}

	// Only record an en passant target when a capture is structurally
	// possible, so equal placements compare equal.
	if pt == Pawn && (int(to)-int(from) == 16 || int(from)-int(to) == 16) {
		if p.canBeCapturedEnPassant(to, us) {
			p.EnPassant = Square((int(from) + int(to)) / 2)
		}
	}

	p.SideToMove = them
	p.UpdateCheckers()
	return undo
}

// UnmakeMove undoes a move using the stored undo information.
func (p *Position) UnmakeMove(m Move, undo UndoInfo) {
	p.EnPassant = undo.EnPassant
	p.Checkers = undo.Checkers
	p.KingSquare = undo.KingSquare
	p.Pieces = undo.Pieces
	p.Occupied = undo.Occupied
	p.AllOccupied = undo.AllOccupied
	p.SideToMove = p.SideToMove.Other()
}

// HasLegalMoves returns true if the side to move has any legal moves.
func (p *Position) HasLegalMoves() bool {
	var ml MoveList
	p.generatePseudoLegal(&ml)
	for _, m := range ml.Slice() {
		if p.IsLegal(m) {
			return true
		}
	}
	return false
}

// IsCheckmate returns true if the side to move is checkmated.
func (p *Position) IsCheckmate() bool {
	return p.InCheck() && !p.HasLegalMoves()
}

// IsStalemate returns true if the side to move is stalemated.
func (p *Position) IsStalemate() bool {
	return !p.InCheck() && !p.HasLegalMoves()
}
