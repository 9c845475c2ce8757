package table

import (
	"errors"
	"fmt"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

// EntrySize is the number of bytes holding the two scores of one index.
const EntrySize = 3

var (
	ErrWrongSize = errors.New("table file has the wrong size")
	ErrReadOnly  = errors.New("table is read-only")
)

// RangeError reports an index or score outside what a table can hold. Table
// accessors panic with it; it always means a bug upstream.
type RangeError struct {
	Index index.Index
	Size  uint64
	Score Score
}

func (e *RangeError) Error() string {
	if uint64(e.Index) >= e.Size {
		return fmt.Sprintf("table index %d out of range [0, %d)", e.Index, e.Size)
	}
	return fmt.Sprintf("score %d out of range [%d, %d]", e.Score, MinScore, MaxScore)
}

// Reader gives read access to a finished table. Readers are safe for
// concurrent use.
type Reader interface {
	Size() uint64
	Get(t index.Index, side board.Color) Score
	Pair(t index.Index) Pair
	Close() error
}

// Store is a table under construction.
type Store interface {
	Reader
	Set(t index.Index, side board.Color, s Score)
	Fill(s Score)
	// Save writes the table to path atomically.
	Save(path string) error
	// ReadOnly returns an independent reader over the current contents. The
	// store must not be modified while the reader is in use.
	ReadOnly() (Reader, error)
}

// FileSize returns the byte length of a raw table with size indexes.
func FileSize(size uint64) int64 {
	return int64(size) * EntrySize
}

func checkIndex(t index.Index, size uint64) {
	if uint64(t) >= size {
		panic(&RangeError{Index: t, Size: size})
	}
}

func checkScore(t index.Index, size uint64, s Score) {
	if s < MinScore || s > MaxScore {
		panic(&RangeError{Index: t, Size: size, Score: s})
	}
}

// pack stores both scores of an entry in b[0:3].
func pack(b []byte, p Pair) {
	w, k := uint16(p[board.White]), uint16(p[board.Black])
	b[0] = byte(w)
	b[1] = byte(w>>8&0xF) | byte(k&0xF)<<4
	b[2] = byte(k >> 4)
}

// unpack reads both scores of an entry, sign-extending the 12-bit values.
func unpack(b []byte) Pair {
	w := int16(uint16(b[0])|uint16(b[1]&0xF)<<8) << 4 >> 4
	k := int16(uint16(b[1]>>4)|uint16(b[2])<<4) << 4 >> 4
	return Pair{Score(w), Score(k)}
}

