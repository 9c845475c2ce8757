package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/icza/bitio"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/table"
)

// Reader reads scores from a compressed file. It keeps the most recently
// decoded block and is safe for concurrent use. Reader implements
// table.Reader with unreachable positions reading as draws.
type Reader struct {
	f      *os.File
	header Header
	// offsets[b] is the file offset of block b; offsets[len] is the end.
	offsets []int64

	mu     sync.Mutex
	cached int
	block  [2][]table.Score
	raw    []byte
}

var _ table.Reader = (*Reader)(nil)

// Open opens a compressed table.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	br := bufio.NewReader(f)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	r := &Reader{f: f, cached: -1}
	if err := json.Unmarshal(line, &r.header); err != nil || r.header.Signature != Signature {
		return nil, ErrBadSignature
	}
	h := &r.header
	if h.BlockSize <= 0 || h.BlockSize > 1<<lengthBits || h.Trees[0] == nil || h.Trees[1] == nil {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}

	blocks := h.Blocks()
	lengths := make([]byte, 2*blocks)
	if _, err := io.ReadFull(br, lengths); err != nil {
		return nil, fmt.Errorf("%w: block index: %v", ErrCorrupt, err)
	}
	r.offsets = make([]int64, blocks+1)
	r.offsets[0] = int64(len(line) + len(lengths))
	for b := range blocks {
		r.offsets[b+1] = r.offsets[b] + int64(binary.LittleEndian.Uint16(lengths[2*b:]))
	}

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() != r.offsets[blocks] {
		return nil, fmt.Errorf("%w: file has %d bytes, index says %d", ErrCorrupt, st.Size(), r.offsets[blocks])
	}
	for _, side := range board.Colors {
		r.block[side] = make([]table.Score, 0, h.BlockSize)
	}
	return r, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

func (r *Reader) Size() uint64 { return r.header.TableSize }

// Get returns the score of index t with side to move.
func (r *Reader) Get(t index.Index, side board.Color) table.Score {
	return r.Pair(t)[side]
}

// Pair returns both scores of index t. Corrupt blocks panic; the file was
// validated against its index when opened.
func (r *Reader) Pair(t index.Index) table.Pair {
	if uint64(t) >= r.header.TableSize {
		panic(&table.RangeError{Index: t, Size: r.header.TableSize})
	}
	b := int(uint64(t) / uint64(r.header.BlockSize))
	k := int(uint64(t) % uint64(r.header.BlockSize))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != b {
		if err := r.load(b); err != nil {
			r.cached = -1
			panic(fmt.Errorf("read %s block %d: %w", r.header.Config.Name(), b, err))
		}
		r.cached = b
	}
	return table.Pair{r.block[board.White][k], r.block[board.Black][k]}
}

// Score is Get with the side to move given as a flag.
func (r *Reader) Score(t index.Index, whiteToMove bool) table.Score {
	side := board.Black
	if whiteToMove {
		side = board.White
	}
	return r.Get(t, side)
}

func (r *Reader) load(b int) error {
	n := r.offsets[b+1] - r.offsets[b]
	if cap(r.raw) < int(n) {
		r.raw = make([]byte, n)
	}
	r.raw = r.raw[:n]
	if _, err := r.f.ReadAt(r.raw, r.offsets[b]); err != nil {
		return err
	}

	count := r.header.BlockSize
	if rest := r.header.TableSize - uint64(b)*uint64(r.header.BlockSize); rest < uint64(count) {
		count = int(rest)
	}
	br := bitio.NewReader(bytes.NewReader(r.raw))
	for _, side := range board.Colors {
		vals, err := decodeSide(br, r.header.Trees[side], r.block[side][:0], count)
		if err != nil {
			return err
		}
		r.block[side] = vals
	}
	return nil
}

func decodeSide(br *bitio.Reader, tree *Tree, dst []table.Score, count int) ([]table.Score, error) {
	for len(dst) < count {
		isRun, err := br.ReadBool()
		if err != nil {
			return dst, err
		}
		m, err := br.ReadBits(lengthBits)
		if err != nil {
			return dst, err
		}
		n := int(m) + 1
		if len(dst)+n > count {
			return dst, fmt.Errorf("%w: segment overruns block", ErrCorrupt)
		}
		if isRun {
			v, err := tree.read(br)
			if err != nil {
				return dst, err
			}
			for range n {
				dst = append(dst, v)
			}
			continue
		}
		for range n {
			v, err := tree.read(br)
			if err != nil {
				return dst, err
			}
			dst = append(dst, v)
		}
	}
	return dst, nil
}

// Close closes the file.
func (r *Reader) Close() error { return r.f.Close() }
