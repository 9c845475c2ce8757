// Package codec stores finished tables as block-compressed files. Scores are
// Huffman coded with one tree per side to move, and each block of 1024
// indexes mixes run segments (one score repeated) with sequence segments
// (scores coded one by one), so any index can be read by decoding a single
// block.
//
// File layout: a JSON header line, the little-endian uint16 byte length of
// every block, then the blocks. A block holds the White-to-move stream
// followed by the Black-to-move stream, padded to a byte.
package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/icza/bitio"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
	"github.com/hailam/tablegen/internal/material"
	"github.com/hailam/tablegen/internal/table"
)

const (
	Signature = "tablegen-tbz-1"
	BlockSize = 1024

	// Runs longer than this count once in the histogram.
	histogramRun = 11
	maxThreshold = 23
	lengthBits   = 10
)

var (
	ErrBadSignature = errors.New("not a compressed table")
	ErrCorrupt      = errors.New("corrupt compressed table")
	ErrBlockTooBig  = errors.New("compressed block exceeds 65535 bytes")
)

// Header is the first line of a compressed file.
type Header struct {
	Signature string      `json:"signature"`
	Config    material.ID `json:"config"`
	TableSize uint64      `json:"table_size"`
	BlockSize int         `json:"block_size"`
	Trees     [2]*Tree    `json:"trees"`
}

// Blocks returns the number of blocks of the file.
func (h *Header) Blocks() int {
	return int((h.TableSize + uint64(h.BlockSize) - 1) / uint64(h.BlockSize))
}

// Info describes a compressed table.
type Info struct {
	Blocks   int
	RawBytes int64
	Bytes    int64
	// Symbols is the number of distinct scores per side.
	Symbols [2]int
}

// Histogram counts the normalised scores of one side. A run longer than 11
// counts as a single sample, which is closer to what the coder actually
// emits per score after run-length coding.
func Histogram(r table.Reader, side board.Color) map[table.Score]uint64 {
	freq := make(map[table.Score]uint64)
	var run uint64
	prev := table.Score(0)
	flush := func() {
		if run == 0 {
			return
		}
		if run > histogramRun {
			freq[prev]++
		} else {
			freq[prev] += run
		}
	}
	for t := uint64(0); t < r.Size(); t++ {
		v := r.Get(index.Index(t), side).Normalize()
		if run > 0 && v == prev {
			run++
			continue
		}
		flush()
		prev, run = v, 1
	}
	flush()
	return freq
}

// Compress writes the compressed form of r to w.
func Compress(w io.Writer, id material.ID, r table.Reader) (Info, error) {
	h := &Header{Signature: Signature, Config: id, TableSize: r.Size(), BlockSize: BlockSize}
	info := Info{Blocks: h.Blocks(), RawBytes: table.FileSize(r.Size())}
	for _, side := range board.Colors {
		tree, err := BuildTree(Histogram(r, side))
		if err != nil {
			return info, err
		}
		h.Trees[side] = tree
		info.Symbols[side] = tree.Symbols()
	}

	line, err := json.Marshal(h)
	if err != nil {
		return info, fmt.Errorf("encode header: %w", err)
	}
	line = append(line, '\n')

	// Blocks are encoded up front so their lengths can precede them.
	lengths := make([]byte, 2*info.Blocks)
	var body bytes.Buffer
	enc := newBlockEncoder(h.Trees)
	for b := range info.Blocks {
		n, err := enc.encode(&body, r, uint64(b)*BlockSize)
		if err != nil {
			return info, fmt.Errorf("block %d: %w", b, err)
		}
		binary.LittleEndian.PutUint16(lengths[2*b:], uint16(n))
	}

	bw := bufio.NewWriter(w)
	for _, part := range [][]byte{line, lengths, body.Bytes()} {
		if _, err := bw.Write(part); err != nil {
			return info, err
		}
	}
	if err := bw.Flush(); err != nil {
		return info, err
	}
	info.Bytes = int64(len(line) + len(lengths) + body.Len())
	return info, nil
}

// CompressFile compresses r into path, replacing it atomically.
func CompressFile(path string, id material.ID, r table.Reader) (Info, error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return Info{}, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	info, err := Compress(f, id, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return info, fmt.Errorf("compress %s: %w", id.Name(), err)
	}
	return info, os.Rename(tmp, path)
}

// run is a maximal stretch of equal scores.
type run struct {
	v table.Score
	n int
}

type blockEncoder struct {
	trees [2]*Tree
	vals  []table.Score
	runs  []run
	buf   bytes.Buffer
}

func newBlockEncoder(trees [2]*Tree) *blockEncoder {
	return &blockEncoder{trees: trees, vals: make([]table.Score, 0, BlockSize)}
}

// encode appends the block starting at index first to out and returns its
// byte length.
func (e *blockEncoder) encode(out *bytes.Buffer, r table.Reader, first uint64) (int, error) {
	e.buf.Reset()
	w := bitio.NewWriter(&e.buf)
	end := min(first+BlockSize, r.Size())
	for _, side := range board.Colors {
		e.vals = e.vals[:0]
		for t := first; t < end; t++ {
			e.vals = append(e.vals, r.Get(index.Index(t), side).Normalize())
		}
		e.splitRuns()
		tree := e.trees[side]
		if err := e.writeSide(w, tree, e.bestThreshold(tree)); err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	if e.buf.Len() > math.MaxUint16 {
		return 0, ErrBlockTooBig
	}
	n := e.buf.Len()
	out.Write(e.buf.Bytes())
	return n, nil
}

func (e *blockEncoder) splitRuns() {
	e.runs = e.runs[:0]
	for _, v := range e.vals {
		if k := len(e.runs) - 1; k >= 0 && e.runs[k].v == v {
			e.runs[k].n++
			continue
		}
		e.runs = append(e.runs, run{v: v, n: 1})
	}
}

// cost returns the bits needed for the current runs with threshold t.
func (e *blockEncoder) cost(tree *Tree, t int) int {
	bits, inSeq := 0, false
	for _, r := range e.runs {
		if r.n >= t {
			bits += 1 + lengthBits + tree.CodeLen(r.v)
			inSeq = false
			continue
		}
		if !inSeq {
			bits += 1 + lengthBits
			inSeq = true
		}
		bits += r.n * tree.CodeLen(r.v)
	}
	return bits
}

func (e *blockEncoder) bestThreshold(tree *Tree) int {
	best, bestBits := 1, math.MaxInt
	for t := 1; t <= maxThreshold; t++ {
		if c := e.cost(tree, t); c < bestBits {
			best, bestBits = t, c
		}
	}
	return best
}

func (e *blockEncoder) writeSide(w *bitio.Writer, tree *Tree, t int) error {
	for i := 0; i < len(e.runs); {
		r := e.runs[i]
		if r.n >= t {
			if err := writeSegmentHead(w, true, r.n); err != nil {
				return err
			}
			if err := tree.write(w, r.v); err != nil {
				return err
			}
			i++
			continue
		}
		j, count := i, 0
		for j < len(e.runs) && e.runs[j].n < t {
			count += e.runs[j].n
			j++
		}
		if err := writeSegmentHead(w, false, count); err != nil {
			return err
		}
		for _, r := range e.runs[i:j] {
			for range r.n {
				if err := tree.write(w, r.v); err != nil {
					return err
				}
			}
		}
		i = j
	}
	return nil
}

func writeSegmentHead(w *bitio.Writer, isRun bool, n int) error {
	if err := w.WriteBool(isRun); err != nil {
		return err
	}
	return w.WriteBits(uint64(n-1), lengthBits)
}
