package retro

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zstd"
)

// An edge links a child node to one of its parents. A node is a table index
// times two plus the side to move.
type edge struct {
	child  uint64
	parent uint64
}

const (
	edgeSize    = 16
	bucketCount = 256
	// Edges are buffered per bucket and compressed in batches of this size.
	bucketBatch = 4096
)

// edgeSorter collects edges into zstd-compressed bucket files keyed by the
// top bits of the child node, then sorts each bucket in memory. Buckets
// partition the child range, so concatenating sorted buckets sorts the
// whole file (one most-significant-digit radix pass).
type edgeSorter struct {
	dir     string
	shift   uint
	files   [bucketCount]*os.File
	writers [bucketCount]*zstd.Encoder
	pending [bucketCount][]edge
	count   uint64
	buf     []byte
}

func newEdgeSorter(dir string, nodes uint64) (*edgeSorter, error) {
	s := &edgeSorter{dir: dir}
	// Spread the node range over the buckets.
	if width := bits.Len64(nodes); width > 8 {
		s.shift = uint(width - 8)
	}
	for b := range s.files {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("bucket-%03d.zst", b)))
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("create edge bucket: %w", err)
		}
		w, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
		if err != nil {
			f.Close()
			s.abort()
			return nil, fmt.Errorf("create edge bucket encoder: %w", err)
		}
		s.files[b], s.writers[b] = f, w
	}
	return s, nil
}

func (s *edgeSorter) add(child, parent uint64) error {
	b := child >> s.shift
	s.pending[b] = append(s.pending[b], edge{child, parent})
	s.count++
	if len(s.pending[b]) >= bucketBatch {
		return s.flush(int(b))
	}
	return nil
}

func (s *edgeSorter) flush(b int) error {
	s.buf = s.buf[:0]
	for _, e := range s.pending[b] {
		s.buf = binary.LittleEndian.AppendUint64(s.buf, e.child)
		s.buf = binary.LittleEndian.AppendUint64(s.buf, e.parent)
	}
	s.pending[b] = s.pending[b][:0]
	if _, err := s.writers[b].Write(s.buf); err != nil {
		return fmt.Errorf("write edge bucket %d: %w", b, err)
	}
	return nil
}

// finish sorts every bucket into one uncompressed edge file at path.
func (s *edgeSorter) finish(path string) (*edgeFile, error) {
	defer s.abort()
	for b := range s.writers {
		if err := s.flush(b); err != nil {
			return nil, err
		}
		err := s.writers[b].Close()
		s.writers[b] = nil
		if err != nil {
			return nil, fmt.Errorf("close edge bucket %d: %w", b, err)
		}
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create edge file: %w", err)
	}
	w := bufio.NewWriterSize(out, 1<<20)
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("create edge decoder: %w", err)
	}
	defer dec.Close()

	var edges []edge
	for b, f := range s.files {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			out.Close()
			return nil, fmt.Errorf("rewind edge bucket %d: %w", b, err)
		}
		if err := dec.Reset(f); err != nil {
			out.Close()
			return nil, fmt.Errorf("read edge bucket %d: %w", b, err)
		}
		raw, err := io.ReadAll(dec)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("read edge bucket %d: %w", b, err)
		}
		edges = edges[:0]
		for i := 0; i+edgeSize <= len(raw); i += edgeSize {
			edges = append(edges, edge{
				child:  binary.LittleEndian.Uint64(raw[i:]),
				parent: binary.LittleEndian.Uint64(raw[i+8:]),
			})
		}
		slices.SortFunc(edges, func(a, b edge) int {
			return cmp.Or(cmp.Compare(a.child, b.child), cmp.Compare(a.parent, b.parent))
		})
		var rec [edgeSize]byte
		for _, e := range edges {
			binary.LittleEndian.PutUint64(rec[:8], e.child)
			binary.LittleEndian.PutUint64(rec[8:], e.parent)
			if _, err := w.Write(rec[:]); err != nil {
				out.Close()
				return nil, fmt.Errorf("write edge file: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return nil, fmt.Errorf("write edge file: %w", err)
	}
	return &edgeFile{f: out, n: s.count}, nil
}

// abort closes and removes the bucket files.
func (s *edgeSorter) abort() {
	for b, f := range s.files {
		if f == nil {
			continue
		}
		if s.writers[b] != nil {
			s.writers[b].Close()
		}
		f.Close()
		os.Remove(f.Name())
		s.files[b] = nil
	}
}

// edgeFile is a child-sorted edge list searched through ReadAt.
type edgeFile struct {
	f *os.File
	n uint64
}

func (e *edgeFile) read(i uint64) (edge, error) {
	var rec [edgeSize]byte
	if _, err := e.f.ReadAt(rec[:], int64(i)*edgeSize); err != nil {
		return edge{}, fmt.Errorf("read edge %d: %w", i, err)
	}
	return edge{
		child:  binary.LittleEndian.Uint64(rec[:8]),
		parent: binary.LittleEndian.Uint64(rec[8:]),
	}, nil
}

// parents appends the parents of child to dst.
func (e *edgeFile) parents(child uint64, dst []uint64) ([]uint64, error) {
	lo, hi := uint64(0), e.n
	for lo < hi {
		mid := lo + (hi-lo)/2
		r, err := e.read(mid)
		if err != nil {
			return dst, err
		}
		if r.child < child {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	for i := lo; i < e.n; i++ {
		r, err := e.read(i)
		if err != nil {
			return dst, err
		}
		if r.child != child {
			break
		}
		dst = append(dst, r.parent)
	}
	return dst, nil
}

func (e *edgeFile) close() error {
	name := e.f.Name()
	err := e.f.Close()
	os.Remove(name)
	return err
}
