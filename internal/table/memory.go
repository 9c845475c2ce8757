package table

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

// Memory is a table held in a byte slice.
type Memory struct {
	data     []byte
	size     uint64
	readOnly bool
}

// NewMemory allocates a table of size indexes. The contents are zero (draws)
// until filled.
func NewMemory(size uint64) *Memory {
	return &Memory{data: make([]byte, FileSize(size)), size: size}
}

// Load reads a raw table file into memory. The file must hold exactly size
// entries.
func Load(path string, size uint64) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	if int64(len(data)) != FileSize(size) {
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrWrongSize, path, len(data), FileSize(size))
	}
	return &Memory{data: data, size: size, readOnly: true}, nil
}

func (m *Memory) Size() uint64 { return m.size }

func (m *Memory) Get(t index.Index, side board.Color) Score {
	return m.Pair(t)[side]
}

func (m *Memory) Pair(t index.Index) Pair {
	checkIndex(t, m.size)
	off := uint64(t) * EntrySize
	return unpack(m.data[off : off+EntrySize])
}

func (m *Memory) Set(t index.Index, side board.Color, s Score) {
	if m.readOnly {
		panic(ErrReadOnly)
	}
	checkIndex(t, m.size)
	checkScore(t, m.size, s)
	off := uint64(t) * EntrySize
	b := m.data[off : off+EntrySize]
	p := unpack(b)
	p[side] = s
	pack(b, p)
}

func (m *Memory) Fill(s Score) {
	if m.readOnly {
		panic(ErrReadOnly)
	}
	checkScore(0, m.size, s)
	if len(m.data) == 0 {
		return
	}
	pack(m.data, Pair{s, s})
	// Double the filled prefix until the slice is covered.
	for n := EntrySize; n < len(m.data); n *= 2 {
		copy(m.data[n:], m.data[:n])
	}
}

func (m *Memory) Save(path string) error {
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(m.data)
		return err
	})
}

// ReadOnly shares the underlying bytes with the returned reader.
func (m *Memory) ReadOnly() (Reader, error) {
	return &Memory{data: m.data, size: m.size, readOnly: true}, nil
}

// Bytes exposes the packed entries.
func (m *Memory) Bytes() []byte { return m.data }

func (m *Memory) Close() error { return nil }

// writeAtomic writes a file through a temporary sibling and renames it into
// place, so a crash never leaves a partial table under the final name.
func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("save table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("save table %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("save table %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save table %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save table %s: %w", path, err)
	}
	return nil
}
