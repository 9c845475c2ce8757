package table

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

// Disk is a table kept in a file and accessed with ReadAt/WriteAt. It is
// used for tables that do not fit in memory.
type Disk struct {
	f        *os.File
	path     string
	size     uint64
	readOnly bool
}

// NewDisk creates (or truncates) a file-backed table of size indexes.
func NewDisk(path string, size uint64) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create disk table: %w", err)
	}
	if err := f.Truncate(FileSize(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("create disk table: %w", err)
	}
	return &Disk{f: f, path: path, size: size}, nil
}

// OpenDisk opens an existing raw table file for reading.
func OpenDisk(path string, size uint64) (*Disk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open disk table: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open disk table: %w", err)
	}
	if info.Size() != FileSize(size) {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrWrongSize, path, info.Size(), FileSize(size))
	}
	return &Disk{f: f, path: path, size: size, readOnly: true}, nil
}

func (d *Disk) Size() uint64 { return d.size }

// Path returns the backing file.
func (d *Disk) Path() string { return d.path }

func (d *Disk) Get(t index.Index, side board.Color) Score {
	return d.Pair(t)[side]
}

func (d *Disk) Pair(t index.Index) Pair {
	checkIndex(t, d.size)
	var b [EntrySize]byte
	if _, err := d.f.ReadAt(b[:], int64(t)*EntrySize); err != nil {
		panic(fmt.Errorf("read %s at %d: %w", d.path, t, err))
	}
	return unpack(b[:])
}

func (d *Disk) Set(t index.Index, side board.Color, s Score) {
	if d.readOnly {
		panic(ErrReadOnly)
	}
	checkIndex(t, d.size)
	checkScore(t, d.size, s)
	p := d.Pair(t)
	p[side] = s
	var b [EntrySize]byte
	pack(b[:], p)
	if _, err := d.f.WriteAt(b[:], int64(t)*EntrySize); err != nil {
		panic(fmt.Errorf("write %s at %d: %w", d.path, t, err))
	}
}

func (d *Disk) Fill(s Score) {
	if d.readOnly {
		panic(ErrReadOnly)
	}
	checkScore(0, d.size, s)
	chunk := make([]byte, 1<<20-(1<<20)%EntrySize)
	for i := 0; i < len(chunk); i += EntrySize {
		pack(chunk[i:], Pair{s, s})
	}
	total := FileSize(d.size)
	for off := int64(0); off < total; off += int64(len(chunk)) {
		n := min(int64(len(chunk)), total-off)
		if _, err := d.f.WriteAt(chunk[:n], off); err != nil {
			panic(fmt.Errorf("fill %s: %w", d.path, err))
		}
	}
}

func (d *Disk) Save(path string) error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("save table %s: %w", path, err)
	}
	return writeAtomic(path, func(f *os.File) error {
		w := bufio.NewWriterSize(f, 1<<20)
		if _, err := io.Copy(w, io.NewSectionReader(d.f, 0, FileSize(d.size))); err != nil {
			return err
		}
		return w.Flush()
	})
}

// ReadOnly opens an independent read handle on the backing file.
func (d *Disk) ReadOnly() (Reader, error) {
	if err := d.f.Sync(); err != nil && !d.readOnly {
		return nil, fmt.Errorf("sync %s: %w", d.path, err)
	}
	return OpenDisk(d.path, d.size)
}

func (d *Disk) Close() error {
	return d.f.Close()
}
