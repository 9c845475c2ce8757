package table

import (
	"fmt"
	"path/filepath"

	"github.com/pbnjay/memory"

	"github.com/hailam/tablegen/internal/material"
)

// Arena holds the finished tables of a run. Tables in an arena are read-only
// and shared; the arena itself is guarded by its owner (the scheduler lock),
// and workers take a Clone to read without locking.
type Arena map[material.ID]Reader

// Clone returns a copy of the arena sharing the same readers.
func (a Arena) Clone() Arena {
	c := make(Arena, len(a))
	for id, r := range a {
		c[id] = r
	}
	return c
}

// Lookup returns the table of a configuration.
func (a Arena) Lookup(id material.ID) (Reader, bool) {
	r, ok := a[id]
	return r, ok
}

// Close closes every table in the arena.
func (a Arena) Close() error {
	var first error
	for id, r := range a {
		if err := r.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", id, err)
		}
	}
	return first
}

// Kind says where a table under construction lives.
type Kind int

const (
	InMemory Kind = iota
	OnDisk
)

func (k Kind) String() string {
	if k == OnDisk {
		return "disk"
	}
	return "memory"
}

// Choose picks memory when every worker's table fits in half of the
// machine's RAM, disk otherwise.
func Choose(size uint64, workers int) Kind {
	total := memory.TotalMemory()
	if total == 0 {
		return InMemory
	}
	need := uint64(FileSize(size)) * uint64(max(workers, 1))
	if need <= total/2 {
		return InMemory
	}
	return OnDisk
}

// Create makes a table for configuration id of the given kind. Disk tables
// are created as a working file in dir.
func Create(kind Kind, dir string, id material.ID, size uint64) (Store, error) {
	if kind == InMemory {
		return NewMemory(size), nil
	}
	return NewDisk(filepath.Join(dir, id.FileName()+".work"), size)
}
