package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/hailam/tablegen/internal/material"
)

// Storage keys
const (
	tablePrefix = "table/"
	keyLastRun  = "run/last"
)

// ErrNotFound is returned for configurations without a catalog entry.
var ErrNotFound = errors.New("not in catalog")

// TableRecord describes one generated table.
type TableRecord struct {
	ID              material.ID   `json:"id"`
	Name            string        `json:"name"`
	Size            uint64        `json:"size"`
	RawPath         string        `json:"raw_path"`
	RawChecksum     uint64        `json:"raw_checksum"`
	CompressedPath  string        `json:"compressed_path,omitempty"`
	CompressedBytes int64         `json:"compressed_bytes,omitempty"`
	Wins            uint64        `json:"wins"`
	Losses          uint64        `json:"losses"`
	Draws           uint64        `json:"draws"`
	MaxPly          int           `json:"max_ply"`
	Passes          int           `json:"passes"`
	Mode            string        `json:"mode"`
	Elapsed         time.Duration `json:"elapsed"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Compressed reports whether the table has a compressed file.
func (r TableRecord) Compressed() bool { return r.CompressedPath != "" }

// RunRecord describes the last generation run.
type RunRecord struct {
	MaxPieces int       `json:"max_pieces"`
	Workers   int       `json:"workers"`
	Mode      string    `json:"mode"`
	Tables    int       `json:"tables"`
	Computed  int       `json:"computed"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Options configures the catalog database.
type Options struct {
	// Dir is the database directory; ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   zerolog.Logger
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db *badger.DB
}

// NewStorage opens the catalog database.
func NewStorage(o Options) (*Storage, error) {
	opts := badger.DefaultOptions(o.Dir)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{o.Logger.With().Str("component", "badger").Logger()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func tableKey(id material.ID) []byte {
	return []byte(tablePrefix + id.String())
}

func (s *Storage) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Storage) get(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// PutTable stores a table record, replacing any previous one.
func (s *Storage) PutTable(rec TableRecord) error {
	if rec.Name == "" {
		rec.Name = rec.ID.Name()
	}
	return s.put(tableKey(rec.ID), rec)
}

// GetTable returns the record of a configuration or ErrNotFound.
func (s *Storage) GetTable(id material.ID) (TableRecord, error) {
	var rec TableRecord
	err := s.get(tableKey(id), &rec)
	return rec, err
}

// UpdateTable applies fn to the record of id in one transaction.
func (s *Storage) UpdateTable(id material.ID, fn func(*TableRecord)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec := TableRecord{ID: id, Name: id.Name()}
		item, err := txn.Get(tableKey(id))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
		}
		fn(&rec)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(tableKey(id), data)
	})
}

// ListTables returns every table record in id order.
func (s *Storage) ListTables() ([]TableRecord, error) {
	var out []TableRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tablePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec TableRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("catalog entry %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// DeleteTable removes the record of a configuration.
func (s *Storage) DeleteTable(id material.ID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(tableKey(id))
	})
}

// SaveRun records the state of a generation run.
func (s *Storage) SaveRun(run RunRecord) error {
	return s.put([]byte(keyLastRun), run)
}

// LastRun returns the last recorded run or ErrNotFound.
func (s *Storage) LastRun() (RunRecord, error) {
	var run RunRecord
	err := s.get([]byte(keyLastRun), &run)
	return run, err
}

// badgerLogger routes badger's messages into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.log.Trace().Msgf(f, v...) }
