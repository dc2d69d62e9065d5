// Package history keeps a Badger-backed record of applied thread budgets.
//
// Records are keyed by UUIDv7, whose string form sorts by creation time,
// so listing newest first is a reverse prefix scan.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/output"
)

var logger = logging.Get("history")

const (
	prefixRecord = "r:"
	schemaKey    = "m:__schema__"
)

// CurrentSchemaVersion is the record layout written by this package.
const CurrentSchemaVersion = 1

var (
	// ErrNotFound is returned when no record matches an ID.
	ErrNotFound = errors.New("history record not found")

	// ErrAmbiguous is returned when an ID prefix matches more than one record.
	ErrAmbiguous = errors.New("history record id is ambiguous")
)

// Schema holds database schema information.
type Schema struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the history storage backed by Badger DB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store in the directory path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	return open(opts)
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	s := &Store{db: db}
	if s.GetSchema() == nil {
		if err := s.SetSchema(&Schema{Version: CurrentSchemaVersion, UpdatedAt: time.Now()}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("writing history schema: %w", err)
		}
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns a new time-ordered record ID.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating record id: %w", err)
	}
	return id.String(), nil
}

// Append stores r, assigning an ID first if it has none.
func (s *Store) Append(r *output.Report) error {
	if r.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		r.ID = id
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", r.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixRecord+r.ID), data)
	})
	if err != nil {
		return fmt.Errorf("writing record %s: %w", r.ID, err)
	}

	logger.Debug("recorded thread budget", "id", r.ID, "threads", r.ThreadBudget)
	return nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]*output.Report, error) {
	var records []*output.Report

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the greatest key <= seek.
		seek := append([]byte(prefixRecord), 0xff)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}

			r, err := decode(it.Item())
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}

	return records, nil
}

// Get returns the record whose ID is id or, failing that, the single
// record whose ID starts with id.
func (s *Store) Get(id string) (*output.Report, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	var record *output.Report

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRecord + id))
		if err == nil {
			record, err = decode(item)
			return err
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRecord + id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			if record != nil {
				return fmt.Errorf("%w: %s", ErrAmbiguous, id)
			}
			if record, err = decode(it.Item()); err != nil {
				return err
			}
		}
		if record == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Clean deletes records applied before cutoff and returns how many were removed.
func (s *Store) Clean(cutoff time.Time) (int, error) {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRecord)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			r, err := decode(it.Item())
			if err != nil {
				return err
			}
			if r.AppliedAt.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning history: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("deleting record: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}

	logger.Info("cleaned history", "removed", len(stale), "cutoff", cutoff.Format(time.RFC3339))
	return len(stale), nil
}

// GetSchema returns the stored schema, or nil if none is set.
func (s *Store) GetSchema() *Schema {
	var schema *Schema

	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			schema = &Schema{}
			return json.Unmarshal(val, schema)
		})
	})

	return schema
}

// SetSchema stores the schema version.
func (s *Store) SetSchema(schema *Schema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(schemaKey), data)
	})
}

func decode(item *badger.Item) (*output.Report, error) {
	var r output.Report
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", item.Key(), err)
	}
	return &r, nil
}
