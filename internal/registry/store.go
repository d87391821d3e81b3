package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hammamikhairi/omnis/internal/logger"
)

// Record is one stored identity encoding. A label may have several.
type Record struct {
	Name      string    `msgpack:"name"`
	Encoding  []float32 `msgpack:"enc"`
	CreatedAt int64     `msgpack:"ts"` // unix nanos
}

// key orders records by registration time so Load is stable.
func (r Record) key() []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", recordPrefix, r.CreatedAt, r.Name))
}

const recordPrefix = "face/"

// Store persists records.
type Store interface {
	Put(ctx context.Context, rec Record) error
	// Replace removes every record named rec.Name and stores rec in
	// their place, reporting how many were removed.
	Replace(ctx context.Context, rec Record) (removed int, err error)
	// List returns records in registration order.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// ── Badger ───────────────────────────────────────────────────────

// BadgerStore keeps records in BadgerDB, msgpack-encoded.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) the store under dir. An empty dir runs
// in memory.
func OpenBadger(dir string, log *logger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log.Named("badger")})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening registry at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Put writes one record.
func (s *BadgerStore) Put(_ context.Context, rec Record) error {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rec.key(), data)
	})
}

// Replace swaps the label's records for rec in one transaction.
func (s *BadgerStore) Replace(ctx context.Context, rec Record) (int, error) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encoding record: %w", err)
	}
	removed := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				it.Close()
				return err
			}
			var old Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &old)
			})
			if err != nil {
				it.Close()
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			if old.Name == rec.Name {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return txn.Set(rec.key(), data)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// List returns every record in key order.
func (s *BadgerStore) List(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var rec Record
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// badgerLogger routes badger output through the kiosk logger, dropping
// its info chatter.
type badgerLogger struct{ log *logger.Logger }

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debug(f, v...) }
func (l badgerLogger) Debugf(string, ...interface{})       {}

// ── Memory ───────────────────────────────────────────────────────

// MemoryStore keeps records in a slice. Used by tests and when the
// registry should not touch disk.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Put appends a record.
func (s *MemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store closed")
	}
	rec.Encoding = append([]float32(nil), rec.Encoding...)
	s.records = append(s.records, rec)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].CreatedAt < s.records[j].CreatedAt
	})
	return nil
}

// Replace drops the label's records and appends rec.
func (s *MemoryStore) Replace(_ context.Context, rec Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("store closed")
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Name != rec.Name {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	rec.Encoding = append([]float32(nil), rec.Encoding...)
	s.records = append(kept, rec)
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].CreatedAt < s.records[j].CreatedAt
	})
	return removed, nil
}

// List returns a copy of every record.
func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
