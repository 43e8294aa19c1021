// Package objectdb provides the persistent object-database backends: a
// Badger-backed local store, a git-object-backed store, and remote caches
// over HTTP, S3, and GCS. All backends share the index package's 43-byte
// key layout and versioned value encoding.
package objectdb

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/treescope/treescope/pkg/index"
)

// BadgerStore is the primary on-disk object database.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// One open handle per path per process; Badger holds an exclusive
// directory lock.
var (
	openMu     sync.Mutex
	openStores = map[string]*BadgerStore{}
)

// OpenBadger opens (or returns the already-open) store at dir. A zero ttl
// retains entries forever; expired entries are swept by background
// compaction.
func OpenBadger(dir string, ttl time.Duration) (*BadgerStore, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if store, ok := openStores[dir]; ok {
		return store, nil
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening object database at %s: %w", dir, err)
	}
	store := &BadgerStore{db: db, ttl: ttl}
	openStores[dir] = store
	return store, nil
}

func (s *BadgerStore) Get(hash index.ContentHash) (index.DependencyValue, bool, error) {
	key := index.EncodeCacheKey(index.ResolveFunctionID, hash)
	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("object database get %s: %w", hash, err)
	}
	value, err := index.DecodeValue(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("object database get %s: %w", hash, err)
	}
	return value, true, nil
}

func (s *BadgerStore) Insert(hash index.ContentHash, value index.DependencyValue) error {
	if existing, ok, err := s.Get(hash); err == nil && ok && !index.ValuesEqual(existing, value) {
		log.Printf("object database: conflicting insert under %s (non-deterministic dependency hashing?)", hash)
	}

	encoded, err := index.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("object database insert %s: %w", hash, err)
	}
	key := index.EncodeCacheKey(index.ResolveFunctionID, hash)
	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, encoded)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("object database insert %s: %w", hash, err)
	}
	return nil
}

// Clear drops every entry. Correct but not optimized.
func (s *BadgerStore) Clear() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clearing object database: %w", err)
	}
	return nil
}

// EstimateEntryCount walks the keyspace; used by cache stats reporting.
func (s *BadgerStore) EstimateEntryCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting object database entries: %w", err)
	}
	return count, nil
}
