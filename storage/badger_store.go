package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// BadgerStore implements Store using BadgerDB, for deployments where the
// supported-quote cache and resolved-spender cache should survive a
// restart instead of rebuilding cold.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens (or creates) a BadgerDB database rooted at path
// and starts its background value-log compaction.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // badger is noisy by default; the gateway has its own logger
	opts.SyncWrites = true // cache entries must survive a crash, not just a clean restart

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	log.Info().Str("path", path).Msg("persistent store opened")

	// Reclaim space from deleted/expired entries (the quote cache's TTL'd
	// keys) periodically rather than on every write.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			_ = db.RunValueLogGC(0.5)
		}
	}()

	return &BadgerStore{
		db:   db,
		path: path,
	}, nil
}

// Close flushes and closes the underlying database.
func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

// Set stores a key-value pair with no expiry.
func (bs *BadgerStore) Set(key string, value []byte) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetWithTTL stores a key-value pair that BadgerDB expires after ttl.
func (bs *BadgerStore) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// Get retrieves a value by key.
func (bs *BadgerStore) Get(key string) ([]byte, bool, error) {
	var result []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// Delete removes a key-value pair.
func (bs *BadgerStore) Delete(key string) error {
	return bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every key currently stored under prefix.
func (bs *BadgerStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

// Stats reports on-disk usage, for operational dashboards and the
// admin diagnostics endpoint.
func (bs *BadgerStore) Stats() map[string]interface{} {
	lsm, vlog := bs.db.Size()

	return map[string]interface{}{
		"type":       "badger",
		"path":       bs.path,
		"lsm_size":   lsm,
		"vlog_size":  vlog,
		"total_size": lsm + vlog,
	}
}

// Clear drops every key in the store. Used by tests and by operators
// resetting a corrupted cache.
func (bs *BadgerStore) Clear() error {
	return bs.db.DropAll()
}

// Backup streams a full database snapshot to path, for operators taking
// a point-in-time copy before a risky migration.
func (bs *BadgerStore) Backup(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = bs.db.Backup(f, 0)
	return err
}
