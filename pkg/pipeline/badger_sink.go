package pipeline

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSink stores batches in a Badger key-value store, keyed by object key
type BadgerSink struct {
	db *badger.DB
}

// OpenBadgerSink opens (or creates) a Badger store at dir. An empty dir opens
// an in-memory store.
func OpenBadgerSink(dir string) (*BadgerSink, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger sink: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

// Put implements Sink
func (s *BadgerSink) Put(_ context.Context, key string, body []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), body)
	})
}

// Get returns the batch stored at key
func (s *BadgerSink) Get(key string) ([]byte, error) {
	var body []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	return body, err
}

// Keys lists stored keys with the given prefix
func (s *BadgerSink) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Close releases the store
func (s *BadgerSink) Close() error {
	return s.db.Close()
}
