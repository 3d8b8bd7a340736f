package embcache

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Badger is a Cache backed by BadgerDB v4. Values are msgpack-encoded
// float32 slices.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures the BadgerDB cache.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	// Useful for testing with a real badger engine.
	InMemory bool

	// Logger sets the badger logger. If nil, badger output is silenced.
	Logger badger.Logger
}

// NewBadger creates a BadgerDB-backed cache.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("embcache: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(opts.Logger) // nil disables badger logging
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("embcache: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]float32, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var emb []float32
	if err := msgpack.Unmarshal(val, &emb); err != nil {
		return nil, fmt.Errorf("embcache: decode %s: %w", key, err)
	}
	return emb, nil
}

func (b *Badger) Put(_ context.Context, key string, embedding []float32) error {
	val, err := msgpack.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("embcache: encode %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}
