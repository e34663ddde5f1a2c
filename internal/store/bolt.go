package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var blobBucket = []byte("blobs")

// Bolt stores documents in a single bbolt bucket.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the database file at path.
func NewBolt(path string) (*Bolt, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt dir: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Load returns a copy of the value stored under key.
func (b *Bolt) Load(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(blobBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Save replaces the value under key in one transaction.
func (b *Bolt) Save(_ context.Context, key string, data []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(blobBucket).Put([]byte(key), data)
	})
}

// Ping fails once the database has been closed.
func (b *Bolt) Ping(context.Context) error {
	if b == nil || b.db == nil {
		return errors.New("bolt not open")
	}
	return b.db.View(func(*bbolt.Tx) error { return nil })
}

// Close closes the database file.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
