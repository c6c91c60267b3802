package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/patrickmn/go-cache"
	bolt "go.etcd.io/bbolt"
)

// Bucket names and well-known keys.
const (
	LocalBucket        = "app-local"
	EnvironmentsBucket = "store-environments"

	EnvironmentsKey = "environments"
	TelemetryKey    = "telemetry"
)

// ErrEmptyKey is returned for operations on an empty key.
var ErrEmptyKey = errors.New("empty key")

// KV is the key/value contract every configuration store satisfies.
type KV interface {
	// Get returns the stored value and whether it exists.
	Get(key string) (any, bool, error)
	Set(key string, value any) error
	Delete(key string) error
}

// DB is the durable backing file.
type DB struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path and ensures the buckets exist.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{LocalBucket, EnvironmentsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store buckets: %w", err)
	}
	return &DB{db: db}, nil
}

// Bucket returns the durable KV for a bucket created by Open.
func (d *DB) Bucket(name string) *BoltKV {
	return &BoltKV{db: d.db, bucket: []byte(name)}
}

// Close releases the file lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// BoltKV is a KV stored in one bbolt bucket.
type BoltKV struct {
	db     *bolt.DB
	bucket []byte
}

func (b *BoltKV) Get(key string) (any, bool, error) {
	var v any
	ok, err := b.GetInto(key, &v)
	return v, ok, err
}

// GetInto decodes the stored value into dst.
func (b *BoltKV) GetInto(key string, dst any) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	var raw []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(b.bucket).Get([]byte(key)); v != nil {
			// bbolt memory is only valid inside the transaction
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if err := sonic.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", b.bucket, key, err)
	}
	return true, nil
}

func (b *BoltKV) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", b.bucket, key, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), raw)
	})
}

func (b *BoltKV) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

// Session is the in-memory KV. Entries never expire.
type Session struct {
	c *cache.Cache
}

// NewSession creates an empty session store.
func NewSession() *Session {
	return &Session{c: cache.New(cache.NoExpiration, 0)}
}

func (s *Session) Get(key string) (any, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	v, ok := s.c.Get(key)
	return v, ok, nil
}

func (s *Session) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.c.Set(key, value, cache.NoExpiration)
	return nil
}

func (s *Session) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.c.Delete(key)
	return nil
}
