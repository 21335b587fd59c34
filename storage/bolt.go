package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const defaultNamespace = "default"

// BoltBackend stores every namespace in its own bucket of a single file.
type BoltBackend struct {
	db  *bolt.DB
	now func() time.Time
}

func OpenBolt(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file %s: %w", path, err)
	}
	return &BoltBackend{db: db, now: time.Now}, nil
}

func (b *BoltBackend) Namespace(name string) Store {
	if name == "" {
		name = defaultNamespace
	}
	return &boltStore{backend: b, bucket: []byte(name)}
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// envelope carries the write time and lifetime in milliseconds next to the value.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Expiry    int64           `json:"expiry,omitempty"`
}

func (e envelope) expired(now time.Time) bool {
	return e.Expiry > 0 && now.UnixMilli() > e.Timestamp+e.Expiry
}

type boltStore struct {
	backend *BoltBackend
	bucket  []byte
}

func (s *boltStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding value of %s: %w", key, err)
	}

	env := envelope{
		Value:     raw,
		Timestamp: s.backend.now().UnixMilli(),
	}
	if ttl > 0 {
		env.Expiry = ttl.Milliseconds()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope of %s: %w", key, err)
	}

	return s.backend.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (s *boltStore) Get(ctx context.Context, key string, dst any) error {
	var env envelope
	err := s.backend.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}

	if env.expired(s.backend.now()) {
		if err := s.Remove(ctx, key); err != nil {
			return fmt.Errorf("removing expired %s: %w", key, err)
		}
		return ErrNotFound
	}

	if err := json.Unmarshal(env.Value, dst); err != nil {
		return fmt.Errorf("decoding value of %s: %w", key, err)
	}
	return nil
}

// Remove is a no-op for an absent key.
func (s *boltStore) Remove(ctx context.Context, key string) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (s *boltStore) Clear(ctx context.Context) error {
	return s.backend.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(s.bucket)
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
