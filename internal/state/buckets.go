package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Standard bucket names
const (
	BucketClients  = "clients"  // roster client records keyed by client ID
	BucketServer   = "server"   // server keypair and interface address
	BucketSessions = "sessions" // remembered operator sessions
)

// Bucket provides typed JSON access to one bucket.
type Bucket[T any] struct {
	store Store
	name  string
}

// NewBucket creates a typed accessor, creating the bucket if it is missing.
func NewBucket[T any](store Store, name string) (*Bucket[T], error) {
	if err := store.CreateBucket(name); err != nil && !errors.Is(err, ErrBucketExists) {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return &Bucket[T]{store: store, name: name}, nil
}

// Name returns the bucket name.
func (b *Bucket[T]) Name() string { return b.name }

// Get retrieves a value by key.
func (b *Bucket[T]) Get(key string) (*T, error) {
	var v T
	if err := b.store.GetJSON(b.name, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Put stores v without expiry.
func (b *Bucket[T]) Put(key string, v *T) error {
	return b.store.SetJSON(b.name, key, v)
}

// PutWithTTL stores v until ttl elapses.
func (b *Bucket[T]) PutWithTTL(key string, v *T, ttl time.Duration) error {
	return b.store.SetJSONWithTTL(b.name, key, v, ttl)
}

// Delete removes a key. Deleting a missing key is not an error.
func (b *Bucket[T]) Delete(key string) error {
	if err := b.store.Delete(b.name, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// List returns every live value keyed by its key. Undecodable entries are skipped.
func (b *Bucket[T]) List() (map[string]*T, error) {
	data, err := b.store.List(b.name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*T, len(data))
	for k, raw := range data {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[k] = &v
	}
	return out, nil
}

// Replace swaps the bucket's contents for values.
func (b *Bucket[T]) Replace(values map[string]*T) error {
	entries, err := b.Encode(values)
	if err != nil {
		return err
	}
	return b.store.Replace(b.name, entries)
}

// Encode marshals values into raw entries suitable for Store.ReplaceBuckets.
func (b *Bucket[T]) Encode(values map[string]*T) (map[string][]byte, error) {
	entries := make(map[string][]byte, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%s: %w", b.name, k, err)
		}
		entries[k] = raw
	}
	return entries, nil
}
