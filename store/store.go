// Package store persists small namespaced values (scale cache, threshold,
// resilience bookkeeping) across runs.
package store

import (
	"context"
	"encoding/json"

	"go.trai.ch/zerr"
)

var (
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = zerr.New("store is closed")

	// ErrEmptyKey is returned when a namespace or key is blank.
	ErrEmptyKey = zerr.New("empty namespace or key")
)

// Namespaces used by the application.
const (
	NSScaleCache = "scale_cache"
	NSSettings   = "settings"
	NSResilience = "resilience"
)

// Store is a namespaced key-value store. Values are JSON encoded.
type Store interface {
	// Get decodes the value for ns/key into dst and reports whether it existed.
	Get(ctx context.Context, ns, key string, dst any) (bool, error)
	Put(ctx context.Context, ns, key string, v any) error
	Remove(ctx context.Context, ns, key string) error
	// Keys lists the keys of ns in lexical order.
	Keys(ctx context.Context, ns string) ([]string, error)
	Close() error
}

// GetFloat reads a float64, returning def when the key is absent.
func GetFloat(ctx context.Context, s Store, ns, key string, def float64) (float64, error) {
	var v float64
	ok, err := s.Get(ctx, ns, key, &v)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// Clear removes every key of ns.
func Clear(ctx context.Context, s Store, ns string) (int, error) {
	keys, err := s.Keys(ctx, ns)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := s.Remove(ctx, ns, k); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

func checkKey(ns, key string) error {
	if ns == "" || key == "" {
		return zerr.With(zerr.With(zerr.Wrap(ErrEmptyKey, "invalid store key"), "ns", ns), "key", key)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, "encode value")
	}
	return b, nil
}

func decode(b []byte, dst any) error {
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return zerr.Wrap(err, "decode value")
	}
	return nil
}
