package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a small persistent key/value store. Server handles are kept here
// so they survive the MCP session that created them.
type Store interface {
	io.Closer

	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put creates or replaces the value for key.
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys returns every key starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
}

// GetJSON decodes the value stored at key into v.
func GetJSON(s Store, key string, v any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(key, raw)
}
