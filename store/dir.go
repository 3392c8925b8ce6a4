package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const tempPrefix = ".tmp-"

// DirStore keeps one file per key in a directory. Keys are path-escaped into
// file names and every write goes through a temp file and a rename, so a
// reader never sees a partial value.
type DirStore struct {
	dir string
}

// OpenDir returns a DirStore rooted at dir, creating the directory if needed.
func OpenDir(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *DirStore) Put(key string, value []byte) error {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, s.path(key))
}

func (s *DirStore) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *DirStore) Keys(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		key, err := unescape(e.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *DirStore) Close() error {
	return nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.dir, escape(key))
}

// escape maps a key to a file name. PathEscape leaves ':' alone, which NTFS
// reads as an alternate data stream separator.
func escape(key string) string {
	return strings.ReplaceAll(url.PathEscape(key), ":", "%3A")
}

func unescape(name string) (string, error) {
	return url.PathUnescape(name)
}
