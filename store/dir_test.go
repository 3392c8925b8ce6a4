package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore_RoundTrip(t *testing.T) {
	s, err := OpenDir(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("server:a")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("server:a", []byte("one")))
	require.NoError(t, s.Put("server:a", []byte("two")))

	got, err := s.Get("server:a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	require.NoError(t, s.Delete("server:a"))
	require.NoError(t, s.Delete("server:a"))
	_, err = s.Get("server:a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirStore_KeysWithSeparators(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put("server:b", []byte("{}")))
	require.NoError(t, s.Put("server:a/nested", []byte("{}")))
	require.NoError(t, s.Put("other:c", []byte("{}")))
	// Leftover temp files from an interrupted write are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempPrefix+"123"), nil, 0o644))

	keys, err := s.Keys("server:")
	require.NoError(t, err)
	assert.Equal(t, []string{"server:a/nested", "server:b"}, keys)

	all, err := s.Keys("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDirStore_FileNamesArePortable(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir)
	require.NoError(t, err)

	key := "server:0b1c-4f2a/x"
	require.NoError(t, s.Put(key, []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "server%3A0b1c-4f2a%2Fx", entries[0].Name())
	assert.NotContains(t, entries[0].Name(), ":")

	keys, err := s.Keys("server:")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}

func TestJSONHelpers(t *testing.T) {
	s, err := OpenDir(t.TempDir())
	require.NoError(t, err)

	type rec struct {
		Port int    `json:"port"`
		URL  string `json:"url"`
	}
	require.NoError(t, PutJSON(s, "server:x", rec{Port: 8080, URL: "http://localhost:8080"}))

	var got rec
	require.NoError(t, GetJSON(s, "server:x", &got))
	assert.Equal(t, rec{Port: 8080, URL: "http://localhost:8080"}, got)

	require.NoError(t, s.Put("server:bad", []byte("{")))
	assert.Error(t, GetJSON(s, "server:bad", &got))
	assert.ErrorIs(t, GetJSON(s, "server:missing", &got), ErrNotFound)
}
