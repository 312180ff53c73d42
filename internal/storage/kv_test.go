package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Token string `msgpack:"token"`
	Count int    `msgpack:"count"`
}

func TestKVImplementations(t *testing.T) {
	fileKV, err := NewFileKV(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	stores := map[string]KV{
		"file":   fileKV,
		"memory": NewMemoryKV(),
	}

	for name, kv := range stores {
		t.Run(name, func(t *testing.T) {
			var r record
			assert.ErrorIs(t, kv.Get("session", &r), ErrNotFound)

			require.NoError(t, kv.Put("session", record{Token: "abc", Count: 1}))
			require.NoError(t, kv.Get("session", &r))
			assert.Equal(t, record{Token: "abc", Count: 1}, r)

			require.NoError(t, kv.Put("session", record{Token: "def", Count: 2}))
			require.NoError(t, kv.Get("session", &r))
			assert.Equal(t, "def", r.Token)

			require.NoError(t, kv.Delete("session"))
			require.NoError(t, kv.Delete("session"))
			assert.ErrorIs(t, kv.Get("session", &r), ErrNotFound)
		})
	}
}

func TestFileKV_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	require.NoError(t, kv.Put("session", record{Token: "abc"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session.msgpack", entries[0].Name())
}

func TestFileKV_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.msgpack"), []byte{0xc1}, 0600))

	var r record
	err = kv.Get("session", &r)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
