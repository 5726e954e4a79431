package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/config"
	"finchat/internal/model"
)

func implementations(t *testing.T) map[string]Storage {
	t.Helper()
	stores := map[string]Storage{
		"memory": NewMemoryStorage(),
		"disk":   NewDiskStorage(t.TempDir(), 2),
		"sqlite": NewSQLiteStorage(t.TempDir()),
	}
	for name, s := range stores {
		require.NoError(t, s.Init(), name)
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func TestWatchlistRoundTrip(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetWatchlist("nobody")
			assert.ErrorIs(t, err, ErrWatchlistNotFound)

			now := time.Now().UTC().Truncate(time.Millisecond)
			require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: "u1", Symbols: []string{"INFY", "TCS"}, UpdatedAt: now}))

			w, err := s.GetWatchlist("u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"INFY", "TCS"}, w.Symbols)
			assert.True(t, now.Equal(w.UpdatedAt))

			w.Symbols[0] = "MUTATED"
			again, err := s.GetWatchlist("u1")
			require.NoError(t, err)
			assert.Equal(t, "INFY", again.Symbols[0], "callers get a copy")

			require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: "u1", Symbols: []string{}, UpdatedAt: now}))
			w, err = s.GetWatchlist("u1")
			require.NoError(t, err)
			assert.Empty(t, w.Symbols)

			assert.ErrorIs(t, s.SaveWatchlist(&model.Watchlist{}), ErrInvalidData)
		})
	}
}

func TestSettings(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetSetting("llm_api_key")
			assert.ErrorIs(t, err, ErrSettingNotFound)

			require.NoError(t, s.SetSetting("llm_api_key", "first"))
			require.NoError(t, s.SetSetting("llm_api_key", "second"))

			v, err := s.GetSetting("llm_api_key")
			require.NoError(t, err)
			assert.Equal(t, "second", v)

			assert.ErrorIs(t, s.SetSetting("", "x"), ErrInvalidData)
		})
	}
}

func TestDiskStoragePersists(t *testing.T) {
	dir := t.TempDir()
	s := NewDiskStorage(dir, 10)
	require.NoError(t, s.Init())
	require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: "../evil", Symbols: []string{"SBIN"}}))
	require.NoError(t, s.SetSetting("llm_api_key", "k"))
	require.NoError(t, s.Close())

	reopened := NewDiskStorage(dir, 10)
	require.NoError(t, reopened.Init())

	w, err := reopened.GetWatchlist("../evil")
	require.NoError(t, err)
	assert.Equal(t, []string{"SBIN"}, w.Symbols)

	v, err := reopened.GetSetting("llm_api_key")
	require.NoError(t, err)
	assert.Equal(t, "k", v)

	_, err = os.Stat(filepath.Join(dir, "watchlists", ".._evil.json"))
	assert.NoError(t, err, "user IDs cannot escape the data dir")
}

func TestDiskStorageCacheEviction(t *testing.T) {
	s := NewDiskStorage(t.TempDir(), 2)
	require.NoError(t, s.Init())

	for _, u := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: u, Symbols: []string{u}}))
	}
	assert.LessOrEqual(t, len(s.cache), 2)

	for _, u := range []string{"a", "b", "c", "d"} {
		w, err := s.GetWatchlist(u)
		require.NoError(t, err)
		assert.Equal(t, []string{u}, w.Symbols)
	}
}

func TestBackup(t *testing.T) {
	t.Run("disk", func(t *testing.T) {
		dir := t.TempDir()
		s := NewDiskStorage(dir, 10)
		require.NoError(t, s.Init())
		require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: "u1", Symbols: []string{"ITC"}}))
		require.NoError(t, s.SetSetting("k", "v"))

		require.NoError(t, s.Backup())

		matches, err := filepath.Glob(filepath.Join(dir, "backup", "backup_*", "watchlists", "u1.json"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("sqlite", func(t *testing.T) {
		dir := t.TempDir()
		s := NewSQLiteStorage(dir)
		require.NoError(t, s.Init())
		defer s.Close()
		require.NoError(t, s.SaveWatchlist(&model.Watchlist{UserID: "u1", Symbols: []string{"ITC"}}))

		require.NoError(t, s.Backup())

		matches, err := filepath.Glob(filepath.Join(dir, "backup", "finchat_*.db"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		copyStore := &SQLiteStorage{dataDir: dir, dbPath: matches[0]}
		require.NoError(t, copyStore.Init())
		defer copyStore.Close()
		w, err := copyStore.GetWatchlist("u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ITC"}, w.Symbols)
	})
}

func TestNewFallsBackToMemory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	s := New(config.StorageConfig{Type: "disk", DataDir: file})

	_, ok := s.(*MemoryStorage)
	assert.True(t, ok)
}
