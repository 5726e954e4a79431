package storage

import (
	"sync"

	"finchat/internal/model"
)

type MemoryStorage struct {
	watchlists map[string]*model.Watchlist
	settings   map[string]string
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		watchlists: make(map[string]*model.Watchlist),
		settings:   make(map[string]string),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) GetWatchlist(userID string) (*model.Watchlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, exists := m.watchlists[userID]
	if !exists {
		return nil, ErrWatchlistNotFound
	}
	return copyWatchlist(w), nil
}

func (m *MemoryStorage) SaveWatchlist(watchlist *model.Watchlist) error {
	if watchlist == nil || watchlist.UserID == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.watchlists[watchlist.UserID] = copyWatchlist(watchlist)
	return nil
}

func (m *MemoryStorage) GetSetting(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.settings[key]
	if !exists {
		return "", ErrSettingNotFound
	}
	return v, nil
}

func (m *MemoryStorage) SetSetting(key, value string) error {
	if key == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = value
	return nil
}

// copyWatchlist keeps callers from sharing the stored symbol slice.
func copyWatchlist(w *model.Watchlist) *model.Watchlist {
	c := *w
	c.Symbols = append([]string{}, w.Symbols...)
	return &c
}
