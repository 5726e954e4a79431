package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finchat/internal/model"
	"finchat/internal/storage"
)

var ErrInvalidSymbol = errors.New("symbol cannot be empty")

type WatchlistService struct {
	mu    sync.Mutex
	store storage.Storage
}

func NewWatchlistService(store storage.Storage) *WatchlistService {
	return &WatchlistService{store: store}
}

// Get returns the user's watchlist, creating an empty one on first access.
func (s *WatchlistService) Get(userID string) (*model.Watchlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID)
}

func (s *WatchlistService) getLocked(userID string) (*model.Watchlist, error) {
	w, err := s.store.GetWatchlist(userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, storage.ErrWatchlistNotFound) {
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}

	w = &model.Watchlist{UserID: userID, Symbols: []string{}, UpdatedAt: time.Now().UTC()}
	if err := s.store.SaveWatchlist(w); err != nil {
		return nil, fmt.Errorf("failed to create watchlist: %w", err)
	}
	return w, nil
}

// Add appends the upper-cased symbol unless it is already present.
func (s *WatchlistService) Add(userID, symbol string) (*model.Watchlist, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getLocked(userID)
	if err != nil {
		return nil, err
	}
	for _, existing := range w.Symbols {
		if existing == symbol {
			return w, nil
		}
	}

	w.Symbols = append(w.Symbols, symbol)
	w.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveWatchlist(w); err != nil {
		return nil, fmt.Errorf("failed to update watchlist: %w", err)
	}
	return w, nil
}

// Remove drops the symbol; removing an absent symbol is not an error.
func (s *WatchlistService) Remove(userID, symbol string) (*model.Watchlist, error) {
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getLocked(userID)
	if err != nil {
		return nil, err
	}

	kept := w.Symbols[:0]
	for _, existing := range w.Symbols {
		if existing != symbol {
			kept = append(kept, existing)
		}
	}
	w.Symbols = kept
	w.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveWatchlist(w); err != nil {
		return nil, fmt.Errorf("failed to update watchlist: %w", err)
	}
	return w, nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
