package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"finchat/internal/model"
	"finchat/pkg/logger"
)

// SQLiteStorage keeps watchlists and settings in a single SQLite file.
type SQLiteStorage struct {
	dataDir string
	dbPath  string
	db      *sql.DB
}

func NewSQLiteStorage(dataDir string) *SQLiteStorage {
	return &SQLiteStorage{
		dataDir: dataDir,
		dbPath:  filepath.Join(dataDir, "finchat.db"),
	}
}

func (s *SQLiteStorage) Init() error {
	if err := os.MkdirAll(filepath.Join(s.dataDir, "backup"), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("%w: open db: %v", ErrStorageInit, err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("%w: set WAL mode: %v", ErrStorageInit, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("%w: migrate: %v", ErrStorageInit, err)
	}

	s.db = db
	logger.Infof("SQLite storage initialized at %s", s.dbPath)
	return nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS watchlists (
			user_id    TEXT PRIMARY KEY,
			symbols    TEXT NOT NULL DEFAULT '[]',
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backup writes a consistent copy of the database with VACUUM INTO.
func (s *SQLiteStorage) Backup() error {
	target := filepath.Join(s.dataDir, "backup", fmt.Sprintf("finchat_%d.db", time.Now().UnixNano()))
	if _, err := s.db.Exec("VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	logger.Infof("Backup completed: %s", target)
	return nil
}

func (s *SQLiteStorage) GetWatchlist(userID string) (*model.Watchlist, error) {
	var symbols, updated string
	err := s.db.QueryRow("SELECT symbols, updated_at FROM watchlists WHERE user_id = ?", userID).Scan(&symbols, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWatchlistNotFound
	}
	if err != nil {
		return nil, err
	}

	w := &model.Watchlist{UserID: userID}
	if err := json.Unmarshal([]byte(symbols), &w.Symbols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if w.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return w, nil
}

func (s *SQLiteStorage) SaveWatchlist(watchlist *model.Watchlist) error {
	if watchlist == nil || watchlist.UserID == "" {
		return ErrInvalidData
	}
	symbols := watchlist.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	data, err := json.Marshal(symbols)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO watchlists (user_id, symbols, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET symbols = excluded.symbols, updated_at = excluded.updated_at`,
		watchlist.UserID, string(data), watchlist.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStorage) GetSetting(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	return v, err
}

func (s *SQLiteStorage) SetSetting(key, value string) error {
	if key == "" {
		return ErrInvalidData
	}
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
