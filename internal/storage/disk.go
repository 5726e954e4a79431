package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"finchat/internal/model"
	"finchat/pkg/logger"
)

var safeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// DiskStorage 每个自选股列表一个 JSON 文件，设置单独一个文件，
// 自选股文件前有一层内存缓存
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.Watchlist
	cacheSize int
	settings  map[string]string
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Watchlist),
		cacheSize: cacheSize,
		settings:  make(map[string]string),
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadSettings(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "watchlists"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) settingsPath() string {
	return filepath.Join(d.dataDir, "settings.json")
}

func (d *DiskStorage) watchlistPath(userID string) string {
	return filepath.Join(d.dataDir, "watchlists", safeName.ReplaceAllString(userID, "_")+".json")
}

func (d *DiskStorage) loadSettings() error {
	data, err := os.ReadFile(d.settingsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &d.settings)
}

// writeJSON 先写临时文件再重命名，保证文件完整
func writeJSON(path string, v interface{}) error {
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

func (d *DiskStorage) GetWatchlist(userID string) (*model.Watchlist, error) {
	d.mu.RLock()
	if w, ok := d.cache[userID]; ok {
		d.mu.RUnlock()
		return copyWatchlist(w), nil
	}
	d.mu.RUnlock()

	data, err := os.ReadFile(d.watchlistPath(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrWatchlistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	var w model.Watchlist
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	d.mu.Lock()
	d.evictCache()
	d.cache[userID] = &w
	d.mu.Unlock()

	return copyWatchlist(&w), nil
}

func (d *DiskStorage) SaveWatchlist(watchlist *model.Watchlist) error {
	if watchlist == nil || watchlist.UserID == "" {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeJSON(d.watchlistPath(watchlist.UserID), watchlist); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.evictCache()
	d.cache[watchlist.UserID] = copyWatchlist(watchlist)
	return nil
}

func (d *DiskStorage) GetSetting(key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.settings[key]
	if !ok {
		return "", ErrSettingNotFound
	}
	return v, nil
}

func (d *DiskStorage) SetSetting(key, value string) error {
	if key == "" {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, had := d.settings[key]
	d.settings[key] = value
	if err := writeJSON(d.settingsPath(), d.settings); err != nil {
		if had {
			d.settings[key] = prev
		} else {
			delete(d.settings, key)
		}
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

// evictCache 缓存满时随机淘汰一项，调用方需持有写锁
func (d *DiskStorage) evictCache() {
	if len(d.cache) < d.cacheSize {
		return
	}
	for id := range d.cache {
		delete(d.cache, id)
		return
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*model.Watchlist)
	return nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))
	dstDir := filepath.Join(backupDir, "watchlists")
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := copyDir(filepath.Join(d.dataDir, "watchlists"), dstDir); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if _, err := os.Stat(d.settingsPath()); err == nil {
		if err := copyFile(d.settingsPath(), filepath.Join(backupDir, "settings.json")); err != nil {
			return fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
