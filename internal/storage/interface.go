package storage

import (
	"finchat/internal/model"
)

type Storage interface {
	// 自选股
	GetWatchlist(userID string) (*model.Watchlist, error)
	SaveWatchlist(watchlist *model.Watchlist) error

	// 设置
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error

	// 存储管理
	Init() error
	Close() error
	Backup() error
}
