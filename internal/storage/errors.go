package storage

import "errors"

var (
	ErrWatchlistNotFound = errors.New("watchlist not found")
	ErrSettingNotFound   = errors.New("setting not found")
	ErrInvalidData       = errors.New("invalid data")
	ErrStorageInit       = errors.New("storage initialization failed")
	ErrFileOperation     = errors.New("file operation failed")
)
