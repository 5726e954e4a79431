package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"finchat/internal/config"
	"finchat/internal/model"
	"finchat/internal/storage"
	"finchat/pkg/logger"
)

const apiKeySetting = "llm_api_key"

var ErrEmptyKey = errors.New("API key cannot be empty")

// SettingsService manages the LLM API key. Keys saved through it are
// persisted and take precedence over the configured one at startup.
type SettingsService struct {
	mu    sync.Mutex
	store storage.Storage
	cfg   *config.Config
	chat  *ChatService
}

func NewSettingsService(store storage.Storage, cfg *config.Config, chat *ChatService) *SettingsService {
	return &SettingsService{store: store, cfg: cfg, chat: chat}
}

// LoadStoredKey applies a previously saved key to the configuration. It must
// run before the chat service is created or be followed by a reload.
func LoadStoredKey(store storage.Storage, cfg *config.Config) {
	key, err := store.GetSetting(apiKeySetting)
	if err != nil {
		if !errors.Is(err, storage.ErrSettingNotFound) {
			logger.Errorf("Failed to read stored API key: %v", err)
		}
		return
	}
	cfg.SetAPIKey(key)
	logger.Infof("Using stored API key %s", model.MaskKey(key))
}

func (s *SettingsService) KeyStatus() model.KeyStatus {
	s.mu.Lock()
	key := s.cfg.APIKey()
	s.mu.Unlock()

	if key == "" {
		return model.KeyStatus{}
	}
	masked := model.MaskKey(key)
	return model.KeyStatus{IsSet: true, MaskedKey: &masked}
}

func (s *SettingsService) UpdateKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetSetting(apiKeySetting, key); err != nil {
		return fmt.Errorf("save API key: %w", err)
	}
	s.cfg.SetAPIKey(key)

	if err := s.chat.Reload(ctx); err != nil {
		logger.Warnf("API key saved but model reload failed: %v", err)
	} else {
		logger.Info("API key updated, model reloaded")
	}
	return nil
}
