package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"finchat/internal/config"
	"finchat/pkg/logger"
)

// UnavailableReply is streamed instead of a model answer when no provider
// could be created.
const UnavailableReply = "I am unable to function because the LLM service is not available. Please check API keys."

var (
	ErrNoAPIKey            = errors.New("no API key configured")
	ErrUnsupportedProvider = errors.New("unsupported model provider")
)

// NewChatModel creates the chat model selected by cfg.Provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (einoModel.BaseChatModel, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Model.Provider, ErrNoAPIKey)
	}

	switch cfg.Model.Provider {
	case "doubao":
		return createDoubaoModel(ctx, cfg.Doubao)
	case "openai":
		return createOpenAIModel(ctx, cfg.OpenAI)
	case "qwen":
		return createQwenModel(ctx, cfg.Qwen)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Model.Provider)
	}
}

func createDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	logger.Infof("Using Doubao model %s, key %s", cfg.Model, MaskKey(cfg.APIKey))

	arkCfg := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if cfg.Timeout > 0 {
		arkCfg.Timeout = &cfg.Timeout
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create doubao model: %w", err)
	}
	return chatModel, nil
}

func createOpenAIModel(ctx context.Context, cfg config.OpenAIConfig) (einoModel.BaseChatModel, error) {
	logger.Infof("Using OpenAI model %s, key %s", cfg.Model, MaskKey(cfg.APIKey))

	chatModel, err := newOpenAIChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.BaseChatModel, error) {
	logger.Infof("Using Qwen model %s at %s, key %s", cfg.Model, cfg.BaseURL, MaskKey(cfg.APIKey))

	// HTTP client that logs request bodies
	httpClient := &http.Client{
		Transport: NewQwenDebugTransport(nil, cfg.DebugRequest),
		Timeout:   cfg.Timeout,
	}

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &cfg.MaxTokens,
		Temperature: &cfg.Temperature,
		TopP:        &cfg.TopP,
		Timeout:     cfg.Timeout,
		HTTPClient:  httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}

// unavailableModel answers every request with UnavailableReply.
type unavailableModel struct{}

// Unavailable returns a model that only streams UnavailableReply.
func Unavailable() einoModel.BaseChatModel {
	return unavailableModel{}
}

func (unavailableModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(UnavailableReply, nil), nil
}

func (unavailableModel) Stream(ctx context.Context, _ []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(UnavailableReply, nil)}), nil
}

// MaskKey shows the first and last four characters of keys longer than
// eight characters and hides shorter ones completely.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "***"
}
