package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"finchat/internal/config"
	"finchat/internal/model"
	"finchat/pkg/logger"
)

const defaultSystemPrompt = "You are an AI financial assistant. Answer questions about stock prices, news and market analysis concisely, using markdown."

type ChatService struct {
	cfg        *config.Config
	template   prompt.ChatTemplate
	maxHistory int
	tools      []tool.BaseTool

	mu        sync.RWMutex
	chat      einoModel.BaseChatModel
	agent     compose.Runnable[map[string]any, *schema.Message]
	available bool
}

// NewChatService builds the service from cfg. When tools are given and the
// model supports tool calling, answers go through the model-plus-tools agent.
func NewChatService(ctx context.Context, cfg *config.Config, toolList ...tool.BaseTool) *ChatService {
	s := &ChatService{
		cfg:        cfg,
		template:   newChatPrompt(cfg.Agent.SystemPrompt),
		maxHistory: cfg.Agent.MaxHistoryMessages,
		tools:      toolList,
	}
	s.Reload(ctx)
	return s
}

func newChatPrompt(systemPrompt string) prompt.ChatTemplate {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	// escape braces so a configured prompt is not read as FString variables
	systemPrompt = strings.NewReplacer("{", "{{", "}", "}}").Replace(systemPrompt)

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder("message_histories", true),
		schema.UserMessage("{user_query}"),
	)
}

// Reload rebuilds the model from the current configuration. On failure the
// service keeps answering with model.UnavailableReply.
func (s *ChatService) Reload(ctx context.Context) error {
	m, err := model.NewChatModel(ctx, s.cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logger.Warnf("LLM service is not available: %v", err)
		s.chat = model.Unavailable()
		s.agent = nil
		s.available = false
		return err
	}
	s.chat = m
	s.agent = s.buildAgent(ctx, m)
	s.available = true
	return nil
}

// SetModel replaces the model in use.
func (s *ChatService) SetModel(m einoModel.BaseChatModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = m
	s.agent = s.buildAgent(context.Background(), m)
	s.available = true
}

// buildAgent returns nil when there are no tools or m cannot call them; the
// service then streams the plain prompt.
func (s *ChatService) buildAgent(ctx context.Context, m einoModel.BaseChatModel) compose.Runnable[map[string]any, *schema.Message] {
	if len(s.tools) == 0 {
		return nil
	}
	tcm, ok := m.(einoModel.ToolCallingChatModel)
	if !ok {
		logger.Warnf("model %T does not support tool calling, tools disabled", m)
		return nil
	}

	agent, err := composeAgent(ctx, s.template, tcm, s.tools, s.cfg.Agent.MaxSteps)
	if err != nil {
		logger.Errorf("Failed to compose agent, tools disabled: %v", err)
		return nil
	}
	return agent
}

func (s *ChatService) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// StreamChat streams the answer to message. Chunks with a Status report tool
// progress; the others carry answer text. Both channels are closed when the
// answer ends; errChan is closed first, so a reader that sees respChan closed
// can still drain a pending error from errChan.
func (s *ChatService) StreamChat(ctx context.Context, message string, history []model.HistoryMessage) (<-chan model.StreamChunk, <-chan error) {
	respChan := make(chan model.StreamChunk, 100)
	errChan := make(chan error, 1)

	s.mu.RLock()
	chat, agent := s.chat, s.agent
	s.mu.RUnlock()

	go func() {
		defer close(respChan)
		defer close(errChan)

		vars := map[string]any{
			"message_histories": s.historyMessages(history),
			"user_query":        message,
		}

		var reader *schema.StreamReader[*schema.Message]
		if agent != nil {
			runCtx := withStatus(ctx, func(status string) {
				select {
				case respChan <- model.StreamChunk{Status: status, Role: string(schema.Assistant)}:
				case <-ctx.Done():
				}
			})
			r, err := agent.Stream(runCtx, vars)
			if err != nil {
				errChan <- fmt.Errorf("start agent: %w", err)
				return
			}
			reader = r
		} else {
			messages, err := s.template.Format(ctx, vars)
			if err != nil {
				errChan <- fmt.Errorf("format prompt: %w", err)
				return
			}
			r, err := chat.Stream(ctx, messages)
			if err != nil {
				errChan <- fmt.Errorf("start model stream: %w", err)
				return
			}
			reader = r
		}
		defer reader.Close()

		for {
			chunk, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- err
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}

			select {
			case respChan <- model.StreamChunk{Content: chunk.Content, Role: string(schema.Assistant)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return respChan, errChan
}

// historyMessages keeps the most recent user and assistant turns.
func (s *ChatService) historyMessages(history []model.HistoryMessage) []*schema.Message {
	if s.maxHistory > 0 && len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}

	out := make([]*schema.Message, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		switch h.Role {
		case "user":
			out = append(out, schema.UserMessage(h.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(h.Content, nil))
		default:
			logger.Debugf("skipping history entry with role %q", h.Role)
		}
	}
	return out
}
