package model

import (
	"context"
	"errors"
	"fmt"
	"io"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"finchat/internal/config"
	"finchat/pkg/logger"
)

type openaiChatModel struct {
	client *openai.Client
	model  string
	tools  []openai.Tool
}

func newOpenAIChatModel(_ context.Context, cfg config.OpenAIConfig) (*openaiChatModel, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model name is empty")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openaiChatModel{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// 实现 eino ToolCallingChatModel 接口
func (m *openaiChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: convertMessages(messages),
		Tools:    m.tools,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	msg := resp.Choices[0].Message
	return schema.AssistantMessage(msg.Content, fromOpenAIToolCalls(msg.ToolCalls)), nil
}

func (m *openaiChatModel) Stream(ctx context.Context, messages []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	stream, err := m.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: convertMessages(messages),
		Tools:    m.tools,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	reader, writer := schema.Pipe[*schema.Message](100)

	go func() {
		defer writer.Close()
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Errorf("OpenAI stream failed: %v", err)
					writer.Send(nil, err)
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta
			if delta.Content == "" && len(delta.ToolCalls) == 0 {
				continue
			}
			// 工具调用的分片由 schema.ConcatMessages 按 Index 合并
			if closed := writer.Send(schema.AssistantMessage(delta.Content, fromOpenAIToolCalls(delta.ToolCalls)), nil); closed {
				return
			}
		}
	}()

	return reader, nil
}

// WithTools 返回绑定了工具的副本，原模型不变
func (m *openaiChatModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	converted := make([]openai.Tool, 0, len(tools))
	for _, info := range tools {
		params, err := info.ParamsOneOf.ToOpenAPIV3()
		if err != nil {
			return nil, fmt.Errorf("convert parameters of tool %s: %w", info.Name, err)
		}
		def := &openai.FunctionDefinition{Name: info.Name, Description: info.Desc}
		if params != nil {
			def.Parameters = params
		}
		converted = append(converted, openai.Tool{Type: openai.ToolTypeFunction, Function: def})
	}

	clone := *m
	clone.tools = converted
	return &clone, nil
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]schema.ToolCall, 0, len(calls))
	for _, c := range calls {
		result = append(result, schema.ToolCall{
			Index: c.Index,
			ID:    c.ID,
			Type:  string(c.Type),
			Function: schema.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		})
	}
	return result
}

func toOpenAIToolCalls(calls []schema.ToolCall) []openai.ToolCall {
	result := make([]openai.ToolCall, 0, len(calls))
	for _, c := range calls {
		result = append(result, openai.ToolCall{
			ID:   c.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		})
	}
	return result
}

// 消息格式转换
func convertMessages(messages []*schema.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Tool:
			role = openai.ChatMessageRoleTool
		}

		// 跳过空的assistant消息，这些消息可能导致API错误
		if msg.Content == "" && role == openai.ChatMessageRoleAssistant && len(msg.ToolCalls) == 0 {
			continue
		}

		converted := openai.ChatCompletionMessage{
			Role:       role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.ToolCalls) > 0 {
			converted.ToolCalls = toOpenAIToolCalls(msg.ToolCalls)
		}
		result = append(result, converted)
	}
	logger.Debugf("converted %d messages for OpenAI", len(result))
	return result
}
