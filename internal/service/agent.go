package service

import (
	"context"
	"fmt"
	"io"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"finchat/internal/tools"
	"finchat/pkg/logger"
)

const (
	nodeChatTemplate = "ChatTemplate"
	nodeChatModel    = "ChatModel"
	nodeTools        = "ToolsNode"

	defaultMaxSteps = 12
)

// StatusFunc receives a short progress text, e.g. while a tool runs.
type StatusFunc func(status string)

type statusKey struct{}

func withStatus(ctx context.Context, fn StatusFunc) context.Context {
	return context.WithValue(ctx, statusKey{}, fn)
}

func statusFrom(ctx context.Context) StatusFunc {
	if fn, ok := ctx.Value(statusKey{}).(StatusFunc); ok && fn != nil {
		return fn
	}
	return func(string) {}
}

// agentState holds the model and tool messages of one answer.
type agentState struct {
	history []*schema.Message
	status  StatusFunc
}

func toolStatus(name string) string {
	switch name {
	case tools.StockInfoToolName:
		return "Looking up company information..."
	case tools.NewsToolName:
		return "Fetching the latest news..."
	default:
		return fmt.Sprintf("Running %s...", name)
	}
}

// composeAgent builds the model-plus-tools loop: the template feeds the model,
// tool calls go to the tools node and its results back to the model, and the
// first answer without tool calls ends the run.
func composeAgent(ctx context.Context, tmpl prompt.ChatTemplate, cm einoModel.ToolCallingChatModel,
	toolList []tool.BaseTool, maxSteps int) (compose.Runnable[map[string]any, *schema.Message], error) {

	toolsInfo := make([]*schema.ToolInfo, 0, len(toolList))
	for _, t := range toolList {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		toolsInfo = append(toolsInfo, info)
	}

	boundModel, err := cm.WithTools(toolsInfo)
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{Tools: toolList})
	if err != nil {
		return nil, fmt.Errorf("create tools node: %w", err)
	}

	g := compose.NewGraph[map[string]any, *schema.Message](compose.WithGenLocalState(func(ctx context.Context) *agentState {
		return &agentState{status: statusFrom(ctx)}
	}))

	if err = g.AddChatTemplateNode(nodeChatTemplate, tmpl); err != nil {
		return nil, err
	}

	err = g.AddChatModelNode(nodeChatModel, boundModel,
		compose.WithStatePreHandler(func(ctx context.Context, in []*schema.Message, state *agentState) ([]*schema.Message, error) {
			state.history = append(state.history, in...)
			return state.history, nil
		}),
	)
	if err != nil {
		return nil, err
	}

	err = g.AddToolsNode(nodeTools, toolsNode,
		compose.WithStatePreHandler(func(ctx context.Context, in *schema.Message, state *agentState) (*schema.Message, error) {
			state.history = append(state.history, in)
			for _, call := range in.ToolCalls {
				logger.Infof("model called tool %s", call.Function.Name)
				state.status(toolStatus(call.Function.Name))
			}
			return in, nil
		}),
	)
	if err != nil {
		return nil, err
	}

	if err = g.AddEdge(compose.START, nodeChatTemplate); err != nil {
		return nil, err
	}
	if err = g.AddEdge(nodeChatTemplate, nodeChatModel); err != nil {
		return nil, err
	}
	if err = g.AddEdge(nodeTools, nodeChatModel); err != nil {
		return nil, err
	}

	err = g.AddBranch(nodeChatModel, compose.NewStreamGraphBranch(func(ctx context.Context, in *schema.StreamReader[*schema.Message]) (string, error) {
		hasCalls, err := firstChunkHasToolCalls(in)
		if err != nil {
			return "", err
		}
		if hasCalls {
			return nodeTools, nil
		}
		return compose.END, nil
	}, map[string]bool{nodeTools: true, compose.END: true}))
	if err != nil {
		return nil, err
	}

	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return g.Compile(ctx,
		compose.WithGraphName("FinChatAgent"),
		compose.WithMaxRunSteps(maxSteps),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
}

// firstChunkHasToolCalls decides on the first non-empty chunk, so a plain
// answer keeps streaming to the caller.
func firstChunkHasToolCalls(sr *schema.StreamReader[*schema.Message]) (bool, error) {
	defer sr.Close()

	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if len(msg.ToolCalls) > 0 {
			return true, nil
		}
		if msg.Content != "" {
			return false, nil
		}
	}
}
