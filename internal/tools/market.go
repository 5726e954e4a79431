package tools

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/tool"

	"finchat/internal/client"
	"finchat/pkg/logger"
)

// MarketData is the upstream market data API the tools call. *client.Client
// implements it.
type MarketData interface {
	StockInfo(ctx context.Context, symbol string, out interface{}) error
	News(ctx context.Context, req client.NewsRequest, out interface{}) error
}

// ToolErrorResult is what the model sees when a tool fails. It is returned
// as a normal result so the graph run continues.
type ToolErrorResult struct {
	Success      bool   `json:"success"`
	Error        bool   `json:"error"`
	ErrorMessage string `json:"error_message"`
	ToolName     string `json:"tool_name"`
}

func errorResult(name string, err error) string {
	logger.Warnf("tool %s failed: %v", name, err)

	data, merr := json.Marshal(ToolErrorResult{
		Error:        true,
		ErrorMessage: err.Error(),
		ToolName:     name,
	})
	if merr != nil {
		return `{"success":false,"error":true,"tool_name":"` + name + `"}`
	}
	return string(data)
}

// GetMarketTools returns every tool backed by the market data API.
func GetMarketTools(market MarketData) []tool.BaseTool {
	return []tool.BaseTool{
		&StockInfoTool{market: market},
		&NewsTool{market: market},
	}
}
