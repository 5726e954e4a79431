package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const StockInfoToolName = "fetch_stock_info"

// StockInfoTool implements tool.InvokableTool for company fundamentals.
type StockInfoTool struct {
	market MarketData
}

func (t *StockInfoTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: StockInfoToolName,
		Desc: "Fetches detailed company information and fundamentals for a given stock symbol, such as price, market cap, P/E ratio and sector.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"symbol": {
				Type:     schema.String,
				Desc:     "The stock symbol, e.g. AAPL or RELIANCE.NS",
				Required: true,
			},
		}),
	}, nil
}

type stockInfoInput struct {
	Symbol string `json:"symbol"`
}

func (t *StockInfoTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var in stockInfoInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return errorResult(StockInfoToolName, fmt.Errorf("failed to parse arguments: %w", err)), nil
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return errorResult(StockInfoToolName, errors.New("symbol is required")), nil
	}

	var out json.RawMessage
	if err := t.market.StockInfo(ctx, symbol, &out); err != nil {
		return errorResult(StockInfoToolName, err), nil
	}
	return string(out), nil
}
