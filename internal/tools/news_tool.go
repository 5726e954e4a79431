package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"finchat/internal/client"
)

const (
	NewsToolName     = "fetch_news"
	defaultNewsLimit = 10
	maxNewsLimit     = 50
)

// NewsTool implements tool.InvokableTool for the latest news of some symbols.
type NewsTool struct {
	market MarketData
}

func (t *NewsTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NewsToolName,
		Desc: "Fetches the latest news articles for the given stock symbols.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"symbols": {
				Type:     schema.Array,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
				Desc:     "List of stock symbols, e.g. [\"AAPL\", \"TSLA\"]",
				Required: true,
			},
			"limit": {
				Type: schema.Integer,
				Desc: "Maximum number of articles to return, default 10",
			},
		}),
	}, nil
}

type newsInput struct {
	Symbols []string `json:"symbols"`
	Limit   int      `json:"limit"`
}

func (t *NewsTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var in newsInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return errorResult(NewsToolName, fmt.Errorf("failed to parse arguments: %w", err)), nil
	}

	symbols := make([]string, 0, len(in.Symbols))
	for _, s := range in.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return errorResult(NewsToolName, errors.New("at least one symbol is required")), nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultNewsLimit
	}
	if limit > maxNewsLimit {
		limit = maxNewsLimit
	}

	var out json.RawMessage
	if err := t.market.News(ctx, client.NewsRequest{Symbols: symbols, Limit: limit}, &out); err != nil {
		return errorResult(NewsToolName, err), nil
	}
	return string(out), nil
}
