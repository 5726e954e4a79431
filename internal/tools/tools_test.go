package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/client"
)

type stubMarket struct {
	symbol string
	news   client.NewsRequest
	err    error
}

func (s *stubMarket) StockInfo(ctx context.Context, symbol string, out interface{}) error {
	s.symbol = symbol
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(`{"symbol":"`+symbol+`","sector":"IT"}`), out)
}

func (s *stubMarket) News(ctx context.Context, req client.NewsRequest, out interface{}) error {
	s.news = req
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(`[{"title":"Results beat estimates"}]`), out)
}

func invokable(t *testing.T, bt tool.BaseTool) tool.InvokableTool {
	t.Helper()
	it, ok := bt.(tool.InvokableTool)
	require.True(t, ok)
	return it
}

func TestGetMarketToolsInfo(t *testing.T) {
	ctx := context.Background()
	var names []string
	for _, bt := range GetMarketTools(&stubMarket{}) {
		info, err := bt.Info(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, info.Desc)
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{StockInfoToolName, NewsToolName}, names)
}

func TestStockInfoTool(t *testing.T) {
	market := &stubMarket{}
	it := invokable(t, &StockInfoTool{market: market})

	out, err := it.InvokableRun(context.Background(), `{"symbol":" tcs "}`)

	require.NoError(t, err)
	assert.Equal(t, "TCS", market.symbol)
	assert.JSONEq(t, `{"symbol":"TCS","sector":"IT"}`, out)
}

func TestStockInfoToolErrorsBecomeResults(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		err     error
		message string
	}{
		{name: "bad arguments", args: `{"symbol":`, message: "failed to parse arguments"},
		{name: "missing symbol", args: `{}`, message: "symbol is required"},
		{name: "upstream failure", args: `{"symbol":"TCS"}`, err: errors.New("upstream returned 502"), message: "upstream returned 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := invokable(t, &StockInfoTool{market: &stubMarket{err: tt.err}})

			out, err := it.InvokableRun(context.Background(), tt.args)

			require.NoError(t, err)
			var result ToolErrorResult
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.True(t, result.Error)
			assert.False(t, result.Success)
			assert.Equal(t, StockInfoToolName, result.ToolName)
			assert.Contains(t, result.ErrorMessage, tt.message)
		})
	}
}

func TestNewsTool(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantLimit int
		symbols   []string
	}{
		{name: "default limit", args: `{"symbols":["aapl"," tsla ",""]}`, wantLimit: 10, symbols: []string{"AAPL", "TSLA"}},
		{name: "explicit limit", args: `{"symbols":["INFY"],"limit":3}`, wantLimit: 3, symbols: []string{"INFY"}},
		{name: "capped limit", args: `{"symbols":["INFY"],"limit":500}`, wantLimit: 50, symbols: []string{"INFY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := &stubMarket{}
			it := invokable(t, &NewsTool{market: market})

			out, err := it.InvokableRun(context.Background(), tt.args)

			require.NoError(t, err)
			assert.Contains(t, out, "Results beat estimates")
			assert.Equal(t, tt.symbols, market.news.Symbols)
			assert.Equal(t, tt.wantLimit, market.news.Limit)
		})
	}
}

func TestNewsToolRequiresSymbols(t *testing.T) {
	it := invokable(t, &NewsTool{market: &stubMarket{}})

	out, err := it.InvokableRun(context.Background(), `{"symbols":[" "]}`)

	require.NoError(t, err)
	assert.Contains(t, out, "at least one symbol is required")
}
