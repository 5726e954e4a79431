package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/chat"
	"finchat/internal/client"
	"finchat/internal/config"
	"finchat/internal/conversation"
	"finchat/internal/model"
	"finchat/internal/service"
	"finchat/internal/storage"
	"finchat/internal/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeModel struct {
	mu       sync.Mutex
	chunks   []string
	delay    time.Duration
	block    bool
	startErr error
	calls    [][]*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	return nil, errors.New("not used")
}

func (f *fakeModel) Stream(ctx context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}

	reader, writer := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer writer.Close()
		if f.block {
			<-ctx.Done()
			return
		}
		for _, c := range f.chunks {
			if f.delay > 0 {
				time.Sleep(f.delay)
			}
			writer.Send(schema.AssistantMessage(c, nil), nil)
		}
	}()
	return reader, nil
}

func (f *fakeModel) lastCall() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HeartbeatInterval: time.Second},
		Model:  config.ModelConfig{Provider: "openai"},
		OpenAI: config.OpenAIConfig{Model: "gpt-4o-mini"},
		Agent:  config.AgentConfig{SystemPrompt: "You are a financial assistant.", MaxHistoryMessages: 10},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, fm *fakeModel) *gin.Engine {
	t.Helper()
	if fm == nil {
		return newRouterWithModel(t, cfg, nil)
	}
	return newRouterWithModel(t, cfg, fm)
}

func newRouterWithModel(t *testing.T, cfg *config.Config, m einoModel.BaseChatModel, toolList ...tool.BaseTool) *gin.Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	chatService := service.NewChatService(ctx, cfg, toolList...)
	if m != nil {
		chatService.SetModel(m)
	}
	store := storage.NewMemoryStorage()
	return NewRouter(ctx, cfg, Handlers{
		Chat:      NewChatHandler(chatService, cfg),
		Settings:  NewSettingsHandler(service.NewSettingsService(store, cfg, chatService)),
		Watchlist: NewWatchlistHandler(service.NewWatchlistService(store)),
	})
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Detail
}

func TestStreamChatRejectsEmptyMessage(t *testing.T) {
	router := newTestRouter(t, testConfig(), &fakeModel{})

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", detail(t, rec))

	rec = do(router, http.MethodPost, "/api/v1/chat/message", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamChatFrames(t *testing.T) {
	router := newTestRouter(t, testConfig(), &fakeModel{chunks: []string{"Nifty ", "is up."}})

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"How is the market?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: thinking\ndata: {\"status\":\"Thinking...\"}\n\n"), body)
	assert.Contains(t, body, "event: content\ndata: {\"delta\":\"Nifty \"}\n\n")
	assert.Contains(t, body, "event: content\ndata: {\"delta\":\"is up.\"}\n\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"), body)
}

// lookupModel calls fetch_stock_info once, then answers.
type lookupModel struct{}

func (lookupModel) Generate(ctx context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	return nil, errors.New("not used")
}

func (m lookupModel) WithTools([]*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	return m, nil
}

func (lookupModel) Stream(ctx context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	if msgs[len(msgs)-1].Role == schema.Tool {
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("TCS is flat.", nil)}), nil
	}
	idx := 0
	return schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{{
			Index:    &idx,
			ID:       "call_1",
			Type:     "function",
			Function: schema.FunctionCall{Name: tools.StockInfoToolName, Arguments: `{"symbol":"TCS"}`},
		}}),
	}), nil
}

type staticMarket struct{}

func (staticMarket) StockInfo(ctx context.Context, symbol string, out interface{}) error {
	return json.Unmarshal([]byte(`{"symbol":"TCS","change":0}`), out)
}

func (staticMarket) News(ctx context.Context, req client.NewsRequest, out interface{}) error {
	return json.Unmarshal([]byte(`[]`), out)
}

func TestStreamChatReportsToolCalls(t *testing.T) {
	router := newRouterWithModel(t, testConfig(), lookupModel{}, tools.GetMarketTools(staticMarket{})...)

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"How is TCS doing?"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	thinking := strings.Index(body, `{"status":"Looking up company information..."}`)
	content := strings.Index(body, `{"delta":"TCS is flat."}`)
	require.GreaterOrEqual(t, thinking, 0, body)
	require.GreaterOrEqual(t, content, 0, body)
	assert.Less(t, thinking, content)
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))
}

func TestStreamChatHeartbeat(t *testing.T) {
	cfg := testConfig()
	cfg.Server.HeartbeatInterval = 10 * time.Millisecond
	router := newTestRouter(t, cfg, &fakeModel{chunks: []string{"late"}, delay: 80 * time.Millisecond})

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"hi"}`)

	body := rec.Body.String()
	assert.Contains(t, body, ": ping\n\n")
	assert.Contains(t, body, `{"delta":"late"}`)
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))
}

func TestStreamChatModelFailure(t *testing.T) {
	router := newTestRouter(t, testConfig(), &fakeModel{startErr: errors.New("quota exceeded")})

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "I encountered an error processing your request")
	assert.Contains(t, body, "quota exceeded")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: {}\n\n"))
}

func TestStreamChatTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Server.StreamTimeout = 30 * time.Millisecond
	router := newTestRouter(t, cfg, &fakeModel{block: true})

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"hi"}`)

	assert.True(t, strings.HasSuffix(rec.Body.String(), "event: done\ndata: {}\n\n"))
}

func TestStreamChatWithoutKey(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	rec := do(router, http.MethodPost, "/api/v1/chat/message", `{"message":"hi"}`)

	assert.Contains(t, rec.Body.String(), model.UnavailableReply)
}

func TestSettingsRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	rec := do(router, http.MethodGet, "/api/v1/settings/gemini-keys", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_set":false,"masked_key":null}`, rec.Body.String())

	rec = do(router, http.MethodPost, "/api/v1/settings/gemini-keys", `{"gemini_api_key":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "API key cannot be empty", detail(t, rec))

	rec = do(router, http.MethodPost, "/api/v1/settings/gemini-keys", `{"gemini_api_key":"sk-1234567890abcd"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Gemini API key updated successfully"}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/api/v1/settings/gemini-keys", "")
	assert.JSONEq(t, `{"is_set":true,"masked_key":"sk-1...abcd"}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/health", "")
	assert.Contains(t, rec.Body.String(), `"llm":true`)
}

func TestWatchlistRoutes(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	decode := func(rec *httptest.ResponseRecorder) model.Watchlist {
		var w model.Watchlist
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
		return w
	}

	rec := do(router, http.MethodGet, "/api/v1/watchlist/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(rec).Symbols)

	do(router, http.MethodPost, "/api/v1/watchlist/u1/add?symbol=reliance", "")
	rec = do(router, http.MethodPost, "/api/v1/watchlist/u1/add?symbol=TCS", "")
	assert.Equal(t, []string{"RELIANCE", "TCS"}, decode(rec).Symbols)

	rec = do(router, http.MethodPost, "/api/v1/watchlist/u1/add", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Symbol cannot be empty", detail(t, rec))

	rec = do(router, http.MethodDelete, "/api/v1/watchlist/u1/remove/RELIANCE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"TCS"}, decode(rec).Symbols)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	router := newTestRouter(t, cfg, nil)

	for i := 0; i < 2; i++ {
		rec := do(router, http.MethodGet, "/api/v1/settings/gemini-keys", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(router, http.MethodGet, "/api/v1/settings/gemini-keys", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded", detail(t, rec))

	// health is not rate limited
	rec = do(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionAgainstServer(t *testing.T) {
	fm := &fakeModel{chunks: []string{"Nifty ", "is ", "up."}}
	srv := httptest.NewServer(newTestRouter(t, testConfig(), fm))
	t.Cleanup(srv.Close)

	c := client.NewWithHTTPClient(srv.URL+"/api/v1", srv.Client())
	session := chat.NewSession(chat.HTTPTransport(c), chat.WithIdleTimeout(time.Second))
	t.Cleanup(session.Close)

	ctx := context.Background()
	require.NoError(t, session.Submit(ctx, "How is the Nifty?"))

	snap := session.State().Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, conversation.RoleUser, snap.Messages[1].Role)
	assert.Equal(t, conversation.RoleAssistant, snap.Messages[2].Role)
	assert.Equal(t, "Nifty is up.", snap.Messages[2].Content)
	assert.False(t, snap.IsStreaming)

	require.NoError(t, session.Submit(ctx, "And the Sensex?"))

	msgs := fm.lastCall()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "And the Sensex?", msgs[len(msgs)-1].Content)
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "How is the Nifty?")
	assert.Contains(t, contents, "Nifty is up.")
}
