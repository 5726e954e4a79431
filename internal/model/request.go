package model

// HistoryMessage is one prior turn sent along with a chat message.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message string           `json:"message"`
	History []HistoryMessage `json:"history"`
}

type UpdateKeyRequest struct {
	GeminiAPIKey string `json:"gemini_api_key"`
}
