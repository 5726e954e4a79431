// Package conversation holds the chat transcript of one session and the
// dispatcher that applies stream events to it.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	Greeting          = "Hello! I am your AI financial assistant. Ask me about stock prices, news, or market analysis."
	ProcessingStatus  = "Processing..."
	ErrorFallback     = "Sorry, I encountered an error. Please try again."
	TimeoutFallback   = "Sorry, the response timed out. Please try again."
	DefaultHistoryLen = 10
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is the wire form of a prior message sent with a request.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
