package model

import "time"

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// KeyStatus never carries the full key.
type KeyStatus struct {
	IsSet     bool    `json:"is_set"`
	MaskedKey *string `json:"masked_key"`
}

type Watchlist struct {
	UserID    string    `json:"user_id"`
	Symbols   []string  `json:"symbols"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StreamChunk is one piece of a streamed model answer. A chunk with Status
// set reports progress and carries no content.
type StreamChunk struct {
	Content string `json:"content"`
	Status  string `json:"status,omitempty"`
	Role    string `json:"role"`
}
