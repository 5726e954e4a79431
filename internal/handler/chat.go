package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"finchat/internal/config"
	"finchat/internal/model"
	"finchat/internal/service"
	"finchat/internal/stream"
	"finchat/pkg/logger"
)

const defaultHeartbeat = 30 * time.Second

type ChatHandler struct {
	chatService       *service.ChatService
	thinkingStatus    string
	streamTimeout     time.Duration
	heartbeatInterval time.Duration
}

func NewChatHandler(chatService *service.ChatService, cfg *config.Config) *ChatHandler {
	h := &ChatHandler{
		chatService:       chatService,
		thinkingStatus:    cfg.Agent.ThinkingStatus,
		streamTimeout:     cfg.Server.StreamTimeout,
		heartbeatInterval: cfg.Server.HeartbeatInterval,
	}
	if h.thinkingStatus == "" {
		h.thinkingStatus = "Thinking..."
	}
	if h.heartbeatInterval <= 0 {
		h.heartbeatInterval = defaultHeartbeat
	}
	return h
}

// StreamChat answers with an event stream: one thinking frame, the content
// deltas of the model answer, then done.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "Invalid request body"})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "Message cannot be empty"})
		return
	}

	logger.WithFields(map[string]interface{}{
		"client":  c.ClientIP(),
		"history": len(req.History),
	}).Info("chat request")

	ctx, cancel := h.streamContext(c.Request.Context())
	defer cancel()

	w := stream.NewWriter(c.Writer)
	c.Status(http.StatusOK)
	if err := w.Thinking(h.thinkingStatus); err != nil {
		logger.Warnf("chat client went away: %v", err)
		return
	}

	// heartbeats keep idle proxies from closing the connection
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	respChan, errChan := h.chatService.StreamChat(ctx, message, req.History)
	sent := false

	for {
		select {
		case chunk, ok := <-respChan:
			if !ok {
				// errChan is closed before respChan, so this does not block
				if err := <-errChan; err != nil {
					logger.Errorf("chat stream failed: %v", err)
					if !sent {
						w.Content(fmt.Sprintf("I encountered an error processing your request: %v", err))
					}
				}
				w.Done()
				return
			}
			if chunk.Status != "" {
				if err := w.Thinking(chunk.Status); err != nil {
					logger.Warnf("chat client went away: %v", err)
					return
				}
				continue
			}
			if err := w.Content(chunk.Content); err != nil {
				logger.Warnf("chat client went away: %v", err)
				return
			}
			sent = true

		case <-heartbeat.C:
			if err := w.Heartbeat(); err != nil {
				logger.Warnf("heartbeat failed: %v", err)
				return
			}

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.Warnf("chat stream exceeded %s", h.streamTimeout)
				w.Done()
			}
			return
		}
	}
}

func (h *ChatHandler) streamContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.streamTimeout > 0 {
		return context.WithTimeout(parent, h.streamTimeout)
	}
	return context.WithCancel(parent)
}
