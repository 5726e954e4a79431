package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finchat/internal/model"
	"finchat/internal/service"
	"finchat/pkg/logger"
)

type SettingsHandler struct {
	settings *service.SettingsService
}

func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) GetKeyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.KeyStatus())
}

func (h *SettingsHandler) UpdateKey(c *gin.Context) {
	var req model.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "Invalid request body"})
		return
	}

	if err := h.settings.UpdateKey(c.Request.Context(), req.GeminiAPIKey); err != nil {
		if errors.Is(err, service.ErrEmptyKey) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "API key cannot be empty"})
			return
		}
		logger.Errorf("Failed to update API key: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Detail: "Failed to save API key"})
		return
	}

	c.JSON(http.StatusOK, model.MessageResponse{Message: "Gemini API key updated successfully"})
}
