package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finchat/internal/model"
	"finchat/internal/service"
	"finchat/pkg/logger"
)

type WatchlistHandler struct {
	watchlists *service.WatchlistService
}

func NewWatchlistHandler(watchlists *service.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{watchlists: watchlists}
}

func (h *WatchlistHandler) Get(c *gin.Context) {
	w, err := h.watchlists.Get(c.Param("user_id"))
	h.respond(c, w, err)
}

func (h *WatchlistHandler) Add(c *gin.Context) {
	w, err := h.watchlists.Add(c.Param("user_id"), c.Query("symbol"))
	h.respond(c, w, err)
}

func (h *WatchlistHandler) Remove(c *gin.Context) {
	w, err := h.watchlists.Remove(c.Param("user_id"), c.Param("symbol"))
	h.respond(c, w, err)
}

func (h *WatchlistHandler) respond(c *gin.Context, w *model.Watchlist, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, w)
	case errors.Is(err, service.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "Symbol cannot be empty"})
	default:
		logger.Errorf("Watchlist request failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Detail: "Failed to update watchlist"})
	}
}
