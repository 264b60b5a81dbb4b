// Package handlers exposes the retention API over HTTP.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/zebraclach/twitter-autodelete-bot/internal/common/errors"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/controller"
	"github.com/zebraclach/twitter-autodelete-bot/internal/retention/dto"
)

type Handlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

func RegisterRoutes(router *gin.Engine, ctrl *controller.Controller, log *logger.Logger) {
	h := &Handlers{
		controller: ctrl,
		logger:     log.WithFields(zap.String("component", "retention-handlers")),
	}
	api := router.Group("/api/v1")
	api.POST("/content", h.httpPostContent)
	api.POST("/purge", h.httpPurge)
	router.GET("/healthz", h.httpHealth)
}

func (h *Handlers) httpPostContent(c *gin.Context) {
	var body dto.PostContentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	resp, err := h.controller.PostContent(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("failed to post content", zap.Error(err))
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) httpPurge(c *gin.Context) {
	var body dto.PurgeRequest
	// An empty body means "use the retention window as cutoff".
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	resp, err := h.controller.Purge(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("purge failed", zap.Error(err))
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Health(c.Request.Context()))
}

func (h *Handlers) writeError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
		return
	}
	c.JSON(apperrors.GetHTTPStatus(err), gin.H{"error": err.Error()})
}
