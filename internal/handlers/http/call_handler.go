package http

import (
	"net/http"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/ports"
	"ringlink/internal/core/services"
	"ringlink/internal/infrastructure/middleware"
	"ringlink/pkg/validation"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService ports.CallService
}

func NewCallHandler(callService ports.CallService) *CallHandler {
	return &CallHandler{
		callService: callService,
	}
}

func (h *CallHandler) SetupRoutes(router *gin.Engine, authService services.AuthService) {
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	{
		api.POST("/calls", h.StartCall)
		api.GET("/calls/current", h.CurrentCall)
		api.POST("/calls/answer", h.Answer)
		api.POST("/calls/decline", h.Decline)
		api.POST("/calls/hangup", h.Hangup)
		api.POST("/calls/mute", h.ToggleMute)
		api.POST("/calls/video", h.ToggleVideo)
		api.POST("/calls/screenshare", h.ToggleScreenShare)
		api.POST("/calls/recording/start", h.StartRecording)
		api.POST("/calls/recording/stop", h.StopRecording)
	}
}

func (h *CallHandler) StartCall(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req struct {
		ConversationID string `json:"conversation_id" binding:"required"`
		CallType       string `json:"call_type" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateID("conversation", req.ConversationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateCallType(req.CallType); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.callService.StartCall(
		c.Request.Context(),
		userID,
		domain.ConversationID(req.ConversationID),
		domain.CallType(req.CallType),
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"call": state})
}

func (h *CallHandler) CurrentCall(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	state, exists := h.callService.CurrentCall(userID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": domain.ErrNoActiveCall.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": state})
}

func (h *CallHandler) Answer(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	state, err := h.callService.Answer(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": state})
}

func (h *CallHandler) Decline(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.callService.Decline(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CallStatusDeclined)})
}

func (h *CallHandler) Hangup(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.callService.Hangup(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.CallStatusEnded)})
}

func (h *CallHandler) ToggleMute(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	muted, err := h.callService.ToggleMute(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *CallHandler) ToggleVideo(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	enabled, err := h.callService.ToggleVideo(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"video_enabled": enabled})
}

func (h *CallHandler) ToggleScreenShare(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	active, err := h.callService.ToggleScreenShare(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"screen_sharing": active})
}

func (h *CallHandler) StartRecording(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.callService.StartRecording(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": true})
}

func (h *CallHandler) StopRecording(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if err := h.callService.StopRecording(c.Request.Context(), userID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": false})
}
