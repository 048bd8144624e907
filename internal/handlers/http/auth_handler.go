package http

import (
	"net/http"

	"ringlink/internal/core/domain"
	"ringlink/internal/core/services"
	"ringlink/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/auth/token", h.IssueToken)
	}
}

// IssueToken exchanges a user identity for a signed access token. There is
// no password check here; identity is expected to be vouched for by the
// fronting service that proxies this endpoint.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Username string `json:"username"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateID("user", req.UserID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := req.Username
	if username == "" {
		username = req.UserID
	}

	token, err := h.authService.GenerateToken(domain.UserID(req.UserID), username)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "Bearer"})
}
