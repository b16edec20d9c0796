package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/middleware"
	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
	"github.com/ikonrealty/closingdesk/service"
)

type AuthHandler struct {
	config *config.Config
	roster *service.Roster
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		roster: service.NewRoster(cfg.Roster.Emails, cfg.Roster.Phones),
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token       string `json:"token"`
	ExpiresAt   string `json:"expires_at"`
	Agent       string `json:"agent"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user := h.config.FindUser(req.Username)
	if user == nil || subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	id := model.Identity{GivenName: user.GivenName, FamilyName: user.FamilyName, Email: user.Email}
	agent := service.AgentFolder(id)
	if agent == "" {
		agent = user.Username
	}

	token, expiresAt, err := middleware.GenerateToken(id, agent, user.Role, &h.config.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	role := middleware.RoleAgent
	if user.Role == middleware.RoleAdmin {
		role = middleware.RoleAdmin
	}
	logger.Info(c.Request.Context(), "user logged in", "agent", agent, "role", role)
	c.JSON(http.StatusOK, LoginResponse{
		Token:       token,
		ExpiresAt:   expiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Agent:       agent,
		Role:        role,
		DisplayName: service.DisplayNameOf(id),
	})
}

// GetCurrentUser returns the current user info
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	id := middleware.GetIdentity(c)

	c.JSON(http.StatusOK, gin.H{
		"agent":        middleware.GetAgent(c),
		"role":         middleware.GetRole(c),
		"display_name": service.DisplayNameOf(id),
		"identity":     id,
	})
}

// ValidateSignUp checks an account request against the roster and returns
// the payload to submit to the identity provider
func (h *AuthHandler) ValidateSignUp(c *gin.Context) {
	var form service.SignUpForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	signUp, err := form.Validate(h.roster)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signUp": signUp,
		"agent":  service.AgentFolder(signUp.Identity),
	})
}
