package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ikonrealty/closingdesk/config"
	"github.com/ikonrealty/closingdesk/model"
	"github.com/ikonrealty/closingdesk/pkg/logger"
)

// Roles carried in the token
const (
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// gin context keys set by AuthMiddleware
const (
	agentKey    = "agent"
	roleKey     = "role"
	identityKey = "identity"
)

// Claims represents the JWT claims. Agent is the storage folder the caller's
// uploads live under.
type Claims struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
	Agent      string `json:"agent"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for id acting as agent with role
func GenerateToken(id model.Identity, agent, role string, cfg *config.AuthConfig) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(cfg.TokenExpireHours) * time.Hour)
	if role != RoleAdmin {
		role = RoleAgent
	}

	claims := Claims{
		GivenName:  id.GivenName,
		FamilyName: id.FamilyName,
		Email:      id.Email,
		Agent:      agent,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// AuthMiddleware validates the bearer token and stores the caller in both the
// gin context and the request context used for logging
func AuthMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if claims.Agent == "" && claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no agent"})
			return
		}

		c.Set(agentKey, claims.Agent)
		c.Set(roleKey, claims.Role)
		c.Set(identityKey, model.Identity{
			GivenName:  claims.GivenName,
			FamilyName: claims.FamilyName,
			Email:      claims.Email,
		})

		ctx := context.WithValue(c.Request.Context(), logger.AgentKey, claims.Agent)
		ctx = context.WithValue(ctx, logger.RoleKey, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// GetAgent gets the caller's agent folder from context
func GetAgent(c *gin.Context) string {
	return c.GetString(agentKey)
}

// GetRole gets the caller's role from context
func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}

// IsAdmin reports whether the caller holds the admin role
func IsAdmin(c *gin.Context) bool {
	return GetRole(c) == RoleAdmin
}

// GetIdentity gets the caller's identity claims from context
func GetIdentity(c *gin.Context) model.Identity {
	if id, exists := c.Get(identityKey); exists {
		if v, ok := id.(model.Identity); ok {
			return v
		}
	}
	return model.Identity{}
}
