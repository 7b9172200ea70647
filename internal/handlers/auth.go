package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/middleware"
)

const tokenTTL = 12 * time.Hour

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges the configured admin credentials for an API token.
// Admin login is disabled while no admin password is configured.
func Login(jwtSecret string, admin config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if admin.Password == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin login disabled",
			})
			return
		}

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(admin.User)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(admin.Password)) == 1
		if !userOK || !passOK {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		now := time.Now()
		expiresAt := now.Add(tokenTTL)
		claims := middleware.AdminClaims{
			Role: middleware.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   req.Username,
				ExpiresAt: jwt.NewNumericDate(expiresAt),
				IssuedAt:  jwt.NewNumericDate(now),
				NotBefore: jwt.NewNumericDate(now),
			},
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		tokenString, err := token.SignedString([]byte(jwtSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:     tokenString,
			ExpiresAt: expiresAt,
		})
	}
}
