package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hostwell/guildvault/internal/auth"
	"github.com/hostwell/guildvault/internal/logging"
	"github.com/hostwell/guildvault/internal/models"
)

// AuthHandler serves panel authentication endpoints.
type AuthHandler struct {
	users      *auth.UserStore
	jwt        *auth.JWTManager
	bcryptCost int
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(users *auth.UserStore, jwt *auth.JWTManager, bcryptCost int) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt, bcryptCost: bcryptCost}
}

// SetupStatus reports whether the first panel account exists yet.
func (h *AuthHandler) SetupStatus(c *gin.Context) {
	count, err := h.users.CountUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"needsSetup": count == 0})
}

// Setup creates the first panel account. Refused once any account exists.
func (h *AuthHandler) Setup(c *gin.Context) {
	count, err := h.users.CountUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Setup already completed"})
		return
	}

	var req models.SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	user, err := h.users.CreateUser(req.Username, hash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	logging.L().Info("panel_account_created", "username", user.Username)
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if user == nil || !user.IsActive || auth.VerifyPassword(req.Password, user.PasswordHash) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	pair, tokenHash, err := h.jwt.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if err := h.users.StoreRefreshToken(tokenHash, user.ID, h.jwt.GetRefreshTokenExpiry()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user":         user,
	})
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok, err := h.users.ConsumeRefreshToken(h.jwt.HashRefreshToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}

	user, err := h.users.GetUserByID(userID)
	if err != nil || user == nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token"})
		return
	}

	pair, tokenHash, err := h.jwt.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}
	if err := h.users.StoreRefreshToken(tokenHash, user.ID, h.jwt.GetRefreshTokenExpiry()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout revokes every refresh token of the current user.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if err := h.users.RevokeUserTokens(userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetUserByID(c.GetInt64("user_id"))
	if err != nil || user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
