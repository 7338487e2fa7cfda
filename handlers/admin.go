package handlers

import (
	"net/http"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/config"
	"github.com/faithboy007/world-conquest-veterinary-home/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AdminHandler issues the bearer tokens required for catalog writes.
type AdminHandler struct {
	cfg    config.Admin
	logger *zap.Logger
}

func NewAdminHandler(cfg config.Admin, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{cfg: cfg, logger: logger}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	traceID := middleware.GetTraceID(c.Request.Context())

	if h.cfg.PasswordHash == "" || req.Username != h.cfg.Username {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.Warn("Admin login failed", zap.String("trace_id", traceID), zap.String("username", req.Username))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	expiresAt := time.Now().Add(h.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  req.Username,
		"role": "admin",
		"exp":  expiresAt.Unix(),
	})

	tokenString, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		h.logger.Error("Failed to generate token", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Admin logged in", zap.String("trace_id", traceID), zap.String("username", req.Username))
	c.JSON(http.StatusOK, LoginResponse{Token: tokenString, ExpiresAt: expiresAt})
}
