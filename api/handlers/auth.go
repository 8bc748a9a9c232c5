package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/api/middleware"
	"github.com/CIRISAI/CIRISBridge/internal/auth"
	"github.com/CIRISAI/CIRISBridge/pkg/database/queries"
)

type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*queries.User, error)
}

type AuthHandler struct {
	users       UserStore
	authService *auth.Service
}

func NewAuthHandler(users UserStore, authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		users:       users,
		authService: authService,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	Username  string `json:"username"`
}

// Login godoc
// @Summary Log in
// @Description Exchanges operator credentials for a JWT, also set as the auth_token cookie
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse "Invalid request body"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 429 {object} ErrorResponse "Too many attempts"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	user, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, queries.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials", Kind: "Unauthorized"})
			return
		}
		respondError(c, err)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials", Kind: "Unauthorized"})
		return
	}

	token, err := h.authService.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	maxAge := int(h.authService.Duration().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AuthCookie, token, maxAge, "/", "", true, true)

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: maxAge,
		Username:  user.Username,
	})
}
