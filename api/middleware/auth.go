package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CIRISAI/CIRISBridge/internal/auth"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
	UserIDKey           = "user_id"
	UsernameKey         = "username"
	AuthCookie          = "auth_token"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"kind":  "Unauthorized",
	})
}

// JWTAuth requires a bearer token. Browsers cannot set headers on a
// websocket upgrade, so the auth_token cookie and a token query parameter are
// accepted as well.
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if header := c.GetHeader(AuthorizationHeader); header != "" {
			if !strings.HasPrefix(header, BearerPrefix) {
				unauthorized(c, "invalid authorization header format")
				return
			}
			token = strings.TrimPrefix(header, BearerPrefix)
		} else if cookie, err := c.Cookie(AuthCookie); err == nil {
			token = cookie
		} else {
			token = c.Query("token")
		}
		if token == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token expired"
			}
			unauthorized(c, message)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(UsernameKey, claims.Username)

		c.Next()
	}
}

func GetUserID(c *gin.Context) int {
	if id, ok := c.Get(UserIDKey); ok {
		if v, ok := id.(int); ok {
			return v
		}
	}
	return 0
}

func GetUsername(c *gin.Context) string {
	if name, ok := c.Get(UsernameKey); ok {
		if v, ok := name.(string); ok {
			return v
		}
	}
	return ""
}
