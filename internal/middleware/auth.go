package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault-backend/internal/logger"
	"github.com/docuvault/docuvault-backend/internal/requestdata"
	"github.com/docuvault/docuvault-backend/internal/services"
)

// extractTokenFromAll looks for the access token in the Authorization header
// first, then the access_token cookie, then the query string (for SSE, where
// EventSource cannot set headers).
func extractTokenFromAll(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie
	}
	return strings.TrimSpace(c.Query("access_token"))
}

func extractRefreshToken(c *gin.Context) string {
	if cookie, err := c.Cookie("refresh_token"); err == nil && cookie != "" {
		return cookie
	}
	return strings.TrimSpace(c.GetHeader("X-Refresh-Token"))
}

// AttachRequestData stamps an empty RequestData with whatever tokens the
// request carries. Runs on every route, including public ones, so the refresh
// endpoint can find its token.
func AttachRequestData() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &requestdata.RequestData{
			TokenString:  extractTokenFromAll(c),
			RefreshToken: extractRefreshToken(c),
		}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

// RequireAuth validates the access token and resolves the user id into the
// request data. Rejects with 401 on any failure.
func RequireAuth(authService services.AuthService, log *logger.Logger) gin.HandlerFunc {
	mwLog := log.With("middleware", "RequireAuth")
	return func(c *gin.Context) {
		ctx, err := authService.SetContextFromToken(c.Request.Context())
		if err != nil {
			mwLog.Debug("Auth rejected", "path", c.FullPath(), "error", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
