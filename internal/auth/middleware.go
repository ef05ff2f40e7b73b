package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahilsz/node-docker/internal/logging"
	"github.com/sahilsz/node-docker/internal/users"
)

// SessionResolver はセッションIDをユーザーに解決します。
type SessionResolver interface {
	Authenticate(ctx context.Context, sessionID string) (*users.Public, error)
}

// Guard は保護されたルートの前段でセッションを検証します。
type Guard struct {
	resolver SessionResolver
	logger   *slog.Logger
}

// NewGuard は Guard を作成します。
func NewGuard(resolver SessionResolver, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: resolver, logger: logger}
}

// RequireLogin はセッションを検証するミドルウェアを返します。
// 検証に失敗した場合は後続のハンドラーを呼ばずに 401 を返します。
func (g *Guard) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		user, err := g.resolver.Authenticate(ctx, sessionHandle(c))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"status":  "fail",
					"message": "unauthorized",
				})
				return
			}
			logging.LogError(ctx, g.logger, "session lookup failed", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status":  "fail",
				"message": "internal server error",
			})
			return
		}

		c.Request = c.Request.WithContext(WithUser(ctx, user))
		c.Next()
	}
}
