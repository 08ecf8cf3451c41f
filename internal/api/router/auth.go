package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/dto"
	"github.com/cuongbtq/freelance-escrow/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware accepts HS256 bearer tokens signed with secret and stores
// the subject claim as the caller's user id
func AuthMiddleware(secret string, logger *slog.Logger) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return key, nil }

	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		if _, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, keyFunc); err != nil {
			logger.Warn("Rejected bearer token",
				slog.String("path", c.Request.URL.Path),
				slog.String("error", err.Error()),
			)
			abortUnauthorized(c, "invalid or expired token")
			return
		}

		if claims.Subject == "" {
			abortUnauthorized(c, "token has no subject")
			return
		}

		c.Set(handler.ContextUserIDKey, claims.Subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error: dto.ErrorBody{Kind: domain.KindUnauthorized, Message: message},
	})
}
