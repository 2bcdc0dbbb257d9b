package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/contosowiki/sage/internal/config"
	sageerrors "github.com/contosowiki/sage/internal/errors"
)

// AuthMiddleware checks the bearer token on every request that reaches it.
// The gateway in front of this service is the real authentication
// boundary; this only verifies the token the gateway is expected to have
// already attached, rejecting requests that skipped it. An empty
// configured secret disables the check, for local development behind a
// gateway that strips the header anyway.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Auth.Secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeUnauthorized(c)
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.Auth.Secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeUnauthorized(c)
			return
		}

		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			c.Set("auth_subject", sub)
		}
		c.Next()
	}
}

func writeUnauthorized(c *gin.Context) {
	err := sageerrors.New(sageerrors.Unauthorized, "missing or invalid bearer token")
	c.AbortWithStatusJSON(httpStatusFor(sageerrors.Unauthorized), gin.H{"code": string(sageerrors.Unauthorized), "msg": err.Error()})
}
