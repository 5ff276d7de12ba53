// Package http provides the operator HTTP server and request handlers.
package http

import (
	"log/slog"
	"strings"
	"time"

	"github.com/allisson/go-pwdhash"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
	"github.com/estatekit/fieldcrypt/internal/httputil"
)

// CustomLoggerMiddleware logs each request with its request id after the
// handler chain completes.
func CustomLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", requestid.Get(c)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// OperatorAuthMiddleware authenticates operator requests with a Bearer token
// compared against the configured Argon2id digest. An empty digest keeps
// every authenticated endpoint closed.
func OperatorAuthMiddleware(tokenHash string, logger *slog.Logger) gin.HandlerFunc {
	hasher, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate))
	if err != nil {
		panic(err)
	}

	reject := func(c *gin.Context, reason string) {
		logger.Debug("authentication failed", slog.String("reason", reason))
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
		c.Abort()
	}

	return func(c *gin.Context) {
		if tokenHash == "" {
			reject(c, "no operator token configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, "missing authorization header")
			return
		}

		const bearerPrefix = "bearer "
		if len(authHeader) < len(bearerPrefix) ||
			!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
			reject(c, "malformed authorization header")
			return
		}

		plainToken := strings.TrimSpace(authHeader[len(bearerPrefix):])
		if plainToken == "" {
			reject(c, "empty bearer token")
			return
		}

		ok, err := hasher.Verify([]byte(plainToken), tokenHash)
		if err != nil || !ok {
			reject(c, "token mismatch")
			return
		}

		c.Next()
	}
}
