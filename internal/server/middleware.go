package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const HeaderAPISecret = "X-API-Secret"

// SecretRequired gates the admin API behind the shared cron secret.
// An empty configured secret rejects everything rather than opening up.
func (s *Server) SecretRequired() gin.HandlerFunc {
	secret := []byte(s.cfg.AdminSecret)
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader(HeaderAPISecret)))
		if len(secret) == 0 || subtle.ConstantTimeCompare(secret, got) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
