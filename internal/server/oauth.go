package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OAuthCallback lands the one-time setup redirect from the CRM and trades
// the authorization code for a stored token pair.
func (s *Server) OAuthCallback(c *gin.Context) {
	if errCode := strings.TrimSpace(c.Query("error")); errCode != "" {
		s.log.Warn("oauth callback rejected", zap.String("error", errCode))
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.tokens.Exchange(c.Request.Context(), code); err != nil {
		s.log.Error("oauth code exchange failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "authorized"})
}

func (s *Server) ListPipelines(c *gin.Context) {
	resp, err := s.pipelines.ListPipelines(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
