package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/middleware"
	"github.com/makkenzo/prospect-enrichment-api/internal/ierr"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Me echoes the caller's token claims.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		_ = c.Error(fmt.Errorf("%w: no credentials", ierr.ErrUnauthorized))
		return
	}

	resp := gin.H{
		"subject": claims.Subject,
		"role":    claims.Role,
	}
	if claims.ExpiresAt != nil {
		resp["expires_at"] = claims.ExpiresAt.Time
	}
	c.JSON(http.StatusOK, resp)
}
