package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
)

func (s *Server) listTiers(c *gin.Context) {
	tiers, err := s.tierSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tiers})
}

func (s *Server) createTier(c *gin.Context) {
	var req tierdomain.CreateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tier, err := s.tierSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tier)
}
