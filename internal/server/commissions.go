package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
)

func (s *Server) listCommissions(c *gin.Context) {
	var req comdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	commissions, pageInfo, err := s.commissionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": commissions, "page_info": pageInfo})
}

func (s *Server) getCommission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	commission, err := s.commissionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func (s *Server) approveCommission(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	commission, err := s.commissionSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func (s *Server) commissionSummary(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	summary, err := s.commissionSvc.Summary(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
