package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
)

// orderCompleted is the webhook for the upstream order system. Replays
// of the same order ID return 200 with already_processed set.
func (s *Server) orderCompleted(c *gin.Context) {
	var req comdomain.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.commissionSvc.ProcessSale(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) orderRefunded(c *gin.Context) {
	var req comdomain.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.commissionSvc.ProcessRefund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
