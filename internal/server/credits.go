package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
)

func (s *Server) createBalance(c *gin.Context) {
	var req creditdomain.CreateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.creditSvc.CreateBalance(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, balance)
}

func (s *Server) getBalance(c *gin.Context) {
	balance, err := s.creditSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

func (s *Server) debitBalance(c *gin.Context) {
	balanceID := c.Param("id")
	if s.debitLimiter != nil && !s.debitLimiter.Allow(c.Request.Context(), balanceID) {
		AbortWithError(c, ErrRateLimited)
		return
	}

	var req creditdomain.DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BalanceID = balanceID

	result, err := s.creditSvc.Debit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) grantBalance(c *gin.Context) {
	var req creditdomain.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BalanceID = c.Param("id")

	result, err := s.creditSvc.Grant(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) checkBalance(c *gin.Context) {
	needed, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil || needed <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sufficient, err := s.creditSvc.HasSufficient(c.Request.Context(), c.Param("id"), needed)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sufficient": sufficient})
}

func (s *Server) getJournal(c *gin.Context) {
	entries, err := s.creditSvc.Journal(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
