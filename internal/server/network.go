package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) getUpline(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	upline, err := s.networkSvc.Upline(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": upline})
}

func (s *Server) getDownline(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	maxDepth, err := strconv.Atoi(c.DefaultQuery("max_depth", "3"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	downline, err := s.networkSvc.Downline(c.Request.Context(), id, maxDepth)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": downline})
}

func (s *Server) networkStats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	stats, err := s.networkSvc.Stats(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
