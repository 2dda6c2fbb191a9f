package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
)

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) createAffiliate(c *gin.Context) {
	var req affdomain.CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	affiliate, err := s.affiliateSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, affiliate)
}

func (s *Server) listAffiliates(c *gin.Context) {
	var req affdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	affiliates, pageInfo, err := s.affiliateSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": affiliates, "page_info": pageInfo})
}

func (s *Server) getAffiliate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	affiliate, err := s.affiliateSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, affiliate)
}

func (s *Server) getAffiliateByCode(c *gin.Context) {
	affiliate, err := s.affiliateSvc.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, affiliate)
}

func (s *Server) updateAffiliateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req affdomain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	affiliate, err := s.affiliateSvc.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, affiliate)
}

func (s *Server) recomputeAffiliateTier(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	affiliate, upgraded, err := s.affiliateSvc.RecomputeTier(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"affiliate": affiliate, "upgraded": upgraded})
}

func (s *Server) affiliateStats(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	stats, err := s.affiliateSvc.Stats(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (s *Server) affiliateLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	affiliates, err := s.affiliateSvc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": affiliates})
}

func (s *Server) linkCustomer(c *gin.Context) {
	var req affdomain.LinkCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	link, err := s.affiliateSvc.LinkCustomer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}
