package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
)

func (s *Server) CreateParty(c *gin.Context) {
	var req partydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	node, err := s.partySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, node)
}

func (s *Server) GetParty(c *gin.Context) {
	node, err := s.partySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node)
}

func (s *Server) GetPartyAncestors(c *gin.Context) {
	chain, err := s.partySvc.AncestorChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ancestors": chain})
}

func (s *Server) GetPartyChildren(c *gin.Context) {
	children, err := s.partySvc.Children(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"children": children})
}

type setCommissionRateRequest struct {
	CommissionRate *int `json:"commission_rate" binding:"required"`
}

func (s *Server) SetCommissionRate(c *gin.Context) {
	var req setCommissionRateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CommissionRate == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	node, err := s.partySvc.SetCommissionRate(c.Request.Context(), c.Param("id"), *req.CommissionRate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node)
}

type changeTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

func (s *Server) ChangePartyTier(c *gin.Context) {
	var req changeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	node, err := s.partySvc.ChangeTier(c.Request.Context(), c.Param("id"), req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node)
}

func (s *Server) SuspendParty(c *gin.Context) {
	node, err := s.partySvc.Suspend(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, node)
}

func (s *Server) DeleteParty(c *gin.Context) {
	if err := s.partySvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
