package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetEntitlements(c *gin.Context) {
	resolution, err := s.entitlementSvc.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (s *Server) ListEntitlementOverrides(c *gin.Context) {
	overrides, err := s.entitlementSvc.ListOverrides(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

type setOverrideRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) SetEntitlementOverride(c *gin.Context) {
	var req setOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resolution, err := s.entitlementSvc.SetOverride(c.Request.Context(), c.Param("id"), c.Param("feature"), *req.Enabled)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (s *Server) RemoveEntitlementOverride(c *gin.Context) {
	resolution, err := s.entitlementSvc.RemoveOverride(c.Request.Context(), c.Param("id"), c.Param("feature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}
