package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetSubscription(c *gin.Context) {
	subscription, err := s.subscriptionSvc.GetByParty(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}

func (s *Server) CancelSubscription(c *gin.Context) {
	subscription, err := s.subscriptionSvc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, subscription)
}
