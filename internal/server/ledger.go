package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// parseWindow reads optional from/to query params in RFC 3339.
func parseWindow(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, ErrInvalidRequest
		}
		from = &parsed
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, ErrInvalidRequest
		}
		to = &parsed
	}
	return from, to, nil
}

func (s *Server) GetLedgerEntries(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledgerSvc.EntriesByParty(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) GetLedgerSummary(c *gin.Context) {
	from, to, err := parseWindow(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.ledgerSvc.SumByParty(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ReverseTransaction(c *gin.Context) {
	entries, err := s.ledgerSvc.Reverse(c.Request.Context(), c.Param("source"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
