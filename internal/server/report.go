package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
)

func (s *Server) SalesReport(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.store.SalesReport(c.Request.Context(), domain.ReportFilter{From: from, To: to})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
