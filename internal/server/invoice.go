package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"go.uber.org/zap"
)

type generateInvoiceRequest struct {
	TaxID string `json:"tax_id"`
}

// GenerateInvoice bills pending consumption for one client. An info result
// means there was nothing to bill.
func (s *Server) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.TaxID) == "" {
		AbortWithError(c, newValidationError("tax_id", "invalid_tax_id", "tax_id is required"))
		return
	}

	res, err := s.store.GenerateInvoice(c.Request.Context(), req.TaxID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ListInvoices(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoices := s.store.ListInvoices(domain.InvoiceFilter{
		TaxID: strings.TrimSpace(c.Query("taxId")),
		From:  from,
		To:    to,
	})
	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoice(c *gin.Context) {
	inv, ok := s.lookupInvoice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	if s.pdf == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	inv, ok := s.lookupInvoice(c)
	if !ok {
		return
	}

	var client *domain.Client
	if found, err := s.store.FindClient(inv.ClientTaxID); err == nil {
		client = &found
	}

	doc, err := s.pdf.GenerateInvoice(c.Request.Context(), inv, client)
	if err != nil {
		s.log.Error("failed to render invoice pdf", zap.Error(err), zap.String("invoice_id", inv.ID.String()))
		AbortWithError(c, err)
		return
	}

	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, s.pdf.FileName(inv)),
	}
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, headers)
}

func (s *Server) lookupInvoice(c *gin.Context) (domain.Invoice, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid invoice id"))
		return domain.Invoice{}, false
	}

	inv, err := s.store.FindInvoice(id)
	if err != nil {
		AbortWithError(c, err)
		return domain.Invoice{}, false
	}
	return inv, true
}
