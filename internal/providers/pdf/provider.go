package pdf

import (
	"context"
	"fmt"
	"io"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Provider renders invoice documents.
type Provider interface {
	GenerateInvoice(ctx context.Context, invoice domain.Invoice, client *domain.Client) (io.Reader, error)
	FileName(invoice domain.Invoice) string
}

type PDFProvider struct {
	settings *config.InvoiceSettingsHolder
}

func New(settings *config.InvoiceSettingsHolder) Provider {
	if settings == nil {
		settings = config.NewStaticInvoiceSettings(config.DefaultInvoiceSettings())
	}
	return &PDFProvider{settings: settings}
}

// FileName builds a download name such as "factura-acme-s-a-1234".
func (p *PDFProvider) FileName(invoice domain.Invoice) string {
	return slug.Make(fmt.Sprintf("factura %s %s", invoice.ClientName, invoice.ID)) + ".pdf"
}
