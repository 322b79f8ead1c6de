package pdf

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	appconfig "github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
)

type InvoiceData struct {
	IssuerName    string
	IssuerAddress string
	IssuerEmail   string
	Currency      string

	InvoiceNumber string
	IssueDate     string

	BillToName    string
	BillToTaxID   string
	BillToAddress string
	BillToEmail   string

	Items []InvoiceItem
	Total string
}

// InvoiceItem is one printed row. Resource rows are indented under their
// instance row.
type InvoiceItem struct {
	Description string
	Hours       string
	Rate        string
	Amount      string
	Detail      bool
}

// NewInvoiceData flattens an invoice into printable rows. client may be nil
// when the client no longer exists.
func NewInvoiceData(invoice domain.Invoice, client *domain.Client, settings appconfig.InvoiceSettings) InvoiceData {
	data := InvoiceData{
		IssuerName:    settings.IssuerName,
		IssuerAddress: settings.IssuerAddress,
		IssuerEmail:   settings.IssuerEmail,
		Currency:      settings.Currency,
		InvoiceNumber: invoice.ID.String(),
		IssueDate:     invoice.IssueDate,
		BillToName:    invoice.ClientName,
		BillToTaxID:   invoice.ClientTaxID,
		Total:         invoice.Total.StringFixed(2),
	}
	if client != nil {
		data.BillToAddress = client.Address
		data.BillToEmail = client.Email
	}
	for _, l := range invoice.Lines {
		data.Items = append(data.Items, InvoiceItem{
			Description: l.InstanceName + " (" + l.ConfigurationName + ", #" + strconv.FormatInt(l.InstanceID, 10) + ")",
			Hours:       l.Hours.String(),
			Amount:      l.Subtotal.StringFixed(2),
		})
		for _, r := range l.Resources {
			data.Items = append(data.Items, InvoiceItem{
				Description: r.Quantity.String() + " " + r.Unit + " " + r.Name,
				Rate:        r.HourlyRate.StringFixed(2),
				Amount:      r.Subtotal.StringFixed(2),
				Detail:      true,
			})
		}
	}
	return data
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice domain.Invoice, client *domain.Client) (io.Reader, error) {
	data := NewInvoiceData(invoice, client, p.settings.Get())
	doc, err := render(data)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc), nil
}

func render(data InvoiceData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, data.IssuerName, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "Invoice", props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New(data.IssuerAddress, props.Text{Top: 0}),
			text.New(data.IssuerEmail, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Invoice number: "+data.InvoiceNumber, props.Text{Top: 0, Align: align.Right}),
			text.New("Date of issue: "+data.IssueDate, props.Text{Top: 5, Align: align.Right}),
			text.New("Currency: "+data.Currency, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(25,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(data.BillToName, props.Text{Top: 5}),
			text.New("NIT "+data.BillToTaxID, props.Text{Top: 9}),
			text.New(data.BillToAddress, props.Text{Top: 13}),
			text.New(data.BillToEmail, props.Text{Top: 17}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Hours", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Rate / h", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range data.Items {
		style := props.Text{Size: 9}
		if item.Detail {
			style = props.Text{Size: 8, Left: 4}
		}
		right := style
		right.Align = align.Right
		m.AddRow(7,
			text.NewCol(6, item.Description, style),
			text.NewCol(2, item.Hours, right),
			text.NewCol(2, item.Rate, right),
			text.NewCol(2, item.Amount, right),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.Currency+" "+data.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
