package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() domain.Invoice {
	category := int64(10)
	return domain.Invoice{
		ID:          snowflake.ID(1234),
		ClientTaxID: "123456-7",
		ClientName:  "Acme S.A.",
		IssueDate:   "10/03/2025",
		Total:       decimal.NewFromInt(70),
		Lines: []domain.InvoiceInstanceLine{{
			InstanceID:        1000,
			InstanceName:      "web-1",
			ConfigurationID:   100,
			ConfigurationName: "Small",
			CategoryID:        &category,
			Hours:             decimal.NewFromInt(7),
			Subtotal:          decimal.NewFromInt(70),
			Resources: []domain.InvoiceResourceLine{{
				ResourceID: 1,
				Name:       "Core",
				Quantity:   decimal.NewFromInt(2),
				Unit:       "cores",
				HourlyRate: decimal.NewFromInt(5),
				Subtotal:   decimal.NewFromInt(70),
			}},
		}},
	}
}

func TestNewInvoiceData(t *testing.T) {
	client := &domain.Client{TaxID: "123456-7", Address: "Zona 1", Email: "ops@acme.test"}

	data := NewInvoiceData(sampleInvoice(), client, config.DefaultInvoiceSettings())

	assert.Equal(t, "1234", data.InvoiceNumber)
	assert.Equal(t, "70.00", data.Total)
	assert.Equal(t, "Zona 1", data.BillToAddress)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "web-1 (Small, #1000)", data.Items[0].Description)
	assert.Equal(t, "7", data.Items[0].Hours)
	assert.False(t, data.Items[0].Detail)
	assert.Equal(t, "2 cores Core", data.Items[1].Description)
	assert.Equal(t, "5.00", data.Items[1].Rate)
	assert.True(t, data.Items[1].Detail)
}

func TestGenerateInvoice(t *testing.T) {
	provider := New(config.NewStaticInvoiceSettings(config.DefaultInvoiceSettings()))

	reader, err := provider.GenerateInvoice(context.Background(), sampleInvoice(), nil)
	require.NoError(t, err)

	raw, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

func TestFileName(t *testing.T) {
	provider := New(nil)
	assert.Equal(t, "factura-acme-s-a-1234.pdf", provider.FileName(sampleInvoice()))
}
