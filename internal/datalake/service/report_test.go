package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestSalesReport(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	ctx := context.Background()

	// 10/03: 7h on web-1 => 70
	ingestConsumption(t, s.Store, webConsumption)
	_, err := s.GenerateInvoice(ctx, "123456-7")
	require.NoError(t, err)

	// 15/03: 1h on web-2 => 10
	s.clock.Set(day(15))
	ingestConsumption(t, s.Store, `<consumo nitCliente="123456-7" idInstancia="1001"><tiempo>1</tiempo></consumo>`)
	_, err = s.GenerateInvoice(ctx, "123456-7")
	require.NoError(t, err)

	t.Run("all invoices", func(t *testing.T) {
		report, err := s.SalesReport(ctx, domain.ReportFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, report.InvoiceCount)
		assert.True(t, decimal.NewFromInt(80).Equal(report.Total))
		require.Len(t, report.ByCategory, 1)
		assert.Equal(t, "Compute", report.ByCategory[0].Name)
		require.NotNil(t, report.ByCategory[0].ID)
		assert.Equal(t, int64(10), *report.ByCategory[0].ID)
		require.Len(t, report.ByResource, 1)
		assert.Equal(t, "Core", report.ByResource[0].Name)
		assert.True(t, decimal.NewFromInt(80).Equal(report.ByResource[0].Revenue))
	})

	t.Run("bounded range is inclusive", func(t *testing.T) {
		report, err := s.SalesReport(ctx, domain.ReportFilter{From: day(11), To: day(15)})
		require.NoError(t, err)
		assert.Equal(t, 1, report.InvoiceCount)
		assert.True(t, decimal.NewFromInt(10).Equal(report.Total))
		assert.Equal(t, "11/03/2025", report.From)
		assert.Equal(t, "15/03/2025", report.To)
	})

	t.Run("open upper bound", func(t *testing.T) {
		report, err := s.SalesReport(ctx, domain.ReportFilter{To: day(10)})
		require.NoError(t, err)
		assert.Equal(t, 1, report.InvoiceCount)
		assert.True(t, decimal.NewFromInt(70).Equal(report.Total))
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := s.SalesReport(ctx, domain.ReportFilter{From: day(15), To: day(10)})
		assert.ErrorIs(t, err, domain.ErrInvalidRange)
	})

	t.Run("invoice listing uses the same bounds", func(t *testing.T) {
		assert.Len(t, s.ListInvoices(domain.InvoiceFilter{From: day(12)}), 1)
		assert.Len(t, s.ListInvoices(domain.InvoiceFilter{From: day(1), To: day(31)}), 2)
	})
}

func TestSalesReport_SortsByRevenue(t *testing.T) {
	table := newRevenueTable()
	a, b := int64(1), int64(2)
	table.add(&a, "small", decimal.NewFromInt(5))
	table.add(nil, uncategorized, decimal.NewFromInt(7))
	table.add(&b, "large", decimal.NewFromInt(20))
	table.add(&a, "small", decimal.NewFromInt(10))

	rows := table.sorted()

	require.Len(t, rows, 3)
	assert.Equal(t, "large", rows[0].Name)
	assert.Equal(t, "small", rows[1].Name)
	assert.True(t, decimal.NewFromInt(15).Equal(rows[1].Revenue))
	assert.Equal(t, uncategorized, rows[2].Name)
	assert.Nil(t, rows[2].ID)
}
