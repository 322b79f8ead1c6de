package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webConsumption = `<consumos>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>3.0</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>4.0</tiempo></consumo>
</consumos>`

func TestGenerateInvoice_Arithmetic(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	ingestConsumption(t, s.Store, webConsumption)

	res, err := s.GenerateInvoice(context.Background(), "123456-7")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.True(t, res.Persisted)
	require.NotNil(t, res.Invoice)
	inv := res.Invoice
	assert.Equal(t, "123456-7", inv.ClientTaxID)
	assert.Equal(t, "Acme", inv.ClientName)
	assert.Equal(t, "10/03/2025", inv.IssueDate)
	assert.True(t, decimal.NewFromInt(70).Equal(inv.Total), "total %s", inv.Total)

	require.Len(t, inv.Lines, 1)
	line := inv.Lines[0]
	assert.Equal(t, int64(1000), line.InstanceID)
	assert.Equal(t, "Small", line.ConfigurationName)
	require.NotNil(t, line.CategoryID)
	assert.Equal(t, int64(10), *line.CategoryID)
	assert.True(t, decimal.NewFromInt(7).Equal(line.Hours))
	assert.True(t, decimal.NewFromInt(70).Equal(line.Subtotal))
	require.Len(t, line.Resources, 1)
	assert.Equal(t, "Core", line.Resources[0].Name)
	assert.True(t, decimal.NewFromInt(70).Equal(line.Resources[0].Subtotal))

	stored, err := s.FindInvoice(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, stored.ID)
}

func TestGenerateInvoice_ClearsOnlyContributingInstances(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	ingestConsumption(t, s.Store, webConsumption)

	_, err := s.GenerateInvoice(context.Background(), "123456-7")
	require.NoError(t, err)

	web1, err := s.FindInstance("123456-7", 1000)
	require.NoError(t, err)
	assert.Empty(t, web1.PendingConsumption)
	web2, err := s.FindInstance("123456-7", 1001)
	require.NoError(t, err)
	assert.Empty(t, web2.PendingConsumption)
}

func TestGenerateInvoice_MissingConfigurationKeepsPending(t *testing.T) {
	orphan := &domain.Instance{
		ID:                 7,
		ConfigurationID:    999,
		Name:               "orphan",
		StartDate:          "01/01/2025",
		Status:             domain.InstanceStatusActive,
		PendingConsumption: []decimal.Decimal{decimal.NewFromInt(5)},
	}
	billed := &domain.Instance{
		ID:                 8,
		ConfigurationID:    100,
		Name:               "billed",
		StartDate:          "01/01/2025",
		Status:             domain.InstanceStatusActive,
		PendingConsumption: []decimal.Decimal{decimal.NewFromInt(2)},
	}
	repo := &memRepo{state: &domain.State{
		Resources: []*domain.Resource{
			{ID: 1, Name: "Core", Abbreviation: "vCPU", Unit: "cores", Kind: domain.ResourceKindHardware, HourlyRate: decimal.NewFromInt(3)},
		},
		Categories: []*domain.Category{{
			ID:   10,
			Name: "Compute",
			Configurations: []*domain.Configuration{{
				ID:   100,
				Name: "Small",
				Resources: []domain.ResourceAllocation{
					{ResourceID: 1, Quantity: decimal.NewFromInt(2)},
					{ResourceID: 2, Quantity: decimal.NewFromInt(1)},
				},
			}},
		}},
		Clients: []*domain.Client{{
			TaxID:     "99-K",
			Name:      "Beta",
			Instances: []*domain.Instance{orphan, billed},
		}},
	}}
	s := newTestStoreWithRepo(t, repo, nil)

	res, err := s.GenerateInvoice(context.Background(), "99-K")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, res.Status)
	assert.Len(t, res.Diagnostics, 2)
	require.NotNil(t, res.Invoice)
	require.Len(t, res.Invoice.Lines, 1)
	assert.Equal(t, int64(8), res.Invoice.Lines[0].InstanceID)
	assert.Len(t, res.Invoice.Lines[0].Resources, 1)
	assert.True(t, decimal.NewFromInt(12).Equal(res.Invoice.Total))

	kept, err := s.FindInstance("99-K", 7)
	require.NoError(t, err)
	assert.Len(t, kept.PendingConsumption, 1)
	cleared, err := s.FindInstance("99-K", 8)
	require.NoError(t, err)
	assert.Empty(t, cleared.PendingConsumption)
}

func TestGenerateInvoice_NoPendingConsumption(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	savesBefore := s.repo.saves

	res, err := s.GenerateInvoice(context.Background(), "123456-7")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInfo, res.Status)
	assert.Equal(t, "no pending consumption", res.Message)
	assert.Nil(t, res.Invoice)
	assert.Empty(t, s.ListInvoices(domain.InvoiceFilter{}))
	assert.Equal(t, savesBefore, s.repo.saves)
}

func TestGenerateInvoice_UnknownClient(t *testing.T) {
	s := newTestStore(t)

	res, err := s.GenerateInvoice(context.Background(), "1-1")

	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
}

func TestGenerateInvoice_UniqueIDs(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		ingestConsumption(t, s.Store, webConsumption)
		res, err := s.GenerateInvoice(context.Background(), "123456-7")
		require.NoError(t, err)
		require.NotNil(t, res.Invoice)
		_, dup := seen[res.Invoice.ID.String()]
		assert.False(t, dup)
		seen[res.Invoice.ID.String()] = struct{}{}
	}
	assert.Len(t, s.ListInvoices(domain.InvoiceFilter{TaxID: "123456-7"}), 5)
	assert.Empty(t, s.ListInvoices(domain.InvoiceFilter{TaxID: "99-K"}))
}
