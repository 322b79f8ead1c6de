package service

import (
	"context"
	"os"
	"testing"

	"github.com/smallbiznis/datalake/internal/clock"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripThroughStateFile(t *testing.T) {
	path := tempStatePath(t)
	clk := clock.NewFakeClock(fixedNow)

	first := newFileStore(t, path, clk)
	ingestConfiguration(t, first, configurationFeed)
	ingestConsumption(t, first, webConsumption)
	_, err := first.GenerateInvoice(context.Background(), "123456-7")
	require.NoError(t, err)
	ingestConsumption(t, first, `<consumo nitCliente="123456-7" idInstancia="1001"><tiempo>2.25</tiempo></consumo>`)
	before := snapshotJSON(t, first)

	second := newFileStore(t, path, clk)

	assert.JSONEq(t, before, snapshotJSON(t, second))
	client, err := second.FindClient("123456-7")
	require.NoError(t, err)
	assert.Equal(t, "secret", client.Password)
	owner := second.CategoryOfConfiguration(100)
	require.NotNil(t, owner)
	assert.Equal(t, int64(10), *owner)
	require.Len(t, second.ListInvoices(domain.InvoiceFilter{}), 1)
}

func TestCreatedClientPasswordSurvivesReload(t *testing.T) {
	path := tempStatePath(t)
	clk := clock.NewFakeClock(fixedNow)

	first := newFileStore(t, path, clk)
	_, err := first.CreateClient(context.Background(), domain.CreateClientRequest{
		TaxID: "77-1", Name: "Gamma", Username: "gamma", Password: "  pw  ", Address: "Zona 1", Email: "g@test",
	})
	require.NoError(t, err)

	client, err := newFileStore(t, path, clk).FindClient("77-1")
	require.NoError(t, err)
	assert.Equal(t, "  pw  ", client.Password)
}

func TestPersistedStateIsAConfigurationFeed(t *testing.T) {
	path := tempStatePath(t)
	clk := clock.NewFakeClock(fixedNow)
	first := newFileStore(t, path, clk)
	ingestConfiguration(t, first, configurationFeed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	other := newFileStore(t, tempStatePath(t), clk)
	res := ingestConfiguration(t, other, string(raw))
	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.JSONEq(t, snapshotJSON(t, first), snapshotJSON(t, other))
}

func TestSaveOnDemand(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 1, s.repo.saves)

	s.repo.saveErr = errDiskFull
	assert.ErrorIs(t, s.Save(context.Background()), errDiskFull)
}
