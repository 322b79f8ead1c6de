package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleState() domain.State {
	categoryID := int64(10)
	end := "31/12/2024"
	return domain.State{
		Resources: []*domain.Resource{
			{ID: 1, Name: "vCPU", Abbreviation: "cpu", Unit: "core", Kind: domain.ResourceKindHardware, HourlyRate: decimal.RequireFromString("5.25")},
			{ID: 2, Name: "DB license", Abbreviation: "lic", Unit: "seat", Kind: domain.ResourceKindSoftware, HourlyRate: decimal.Zero},
		},
		Categories: []*domain.Category{
			{
				ID: 10, Name: "Compute", Description: "general", Workload: "web",
				Configurations: []*domain.Configuration{
					{ID: 100, Name: "small", Description: "s", Resources: []domain.ResourceAllocation{
						{ResourceID: 1, Quantity: decimal.NewFromInt(2)},
						{ResourceID: 2, Quantity: decimal.RequireFromString("0.5")},
					}},
					{ID: 101, Name: "empty", Resources: []domain.ResourceAllocation{}},
				},
			},
			{ID: 11, Name: "Storage", Configurations: []*domain.Configuration{}},
		},
		Clients: []*domain.Client{
			{
				TaxID: "123456-7", Name: "Acme", Username: "acme", Password: "  s3cret ", Address: "Main St", Email: "ops@acme.test",
				Instances: []*domain.Instance{
					{ID: 1, ConfigurationID: 100, Name: "web-1", StartDate: "01/01/2024", Status: domain.InstanceStatusActive,
						PendingConsumption: []decimal.Decimal{decimal.RequireFromString("1.5"), decimal.NewFromInt(3)}},
					{ID: 2, ConfigurationID: 101, Name: "old", StartDate: "01/01/2023", Status: domain.InstanceStatusCancelled,
						EndDate: &end, PendingConsumption: []decimal.Decimal{}},
				},
			},
		},
		Invoices: []*domain.Invoice{
			{
				ID: snowflake.ID(1795000000000000001), ClientTaxID: "123456-7", ClientName: "Acme", IssueDate: "15/03/2024",
				Total: decimal.NewFromInt(70),
				Lines: []domain.InvoiceInstanceLine{
					{
						InstanceID: 1, InstanceName: "web-1", ConfigurationID: 100, ConfigurationName: "small",
						CategoryID: &categoryID, Hours: decimal.NewFromInt(7), Subtotal: decimal.NewFromInt(70),
						Resources: []domain.InvoiceResourceLine{
							{ResourceID: 1, Name: "vCPU", Quantity: decimal.NewFromInt(2), Unit: "core", HourlyRate: decimal.NewFromInt(5), Subtotal: decimal.NewFromInt(70)},
						},
					},
					{InstanceID: 9, InstanceName: "orphan", ConfigurationID: 999, ConfigurationName: "gone",
						Hours: decimal.NewFromInt(1), Subtotal: decimal.Zero, Resources: []domain.InvoiceResourceLine{}},
				},
			},
		},
	}
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestXMLFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.xml")
	repo := NewXMLFile(path, zap.NewNop())
	want := sampleState()

	require.NoError(t, repo.Save(context.Background(), want))

	got, diags, err := NewXMLFile(path, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.JSONEq(t, toJSON(t, want), toJSON(t, *got))

	require.Len(t, got.Clients, 1)
	assert.Equal(t, "  s3cret ", got.Clients[0].Password)
	require.NotNil(t, got.Clients[0].Instances[1].EndDate)
	assert.Equal(t, "31/12/2024", *got.Clients[0].Instances[1].EndDate)
	assert.Nil(t, got.Clients[0].Instances[0].EndDate)
	assert.Nil(t, got.Invoices[0].Lines[1].CategoryID)
	assert.True(t, got.Resources[0].HourlyRate.Equal(decimal.RequireFromString("5.25")))
}

func TestXMLFile_SavedStateIsConfigurationFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.xml")
	require.NoError(t, NewXMLFile(path, nil).Save(context.Background(), sampleState()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(raw)
	assert.True(t, strings.HasPrefix(doc, "<?xml"))
	for _, fragment := range []string{
		"<datalake>",
		`<recurso id="1">`,
		"<valorXhora>5.25</valorXhora>",
		`<configuracion id="100">`,
		`<cliente nit="123456-7">`,
		"<consumosPendientes>",
		`<factura id="1795000000000000001">`,
		`<detalleRecurso idRecurso="1">`,
	} {
		assert.Contains(t, doc, fragment)
	}
}

func TestXMLFile_LoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	state, diags, err := NewXMLFile(filepath.Join(dir, "absent.xml"), nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Empty(t, state.Resources)

	empty := filepath.Join(dir, "empty.xml")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	state, diags, err = NewXMLFile(empty, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Empty(t, state.Clients)
}

func TestXMLFile_LoadCorruptMovesFileAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.xml")
	require.NoError(t, os.WriteFile(path, []byte("<datalake><listaRecursos>"), 0o644))

	state, diags, err := NewXMLFile(path, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Resources)
	assert.Len(t, diags, 1)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestXMLFile_LoadSkipsBadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.xml")
	doc := `<datalake>
  <listaRecursos>
    <recurso id="x"><nombre>bad id</nombre></recurso>
    <recurso id="2"><nombre>bad kind</nombre><tipo>plasma</tipo><valorXhora>1</valorXhora></recurso>
    <recurso id="3"><nombre>ok</nombre><tipo>software</tipo><valorXhora>1</valorXhora></recurso>
  </listaRecursos>
  <listaCategorias>
    <categoria id="1"><nombre>first</nombre>
      <listaConfiguraciones><configuracion id="5"><nombre>owner</nombre></configuracion></listaConfiguraciones>
    </categoria>
    <categoria id="2"><nombre>second</nombre>
      <listaConfiguraciones>
        <configuracion id="5"><nombre>duplicate</nombre></configuracion>
        <configuracion id="6"><nombre>kept</nombre></configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
  <listaClientes>
    <cliente nit="1-1">
      <listaInstancias>
        <instancia id="1"><idConfiguracion>abc</idConfiguracion></instancia>
        <instancia id="2"><idConfiguracion>5</idConfiguracion><estado>ACTIVE</estado>
          <consumosPendientes><consumo>2</consumo><consumo>nope</consumo></consumosPendientes>
        </instancia>
      </listaInstancias>
    </cliente>
  </listaClientes>
  <listaFacturas><factura id="not-a-number"><total>1</total></factura></listaFacturas>
</datalake>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	state, diags, err := NewXMLFile(path, nil).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Resources, 1)
	assert.Equal(t, int64(3), state.Resources[0].ID)
	require.Len(t, state.Categories, 2)
	require.Len(t, state.Categories[0].Configurations, 1)
	assert.Equal(t, "owner", state.Categories[0].Configurations[0].Name)
	require.Len(t, state.Categories[1].Configurations, 1)
	assert.Equal(t, int64(6), state.Categories[1].Configurations[0].ID)
	require.Len(t, state.Clients, 1)
	require.Len(t, state.Clients[0].Instances, 1)
	inst := state.Clients[0].Instances[0]
	assert.Equal(t, int64(2), inst.ID)
	require.Len(t, inst.PendingConsumption, 1)
	assert.True(t, inst.PendingConsumption[0].Equal(decimal.NewFromInt(2)))
	assert.Empty(t, state.Invoices)
	assert.Len(t, diags, 6)
	assert.Contains(t, strings.Join(diags, "\n"), "configuration 5 already belongs to category 1")
}

func TestXMLFile_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.xml")
	repo := NewXMLFile(path, nil)
	require.NoError(t, repo.Save(context.Background(), sampleState()))
	require.NoError(t, repo.Reset(context.Background()))

	state, diags, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Empty(t, state.Resources)
	assert.Empty(t, state.Categories)
	assert.Empty(t, state.Clients)
	assert.Empty(t, state.Invoices)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
