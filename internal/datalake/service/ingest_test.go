package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotJSON(t *testing.T, s *Store) string {
	t.Helper()
	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	return string(raw)
}

func TestIngestConfiguration_NewRecords(t *testing.T) {
	s := newTestStore(t)

	res := ingestConfiguration(t, s.Store, configurationFeed)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Empty(t, res.Diagnostics)
	assert.True(t, res.Persisted)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, domain.Counter{New: 2}, res.Counts.Resources)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Categories)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Configurations)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Clients)
	assert.Equal(t, domain.Counter{New: 3}, res.Counts.Instances)
	assert.Contains(t, res.Message, "resources 2 new/0 updated")
	assert.Equal(t, 1, s.repo.saves)

	core, err := s.FindResource(1)
	require.NoError(t, err)
	assert.Equal(t, domain.ResourceKindHardware, core.Kind)
	assert.True(t, decimal.NewFromInt(5).Equal(core.HourlyRate))

	web2, err := s.FindInstance("123456-7", 1001)
	require.NoError(t, err)
	assert.Equal(t, "02/03/2025", web2.StartDate)
	assert.Equal(t, domain.InstanceStatusActive, web2.Status)
	assert.Nil(t, web2.EndDate)

	legacy, err := s.FindInstance("123456-7", 1002)
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceStatusCancelled, legacy.Status)
	require.NotNil(t, legacy.EndDate)
	assert.Equal(t, "15/02/2025", *legacy.EndDate)
}

func TestIngestConfiguration_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	before := snapshotJSON(t, s.Store)

	res := ingestConfiguration(t, s.Store, configurationFeed)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	assert.Equal(t, domain.Counter{Updated: 2}, res.Counts.Resources)
	assert.Equal(t, domain.Counter{Updated: 1}, res.Counts.Categories)
	assert.Equal(t, domain.Counter{Updated: 1}, res.Counts.Configurations)
	assert.Equal(t, domain.Counter{Updated: 1}, res.Counts.Clients)
	assert.Equal(t, domain.Counter{Updated: 3}, res.Counts.Instances)
	assert.JSONEq(t, before, snapshotJSON(t, s.Store))
}

func TestIngestConfiguration_UpdateKeepsFieldsWhenBlank(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)

	res := ingestConfiguration(t, s.Store, `<root>
  <listaRecursos>
    <recurso id="1"><nombre></nombre><valorXhora>6.25</valorXhora></recurso>
  </listaRecursos>
  <listaCategorias>
    <categoria id="10">
      <listaConfiguraciones>
        <configuracion id="100">
          <recursosConfiguracion><recurso id="2">4</recurso></recursosConfiguracion>
        </configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
</root>`)

	assert.Equal(t, domain.StatusSuccess, res.Status)
	core, err := s.FindResource(1)
	require.NoError(t, err)
	assert.Equal(t, "Core", core.Name)
	assert.Equal(t, "vCPU", core.Abbreviation)
	assert.True(t, decimal.RequireFromString("6.25").Equal(core.HourlyRate))

	cfg, err := s.FindConfiguration(100)
	require.NoError(t, err)
	assert.Equal(t, "Small", cfg.Name)
	require.Len(t, cfg.Resources, 1)
	assert.Equal(t, int64(2), cfg.Resources[0].ResourceID)
	assert.True(t, decimal.NewFromInt(4).Equal(cfg.Resources[0].Quantity))
}

func TestIngestConfiguration_ConfigurationIDIsGlobal(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)

	res := ingestConfiguration(t, s.Store, `<root>
  <listaCategorias>
    <categoria id="20">
      <nombre>Storage</nombre>
      <listaConfiguraciones>
        <configuracion id="100"><nombre>Stolen</nombre></configuracion>
        <configuracion id="200">
          <nombre>Archive</nombre>
          <recursosConfiguracion><recurso id="2">8</recurso></recursosConfiguracion>
        </configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
</root>`)

	assert.Equal(t, domain.StatusPartial, res.Status)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "already belongs to category 10")
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Categories)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Configurations)

	owner := s.CategoryOfConfiguration(100)
	require.NotNil(t, owner)
	assert.Equal(t, int64(10), *owner)
	owner = s.CategoryOfConfiguration(200)
	require.NotNil(t, owner)
	assert.Equal(t, int64(20), *owner)

	cfg, err := s.FindConfiguration(100)
	require.NoError(t, err)
	assert.Equal(t, "Small", cfg.Name)
	assert.Len(t, s.ListConfigurations(), 2)
}

func TestIngestConfiguration_RecordErrors(t *testing.T) {
	s := newTestStore(t)

	res := ingestConfiguration(t, s.Store, `<root>
  <listaRecursos>
    <recurso id="x"><nombre>Bad id</nombre></recurso>
    <recurso id="1"><nombre>Core</nombre><abreviatura>vCPU</abreviatura><metrica>cores</metrica><tipo>Hardware</tipo><valorXhora>5</valorXhora></recurso>
    <recurso id="2"><nombre>Missing rate</nombre><abreviatura>R</abreviatura><metrica>u</metrica><tipo>Software</tipo></recurso>
    <recurso id="3"><nombre>Neg</nombre><abreviatura>N</abreviatura><metrica>u</metrica><tipo>Software</tipo><valorXhora>-1</valorXhora></recurso>
    <recurso id="4"><nombre>Kind</nombre><abreviatura>K</abreviatura><metrica>u</metrica><tipo>Network</tipo><valorXhora>1</valorXhora></recurso>
  </listaRecursos>
  <listaCategorias>
    <categoria id="10">
      <listaConfiguraciones><configuracion id="99"><nombre>Orphan</nombre></configuracion></listaConfiguraciones>
    </categoria>
    <categoria id="11">
      <nombre>Compute</nombre>
      <listaConfiguraciones>
        <configuracion id="100">
          <nombre>Small</nombre>
          <recursosConfiguracion>
            <recurso id="1">2</recurso>
            <recurso id="1">3</recurso>
            <recurso id="7">1</recurso>
            <recurso id="abc">1</recurso>
          </recursosConfiguracion>
        </configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
  <listaClientes>
    <cliente nit="1234567">
      <nombre>No hyphen</nombre><usuario>u</usuario><clave>c</clave><direccion>d</direccion><correoElectronico>e</correoElectronico>
      <listaInstancias><instancia id="1"><idConfiguracion>100</idConfiguracion><nombre>n</nombre><fechaInicio>01/01/2025</fechaInicio><estado>Vigente</estado></instancia></listaInstancias>
    </cliente>
    <cliente nit="99-K">
      <nombre>Beta</nombre><usuario>beta</usuario><clave>pw</clave><direccion>Zona 4</direccion><correoElectronico>beta@test</correoElectronico>
      <listaInstancias>
        <instancia id="1"><idConfiguracion>555</idConfiguracion><nombre>unknown cfg</nombre><fechaInicio>01/01/2025</fechaInicio><estado>Vigente</estado></instancia>
        <instancia id="2"><idConfiguracion>100</idConfiguracion><nombre>bad date</nombre><fechaInicio>2025-01-01</fechaInicio><estado>Vigente</estado></instancia>
        <instancia id="3"><idConfiguracion>100</idConfiguracion><nombre>no end</nombre><fechaInicio>01/01/2025</fechaInicio><estado>CANCELLED</estado></instancia>
        <instancia id="4"><idConfiguracion>100</idConfiguracion><nombre>ok</nombre><fechaInicio>01/01/2025</fechaInicio><estado>Vigente</estado></instancia>
      </listaInstancias>
    </cliente>
  </listaClientes>
</root>`)

	assert.Equal(t, domain.StatusPartial, res.Status)
	assert.True(t, res.Persisted)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Resources)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Categories)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Configurations)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Clients)
	assert.Equal(t, domain.Counter{New: 1}, res.Counts.Instances)
	// 4 resources, 1 category, 3 allocations, 1 client, 3 instances
	assert.Len(t, res.Diagnostics, 12)
	assert.Contains(t, res.Message, "12 issue(s)")

	cfg, err := s.FindConfiguration(100)
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(cfg.Resources[0].Quantity))

	_, err = s.FindClient("1234567")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)
	beta, err := s.FindClient("99-K")
	require.NoError(t, err)
	require.Len(t, beta.Instances, 1)
	assert.Equal(t, int64(4), beta.Instances[0].ID)
}

func TestIngestConfiguration_Malformed(t *testing.T) {
	s := newTestStore(t)

	res, err := s.IngestConfiguration(context.Background(), strings.NewReader(`<root>
  <listaRecursos>
    <recurso id="1"><nombre>Core</nombre><abreviatura>vCPU</abreviatura><metrica>cores</metrica><tipo>Hardware</tipo><valorXhora>5</valorXhora></recurso>
  </listaRecursos>
  <listaCategorias><categoria id="10"><nombre>Broken`))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusError, res.Status)
	assert.False(t, res.Persisted)
	assert.Equal(t, 0, s.repo.saves)
	assert.Len(t, s.ListResources(), 1)
	assert.Empty(t, s.ListCategories())
}

func TestIngestConfiguration_SaveFailure(t *testing.T) {
	repo := &memRepo{saveErr: errDiskFull}
	s := newTestStoreWithRepo(t, repo, nil)

	res := ingestConfiguration(t, s.Store, configurationFeed)

	assert.Equal(t, domain.StatusPartial, res.Status)
	assert.False(t, res.Persisted)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0], "state not persisted")
	assert.Len(t, s.ListClients(), 1)
}

func TestIngestConsumption(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	savesBefore := s.repo.saves

	res := ingestConsumption(t, s.Store, `<listadoConsumos>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>3.0</tiempo><fechaHora>10/03/2025 08:00</fechaHora></consumo>
  <grupo>
    <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>4.0</tiempo></consumo>
  </grupo>
  <consumo nitCliente="123456-7" idInstancia="1002"><tiempo>1</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>abc</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>-2</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="1000"></consumo>
  <consumo nitCliente="000-0" idInstancia="1000"><tiempo>1</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="42"><tiempo>1</tiempo></consumo>
  <consumo nitCliente="123456-7" idInstancia="x"><tiempo>1</tiempo></consumo>
</listadoConsumos>`)

	assert.Equal(t, domain.StatusPartial, res.Status)
	assert.Equal(t, 2, res.Counts.Applied)
	assert.Len(t, res.Diagnostics, 7)
	assert.Equal(t, "2 consumption record(s) applied; 7 issue(s)", res.Message)
	assert.True(t, res.Persisted)
	assert.Equal(t, savesBefore+1, s.repo.saves)

	web1, err := s.FindInstance("123456-7", 1000)
	require.NoError(t, err)
	require.Len(t, web1.PendingConsumption, 2)
	assert.True(t, decimal.NewFromInt(7).Equal(web1.PendingHours()))

	legacy, err := s.FindInstance("123456-7", 1002)
	require.NoError(t, err)
	assert.Empty(t, legacy.PendingConsumption)
}

func TestIngestConsumption_NothingApplied(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)
	savesBefore := s.repo.saves

	res := ingestConsumption(t, s.Store, `<consumo nitCliente="123456-7" idInstancia="1002"><tiempo>1</tiempo></consumo>`)

	assert.Equal(t, domain.StatusPartial, res.Status)
	assert.Equal(t, 0, res.Counts.Applied)
	assert.False(t, res.Persisted)
	assert.Equal(t, savesBefore, s.repo.saves)
}

func TestIngestConsumption_Malformed(t *testing.T) {
	s := newTestStore(t)
	ingestConfiguration(t, s.Store, configurationFeed)

	res, err := s.IngestConsumption(context.Background(), strings.NewReader(`<root>
  <consumo nitCliente="123456-7" idInstancia="1000"><tiempo>3</tiempo></consumo>
  <consumo nitCliente="123456-7"`))

	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusError, res.Status)

	web1, err := s.FindInstance("123456-7", 1000)
	require.NoError(t, err)
	assert.Empty(t, web1.PendingConsumption)
}
