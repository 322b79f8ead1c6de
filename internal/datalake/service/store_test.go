package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/clock"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/datalake/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -- Fakes --

type memRepo struct {
	mu      sync.Mutex
	state   *domain.State
	saveErr error
	saves   int
}

func (r *memRepo) Load(context.Context) (*domain.State, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return &domain.State{}, nil, nil
	}
	return r.state, nil, nil
}

func (r *memRepo) Save(_ context.Context, state domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.state = &state
	return nil
}

func (r *memRepo) Reset(ctx context.Context) error {
	return r.Save(ctx, domain.State{})
}

type auditMock struct {
	mock.Mock
}

func (m *auditMock) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	args := m.Called(ctx, action, targetType, targetID, metadata)
	return args.Error(0)
}

func (m *auditMock) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

// -- Fixtures --

const configurationFeed = `<?xml version="1.0" encoding="UTF-8"?>
<archivoConfiguraciones>
  <listaRecursos>
    <recurso id="1">
      <nombre>Core</nombre><abreviatura>vCPU</abreviatura><metrica>cores</metrica>
      <tipo>Hardware</tipo><valorXhora>5.0</valorXhora>
    </recurso>
    <recurso id="2">
      <nombre>Memory</nombre><abreviatura>RAM</abreviatura><metrica>GiB</metrica>
      <tipo>HARDWARE</tipo><valorXhora>0.5</valorXhora>
    </recurso>
  </listaRecursos>
  <listaCategorias>
    <categoria id="10">
      <nombre>Compute</nombre><descripcion>General purpose</descripcion><cargaTrabajo>web</cargaTrabajo>
      <listaConfiguraciones>
        <configuracion id="100">
          <nombre>Small</nombre><descripcion>two cores</descripcion>
          <recursosConfiguracion><recurso id="1">2</recurso></recursosConfiguracion>
        </configuracion>
      </listaConfiguraciones>
    </categoria>
  </listaCategorias>
  <listaClientes>
    <cliente nit="123456-7">
      <nombre>Acme</nombre><usuario>acme</usuario><clave>secret</clave>
      <direccion>Zona 1</direccion><correoElectronico>ops@acme.test</correoElectronico>
      <listaInstancias>
        <instancia id="1000">
          <idConfiguracion>100</idConfiguracion><nombre>web-1</nombre>
          <fechaInicio>01/03/2025</fechaInicio><estado>Vigente</estado>
        </instancia>
        <instancia id="1001">
          <idConfiguracion>100</idConfiguracion><nombre>web-2</nombre>
          <fechaInicio>inicio 02/03/2025 08:00</fechaInicio><estado>Vigente</estado>
        </instancia>
        <instancia id="1002">
          <idConfiguracion>100</idConfiguracion><nombre>legacy</nombre>
          <fechaInicio>01/01/2024</fechaInicio><estado>Cancelada</estado>
          <fechaFinal>15/02/2025</fechaFinal>
        </instancia>
      </listaInstancias>
    </cliente>
  </listaClientes>
</archivoConfiguraciones>`

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type testStore struct {
	*Store
	repo  *memRepo
	clock *clock.FakeClock
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	return newTestStoreWithRepo(t, &memRepo{}, nil)
}

func newTestStoreWithRepo(t *testing.T, repo *memRepo, audit auditdomain.Service) *testStore {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(fixedNow)

	store, err := New(Params{
		Log:   zap.NewNop(),
		Repo:  repo,
		GenID: node,
		Clock: clk,
		Audit: audit,
	})
	require.NoError(t, err)
	return &testStore{Store: store, repo: repo, clock: clk}
}

func newFileStore(t *testing.T, path string, clk clock.Clock) *Store {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	store, err := New(Params{
		Log:   zap.NewNop(),
		Repo:  repository.NewXMLFile(path, zap.NewNop()),
		GenID: node,
		Clock: clk,
	})
	require.NoError(t, err)
	return store
}

func ingestConfiguration(t *testing.T, s *Store, doc string) *domain.Result {
	t.Helper()
	res, err := s.IngestConfiguration(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	return res
}

func ingestConsumption(t *testing.T, s *Store, doc string) *domain.Result {
	t.Helper()
	res, err := s.IngestConsumption(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	return res
}

func tempStatePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "datalake.xml")
}

var errDiskFull = errors.New("disk full")
