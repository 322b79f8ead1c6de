package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/clock"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/observability/logger"
	"github.com/smallbiznis/datalake/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Repo         domain.Repository
	GenID        *snowflake.Node
	Clock        clock.Clock
	Audit        auditdomain.Service   `optional:"true"`
	Metrics      *metrics.Metrics      `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
	Tracer       trace.Tracer          `optional:"true"`
}

// Store owns the in-memory entity graph. Every exported method holds mu for
// its whole duration, including the state file write.
type Store struct {
	mu sync.Mutex

	log          *zap.Logger
	repo         domain.Repository
	genID        *snowflake.Node
	clock        clock.Clock
	audit        auditdomain.Service
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
	tracer       trace.Tracer

	resources  []*domain.Resource
	categories []*domain.Category
	clients    []*domain.Client
	invoices   []*domain.Invoice
	// configIndex maps configuration id to owning category id.
	configIndex map[int64]int64
}

// New builds the store and loads the persisted state.
func New(p Params) (*Store, error) {
	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer("datalake/store")
	}
	s := &Store{
		log:          p.Log.Named("datalake.store"),
		repo:         p.Repo,
		genID:        p.GenID,
		clock:        p.Clock,
		audit:        p.Audit,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
		tracer:       tracer,
		configIndex:  map[int64]int64{},
	}
	if _, err := s.Load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory graph with the persisted state and returns the
// records that could not be restored.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	state, diags, err := s.repo.Load(ctx)
	if err != nil {
		s.storeMetrics.ObserveOperation(metrics.StoreOperationLoad, string(domain.StatusError), time.Since(start), 0)
		return nil, fmt.Errorf("load state: %w", err)
	}
	s.resources = state.Resources
	s.categories = state.Categories
	s.clients = state.Clients
	s.invoices = state.Invoices
	s.rebuildIndex()
	s.publishCounts()

	status := domain.StatusSuccess
	if len(diags) > 0 {
		status = domain.StatusPartial
	}
	s.storeMetrics.ObserveOperation(metrics.StoreOperationLoad, string(status), time.Since(start), len(diags))
	s.log.Info("state loaded",
		zap.Int("resources", len(s.resources)),
		zap.Int("categories", len(s.categories)),
		zap.Int("clients", len(s.clients)),
		zap.Int("invoices", len(s.invoices)),
		zap.Int("skipped", len(diags)),
	)
	return diags, nil
}

// Save writes the full graph to the repository.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx)
}

// Reset clears every collection and rewrites the state file as an empty
// document.
func (s *Store) Reset(ctx context.Context) (*domain.Result, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resources = nil
	s.categories = nil
	s.clients = nil
	s.invoices = nil
	s.configIndex = map[int64]int64{}

	res := &domain.Result{Message: "data store reset", Diagnostics: []string{}}
	if err := s.repo.Reset(ctx); err != nil {
		s.storeMetrics.IncSaveFailure()
		logger.WithContext(ctx, s.log).Error("failed to reset state file", zap.Error(err))
		res.Diagnose("state file not reset: %v", err)
	} else {
		res.Persisted = true
	}
	res.Finish()
	s.publishCounts()

	s.auditLog(ctx, auditdomain.ActionReset, "datalake", "", map[string]any{"persisted": res.Persisted})
	s.storeMetrics.ObserveOperation(metrics.StoreOperationReset, string(res.Status), time.Since(start), len(res.Diagnostics))
	return res, nil
}

// Snapshot returns a detached copy of the whole graph.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.Snapshot{
		Resources:  make([]domain.Resource, 0, len(s.resources)),
		Categories: make([]domain.Category, 0, len(s.categories)),
		Clients:    make([]domain.Client, 0, len(s.clients)),
		Invoices:   make([]domain.Invoice, 0, len(s.invoices)),
	}
	for _, r := range s.resources {
		snap.Resources = append(snap.Resources, r.Clone())
	}
	for _, c := range s.categories {
		snap.Categories = append(snap.Categories, c.Clone())
	}
	for _, c := range s.clients {
		snap.Clients = append(snap.Clients, c.Clone())
	}
	for _, inv := range s.invoices {
		snap.Invoices = append(snap.Invoices, inv.Clone())
	}
	return snap
}

// persist writes the graph. Callers hold mu.
func (s *Store) persist(ctx context.Context) error {
	err := s.repo.Save(ctx, domain.State{
		Resources:  s.resources,
		Categories: s.categories,
		Clients:    s.clients,
		Invoices:   s.invoices,
	})
	if err != nil {
		s.storeMetrics.IncSaveFailure()
		logger.WithContext(ctx, s.log).Error("failed to save state", zap.Error(err))
		return err
	}
	return nil
}

// persistResult saves the graph and records the outcome on res.
func (s *Store) persistResult(ctx context.Context, res *domain.Result) {
	if err := s.persist(ctx); err != nil {
		res.Persisted = false
		res.Diagnose("state not persisted: %v", err)
		return
	}
	res.Persisted = true
}

func (s *Store) rebuildIndex() {
	s.configIndex = make(map[int64]int64)
	for _, cat := range s.categories {
		for _, cfg := range cat.Configurations {
			if owner, ok := s.configIndex[cfg.ID]; ok {
				s.log.Warn("configuration id owned by two categories, keeping first",
					zap.Int64("configuration_id", cfg.ID),
					zap.Int64("category_id", owner),
					zap.Int64("ignored_category_id", cat.ID),
				)
				continue
			}
			s.configIndex[cfg.ID] = cat.ID
		}
	}
}

func (s *Store) publishCounts() {
	instances := 0
	for _, c := range s.clients {
		instances += len(c.Instances)
	}
	s.storeMetrics.SetEntityCount("resources", len(s.resources))
	s.storeMetrics.SetEntityCount("categories", len(s.categories))
	s.storeMetrics.SetEntityCount("configurations", len(s.configIndex))
	s.storeMetrics.SetEntityCount("clients", len(s.clients))
	s.storeMetrics.SetEntityCount("instances", instances)
	s.storeMetrics.SetEntityCount("invoices", len(s.invoices))
}

func (s *Store) auditLog(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	var target *string
	if targetID != "" {
		target = &targetID
	}
	if err := s.audit.AuditLog(ctx, action, targetType, target, metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Store) findResource(id int64) *domain.Resource {
	for _, r := range s.resources {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Store) findCategory(id int64) *domain.Category {
	for _, c := range s.categories {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) findClient(taxID string) *domain.Client {
	for _, c := range s.clients {
		if c.TaxID == taxID {
			return c
		}
	}
	return nil
}

// findConfiguration resolves a configuration and its owning category through
// the index.
func (s *Store) findConfiguration(id int64) (*domain.Configuration, *domain.Category) {
	owner, ok := s.configIndex[id]
	if !ok {
		return nil, nil
	}
	cat := s.findCategory(owner)
	if cat == nil {
		return nil, nil
	}
	return cat.FindConfiguration(id), cat
}

func (s *Store) hasInvoice(id snowflake.ID) bool {
	for _, inv := range s.invoices {
		if inv.ID == id {
			return true
		}
	}
	return false
}
