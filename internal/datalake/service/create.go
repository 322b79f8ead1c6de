package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/observability/logger"
	"github.com/smallbiznis/datalake/internal/observability/metrics"
	"github.com/smallbiznis/datalake/pkg/textutil"
	"go.uber.org/zap"
)

func (s *Store) CreateResource(ctx context.Context, req domain.CreateResourceRequest) (domain.Resource, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID <= 0 {
		return domain.Resource{}, s.rejectCreate(start, domain.ErrInvalidID)
	}
	if s.findResource(req.ID) != nil {
		return domain.Resource{}, s.rejectCreate(start, fmt.Errorf("%w: resource %d", domain.ErrDuplicateID, req.ID))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Resource{}, s.rejectCreate(start, domain.ErrInvalidName)
	}
	abbreviation := strings.TrimSpace(req.Abbreviation)
	unit := strings.TrimSpace(req.Unit)
	if abbreviation == "" || unit == "" {
		return domain.Resource{}, s.rejectCreate(start, domain.ErrInvalidField)
	}
	kind, ok := domain.ParseResourceKind(req.Kind)
	if !ok {
		return domain.Resource{}, s.rejectCreate(start, domain.ErrInvalidKind)
	}
	if req.HourlyRate.IsNegative() {
		return domain.Resource{}, s.rejectCreate(start, domain.ErrInvalidRate)
	}

	resource := &domain.Resource{
		ID:           req.ID,
		Name:         name,
		Abbreviation: abbreviation,
		Unit:         unit,
		Kind:         kind,
		HourlyRate:   req.HourlyRate,
	}
	s.resources = append(s.resources, resource)

	err := s.commitCreate(ctx, start, auditdomain.ActionResourceCreate, "resource", formatInt(resource.ID), map[string]any{
		"name":        resource.Name,
		"kind":        string(resource.Kind),
		"hourly_rate": resource.HourlyRate.String(),
	})
	return resource.Clone(), err
}

func (s *Store) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (domain.Category, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID <= 0 {
		return domain.Category{}, s.rejectCreate(start, domain.ErrInvalidID)
	}
	if s.findCategory(req.ID) != nil {
		return domain.Category{}, s.rejectCreate(start, fmt.Errorf("%w: category %d", domain.ErrDuplicateID, req.ID))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, s.rejectCreate(start, domain.ErrInvalidName)
	}

	cat := &domain.Category{
		ID:             req.ID,
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		Workload:       strings.TrimSpace(req.Workload),
		Configurations: []*domain.Configuration{},
	}
	s.categories = append(s.categories, cat)

	err := s.commitCreate(ctx, start, auditdomain.ActionCategoryCreate, "category", formatInt(cat.ID), map[string]any{
		"name": cat.Name,
	})
	return cat.Clone(), err
}

// CreateConfiguration adds a configuration to an existing category. Its id
// must be unused across every category.
func (s *Store) CreateConfiguration(ctx context.Context, req domain.CreateConfigurationRequest) (domain.Configuration, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.findCategory(req.CategoryID)
	if cat == nil {
		return domain.Configuration{}, s.rejectCreate(start, fmt.Errorf("%w: %d", domain.ErrCategoryNotFound, req.CategoryID))
	}
	if req.ID <= 0 {
		return domain.Configuration{}, s.rejectCreate(start, domain.ErrInvalidID)
	}
	if owner, ok := s.configIndex[req.ID]; ok {
		return domain.Configuration{}, s.rejectCreate(start, fmt.Errorf("%w: configuration %d belongs to category %d", domain.ErrDuplicateID, req.ID, owner))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Configuration{}, s.rejectCreate(start, domain.ErrInvalidName)
	}

	cfg := &domain.Configuration{
		ID:          req.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Resources:   make([]domain.ResourceAllocation, 0, len(req.Resources)),
	}
	for _, alloc := range req.Resources {
		if s.findResource(alloc.ResourceID) == nil {
			return domain.Configuration{}, s.rejectCreate(start, fmt.Errorf("%w: %d", domain.ErrUnknownResource, alloc.ResourceID))
		}
		if !alloc.Quantity.IsPositive() {
			return domain.Configuration{}, s.rejectCreate(start, fmt.Errorf("%w: resource %d", domain.ErrInvalidQuantity, alloc.ResourceID))
		}
		if cfg.HasResource(alloc.ResourceID) {
			return domain.Configuration{}, s.rejectCreate(start, fmt.Errorf("%w: resource %d", domain.ErrDuplicateAllocation, alloc.ResourceID))
		}
		cfg.Resources = append(cfg.Resources, domain.ResourceAllocation{ResourceID: alloc.ResourceID, Quantity: alloc.Quantity})
	}

	cat.Configurations = append(cat.Configurations, cfg)
	s.configIndex[cfg.ID] = cat.ID

	err := s.commitCreate(ctx, start, auditdomain.ActionConfigurationCreate, "configuration", formatInt(cfg.ID), map[string]any{
		"category_id": cat.ID,
		"name":        cfg.Name,
		"resources":   len(cfg.Resources),
	})
	return cfg.Clone(), err
}

func (s *Store) CreateClient(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !textutil.ValidTaxID(req.TaxID) {
		return domain.Client{}, s.rejectCreate(start, domain.ErrInvalidTaxID)
	}
	if s.findClient(req.TaxID) != nil {
		return domain.Client{}, s.rejectCreate(start, fmt.Errorf("%w: client %s", domain.ErrDuplicateID, req.TaxID))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, s.rejectCreate(start, domain.ErrInvalidName)
	}
	username := strings.TrimSpace(req.Username)
	address := strings.TrimSpace(req.Address)
	email := strings.TrimSpace(req.Email)
	if username == "" || req.Password == "" || address == "" || email == "" {
		return domain.Client{}, s.rejectCreate(start, domain.ErrInvalidField)
	}

	client := &domain.Client{
		TaxID:     req.TaxID,
		Name:      name,
		Username:  username,
		Password:  req.Password,
		Address:   address,
		Email:     email,
		Instances: []*domain.Instance{},
	}
	s.clients = append(s.clients, client)

	err := s.commitCreate(ctx, start, auditdomain.ActionClientCreate, "client", client.TaxID, map[string]any{
		"name":     client.Name,
		"username": client.Username,
		"password": client.Password,
		"email":    client.Email,
	})
	return client.Clone(), err
}

// CreateInstance provisions an ACTIVE instance for an existing client.
func (s *Store) CreateInstance(ctx context.Context, req domain.CreateInstanceRequest) (domain.Instance, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.findClient(strings.TrimSpace(req.TaxID))
	if client == nil {
		return domain.Instance{}, s.rejectCreate(start, fmt.Errorf("%w: %s", domain.ErrClientNotFound, req.TaxID))
	}
	if req.ID <= 0 {
		return domain.Instance{}, s.rejectCreate(start, domain.ErrInvalidID)
	}
	if client.FindInstance(req.ID) != nil {
		return domain.Instance{}, s.rejectCreate(start, fmt.Errorf("%w: instance %d", domain.ErrDuplicateID, req.ID))
	}
	if _, ok := s.configIndex[req.ConfigurationID]; !ok {
		return domain.Instance{}, s.rejectCreate(start, fmt.Errorf("%w: %d", domain.ErrUnknownConfiguration, req.ConfigurationID))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Instance{}, s.rejectCreate(start, domain.ErrInvalidName)
	}
	startDate, ok := textutil.ExtractDate(req.StartDate)
	if !ok {
		return domain.Instance{}, s.rejectCreate(start, domain.ErrInvalidDate)
	}

	inst := &domain.Instance{
		ID:                 req.ID,
		ConfigurationID:    req.ConfigurationID,
		Name:               name,
		StartDate:          startDate,
		Status:             domain.InstanceStatusActive,
		PendingConsumption: []decimal.Decimal{},
	}
	client.Instances = append(client.Instances, inst)

	err := s.commitCreate(ctx, start, auditdomain.ActionInstanceCreate, "instance", formatInt(inst.ID), map[string]any{
		"tax_id":           client.TaxID,
		"configuration_id": inst.ConfigurationID,
	})
	return inst.Clone(), err
}

// CancelInstance marks an active instance CANCELLED. Pending consumption is
// kept but no longer billed.
func (s *Store) CancelInstance(ctx context.Context, req domain.CancelInstanceRequest) (domain.Instance, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.findClient(strings.TrimSpace(req.TaxID))
	if client == nil {
		return domain.Instance{}, s.rejectCreate(start, fmt.Errorf("%w: %s", domain.ErrClientNotFound, req.TaxID))
	}
	inst := client.FindInstance(req.InstanceID)
	if inst == nil {
		return domain.Instance{}, s.rejectCreate(start, fmt.Errorf("%w: instance %d", domain.ErrNotFound, req.InstanceID))
	}
	if inst.Status != domain.InstanceStatusActive {
		return domain.Instance{}, s.rejectCreate(start, domain.ErrInstanceNotActive)
	}
	endDate, ok := textutil.ExtractDate(req.EndDate)
	if !ok {
		return domain.Instance{}, s.rejectCreate(start, domain.ErrInvalidDate)
	}

	inst.Status = domain.InstanceStatusCancelled
	inst.EndDate = &endDate

	err := s.commitCreate(ctx, start, auditdomain.ActionInstanceCancel, "instance", formatInt(inst.ID), map[string]any{
		"tax_id":   client.TaxID,
		"end_date": endDate,
	})
	return inst.Clone(), err
}

// commitCreate persists a mutation already applied in memory. The mutation
// stays in place when the write fails.
func (s *Store) commitCreate(ctx context.Context, start time.Time, action, targetType, targetID string, metadata map[string]any) error {
	status := domain.StatusSuccess
	var result error
	if err := s.persist(ctx); err != nil {
		status = domain.StatusPartial
		result = fmt.Errorf("%w: %v", domain.ErrNotPersisted, err)
	}
	s.publishCounts()
	metadata["persisted"] = result == nil
	s.auditLog(ctx, action, targetType, targetID, metadata)
	s.storeMetrics.ObserveOperation(metrics.StoreOperationCreate, string(status), time.Since(start), 0)
	logger.WithContext(ctx, s.log).Info("entity created",
		zap.String("action", action),
		zap.String("target_id", targetID),
		zap.Bool("persisted", result == nil),
	)
	return result
}

func (s *Store) rejectCreate(start time.Time, err error) error {
	s.storeMetrics.ObserveOperation(metrics.StoreOperationCreate, string(domain.StatusError), time.Since(start), 0)
	return err
}

func formatInt(id int64) string {
	return strconv.FormatInt(id, 10)
}
