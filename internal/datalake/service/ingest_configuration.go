package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/datalake/feed"
	obscontext "github.com/smallbiznis/datalake/internal/observability/context"
	"github.com/smallbiznis/datalake/internal/observability/logger"
	"github.com/smallbiznis/datalake/internal/observability/metrics"
	"github.com/smallbiznis/datalake/pkg/textutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// IngestConfiguration merges a configuration feed into the graph. Sections
// are merged as they are decoded; a malformed document stops the walk but
// keeps the sections merged before the error, and nothing is saved.
func (s *Store) IngestConfiguration(ctx context.Context, r io.Reader) (*domain.Result, error) {
	start := time.Now()
	runID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "datalake.IngestConfiguration")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithContext(ctx, s.log)
	res := &domain.Result{RunID: runID, Diagnostics: []string{}}

	err := feed.DecodeConfiguration(r, feed.ConfigurationHandler{
		Resources:  func(list feed.ResourceList) { s.mergeResources(list, res) },
		Categories: func(list feed.CategoryList) { s.mergeCategories(list, res) },
		Clients:    func(list feed.ClientList) { s.mergeClients(list, res) },
	})
	if err != nil {
		res.Status = domain.StatusError
		res.Message = fmt.Sprintf("malformed configuration document: %v", err)
		span.SetStatus(codes.Error, "malformed document")
		log.Warn("configuration feed rejected", zap.Error(err))
		s.storeMetrics.ObserveOperation(metrics.StoreOperationIngestConfiguration, string(res.Status), time.Since(start), len(res.Diagnostics))
		return res, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}

	res.Message = res.Counts.ConfigurationSummary(len(res.Diagnostics))
	s.persistResult(ctx, res)
	res.Finish()
	s.publishCounts()
	s.recordIngestCounts(ctx, res.Counts)

	span.SetAttributes(
		attribute.String("datalake.run_id", runID),
		attribute.Int("datalake.diagnostics", len(res.Diagnostics)),
	)
	s.auditLog(ctx, auditdomain.ActionIngestConfiguration, "datalake", runID, map[string]any{
		"counts":      res.Counts,
		"diagnostics": len(res.Diagnostics),
		"persisted":   res.Persisted,
	})
	s.storeMetrics.ObserveOperation(metrics.StoreOperationIngestConfiguration, string(res.Status), time.Since(start), len(res.Diagnostics))
	log.Info("configuration feed ingested",
		zap.String("status", string(res.Status)),
		zap.String("summary", res.Message),
		zap.Bool("persisted", res.Persisted),
	)
	return res, nil
}

func (s *Store) recordIngestCounts(ctx context.Context, counts domain.IngestCounts) {
	for kind, c := range map[string]domain.Counter{
		"resources":      counts.Resources,
		"categories":     counts.Categories,
		"configurations": counts.Configurations,
		"clients":        counts.Clients,
		"instances":      counts.Instances,
	} {
		s.metrics.RecordIngestRecords(ctx, "configuration", kind, "new", c.New)
		s.metrics.RecordIngestRecords(ctx, "configuration", kind, "updated", c.Updated)
	}
}

func (s *Store) mergeResources(list feed.ResourceList, res *domain.Result) {
	for _, rec := range list.Resources {
		id, err := parseID(rec.ID)
		if err != nil {
			res.Diagnose("resource %q: invalid id", rec.ID)
			continue
		}

		var kind domain.ResourceKind
		if feed.Present(rec.Kind) {
			parsed, ok := domain.ParseResourceKind(feed.Text(rec.Kind))
			if !ok {
				res.Diagnose("resource %d: unknown kind %q", id, feed.Text(rec.Kind))
				continue
			}
			kind = parsed
		}

		var rate *decimal.Decimal
		if feed.Present(rec.HourlyRate) {
			parsed, err := decimal.NewFromString(feed.Text(rec.HourlyRate))
			if err != nil {
				res.Diagnose("resource %d: invalid hourly rate %q", id, feed.Text(rec.HourlyRate))
				continue
			}
			if parsed.IsNegative() {
				res.Diagnose("resource %d: negative hourly rate %s", id, parsed)
				continue
			}
			rate = &parsed
		}

		if existing := s.findResource(id); existing != nil {
			setIfPresent(&existing.Name, rec.Name)
			setIfPresent(&existing.Abbreviation, rec.Abbreviation)
			setIfPresent(&existing.Unit, rec.Unit)
			if kind != "" {
				existing.Kind = kind
			}
			if rate != nil {
				existing.HourlyRate = *rate
			}
			res.Counts.Resources.Updated++
			continue
		}

		if missing := missingFields(map[string]*string{
			"nombre":      rec.Name,
			"abreviatura": rec.Abbreviation,
			"metrica":     rec.Unit,
			"tipo":        rec.Kind,
			"valorXhora":  rec.HourlyRate,
		}); missing != "" {
			res.Diagnose("resource %d: missing %s", id, missing)
			continue
		}
		s.resources = append(s.resources, &domain.Resource{
			ID:           id,
			Name:         feed.Text(rec.Name),
			Abbreviation: feed.Text(rec.Abbreviation),
			Unit:         feed.Text(rec.Unit),
			Kind:         kind,
			HourlyRate:   *rate,
		})
		res.Counts.Resources.New++
	}
}

func (s *Store) mergeCategories(list feed.CategoryList, res *domain.Result) {
	for _, rec := range list.Categories {
		id, err := parseID(rec.ID)
		if err != nil {
			res.Diagnose("category %q: invalid id", rec.ID)
			continue
		}

		cat := s.findCategory(id)
		if cat != nil {
			setIfPresent(&cat.Name, rec.Name)
			setIfPresent(&cat.Description, rec.Description)
			setIfPresent(&cat.Workload, rec.Workload)
			res.Counts.Categories.Updated++
		} else {
			if !feed.Present(rec.Name) {
				res.Diagnose("category %d: missing nombre", id)
				continue
			}
			cat = &domain.Category{
				ID:             id,
				Name:           feed.Text(rec.Name),
				Description:    feed.Text(rec.Description),
				Workload:       feed.Text(rec.Workload),
				Configurations: []*domain.Configuration{},
			}
			s.categories = append(s.categories, cat)
			res.Counts.Categories.New++
		}

		if rec.Configurations == nil {
			continue
		}
		for _, cfg := range rec.Configurations.Configurations {
			s.mergeConfiguration(cat, cfg, res)
		}
	}
}

func (s *Store) mergeConfiguration(cat *domain.Category, rec feed.Configuration, res *domain.Result) {
	id, err := parseID(rec.ID)
	if err != nil {
		res.Diagnose("category %d: configuration %q: invalid id", cat.ID, rec.ID)
		return
	}
	if owner, ok := s.configIndex[id]; ok && owner != cat.ID {
		res.Diagnose("category %d: configuration %d already belongs to category %d", cat.ID, id, owner)
		return
	}

	existing := cat.FindConfiguration(id)
	if existing == nil && !feed.Present(rec.Name) {
		res.Diagnose("configuration %d: missing nombre", id)
		return
	}

	allocations := s.buildAllocations(id, rec.Resources, res)
	if existing != nil {
		setIfPresent(&existing.Name, rec.Name)
		setIfPresent(&existing.Description, rec.Description)
		existing.Resources = allocations
		res.Counts.Configurations.Updated++
		return
	}

	cat.Configurations = append(cat.Configurations, &domain.Configuration{
		ID:          id,
		Name:        feed.Text(rec.Name),
		Description: feed.Text(rec.Description),
		Resources:   allocations,
	})
	s.configIndex[id] = cat.ID
	res.Counts.Configurations.New++
}

// buildAllocations keeps every allocation that references a known resource.
// Quantities are only checked for being numeric.
func (s *Store) buildAllocations(configurationID int64, list *feed.AllocationList, res *domain.Result) []domain.ResourceAllocation {
	allocations := []domain.ResourceAllocation{}
	if list == nil {
		return allocations
	}
	seen := map[int64]struct{}{}
	for _, alloc := range list.Allocations {
		resourceID, err := parseID(alloc.ResourceID)
		if err != nil {
			res.Diagnose("configuration %d: allocation %q: invalid resource id", configurationID, alloc.ResourceID)
			continue
		}
		if s.findResource(resourceID) == nil {
			res.Diagnose("configuration %d: resource %d does not exist", configurationID, resourceID)
			continue
		}
		if _, dup := seen[resourceID]; dup {
			res.Diagnose("configuration %d: duplicate allocation for resource %d", configurationID, resourceID)
			continue
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(alloc.Quantity))
		if err != nil {
			res.Diagnose("configuration %d: resource %d: invalid quantity %q", configurationID, resourceID, strings.TrimSpace(alloc.Quantity))
			continue
		}
		seen[resourceID] = struct{}{}
		allocations = append(allocations, domain.ResourceAllocation{ResourceID: resourceID, Quantity: qty})
	}
	return allocations
}

func (s *Store) mergeClients(list feed.ClientList, res *domain.Result) {
	for _, rec := range list.Clients {
		if !textutil.ValidTaxID(rec.TaxID) {
			res.Diagnose("client %q: invalid tax id", rec.TaxID)
			continue
		}

		client := s.findClient(rec.TaxID)
		if client != nil {
			setIfPresent(&client.Name, rec.Name)
			setIfPresent(&client.Username, rec.Username)
			setIfPresent(&client.Password, rec.Password)
			setIfPresent(&client.Address, rec.Address)
			setIfPresent(&client.Email, rec.Email)
			res.Counts.Clients.Updated++
		} else {
			if missing := missingFields(map[string]*string{
				"nombre":            rec.Name,
				"usuario":           rec.Username,
				"clave":             rec.Password,
				"direccion":         rec.Address,
				"correoElectronico": rec.Email,
			}); missing != "" {
				res.Diagnose("client %s: missing %s", rec.TaxID, missing)
				continue
			}
			client = &domain.Client{
				TaxID:     rec.TaxID,
				Name:      feed.Text(rec.Name),
				Username:  feed.Text(rec.Username),
				Password:  feed.Text(rec.Password),
				Address:   feed.Text(rec.Address),
				Email:     feed.Text(rec.Email),
				Instances: []*domain.Instance{},
			}
			s.clients = append(s.clients, client)
			res.Counts.Clients.New++
		}

		if rec.Instances == nil {
			continue
		}
		for _, inst := range rec.Instances.Instances {
			s.mergeInstance(client, inst, res)
		}
	}
}

func (s *Store) mergeInstance(client *domain.Client, rec feed.Instance, res *domain.Result) {
	id, err := parseID(rec.ID)
	if err != nil {
		res.Diagnose("client %s: instance %q: invalid id", client.TaxID, rec.ID)
		return
	}
	label := fmt.Sprintf("client %s: instance %d", client.TaxID, id)

	existing := client.FindInstance(id)
	if existing == nil {
		if missing := missingFields(map[string]*string{
			"idConfiguracion": rec.ConfigurationID,
			"nombre":          rec.Name,
			"fechaInicio":     rec.StartDate,
			"estado":          rec.Status,
		}); missing != "" {
			res.Diagnose("%s: missing %s", label, missing)
			return
		}
	}

	var configurationID *int64
	if feed.Present(rec.ConfigurationID) {
		parsed, err := parseID(feed.Text(rec.ConfigurationID))
		if err != nil {
			res.Diagnose("%s: invalid configuration id %q", label, feed.Text(rec.ConfigurationID))
			return
		}
		if _, ok := s.configIndex[parsed]; !ok {
			res.Diagnose("%s: configuration %d does not exist", label, parsed)
			return
		}
		configurationID = &parsed
	}

	var startDate string
	if feed.Present(rec.StartDate) {
		date, ok := textutil.ExtractDate(feed.Text(rec.StartDate))
		if !ok {
			res.Diagnose("%s: invalid start date %q", label, feed.Text(rec.StartDate))
			return
		}
		startDate = date
	}

	var status domain.InstanceStatus
	var endDate *string
	if feed.Present(rec.Status) {
		status = domain.ParseInstanceStatus(feed.Text(rec.Status))
		if status == domain.InstanceStatusCancelled {
			date, ok := textutil.ExtractDate(feed.Text(rec.EndDate))
			if !ok {
				res.Diagnose("%s: cancelled without a valid end date", label)
				return
			}
			endDate = &date
		}
	}

	if existing != nil {
		if configurationID != nil {
			existing.ConfigurationID = *configurationID
		}
		setIfPresent(&existing.Name, rec.Name)
		if startDate != "" {
			existing.StartDate = startDate
		}
		if status != "" {
			existing.Status = status
			existing.EndDate = endDate
		}
		res.Counts.Instances.Updated++
		return
	}

	client.Instances = append(client.Instances, &domain.Instance{
		ID:                 id,
		ConfigurationID:    *configurationID,
		Name:               feed.Text(rec.Name),
		StartDate:          startDate,
		Status:             status,
		EndDate:            endDate,
		PendingConsumption: []decimal.Decimal{},
	})
	res.Counts.Instances.New++
}

func setIfPresent(dst *string, v *string) {
	if feed.Present(v) {
		*dst = feed.Text(v)
	}
}

// missingFields lists absent or blank elements in a stable order.
func missingFields(fields map[string]*string) string {
	var missing []string
	for name, v := range fields {
		if !feed.Present(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	sort.Strings(missing)
	return strings.Join(missing, ", ")
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}
