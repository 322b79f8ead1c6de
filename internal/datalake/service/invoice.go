package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/observability/logger"
	"github.com/smallbiznis/datalake/internal/observability/metrics"
	"github.com/smallbiznis/datalake/pkg/textutil"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GenerateInvoice bills all pending consumption of the client's active
// instances. Instances whose configuration no longer resolves keep their
// consumption pending.
func (s *Store) GenerateInvoice(ctx context.Context, taxID string) (*domain.InvoiceResult, error) {
	start := time.Now()
	taxID = strings.TrimSpace(taxID)
	ctx, span := s.tracer.Start(ctx, "datalake.GenerateInvoice")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithContext(ctx, s.log).With(zap.String("tax_id", taxID))

	client := s.findClient(taxID)
	if client == nil {
		s.storeMetrics.ObserveOperation(metrics.StoreOperationInvoice, string(domain.StatusError), time.Since(start), 0)
		return nil, fmt.Errorf("%w: %s", domain.ErrClientNotFound, taxID)
	}

	res := &domain.InvoiceResult{Result: domain.Result{Diagnostics: []string{}}}
	var (
		lines        []domain.InvoiceInstanceLine
		contributing []*domain.Instance
		total        = decimal.Zero
	)
	for _, inst := range client.Instances {
		if inst.Status != domain.InstanceStatusActive || len(inst.PendingConsumption) == 0 {
			continue
		}
		line, ok := s.billInstance(inst, &res.Result)
		if !ok {
			continue
		}
		lines = append(lines, line)
		contributing = append(contributing, inst)
		total = total.Add(line.Subtotal)
	}

	if len(lines) == 0 {
		res.Status = domain.StatusInfo
		res.Message = "no pending consumption"
		s.storeMetrics.ObserveOperation(metrics.StoreOperationInvoice, string(res.Status), time.Since(start), len(res.Diagnostics))
		log.Info("no pending consumption to invoice", zap.Int("issues", len(res.Diagnostics)))
		return res, nil
	}

	invoice := &domain.Invoice{
		ID:          s.nextInvoiceID(),
		ClientTaxID: client.TaxID,
		ClientName:  client.Name,
		IssueDate:   textutil.FormatDate(s.clock.Now()),
		Total:       total,
		Lines:       lines,
	}
	s.invoices = append(s.invoices, invoice)
	for _, inst := range contributing {
		inst.PendingConsumption = []decimal.Decimal{}
	}

	res.Message = fmt.Sprintf("invoice %s issued for %s: total %s", invoice.ID, client.TaxID, total.StringFixed(2))
	s.persistResult(ctx, &res.Result)
	res.Finish()
	cloned := invoice.Clone()
	res.Invoice = &cloned

	s.publishCounts()
	s.metrics.RecordInvoice(ctx, total.InexactFloat64())
	span.SetAttributes(
		attribute.String("datalake.invoice_id", invoice.ID.String()),
		attribute.Int("datalake.lines", len(lines)),
	)
	s.auditLog(ctx, auditdomain.ActionInvoiceGenerate, "invoice", invoice.ID.String(), map[string]any{
		"tax_id":    client.TaxID,
		"total":     total.String(),
		"lines":     len(lines),
		"persisted": res.Persisted,
	})
	s.storeMetrics.ObserveOperation(metrics.StoreOperationInvoice, string(res.Status), time.Since(start), len(res.Diagnostics))
	log.Info("invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("total", total.String()),
		zap.Int("lines", len(lines)),
		zap.Bool("persisted", res.Persisted),
	)
	return res, nil
}

func (s *Store) billInstance(inst *domain.Instance, res *domain.Result) (domain.InvoiceInstanceLine, bool) {
	cfg, cat := s.findConfiguration(inst.ConfigurationID)
	if cfg == nil {
		res.Diagnose("instance %d: configuration %d not found, consumption kept pending", inst.ID, inst.ConfigurationID)
		return domain.InvoiceInstanceLine{}, false
	}

	hours := inst.PendingHours()
	line := domain.InvoiceInstanceLine{
		InstanceID:        inst.ID,
		InstanceName:      inst.Name,
		ConfigurationID:   cfg.ID,
		ConfigurationName: cfg.Name,
		Hours:             hours,
		Subtotal:          decimal.Zero,
		Resources:         []domain.InvoiceResourceLine{},
	}
	if cat != nil {
		id := cat.ID
		line.CategoryID = &id
	}
	for _, alloc := range cfg.Resources {
		resource := s.findResource(alloc.ResourceID)
		if resource == nil {
			res.Diagnose("instance %d: resource %d not found, line skipped", inst.ID, alloc.ResourceID)
			continue
		}
		subtotal := alloc.Quantity.Mul(resource.HourlyRate).Mul(hours)
		line.Resources = append(line.Resources, domain.InvoiceResourceLine{
			ResourceID: resource.ID,
			Name:       resource.Name,
			Quantity:   alloc.Quantity,
			Unit:       resource.Unit,
			HourlyRate: resource.HourlyRate,
			Subtotal:   subtotal,
		})
		line.Subtotal = line.Subtotal.Add(subtotal)
	}
	return line, true
}

// nextInvoiceID draws snowflake ids until one is unused.
func (s *Store) nextInvoiceID() snowflake.ID {
	id := s.genID.Generate()
	for s.hasInvoice(id) {
		id = s.genID.Generate()
	}
	return id
}
