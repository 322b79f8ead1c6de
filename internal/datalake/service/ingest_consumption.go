package service

import (
	"context"
	"fmt"
	"io"
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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// IngestConsumption appends metered hours to active instances. The whole
// document is decoded before anything is applied.
func (s *Store) IngestConsumption(ctx context.Context, r io.Reader) (*domain.Result, error) {
	start := time.Now()
	runID := ulid.Make().String()
	ctx = obscontext.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "datalake.IngestConsumption")
	defer span.End()

	log := logger.WithContext(ctx, s.log)
	res := &domain.Result{RunID: runID, Diagnostics: []string{}}

	records, err := feed.DecodeConsumption(r)
	if err != nil {
		res.Status = domain.StatusError
		res.Message = fmt.Sprintf("malformed consumption document: %v", err)
		span.SetStatus(codes.Error, "malformed document")
		log.Warn("consumption feed rejected", zap.Error(err))
		s.storeMetrics.ObserveOperation(metrics.StoreOperationIngestConsumption, string(res.Status), time.Since(start), 0)
		return res, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := decimal.Zero
	for i, rec := range records {
		hours, ok := s.applyConsumption(i+1, rec, res)
		if !ok {
			continue
		}
		applied = applied.Add(hours)
		res.Counts.Applied++
	}

	res.Message = fmt.Sprintf("%d consumption record(s) applied", res.Counts.Applied)
	if len(res.Diagnostics) > 0 {
		res.Message += fmt.Sprintf("; %d issue(s)", len(res.Diagnostics))
	}
	if res.Counts.Applied > 0 {
		s.persistResult(ctx, res)
	}
	res.Finish()

	s.metrics.RecordIngestRecords(ctx, "consumption", "consumption", "applied", res.Counts.Applied)
	s.metrics.RecordIngestRecords(ctx, "consumption", "consumption", "skipped", len(records)-res.Counts.Applied)
	s.metrics.RecordConsumption(ctx, applied.InexactFloat64())
	span.SetAttributes(
		attribute.String("datalake.run_id", runID),
		attribute.Int("datalake.records", len(records)),
		attribute.Int("datalake.applied", res.Counts.Applied),
	)
	s.auditLog(ctx, auditdomain.ActionIngestConsumption, "datalake", runID, map[string]any{
		"records":   len(records),
		"applied":   res.Counts.Applied,
		"hours":     applied.String(),
		"persisted": res.Persisted,
	})
	s.storeMetrics.ObserveOperation(metrics.StoreOperationIngestConsumption, string(res.Status), time.Since(start), len(res.Diagnostics))
	log.Info("consumption feed ingested",
		zap.String("status", string(res.Status)),
		zap.Int("records", len(records)),
		zap.Int("applied", res.Counts.Applied),
		zap.Bool("persisted", res.Persisted),
	)
	return res, nil
}

func (s *Store) applyConsumption(n int, rec feed.Consumption, res *domain.Result) (decimal.Decimal, bool) {
	label := fmt.Sprintf("consumption #%d", n)

	instanceID, err := parseID(rec.InstanceID)
	if err != nil {
		res.Diagnose("%s: invalid instance id %q", label, rec.InstanceID)
		return decimal.Zero, false
	}
	if !feed.Present(rec.Hours) {
		res.Diagnose("%s: missing tiempo", label)
		return decimal.Zero, false
	}
	hours, err := decimal.NewFromString(feed.Text(rec.Hours))
	if err != nil {
		res.Diagnose("%s: invalid hours %q", label, feed.Text(rec.Hours))
		return decimal.Zero, false
	}
	if hours.IsNegative() {
		res.Diagnose("%s: negative hours %s", label, hours)
		return decimal.Zero, false
	}

	taxID := strings.TrimSpace(rec.TaxID)
	client := s.findClient(taxID)
	if client == nil {
		res.Diagnose("%s: client %q not found", label, taxID)
		return decimal.Zero, false
	}
	inst := client.FindInstance(instanceID)
	if inst == nil {
		res.Diagnose("%s: instance %d not found for client %s", label, instanceID, taxID)
		return decimal.Zero, false
	}
	if inst.Status != domain.InstanceStatusActive {
		res.Diagnose("%s: instance %d is not active", label, instanceID)
		return decimal.Zero, false
	}

	inst.PendingConsumption = append(inst.PendingConsumption, hours)
	return hours, true
}
