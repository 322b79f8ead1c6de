package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/audit/masking"
	"github.com/smallbiznis/datalake/internal/clock"
	obscontext "github.com/smallbiznis/datalake/internal/observability/context"
	"github.com/smallbiznis/datalake/internal/observability/metrics"
	"github.com/smallbiznis/datalake/pkg/db"
	"github.com/smallbiznis/datalake/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var secretKeys = []string{"password", "clave"}

type Params struct {
	fx.In

	DB      *gorm.DB `optional:"true"`
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    auditdomain.Repository
	Clock   clock.Clock
	Metrics *metrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    auditdomain.Repository
	clock   clock.Clock
	metrics *metrics.StoreMetrics
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("audit.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// AuditLog writes one entry. Without a database it does nothing.
func (s *Service) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	if s.db == nil {
		return nil
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(targetID),
		RunID:      optional(obscontext.RunIDFromContext(ctx)),
		RequestID:  optional(obscontext.RequestIDFromContext(ctx)),
		ClientIP:   optional(obscontext.ClientIPFromContext(ctx)),
		Metadata:   datatypes.JSONMap(masking.MaskKeys(payload, secretKeys...)),
		CreatedAt:  s.clock.Now().UTC(),
	}

	err := s.repo.Insert(ctx, s.db, &entry)
	if err != nil && db.IsDuplicateKeyErr(err) {
		entry.ID = s.genID.Generate()
		err = s.repo.Insert(ctx, s.db, &entry)
	}
	if err != nil {
		s.metrics.IncAuditError(err)
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if s.db == nil {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrAuditDisabled
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		afterID = id
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		RunID:      req.RunID,
		AfterID:    afterID,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: item.ID.String()}
	})

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs, PageInfo: pageInfo}
	return resp, nil
}

func optional(value string) *string {
	return normalizePointer(&value)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
