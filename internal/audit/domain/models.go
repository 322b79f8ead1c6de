package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one mutating data store operation.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Action     string            `gorm:"not null;index" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	RunID      *string           `json:"run_id,omitempty"`
	RequestID  *string           `json:"request_id,omitempty"`
	ClientIP   *string           `json:"client_ip,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	ActionIngestConfiguration = "datalake.ingest_configuration"
	ActionIngestConsumption   = "datalake.ingest_consumption"
	ActionInvoiceGenerate     = "invoice.generate"
	ActionResourceCreate      = "resource.create"
	ActionCategoryCreate      = "category.create"
	ActionConfigurationCreate = "configuration.create"
	ActionClientCreate        = "client.create"
	ActionInstanceCreate      = "instance.create"
	ActionInstanceCancel      = "instance.cancel"
	ActionReset               = "datalake.reset"
)
