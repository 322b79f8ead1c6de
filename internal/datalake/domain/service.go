package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Status tags the outcome of a store operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
)

// Counter tracks new and updated records of one entity kind.
type Counter struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
}

// IngestCounts holds per-kind counters for configuration ingestion.
type IngestCounts struct {
	Resources      Counter `json:"resources"`
	Categories     Counter `json:"categories"`
	Configurations Counter `json:"configurations"`
	Clients        Counter `json:"clients"`
	Instances      Counter `json:"instances"`
	Applied        int     `json:"applied"`
}

// Result is the structured outcome of an ingestion or mutation.
type Result struct {
	Status      Status       `json:"status"`
	Message     string       `json:"message"`
	RunID       string       `json:"run_id,omitempty"`
	Counts      IngestCounts `json:"counts"`
	Diagnostics []string     `json:"diagnostics"`
	Persisted   bool         `json:"persisted"`
}

// Diagnose appends a record-level issue.
func (r *Result) Diagnose(format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, fmt.Sprintf(format, args...))
}

// Finish derives the status from the collected diagnostics unless the
// result already carries a terminal status.
func (r *Result) Finish() {
	if r.Status == StatusError || r.Status == StatusInfo {
		return
	}
	if len(r.Diagnostics) > 0 {
		r.Status = StatusPartial
		return
	}
	r.Status = StatusSuccess
}

// ConfigurationSummary renders the per-kind counters.
func (c IngestCounts) ConfigurationSummary(issues int) string {
	parts := []string{
		fmt.Sprintf("resources %d new/%d updated", c.Resources.New, c.Resources.Updated),
		fmt.Sprintf("categories %d new/%d updated", c.Categories.New, c.Categories.Updated),
		fmt.Sprintf("configurations %d new/%d updated", c.Configurations.New, c.Configurations.Updated),
		fmt.Sprintf("clients %d new/%d updated", c.Clients.New, c.Clients.Updated),
		fmt.Sprintf("instances %d new/%d updated", c.Instances.New, c.Instances.Updated),
	}
	msg := strings.Join(parts, "; ")
	if issues > 0 {
		msg += fmt.Sprintf("; %d issue(s)", issues)
	}
	return msg
}

// InvoiceResult wraps a generated invoice. Invoice is nil for info results.
type InvoiceResult struct {
	Result
	Invoice *Invoice `json:"invoice,omitempty"`
}

type CreateResourceRequest struct {
	ID           int64
	Name         string
	Abbreviation string
	Unit         string
	Kind         string
	HourlyRate   decimal.Decimal
}

type CreateCategoryRequest struct {
	ID          int64
	Name        string
	Description string
	Workload    string
}

type AllocationRequest struct {
	ResourceID int64
	Quantity   decimal.Decimal
}

type CreateConfigurationRequest struct {
	CategoryID  int64
	ID          int64
	Name        string
	Description string
	Resources   []AllocationRequest
}

type CreateClientRequest struct {
	TaxID    string
	Name     string
	Username string
	Password string
	Address  string
	Email    string
}

type CreateInstanceRequest struct {
	TaxID           string
	ID              int64
	ConfigurationID int64
	Name            string
	StartDate       string
}

type CancelInstanceRequest struct {
	TaxID      string
	InstanceID int64
	EndDate    string
}

// InvoiceFilter narrows ListInvoices. Zero values match everything.
type InvoiceFilter struct {
	TaxID string
	From  time.Time
	To    time.Time
}

// ReportFilter bounds a sales report by invoice issue date, inclusive.
type ReportFilter struct {
	From time.Time
	To   time.Time
}

// RevenueLine is one row of a sales report.
type RevenueLine struct {
	ID      *int64          `json:"id"`
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SalesReport aggregates revenue over stored invoices.
type SalesReport struct {
	From         string          `json:"from,omitempty"`
	To           string          `json:"to,omitempty"`
	InvoiceCount int             `json:"invoice_count"`
	Total        decimal.Decimal `json:"total"`
	ByCategory   []RevenueLine   `json:"by_category"`
	ByResource   []RevenueLine   `json:"by_resource"`
}

// Service is the data store contract used by the HTTP boundary and the CLI.
type Service interface {
	IngestConfiguration(ctx context.Context, r io.Reader) (*Result, error)
	IngestConsumption(ctx context.Context, r io.Reader) (*Result, error)
	GenerateInvoice(ctx context.Context, taxID string) (*InvoiceResult, error)
	Reset(ctx context.Context) (*Result, error)
	Save(ctx context.Context) error
	Snapshot() Snapshot

	FindClient(taxID string) (Client, error)
	FindResource(id int64) (Resource, error)
	FindCategory(id int64) (Category, error)
	FindConfiguration(id int64) (Configuration, error)
	FindInstance(taxID string, id int64) (Instance, error)
	CategoryOfConfiguration(configurationID int64) *int64
	ListConfigurations() []Configuration
	ListResources() []Resource
	ListCategories() []Category
	ListClients() []Client
	ListInvoices(filter InvoiceFilter) []Invoice
	FindInvoice(id snowflake.ID) (Invoice, error)

	CreateResource(ctx context.Context, req CreateResourceRequest) (Resource, error)
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (Category, error)
	CreateConfiguration(ctx context.Context, req CreateConfigurationRequest) (Configuration, error)
	CreateClient(ctx context.Context, req CreateClientRequest) (Client, error)
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (Instance, error)
	CancelInstance(ctx context.Context, req CancelInstanceRequest) (Instance, error)

	SalesReport(ctx context.Context, filter ReportFilter) (SalesReport, error)
}

var (
	ErrMalformedDocument = errors.New("malformed_document")
	ErrClientNotFound    = errors.New("client_not_found")
	ErrNotFound          = errors.New("not_found")
	ErrNotPersisted      = errors.New("not_persisted")

	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidTaxID         = errors.New("invalid_tax_id")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidField         = errors.New("invalid_field")
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrInvalidRate          = errors.New("invalid_rate")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidDate          = errors.New("invalid_date")
	ErrDuplicateID          = errors.New("duplicate_id")
	ErrDuplicateAllocation  = errors.New("duplicate_allocation")
	ErrUnknownResource      = errors.New("unknown_resource")
	ErrUnknownConfiguration = errors.New("unknown_configuration")
	ErrCategoryNotFound     = errors.New("category_not_found")
	ErrInstanceNotActive    = errors.New("instance_not_active")
	ErrInvalidRange         = errors.New("invalid_range")
)
