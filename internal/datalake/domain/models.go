// Package domain contains the entity graph held by the data store.
package domain

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ResourceKind classifies a billable resource.
type ResourceKind string

const (
	ResourceKindHardware ResourceKind = "HARDWARE"
	ResourceKindSoftware ResourceKind = "SOFTWARE"
)

// ParseResourceKind maps feed text to a kind, case-insensitively.
func ParseResourceKind(raw string) (ResourceKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(ResourceKindHardware):
		return ResourceKindHardware, true
	case string(ResourceKindSoftware):
		return ResourceKindSoftware, true
	default:
		return "", false
	}
}

// InstanceStatus is the lifecycle state of a provisioned instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "ACTIVE"
	InstanceStatusCancelled InstanceStatus = "CANCELLED"
)

// ParseInstanceStatus treats CANCELLED/CANCELADA (any case) as cancelled and
// everything else as active.
func ParseInstanceStatus(raw string) InstanceStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CANCELLED", "CANCELADA":
		return InstanceStatusCancelled
	default:
		return InstanceStatusActive
	}
}

// Resource is a billable unit type with an hourly rate.
type Resource struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Abbreviation string          `json:"abbreviation"`
	Unit         string          `json:"unit"`
	Kind         ResourceKind    `json:"kind"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
}

func (r *Resource) Clone() Resource {
	return *r
}

// ResourceAllocation is a resource quantity inside a configuration.
type ResourceAllocation struct {
	ResourceID int64           `json:"resource_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Configuration is a purchasable bundle of resource allocations.
type Configuration struct {
	ID          int64                `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Resources   []ResourceAllocation `json:"resources"`
}

func (c *Configuration) Clone() Configuration {
	out := *c
	out.Resources = append([]ResourceAllocation(nil), c.Resources...)
	if out.Resources == nil {
		out.Resources = []ResourceAllocation{}
	}
	return out
}

// HasResource reports whether an allocation for resourceID already exists.
func (c *Configuration) HasResource(resourceID int64) bool {
	for _, alloc := range c.Resources {
		if alloc.ResourceID == resourceID {
			return true
		}
	}
	return false
}

// Category groups configurations sharing a workload profile.
type Category struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Workload       string           `json:"workload"`
	Configurations []*Configuration `json:"configurations"`
}

func (c *Category) Clone() Category {
	out := *c
	out.Configurations = make([]*Configuration, 0, len(c.Configurations))
	for _, cfg := range c.Configurations {
		cloned := cfg.Clone()
		out.Configurations = append(out.Configurations, &cloned)
	}
	return out
}

// FindConfiguration returns the owned configuration with id, if any.
func (c *Category) FindConfiguration(id int64) *Configuration {
	for _, cfg := range c.Configurations {
		if cfg.ID == id {
			return cfg
		}
	}
	return nil
}

// Instance is a client's subscription to one configuration.
type Instance struct {
	ID                 int64             `json:"id"`
	ConfigurationID    int64             `json:"configuration_id"`
	Name               string            `json:"name"`
	StartDate          string            `json:"start_date"`
	Status             InstanceStatus    `json:"status"`
	EndDate            *string           `json:"end_date"`
	PendingConsumption []decimal.Decimal `json:"pending_consumption"`
}

func (i *Instance) Clone() Instance {
	out := *i
	if i.EndDate != nil {
		end := *i.EndDate
		out.EndDate = &end
	}
	out.PendingConsumption = append([]decimal.Decimal(nil), i.PendingConsumption...)
	if out.PendingConsumption == nil {
		out.PendingConsumption = []decimal.Decimal{}
	}
	return out
}

// PendingHours sums the unbilled consumption.
func (i *Instance) PendingHours() decimal.Decimal {
	total := decimal.Zero
	for _, hours := range i.PendingConsumption {
		total = total.Add(hours)
	}
	return total
}

// Client owns instances and is keyed by tax id.
type Client struct {
	TaxID     string      `json:"tax_id"`
	Name      string      `json:"name"`
	Username  string      `json:"username"`
	Password  string      `json:"-"`
	Address   string      `json:"address"`
	Email     string      `json:"email"`
	Instances []*Instance `json:"instances"`
}

func (c *Client) Clone() Client {
	out := *c
	out.Instances = make([]*Instance, 0, len(c.Instances))
	for _, inst := range c.Instances {
		cloned := inst.Clone()
		out.Instances = append(out.Instances, &cloned)
	}
	return out
}

// FindInstance returns the owned instance with id, if any.
func (c *Client) FindInstance(id int64) *Instance {
	for _, inst := range c.Instances {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}

// InvoiceResourceLine is one resource's share of an instance bill.
type InvoiceResourceLine struct {
	ResourceID int64           `json:"resource_id"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// InvoiceInstanceLine is the bill for one instance.
type InvoiceInstanceLine struct {
	InstanceID        int64                 `json:"instance_id"`
	InstanceName      string                `json:"instance_name"`
	ConfigurationID   int64                 `json:"configuration_id"`
	ConfigurationName string                `json:"configuration_name"`
	CategoryID        *int64                `json:"category_id"`
	Hours             decimal.Decimal       `json:"hours"`
	Subtotal          decimal.Decimal       `json:"subtotal"`
	Resources         []InvoiceResourceLine `json:"resources"`
}

// Invoice is an immutable billing snapshot for one client.
type Invoice struct {
	ID          snowflake.ID          `json:"id"`
	ClientTaxID string                `json:"client_tax_id"`
	ClientName  string                `json:"client_name"`
	IssueDate   string                `json:"issue_date"`
	Total       decimal.Decimal       `json:"total"`
	Lines       []InvoiceInstanceLine `json:"lines"`
}

func (inv *Invoice) Clone() Invoice {
	out := *inv
	out.Lines = make([]InvoiceInstanceLine, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		copied := line
		if line.CategoryID != nil {
			id := *line.CategoryID
			copied.CategoryID = &id
		}
		copied.Resources = append([]InvoiceResourceLine(nil), line.Resources...)
		out.Lines = append(out.Lines, copied)
	}
	return out
}

// State is the whole entity graph as persisted.
type State struct {
	Resources  []*Resource
	Categories []*Category
	Clients    []*Client
	Invoices   []*Invoice
}

// Snapshot is a detached, serializable copy of the graph.
type Snapshot struct {
	Resources  []Resource `json:"resources"`
	Categories []Category `json:"categories"`
	Clients    []Client   `json:"clients"`
	Invoices   []Invoice  `json:"invoices"`
}
