package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/pkg/textutil"
)

func (s *Store) FindClient(taxID string) (domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.findClient(strings.TrimSpace(taxID))
	if client == nil {
		return domain.Client{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, taxID)
	}
	return client.Clone(), nil
}

func (s *Store) FindResource(id int64) (domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resource := s.findResource(id)
	if resource == nil {
		return domain.Resource{}, fmt.Errorf("%w: resource %d", domain.ErrNotFound, id)
	}
	return resource.Clone(), nil
}

func (s *Store) FindCategory(id int64) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.findCategory(id)
	if cat == nil {
		return domain.Category{}, fmt.Errorf("%w: category %d", domain.ErrNotFound, id)
	}
	return cat.Clone(), nil
}

func (s *Store) FindConfiguration(id int64) (domain.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, _ := s.findConfiguration(id)
	if cfg == nil {
		return domain.Configuration{}, fmt.Errorf("%w: configuration %d", domain.ErrNotFound, id)
	}
	return cfg.Clone(), nil
}

func (s *Store) FindInstance(taxID string, id int64) (domain.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := s.findClient(strings.TrimSpace(taxID))
	if client == nil {
		return domain.Instance{}, fmt.Errorf("%w: %s", domain.ErrClientNotFound, taxID)
	}
	inst := client.FindInstance(id)
	if inst == nil {
		return domain.Instance{}, fmt.Errorf("%w: instance %d", domain.ErrNotFound, id)
	}
	return inst.Clone(), nil
}

// CategoryOfConfiguration returns the id of the category owning the
// configuration, or nil.
func (s *Store) CategoryOfConfiguration(configurationID int64) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.configIndex[configurationID]
	if !ok {
		return nil
	}
	return &owner
}

// ListConfigurations flattens configurations across categories in category
// order.
func (s *Store) ListConfigurations() []domain.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Configuration{}
	for _, cat := range s.categories {
		for _, cfg := range cat.Configurations {
			out = append(out, cfg.Clone())
		}
	}
	return out
}

func (s *Store) ListResources() []domain.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r.Clone())
	}
	return out
}

func (s *Store) ListCategories() []domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c.Clone())
	}
	return out
}

func (s *Store) ListClients() []domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c.Clone())
	}
	return out
}

// ListInvoices returns stored invoices in issue order. Invoices with an
// unparseable issue date only match filters without date bounds.
func (s *Store) ListInvoices(filter domain.InvoiceFilter) []domain.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	taxID := strings.TrimSpace(filter.TaxID)
	out := []domain.Invoice{}
	for _, inv := range s.invoices {
		if taxID != "" && inv.ClientTaxID != taxID {
			continue
		}
		if !withinRange(inv.IssueDate, filter.From, filter.To) {
			continue
		}
		out = append(out, inv.Clone())
	}
	return out
}

func (s *Store) FindInvoice(id snowflake.ID) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invoices {
		if inv.ID == id {
			return inv.Clone(), nil
		}
	}
	return domain.Invoice{}, fmt.Errorf("%w: invoice %s", domain.ErrNotFound, id)
}

// withinRange checks a dd/mm/yyyy date against inclusive bounds. Zero
// bounds are open.
func withinRange(issueDate string, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	issued, err := textutil.ParseDate(issueDate)
	if err != nil {
		return false
	}
	if !from.IsZero() && issued.Before(truncateDay(from)) {
		return false
	}
	if !to.IsZero() && issued.After(truncateDay(to)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
