package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/pkg/textutil"
)

const uncategorized = "uncategorized"

// SalesReport aggregates stored invoices issued within the filter bounds.
// Category and resource names are resolved against the live graph; lines
// whose category is gone fall back to the invoiced id.
func (s *Store) SalesReport(ctx context.Context, filter domain.ReportFilter) (domain.SalesReport, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return domain.SalesReport{}, domain.ErrInvalidRange
	}
	_, span := s.tracer.Start(ctx, "datalake.SalesReport")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	report := domain.SalesReport{
		Total:      decimal.Zero,
		ByCategory: []domain.RevenueLine{},
		ByResource: []domain.RevenueLine{},
	}
	if !filter.From.IsZero() {
		report.From = textutil.FormatDate(filter.From)
	}
	if !filter.To.IsZero() {
		report.To = textutil.FormatDate(filter.To)
	}

	byCategory := newRevenueTable()
	byResource := newRevenueTable()
	for _, inv := range s.invoices {
		if !withinRange(inv.IssueDate, filter.From, filter.To) {
			continue
		}
		report.InvoiceCount++
		report.Total = report.Total.Add(inv.Total)
		for _, line := range inv.Lines {
			byCategory.add(line.CategoryID, s.categoryName(line.CategoryID), line.Subtotal)
			for _, rl := range line.Resources {
				id := rl.ResourceID
				byResource.add(&id, rl.Name, rl.Subtotal)
			}
		}
	}
	report.ByCategory = byCategory.sorted()
	report.ByResource = byResource.sorted()
	return report, nil
}

func (s *Store) categoryName(id *int64) string {
	if id == nil {
		return uncategorized
	}
	if cat := s.findCategory(*id); cat != nil {
		return cat.Name
	}
	return fmt.Sprintf("category %d", *id)
}

type revenueTable struct {
	order []string
	rows  map[string]*domain.RevenueLine
}

func newRevenueTable() *revenueTable {
	return &revenueTable{rows: map[string]*domain.RevenueLine{}}
}

func (t *revenueTable) add(id *int64, name string, amount decimal.Decimal) {
	key := uncategorized
	if id != nil {
		key = formatInt(*id)
	}
	row, ok := t.rows[key]
	if !ok {
		row = &domain.RevenueLine{Name: name, Revenue: decimal.Zero}
		if id != nil {
			v := *id
			row.ID = &v
		}
		t.rows[key] = row
		t.order = append(t.order, key)
	}
	row.Revenue = row.Revenue.Add(amount)
}

// sorted orders rows by revenue descending, keeping first-seen order on ties.
func (t *revenueTable) sorted() []domain.RevenueLine {
	out := make([]domain.RevenueLine, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, *t.rows[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	return out
}
