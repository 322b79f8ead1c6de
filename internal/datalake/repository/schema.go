package repository

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/datalake/feed"
)

const rootElement = "datalake"

// document is the persisted state. The feed sections reuse the configuration
// feed element names so a state file can be re-ingested as a feed.
type document struct {
	XMLName    xml.Name
	Resources  feed.ResourceList `xml:"listaRecursos"`
	Categories feed.CategoryList `xml:"listaCategorias"`
	Clients    feed.ClientList   `xml:"listaClientes"`
	Invoices   invoiceList       `xml:"listaFacturas"`
}

type invoiceList struct {
	Invoices []invoiceDoc `xml:"factura"`
}

type invoiceDoc struct {
	ID         string            `xml:"id,attr"`
	TaxID      *string           `xml:"nitCliente"`
	ClientName *string           `xml:"nombreCliente"`
	IssueDate  *string           `xml:"fechaEmision"`
	Total      *string           `xml:"total"`
	Lines      *instanceLineList `xml:"detalleInstancias"`
}

type instanceLineList struct {
	Lines []instanceLineDoc `xml:"detalleInstancia"`
}

type instanceLineDoc struct {
	InstanceID        string            `xml:"idInstancia,attr"`
	InstanceName      *string           `xml:"nombreInstancia"`
	ConfigurationID   *string           `xml:"idConfiguracion"`
	ConfigurationName *string           `xml:"nombreConfiguracion"`
	CategoryID        *string           `xml:"idCategoria"`
	Hours             *string           `xml:"horas"`
	Subtotal          *string           `xml:"subtotal"`
	Resources         *resourceLineList `xml:"detalleRecursos"`
}

type resourceLineList struct {
	Lines []resourceLineDoc `xml:"detalleRecurso"`
}

type resourceLineDoc struct {
	ResourceID string  `xml:"idRecurso,attr"`
	Name       *string `xml:"nombre"`
	Quantity   *string `xml:"cantidad"`
	Unit       *string `xml:"metrica"`
	HourlyRate *string `xml:"valorXhora"`
	Subtotal   *string `xml:"subtotal"`
}

func encodeState(state domain.State) document {
	doc := document{XMLName: xml.Name{Local: rootElement}}

	for _, r := range state.Resources {
		doc.Resources.Resources = append(doc.Resources.Resources, feed.Resource{
			ID:           formatID(r.ID),
			Name:         feed.Ptr(r.Name),
			Abbreviation: feed.Ptr(r.Abbreviation),
			Unit:         feed.Ptr(r.Unit),
			Kind:         feed.Ptr(string(r.Kind)),
			HourlyRate:   feed.Ptr(r.HourlyRate.String()),
		})
	}

	for _, c := range state.Categories {
		cat := feed.Category{
			ID:             formatID(c.ID),
			Name:           feed.Ptr(c.Name),
			Description:    feed.Ptr(c.Description),
			Workload:       feed.Ptr(c.Workload),
			Configurations: &feed.ConfigurationList{},
		}
		for _, cfg := range c.Configurations {
			out := feed.Configuration{
				ID:          formatID(cfg.ID),
				Name:        feed.Ptr(cfg.Name),
				Description: feed.Ptr(cfg.Description),
				Resources:   &feed.AllocationList{},
			}
			for _, alloc := range cfg.Resources {
				out.Resources.Allocations = append(out.Resources.Allocations, feed.Allocation{
					ResourceID: formatID(alloc.ResourceID),
					Quantity:   alloc.Quantity.String(),
				})
			}
			cat.Configurations.Configurations = append(cat.Configurations.Configurations, out)
		}
		doc.Categories.Categories = append(doc.Categories.Categories, cat)
	}

	for _, cl := range state.Clients {
		client := feed.Client{
			TaxID:     cl.TaxID,
			Name:      feed.Ptr(cl.Name),
			Username:  feed.Ptr(cl.Username),
			Password:  feed.Ptr(cl.Password),
			Address:   feed.Ptr(cl.Address),
			Email:     feed.Ptr(cl.Email),
			Instances: &feed.InstanceList{},
		}
		for _, inst := range cl.Instances {
			out := feed.Instance{
				ID:              formatID(inst.ID),
				ConfigurationID: feed.Ptr(formatID(inst.ConfigurationID)),
				Name:            feed.Ptr(inst.Name),
				StartDate:       feed.Ptr(inst.StartDate),
				Status:          feed.Ptr(string(inst.Status)),
				EndDate:         inst.EndDate,
				Pending:         &feed.PendingList{},
			}
			for _, hours := range inst.PendingConsumption {
				out.Pending.Hours = append(out.Pending.Hours, hours.String())
			}
			client.Instances.Instances = append(client.Instances.Instances, out)
		}
		doc.Clients.Clients = append(doc.Clients.Clients, client)
	}

	for _, inv := range state.Invoices {
		out := invoiceDoc{
			ID:         inv.ID.String(),
			TaxID:      feed.Ptr(inv.ClientTaxID),
			ClientName: feed.Ptr(inv.ClientName),
			IssueDate:  feed.Ptr(inv.IssueDate),
			Total:      feed.Ptr(inv.Total.String()),
			Lines:      &instanceLineList{},
		}
		for _, line := range inv.Lines {
			lineDoc := instanceLineDoc{
				InstanceID:        formatID(line.InstanceID),
				InstanceName:      feed.Ptr(line.InstanceName),
				ConfigurationID:   feed.Ptr(formatID(line.ConfigurationID)),
				ConfigurationName: feed.Ptr(line.ConfigurationName),
				Hours:             feed.Ptr(line.Hours.String()),
				Subtotal:          feed.Ptr(line.Subtotal.String()),
				Resources:         &resourceLineList{},
			}
			if line.CategoryID != nil {
				lineDoc.CategoryID = feed.Ptr(formatID(*line.CategoryID))
			}
			for _, rl := range line.Resources {
				lineDoc.Resources.Lines = append(lineDoc.Resources.Lines, resourceLineDoc{
					ResourceID: formatID(rl.ResourceID),
					Name:       feed.Ptr(rl.Name),
					Quantity:   feed.Ptr(rl.Quantity.String()),
					Unit:       feed.Ptr(rl.Unit),
					HourlyRate: feed.Ptr(rl.HourlyRate.String()),
					Subtotal:   feed.Ptr(rl.Subtotal.String()),
				})
			}
			out.Lines.Lines = append(out.Lines.Lines, lineDoc)
		}
		doc.Invoices.Invoices = append(doc.Invoices.Invoices, out)
	}

	return doc
}

// decodeState rebuilds the graph, skipping records that fail to parse.
func decodeState(doc document) (*domain.State, []string) {
	state := &domain.State{}
	var diags []string
	skip := func(format string, args ...any) {
		diags = append(diags, fmt.Sprintf(format, args...))
	}

	for _, r := range doc.Resources.Resources {
		id, err := parseID(r.ID)
		if err != nil {
			skip("resource %q: %v", r.ID, err)
			continue
		}
		kind, ok := domain.ParseResourceKind(feed.Text(r.Kind))
		if !ok {
			skip("resource %d: unknown kind %q", id, feed.Text(r.Kind))
			continue
		}
		rate, err := decimal.NewFromString(feed.Text(r.HourlyRate))
		if err != nil {
			skip("resource %d: invalid rate %q", id, feed.Text(r.HourlyRate))
			continue
		}
		state.Resources = append(state.Resources, &domain.Resource{
			ID:           id,
			Name:         feed.Text(r.Name),
			Abbreviation: feed.Text(r.Abbreviation),
			Unit:         feed.Text(r.Unit),
			Kind:         kind,
			HourlyRate:   rate,
		})
	}

	configOwner := map[int64]int64{}
	for _, c := range doc.Categories.Categories {
		id, err := parseID(c.ID)
		if err != nil {
			skip("category %q: %v", c.ID, err)
			continue
		}
		cat := &domain.Category{
			ID:             id,
			Name:           feed.Text(c.Name),
			Description:    feed.Text(c.Description),
			Workload:       feed.Text(c.Workload),
			Configurations: []*domain.Configuration{},
		}
		if c.Configurations != nil {
			for _, cfg := range c.Configurations.Configurations {
				decoded, err := decodeConfiguration(cfg)
				if err != nil {
					skip("category %d: configuration %q: %v", id, cfg.ID, err)
					continue
				}
				if owner, ok := configOwner[decoded.ID]; ok {
					skip("category %d: configuration %d already belongs to category %d", id, decoded.ID, owner)
					continue
				}
				configOwner[decoded.ID] = id
				cat.Configurations = append(cat.Configurations, decoded)
			}
		}
		state.Categories = append(state.Categories, cat)
	}

	for _, cl := range doc.Clients.Clients {
		if cl.TaxID == "" {
			skip("client without tax id")
			continue
		}
		client := &domain.Client{
			TaxID:     cl.TaxID,
			Name:      feed.Text(cl.Name),
			Username:  feed.Text(cl.Username),
			Password:  feed.Raw(cl.Password),
			Address:   feed.Text(cl.Address),
			Email:     feed.Text(cl.Email),
			Instances: []*domain.Instance{},
		}
		if cl.Instances != nil {
			for _, inst := range cl.Instances.Instances {
				decoded, issues, err := decodeInstance(inst)
				if err != nil {
					skip("client %s: instance %q: %v", cl.TaxID, inst.ID, err)
					continue
				}
				for _, issue := range issues {
					skip("client %s: instance %d: %s", cl.TaxID, decoded.ID, issue)
				}
				client.Instances = append(client.Instances, decoded)
			}
		}
		state.Clients = append(state.Clients, client)
	}

	for _, inv := range doc.Invoices.Invoices {
		decoded, err := decodeInvoice(inv)
		if err != nil {
			skip("invoice %q: %v", inv.ID, err)
			continue
		}
		state.Invoices = append(state.Invoices, decoded)
	}

	return state, diags
}

func decodeConfiguration(cfg feed.Configuration) (*domain.Configuration, error) {
	id, err := parseID(cfg.ID)
	if err != nil {
		return nil, err
	}
	out := &domain.Configuration{
		ID:          id,
		Name:        feed.Text(cfg.Name),
		Description: feed.Text(cfg.Description),
		Resources:   []domain.ResourceAllocation{},
	}
	if cfg.Resources == nil {
		return out, nil
	}
	for _, alloc := range cfg.Resources.Allocations {
		resourceID, err := parseID(alloc.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("allocation: %w", err)
		}
		qty, err := decimal.NewFromString(feed.Text(&alloc.Quantity))
		if err != nil {
			return nil, fmt.Errorf("allocation %d: invalid quantity %q", resourceID, alloc.Quantity)
		}
		out.Resources = append(out.Resources, domain.ResourceAllocation{ResourceID: resourceID, Quantity: qty})
	}
	return out, nil
}

func decodeInstance(inst feed.Instance) (*domain.Instance, []string, error) {
	id, err := parseID(inst.ID)
	if err != nil {
		return nil, nil, err
	}
	cfgID, err := parseID(feed.Text(inst.ConfigurationID))
	if err != nil {
		return nil, nil, fmt.Errorf("configuration: %w", err)
	}
	out := &domain.Instance{
		ID:                 id,
		ConfigurationID:    cfgID,
		Name:               feed.Text(inst.Name),
		StartDate:          feed.Text(inst.StartDate),
		Status:             domain.ParseInstanceStatus(feed.Text(inst.Status)),
		PendingConsumption: []decimal.Decimal{},
	}
	if out.Status == domain.InstanceStatusCancelled {
		end := feed.Text(inst.EndDate)
		out.EndDate = &end
	}

	var issues []string
	if inst.Pending != nil {
		for _, raw := range inst.Pending.Hours {
			hours, err := decimal.NewFromString(feed.Text(&raw))
			if err != nil || hours.IsNegative() {
				issues = append(issues, fmt.Sprintf("pending consumption %q skipped", raw))
				continue
			}
			out.PendingConsumption = append(out.PendingConsumption, hours)
		}
	}
	return out, issues, nil
}

func decodeInvoice(inv invoiceDoc) (*domain.Invoice, error) {
	id, err := snowflake.ParseString(inv.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}
	total, err := decimal.NewFromString(feed.Text(inv.Total))
	if err != nil {
		return nil, fmt.Errorf("invalid total %q", feed.Text(inv.Total))
	}
	out := &domain.Invoice{
		ID:          id,
		ClientTaxID: feed.Text(inv.TaxID),
		ClientName:  feed.Text(inv.ClientName),
		IssueDate:   feed.Text(inv.IssueDate),
		Total:       total,
		Lines:       []domain.InvoiceInstanceLine{},
	}
	if inv.Lines == nil {
		return out, nil
	}
	for _, line := range inv.Lines.Lines {
		decoded, err := decodeInstanceLine(line)
		if err != nil {
			return nil, err
		}
		out.Lines = append(out.Lines, decoded)
	}
	return out, nil
}

func decodeInstanceLine(line instanceLineDoc) (domain.InvoiceInstanceLine, error) {
	var out domain.InvoiceInstanceLine
	var err error
	if out.InstanceID, err = parseID(line.InstanceID); err != nil {
		return out, fmt.Errorf("line instance: %w", err)
	}
	if out.ConfigurationID, err = parseID(feed.Text(line.ConfigurationID)); err != nil {
		return out, fmt.Errorf("line %d configuration: %w", out.InstanceID, err)
	}
	if feed.Present(line.CategoryID) {
		categoryID, err := parseID(feed.Text(line.CategoryID))
		if err != nil {
			return out, fmt.Errorf("line %d category: %w", out.InstanceID, err)
		}
		out.CategoryID = &categoryID
	}
	if out.Hours, err = decimal.NewFromString(feed.Text(line.Hours)); err != nil {
		return out, fmt.Errorf("line %d hours: %w", out.InstanceID, err)
	}
	if out.Subtotal, err = decimal.NewFromString(feed.Text(line.Subtotal)); err != nil {
		return out, fmt.Errorf("line %d subtotal: %w", out.InstanceID, err)
	}
	out.InstanceName = feed.Text(line.InstanceName)
	out.ConfigurationName = feed.Text(line.ConfigurationName)
	out.Resources = []domain.InvoiceResourceLine{}
	if line.Resources == nil {
		return out, nil
	}
	for _, rl := range line.Resources.Lines {
		resourceID, err := parseID(rl.ResourceID)
		if err != nil {
			return out, fmt.Errorf("line %d resource: %w", out.InstanceID, err)
		}
		decoded := domain.InvoiceResourceLine{
			ResourceID: resourceID,
			Name:       feed.Text(rl.Name),
			Unit:       feed.Text(rl.Unit),
		}
		if decoded.Quantity, err = decimal.NewFromString(feed.Text(rl.Quantity)); err != nil {
			return out, fmt.Errorf("line %d resource %d quantity: %w", out.InstanceID, resourceID, err)
		}
		if decoded.HourlyRate, err = decimal.NewFromString(feed.Text(rl.HourlyRate)); err != nil {
			return out, fmt.Errorf("line %d resource %d rate: %w", out.InstanceID, resourceID, err)
		}
		if decoded.Subtotal, err = decimal.NewFromString(feed.Text(rl.Subtotal)); err != nil {
			return out, fmt.Errorf("line %d resource %d subtotal: %w", out.InstanceID, resourceID, err)
		}
		out.Resources = append(out.Resources, decoded)
	}
	return out, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
