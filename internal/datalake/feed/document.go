// Package feed describes the XML documents exchanged with feed producers and
// decodes them section by section.
package feed

import "strings"

// Element names below are fixed by the existing feed producers.

type ResourceList struct {
	Resources []Resource `xml:"recurso"`
}

type Resource struct {
	ID           string  `xml:"id,attr"`
	Name         *string `xml:"nombre"`
	Abbreviation *string `xml:"abreviatura"`
	Unit         *string `xml:"metrica"`
	Kind         *string `xml:"tipo"`
	HourlyRate   *string `xml:"valorXhora"`
}

type CategoryList struct {
	Categories []Category `xml:"categoria"`
}

type Category struct {
	ID             string             `xml:"id,attr"`
	Name           *string            `xml:"nombre"`
	Description    *string            `xml:"descripcion"`
	Workload       *string            `xml:"cargaTrabajo"`
	Configurations *ConfigurationList `xml:"listaConfiguraciones"`
}

type ConfigurationList struct {
	Configurations []Configuration `xml:"configuracion"`
}

type Configuration struct {
	ID          string          `xml:"id,attr"`
	Name        *string         `xml:"nombre"`
	Description *string         `xml:"descripcion"`
	Resources   *AllocationList `xml:"recursosConfiguracion"`
}

type AllocationList struct {
	Allocations []Allocation `xml:"recurso"`
}

// Allocation carries the resource id as attribute and the quantity as text.
type Allocation struct {
	ResourceID string `xml:"id,attr"`
	Quantity   string `xml:",chardata"`
}

type ClientList struct {
	Clients []Client `xml:"cliente"`
}

type Client struct {
	TaxID     string        `xml:"nit,attr"`
	Name      *string       `xml:"nombre"`
	Username  *string       `xml:"usuario"`
	Password  *string       `xml:"clave"`
	Address   *string       `xml:"direccion"`
	Email     *string       `xml:"correoElectronico"`
	Instances *InstanceList `xml:"listaInstancias"`
}

type InstanceList struct {
	Instances []Instance `xml:"instancia"`
}

type Instance struct {
	ID              string  `xml:"id,attr"`
	ConfigurationID *string `xml:"idConfiguracion"`
	Name            *string `xml:"nombre"`
	StartDate       *string `xml:"fechaInicio"`
	Status          *string `xml:"estado"`
	EndDate         *string `xml:"fechaFinal"`
	// Pending is only present in persisted state documents.
	Pending *PendingList `xml:"consumosPendientes"`
}

type PendingList struct {
	Hours []string `xml:"consumo"`
}

// Consumption is one metered usage record.
type Consumption struct {
	TaxID      string  `xml:"nitCliente,attr"`
	InstanceID string  `xml:"idInstancia,attr"`
	Hours      *string `xml:"tiempo"`
	Timestamp  *string `xml:"fechaHora"`
}

// Text returns the trimmed element text, or "" when the element is absent.
func Text(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// Raw returns the element text exactly as written, "" when absent.
func Raw(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Present reports whether the element exists with non-blank text.
func Present(v *string) bool {
	return Text(v) != ""
}

// Ptr returns a pointer to s, used when writing documents.
func Ptr(s string) *string {
	return &s
}
