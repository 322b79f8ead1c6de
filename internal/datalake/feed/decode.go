package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSyntax wraps every document-level decode failure.
var ErrSyntax = errors.New("xml syntax error")

const (
	SectionResources  = "listaRecursos"
	SectionCategories = "listaCategorias"
	SectionClients    = "listaClientes"
)

// ConfigurationHandler receives each top-level section as soon as it has been
// decoded. Nil callbacks skip the section, as do unknown elements.
type ConfigurationHandler struct {
	Resources  func(ResourceList)
	Categories func(CategoryList)
	Clients    func(ClientList)
}

// DecodeConfiguration walks a configuration document and dispatches its
// top-level sections in document order. On a syntax error the sections
// dispatched before the error have already been delivered.
func DecodeConfiguration(r io.Reader, h ConfigurationHandler) error {
	dec := xml.NewDecoder(r)
	if _, err := rootElement(dec); err != nil {
		return err
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return syntaxError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := dispatchSection(dec, t, h); err != nil {
				return err
			}
		case xml.EndElement:
			return expectEOF(dec)
		}
	}
}

func dispatchSection(dec *xml.Decoder, start xml.StartElement, h ConfigurationHandler) error {
	switch start.Name.Local {
	case SectionResources:
		var list ResourceList
		if err := dec.DecodeElement(&list, &start); err != nil {
			return syntaxError(err)
		}
		if h.Resources != nil {
			h.Resources(list)
		}
	case SectionCategories:
		var list CategoryList
		if err := dec.DecodeElement(&list, &start); err != nil {
			return syntaxError(err)
		}
		if h.Categories != nil {
			h.Categories(list)
		}
	case SectionClients:
		var list ClientList
		if err := dec.DecodeElement(&list, &start); err != nil {
			return syntaxError(err)
		}
		if h.Clients != nil {
			h.Clients(list)
		}
	default:
		if err := dec.Skip(); err != nil {
			return syntaxError(err)
		}
	}
	return nil
}

// DecodeConsumption reads the whole document and returns every consumo
// element found at any depth.
func DecodeConsumption(r io.Reader) ([]Consumption, error) {
	dec := xml.NewDecoder(r)
	root, err := rootElement(dec)
	if err != nil {
		return nil, err
	}

	var out []Consumption
	if root.Name.Local == "consumo" {
		var rec Consumption
		if err := dec.DecodeElement(&rec, &root); err != nil {
			return nil, syntaxError(err)
		}
		return []Consumption{rec}, expectEOF(dec)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, syntaxError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "consumo" {
				var rec Consumption
				if err := dec.DecodeElement(&rec, &t); err != nil {
					return nil, syntaxError(err)
				}
				out = append(out, rec)
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return out, expectEOF(dec)
}

func rootElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, fmt.Errorf("%w: document has no root element", ErrSyntax)
			}
			return xml.StartElement{}, syntaxError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return xml.StartElement{}, fmt.Errorf("%w: text before root element", ErrSyntax)
			}
		}
	}
}

func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return syntaxError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("%w: junk after document element", ErrSyntax)
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return fmt.Errorf("%w: junk after document element", ErrSyntax)
			}
		}
	}
}

func syntaxError(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrSyntax, err)
}
