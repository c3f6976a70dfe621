package llm

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/spherical/offer-extractor/internal/domain"
)

// FieldKind is the value type of a schema field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
)

// Field describes one property of an extracted item. The same description
// drives the JSON schema sent to the model and the validation of its answer.
type Field struct {
	Name        string
	Kind        FieldKind
	Required    bool
	Description string
	Assign      func(rec *domain.OfferRecord, value any)
}

// Schema describes the model answer: an object holding one array of items.
type Schema struct {
	Name       string
	ArrayField string
	Fields     []Field
}

// OfferSchema is the answer shape for flyer pages.
var OfferSchema = Schema{
	Name:       "extract_offers_response",
	ArrayField: "offers",
	Fields: []Field{
		{
			Name: "storeName", Kind: KindString, Required: true,
			Description: "Retailer publishing the flyer",
			Assign:      func(r *domain.OfferRecord, v any) { r.StoreName = v.(string) },
		},
		{
			Name: "productName", Kind: KindString, Required: true,
			Description: "Product name as printed",
			Assign:      func(r *domain.OfferRecord, v any) { r.ProductName = v.(string) },
		},
		{
			Name: "brand", Kind: KindString,
			Description: "Brand or label, null if not printed",
			Assign:      func(r *domain.OfferRecord, v any) { s := v.(string); r.Brand = &s },
		},
		{
			Name: "quantity", Kind: KindString,
			Description: "Pack size or unit description, null if not printed",
			Assign:      func(r *domain.OfferRecord, v any) { s := v.(string); r.Quantity = &s },
		},
		{
			Name: "price", Kind: KindNumber, Required: true,
			Description: "Offer price as a decimal number",
			Assign:      func(r *domain.OfferRecord, v any) { r.Price = v.(float64) },
		},
		{
			Name: "originalPrice", Kind: KindNumber,
			Description: "Crossed-out or reference price, null if not printed",
			Assign:      func(r *domain.OfferRecord, v any) { f := v.(float64); r.OriginalPrice = &f },
		},
		{
			Name: "offerDateStart", Kind: KindDate, Required: true,
			Description: "First day of validity, YYYY-MM-DD",
			Assign:      func(r *domain.OfferRecord, v any) { r.OfferDateStart = v.(domain.Date) },
		},
		{
			Name: "offerDateEnd", Kind: KindDate, Required: true,
			Description: "Last day of validity, YYYY-MM-DD",
			Assign:      func(r *domain.OfferRecord, v any) { r.OfferDateEnd = v.(domain.Date) },
		},
	},
}

// ResponseFormat is the response_format member of a chat completions request.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a strict schema constraint.
type JSONSchema struct {
	Name   string             `json:"name"`
	Strict bool               `json:"strict"`
	Schema *jsonschema.Schema `json:"schema"`
}

// closedSchema is the false schema, rendered as "additionalProperties": false.
func closedSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Not: &jsonschema.Schema{}}
}

// ResponseFormat builds the strict json_schema constraint. Strict mode wants
// every property listed as required, so optional fields are typed nullable.
func (s Schema) ResponseFormat() ResponseFormat {
	return ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   s.Name,
			Strict: true,
			Schema: s.Document(),
		},
	}
}

// Document renders the answer shape as a JSON Schema document.
func (s Schema) Document() *jsonschema.Schema {
	item := &jsonschema.Schema{
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema, len(s.Fields)),
		Required:             make([]string, 0, len(s.Fields)),
		AdditionalProperties: closedSchema(),
	}
	for _, f := range s.Fields {
		item.Properties[f.Name] = f.node()
		item.Required = append(item.Required, f.Name)
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			s.ArrayField: {Type: "array", Items: item},
		},
		Required:             []string{s.ArrayField},
		AdditionalProperties: closedSchema(),
	}
}

// RequiredFields lists the fields every decoded item must carry.
func (s Schema) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

func (f Field) node() *jsonschema.Schema {
	n := &jsonschema.Schema{Description: f.Description}
	typ := "string"
	switch f.Kind {
	case KindNumber:
		typ = "number"
	case KindDate:
		n.Format = "date"
	}
	if f.Required {
		n.Type = typ
	} else {
		n.Types = []string{typ, "null"}
	}
	return n
}
