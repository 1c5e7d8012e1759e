package llm

import (
	"google.golang.org/genai"
)

// SchemaType is a JSON schema primitive type
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

// Field is a named object property, kept in declaration order
type Field struct {
	Name   string
	Schema *Schema
}

// Schema describes a structured reply. Every object property is required,
// matching strict structured-output mode.
type Schema struct {
	Type        SchemaType
	Description string
	Fields      []Field
	Items       *Schema
}

func String() *Schema { return &Schema{Type: TypeString} }

func Array(items *Schema) *Schema { return &Schema{Type: TypeArray, Items: items} }

func Object(fields ...Field) *Schema { return &Schema{Type: TypeObject, Fields: fields} }

// F pairs a property name with its schema
func F(name string, schema *Schema) Field { return Field{Name: name, Schema: schema} }

// ToOpenAI renders the schema as a strict JSON schema document
func (s *Schema) ToOpenAI() map[string]interface{} {
	out := map[string]interface{}{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	switch s.Type {
	case TypeObject:
		props := make(map[string]interface{}, len(s.Fields))
		required := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			props[f.Name] = f.Schema.ToOpenAI()
			required = append(required, f.Name)
		}
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	case TypeArray:
		if s.Items != nil {
			out["items"] = s.Items.ToOpenAI()
		}
	}
	return out
}

// ToGenai renders the schema for a Gemini ResponseSchema
func (s *Schema) ToGenai() *genai.Schema {
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(s.Fields))
		for _, f := range s.Fields {
			out.Properties[f.Name] = f.Schema.ToGenai()
			out.Required = append(out.Required, f.Name)
			out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
		}
	case TypeArray:
		out.Type = genai.TypeArray
		if s.Items != nil {
			out.Items = s.Items.ToGenai()
		}
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	return out
}
