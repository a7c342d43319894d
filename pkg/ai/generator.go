package ai

import "context"

// JSONGenerator is implemented by every provider in this package. It asks the model for output constrained to schema and returns
// the raw JSON text it produced.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *Schema) (string, error)
}

// Schema type names.
const (
	TypeObject = "object"
	TypeArray  = "array"
	TypeString = "string"
)

// Schema is the subset of JSON Schema understood by all providers.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}
