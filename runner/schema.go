package runner

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// InputSchema is a compiled tool inputSchema
type InputSchema struct {
	schema *jsonschema.Schema
}

// CompileInputSchema compiles the inputSchema advertised by tools/list
func CompileInputSchema(doc map[string]any) (*InputSchema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("inputSchema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("inputSchema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &InputSchema{schema: schema}, nil
}

// Validate checks a tools/call arguments document against the schema
func (s *InputSchema) Validate(args map[string]any) error {
	return s.schema.Validate(args)
}
