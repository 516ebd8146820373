package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"furnivox/internal/inventory"
)

var ErrUnknownTool = errors.New("unknown tool")

// ValidationError lists every problem found in a tool call.
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s arguments: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// Validator re-checks tool calls against the schema that was offered to
// the reasoner, and spawn model ids against the inventory.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
	index   *inventory.Index
}

func NewValidator(tools []Tool, index *inventory.Index) (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema, len(tools)),
		index:   index,
	}

	for _, t := range tools {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.Parameters))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t.Name, err)
		}
		v.schemas[t.Name] = s
	}

	return v, nil
}

// Validate returns nil for a well-formed call. Model ids are only checked
// when the inventory is loaded.
func (v *Validator) Validate(call ToolCall) error {
	schema, ok := v.schemas[call.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate %s: %w", call.Name, err)
	}

	var problems []string
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}

	if call.Name == ToolSpawn && v.index != nil && v.index.Len() > 0 {
		if id, ok := args["modelId"].(string); ok {
			if _, found := v.index.Lookup(id); !found {
				problems = append(problems, fmt.Sprintf("modelId: %q is not in the inventory", id))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Tool: call.Name, Problems: problems}
	}
	return nil
}
