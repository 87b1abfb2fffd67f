// Package schema holds executable response validators. Validators are
// attached to a dataset at load time and are never part of the
// serialized dataset format.
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is a single field-level validation failure.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// Validator checks a decoded JSON value against some shape contract.
type Validator interface {
	// Validate returns the list of violations, empty when the value
	// conforms.
	Validate(instance any) []Violation
}

// Registry maps schema names to validators.
type Registry map[string]Validator

// jsonSchemaValidator wraps a compiled JSON Schema.
type jsonSchemaValidator struct {
	schema *jsonschema.Schema
}

// Compile builds a Validator from a JSON Schema document. The name is
// only used as the resource URL in diagnostics.
func Compile(name, schemaJSON string) (Validator, error) {
	if strings.TrimSpace(name) == "" {
		name = "schema.json"
	}
	s, err := jsonschema.CompileString(name, schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", name, err)
	}
	return &jsonSchemaValidator{schema: s}, nil
}

// MustCompile is Compile for statically known schemas.
func MustCompile(name, schemaJSON string) Validator {
	v, err := Compile(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *jsonSchemaValidator) Validate(instance any) []Violation {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Path: "", Message: err.Error()}}
	}
	return flatten(ve)
}

// flatten collects leaf causes so each violation points at the deepest
// failing instance location instead of the synthetic root error.
func flatten(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		return []Violation{{
			Path:    instancePath(ve.InstanceLocation),
			Message: ve.Message,
		}}
	}

	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

func instancePath(loc string) string {
	if loc == "" || loc == "/" {
		return "$"
	}
	return "$" + strings.ReplaceAll(loc, "/", ".")
}

// FuncValidator adapts a plain function to the Validator interface, for
// validators that are code rather than JSON Schema documents.
type FuncValidator func(instance any) []Violation

func (f FuncValidator) Validate(instance any) []Violation {
	return f(instance)
}
