// Package dataset loads, validates and persists eval datasets. The
// persisted format is JSON; schema validators are executable and are
// attached programmatically at load time, never serialized.
package dataset

import (
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/schema"
)

// ParseError means the input was not parseable at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed dataset: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError means the input parsed but violates the required
// dataset shape.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid dataset: %s", strings.Join(e.Problems, "; "))
}

// Options controls loading behavior.
type Options struct {
	// Validate runs structural validation before the dataset is used.
	// Nil means true; loaders that already validated can skip it.
	Validate *bool
	// Schemas attaches executable validators keyed by the names cases
	// reference via expectedSchemaName.
	Schemas schema.Registry
}

func (o Options) validate() bool {
	return o.Validate == nil || *o.Validate
}

// Load decodes a serialized dataset and attaches schemas.
func Load(data []byte, opts Options) (*model.EvalDataset, error) {
	var ds model.EvalDataset
	if err := sonic.Unmarshal(data, &ds); err != nil {
		return nil, &ParseError{Err: err}
	}

	normalize(&ds)

	if opts.validate() {
		if err := Validate(&ds); err != nil {
			return nil, err
		}
	}

	ds.Schemas = opts.Schemas
	if ds.Schemas == nil {
		ds.Schemas = schema.Registry{}
	}

	logger.Logger.Debug("Dataset loaded",
		"name", ds.Name,
		"cases", len(ds.Cases),
		"schemas", len(ds.Schemas))
	return &ds, nil
}

// LoadFile reads and decodes a dataset file.
func LoadFile(path string, opts Options) (*model.EvalDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}
	ds, err := Load(data, opts)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Validate checks the structural invariants of a dataset.
func Validate(ds *model.EvalDataset) error {
	var problems []string

	if strings.TrimSpace(ds.Name) == "" {
		problems = append(problems, "dataset name is required")
	}
	if len(ds.Cases) == 0 {
		problems = append(problems, "dataset must contain at least one case")
	}

	seen := make(map[string]struct{}, len(ds.Cases))
	for i := range ds.Cases {
		c := &ds.Cases[i]
		label := c.ID
		if label == "" {
			label = fmt.Sprintf("case[%d]", i)
		}

		if strings.TrimSpace(c.ID) == "" {
			problems = append(problems, fmt.Sprintf("%s: id is required", label))
		} else if _, dup := seen[c.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate case id", label))
		} else {
			seen[c.ID] = struct{}{}
		}

		if strings.TrimSpace(c.ToolName) == "" {
			problems = append(problems, fmt.Sprintf("%s: toolName is required", label))
		}

		for j, ex := range c.Extractors {
			if ex.Type == "" || ex.VariableName == "" {
				problems = append(problems, fmt.Sprintf("%s: extractor[%d] needs type and variable_name", label, j))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// normalize fills defaults that the invariants require: args is always
// present, possibly empty.
func normalize(ds *model.EvalDataset) {
	for i := range ds.Cases {
		if ds.Cases[i].Args == nil {
			ds.Cases[i].Args = map[string]any{}
		}
	}
}

// Marshal serializes the persisted dataset format. Schemas are runtime
// state and are not included.
func Marshal(ds *model.EvalDataset) ([]byte, error) {
	data, err := sonic.ConfigDefault.MarshalIndent(ds, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dataset: %w", err)
	}
	return data, nil
}

// Save writes the dataset to a file in the persisted format.
func Save(ds *model.EvalDataset, path string) error {
	data, err := Marshal(ds)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	return nil
}
