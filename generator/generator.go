// Package generator implements the dataset scaffolding mode (-g flag).
// It connects to an MCP server, fetches the tool listing, and fabricates
// one draft eval case per tool from the tool's input schema. The output
// is a starting point for a dataset author, not a finished dataset.
package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/scalvert/playwright-mcp-evals/dataset"
	"github.com/scalvert/playwright-mcp-evals/eval"
	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
)

// Options controls scaffolding. Seed makes fabricated argument values
// reproducible across invocations.
type Options struct {
	DatasetName string
	Description string
	Seed        uint64

	// Probe invokes each tool once with the fabricated arguments and
	// seeds the draft case with suggested expectations from the sample
	// response. A failed probe leaves the case bare; it never fails the
	// scaffold.
	Probe bool
}

// Scaffold fabricates a draft dataset with one case per advertised tool.
func Scaffold(ctx context.Context, caller eval.ToolCaller, opts Options) (*model.EvalDataset, error) {
	tools, err := caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("server advertises no tools, nothing to scaffold")
	}

	name := opts.DatasetName
	if name == "" {
		name = "scaffolded-dataset"
	}

	faker := gofakeit.New(opts.Seed)

	ds := &model.EvalDataset{
		Name:        name,
		Description: opts.Description,
		Metadata: map[string]any{
			"generated": true,
			"seed":      opts.Seed,
		},
	}

	for _, tool := range tools {
		c := model.EvalCase{
			ID:          fmt.Sprintf("%s-draft", tool.Name),
			ToolName:    tool.Name,
			Args:        fabricateArgs(faker, tool.InputSchema),
			Description: draftDescription(tool),
		}
		if opts.Probe {
			probeExpectations(ctx, caller, tool, &c)
		}
		ds.Cases = append(ds.Cases, c)
		logger.Logger.Debug("Scaffolded case",
			"tool_name", tool.Name,
			"args_count", len(c.Args),
		)
	}

	logger.Logger.Info("Dataset scaffolded",
		"dataset_name", ds.Name,
		"cases", len(ds.Cases),
	)
	return ds, nil
}

// ScaffoldToFile runs Scaffold and writes the draft dataset as JSON.
func ScaffoldToFile(ctx context.Context, caller eval.ToolCaller, opts Options, path string) error {
	ds, err := Scaffold(ctx, caller, opts)
	if err != nil {
		return err
	}
	if err := dataset.Save(ds, path); err != nil {
		return err
	}
	fmt.Printf("Scaffolded dataset with %d case(s): %s\n", len(ds.Cases), path)
	return nil
}

// probeExpectations calls the tool once and turns the sample response
// into starter expectations for the draft case.
func probeExpectations(ctx context.Context, caller eval.ToolCaller, tool mcp.Tool, c *model.EvalCase) {
	resp, err := caller.CallTool(ctx, tool.Name, c.Args)
	if err != nil {
		logger.Logger.Warn("Probe call failed, leaving case bare",
			"tool_name", tool.Name,
			"error", err,
		)
		return
	}
	if resp != nil && resp.IsError {
		logger.Logger.Warn("Probe call returned a tool error, leaving case bare",
			"tool_name", tool.Name,
		)
		return
	}

	sugg := eval.Suggest(resp, &tool)
	if len(sugg.TextContains) > 0 {
		c.ExpectedTextContains = model.StringList(sugg.TextContains)
	}
	if len(sugg.Regex) > 0 {
		c.ExpectedRegex = model.StringList(sugg.Regex)
	}
}

func draftDescription(tool mcp.Tool) string {
	desc := strings.TrimSpace(tool.Description)
	if desc == "" {
		return fmt.Sprintf("Draft case for tool '%s'", tool.Name)
	}
	if idx := strings.IndexByte(desc, '\n'); idx >= 0 {
		desc = desc[:idx]
	}
	return fmt.Sprintf("Draft case: %s", desc)
}

// fabricateArgs builds an argument map covering every required property
// plus any optional property with an enum or default, so the draft call
// has a chance of succeeding against a real server.
func fabricateArgs(faker *gofakeit.Faker, schema mcp.ToolInputSchema) map[string]any {
	args := map[string]any{}
	if len(schema.Properties) == 0 {
		return args
	}

	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}

	// Iterate in sorted order so a fixed seed always fabricates the
	// same values regardless of map ordering.
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := schema.Properties[name].(map[string]any)
		if !ok {
			continue
		}
		if !required[name] && prop["enum"] == nil && prop["default"] == nil {
			continue
		}
		args[name] = fabricateValue(faker, name, prop)
	}
	return args
}

func fabricateValue(faker *gofakeit.Faker, name string, prop map[string]any) any {
	if def, ok := prop["default"]; ok {
		return def
	}
	if enum, ok := prop["enum"].([]any); ok && len(enum) > 0 {
		return enum[faker.IntRange(0, len(enum)-1)]
	}

	propType, _ := prop["type"].(string)
	switch propType {
	case "string":
		return fabricateString(faker, name, prop)
	case "integer":
		lo, hi := numericBounds(prop, 1, 100)
		return faker.IntRange(int(lo), int(hi))
	case "number":
		lo, hi := numericBounds(prop, 0, 100)
		return faker.Float64Range(lo, hi)
	case "boolean":
		return faker.Bool()
	case "array":
		items, _ := prop["items"].(map[string]any)
		if items == nil {
			items = map[string]any{"type": "string"}
		}
		return []any{fabricateValue(faker, name, items)}
	case "object":
		nested := mcp.ToolInputSchema{Type: "object"}
		if props, ok := prop["properties"].(map[string]any); ok {
			nested.Properties = props
		}
		if req, ok := prop["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					nested.Required = append(nested.Required, s)
				}
			}
		}
		return fabricateArgs(faker, nested)
	default:
		return faker.Word()
	}
}

func fabricateString(faker *gofakeit.Faker, name string, prop map[string]any) string {
	format, _ := prop["format"].(string)
	switch format {
	case "email":
		return faker.Email()
	case "uuid":
		return faker.UUID()
	case "uri", "url":
		return faker.URL()
	case "date":
		return faker.Date().Format("2006-01-02")
	case "date-time":
		return faker.Date().Format("2006-01-02T15:04:05Z07:00")
	}

	// No format: fall back to a hint from the property name.
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email"):
		return faker.Email()
	case strings.Contains(lower, "url") || strings.Contains(lower, "uri") || strings.Contains(lower, "link"):
		return faker.URL()
	case strings.Contains(lower, "city"):
		return faker.City()
	case strings.Contains(lower, "name"):
		return faker.Name()
	case strings.Contains(lower, "phone"):
		return faker.Phone()
	default:
		return faker.Word()
	}
}

func numericBounds(prop map[string]any, defLo, defHi float64) (float64, float64) {
	lo, hi := defLo, defHi
	if v, ok := prop["minimum"].(float64); ok {
		lo = v
	}
	if v, ok := prop["maximum"].(float64); ok {
		hi = v
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
