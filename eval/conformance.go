package eval

import (
	"context"
	"fmt"
)

// ConformanceResult is the outcome of one protocol-level check against
// the server's tool listing.
type ConformanceResult struct {
	Name    string `json:"name"`
	Pass    bool   `json:"pass"`
	Details string `json:"details"`
}

// CheckConformance runs protocol-level checks against the server's
// advertised tool listing. These are independent of any dataset and
// catch servers that would confuse every case before a single one runs.
func CheckConformance(ctx context.Context, caller ToolCaller) ([]ConformanceResult, error) {
	tools, err := caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var results []ConformanceResult
	record := func(name string, pass bool, details string) {
		results = append(results, ConformanceResult{Name: name, Pass: pass, Details: details})
	}

	if len(tools) == 0 {
		record("tools-listed", false, "server advertises no tools")
		return results, nil
	}
	record("tools-listed", true, fmt.Sprintf("server advertises %d tool(s)", len(tools)))

	seen := make(map[string]bool, len(tools))
	uniquePass := true
	uniqueDetails := "all tool names are unique and non-empty"
	for _, tool := range tools {
		if tool.Name == "" {
			uniquePass = false
			uniqueDetails = "a tool with an empty name is advertised"
			break
		}
		if seen[tool.Name] {
			uniquePass = false
			uniqueDetails = fmt.Sprintf("tool name '%s' is advertised more than once", tool.Name)
			break
		}
		seen[tool.Name] = true
	}
	record("tool-names-unique", uniquePass, uniqueDetails)

	schemaPass := true
	schemaDetails := "all input schemas are object-typed"
	for _, tool := range tools {
		if tool.InputSchema.Type != "" && tool.InputSchema.Type != "object" {
			schemaPass = false
			schemaDetails = fmt.Sprintf("tool '%s' declares input schema type '%s', expected 'object'", tool.Name, tool.InputSchema.Type)
			break
		}
	}
	record("input-schemas-object", schemaPass, schemaDetails)

	requiredPass := true
	requiredDetails := "all required properties are declared"
	for _, tool := range tools {
		for _, req := range tool.InputSchema.Required {
			if _, ok := tool.InputSchema.Properties[req]; !ok {
				requiredPass = false
				requiredDetails = fmt.Sprintf("tool '%s' requires property '%s' that is not declared in its schema", tool.Name, req)
				break
			}
		}
		if !requiredPass {
			break
		}
	}
	record("required-properties-declared", requiredPass, requiredDetails)

	return results, nil
}
