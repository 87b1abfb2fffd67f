package model

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/yalp/jsonpath"

	"github.com/scalvert/playwright-mcp-evals/logger"
)

// DataExtractor pulls a value out of a case response into the shared
// variable context, so later cases in the same run can template it into
// their arguments. Datasets are authored assuming sequential execution,
// which is why chaining like this is safe.
type DataExtractor struct {
	Type         string `json:"type" yaml:"type"`
	Path         string `json:"path" yaml:"path"`
	VariableName string `json:"variableName" yaml:"variable_name"`
}

// Extract applies the extractor to a decoded response value. Failures
// are logged and skipped; a broken extractor must not fail the case.
func (e *DataExtractor) Extract(value any, vars map[string]string) {
	if vars == nil || value == nil {
		return
	}

	switch e.Type {
	case "jsonpath":
		res, err := jsonpath.Read(value, e.Path)
		if err != nil {
			logger.Logger.Warn("Invalid JSONPath", "path", e.Path, "error", err)
			return
		}
		logger.Logger.Debug("Extracted", "variable", e.VariableName, "value", fmt.Sprint(res))
		vars[e.VariableName] = Normalize(res)
	default:
		logger.Logger.Warn("Unknown extractor type", "type", e.Type)
	}
}

// Normalize renders a decoded JSON value as a canonical string, folding
// integral floats to integers so 4.0 and 4 compare equal.
func Normalize(v any) string {
	if v == nil {
		return "null"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, Normalize(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%g", f)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", rv.Int())
	case reflect.String:
		return rv.String()
	default:
		return fmt.Sprint(v)
	}
}
