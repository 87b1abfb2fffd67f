package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataExtractor(t *testing.T) {
	value := map[string]any{
		"id":    "abc-123",
		"count": float64(4),
		"tags":  []any{"a", "b"},
	}

	t.Run("jsonpath extraction", func(t *testing.T) {
		vars := map[string]string{}
		e := DataExtractor{Type: "jsonpath", Path: "$.id", VariableName: "createdId"}
		e.Extract(value, vars)
		assert.Equal(t, "abc-123", vars["createdId"])
	})

	t.Run("integral float folds to int", func(t *testing.T) {
		vars := map[string]string{}
		e := DataExtractor{Type: "jsonpath", Path: "$.count", VariableName: "count"}
		e.Extract(value, vars)
		assert.Equal(t, "4", vars["count"])
	})

	t.Run("invalid path is skipped", func(t *testing.T) {
		vars := map[string]string{}
		e := DataExtractor{Type: "jsonpath", Path: "$..[broken", VariableName: "x"}
		e.Extract(value, vars)
		_, ok := vars["x"]
		assert.False(t, ok)
	})

	t.Run("unknown type is skipped", func(t *testing.T) {
		vars := map[string]string{}
		e := DataExtractor{Type: "xpath", Path: "//id", VariableName: "x"}
		e.Extract(value, vars)
		assert.Empty(t, vars)
	})

	t.Run("nil value is a no-op", func(t *testing.T) {
		vars := map[string]string{}
		e := DataExtractor{Type: "jsonpath", Path: "$.id", VariableName: "x"}
		e.Extract(nil, vars)
		assert.Empty(t, vars)
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "null", Normalize(nil))
	assert.Equal(t, "4", Normalize(float64(4)))
	assert.Equal(t, "4.5", Normalize(4.5))
	assert.Equal(t, "7", Normalize(7))
	assert.Equal(t, "hello", Normalize("hello"))
	assert.Equal(t, "[1, 2]", Normalize([]any{float64(1), float64(2)}))
}
