package generator

import (
	"context"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockToolCaller struct {
	mock.Mock
}

func (m *MockToolCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	called := m.Called(ctx, name, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).(*mcp.CallToolResult), called.Error(1)
}

func (m *MockToolCaller) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	called := m.Called(ctx)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).([]mcp.Tool), called.Error(1)
}

func weatherTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_weather",
		Description: "Returns current weather.\nSupports metric units.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"city":  map[string]interface{}{"type": "string"},
				"units": map[string]interface{}{"type": "string", "enum": []any{"metric", "imperial"}},
				"days":  map[string]interface{}{"type": "integer", "minimum": float64(1), "maximum": float64(7)},
			},
			Required: []string{"city", "days"},
		},
	}
}

func TestScaffold(t *testing.T) {
	ctx := context.Background()

	t.Run("one draft case per tool", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{
			weatherTool(),
			{Name: "list_cities", InputSchema: mcp.ToolInputSchema{Type: "object"}},
		}, nil)

		ds, err := Scaffold(ctx, caller, Options{DatasetName: "draft", Seed: 1})
		require.NoError(t, err)

		assert.Equal(t, "draft", ds.Name)
		require.Len(t, ds.Cases, 2)
		assert.Equal(t, "get_weather-draft", ds.Cases[0].ID)
		assert.Equal(t, "get_weather", ds.Cases[0].ToolName)
		assert.Contains(t, ds.Cases[0].Description, "Returns current weather.")
	})

	t.Run("required and enum properties get values", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{weatherTool()}, nil)

		ds, err := Scaffold(ctx, caller, Options{Seed: 1})
		require.NoError(t, err)

		args := ds.Cases[0].Args
		city, ok := args["city"].(string)
		require.True(t, ok)
		assert.NotEmpty(t, city)

		days, ok := args["days"].(int)
		require.True(t, ok)
		assert.GreaterOrEqual(t, days, 1)
		assert.LessOrEqual(t, days, 7)

		units := args["units"]
		assert.Contains(t, []any{"metric", "imperial"}, units)
	})

	t.Run("seed makes fabrication deterministic", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{weatherTool()}, nil)

		first, err := Scaffold(ctx, caller, Options{Seed: 42})
		require.NoError(t, err)
		second, err := Scaffold(ctx, caller, Options{Seed: 42})
		require.NoError(t, err)

		assert.Equal(t, first.Cases[0].Args, second.Cases[0].Args)
	})

	t.Run("probe seeds expectations from the sample response", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{weatherTool()}, nil)
		caller.On("CallTool", mock.Anything, "get_weather", mock.Anything).Return(&mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "## Weather Report\nTemp: 20°C"}},
		}, nil)

		ds, err := Scaffold(ctx, caller, Options{Seed: 1, Probe: true})
		require.NoError(t, err)

		c := ds.Cases[0]
		assert.Contains(t, []string(c.ExpectedTextContains), "## Weather Report")
		assert.NotEmpty(t, c.ExpectedRegex)
	})

	t.Run("failed probe leaves the case bare", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{weatherTool()}, nil)
		caller.On("CallTool", mock.Anything, "get_weather", mock.Anything).Return(nil, fmt.Errorf("refused"))

		ds, err := Scaffold(ctx, caller, Options{Seed: 1, Probe: true})
		require.NoError(t, err)
		assert.Empty(t, ds.Cases[0].ExpectedTextContains)
		assert.Empty(t, ds.Cases[0].ExpectedRegex)
	})

	t.Run("empty listing fails", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return([]mcp.Tool{}, nil)

		_, err := Scaffold(ctx, caller, Options{})
		assert.ErrorContains(t, err, "no tools")
	})

	t.Run("listing failure propagates", func(t *testing.T) {
		caller := &MockToolCaller{}
		caller.On("ListTools", mock.Anything).Return(nil, fmt.Errorf("refused"))

		_, err := Scaffold(ctx, caller, Options{})
		assert.ErrorContains(t, err, "refused")
	})
}

func TestFabricateString(t *testing.T) {
	faker := gofakeit.New(7)

	t.Run("format aware", func(t *testing.T) {
		email := fabricateString(faker, "contact", map[string]any{"format": "email"})
		assert.Contains(t, email, "@")

		id := fabricateString(faker, "id", map[string]any{"format": "uuid"})
		assert.Len(t, id, 36)

		link := fabricateString(faker, "target", map[string]any{"format": "uri"})
		assert.Contains(t, link, "://")

		date := fabricateString(faker, "when", map[string]any{"format": "date"})
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, date)
	})

	t.Run("property name hints", func(t *testing.T) {
		email := fabricateString(faker, "user_email", map[string]any{})
		assert.Contains(t, email, "@")

		link := fabricateString(faker, "homepage_url", map[string]any{})
		assert.Contains(t, link, "://")
	})
}

func TestFabricateValue(t *testing.T) {
	faker := gofakeit.New(7)

	t.Run("default wins over everything", func(t *testing.T) {
		v := fabricateValue(faker, "x", map[string]any{"type": "string", "default": "preset"})
		assert.Equal(t, "preset", v)
	})

	t.Run("boolean", func(t *testing.T) {
		v := fabricateValue(faker, "flag", map[string]any{"type": "boolean"})
		_, ok := v.(bool)
		assert.True(t, ok)
	})

	t.Run("array wraps one item", func(t *testing.T) {
		v := fabricateValue(faker, "tags", map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		})
		list, ok := v.([]any)
		require.True(t, ok)
		require.Len(t, list, 1)
		_, ok = list[0].(string)
		assert.True(t, ok)
	})

	t.Run("nested object honors required", func(t *testing.T) {
		v := fabricateValue(faker, "filter", map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []any{"field"},
		})
		obj, ok := v.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, obj, "field")
		assert.NotContains(t, obj, "limit")
	})
}
