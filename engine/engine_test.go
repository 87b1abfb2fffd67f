package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalvert/playwright-mcp-evals/eval"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/report"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := writeConfig(t, `
name: smoke
datasets:
  - weather.json
server:
  name: weather-server
  type: stdio
  command: node server.js
judges:
  - id: strict
    provider: OPENAI
    model: gpt-4o
    token: test-token
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "smoke", cfg.Name)
		assert.Equal(t, "weather-server", cfg.Server.Name)
		require.Len(t, cfg.Judges, 1)
	})

	t.Run("missing server name", func(t *testing.T) {
		path := writeConfig(t, `
name: smoke
server:
  type: stdio
  command: node server.js
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "server.name is required")
	})

	t.Run("judge without id", func(t *testing.T) {
		path := writeConfig(t, `
server:
  name: srv
  type: stdio
  command: node server.js
judges:
  - provider: OPENAI
    model: gpt-4o
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "judge with empty id")
	})

	t.Run("duplicate judge id", func(t *testing.T) {
		path := writeConfig(t, `
server:
  name: srv
  type: stdio
  command: node server.js
judges:
  - id: strict
    provider: OPENAI
    model: gpt-4o
  - id: strict
    provider: ANTHROPIC
    model: claude-sonnet-4-0
`)
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "duplicate judge id")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestSelectedChecks(t *testing.T) {
	t.Run("empty enables all", func(t *testing.T) {
		assert.Nil(t, selectedChecks(nil))
	})

	t.Run("known kinds pass through", func(t *testing.T) {
		kinds := selectedChecks([]string{"exact", "regex"})
		assert.Equal(t, []eval.CheckKind{eval.CheckExact, eval.CheckRegex}, kinds)
	})

	t.Run("non-expectation names are dropped", func(t *testing.T) {
		assert.Nil(t, selectedChecks([]string{"conformance", "bogus"}))
	})
}

func TestHasCheck(t *testing.T) {
	assert.True(t, hasCheck([]string{"exact", "Conformance"}, "conformance"))
	assert.False(t, hasCheck([]string{"exact"}, "conformance"))
	assert.False(t, hasCheck(nil, "conformance"))
}

func TestReportName(t *testing.T) {
	assert.Equal(t, "weather", reportName("", "weather"))
	assert.Equal(t, "smoke", reportName("smoke", ""))
	assert.Equal(t, "smoke", reportName("smoke", "smoke"))
	assert.Equal(t, "smoke / weather", reportName("smoke", "weather"))
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, "weather", datasetStem("data/weather.json"))
	assert.Equal(t, "weather.cases", datasetStem("weather.cases.json"))
	assert.Equal(t, "out_weather.json", suffixPath("out.json", "weather"))
	assert.Equal(t, "report/out_weather.json", suffixPath("report/out.json", "weather"))
}

func TestCompareBaseline(t *testing.T) {
	buildReport := func(id string, pass bool) *report.Report {
		result := &model.EvalRunnerResult{RunID: "run-1", Total: 1}
		if pass {
			result.Passed = 1
		} else {
			result.Failed = 1
		}
		result.CaseResults = []model.EvalCaseResult{{ID: id, Pass: pass}}
		return report.Build("smoke", result)
	}

	writeBaseline := func(t *testing.T, rep *report.Report) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "baseline.json")
		require.NoError(t, rep.WriteJSON(path))
		return path
	}

	t.Run("no baseline path is a no-op", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, compareBaseline(&buf, "", []*report.Report{buildReport("a", true)}))
		assert.Empty(t, buf.String())
	})

	t.Run("single report prints the trend", func(t *testing.T) {
		path := writeBaseline(t, buildReport("a", true))

		var buf bytes.Buffer
		require.NoError(t, compareBaseline(&buf, path, []*report.Report{buildReport("a", false)}))
		assert.Contains(t, buf.String(), "Trend vs Baseline")
		assert.Contains(t, buf.String(), "REGRESSED")
	})

	t.Run("multiple reports skip the comparison", func(t *testing.T) {
		path := writeBaseline(t, buildReport("a", true))

		var buf bytes.Buffer
		reports := []*report.Report{buildReport("a", true), buildReport("b", true)}
		require.NoError(t, compareBaseline(&buf, path, reports))
		assert.Empty(t, buf.String())
	})

	t.Run("unreadable baseline errors", func(t *testing.T) {
		var buf bytes.Buffer
		err := compareBaseline(&buf, filepath.Join(t.TempDir(), "nope.json"), []*report.Report{buildReport("a", true)})
		assert.Error(t, err)
	})
}
