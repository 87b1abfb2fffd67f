package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"github.com/scalvert/playwright-mcp-evals/schema"
)

// ============================================================================
// EVAL DATASET
// ============================================================================

// EvalDataset is a named, ordered collection of cases. Schemas are
// executable validators attached at load time and never serialized.
type EvalDataset struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Cases       []EvalCase      `json:"cases"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Schemas     schema.Registry `json:"-"`
}

// Case returns the case with the given id, or nil.
func (d *EvalDataset) Case(id string) *EvalCase {
	for i := range d.Cases {
		if d.Cases[i].ID == id {
			return &d.Cases[i]
		}
	}
	return nil
}

// ============================================================================
// EVAL CASE
// ============================================================================

// EvalCase is one declarative test scenario: a tool invocation plus
// expected-outcome directives. Every directive is independently
// optional; an undeclared directive is skipped during evaluation.
type EvalCase struct {
	ID       string         `json:"id"`
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`

	ExpectedExact        any               `json:"expectedExact,omitempty"`
	ExpectedSchemaName   string            `json:"expectedSchemaName,omitempty"`
	ExpectedTextContains StringList        `json:"expectedTextContains,omitempty"`
	CaseSensitive        *bool             `json:"caseSensitive,omitempty"`
	ExpectedRegex        StringList        `json:"expectedRegex,omitempty"`
	ExpectedError        *ErrorExpectation `json:"expectedError,omitempty"`
	JudgeConfigID        string            `json:"judgeConfigId,omitempty"`

	Description string          `json:"description,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Extractors  []DataExtractor `json:"extractors,omitempty"`
}

// TextMatchCaseSensitive reports whether substring matching should keep
// case. Defaults to true when the case does not say otherwise.
func (c *EvalCase) TextMatchCaseSensitive() bool {
	if c.CaseSensitive == nil {
		return true
	}
	return *c.CaseSensitive
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*s = StringList(many)
	return nil
}

// ErrorExpectation is the decoded form of the expectedError directive:
// boolean true accepts any error, a string or list requires the error
// text to contain every listed substring.
type ErrorExpectation struct {
	Any      bool
	Contains []string
}

func (e *ErrorExpectation) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		if !flag {
			return fmt.Errorf("expectedError: false is not a valid directive, omit the field instead")
		}
		*e = ErrorExpectation{Any: true}
		return nil
	}

	var list StringList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expectedError: expected true, string or list of strings: %w", err)
	}
	*e = ErrorExpectation{Contains: list}
	return nil
}

func (e ErrorExpectation) MarshalJSON() ([]byte, error) {
	if e.Any {
		return json.Marshal(true)
	}
	return json.Marshal(e.Contains)
}

// ============================================================================
// EVAL RESULTS
// ============================================================================

// EvalExpectationResult carries the pass/fail outcome of one
// expectation. Details is diagnostic prose, never used for control flow.
type EvalExpectationResult struct {
	Pass    bool   `json:"pass"`
	Details string `json:"details,omitempty"`
}

// ExpectationSet holds one optional result slot per expectation kind.
// An absent slot means the check was disabled or had nothing to do and
// counts as vacuously passing.
type ExpectationSet struct {
	Exact        *EvalExpectationResult `json:"exact,omitempty"`
	Schema       *EvalExpectationResult `json:"schema,omitempty"`
	Judge        *EvalExpectationResult `json:"judge,omitempty"`
	TextContains *EvalExpectationResult `json:"textContains,omitempty"`
	Regex        *EvalExpectationResult `json:"regex,omitempty"`
	Error        *EvalExpectationResult `json:"error,omitempty"`
}

// All returns the populated slots keyed by kind name.
func (s *ExpectationSet) All() map[string]*EvalExpectationResult {
	out := make(map[string]*EvalExpectationResult, 6)
	for kind, r := range map[string]*EvalExpectationResult{
		"exact":        s.Exact,
		"schema":       s.Schema,
		"judge":        s.Judge,
		"textContains": s.TextContains,
		"regex":        s.Regex,
		"error":        s.Error,
	} {
		if r != nil {
			out[kind] = r
		}
	}
	return out
}

// Passed reports whether every populated slot passed.
func (s *ExpectationSet) Passed() bool {
	for _, r := range s.All() {
		if !r.Pass {
			return false
		}
	}
	return true
}

// EvalCaseResult is the outcome of one case. Pass is the conjunction of
// transport success and every populated expectation slot.
type EvalCaseResult struct {
	ID           string              `json:"id"`
	Pass         bool                `json:"pass"`
	Response     *mcp.CallToolResult `json:"response,omitempty"`
	Error        string              `json:"error,omitempty"`
	Expectations ExpectationSet      `json:"expectations"`
	DurationMs   int64               `json:"durationMs"`
}

// EvalRunnerResult aggregates a whole run. Total can be smaller than
// the dataset when stop-on-failure ended the run early.
type EvalRunnerResult struct {
	RunID       string           `json:"runId"`
	StartedAt   time.Time        `json:"startedAt"`
	Total       int              `json:"total"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	CaseResults []EvalCaseResult `json:"caseResults"`
	DurationMs  int64            `json:"durationMs"`
}

// ============================================================================
// HARNESS CONFIGURATION
// ============================================================================

type ServerType string

const (
	Stdio ServerType = "stdio"
	SSE   ServerType = "sse"
	Http  ServerType = "http"
)

// Server describes the MCP tool server under evaluation.
type Server struct {
	Name         string     `yaml:"name"`
	Type         ServerType `yaml:"type"`
	Command      string     `yaml:"command,omitempty"`
	URL          string     `yaml:"url,omitempty"`
	Headers      []string   `yaml:"headers,omitempty"`
	ServerDelay  string     `yaml:"server_delay,omitempty"`
	ProcessDelay string     `yaml:"process_delay,omitempty"`
}

type ProviderType string

const (
	ProviderOpenAI    ProviderType = "OPENAI"
	ProviderAnthropic ProviderType = "ANTHROPIC"
	ProviderGoogle    ProviderType = "GOOGLE"
	ProviderGroq      ProviderType = "GROQ"
)

// JudgeConfig names an LLM judge configuration that cases can request
// via judgeConfigId.
type JudgeConfig struct {
	ID               string       `yaml:"id" json:"id"`
	Provider         ProviderType `yaml:"provider" json:"provider"`
	Model            string       `yaml:"model" json:"model"`
	Token            string       `yaml:"token" json:"-"`
	BaseURL          string       `yaml:"base_url,omitempty" json:"baseUrl,omitempty"`
	Rubric           string       `yaml:"rubric,omitempty" json:"rubric,omitempty"`
	Reference        string       `yaml:"reference,omitempty" json:"reference,omitempty"`
	PassingThreshold float64      `yaml:"passing_threshold,omitempty" json:"passingThreshold,omitempty"`
	RPM              int          `yaml:"rpm,omitempty" json:"rpm,omitempty"`
}

// DefaultPassingThreshold applies when a judge configuration does not
// set one.
const DefaultPassingThreshold = 0.7

// Threshold returns the configured passing threshold or the default.
func (j JudgeConfig) Threshold() float64 {
	if j.PassingThreshold <= 0 {
		return DefaultPassingThreshold
	}
	return j.PassingThreshold
}

type Settings struct {
	Verbose       bool     `yaml:"verbose"`
	StopOnFailure bool     `yaml:"stop_on_failure"`
	ToolTimeout   string   `yaml:"tool_timeout,omitempty"`
	CaseDelay     string   `yaml:"case_delay,omitempty"`
	Checks        []string `yaml:"checks,omitempty"`
}

// EvalConfig is the YAML harness configuration: which server to drive,
// which datasets to run against it, and which judges are available.
type EvalConfig struct {
	Name      string            `yaml:"name"`
	Datasets  []string          `yaml:"datasets"`
	Server    Server            `yaml:"server"`
	Judges    []JudgeConfig     `yaml:"judges,omitempty"`
	Settings  Settings          `yaml:"settings"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

// JudgeByID returns the judge configuration with the given id, or nil.
func (c *EvalConfig) JudgeByID(id string) *JudgeConfig {
	for i := range c.Judges {
		if c.Judges[i].ID == id {
			return &c.Judges[i]
		}
	}
	return nil
}

// ============================================================================
// YAML PARSER
// ============================================================================

func ParseEvalConfig(filename string) (*EvalConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseEvalConfigFromString(string(data))
}

func ParseEvalConfigFromString(definition string) (*EvalConfig, error) {
	var config EvalConfig
	if err := yaml.Unmarshal([]byte(definition), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &config, nil
}
