package eval

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/scalvert/playwright-mcp-evals/judge"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/schema"
)

// CheckKind names one of the expectation functions.
type CheckKind string

const (
	CheckExact        CheckKind = "exact"
	CheckSchema       CheckKind = "schema"
	CheckJudge        CheckKind = "judge"
	CheckTextContains CheckKind = "textContains"
	CheckRegex        CheckKind = "regex"
	CheckError        CheckKind = "error"
)

// AllChecks is every expectation kind in evaluation order.
var AllChecks = []CheckKind{
	CheckExact, CheckSchema, CheckJudge, CheckTextContains, CheckRegex, CheckError,
}

// Context carries the run-scoped collaborators expectation functions
// need: the dataset's schema registry and the optional judges. Both
// maps are keyed by the id a case references via judgeConfigId.
type Context struct {
	Schemas      schema.Registry
	Judges       map[string]judge.Judge
	JudgeConfigs map[string]model.JudgeConfig
}

// CheckFunc is the shared shape of every expectation function. All
// checks follow the skip-if-absent rule: a case that does not declare
// the corresponding directive gets a vacuous pass, which makes applying
// every check to every case always correct.
type CheckFunc func(ctx context.Context, ec *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error)

// Checks maps each kind to its expectation function.
var Checks = map[CheckKind]CheckFunc{
	CheckExact:        ExactMatch,
	CheckSchema:       SchemaConformance,
	CheckJudge:        JudgeAssessment,
	CheckTextContains: TextContains,
	CheckRegex:        RegexMatch,
	CheckError:        ErrorExpected,
}

const textPreviewLength = 500

func skipped(directive string) model.EvalExpectationResult {
	return model.EvalExpectationResult{
		Pass:    true,
		Details: fmt.Sprintf("no %s directive, skipped", directive),
	}
}

// ExactMatch deep-compares the response value against expectedExact.
// Both sides are JSON-normalized first so map ordering and integer vs
// float encoding differences do not matter.
func ExactMatch(_ context.Context, _ *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if c.ExpectedExact == nil {
		return skipped("expectedExact"), nil
	}

	expected, err := jsonNormalize(c.ExpectedExact)
	if err != nil {
		return model.EvalExpectationResult{}, fmt.Errorf("expectedExact is not serializable: %w", err)
	}
	actual, err := jsonNormalize(ResponseValue(resp))
	if err != nil {
		return model.EvalExpectationResult{}, fmt.Errorf("response is not serializable: %w", err)
	}

	if reflect.DeepEqual(expected, actual) {
		return model.EvalExpectationResult{Pass: true, Details: "response matches expected value"}, nil
	}
	return model.EvalExpectationResult{
		Pass: false,
		Details: fmt.Sprintf("expected %s, got %s",
			truncateString(jsonString(expected), textPreviewLength),
			truncateString(jsonString(actual), textPreviewLength)),
	}, nil
}

// jsonNormalize round-trips a value through JSON so structurally equal
// values compare equal regardless of their Go representation.
func jsonNormalize(v any) (any, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SchemaConformance validates the response value against the schema
// the case names. An undeclared schema name is a configuration failure
// reported as a failing result, never an error.
func SchemaConformance(_ context.Context, ec *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if c.ExpectedSchemaName == "" {
		return skipped("expectedSchemaName"), nil
	}

	var validator schema.Validator
	if ec != nil && ec.Schemas != nil {
		validator = ec.Schemas[c.ExpectedSchemaName]
	}
	if validator == nil {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: fmt.Sprintf("schema '%s' is not declared in the dataset's schema registry", c.ExpectedSchemaName),
		}, nil
	}

	value, err := jsonNormalize(ResponseValue(resp))
	if err != nil {
		return model.EvalExpectationResult{}, fmt.Errorf("response is not serializable: %w", err)
	}

	violations := validator.Validate(value)
	if len(violations) == 0 {
		return model.EvalExpectationResult{
			Pass:    true,
			Details: fmt.Sprintf("response conforms to schema '%s'", c.ExpectedSchemaName),
		}, nil
	}

	lines := make([]string, 0, len(violations))
	for _, v := range violations {
		lines = append(lines, v.String())
	}
	return model.EvalExpectationResult{
		Pass: false,
		Details: fmt.Sprintf("response violates schema '%s': %s",
			c.ExpectedSchemaName, strings.Join(lines, "; ")),
	}, nil
}

// TextContains requires every expected substring to occur in the
// extracted response text.
func TextContains(_ context.Context, _ *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if len(c.ExpectedTextContains) == 0 {
		return skipped("expectedTextContains"), nil
	}

	text := ExtractText(resp)
	haystack := text
	caseSensitive := c.TextMatchCaseSensitive()
	if !caseSensitive {
		haystack = strings.ToLower(text)
	}

	var missing []string
	for _, want := range c.ExpectedTextContains {
		needle := want
		if !caseSensitive {
			needle = strings.ToLower(want)
		}
		if !strings.Contains(haystack, needle) {
			missing = append(missing, want)
		}
	}

	if len(missing) == 0 {
		return model.EvalExpectationResult{
			Pass:    true,
			Details: fmt.Sprintf("all %d expected substrings present", len(c.ExpectedTextContains)),
		}, nil
	}
	return model.EvalExpectationResult{
		Pass: false,
		Details: fmt.Sprintf("missing substrings %q in text: %s",
			missing, truncateString(text, textPreviewLength)),
	}, nil
}

// RegexMatch requires every expected pattern to match the extracted
// text. Patterns are compiled in multiline mode so ^ and $ anchor per
// line. An uncompilable pattern counts as a failed match, flagged as
// invalid, and never surfaces as an error.
func RegexMatch(_ context.Context, _ *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if len(c.ExpectedRegex) == 0 {
		return skipped("expectedRegex"), nil
	}

	text := ExtractText(resp)

	var failed []string
	for _, pattern := range c.ExpectedRegex {
		re, err := regexp.Compile("(?m)" + pattern)
		if err != nil {
			failed = append(failed, fmt.Sprintf("'%s' (invalid pattern: %v)", pattern, err))
			continue
		}
		if !re.MatchString(text) {
			failed = append(failed, fmt.Sprintf("'%s' (no match)", pattern))
		}
	}

	if len(failed) == 0 {
		return model.EvalExpectationResult{
			Pass:    true,
			Details: fmt.Sprintf("all %d patterns matched", len(c.ExpectedRegex)),
		}, nil
	}
	return model.EvalExpectationResult{
		Pass: false,
		Details: fmt.Sprintf("patterns failed: %s; text: %s",
			strings.Join(failed, ", "), truncateString(text, textPreviewLength)),
	}, nil
}

// ErrorExpected checks the protocol-level error flag. A tool call that
// threw at the transport layer never reaches this function; the runner
// short-circuits that case instead.
func ErrorExpected(_ context.Context, _ *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if c.ExpectedError == nil {
		return skipped("expectedError"), nil
	}

	if resp == nil || !resp.IsError {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: "expected an error response but the tool call succeeded",
		}, nil
	}

	if c.ExpectedError.Any {
		return model.EvalExpectationResult{Pass: true, Details: "tool returned an error as expected"}, nil
	}

	text := ExtractText(resp)
	lower := strings.ToLower(text)

	var missing []string
	for _, want := range c.ExpectedError.Contains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			missing = append(missing, want)
		}
	}

	if len(missing) == 0 {
		return model.EvalExpectationResult{
			Pass:    true,
			Details: "error text contains all expected substrings",
		}, nil
	}
	return model.EvalExpectationResult{
		Pass: false,
		Details: fmt.Sprintf("error text missing %q: %s",
			missing, truncateString(text, textPreviewLength)),
	}, nil
}

// JudgeAssessment delegates to the configured judge collaborator. A
// case that requests judging when no judge is wired is a configuration
// failure, not a skip: the operator asked for semantic evaluation and
// must see that it did not happen.
func JudgeAssessment(ctx context.Context, ec *Context, c *model.EvalCase, resp *mcp.CallToolResult) (model.EvalExpectationResult, error) {
	if c.JudgeConfigID == "" {
		return skipped("judgeConfigId"), nil
	}

	if ec == nil || len(ec.Judges) == 0 {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: fmt.Sprintf("case requires judge '%s' but no judge collaborator is configured", c.JudgeConfigID),
		}, nil
	}

	j, ok := ec.Judges[c.JudgeConfigID]
	cfg, cfgOK := ec.JudgeConfigs[c.JudgeConfigID]
	if !ok || !cfgOK || j == nil {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: fmt.Sprintf("judge config '%s' not found in the judge registry", c.JudgeConfigID),
		}, nil
	}

	// The case's own expected value beats the configuration's default
	// reference.
	reference := cfg.Reference
	if c.ExpectedExact != nil {
		if s, isStr := c.ExpectedExact.(string); isStr {
			reference = s
		} else {
			reference = jsonString(c.ExpectedExact)
		}
	}

	verdict, err := j.Evaluate(ctx, ExtractText(resp), reference, cfg.Rubric)
	if err != nil {
		return model.EvalExpectationResult{}, err
	}

	score := verdict.EffectiveScore()
	threshold := cfg.Threshold()
	if score >= threshold {
		return model.EvalExpectationResult{
			Pass:    true,
			Details: fmt.Sprintf("judge score %.2f >= %.2f: %s", score, threshold, verdict.Reasoning),
		}, nil
	}
	return model.EvalExpectationResult{
		Pass:    false,
		Details: fmt.Sprintf("judge score %.2f < %.2f: %s", score, threshold, verdict.Reasoning),
	}, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return trimToRuneBoundary(s, maxLen-3) + "..."
}

// trimToRuneBoundary cuts s to at most max bytes without splitting a
// multi-byte rune.
func trimToRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
