package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/life4/genesis/slices"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/scalvert/playwright-mcp-evals/judge"
	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/templates"
)

// ToolCaller is the tool-calling collaborator: a live MCP server (or a
// test double) exposing named operations. CallTool may return an error
// on transport failure; timeout enforcement is the caller's concern,
// the runner waits as long as the collaborator does.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListTools(ctx context.Context) ([]mcp.Tool, error)
}

// RunnerOptions configures one evaluation run.
type RunnerOptions struct {
	Dataset *model.EvalDataset
	Caller  ToolCaller

	// Checks selects which expectation functions run. Nil enables all
	// of them, which is always correct under skip-if-absent.
	Checks []CheckKind

	// Judges holds the judge collaborators and their configurations,
	// keyed by the ids cases reference via judgeConfigId.
	Judges       map[string]judge.Judge
	JudgeConfigs map[string]model.JudgeConfig

	// StopOnFailure terminates the run after the first failing case;
	// the result then only covers the cases processed so far.
	StopOnFailure bool

	// CaseDelay is an optional pause between cases, for servers that
	// need settling time between side-effectful calls.
	CaseDelay time.Duration

	// Variables seeds the template context applied to string args.
	// Case extractors append to it as the run progresses.
	Variables map[string]string

	// OnCaseComplete is awaited after each case. Errors are not
	// swallowed: this is typically a persistence side-effect the
	// caller needs to know failed.
	OnCaseComplete func(ctx context.Context, result *model.EvalCaseResult) error
}

// Runner drives a dataset through a tool server case by case. It holds
// no state between Run calls; concurrent runs against independent
// collaborators are safe.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Run evaluates every case in dataset order. Cases are strictly
// sequential: tool invocations may share server-side state and a
// case's setup may depend on its predecessor's side effects.
func (r *Runner) Run(ctx context.Context, opts RunnerOptions) (*model.EvalRunnerResult, error) {
	if opts.Dataset == nil {
		return nil, fmt.Errorf("runner: dataset is required")
	}
	if opts.Caller == nil {
		return nil, fmt.Errorf("runner: tool caller is required")
	}

	checks := opts.Checks
	if checks == nil {
		checks = AllChecks
	}

	// Run-local variable context so the runner stays stateless.
	vars := make(map[string]string, len(opts.Variables))
	for k, v := range opts.Variables {
		vars[k] = v
	}

	evalCtx := &Context{
		Schemas:      opts.Dataset.Schemas,
		Judges:       opts.Judges,
		JudgeConfigs: opts.JudgeConfigs,
	}

	start := time.Now()
	result := &model.EvalRunnerResult{
		RunID:     uuid.New().String(),
		StartedAt: start,
	}

	logger.Logger.Info("Starting eval run",
		"run_id", result.RunID,
		"dataset", opts.Dataset.Name,
		"cases", len(opts.Dataset.Cases),
		"checks", len(checks),
		"stop_on_failure", opts.StopOnFailure)

	for i := range opts.Dataset.Cases {
		if ctx.Err() != nil {
			logger.Logger.Warn("Run context cancelled, stopping", "run_id", result.RunID, "processed", len(result.CaseResults))
			break
		}
		if i > 0 && opts.CaseDelay > 0 {
			time.Sleep(opts.CaseDelay)
		}

		c := &opts.Dataset.Cases[i]
		caseResult := r.runCase(ctx, evalCtx, checks, opts.Caller, c, vars)
		result.CaseResults = append(result.CaseResults, caseResult)

		if opts.OnCaseComplete != nil {
			if err := opts.OnCaseComplete(ctx, &result.CaseResults[len(result.CaseResults)-1]); err != nil {
				return nil, fmt.Errorf("case completion callback failed for '%s': %w", c.ID, err)
			}
		}

		if opts.StopOnFailure && !caseResult.Pass {
			logger.Logger.Warn("Stopping on first failure", "case", c.ID)
			break
		}
	}

	for i := range result.CaseResults {
		if result.CaseResults[i].Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.CaseResults)
	result.DurationMs = time.Since(start).Milliseconds()

	logger.Logger.Info("Eval run finished",
		"run_id", result.RunID,
		"total", result.Total,
		"passed", result.Passed,
		"failed", result.Failed,
		"duration_ms", result.DurationMs)
	return result, nil
}

func (r *Runner) runCase(ctx context.Context, evalCtx *Context, checks []CheckKind, caller ToolCaller, c *model.EvalCase, vars map[string]string) model.EvalCaseResult {
	caseStart := time.Now()
	caseResult := model.EvalCaseResult{ID: c.ID}

	args := templates.RenderArgs(c.Args, vars)

	logger.Logger.Debug("Invoking tool", "case", c.ID, "tool", c.ToolName)
	resp, err := caller.CallTool(ctx, c.ToolName, args)
	if err != nil {
		// A transport failure is not comparable to content
		// expectations; none of them run for this case.
		caseResult.Error = err.Error()
		caseResult.Pass = false
		caseResult.DurationMs = time.Since(caseStart).Milliseconds()
		logger.Logger.Error("Tool call failed", "case", c.ID, "tool", c.ToolName, "error", err)
		return caseResult
	}
	caseResult.Response = resp

	for _, kind := range AllChecks {
		if !slices.Contains(checks, kind) {
			continue
		}
		res := runGuarded(ctx, kind, evalCtx, c, resp)
		setSlot(&caseResult.Expectations, kind, res)
	}

	caseResult.Pass = caseResult.Expectations.Passed()
	caseResult.DurationMs = time.Since(caseStart).Milliseconds()

	// Extractors run on every response, passing or not, so a failing
	// case can still seed variables for its successors.
	for i := range c.Extractors {
		c.Extractors[i].Extract(ResponseValue(resp), vars)
	}

	logger.Logger.Debug("Case evaluated",
		"case", c.ID,
		"pass", caseResult.Pass,
		"duration_ms", caseResult.DurationMs)
	return caseResult
}

// runGuarded is the per-expectation bulkhead: one buggy or
// misconfigured check becomes a failing result in its own slot and can
// never crash the run or abort sibling checks.
func runGuarded(ctx context.Context, kind CheckKind, evalCtx *Context, c *model.EvalCase, resp *mcp.CallToolResult) (res model.EvalExpectationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.EvalExpectationResult{
				Pass:    false,
				Details: fmt.Sprintf("%s expectation threw error: %v", kind, r),
			}
		}
	}()

	fn := Checks[kind]
	if fn == nil {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: fmt.Sprintf("unknown expectation kind: %s", kind),
		}
	}

	out, err := fn(ctx, evalCtx, c, resp)
	if err != nil {
		return model.EvalExpectationResult{
			Pass:    false,
			Details: fmt.Sprintf("%s expectation threw error: %v", kind, err),
		}
	}
	return out
}

func setSlot(set *model.ExpectationSet, kind CheckKind, res model.EvalExpectationResult) {
	switch kind {
	case CheckExact:
		set.Exact = &res
	case CheckSchema:
		set.Schema = &res
	case CheckJudge:
		set.Judge = &res
	case CheckTextContains:
		set.TextContains = &res
	case CheckRegex:
		set.Regex = &res
	case CheckError:
		set.Error = &res
	}
}
