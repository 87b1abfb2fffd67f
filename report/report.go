// Package report renders eval run results as JSON, Markdown, and a
// console summary, and compares runs against a previous baseline.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/version"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// Summary is the aggregate view over one run.
type Summary struct {
	RunID         string  `json:"runId"`
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	PassRate      float64 `json:"passRate"`
	DurationMs    int64   `json:"durationMs"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// Report bundles a run result with its computed summary and tool
// version for serialization.
type Report struct {
	Version string                  `json:"version"`
	Name    string                  `json:"name,omitempty"`
	Summary Summary                 `json:"summary"`
	Result  *model.EvalRunnerResult `json:"result"`
}

// Build computes the summary view for a finished run.
func Build(name string, result *model.EvalRunnerResult) *Report {
	summary := Summary{
		RunID:      result.RunID,
		Total:      result.Total,
		Passed:     result.Passed,
		Failed:     result.Failed,
		DurationMs: result.DurationMs,
	}
	if result.Total > 0 {
		summary.PassRate = float64(result.Passed) / float64(result.Total) * 100
		summary.AvgDurationMs = float64(result.DurationMs) / float64(result.Total)
	}

	return &Report{
		Version: version.Version,
		Name:    name,
		Summary: summary,
		Result:  result,
	}
}

// WriteJSON serializes the report to a file.
func (r *Report) WriteJSON(path string) error {
	data, err := sonic.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	logger.Logger.Info("JSON report written", "path", path)
	return nil
}

// LoadJSON reads a previously written report, for trend comparison.
func LoadJSON(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var r Report
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report file: %w", err)
	}
	return &r, nil
}

// WriteMarkdown renders the report as a Markdown document.
func (r *Report) WriteMarkdown(path string) error {
	var b strings.Builder

	title := "Eval Report"
	if r.Name != "" {
		title = fmt.Sprintf("Eval Report: %s", r.Name)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Run `%s` started %s.\n\n", r.Result.RunID, r.Result.StartedAt.Format("2006-01-02 15:04:05 MST"))

	fmt.Fprintf(&b, "| Total | Passed | Failed | Pass Rate | Duration |\n")
	fmt.Fprintf(&b, "|------:|-------:|-------:|----------:|---------:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %.1f%% | %dms |\n\n",
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.PassRate, r.Summary.DurationMs)

	fmt.Fprintf(&b, "## Cases\n\n")
	fmt.Fprintf(&b, "| Case | Status | Duration | Details |\n")
	fmt.Fprintf(&b, "|------|--------|---------:|---------|\n")
	for _, cr := range r.Result.CaseResults {
		status := "PASS"
		if !cr.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "| %s | %s | %dms | %s |\n",
			cr.ID, status, cr.DurationMs, markdownEscape(caseDetail(&cr)))
	}
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}

	logger.Logger.Info("Markdown report written", "path", path)
	return nil
}

// caseDetail picks the most informative line for a case row: the
// transport error if there is one, else the first failing expectation.
func caseDetail(cr *model.EvalCaseResult) string {
	if cr.Error != "" {
		return cr.Error
	}
	for _, e := range cr.Expectations.All() {
		if e != nil && !e.Pass {
			return e.Details
		}
	}
	return ""
}

func markdownEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// PrintSummary writes a colored console summary of the run.
func PrintSummary(w io.Writer, r *Report) {
	fmt.Fprintf(w, "\n=== Eval Run Summary ===\n")
	if r.Name != "" {
		fmt.Fprintf(w, "Config:   %s\n", r.Name)
	}
	fmt.Fprintf(w, "Run ID:   %s\n", r.Summary.RunID)
	fmt.Fprintf(w, "Total:    %d\n", r.Summary.Total)
	fmt.Fprintf(w, "Passed:   %s%d%s\n", colorGreen, r.Summary.Passed, colorReset)
	fmt.Fprintf(w, "Failed:   %s%d%s\n", failColor(r.Summary.Failed), r.Summary.Failed, colorReset)
	fmt.Fprintf(w, "Rate:     %s%.1f%%%s\n", rateColor(r.Summary.PassRate), r.Summary.PassRate, colorReset)
	fmt.Fprintf(w, "Duration: %dms\n", r.Summary.DurationMs)

	for _, cr := range r.Result.CaseResults {
		if cr.Pass {
			fmt.Fprintf(w, "  %sPASS%s %s (%dms)\n", colorGreen, colorReset, cr.ID, cr.DurationMs)
			continue
		}
		fmt.Fprintf(w, "  %sFAIL%s %s (%dms)\n", colorRed, colorReset, cr.ID, cr.DurationMs)
		if detail := caseDetail(&cr); detail != "" {
			fmt.Fprintf(w, "       %s\n", detail)
		}
	}
	fmt.Fprintln(w)
}

func rateColor(rate float64) string {
	switch {
	case rate >= 90:
		return colorGreen
	case rate >= 50:
		return colorYellow
	default:
		return colorRed
	}
}

func failColor(failed int) string {
	if failed == 0 {
		return colorGreen
	}
	return colorRed
}

// CaseTrend describes how one case moved between two runs.
type CaseTrend struct {
	ID     string `json:"id"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Comparison is the delta between a baseline run and the current run.
type Comparison struct {
	PassRateBefore float64     `json:"passRateBefore"`
	PassRateAfter  float64     `json:"passRateAfter"`
	Regressions    []CaseTrend `json:"regressions"`
	Improvements   []CaseTrend `json:"improvements"`
	NewCases       []string    `json:"newCases"`
	RemovedCases   []string    `json:"removedCases"`
}

const (
	statusPass    = "pass"
	statusFail    = "fail"
	statusMissing = "absent"
)

// Compare diffs the current run against a previous baseline by case id.
func Compare(previous, current *Report) *Comparison {
	cmp := &Comparison{
		PassRateBefore: previous.Summary.PassRate,
		PassRateAfter:  current.Summary.PassRate,
	}

	before := make(map[string]bool, len(previous.Result.CaseResults))
	for _, cr := range previous.Result.CaseResults {
		before[cr.ID] = cr.Pass
	}

	after := make(map[string]bool, len(current.Result.CaseResults))
	for _, cr := range current.Result.CaseResults {
		after[cr.ID] = cr.Pass

		prevPass, existed := before[cr.ID]
		if !existed {
			cmp.NewCases = append(cmp.NewCases, cr.ID)
			continue
		}
		if prevPass && !cr.Pass {
			cmp.Regressions = append(cmp.Regressions, CaseTrend{ID: cr.ID, Before: statusPass, After: statusFail})
		} else if !prevPass && cr.Pass {
			cmp.Improvements = append(cmp.Improvements, CaseTrend{ID: cr.ID, Before: statusFail, After: statusPass})
		}
	}

	for id := range before {
		if _, ok := after[id]; !ok {
			cmp.RemovedCases = append(cmp.RemovedCases, id)
		}
	}
	sort.Strings(cmp.NewCases)
	sort.Strings(cmp.RemovedCases)

	return cmp
}

// PrintComparison writes the trend delta to the console.
func PrintComparison(w io.Writer, cmp *Comparison) {
	fmt.Fprintf(w, "\n=== Trend vs Baseline ===\n")
	fmt.Fprintf(w, "Pass rate: %.1f%% -> %.1f%%\n", cmp.PassRateBefore, cmp.PassRateAfter)

	for _, t := range cmp.Regressions {
		fmt.Fprintf(w, "  %sREGRESSED%s %s\n", colorRed, colorReset, t.ID)
	}
	for _, t := range cmp.Improvements {
		fmt.Fprintf(w, "  %sIMPROVED%s  %s\n", colorGreen, colorReset, t.ID)
	}
	for _, id := range cmp.NewCases {
		fmt.Fprintf(w, "  NEW       %s\n", id)
	}
	for _, id := range cmp.RemovedCases {
		fmt.Fprintf(w, "  REMOVED   %s\n", id)
	}
	fmt.Fprintln(w)
}
