// Package engine wires the harness together: it loads the YAML
// configuration, connects the MCP server, initialises judges, and
// drives each dataset through the eval runner.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scalvert/playwright-mcp-evals/dataset"
	"github.com/scalvert/playwright-mcp-evals/eval"
	"github.com/scalvert/playwright-mcp-evals/judge"
	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
	"github.com/scalvert/playwright-mcp-evals/report"
	"github.com/scalvert/playwright-mcp-evals/server"
)

// RunOptions are the CLI-level knobs layered on top of the YAML config.
type RunOptions struct {
	ConfigPath string

	// DatasetPaths overrides the config's dataset list when non-empty.
	DatasetPaths []string

	// OutputPath receives the JSON report. Empty skips the file.
	OutputPath string

	// ReportType selects an extra rendering: "markdown" or "".
	ReportType string

	// BaselinePath is a previous JSON report to diff against.
	BaselinePath string

	// StopOnFailure forces stop-on-failure regardless of the config.
	StopOnFailure bool
}

// LoadConfig parses and validates the harness configuration.
func LoadConfig(path string) (*model.EvalConfig, error) {
	cfg, err := model.ParseEvalConfig(path)
	if err != nil {
		return nil, err
	}

	if cfg.Server.Name == "" {
		return nil, fmt.Errorf("config %s: server.name is required", path)
	}

	seen := make(map[string]bool, len(cfg.Judges))
	for _, jc := range cfg.Judges {
		if jc.ID == "" {
			return nil, fmt.Errorf("config %s: judge with empty id", path)
		}
		if seen[jc.ID] {
			return nil, fmt.Errorf("config %s: duplicate judge id '%s'", path, jc.ID)
		}
		seen[jc.ID] = true
	}

	return cfg, nil
}

// InitJudges creates one judge collaborator per configuration. The
// returned maps share keys and feed the runner directly.
func InitJudges(ctx context.Context, configs []model.JudgeConfig) (map[string]judge.Judge, map[string]model.JudgeConfig, error) {
	if len(configs) == 0 {
		return nil, nil, nil
	}

	judges := make(map[string]judge.Judge, len(configs))
	judgeConfigs := make(map[string]model.JudgeConfig, len(configs))

	for _, jc := range configs {
		j, err := judge.NewLLMJudge(ctx, jc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise judge '%s': %w", jc.ID, err)
		}
		judges[jc.ID] = j
		judgeConfigs[jc.ID] = jc
		logger.Logger.Info("Judge initialised",
			"judge_id", jc.ID,
			"provider", jc.Provider,
			"model", jc.Model,
		)
	}

	return judges, judgeConfigs, nil
}

// InitServer connects the MCP server and applies the tool timeout.
func InitServer(ctx context.Context, cfg *model.EvalConfig) (*server.MCPServer, error) {
	srv, err := server.NewMCPServer(ctx, cfg.Server)
	if err != nil {
		return nil, err
	}

	if cfg.Settings.ToolTimeout != "" {
		d, err := time.ParseDuration(cfg.Settings.ToolTimeout)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("invalid tool_timeout '%s': %w", cfg.Settings.ToolTimeout, err)
		}
		srv.SetToolTimeout(d)
	}

	return srv, nil
}

// Run executes the full harness flow and returns one report per
// dataset. The error is non-nil only for infrastructure failures; a
// run with failing cases still returns normally.
func Run(ctx context.Context, opts RunOptions) ([]*report.Report, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	datasetPaths := cfg.Datasets
	if len(opts.DatasetPaths) > 0 {
		datasetPaths = opts.DatasetPaths
	}
	if len(datasetPaths) == 0 {
		return nil, fmt.Errorf("config %s: at least one dataset is required", opts.ConfigPath)
	}

	srv, err := InitServer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	if hasCheck(cfg.Settings.Checks, "conformance") {
		if err := runConformance(ctx, srv); err != nil {
			return nil, err
		}
	}

	judges, judgeConfigs, err := InitJudges(ctx, cfg.Judges)
	if err != nil {
		return nil, err
	}

	var caseDelay time.Duration
	if cfg.Settings.CaseDelay != "" {
		caseDelay, err = time.ParseDuration(cfg.Settings.CaseDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid case_delay '%s': %w", cfg.Settings.CaseDelay, err)
		}
	}

	stopOnFailure := cfg.Settings.StopOnFailure || opts.StopOnFailure
	runner := eval.NewRunner()

	var reports []*report.Report
	for _, path := range datasetPaths {
		ds, err := dataset.LoadFile(path, dataset.Options{})
		if err != nil {
			return reports, fmt.Errorf("failed to load dataset %s: %w", path, err)
		}

		result, err := runner.Run(ctx, eval.RunnerOptions{
			Dataset:       ds,
			Caller:        srv,
			Checks:        selectedChecks(cfg.Settings.Checks),
			Judges:        judges,
			JudgeConfigs:  judgeConfigs,
			StopOnFailure: stopOnFailure,
			CaseDelay:     caseDelay,
			Variables:     cfg.Variables,
		})
		if err != nil {
			return reports, fmt.Errorf("run failed for dataset %s: %w", path, err)
		}

		rep := report.Build(reportName(cfg.Name, ds.Name), result)
		reports = append(reports, rep)
		report.PrintSummary(os.Stdout, rep)

		if err := writeOutputs(rep, opts, path, len(datasetPaths) > 1); err != nil {
			return reports, err
		}
	}

	if err := compareBaseline(os.Stdout, opts.BaselinePath, reports); err != nil {
		return reports, err
	}

	return reports, nil
}

// compareBaseline diffs a previous report against this run's single
// report. Multi-dataset runs produce several reports with no way to
// tell which one the baseline belongs to, so the comparison is skipped
// with a warning rather than silently.
func compareBaseline(w io.Writer, baselinePath string, reports []*report.Report) error {
	if baselinePath == "" {
		return nil
	}
	if len(reports) != 1 {
		logger.Logger.Warn("Baseline comparison needs exactly one report, skipping",
			"baseline", baselinePath,
			"reports", len(reports))
		return nil
	}

	baseline, err := report.LoadJSON(baselinePath)
	if err != nil {
		return err
	}
	report.PrintComparison(w, report.Compare(baseline, reports[0]))
	return nil
}

func runConformance(ctx context.Context, srv *server.MCPServer) error {
	results, err := eval.CheckConformance(ctx, srv)
	if err != nil {
		return fmt.Errorf("conformance check failed: %w", err)
	}
	for _, res := range results {
		if res.Pass {
			logger.Logger.Info("Conformance check passed", "check", res.Name, "details", res.Details)
		} else {
			logger.Logger.Warn("Conformance check failed", "check", res.Name, "details", res.Details)
		}
	}
	return nil
}

// selectedChecks maps the settings list to expectation kinds. An empty
// list, or one that only names non-expectation checks such as
// "conformance", enables every expectation.
func selectedChecks(names []string) []eval.CheckKind {
	var kinds []eval.CheckKind
	for _, n := range names {
		kind := eval.CheckKind(n)
		if _, ok := eval.Checks[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func hasCheck(names []string, want string) bool {
	for _, n := range names {
		if strings.EqualFold(n, want) {
			return true
		}
	}
	return false
}

func reportName(configName, datasetName string) string {
	if configName == "" {
		return datasetName
	}
	if datasetName == "" || configName == datasetName {
		return configName
	}
	return fmt.Sprintf("%s / %s", configName, datasetName)
}

// writeOutputs persists the JSON and optional Markdown renderings. With
// multiple datasets the dataset file's stem is appended to the output
// name so reports do not overwrite each other.
func writeOutputs(rep *report.Report, opts RunOptions, datasetPath string, multi bool) error {
	if opts.OutputPath == "" {
		return nil
	}

	jsonPath := opts.OutputPath
	if multi {
		jsonPath = suffixPath(jsonPath, datasetStem(datasetPath))
	}
	if err := rep.WriteJSON(jsonPath); err != nil {
		return err
	}

	if strings.EqualFold(opts.ReportType, "markdown") {
		mdPath := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".md"
		if err := rep.WriteMarkdown(mdPath); err != nil {
			return err
		}
	}
	return nil
}

func datasetStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func suffixPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%s%s", strings.TrimSuffix(path, ext), suffix, ext)
}
