package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/scalvert/playwright-mcp-evals/engine"
	"github.com/scalvert/playwright-mcp-evals/generator"
	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/version"
)

const (
	AppName = "mcp-evals"
)

func main() {
	configPath := flag.String("f", "", "Path to the eval configuration file (YAML)")
	datasetPaths := flag.String("d", "", "Comma-separated dataset files (overrides the config's list)")
	outputPath := flag.String("o", "", "Path to the output JSON report file")
	logPath := flag.String("l", "", "Path to the log file (if not set, logs to stdout)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	showVersion := flag.Bool("v", false, "Show version and exit")
	reportType := flag.String("reportType", "json", "Report type: json or markdown")
	baselinePath := flag.String("baseline", "", "Previous JSON report to compare against")
	stopOnFailure := flag.Bool("stop-on-failure", false, "Stop the run after the first failing case")
	scaffold := flag.Bool("g", false, "Scaffold a draft dataset from the server's tool listing and exit")
	scaffoldOut := flag.String("scaffold-out", "dataset.draft.json", "Output file for the scaffolded dataset")
	seed := flag.Uint64("seed", 0, "Seed for scaffolded argument values")
	probe := flag.Bool("probe", false, "During scaffolding, call each tool once and suggest expectations from the response")

	flag.Parse()

	fmt.Printf("Version: %s\nCommit: %s\nBuildDate: %s\n",
		version.Version, version.Commit, version.BuildDate)
	if *showVersion {
		return
	}

	logWriter, logFile, err := logger.SetupLogWriter(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.SetupLogger(logWriter, *verbose)

	if *configPath == "" {
		fmt.Fprintf(os.Stderr, "Error: -f <config-file> is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := validateReportType(*reportType); err != nil {
		logger.Logger.Error("Invalid report type", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Logger.Info("Starting application",
		"app", AppName,
		"config", *configPath,
		"output", *outputPath,
		"logfile", *logPath,
		"verbose", *verbose)

	if *scaffold {
		runScaffold(ctx, *configPath, *scaffoldOut, *seed, *probe)
		return
	}

	opts := engine.RunOptions{
		ConfigPath:    *configPath,
		OutputPath:    *outputPath,
		ReportType:    *reportType,
		BaselinePath:  *baselinePath,
		StopOnFailure: *stopOnFailure,
	}
	if *datasetPaths != "" {
		opts.DatasetPaths = splitPaths(*datasetPaths)
	}

	reports, err := engine.Run(ctx, opts)
	if err != nil {
		logger.Logger.Error("Run failed", "error", err)
		os.Exit(1)
	}

	for _, rep := range reports {
		if rep.Summary.Failed > 0 {
			os.Exit(1)
		}
	}
}

func runScaffold(ctx context.Context, configPath, outPath string, seed uint64, probe bool) {
	cfg, err := engine.LoadConfig(configPath)
	if err != nil {
		logger.Logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	srv, err := engine.InitServer(ctx, cfg)
	if err != nil {
		logger.Logger.Error("Failed to initialise server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	err = generator.ScaffoldToFile(ctx, srv, generator.Options{
		DatasetName: cfg.Name,
		Seed:        seed,
		Probe:       probe,
	}, outPath)
	if err != nil {
		logger.Logger.Error("Scaffolding failed", "error", err)
		os.Exit(1)
	}
}

func validateReportType(t string) error {
	switch strings.ToLower(t) {
	case "json", "markdown":
		return nil
	}
	return fmt.Errorf("unsupported report type '%s' (expected: json or markdown)", t)
}

func splitPaths(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
