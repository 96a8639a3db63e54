package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opscart/index-maint/pkg/config"
	"github.com/opscart/index-maint/pkg/converter"
	"github.com/opscart/index-maint/pkg/datasource"
	"github.com/opscart/index-maint/pkg/logging"
	"github.com/opscart/index-maint/pkg/metrics"
	"github.com/opscart/index-maint/pkg/models"
	"github.com/opscart/index-maint/pkg/notify"
	"github.com/opscart/index-maint/pkg/output"
	"github.com/opscart/index-maint/pkg/reporter"
	"github.com/opscart/index-maint/pkg/runner"
	"github.com/opscart/index-maint/pkg/storage"
)

var (
	// Run flags
	configPath          string
	scope               string
	database            string
	dialect             string
	reorganizeThreshold float64
	rebuildThreshold    float64
	minPages            int64
	dryRun              bool
	tablesOnly          bool
	noReport            bool
	outputFormat        string
	saveResults         bool
	parallel            int
	verbose             bool

	// History command vars
	historyLimit int

	// Report command vars
	reportFormat string
	reportOutput string

	cfg *config.Config
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "index-maint",
		Short: "Index fragmentation maintenance",
		Long: `Scan databases for fragmented indexes, rebuild or reorganize them
according to the configured thresholds and send a summary report.`,
		PersistentPreRunE: loadConfig,
		Run:               runMaintenance,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml or toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "Output format: text, json, csv")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	runFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&scope, "scope", "", "Target scope: CURRENT, ALL_ELIGIBLE, SPECIFIC")
		cmd.Flags().StringVarP(&database, "database", "d", "", "Target database (implies --scope SPECIFIC)")
		cmd.Flags().StringVar(&dialect, "dialect", "", "Database engine: sqlserver, postgres, mysql")
		cmd.Flags().Float64Var(&reorganizeThreshold, "reorganize-threshold", 0, "Fragmentation percent that triggers REORGANIZE")
		cmd.Flags().Float64Var(&rebuildThreshold, "rebuild-threshold", 0, "Fragmentation percent that triggers REBUILD")
		cmd.Flags().Int64Var(&minPages, "min-pages", 0, "Skip indexes smaller than this many pages")
		cmd.Flags().BoolVar(&tablesOnly, "tables-only", false, "Skip indexed views")
		cmd.Flags().IntVar(&parallel, "parallel", 0, "Targets scanned concurrently")
	}

	runFlags(rootCmd)
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Analyze only, do not run maintenance commands")
	rootCmd.Flags().BoolVar(&noReport, "no-report", false, "Do not send the report")
	rootCmd.Flags().BoolVar(&saveResults, "save", false, "Save run history to the storage database")

	// Plan command
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the maintenance plan without executing it",
		Run:   runPlan,
	}
	runFlags(planCmd)

	// History command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View past maintenance runs",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")

	// Audit command
	auditCmd := &cobra.Command{
		Use:   "audit <run-id>",
		Short: "View the commands of a past run",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit,
	}

	// Report command
	reportCmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the report of a past run",
		Args:  cobra.ExactArgs(1),
		Run:   runReport,
	}
	reportCmd.Flags().StringVar(&reportFormat, "format", "html", "Report format: html, csv, text")
	reportCmd.Flags().StringVar(&reportOutput, "out", "", "Output file (default stdout)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(reportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(runner.ExitFatal)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(runner.ExitFatal)
}

// loadConfig builds the configuration and applies flags that were set
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("scope") {
		cfg.Database.Scope = scope
	}
	if flags.Changed("database") {
		cfg.Database.Name = database
		if !flags.Changed("scope") {
			cfg.Database.Scope = string(models.ScopeSpecific)
		}
	}
	if flags.Changed("dialect") {
		cfg.Database.Dialect = dialect
	}
	if flags.Changed("reorganize-threshold") {
		cfg.Policy.ReorganizeThreshold = reorganizeThreshold
	}
	if flags.Changed("rebuild-threshold") {
		cfg.Policy.RebuildThreshold = rebuildThreshold
	}
	if flags.Changed("min-pages") {
		cfg.Policy.MinPages = minPages
	}
	if flags.Changed("tables-only") && tablesOnly {
		cfg.Policy.IncludeSecondaryObjects = false
	}
	if flags.Changed("parallel") {
		cfg.Collection.Parallelism = parallel
	}
	if flags.Changed("dry-run") && dryRun {
		cfg.Policy.ExecuteActions = false
	}
	if flags.Changed("no-report") && noReport {
		cfg.Report.Send = false
	}
	if flags.Changed("save") {
		cfg.Storage.Enabled = saveResults
	}
	if flags.Changed("output") {
		cfg.OutputFormat = outputFormat
	}
	if verbose {
		cfg.Verbose = true
		cfg.Log.Level = "debug"
	}
	return nil
}

func newLogger() *slog.Logger {
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fatal("%v", err)
	}
	return logger
}

func newHandler(w io.Writer) output.Handler {
	handler, err := output.NewHandler(cfg.OutputFormat, w)
	if err != nil {
		fatal("%v", err)
	}
	return handler
}

func openStore(ctx context.Context) storage.Store {
	store, err := storage.Open(ctx, storage.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		fatal("failed to initialize storage: %v", err)
	}
	return store
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func prometheusURL() string {
	if cfg.Database.MetricsSource == "prometheus" {
		return cfg.Database.PrometheusURL
	}
	return ""
}

func runMaintenance(cmd *cobra.Command, args []string) {
	os.Exit(execute(false))
}

func runPlan(cmd *cobra.Command, args []string) {
	cfg.Policy.ExecuteActions = false
	cfg.Report.Send = false
	cfg.Storage.Enabled = false
	os.Exit(execute(true))
}

// execute performs one run and returns the process exit code
func execute(planOnly bool) int {
	if err := cfg.Validate(); err != nil {
		fatal("%v", err)
	}

	logger := newLogger()
	handler := newHandler(os.Stdout)
	ctx, cancel := signalContext()
	defer cancel()

	textOutput := cfg.OutputFormat == "text"
	if textOutput {
		fmt.Println("[INFO] Index maintenance - Starting run")
		if !cfg.Policy.ExecuteActions {
			fmt.Println("[INFO] Analysis only: maintenance commands will not be executed")
		}
		if cfg.Storage.Enabled {
			fmt.Println("[INFO] Run history will be saved to database")
		}
	}

	sources, err := datasource.Open(datasource.Config{
		Dialect:       cfg.Database.Dialect,
		DSN:           cfg.Database.DSN,
		PrometheusURL: prometheusURL(),
	}, logger)
	if err != nil {
		fatal("%v", err)
	}
	defer sources.Backend.Close()

	if prom, ok := sources.Metrics.(*datasource.PrometheusSource); ok {
		if !prom.IsAvailable(ctx) {
			fatal("Prometheus not reachable at %s", cfg.Database.PrometheusURL)
		}
		if textOutput {
			fmt.Printf("[INFO] Using Prometheus at %s\n", cfg.Database.PrometheusURL)
		}
	}

	deps := runner.Dependencies{
		Discovery: sources.Backend,
		Metrics:   sources.Metrics,
		Executor:  sources.Backend,
		Refresher: sources.Backend,
		Recorder:  metrics.New(),
		Logger:    logger,
	}

	if cfg.Report.Send {
		ch, err := notify.NewChannel(cfg.Report, logger)
		if err != nil {
			fatal("%v", err)
		}
		if closer, ok := ch.(io.Closer); ok {
			defer closer.Close()
		}
		deps.Channel = ch
	}

	if cfg.Storage.Enabled {
		store := openStore(ctx)
		defer store.Close()
		deps.Store = store
	}

	r := runner.New(deps, runner.Options{
		Scope:                cfg.Scope(),
		TargetName:           cfg.Database.Name,
		Policy:               cfg.ToPolicy(),
		Parallelism:          cfg.Collection.Parallelism,
		CollectionTimeout:    cfg.Collection.Timeout.Duration,
		CommandTimeout:       cfg.Execution.CommandTimeout.Duration,
		MaxCommandsPerMinute: cfg.Execution.MaxCommandsPerMinute,
		SendReport:           cfg.Report.Send,
		SubjectPrefix:        cfg.Report.SubjectPrefix,
		PushgatewayURL:       cfg.Metrics.PushgatewayURL,
		MetricsJob:           cfg.Metrics.Job,
		TextfilePath:         cfg.Metrics.TextfilePath,
	})

	outcome, err := r.Run(ctx)
	if err != nil {
		fatal("%v", err)
	}

	if planOnly {
		if err := handler.DisplayPlan(ctx, outcome.Plan.ExecutionOrder()); err != nil {
			fatal("%v", err)
		}
	}
	if err := handler.DisplaySummary(ctx, outcome.Summary); err != nil {
		fatal("%v", err)
	}

	if textOutput {
		if outcome.Result.Cancelled {
			fmt.Println("[WARN] Run cancelled before all commands were executed")
		}
		if outcome.DeliveryErr != nil {
			fmt.Printf("[WARN] %v\n", outcome.DeliveryErr)
		}
	}

	return outcome.ExitCode()
}

func runHistory(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := openStore(ctx)
	defer store.Close()

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		fatal("%v", err)
	}
	if err := newHandler(os.Stdout).DisplayRuns(ctx, runs); err != nil {
		fatal("%v", err)
	}
}

func runAudit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := openStore(ctx)
	defer store.Close()

	entries, err := store.GetRunEntries(ctx, args[0])
	if err != nil {
		fatal("%v", err)
	}
	if err := newHandler(os.Stdout).DisplayAudit(ctx, entries); err != nil {
		fatal("%v", err)
	}
}

func runReport(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	store := openStore(ctx)
	defer store.Close()

	summary, err := store.GetRun(ctx, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		fatal("run %s not found", args[0])
	}
	if err != nil {
		fatal("%v", err)
	}
	entries, err := store.GetRunEntries(ctx, args[0])
	if err != nil {
		fatal("%v", err)
	}

	report := &reporter.Report{Summary: summary, GeneratedAt: summary.FinishedAt}
	for _, entry := range entries {
		report.Entries = append(report.Entries, converter.AuditEntryToRecord(entry))
	}

	var w io.Writer = os.Stdout
	if reportOutput != "" {
		f, err := os.Create(reportOutput)
		if err != nil {
			fatal("%v", err)
		}
		defer f.Close()
		w = f
	}

	if err := reporter.New(reporter.ReportFormat(reportFormat)).Write(report, w); err != nil {
		fatal("%v", err)
	}
	if reportOutput != "" {
		fmt.Printf("[INFO] Report written to %s\n", reportOutput)
	}
}
