package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/go-playground/validator/v10"

	"sra-fetch/internal/accession"
	"sra-fetch/internal/config"
	"sra-fetch/internal/console"
	"sra-fetch/internal/diagnostics"
	"sra-fetch/internal/domain"
	"sra-fetch/internal/housekeeping"
	"sra-fetch/internal/installer"
	"sra-fetch/internal/jobs"
	"sra-fetch/internal/orchestrator"
	"sra-fetch/internal/planner"
	"sra-fetch/internal/toolkit"
)

// ErrUsage marks errors caused by invalid operator input.
var ErrUsage = errors.New("usage error")

// ErrPreflight marks environment problems detected before any job runs.
var ErrPreflight = errors.New("pre-flight check failed")

// App wires configuration, diagnostics, the toolkit and the orchestrator.
type App struct {
	Store config.Store

	recordPath  string
	log         *console.Logger
	checker     *diagnostics.Checker
	locator     *toolkit.Locator
	installer   *installer.Installer
	newToolkit  func(domain.ToolkitLocation) orchestrator.Toolkit
	detectCores func() int
	progressOut io.Writer
	home        string
	validate    *validator.Validate
}

// DownloadOptions are the operator's choices for one batch. Zero Threads or
// Parallel means "pick for me"; negative values are usage errors.
type DownloadOptions struct {
	Input      string
	OutputDir  string
	Threads    int
	Parallel   int
	BinDir     string
	KeepCache  bool
	SplitFiles bool
	MaxSize    string
	JobTimeout time.Duration
	NoProgress bool
	ReportPath string
	EventsPath string
}

// Summary is what a finished batch produced.
type Summary struct {
	Batch   orchestrator.BatchResult  `json:"batch"`
	Config  domain.RunConfig          `json:"config"`
	Outputs []housekeeping.OutputFile `json:"outputs"`
	Purged  []string                  `json:"purgedCaches,omitempty"`
}

// New builds the application around the persisted record at the default
// location. Child process output goes to stdout/stderr.
func New(log *console.Logger, stdout, stderr io.Writer) *App {
	store := config.NewFileStore(config.DefaultPath())
	return &App{
		Store:      store,
		recordPath: recordPath(store),
		log:        log,
		checker:    diagnostics.NewChecker(),
		locator:    toolkit.NewLocator(),
		installer:  installer.New(store, log, stderr),
		newToolkit: func(loc domain.ToolkitLocation) orchestrator.Toolkit {
			return toolkit.NewCLI(loc, stdout, stderr)
		},
		detectCores: planner.DetectCores,
		progressOut: stderr,
		home:        config.HomeDir(),
		validate:    validator.New(),
	}
}

// NewForTests builds an App with injectable collaborators.
func NewForTests(
	store config.Store,
	lookPath func(string) (string, error),
	tk orchestrator.Toolkit,
	cores int,
	home string,
) *App {
	return &App{
		Store:      store,
		recordPath: recordPath(store),
		log:        console.Discard(),
		checker:    diagnostics.NewCheckerForTests(lookPath, os.MkdirAll, os.CreateTemp, os.Remove),
		locator:    toolkit.NewLocatorForTests(lookPath),
		newToolkit: func(domain.ToolkitLocation) orchestrator.Toolkit {
			return tk
		},
		detectCores: func() int { return cores },
		home:        home,
		validate:    validator.New(),
	}
}

// Download parses the input, runs pre-flight checks, executes the batch and
// performs housekeeping. Per-job failures are reported in the Summary; the
// error is reserved for usage, pre-flight and cancellation problems.
func (a *App) Download(ctx context.Context, opts DownloadOptions) (Summary, error) {
	accessions, err := accession.Parse(opts.Input)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	seen := make(map[string]bool, len(accessions))
	for _, acc := range accessions {
		if !accession.LooksLikeRun(acc) {
			a.log.Warnf("%q does not look like an SRR/ERR/DRR run accession; passing it through", acc)
		}
		if seen[acc] {
			a.log.Warnf("%s is listed more than once; repeats run one after another", acc)
		}
		seen[acc] = true
	}

	maxSize := strings.TrimSpace(opts.MaxSize)
	if maxSize == "" {
		maxSize = toolkit.DefaultMaxSize
	}
	if _, err := bytefmt.ToBytes(maxSize); err != nil {
		return Summary{}, fmt.Errorf("%w: invalid --max-size %q: %w", ErrUsage, maxSize, err)
	}
	if opts.Threads < 0 {
		return Summary{}, fmt.Errorf("%w: --threads must be positive, got %d", ErrUsage, opts.Threads)
	}
	if opts.Parallel < 0 {
		return Summary{}, fmt.Errorf("%w: --parallel must be positive, got %d", ErrUsage, opts.Parallel)
	}
	if opts.JobTimeout < 0 {
		return Summary{}, fmt.Errorf("%w: --job-timeout must not be negative", ErrUsage)
	}

	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		outputDir = config.DefaultOutputDir
	}

	record, err := a.Store.Load()
	if err != nil {
		a.log.Warnf("Ignoring unreadable install record: %v", err)
		record = config.DefaultSettings()
	}

	report := a.checker.Run(a.target(opts.BinDir, outputDir, record))
	if report.HasFailures {
		a.logReport(report, false)
		return Summary{}, fmt.Errorf("%w: %s", ErrPreflight, failureMessages(report))
	}
	if err := housekeeping.EnsureOutputDir(outputDir); err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrPreflight, err)
	}

	location, err := a.locator.Locate(opts.BinDir, record)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrPreflight, err)
	}
	a.log.Infof("Using prefetch at %s", location.Prefetch)
	a.log.Infof("Using fasterq-dump at %s", location.FasterqDump)

	requestedThreads := opts.Threads
	if requestedThreads <= 0 && record.DefaultThreads > 0 {
		requestedThreads = record.DefaultThreads
	}
	plan := planner.Compute(requestedThreads, opts.Parallel, a.detectCores())

	cfg := domain.RunConfig{
		Accessions: accessions,
		OutputDir:  outputDir,
		Threads:    plan.Threads,
		Parallel:   plan.Parallel,
		MaxSize:    maxSize,
		SplitFiles: opts.SplitFiles,
		KeepCache:  opts.KeepCache,
		JobTimeout: opts.JobTimeout,
		Toolkit:    location,
	}
	if err := a.validate.Struct(cfg); err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	var progressOut io.Writer
	if !opts.NoProgress {
		progressOut = a.progressOut
	}
	orch := orchestrator.New(a.newToolkit(location), a.log, jobs.NewEventBus(eventCapacity(len(accessions))), progressOut)
	batch, runErr := orch.Run(ctx, cfg)

	summary := Summary{Batch: batch, Config: cfg}
	a.logBatch(batch, orch.Events())

	if cfg.KeepCache {
		a.log.Infof("Keeping toolkit cache directories")
	} else {
		purged, err := housekeeping.PurgeCaches(a.home)
		summary.Purged = purged
		for _, dir := range purged {
			a.log.Infof("Removed cache %s", dir)
		}
		if err != nil {
			a.log.Warnf("Cache cleanup incomplete: %v", err)
		}
	}

	outputs, err := housekeeping.ListFastq(outputDir)
	if err != nil {
		a.log.Warnf("Could not list output directory: %v", err)
	}
	summary.Outputs = outputs
	a.logOutputs(outputDir, outputs)

	if opts.ReportPath != "" {
		if err := writeReport(opts.ReportPath, summary); err != nil {
			a.log.Warnf("Could not write report: %v", err)
		} else {
			a.log.Infof("Report written to %s", opts.ReportPath)
		}
	}
	if opts.EventsPath != "" {
		if err := writeEvents(opts.EventsPath, orch.Events()); err != nil {
			a.log.Warnf("Could not write event log: %v", err)
		}
	}

	return summary, runErr
}

// Install delegates to the toolkit installer.
func (a *App) Install(ctx context.Context, opts installer.Options) (installer.Result, error) {
	if a.installer == nil {
		return installer.Result{}, errors.New("installer is not configured")
	}
	return a.installer.Install(ctx, opts)
}

// Doctor runs the pre-flight checks without starting a batch and prints
// every result.
func (a *App) Doctor(binDir, outputDir string) (domain.DiagnosticReport, error) {
	record, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = config.DefaultOutputDir
	}

	report := a.checker.Run(a.target(binDir, outputDir, record))
	a.logReport(report, true)
	if report.HasFailures {
		return report, ErrPreflight
	}
	return report, nil
}

// recordPath names the file behind store, if any.
func recordPath(store config.Store) string {
	if fs, ok := store.(interface{ Path() string }); ok {
		return fs.Path()
	}
	return ""
}

func (a *App) target(binDir, outputDir string, record domain.Settings) diagnostics.Target {
	return diagnostics.Target{BinDir: binDir, OutputDir: outputDir, Record: record, RecordPath: a.recordPath}
}

func (a *App) logReport(report domain.DiagnosticReport, all bool) {
	for _, item := range report.Items {
		switch item.Status {
		case domain.DiagnosticStatusPass:
			if all {
				a.log.Successf("%s: %s", item.Name, item.Message)
			}
		case domain.DiagnosticStatusWarn:
			a.log.Warnf("%s: %s", item.Name, item.Message)
		default:
			a.log.Errorf("%s: %s", item.Name, item.Message)
		}
		if item.Hint != "" && (all || item.Status == domain.DiagnosticStatusFail) {
			a.log.Infof("  hint: %s", item.Hint)
		}
	}
}

func (a *App) logBatch(batch orchestrator.BatchResult, events *jobs.EventBus) {
	a.log.Infof("Batch %s finished in %s: %d done, %d failed, %d cancelled",
		batch.ID, batch.Finished.Sub(batch.Started).Round(time.Second),
		batch.Counts[domain.JobStatusDone], batch.Counts[domain.JobStatusFailed], batch.Counts[domain.JobStatusCancelled])
	for _, job := range batch.Failed() {
		a.log.Errorf("%s failed at %s: %s", job.Accession, job.FailedStep, job.Error)
		if tail := lastStderr(events.ForJob(job.ID)); tail != "" {
			a.log.Errorf("  %s", tail)
		}
	}
	if n := events.Dropped(); n > 0 {
		a.log.Warnf("Event log kept the last entries only; %d older event(s) dropped", n)
	}
}

// lastStderr returns the final stderr line recorded for a failed command.
func lastStderr(events []jobs.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != jobs.EventTypeError || events[i].Stderr == "" {
			continue
		}
		lines := strings.Split(strings.TrimSpace(events[i].Stderr), "\n")
		return lines[len(lines)-1]
	}
	return ""
}

func (a *App) logOutputs(outputDir string, outputs []housekeeping.OutputFile) {
	if len(outputs) == 0 {
		a.log.Warnf("No FASTQ files found in %s", outputDir)
		return
	}
	a.log.Successf("%d FASTQ file(s) in %s (%s total)",
		len(outputs), outputDir, bytefmt.ByteSize(uint64(housekeeping.TotalSize(outputs))))
	for _, f := range outputs {
		a.log.Infof("  %s  %s", f.HumanSize(), f.Name)
	}
}

func failureMessages(report domain.DiagnosticReport) string {
	parts := make([]string, 0, len(report.Items))
	for _, item := range report.Items {
		if item.Status == domain.DiagnosticStatusFail {
			parts = append(parts, item.Message)
		}
	}
	return strings.Join(parts, "; ")
}

// eventCapacity keeps every event of a batch: a handful per job.
func eventCapacity(jobCount int) int {
	return max(500, jobCount*8)
}
