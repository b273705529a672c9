package diagnostics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"sra-fetch/internal/domain"
	"sra-fetch/internal/toolkit"
)

// Target describes what a pre-flight run should verify.
type Target struct {
	BinDir     string
	OutputDir  string
	Record     domain.Settings
	// RecordPath is where Record was read from; empty when not file backed.
	RecordPath string
}

// Checker validates the toolkit binaries and required filesystem paths.
type Checker struct {
	locator    *toolkit.Locator
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	now        func() time.Time
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		locator:    toolkit.NewLocator(),
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		now:        time.Now,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run(target Target) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(toolkit.PrefetchBinary, target.BinDir, target.Record.PrefetchPath),
		c.checkTool(toolkit.FasterqDumpBinary, target.BinDir, target.Record.FasterqDumpPath),
		c.checkRecord(target.Record, target.RecordPath),
		c.checkOutputDir(target.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: c.now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a toolkit executable resolves from the bin dir, the
// record, or PATH.
func (c *Checker) checkTool(name, binDir, recorded string) domain.DiagnosticItem {
	path, err := c.locator.Find(name, binDir, recorded)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: err.Error(),
			Hint:    "Run `srafetch install` or pass --bin-dir pointing at the SRA Toolkit bin directory.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkRecord reports whether an install record exists. A missing record
// only warns because the tools may already be on PATH.
func (c *Checker) checkRecord(record domain.Settings, path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "install_record",
		Name: "Install record",
	}
	source := ""
	if path != "" {
		source = " in " + path
	}

	if !record.Installed() {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No installed toolkit recorded" + source + "."
		item.Hint = "Run `srafetch install` to download the toolkit and record its location."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	if record.InstalledAt.IsZero() {
		item.Message = fmt.Sprintf("Toolkit at %s%s", record.BinDir, source)
	} else {
		item.Message = fmt.Sprintf("Toolkit at %s%s (installed %s)", record.BinDir, source, record.InstalledAt.Format(time.RFC3339))
	}
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Pass -o with a directory where FASTQ files can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for FASTQ output."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		locator:    toolkit.NewLocatorForTests(lookPath),
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		now:        time.Now,
	}
}
