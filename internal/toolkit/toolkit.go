// Package toolkit invokes the SRA Toolkit binaries prefetch and fasterq-dump.
package toolkit

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sra-fetch/internal/domain"
)

// DefaultMaxSize is the prefetch download size cap.
const DefaultMaxSize = "100G"

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr,omitempty"`
}

// StepError is a step-aware error with command context.
type StepError struct {
	Step       domain.Step `json:"step"`
	Accession  string      `json:"accession"`
	CommandLog CommandLog  `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats step failures for logs.
func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s %s: %v", e.Step, e.Accession, e.Err)
	}

	return fmt.Sprintf(
		"%s %s failed (cmd=%s exit=%d): %v",
		e.Step,
		e.Accession,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
		e.Err,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CLI runs the toolkit binaries as child processes.
type CLI struct {
	location domain.ToolkitLocation
	runner   commandRunner
}

// NewCLI builds a toolkit whose children write to stdout and stderr.
func NewCLI(location domain.ToolkitLocation, stdout, stderr io.Writer) *CLI {
	return &CLI{
		location: location,
		runner:   &execRunner{stdout: stdout, stderr: stderr},
	}
}

// NewCLIForTests builds a toolkit with an injectable runner.
func NewCLIForTests(location domain.ToolkitLocation, runner commandRunner) *CLI {
	return &CLI{location: location, runner: runner}
}

// FetchArchive downloads the raw archive for accession into dir/<accession>.
func (c *CLI) FetchArchive(ctx context.Context, accession, dir, sizeCap string) (CommandLog, error) {
	if strings.TrimSpace(sizeCap) == "" {
		sizeCap = DefaultMaxSize
	}
	args := BuildPrefetchArgs(accession, dir, sizeCap)
	return c.run(ctx, domain.StepPrefetch, accession, c.location.Prefetch, args)
}

// ConvertToFastq converts a fetched accession into .fastq files inside dir.
func (c *CLI) ConvertToFastq(ctx context.Context, accession, dir string, threads int, splitFiles bool) (CommandLog, error) {
	args := BuildFasterqDumpArgs(accession, dir, threads, splitFiles)
	return c.run(ctx, domain.StepFasterqDump, accession, c.location.FasterqDump, args)
}

func (c *CLI) run(ctx context.Context, step domain.Step, accession, command string, args []string) (CommandLog, error) {
	result, err := c.runner.Run(ctx, command, args...)
	log := CommandLog{
		Command:  command,
		Args:     args,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
	if err != nil {
		return log, &StepError{
			Step:       step,
			Accession:  accession,
			CommandLog: log,
			Err:        err,
		}
	}
	return log, nil
}

// BuildPrefetchArgs builds `prefetch <acc> -O <dir> --max-size <cap>`.
func BuildPrefetchArgs(accession, dir, sizeCap string) []string {
	return []string{
		accession,
		"-O", dir,
		"--max-size", sizeCap,
	}
}

// BuildFasterqDumpArgs builds `fasterq-dump <acc> -O <dir> -t <dir> -e <n>`,
// optionally followed by --split-files.
func BuildFasterqDumpArgs(accession, dir string, threads int, splitFiles bool) []string {
	if threads < 1 {
		threads = 1
	}
	args := []string{
		accession,
		"-O", dir,
		"-t", dir,
		"-e", strconv.Itoa(threads),
	}
	if splitFiles {
		args = append(args, "--split-files")
	}
	return args
}
