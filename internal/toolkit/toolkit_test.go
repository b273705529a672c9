package toolkit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sra-fetch/internal/domain"
)

// fakeRunner records invocations and returns injected outcomes.
type fakeRunner struct {
	calls [][]string
	run   func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

var testLocation = domain.ToolkitLocation{
	Prefetch:    "/opt/sra/bin/prefetch",
	FasterqDump: "/opt/sra/bin/fasterq-dump",
}

// TestFetchArchiveArgs checks the prefetch command contract.
func TestFetchArchiveArgs(t *testing.T) {
	runner := &fakeRunner{}
	cli := NewCLIForTests(testLocation, runner)

	log, err := cli.FetchArchive(context.Background(), "SRR1", "/out", "")
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"/opt/sra/bin/prefetch", "SRR1", "-O", "/out", "--max-size", "100G"}, runner.calls[0])
	assert.Equal(t, testLocation.Prefetch, log.Command)
}

// TestConvertToFastqArgs checks the fasterq-dump command contract.
func TestConvertToFastqArgs(t *testing.T) {
	runner := &fakeRunner{}
	cli := NewCLIForTests(testLocation, runner)

	_, err := cli.ConvertToFastq(context.Background(), "SRR1", "/out", 6, true)
	require.NoError(t, err)
	_, err = cli.ConvertToFastq(context.Background(), "SRR2", "/out", 0, false)
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	assert.Equal(t,
		[]string{"/opt/sra/bin/fasterq-dump", "SRR1", "-O", "/out", "-t", "/out", "-e", "6", "--split-files"},
		runner.calls[0])
	assert.Equal(t,
		[]string{"/opt/sra/bin/fasterq-dump", "SRR2", "-O", "/out", "-t", "/out", "-e", "1"},
		runner.calls[1])
}

// TestStepErrorCarriesCommandContext checks failure mapping.
func TestStepErrorCarriesCommandContext(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "no such accession", ExitCode: 3}, errors.New("exit status 3")
		},
	}
	cli := NewCLIForTests(testLocation, runner)

	_, err := cli.FetchArchive(context.Background(), "SRR404", "/out", "10G")
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, domain.StepPrefetch, stepErr.Step)
	assert.Equal(t, 3, stepErr.CommandLog.ExitCode)
	assert.Equal(t, "no such accession", stepErr.CommandLog.Stderr)
	assert.Contains(t, stepErr.Error(), "exit=3")
}

// TestStepErrorUnwrapsContext checks cancellation is detectable.
func TestStepErrorUnwrapsContext(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: -1}, context.Canceled
		},
	}
	cli := NewCLIForTests(testLocation, runner)

	_, err := cli.ConvertToFastq(context.Background(), "SRR1", "/out", 2, false)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestExecRunnerStreamsAndCapturesExitCode runs a real child process.
func TestExecRunnerStreamsAndCapturesExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	var stdout, stderr bytes.Buffer
	runner := &execRunner{stdout: &stdout, stderr: &stderr}

	result, err := runner.Run(context.Background(), "/bin/sh", "-c", "echo out; echo oops >&2; exit 7")
	require.Error(t, err)
	assert.Equal(t, 7, result.ExitCode)
	assert.Equal(t, "out", strings.TrimSpace(stdout.String()))
	assert.Equal(t, "oops", strings.TrimSpace(result.Stderr))
	assert.Equal(t, "oops", strings.TrimSpace(stderr.String()))
}

// TestCLIWithStubScripts drives both steps through stub executables.
func TestCLIWithStubScripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	binDir := t.TempDir()
	outDir := t.TempDir()
	prefetch := writeScript(t, binDir, "prefetch", "#!/bin/sh\nmkdir -p \"$3/$1\"\n")
	fasterq := writeScript(t, binDir, "fasterq-dump", "#!/bin/sh\ntouch \"$3/$1.fastq\"\n")

	cli := NewCLI(domain.ToolkitLocation{Prefetch: prefetch, FasterqDump: fasterq}, nil, nil)
	_, err := cli.FetchArchive(context.Background(), "SRR9", outDir, "1G")
	require.NoError(t, err)
	_, err = cli.ConvertToFastq(context.Background(), "SRR9", outDir, 2, false)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(outDir, "SRR9"))
	assert.FileExists(t, filepath.Join(outDir, "SRR9.fastq"))
}

// TestTailBufferKeepsLastBytes checks the stderr tail bound.
func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := &tailBuffer{max: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "defg", b.String())
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}
