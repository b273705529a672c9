package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sra-fetch/internal/domain"
	"sra-fetch/internal/jobs"
	"sra-fetch/internal/toolkit"
)

// fakeToolkit mimics prefetch/fasterq-dump side effects on disk.
type fakeToolkit struct {
	mu        sync.Mutex
	order     []string
	failFetch map[string]bool
	failDump  map[string]bool
	delay     time.Duration
	active    atomic.Int32
	peak      atomic.Int32
	fetch     func(ctx context.Context, accession string) error
}

func (f *fakeToolkit) FetchArchive(ctx context.Context, accession, dir, sizeCap string) (toolkit.CommandLog, error) {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, accession)
	f.mu.Unlock()

	log := toolkit.CommandLog{Command: "prefetch", Args: toolkit.BuildPrefetchArgs(accession, dir, sizeCap)}
	if err := os.MkdirAll(filepath.Join(dir, accession), 0o755); err != nil {
		return log, err
	}
	if err := os.WriteFile(filepath.Join(dir, accession, accession+".sra"), []byte("sra"), 0o644); err != nil {
		return log, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fetch != nil {
		if err := f.fetch(ctx, accession); err != nil {
			return log, &toolkit.StepError{Step: domain.StepPrefetch, Accession: accession, CommandLog: log, Err: err}
		}
	}
	if f.failFetch[accession] {
		log.ExitCode = 1
		return log, &toolkit.StepError{Step: domain.StepPrefetch, Accession: accession, CommandLog: log, Err: errors.New("exit status 1")}
	}
	return log, nil
}

func (f *fakeToolkit) ConvertToFastq(ctx context.Context, accession, dir string, threads int, splitFiles bool) (toolkit.CommandLog, error) {
	log := toolkit.CommandLog{Command: "fasterq-dump", Args: toolkit.BuildFasterqDumpArgs(accession, dir, threads, splitFiles)}
	if f.failDump[accession] {
		_ = os.WriteFile(filepath.Join(dir, accession+".fastq"), []byte("@partial"), 0o644)
		log.ExitCode = 2
		return log, &toolkit.StepError{Step: domain.StepFasterqDump, Accession: accession, CommandLog: log, Err: errors.New("exit status 2")}
	}
	return log, os.WriteFile(filepath.Join(dir, accession+".fastq"), []byte("@read\nACGT\n+\nIIII\n"), 0o644)
}

func runConfig(dir string, parallel int, accessions ...string) domain.RunConfig {
	return domain.RunConfig{
		Accessions: accessions,
		OutputDir:  dir,
		Threads:    2,
		Parallel:   parallel,
		MaxSize:    toolkit.DefaultMaxSize,
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRun_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{}
	o := NewForTests(tk, nil, nil, nil)

	result, err := o.Run(context.Background(), runConfig(dir, 2, "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []string{"A.fastq", "B.fastq"}, dirEntries(t, dir))
	assert.Len(t, result.Succeeded(), 2)
	assert.Equal(t, map[domain.JobStatus]int{domain.JobStatusDone: 2}, result.Counts)
	assert.Empty(t, result.Failed())
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.Finished.Before(result.Started))
}

func TestRun_PrefetchFailureDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{failFetch: map[string]bool{"A": true}}
	bus := jobs.NewEventBus(100)
	o := NewForTests(tk, bus, nil, nil)

	result, err := o.Run(context.Background(), runConfig(dir, 2, "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []string{"B.fastq"}, dirEntries(t, dir))
	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "A", failed[0].Accession)
	assert.Equal(t, domain.StepPrefetch, failed[0].FailedStep)

	var sawError bool
	for _, ev := range bus.Since(0) {
		if ev.Type == jobs.EventTypeError && ev.Accession == "A" {
			sawError = true
			assert.Equal(t, "prefetch", ev.Command)
			assert.Equal(t, 1, ev.ExitCode)
		}
	}
	assert.True(t, sawError, "expected an error event for A")
}

func TestRun_ConvertFailureLeavesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{failDump: map[string]bool{"A": true}}
	o := NewForTests(tk, nil, nil, nil)

	result, err := o.Run(context.Background(), runConfig(dir, 1, "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []string{"A.fastq", "B.fastq"}, dirEntries(t, dir))
	require.Len(t, result.Failed(), 1)
	assert.Equal(t, domain.StepFasterqDump, result.Failed()[0].FailedStep)
}

func TestRun_DispatchesInInputOrder(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{}
	o := NewForTests(tk, nil, nil, nil)

	_, err := o.Run(context.Background(), runConfig(dir, 1, "C", "A", "B", "A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B", "A"}, tk.order)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{delay: 20 * time.Millisecond}
	o := NewForTests(tk, nil, nil, nil)

	_, err := o.Run(context.Background(), runConfig(dir, 3, "A", "B", "C", "D", "E", "F", "G"))
	require.NoError(t, err)

	assert.LessOrEqual(t, tk.peak.Load(), int32(3))
	assert.Len(t, dirEntries(t, dir), 7)
}

func TestRun_StagingRemovalFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{}
	o := NewForTests(tk, nil, nil, func(string) error { return errors.New("permission denied") })

	result, err := o.Run(context.Background(), runConfig(dir, 1, "A"))
	require.NoError(t, err)
	assert.Len(t, result.Succeeded(), 1)
	assert.Equal(t, []string{"A", "A.fastq"}, dirEntries(t, dir))
}

func TestRun_RerunOverExistingOutput(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{}
	o := NewForTests(tk, nil, nil, nil)

	for i := 0; i < 2; i++ {
		result, err := o.Run(context.Background(), runConfig(dir, 2, "A", "B"))
		require.NoError(t, err)
		assert.Len(t, result.Succeeded(), 2)
	}
	assert.Equal(t, []string{"A", "B", "A", "B"}, tk.order)
	assert.Equal(t, []string{"A.fastq", "B.fastq"}, dirEntries(t, dir))
}

func TestRun_JobTimeoutFailsOnlyThatJob(t *testing.T) {
	dir := t.TempDir()
	tk := &fakeToolkit{
		fetch: func(ctx context.Context, accession string) error {
			if accession != "SLOW" {
				return nil
			}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	o := NewForTests(tk, nil, nil, nil)

	cfg := runConfig(dir, 2, "SLOW", "FAST")
	cfg.JobTimeout = 50 * time.Millisecond
	result, err := o.Run(context.Background(), cfg)
	require.NoError(t, err)

	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "SLOW", failed[0].Accession)
	assert.Contains(t, failed[0].Error, "timed out")
	assert.Equal(t, []string{"FAST.fastq"}, dirEntries(t, dir))
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tk := &fakeToolkit{
		fetch: func(jobCtx context.Context, accession string) error {
			if accession == "A" {
				cancel()
				<-jobCtx.Done()
				return jobCtx.Err()
			}
			return nil
		},
	}
	o := NewForTests(tk, nil, nil, nil)

	result, err := o.Run(ctx, runConfig(dir, 1, "A", "B", "C"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, result.Cancelled(), 3)
	assert.Empty(t, dirEntries(t, dir), "staging dir of the cancelled job must be removed")
}

// sharedStagingToolkit fails fasterq-dump when the staging directory written
// by its own prefetch has disappeared, and records overlap per accession.
type sharedStagingToolkit struct {
	mu       sync.Mutex
	inFlight map[string]int
	peak     map[string]int
}

func (s *sharedStagingToolkit) FetchArchive(_ context.Context, accession, dir, _ string) (toolkit.CommandLog, error) {
	s.mu.Lock()
	s.inFlight[accession]++
	s.peak[accession] = max(s.peak[accession], s.inFlight[accession])
	s.mu.Unlock()

	log := toolkit.CommandLog{Command: "prefetch"}
	if err := os.MkdirAll(filepath.Join(dir, accession), 0o755); err != nil {
		return log, err
	}
	return log, os.WriteFile(filepath.Join(dir, accession, accession+".sra"), []byte("sra"), 0o644)
}

func (s *sharedStagingToolkit) ConvertToFastq(_ context.Context, accession, dir string, _ int, _ bool) (toolkit.CommandLog, error) {
	defer func() {
		s.mu.Lock()
		s.inFlight[accession]--
		s.mu.Unlock()
	}()

	log := toolkit.CommandLog{Command: "fasterq-dump"}
	time.Sleep(15 * time.Millisecond)
	if _, err := os.Stat(filepath.Join(dir, accession, accession+".sra")); err != nil {
		return log, &toolkit.StepError{Step: domain.StepFasterqDump, Accession: accession, CommandLog: log, Err: err}
	}
	return log, os.WriteFile(filepath.Join(dir, accession+".fastq"), []byte("@read\nACGT\n+\nIIII\n"), 0o644)
}

func TestRun_DuplicateAccessionsRunOneAtATime(t *testing.T) {
	dir := t.TempDir()
	tk := &sharedStagingToolkit{inFlight: map[string]int{}, peak: map[string]int{}}
	o := NewForTests(tk, nil, nil, nil)

	result, err := o.Run(context.Background(), runConfig(dir, 3, "A", "B", "A", "C", "A"))
	require.NoError(t, err)

	assert.Empty(t, result.Failed())
	assert.Len(t, result.Succeeded(), 5)
	assert.Equal(t, 1, tk.peak["A"])
	assert.Equal(t, []string{"A.fastq", "B.fastq", "C.fastq"}, dirEntries(t, dir))
}

func TestAccessionLocks(t *testing.T) {
	locks := accessionLocks([]string{"A", "B", "A"})
	assert.Len(t, locks, 2)
	assert.NotSame(t, locks["A"], locks["B"])
}

func TestSafeDirName(t *testing.T) {
	assert.True(t, safeDirName("SRR1"))
	assert.False(t, safeDirName(""))
	assert.False(t, safeDirName("."))
	assert.False(t, safeDirName(".."))
	assert.False(t, safeDirName("a/b"))
}
