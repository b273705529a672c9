// Package orchestrator runs the per-accession prefetch → fasterq-dump →
// cleanup chain over a fixed-size worker pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sra-fetch/internal/console"
	"sra-fetch/internal/domain"
	"sra-fetch/internal/jobs"
	"sra-fetch/internal/toolkit"
)

// Toolkit is the capability the orchestrator needs from the SRA Toolkit.
type Toolkit interface {
	FetchArchive(ctx context.Context, accession, dir, sizeCap string) (toolkit.CommandLog, error)
	ConvertToFastq(ctx context.Context, accession, dir string, threads int, splitFiles bool) (toolkit.CommandLog, error)
}

// BatchResult is the terminal state of every job in one batch.
type BatchResult struct {
	ID       string                   `json:"id"`
	Jobs     []domain.Job             `json:"jobs"`
	Counts   map[domain.JobStatus]int `json:"counts"`
	Started  time.Time                `json:"started"`
	Finished time.Time                `json:"finished"`
}

// Failed returns the jobs that ended in failure.
func (r BatchResult) Failed() []domain.Job {
	return r.withStatus(domain.JobStatusFailed)
}

// Succeeded returns the jobs that completed both steps.
func (r BatchResult) Succeeded() []domain.Job {
	return r.withStatus(domain.JobStatusDone)
}

// Cancelled returns the jobs stopped or never dispatched because of cancellation.
func (r BatchResult) Cancelled() []domain.Job {
	return r.withStatus(domain.JobStatusCancelled)
}

func (r BatchResult) withStatus(status domain.JobStatus) []domain.Job {
	out := make([]domain.Job, 0)
	for _, job := range r.Jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

// Orchestrator dispatches accessions to a bounded pool of workers.
type Orchestrator struct {
	toolkit   Toolkit
	log       *console.Logger
	events    *jobs.EventBus
	progress  io.Writer
	stat      func(string) (os.FileInfo, error)
	removeAll func(string) error
	now       func() time.Time
}

// New builds an orchestrator. progressOut may be nil to disable the bar.
func New(tk Toolkit, log *console.Logger, events *jobs.EventBus, progressOut io.Writer) *Orchestrator {
	if log == nil {
		log = console.Discard()
	}
	if events == nil {
		events = jobs.NewEventBus(0)
	}
	return &Orchestrator{
		toolkit:   tk,
		log:       log,
		events:    events,
		progress:  progressOut,
		stat:      os.Stat,
		removeAll: os.RemoveAll,
		now:       time.Now,
	}
}

// Events returns the bus the orchestrator publishes to.
func (o *Orchestrator) Events() *jobs.EventBus {
	return o.events
}

// Run executes every accession of cfg and returns once all jobs have
// terminated. Job failures are recorded in the result, never returned; the
// error is non-nil only when ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, cfg domain.RunConfig) (BatchResult, error) {
	result := BatchResult{
		ID:      uuid.NewString(),
		Started: o.now(),
	}

	manager := jobs.NewManager(cfg.Accessions)
	workers := max(1, min(cfg.Parallel, len(cfg.Accessions)))
	bar := newProgress(o.progress, len(cfg.Accessions))

	o.log.Infof("Batch %s: %d accession(s), %d parallel job(s), %d thread(s) each",
		result.ID, len(cfg.Accessions), workers, cfg.Threads)

	locks := accessionLocks(cfg.Accessions)
	queue := make(chan int)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for idx := range queue {
				// Repeats of one accession share <out>/<acc>; run them in turn.
				lock := locks[cfg.Accessions[idx]]
				lock.Lock()
				o.runJob(ctx, cfg, manager, idx)
				lock.Unlock()
				bar.increment()
			}
			return nil
		})
	}

dispatch:
	for idx := range cfg.Accessions {
		select {
		case queue <- idx:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	_ = g.Wait()
	bar.finish()

	if n := manager.CancelQueued(); n > 0 {
		o.log.Warnf("%d job(s) were never started because the batch was cancelled", n)
	}

	result.Jobs = manager.Snapshot()
	result.Counts = manager.Counts()
	result.Finished = o.now()
	return result, ctx.Err()
}

// accessionLocks returns one mutex per distinct accession.
func accessionLocks(accessions []string) map[string]*sync.Mutex {
	locks := make(map[string]*sync.Mutex, len(accessions))
	for _, acc := range accessions {
		if _, ok := locks[acc]; !ok {
			locks[acc] = &sync.Mutex{}
		}
	}
	return locks
}

// runJob executes one accession's fetch, convert and cleanup sequence.
func (o *Orchestrator) runJob(ctx context.Context, cfg domain.RunConfig, manager *jobs.Manager, idx int) {
	job, err := manager.Get(idx)
	if err != nil {
		return
	}
	if ctx.Err() != nil {
		o.transition(manager, job, domain.JobStatusCancelled, "Job cancelled before start")
		return
	}

	jobCtx := ctx
	if cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, cfg.JobTimeout)
		defer cancel()
	}

	step, runErr := o.runSteps(jobCtx, cfg, manager, job)
	o.removeStaging(cfg.OutputDir, job)

	switch {
	case runErr == nil:
		o.transition(manager, job, domain.JobStatusDone, "Job completed")
		o.events.Publish(jobs.Event{
			JobID:     job.ID,
			Accession: job.Accession,
			Type:      jobs.EventTypeResult,
			Status:    domain.JobStatusDone,
			Message:   "FASTQ written to " + cfg.OutputDir,
		})
		o.log.Successf("%s: converted to FASTQ", job.Accession)
	case errors.Is(runErr, context.Canceled) && ctx.Err() != nil:
		o.transition(manager, job, domain.JobStatusCancelled, "Job cancelled during "+string(step))
		o.log.Warnf("%s: cancelled during %s", job.Accession, step)
	default:
		if errors.Is(runErr, context.DeadlineExceeded) {
			runErr = fmt.Errorf("timed out after %s: %w", cfg.JobTimeout, runErr)
		}
		o.fail(manager, job, step, runErr)
	}
}

// runSteps runs prefetch then fasterq-dump and reports the step that failed.
func (o *Orchestrator) runSteps(ctx context.Context, cfg domain.RunConfig, manager *jobs.Manager, job domain.Job) (domain.Step, error) {
	o.transition(manager, job, domain.JobStatusPrefetching, "Fetching archive")
	o.log.Infof("%s: prefetch started", job.Accession)
	fetchLog, err := o.toolkit.FetchArchive(ctx, job.Accession, cfg.OutputDir, cfg.MaxSize)
	o.publishLog(job, domain.StepPrefetch, fetchLog)
	if err != nil {
		return domain.StepPrefetch, err
	}

	o.transition(manager, job, domain.JobStatusConverting, "Converting to FASTQ")
	o.log.Infof("%s: fasterq-dump started (%d threads)", job.Accession, cfg.Threads)
	convertLog, err := o.toolkit.ConvertToFastq(ctx, job.Accession, cfg.OutputDir, cfg.Threads, cfg.SplitFiles)
	o.publishLog(job, domain.StepFasterqDump, convertLog)
	if err != nil {
		return domain.StepFasterqDump, err
	}
	return "", nil
}

// removeStaging deletes <outputDir>/<accession> left by prefetch. Failures
// are logged only.
func (o *Orchestrator) removeStaging(outputDir string, job domain.Job) {
	if !safeDirName(job.Accession) {
		return
	}
	staging := filepath.Join(outputDir, job.Accession)
	info, err := o.stat(staging)
	if err != nil || !info.IsDir() {
		return
	}
	if err := o.removeAll(staging); err != nil {
		o.log.Warnf("%s: could not remove staging directory %s: %v", job.Accession, staging, err)
		return
	}
	o.events.Publish(jobs.Event{
		JobID:     job.ID,
		Accession: job.Accession,
		Type:      jobs.EventTypeLog,
		Message:   "Removed staging directory " + staging,
	})
}

func (o *Orchestrator) transition(manager *jobs.Manager, job domain.Job, status domain.JobStatus, message string) {
	if err := manager.Transition(job.Index, status); err != nil {
		o.log.Warnf("%s: %v", job.Accession, err)
		return
	}
	o.events.Publish(jobs.Event{
		JobID:     job.ID,
		Accession: job.Accession,
		Type:      jobs.EventTypeStatus,
		Status:    status,
		Message:   message,
	})
}

func (o *Orchestrator) fail(manager *jobs.Manager, job domain.Job, step domain.Step, cause error) {
	if err := manager.Fail(job.Index, step, cause); err != nil {
		o.log.Warnf("%s: %v", job.Accession, err)
	}

	event := jobs.Event{
		JobID:     job.ID,
		Accession: job.Accession,
		Type:      jobs.EventTypeError,
		Status:    domain.JobStatusFailed,
		Step:      step,
		Message:   cause.Error(),
	}
	var stepErr *toolkit.StepError
	if errors.As(cause, &stepErr) {
		event.Command = stepErr.CommandLog.Command
		event.Args = stepErr.CommandLog.Args
		event.ExitCode = stepErr.CommandLog.ExitCode
		event.Stderr = stepErr.CommandLog.Stderr
	}
	o.events.Publish(event)
	o.log.Errorf("%s: %s failed: %v", job.Accession, step, cause)
}

func (o *Orchestrator) publishLog(job domain.Job, step domain.Step, log toolkit.CommandLog) {
	if log.Command == "" {
		return
	}
	o.events.Publish(jobs.Event{
		JobID:     job.ID,
		Accession: job.Accession,
		Type:      jobs.EventTypeLog,
		Step:      step,
		Message:   "Command finished",
		Command:   log.Command,
		Args:      log.Args,
		ExitCode:  log.ExitCode,
		Stderr:    log.Stderr,
	})
}

// safeDirName rejects names that would resolve outside the output directory.
func safeDirName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && filepath.IsLocal(name)
}

// NewForTests builds an orchestrator with injectable filesystem hooks.
func NewForTests(
	tk Toolkit,
	events *jobs.EventBus,
	stat func(string) (os.FileInfo, error),
	removeAll func(string) error,
) *Orchestrator {
	o := New(tk, console.Discard(), events, nil)
	if stat != nil {
		o.stat = stat
	}
	if removeAll != nil {
		o.removeAll = removeAll
	}
	return o
}
