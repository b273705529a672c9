package domain

import "time"

// JobStatus tracks each pipeline stage for a single accession job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusPrefetching JobStatus = "prefetching"
	JobStatusConverting  JobStatus = "converting"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Step names one external tool invocation inside a job.
type Step string

const (
	StepPrefetch    Step = "prefetch"
	StepFasterqDump Step = "fasterq-dump"
)

// Settings is the persisted installed-toolkit record.
type Settings struct {
	InstallDir      string    `json:"installDir"`
	BinDir          string    `json:"binDir"`
	PrefetchPath    string    `json:"prefetchPath"`
	FasterqDumpPath string    `json:"fasterqDumpPath"`
	DefaultThreads  int       `json:"defaultThreads"`
	InstalledAt     time.Time `json:"installedAt"`
}

// Installed reports whether the record names both toolkit binaries.
func (s Settings) Installed() bool {
	return s.PrefetchPath != "" && s.FasterqDumpPath != ""
}

// ToolkitLocation holds resolved paths to the two required executables.
type ToolkitLocation struct {
	Prefetch    string `json:"prefetch"`
	FasterqDump string `json:"fasterqDump"`
}

// RunConfig is the resolved, read-only configuration of one batch.
type RunConfig struct {
	Accessions []string        `json:"accessions" validate:"required,min=1,dive,required"`
	OutputDir  string          `json:"outputDir" validate:"required"`
	Threads    int             `json:"threads" validate:"min=1"`
	Parallel   int             `json:"parallel" validate:"min=1"`
	MaxSize    string          `json:"maxSize" validate:"required"`
	SplitFiles bool            `json:"splitFiles"`
	KeepCache  bool            `json:"keepCache"`
	JobTimeout time.Duration   `json:"jobTimeout"`
	Toolkit    ToolkitLocation `json:"toolkit"`
}

// Job stores one accession's identity and lifecycle status.
type Job struct {
	ID         string    `json:"id"`
	Index      int       `json:"index"`
	Accession  string    `json:"accession"`
	Status     JobStatus `json:"status"`
	FailedStep Step      `json:"failedStep,omitempty"`
	Error      string    `json:"error,omitempty"`
}
