// Package main provides the srafetch command: a parallel prefetch and
// fasterq-dump driver for SRA accessions, plus toolkit install and checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sra-fetch/internal/bootstrap"
	"sra-fetch/internal/config"
	"sra-fetch/internal/console"
	"sra-fetch/internal/toolkit"
)

var rootCmd = &cobra.Command{
	Use:   "srafetch",
	Short: "Download SRA accessions as FASTQ in parallel",
	Long: "srafetch runs prefetch then fasterq-dump for every accession, several at a time, " +
		"removes the intermediate archives and purges the SRA Toolkit cache afterwards.\n\n" +
		"The input is a single accession, a comma-separated list, or a file with one accession per line.",
	Example: "  srafetch -i SRR000001\n" +
		"  srafetch -i SRR000001,SRR000002 -o reads -p 2\n" +
		"  srafetch -i accessions.txt --keep-cache --report batch.json",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

var (
	downloadInput      string
	downloadOutput     string
	downloadThreads    int
	downloadParallel   int
	downloadBinDir     string
	downloadKeepCache  bool
	downloadSplitFiles bool
	downloadMaxSize    string
	downloadJobTimeout time.Duration
	downloadNoProgress bool
	downloadReport     string
	downloadEvents     string
	downloadStrict     bool
	noColor            bool
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&downloadInput, "input", "i", "", "Accession, comma-separated list, or file of accessions (required)")
	flags.StringVarP(&downloadOutput, "output", "o", config.DefaultOutputDir, "Output directory for FASTQ files")
	flags.IntVarP(&downloadThreads, "threads", "t", 0, "Threads per fasterq-dump job (default: recorded value or half the cores)")
	flags.IntVarP(&downloadParallel, "parallel", "p", 0, "Concurrent jobs (default: cores / threads)")
	flags.StringVar(&downloadBinDir, "bin-dir", "", "Directory containing prefetch and fasterq-dump")
	flags.BoolVar(&downloadKeepCache, "keep-cache", false, "Do not purge the SRA Toolkit cache directories afterwards")
	flags.BoolVar(&downloadSplitFiles, "split-files", true, "Pass --split-files to fasterq-dump")
	flags.StringVar(&downloadMaxSize, "max-size", toolkit.DefaultMaxSize, "Size cap passed to prefetch --max-size")
	flags.DurationVar(&downloadJobTimeout, "job-timeout", 0, "Abort a single accession after this long (0 disables)")
	flags.BoolVar(&downloadNoProgress, "no-progress", false, "Disable the progress bar")
	flags.StringVar(&downloadReport, "report", "", "Write a JSON batch report to this path")
	flags.StringVar(&downloadEvents, "events", "", "Write the job event log as JSON lines to this path")
	flags.BoolVar(&downloadStrict, "strict", false, "Exit non-zero when any accession failed")
	_ = rootCmd.MarkFlagRequired("input")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newApp wires the application for one command invocation.
func newApp() (*bootstrap.App, *console.Logger) {
	log := console.New(os.Stdout, noColor)
	return bootstrap.New(log, os.Stdout, os.Stderr), log
}

func runDownload(cmd *cobra.Command, _ []string) error {
	if err := requirePositive(cmd, "threads", "parallel"); err != nil {
		return fmt.Errorf("%w\n\nRun 'srafetch --help' for usage", err)
	}
	app, log := newApp()

	summary, err := app.Download(cmd.Context(), bootstrap.DownloadOptions{
		Input:      downloadInput,
		OutputDir:  downloadOutput,
		Threads:    downloadThreads,
		Parallel:   downloadParallel,
		BinDir:     downloadBinDir,
		KeepCache:  downloadKeepCache,
		SplitFiles: downloadSplitFiles,
		MaxSize:    downloadMaxSize,
		JobTimeout: downloadJobTimeout,
		NoProgress: downloadNoProgress,
		ReportPath: downloadReport,
		EventsPath: downloadEvents,
	})
	if errors.Is(err, bootstrap.ErrUsage) {
		return fmt.Errorf("%w\n\nRun 'srafetch --help' for usage", err)
	}
	if err != nil {
		return err
	}

	if failed := len(summary.Batch.Failed()); failed > 0 {
		if downloadStrict {
			return fmt.Errorf("%d of %d accession(s) failed", failed, len(summary.Batch.Jobs))
		}
		log.Warnf("%d accession(s) failed; see the messages above", failed)
	} else {
		log.Successf("All %d accession(s) downloaded", len(summary.Batch.Jobs))
	}
	return nil
}

// requirePositive rejects integer flags the operator set explicitly to zero
// or less. Unset flags keep their zero default, which means "pick for me".
func requirePositive(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if !cmd.Flags().Changed(name) {
			continue
		}
		value, err := cmd.Flags().GetInt(name)
		if err != nil {
			return err
		}
		if value <= 0 {
			return fmt.Errorf("%w: --%s must be a positive integer, got %d", bootstrap.ErrUsage, name, value)
		}
	}
	return nil
}
