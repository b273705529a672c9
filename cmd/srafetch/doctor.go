package main

import (
	"github.com/spf13/cobra"

	"sra-fetch/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the toolkit and output directory are usable",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var (
	doctorBinDir string
	doctorOutput string
)

func init() {
	doctorCmd.Flags().StringVar(&doctorBinDir, "bin-dir", "", "Directory containing prefetch and fasterq-dump")
	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", config.DefaultOutputDir, "Output directory to check")

	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	app, _ := newApp()
	_, err := app.Doctor(doctorBinDir, doctorOutput)
	return err
}
