package main

import (
	"github.com/spf13/cobra"

	"sra-fetch/internal/installer"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the SRA Toolkit and record its location",
	Long: "Download the NCBI SRA Toolkit (or install it with a package manager), link prefetch and " +
		"fasterq-dump into <install-dir>/bin, record the paths for later runs and add the bin " +
		"directory to PATH in your shell profile.",
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var (
	installDir       string
	installMethod    string
	installNoProfile bool
	installForce     bool
	installThreads   int
	installURL       string
)

func init() {
	installCmd.Flags().StringVar(&installDir, "install-dir", "", "Toolkit install directory (default ~/.sra-fetch/toolkit)")
	installCmd.Flags().StringVar(&installMethod, "method", string(installer.MethodArchive), "Install method: archive or package")
	installCmd.Flags().BoolVar(&installNoProfile, "no-profile", false, "Do not modify the shell profile")
	installCmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if a working toolkit is recorded")
	installCmd.Flags().IntVar(&installThreads, "default-threads", 0, "Thread count to record as the default (0 computes from cores)")
	installCmd.Flags().StringVar(&installURL, "url", "", "Toolkit archive URL (default: current NCBI release for this platform)")

	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	if err := requirePositive(cmd, "default-threads"); err != nil {
		return err
	}
	method, err := installer.ParseMethod(installMethod)
	if err != nil {
		return err
	}

	app, log := newApp()
	result, err := app.Install(cmd.Context(), installer.Options{
		InstallDir:     installDir,
		Method:         method,
		NoProfile:      installNoProfile,
		Force:          installForce,
		DefaultThreads: installThreads,
		URL:            installURL,
	})
	if err != nil {
		return err
	}

	if result.ProfileUpdated {
		log.Infof("Open a new shell or run: source %s", result.ProfilePath)
	}
	return nil
}
