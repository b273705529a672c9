package config

import (
	"os"
	"path/filepath"

	"sra-fetch/internal/domain"
)

// DefaultOutputDir is used when no output directory is given.
const DefaultOutputDir = "fastq_output"

// EnvConfigPath overrides the record location.
const EnvConfigPath = "SRAFETCH_CONFIG"

// HomeDir returns the user's home or "." when it cannot be resolved.
func HomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return homeDir
}

// AppDir is the per-user state directory.
func AppDir() string {
	return filepath.Join(HomeDir(), ".sra-fetch")
}

// DefaultPath returns the record path, honouring SRAFETCH_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(AppDir(), "config")
}

// DefaultSettings returns the record used before any install.
func DefaultSettings() domain.Settings {
	installDir := filepath.Join(AppDir(), "toolkit")
	return domain.Settings{
		InstallDir: installDir,
		BinDir:     filepath.Join(installDir, "bin"),
	}
}
