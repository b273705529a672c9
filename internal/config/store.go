package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"sra-fetch/internal/domain"
)

// Record keys of the key=value file.
const (
	keyInstallDir      = "INSTALL_DIR"
	keyBinDir          = "BIN_DIR"
	keyPrefetchPath    = "PREFETCH_PATH"
	keyFasterqDumpPath = "FASTERQ_DUMP_PATH"
	keyDefaultThreads  = "DEFAULT_THREADS"
	keyInstalledAt     = "INSTALLED_AT"
)

// Store defines persistence operations for the installed-toolkit record.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// FileStore persists the record as a key=value text file.
type FileStore struct {
	path string
}

// NewFileStore creates a key=value backed store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record from disk or returns defaults when missing.
func (s *FileStore) Load() (domain.Settings, error) {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return domain.Settings{}, fmt.Errorf("read config %s: %w", s.path, err)
	}

	cfg := DefaultSettings()
	if v := values[keyInstallDir]; v != "" {
		cfg.InstallDir = v
	}
	if v := values[keyBinDir]; v != "" {
		cfg.BinDir = v
	}
	cfg.PrefetchPath = values[keyPrefetchPath]
	cfg.FasterqDumpPath = values[keyFasterqDumpPath]

	if v := values[keyDefaultThreads]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return domain.Settings{}, fmt.Errorf("config %s: invalid %s %q", s.path, keyDefaultThreads, v)
		}
		cfg.DefaultThreads = n
	}
	if v := values[keyInstalledAt]; v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("config %s: invalid %s %q", s.path, keyInstalledAt, v)
		}
		cfg.InstalledAt = ts
	}

	return cfg, nil
}

// Save overwrites the record and creates parent directories.
func (s *FileStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	values := map[string]string{
		keyInstallDir:      cfg.InstallDir,
		keyBinDir:          cfg.BinDir,
		keyPrefetchPath:    cfg.PrefetchPath,
		keyFasterqDumpPath: cfg.FasterqDumpPath,
		keyDefaultThreads:  strconv.Itoa(cfg.DefaultThreads),
	}
	if !cfg.InstalledAt.IsZero() {
		values[keyInstalledAt] = cfg.InstalledAt.UTC().Format(time.RFC3339)
	}

	return godotenv.Write(values, s.path)
}
