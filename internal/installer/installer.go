// Package installer downloads the SRA Toolkit, links its binaries into a
// managed bin directory, and records the install.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"sra-fetch/internal/config"
	"sra-fetch/internal/console"
	"sra-fetch/internal/domain"
	"sra-fetch/internal/planner"
	"sra-fetch/internal/toolkit"
)

// Method selects how the toolkit is obtained.
type Method string

const (
	MethodArchive Method = "archive"
	MethodPackage Method = "package"
)

// ParseMethod validates a user-supplied method name.
func ParseMethod(value string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(value))) {
	case "", MethodArchive:
		return MethodArchive, nil
	case MethodPackage:
		return MethodPackage, nil
	default:
		return "", fmt.Errorf("unknown install method %q (want archive or package)", value)
	}
}

// Options controls one install.
type Options struct {
	InstallDir     string
	Method         Method
	NoProfile      bool
	Force          bool
	DefaultThreads int
	// URL overrides the platform archive location, e.g. for a mirror.
	URL string
}

// Result describes what an install did.
type Result struct {
	Settings       domain.Settings
	Skipped        bool
	ProfilePath    string
	ProfileUpdated bool
}

// Installer performs toolkit installs against injectable OS dependencies.
type Installer struct {
	store       config.Store
	log         *console.Logger
	client      *http.Client
	lookPath    func(string) (string, error)
	run         func(context.Context, string, ...string) error
	progressOut io.Writer
	goos        string
	goarch      string
	home        string
	shell       string
	now         func() time.Time
}

// New builds an installer for the current host.
func New(store config.Store, log *console.Logger, progressOut io.Writer) *Installer {
	return &Installer{
		store:       store,
		log:         log,
		client:      &http.Client{},
		lookPath:    exec.LookPath,
		run:         runCommand,
		progressOut: progressOut,
		goos:        goruntime.GOOS,
		goarch:      goruntime.GOARCH,
		home:        config.HomeDir(),
		shell:       os.Getenv("SHELL"),
		now:         time.Now,
	}
}

// NewForTests creates an installer with injectable dependencies.
func NewForTests(
	store config.Store,
	client *http.Client,
	lookPath func(string) (string, error),
	run func(context.Context, string, ...string) error,
	goos string,
	home string,
	shell string,
) *Installer {
	return &Installer{
		store:    store,
		log:      console.Discard(),
		client:   client,
		lookPath: lookPath,
		run:      run,
		goos:     goos,
		goarch:   "amd64",
		home:     home,
		shell:    shell,
		now:      time.Now,
	}
}

// Install obtains the toolkit, links prefetch and fasterq-dump into
// <installDir>/bin, saves the record and updates the shell profile. An
// existing working install is kept unless Force is set.
func (i *Installer) Install(ctx context.Context, opts Options) (Result, error) {
	record, err := i.store.Load()
	if err != nil {
		return Result{}, fmt.Errorf("load config: %w", err)
	}

	if !opts.Force && record.Installed() {
		locator := toolkit.NewLocatorForTests(i.lookPath)
		if _, err := locator.Locate(record.BinDir, record); err == nil {
			i.log.Infof("SRA Toolkit already installed in %s (use --force to reinstall)", record.BinDir)
			return Result{Settings: record, Skipped: true}, nil
		}
		i.log.Warnf("Recorded toolkit is no longer usable, reinstalling")
	}

	installDir := strings.TrimSpace(opts.InstallDir)
	if installDir == "" {
		installDir = config.DefaultSettings().InstallDir
	}
	if abs, err := filepath.Abs(installDir); err == nil {
		installDir = abs
	}
	binDir := filepath.Join(installDir, "bin")

	method := opts.Method
	if method == "" {
		method = MethodArchive
	}

	var sourceBin string
	switch method {
	case MethodArchive:
		sourceBin, err = i.installFromArchive(ctx, installDir, opts.URL)
	case MethodPackage:
		sourceBin, err = i.installFromPackageManager(ctx)
	default:
		return Result{}, fmt.Errorf("unknown install method %q", method)
	}
	if err != nil {
		return Result{}, err
	}

	for _, name := range []string{toolkit.PrefetchBinary, toolkit.FasterqDumpBinary} {
		if err := linkBinary(filepath.Join(sourceBin, name), filepath.Join(binDir, name)); err != nil {
			return Result{}, err
		}
	}

	threads := opts.DefaultThreads
	if threads <= 0 {
		threads = planner.Compute(0, 0, planner.DetectCores()).Threads
	}

	settings := domain.Settings{
		InstallDir:      installDir,
		BinDir:          binDir,
		PrefetchPath:    filepath.Join(binDir, toolkit.PrefetchBinary),
		FasterqDumpPath: filepath.Join(binDir, toolkit.FasterqDumpBinary),
		DefaultThreads:  threads,
		InstalledAt:     i.now().UTC(),
	}
	if err := i.store.Save(settings); err != nil {
		return Result{}, fmt.Errorf("save config: %w", err)
	}
	i.log.Successf("SRA Toolkit installed to %s", binDir)

	result := Result{Settings: settings}
	if opts.NoProfile {
		return result, nil
	}

	result.ProfilePath = profilePath(i.home, i.shell)
	result.ProfileUpdated, err = ensureProfileExport(result.ProfilePath, binDir)
	if err != nil {
		// Profile edits are best effort.
		i.log.Warnf("Could not update %s: %v", result.ProfilePath, err)
		return result, nil
	}
	if result.ProfileUpdated {
		i.log.Infof("Added %s to PATH in %s", binDir, result.ProfilePath)
	}
	return result, nil
}

func (i *Installer) installFromArchive(ctx context.Context, installDir, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		var err error
		url, err = TarballURL(i.goos, i.goarch)
		if err != nil {
			return "", err
		}
	}

	archivePath := filepath.Join(installDir, "sratoolkit.tar.gz")
	i.log.Infof("Downloading %s", url)
	if err := i.download(ctx, archivePath, url); err != nil {
		return "", fmt.Errorf("download toolkit: %w", err)
	}
	defer os.Remove(archivePath)

	i.log.Infof("Extracting into %s", installDir)
	if err := extractTarGz(archivePath, installDir); err != nil {
		return "", fmt.Errorf("extract toolkit: %w", err)
	}
	return findToolkitBin(installDir)
}

func (i *Installer) installFromPackageManager(ctx context.Context) (string, error) {
	if err := i.runFirstSuccessfulInstall(ctx, packageOptions(i.goos)); err != nil {
		return "", fmt.Errorf("install sra-tools: %w", err)
	}

	prefetch, err := i.lookPath(toolkit.PrefetchBinary)
	if err != nil {
		return "", fmt.Errorf("verify prefetch on PATH: %w", err)
	}
	dir := filepath.Dir(prefetch)
	if !isFile(filepath.Join(dir, toolkit.FasterqDumpBinary)) {
		return "", fmt.Errorf("fasterq-dump not found next to %s", prefetch)
	}
	return dir, nil
}

// linkBinary points dst at src, replacing any previous link.
func linkBinary(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create bin directory: %w", err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old link %s: %w", dst, err)
	}
	if err := os.Symlink(src, dst); err != nil {
		return fmt.Errorf("link %s: %w", dst, err)
	}
	return nil
}
