package toolkit

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"sra-fetch/internal/domain"
)

// Binary names of the two required toolkit executables.
const (
	PrefetchBinary    = "prefetch"
	FasterqDumpBinary = "fasterq-dump"
)

// ErrToolNotFound is returned when a required binary cannot be resolved.
var ErrToolNotFound = errors.New("toolkit binary not found")

// Locator resolves ToolkitLocation once per run.
type Locator struct {
	lookPath func(string) (string, error)
}

// NewLocator builds a locator backed by exec.LookPath.
func NewLocator() *Locator {
	return &Locator{lookPath: exec.LookPath}
}

// NewLocatorForTests builds a locator with an injectable lookup.
func NewLocatorForTests(lookPath func(string) (string, error)) *Locator {
	return &Locator{lookPath: lookPath}
}

// Locate resolves both binaries, searching binDir first, then the paths in
// the installed record, then PATH.
func (l *Locator) Locate(binDir string, record domain.Settings) (domain.ToolkitLocation, error) {
	prefetch, prefetchErr := l.Find(PrefetchBinary, binDir, record.PrefetchPath)
	fasterq, fasterqErr := l.Find(FasterqDumpBinary, binDir, record.FasterqDumpPath)
	if err := errors.Join(prefetchErr, fasterqErr); err != nil {
		return domain.ToolkitLocation{}, err
	}
	return domain.ToolkitLocation{Prefetch: prefetch, FasterqDump: fasterq}, nil
}

// Find returns the first executable candidate for name.
func (l *Locator) Find(name, binDir, recorded string) (string, error) {
	candidates := make([]string, 0, 3)
	if dir := strings.TrimSpace(binDir); dir != "" {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	if recorded = strings.TrimSpace(recorded); recorded != "" {
		candidates = append(candidates, recorded)
	}
	candidates = append(candidates, name)

	for _, candidate := range candidates {
		path, err := l.lookPath(candidate)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrToolNotFound, name, strings.Join(candidates, ", "))
}
