package installer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// profilePath picks the startup file of the user's login shell.
func profilePath(home, shell string) string {
	switch filepath.Base(strings.TrimSpace(shell)) {
	case "zsh":
		return filepath.Join(home, ".zshrc")
	case "bash":
		return filepath.Join(home, ".bashrc")
	default:
		return filepath.Join(home, ".profile")
	}
}

func exportLine(binDir string) string {
	return fmt.Sprintf("export PATH=\"%s:$PATH\"", binDir)
}

// ensureProfileExport appends a PATH export for binDir to the profile at
// path unless an identical line is already present.
func ensureProfileExport(path, binDir string) (bool, error) {
	line := exportLine(binDir)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read profile %s: %w", path, err)
	}
	for _, existing := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(existing) == line {
			return false, nil
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open profile %s: %w", path, err)
	}

	prefix := ""
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		prefix = "\n"
	}
	_, writeErr := fmt.Fprintf(f, "%s\n# SRA Toolkit (srafetch)\n%s\n", prefix, line)
	closeErr := f.Close()
	if writeErr != nil {
		return false, fmt.Errorf("write profile %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
