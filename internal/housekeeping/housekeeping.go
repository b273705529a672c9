// Package housekeeping prepares the output directory, purges the toolkit's
// global caches, and lists produced FASTQ files.
package housekeeping

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// CacheDirs returns the toolkit's well-known global cache directories under home.
func CacheDirs(home string) []string {
	return []string{
		filepath.Join(home, "ncbi", "public", "sra"),
		filepath.Join(home, ".ncbi", "public", "sra"),
	}
}

// EnsureOutputDir creates dir if needed and verifies it is a directory.
func EnsureOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", dir)
	}
	return nil
}

// PurgeCaches removes each existing cache directory under home and returns
// the ones it removed. Missing directories are skipped silently.
func PurgeCaches(home string) ([]string, error) {
	removed := make([]string, 0, 2)
	var errs []error
	for _, dir := range CacheDirs(home) {
		info, err := os.Stat(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.IsDir() {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("remove cache %s: %w", dir, err))
			continue
		}
		removed = append(removed, dir)
	}
	return removed, errors.Join(errs...)
}

// OutputFile is one produced FASTQ file.
type OutputFile struct {
	Name string
	Path string
	Size int64
}

// HumanSize renders the size as e.g. "1.5G".
func (f OutputFile) HumanSize() string {
	return bytefmt.ByteSize(uint64(f.Size))
}

// ListFastq returns the *.fastq files directly inside dir, sorted by name.
func ListFastq(dir string) ([]OutputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory %s: %w", dir, err)
	}

	out := make([]OutputFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".fastq" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, OutputFile{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TotalSize sums file sizes.
func TotalSize(files []OutputFile) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
