package installer

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/schollz/progressbar/v3"
)

const (
	toolkitBaseURL      = "https://ftp-trace.ncbi.nlm.nih.gov/sra/sdk/current/"
	downloadToolTimeout = 30 * time.Minute
)

// TarballURL returns the current toolkit release archive for a platform.
func TarballURL(goos, goarch string) (string, error) {
	var name string
	switch {
	case goos == "linux" && goarch == "amd64":
		name = "sratoolkit.current-ubuntu64.tar.gz"
	case goos == "darwin" && goarch == "amd64":
		name = "sratoolkit.current-mac64.tar.gz"
	case goos == "darwin" && goarch == "arm64":
		name = "sratoolkit.current-mac-arm64.tar.gz"
	default:
		return "", fmt.Errorf("no prebuilt SRA Toolkit archive for %s/%s; use --method package", goos, goarch)
	}
	return toolkitBaseURL + name, nil
}

// download streams sourceURL into destinationPath through a temporary
// file, drawing a byte progress bar on progressOut when it is set.
func (i *Installer) download(ctx context.Context, destinationPath string, sourceURL string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("prepare destination directory: %w", err)
	}

	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, downloadToolTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "sra-fetch")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	var dst io.Writer = file
	var bar *progressbar.ProgressBar
	if i.progressOut != nil {
		bar = progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(i.progressOut),
			progressbar.OptionSetDescription("sratoolkit"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(250*time.Millisecond),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		dst = io.MultiWriter(file, bar)
	}

	_, copyErr := io.Copy(dst, resp.Body)
	closeErr := file.Close()
	if bar != nil {
		_ = bar.Finish()
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}
	return nil
}

// extractTarGz unpacks a gzip-compressed tarball into extractDir. Entries
// and symlink targets escaping extractDir are rejected.
func extractTarGz(archivePath string, extractDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		cleanName := filepath.Clean(header.Name)
		if cleanName == "." || cleanName == "" {
			continue
		}
		targetPath := filepath.Join(extractDir, cleanName)
		if !isWithinBaseDir(extractDir, targetPath) {
			return fmt.Errorf("archive contains invalid path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeTarFile(tr, targetPath, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) ||
				!isWithinBaseDir(extractDir, filepath.Join(filepath.Dir(targetPath), header.Linkname)) {
				return fmt.Errorf("archive contains invalid link: %s -> %s", header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return err
			}
			_ = os.Remove(targetPath)
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return err
			}
		}
	}
}

func writeTarFile(src io.Reader, targetPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// findToolkitBin locates the extracted directory holding both binaries,
// normally <root>/sratoolkit.<version>-<platform>/bin.
func findToolkitBin(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Name() != "bin" || path == filepath.Join(root, "bin") {
			return nil
		}
		if isFile(filepath.Join(path, "prefetch")) && isFile(filepath.Join(path, "fasterq-dump")) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("extracted archive under %s has no bin directory with prefetch and fasterq-dump", root)
	}
	return found, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isWithinBaseDir(baseDir string, targetPath string) bool {
	baseClean := filepath.Clean(baseDir)
	targetClean := filepath.Clean(targetPath)
	relative, err := filepath.Rel(baseClean, targetClean)
	if err != nil {
		return false
	}
	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)))
}
