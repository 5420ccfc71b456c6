// Package targz provides an archiver adapter producing gzip-compressed tarballs.
package targz

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// TarGzArchiver implements ports.Archiver using archive/tar and compress/gzip.
type TarGzArchiver struct{}

// New creates a new TarGzArchiver adapter.
func New() *TarGzArchiver {
	return &TarGzArchiver{}
}

// shouldExclude checks if a path should be excluded based on patterns.
func shouldExclude(path string, excludePatterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range excludePatterns {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Create creates a tar.gz archive at destPath containing every source path.
// Each source is stored under its base name so extraction reproduces the
// original layout relative to the destination directory.
func (a *TarGzArchiver) Create(destPath string, sourcePaths []string, exclude []string) (int, error) {
	outFile, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}

	gz := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gz)
	fileCount := 0

	var walkErr error
	for _, src := range sourcePaths {
		n, err := addPath(tw, src, exclude)
		fileCount += n
		if err != nil {
			walkErr = err
			break
		}
	}

	// Close writers innermost-first to flush data
	if closeErr := tw.Close(); closeErr != nil {
		_ = gz.Close()
		_ = outFile.Close()
		return 0, fmt.Errorf("closing tar writer: %w", closeErr)
	}
	if closeErr := gz.Close(); closeErr != nil {
		_ = outFile.Close()
		return 0, fmt.Errorf("closing gzip writer: %w", closeErr)
	}
	if closeErr := outFile.Close(); closeErr != nil {
		return 0, fmt.Errorf("closing archive file: %w", closeErr)
	}

	return fileCount, walkErr
}

// addPath writes one source path (file or directory tree) into the tarball.
func addPath(tw *tar.Writer, src string, exclude []string) (int, error) {
	fileCount := 0
	baseName := filepath.Base(src)

	walkErr := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files with errors
		}

		if shouldExclude(path, exclude) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return nil
		}

		archivePath := filepath.Join(baseName, relPath)

		if info.IsDir() {
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return nil
			}
			hdr.Name = filepath.ToSlash(archivePath) + "/"
			_ = tw.WriteHeader(hdr)
			return nil
		}

		// Regular files only; symlinks and devices are not archived.
		if !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil
		}
		hdr.Name = filepath.ToSlash(archivePath)

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", archivePath, err)
		}

		file, err := os.Open(path)
		if err != nil {
			return nil
		}

		_, copyErr := io.Copy(tw, file)
		_ = file.Close() // Explicitly ignore close error - data already copied

		if copyErr != nil {
			return fmt.Errorf("writing %s: %w", archivePath, copyErr)
		}

		fileCount++
		return nil
	})

	return fileCount, walkErr
}

// Extract unpacks a tar.gz archive into destDir, creating it if absent.
func (a *TarGzArchiver) Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	absDestDir, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination path: %w", err)
	}
	absDestDir = filepath.Clean(absDestDir)

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		fpath := filepath.Join(destDir, hdr.Name)

		// SECURITY: Check for path traversal
		if !isWithinDir(absDestDir, fpath) {
			return fmt.Errorf("invalid file path (path traversal detected): %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", fpath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
				return fmt.Errorf("creating parent directory for %s: %w", fpath, err)
			}
			if err := extractFile(tr, fpath, hdr); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		default:
			// SECURITY: Skip symlinks and special files
			continue
		}
	}

	return nil
}

// MaxDecompressSize is the maximum allowed uncompressed file size (10GB).
// This prevents decompression bomb attacks (G110).
const MaxDecompressSize = 10 * 1024 * 1024 * 1024 // 10GB

// extractFile extracts a single regular file from the tar stream.
func extractFile(tr *tar.Reader, destPath string, hdr *tar.Header) error {
	if hdr.Size > MaxDecompressSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", hdr.Size, MaxDecompressSize)
	}

	outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode())
	if err != nil {
		return err
	}
	defer func() { _ = outFile.Close() }()

	// LimitReader guards against a stream that lies about entry sizes.
	limitedReader := io.LimitReader(tr, MaxDecompressSize+1)
	written, err := io.Copy(outFile, limitedReader)
	if err != nil {
		return err
	}
	if written > MaxDecompressSize {
		return fmt.Errorf("decompressed size exceeds limit")
	}

	return nil
}

// isWithinDir checks if the target path is within the base directory.
func isWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	return strings.HasPrefix(absTarget, absBaseDir+string(filepath.Separator)) ||
		absTarget == absBaseDir
}

// Compile-time check that TarGzArchiver implements ports.Archiver.
var _ ports.Archiver = (*TarGzArchiver)(nil)
