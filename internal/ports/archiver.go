package ports

import "fmt"

// Archiver abstracts the pack/unpack codec for testability.
// Production code uses the TarGzArchiver or ZipArchiver adapters; tests use
// MockArchiver.
type Archiver interface {
	// Create packs sourcePaths into an archive at destPath, skipping any
	// entry whose base name matches one of the exclude patterns.
	// Returns the number of files packed.
	Create(destPath string, sourcePaths []string, exclude []string) (fileCount int, err error)

	// Extract unpacks the archive at archivePath into destDir, creating
	// destDir if it does not exist.
	Extract(archivePath, destDir string) error
}

// PackError carries the underlying packer failure for one build attempt.
// Treated as non-fatal by the sync loop: logged, cycle aborted, retried on
// the next interval.
type PackError struct {
	Archive string
	Err     error
}

func (e *PackError) Error() string { return fmt.Sprintf("packing %s: %v", e.Archive, e.Err) }
func (e *PackError) Unwrap() error { return e.Err }

// RestoreError indicates an archive was fetched but could not be unpacked,
// distinct from DownloadError so callers can tell "couldn't fetch" from
// "fetched but corrupt/incompatible".
type RestoreError struct {
	Name string
	Err  error
}

func (e *RestoreError) Error() string { return fmt.Sprintf("restoring %s: %v", e.Name, e.Err) }
func (e *RestoreError) Unwrap() error { return e.Err }
