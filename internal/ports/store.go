package ports

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoArchives is returned when "latest" is requested against an empty
// remote namespace. This is the expected first-run state, not a transport
// failure, and callers treat it as a warning.
var ErrNoArchives = errors.New("no archives found in remote namespace")

// ArchiveStore abstracts the remote artifact repository for testability.
// Production code uses the S3Store or DirStore adapters; tests use MockArchiveStore.
// All remote I/O goes through these four operations.
type ArchiveStore interface {
	// List returns the archive names present in the namespace matching
	// {prefix}*.{extension}. Order is not guaranteed; callers sort.
	List(ctx context.Context, prefix, extension string) ([]string, error)

	// Upload stores the file at localPath under remoteName. Uploading the
	// same name twice overwrites (last write wins).
	Upload(ctx context.Context, localPath, remoteName string) error

	// Download fetches remoteName into destDir and returns the local path.
	Download(ctx context.Context, remoteName, destDir string) (string, error)

	// Delete removes remoteName. Best effort: a failure for one name must
	// not stop the caller from processing remaining names.
	Delete(ctx context.Context, remoteName string) error
}

// UploadError indicates an archive could not be uploaded.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string { return fmt.Sprintf("uploading %s: %v", e.Name, e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

// DownloadError indicates an archive could not be fetched.
type DownloadError struct {
	Name string
	Err  error
}

func (e *DownloadError) Error() string { return fmt.Sprintf("downloading %s: %v", e.Name, e.Err) }
func (e *DownloadError) Unwrap() error { return e.Err }

// DeleteError indicates a remote archive could not be removed.
type DeleteError struct {
	Name string
	Err  error
}

func (e *DeleteError) Error() string { return fmt.Sprintf("deleting %s: %v", e.Name, e.Err) }
func (e *DeleteError) Unwrap() error { return e.Err }
