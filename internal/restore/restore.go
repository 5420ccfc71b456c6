// Package restore resolves symbolic restore targets and unpacks archives.
package restore

import (
	"context"
	"fmt"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// Latest is the symbolic target resolving to the lexicographically greatest
// archive name, interpreted as the most recently created.
const Latest = "latest"

// Service resolves and restores archives with injected dependencies.
type Service struct {
	store    ports.ArchiveStore
	archiver ports.Archiver
	fs       ports.FileSystem
	prefix   string
	ext      string
}

// NewService creates a restore service.
func NewService(store ports.ArchiveStore, archiver ports.Archiver, fs ports.FileSystem, prefix, ext string) *Service {
	return &Service{
		store:    store,
		archiver: archiver,
		fs:       fs,
		prefix:   prefix,
		ext:      ext,
	}
}

// Resolve maps a symbolic target to a concrete archive name. "latest"
// resolves to the newest name in the namespace, returning
// ports.ErrNoArchives when the namespace is empty (the expected first-run
// state). Any other target is returned verbatim with no existence check;
// a bad name surfaces as a DownloadError when the fetch is attempted.
func (s *Service) Resolve(ctx context.Context, target string) (string, error) {
	if target != Latest {
		return target, nil
	}

	names, err := s.store.List(ctx, s.prefix, s.ext)
	if err != nil {
		return "", fmt.Errorf("listing archives: %w", err)
	}
	if len(names) == 0 {
		return "", ports.ErrNoArchives
	}

	// Newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names[0], nil
}

// Restore downloads the named archive and unpacks it into destDir, creating
// destDir if absent. The downloaded scratch copy is deleted regardless of
// the unpack outcome.
func (s *Service) Restore(ctx context.Context, name, destDir string) error {
	scratchDir, err := os.MkdirTemp("", "stashd-restore-*")
	if err != nil {
		return &ports.RestoreError{Name: name, Err: err}
	}
	// Delete the scratch copy whether or not the unpack worked.
	defer func() {
		if err := s.fs.RemoveAll(scratchDir); err != nil {
			log.WithField("path", scratchDir).WithError(err).Warn("could not remove scratch dir")
		}
	}()

	localPath, err := s.store.Download(ctx, name, scratchDir)
	if err != nil {
		return err // Already a DownloadError.
	}

	if err := s.fs.MkdirAll(destDir, 0755); err != nil {
		return &ports.RestoreError{Name: name, Err: err}
	}

	if err := s.archiver.Extract(localPath, destDir); err != nil {
		return &ports.RestoreError{Name: name, Err: err}
	}

	log.WithFields(log.Fields{
		"archive": name,
		"dest":    destDir,
	}).Info("restored archive")
	return nil
}

// RestoreTarget resolves target and restores it in one step.
func (s *Service) RestoreTarget(ctx context.Context, target, destDir string) (string, error) {
	name, err := s.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	if err := s.Restore(ctx, name, destDir); err != nil {
		return name, err
	}
	return name, nil
}

// ListSorted returns all archive names in the namespace, newest first, plus
// the resolved latest name ("" when the namespace is empty).
func (s *Service) ListSorted(ctx context.Context) ([]string, string, error) {
	names, err := s.store.List(ctx, s.prefix, s.ext)
	if err != nil {
		return nil, "", fmt.Errorf("listing archives: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	latest := ""
	if len(names) > 0 {
		latest = names[0]
	}
	return names, latest, nil
}
