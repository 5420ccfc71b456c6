// Package dirstore provides an archive store adapter backed by a local or
// mounted directory (file:// datasets).
package dirstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// DirStore implements ports.ArchiveStore on top of a directory.
type DirStore struct {
	root string
}

// New creates a DirStore rooted at dir. A file:// prefix is stripped and a
// leading ~ expands to the home directory; without the expansion a tilde
// dataset would silently address a literal "~" directory under the cwd.
func New(dir string) *DirStore {
	dir = strings.TrimPrefix(dir, "file://")
	expanded, err := homedir.Expand(dir)
	if err != nil {
		log.WithField("path", dir).WithError(err).Warn("could not expand home directory")
		expanded = dir
	}
	return &DirStore{root: expanded}
}

// List returns archive names in the root matching {prefix}*.{extension}.
func (s *DirStore) List(ctx context.Context, prefix, extension string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Namespace not created yet means no archives.
		}
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, "."+extension) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Upload copies localPath into the root under remoteName, overwriting any
// existing entry of the same name.
func (s *DirStore) Upload(ctx context.Context, localPath, remoteName string) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return &ports.UploadError{Name: remoteName, Err: err}
	}
	if err := copyFile(localPath, filepath.Join(s.root, remoteName)); err != nil {
		return &ports.UploadError{Name: remoteName, Err: err}
	}
	return nil
}

// Download copies remoteName into destDir and returns the local path.
func (s *DirStore) Download(ctx context.Context, remoteName, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", &ports.DownloadError{Name: remoteName, Err: err}
	}
	dest := filepath.Join(destDir, remoteName)
	if err := copyFile(filepath.Join(s.root, remoteName), dest); err != nil {
		return "", &ports.DownloadError{Name: remoteName, Err: err}
	}
	return dest, nil
}

// Delete removes remoteName from the root.
func (s *DirStore) Delete(ctx context.Context, remoteName string) error {
	if err := os.Remove(filepath.Join(s.root, remoteName)); err != nil && !os.IsNotExist(err) {
		return &ports.DeleteError{Name: remoteName, Err: err}
	}
	return nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Compile-time check that DirStore implements ports.ArchiveStore.
var _ ports.ArchiveStore = (*DirStore)(nil)
