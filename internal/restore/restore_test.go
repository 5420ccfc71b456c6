package restore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdonaldj/stashd/internal/adapters/dirstore"
	"github.com/mcdonaldj/stashd/internal/adapters/osfs"
	"github.com/mcdonaldj/stashd/internal/adapters/targz"
	"github.com/mcdonaldj/stashd/internal/mocks"
	"github.com/mcdonaldj/stashd/internal/ports"
)

func TestResolveLatest(t *testing.T) {
	store := mocks.NewMockArchiveStore(
		"backup_20240101_000000.tar.gz",
		"backup_20240103_000000.tar.gz",
		"backup_20240102_000000.tar.gz",
	)
	s := NewService(store, mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	name, err := s.Resolve(context.Background(), Latest)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if name != "backup_20240103_000000.tar.gz" {
		t.Errorf("Resolve(latest) = %q, expected the lexicographically greatest name", name)
	}
}

func TestResolveLatestEmptyNamespace(t *testing.T) {
	s := NewService(mocks.NewMockArchiveStore(), mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	_, err := s.Resolve(context.Background(), Latest)
	if !errors.Is(err, ports.ErrNoArchives) {
		t.Errorf("expected ErrNoArchives, got %v", err)
	}
}

func TestResolveExplicitNameVerbatim(t *testing.T) {
	// No existence check: the name passes through even though the store is
	// empty and would fail the list call if consulted.
	store := mocks.NewMockArchiveStore()
	store.Errors.List = errors.New("should not be called")
	s := NewService(store, mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	name, err := s.Resolve(context.Background(), "backup_20231231_235959.tar.gz")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if name != "backup_20231231_235959.tar.gz" {
		t.Errorf("explicit name not used verbatim: %q", name)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	// Pack a real tree and upload it into a directory-backed store.
	sourceDir := filepath.Join(tempDir, "data")
	if err := os.MkdirAll(filepath.Join(sourceDir, "sub"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sourceDir, "a.txt"), []byte("alpha"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sourceDir, "sub", "b.txt"), []byte("beta"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	archiver := targz.New()
	archivePath := filepath.Join(tempDir, "backup_20240101_000000.tar.gz")
	if _, err := archiver.Create(archivePath, []string{sourceDir}, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	store := dirstore.New(filepath.Join(tempDir, "remote"))
	if err := store.Upload(ctx, archivePath, "backup_20240101_000000.tar.gz"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	s := NewService(store, archiver, osfs.New(), "backup", "tar.gz")
	destDir := filepath.Join(tempDir, "restored")
	name, err := s.RestoreTarget(ctx, Latest, destDir)
	if err != nil {
		t.Fatalf("RestoreTarget failed: %v", err)
	}
	if name != "backup_20240101_000000.tar.gz" {
		t.Errorf("restored %q", name)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "data", "sub", "b.txt"))
	if err != nil {
		t.Fatalf("restored tree incomplete: %v", err)
	}
	if string(got) != "beta" {
		t.Errorf("restored content = %q, expected beta", got)
	}
}

func TestRestoreDownloadErrorKind(t *testing.T) {
	store := mocks.NewMockArchiveStore() // empty: download will fail
	s := NewService(store, mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	err := s.Restore(context.Background(), "backup_20240101_000000.tar.gz", t.TempDir())

	var dlErr *ports.DownloadError
	if !errors.As(err, &dlErr) {
		t.Errorf("expected DownloadError, got %v", err)
	}
	var restoreErr *ports.RestoreError
	if errors.As(err, &restoreErr) {
		t.Errorf("fetch failure must not be a RestoreError")
	}
}

func TestRestoreUnpackErrorKind(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	// Upload garbage so the download succeeds but the unpack fails.
	garbage := filepath.Join(tempDir, "junk")
	if err := os.WriteFile(garbage, []byte("not a tarball"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	store := dirstore.New(filepath.Join(tempDir, "remote"))
	if err := store.Upload(ctx, garbage, "backup_20240101_000000.tar.gz"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	s := NewService(store, targz.New(), osfs.New(), "backup", "tar.gz")
	err := s.Restore(ctx, "backup_20240101_000000.tar.gz", filepath.Join(tempDir, "dest"))

	var restoreErr *ports.RestoreError
	if !errors.As(err, &restoreErr) {
		t.Fatalf("expected RestoreError, got %v", err)
	}
	var dlErr *ports.DownloadError
	if errors.As(err, &dlErr) {
		t.Errorf("unpack failure must not be a DownloadError")
	}
}

func TestRestoreScratchCleanupUsesFileSystem(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	garbage := filepath.Join(tempDir, "junk")
	if err := os.WriteFile(garbage, []byte("not a tarball"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	store := dirstore.New(filepath.Join(tempDir, "remote"))
	if err := store.Upload(ctx, garbage, "backup_20240101_000000.tar.gz"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	fs := mocks.NewMockFileSystem()
	s := NewService(store, targz.New(), fs, "backup", "tar.gz")

	// Even a failed unpack must clean up through the injected filesystem.
	if err := s.Restore(ctx, "backup_20240101_000000.tar.gz", filepath.Join(tempDir, "dest")); err == nil {
		t.Fatalf("expected unpack failure")
	}

	if len(fs.RemoveAllCalls) != 1 {
		t.Fatalf("RemoveAll called %d times, expected 1", len(fs.RemoveAllCalls))
	}
	if _, err := os.Stat(fs.RemoveAllCalls[0]); !os.IsNotExist(err) {
		t.Errorf("scratch dir %q should be gone", fs.RemoveAllCalls[0])
	}
}

func TestListSorted(t *testing.T) {
	store := mocks.NewMockArchiveStore(
		"backup_20240101_000000.tar.gz",
		"backup_20240103_000000.tar.gz",
		"backup_20240102_000000.tar.gz",
	)
	s := NewService(store, mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	names, latest, err := s.ListSorted(context.Background())
	if err != nil {
		t.Fatalf("ListSorted failed: %v", err)
	}
	if latest != "backup_20240103_000000.tar.gz" {
		t.Errorf("latest = %q", latest)
	}
	if len(names) != 3 || names[0] != latest || names[2] != "backup_20240101_000000.tar.gz" {
		t.Errorf("names = %v, expected newest first", names)
	}
}

func TestListSortedEmpty(t *testing.T) {
	s := NewService(mocks.NewMockArchiveStore(), mocks.NewMockArchiver(), osfs.New(), "backup", "tar.gz")

	names, latest, err := s.ListSorted(context.Background())
	if err != nil {
		t.Fatalf("ListSorted failed: %v", err)
	}
	if len(names) != 0 || latest != "" {
		t.Errorf("empty namespace should yield no names and empty latest, got %v / %q", names, latest)
	}
}
