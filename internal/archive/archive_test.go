package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdonaldj/stashd/internal/adapters/targz"
	"github.com/mcdonaldj/stashd/internal/mocks"
	"github.com/mcdonaldj/stashd/internal/ports"
)

func TestBuildNameFromClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 7, 9, 5, 2, 0, time.UTC))
	archiver := mocks.NewMockArchiver()

	b := NewBuilder(archiver, clock, t.TempDir(), "backup", "tar.gz")
	arch, err := b.Build([]string{"/srv/data"}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if arch.Name != "backup_20240307_090502.tar.gz" {
		t.Errorf("Name = %q, expected backup_20240307_090502.tar.gz", arch.Name)
	}
	if filepath.Base(arch.LocalPath) != arch.Name {
		t.Errorf("LocalPath %q does not end in archive name", arch.LocalPath)
	}
	if len(archiver.CreateCalls) != 1 {
		t.Fatalf("Create called %d times, expected 1", len(archiver.CreateCalls))
	}
	if archiver.CreateCalls[0].SourcePaths[0] != "/srv/data" {
		t.Errorf("Create got sources %v", archiver.CreateCalls[0].SourcePaths)
	}
}

func TestNamesSortByCreationTime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC))
	archiver := mocks.NewMockArchiver()
	b := NewBuilder(archiver, clock, t.TempDir(), "backup", "tar.gz")

	var names []string
	for i := 0; i < 3; i++ {
		arch, err := b.Build([]string{"/srv/data"}, nil)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		names = append(names, arch.Name)
		clock.Advance(time.Second)
	}

	// Crossing a year boundary must not break ordering: the timestamp is
	// fixed-width and zero-padded.
	for i := 1; i < len(names); i++ {
		if !(names[i-1] < names[i]) {
			t.Errorf("names not strictly increasing: %q then %q", names[i-1], names[i])
		}
	}
}

func TestBuildPackError(t *testing.T) {
	archiver := mocks.NewMockArchiver()
	archiver.Errors["Create"] = fmt.Errorf("tar: exit status 2")

	b := NewBuilder(archiver, clockwork.NewFakeClock(), t.TempDir(), "backup", "tar.gz")
	_, err := b.Build([]string{"/srv/data"}, nil)

	var packErr *ports.PackError
	if !errors.As(err, &packErr) {
		t.Fatalf("expected PackError, got %v", err)
	}
	if packErr.Archive == "" {
		t.Errorf("PackError should carry the archive name")
	}
}

func TestBuildRealArchive(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	b := NewBuilder(targz.New(), clockwork.NewRealClock(), t.TempDir(), "backup", "tar.gz")
	arch, err := b.Build([]string{srcDir}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if arch.FileCount != 1 {
		t.Errorf("FileCount = %d, expected 1", arch.FileCount)
	}
	if arch.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, expected > 0", arch.SizeBytes)
	}
	if len(arch.SHA256) != 64 {
		t.Errorf("SHA256 = %q, expected 64 hex chars", arch.SHA256)
	}
	if _, err := os.Stat(arch.LocalPath); err != nil {
		t.Errorf("artifact missing at %s: %v", arch.LocalPath, err)
	}
}
