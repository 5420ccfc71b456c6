package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdonaldj/stashd/internal/adapters/osfs"
	"github.com/mcdonaldj/stashd/internal/archive"
	"github.com/mcdonaldj/stashd/internal/config"
	"github.com/mcdonaldj/stashd/internal/mocks"
	"github.com/mcdonaldj/stashd/internal/paths"
	"github.com/mcdonaldj/stashd/internal/restore"
	"github.com/mcdonaldj/stashd/internal/retention"
)

type fixture struct {
	syncer   *Syncer
	cfg      *config.Config
	store    *mocks.MockArchiveStore
	archiver *mocks.MockArchiver
	clock    clockwork.FakeClock
	tempDir  string
}

func newFixture(t *testing.T, existing ...string) *fixture {
	t.Helper()
	tempDir := t.TempDir()

	srcDir := filepath.Join(tempDir, "data")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DatasetID = "test-bucket"
	cfg.ArchivePaths = srcDir
	cfg.RestorePath = filepath.Join(tempDir, "restore")
	cfg.MaxArchives = 3
	cfg.SyncIntervalSeconds = 60

	store := mocks.NewMockArchiveStore(existing...)
	archiver := mocks.NewMockArchiver()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	collector := paths.NewCollector(osfs.New())
	builder := archive.NewBuilder(archiver, clock, filepath.Join(tempDir, "tmp"), cfg.ArchivePrefix, cfg.ArchiveExtension)
	keeper := retention.NewManager(store, cfg.ArchivePrefix, cfg.ArchiveExtension)
	restorer := restore.NewService(store, archiver, osfs.New(), cfg.ArchivePrefix, cfg.ArchiveExtension)

	s, err := New(cfg, collector, builder, store, keeper, restorer, clock)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	return &fixture{
		syncer:   s,
		cfg:      cfg,
		store:    store,
		archiver: archiver,
		clock:    clock,
		tempDir:  tempDir,
	}
}

func TestRunCycleUploadsAndCleansUp(t *testing.T) {
	f := newFixture(t)

	if err := f.syncer.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(f.store.UploadCalls) != 1 {
		t.Fatalf("Upload called %d times, expected 1", len(f.store.UploadCalls))
	}
	name := f.store.UploadCalls[0].RemoteName
	if name != "backup_20240601_120000.tar.gz" {
		t.Errorf("uploaded name = %q", name)
	}

	// The local artifact is gone after the cycle.
	if _, err := os.Stat(f.store.UploadCalls[0].LocalPath); !os.IsNotExist(err) {
		t.Errorf("local artifact should be removed after upload")
	}
}

func TestRunCycleEnforcesRetentionAfterUpload(t *testing.T) {
	f := newFixture(t,
		"backup_20240101_000000.tar.gz",
		"backup_20240102_000000.tar.gz",
		"backup_20240103_000000.tar.gz",
	)

	if err := f.syncer.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(f.store.DeleteCalls) != 1 || f.store.DeleteCalls[0] != "backup_20240101_000000.tar.gz" {
		t.Errorf("DeleteCalls = %v, expected oldest only", f.store.DeleteCalls)
	}
	if len(f.store.Archives) != 3 {
		t.Errorf("remote count = %d, expected exactly maxArchives", len(f.store.Archives))
	}
	if !f.store.Archives["backup_20240601_120000.tar.gz"] {
		t.Errorf("new upload missing from remote set")
	}
}

func TestRunCycleDryRunSkipsRemote(t *testing.T) {
	f := newFixture(t)
	f.cfg.DryRun = true

	if err := f.syncer.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(f.store.UploadCalls) != 0 {
		t.Errorf("dry run must not upload")
	}
	if len(f.store.DeleteCalls) != 0 {
		t.Errorf("dry run must not prune")
	}

	// The local artifact is kept for inspection.
	if len(f.archiver.CreateCalls) != 1 {
		t.Fatalf("Create called %d times", len(f.archiver.CreateCalls))
	}
	if _, err := os.Stat(f.archiver.CreateCalls[0].DestPath); err != nil {
		t.Errorf("dry-run artifact should be kept: %v", err)
	}
}

func TestRunCycleDryRunKeepsOnlyLatestArtifact(t *testing.T) {
	f := newFixture(t)
	f.cfg.DryRun = true

	if err := f.syncer.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	f.clock.Advance(time.Minute)
	if err := f.syncer.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(f.archiver.CreateCalls) != 2 {
		t.Fatalf("Create called %d times", len(f.archiver.CreateCalls))
	}
	first := f.archiver.CreateCalls[0].DestPath
	second := f.archiver.CreateCalls[1].DestPath

	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("previous dry-run artifact should be replaced")
	}
	if _, err := os.Stat(second); err != nil {
		t.Errorf("latest dry-run artifact should be kept: %v", err)
	}
}

func TestRunCycleNoValidPaths(t *testing.T) {
	f := newFixture(t)
	f.cfg.ArchivePaths = filepath.Join(f.tempDir, "missing")

	err := f.syncer.RunCycle(context.Background())
	if !errors.Is(err, paths.ErrNoValidPaths) {
		t.Errorf("expected ErrNoValidPaths, got %v", err)
	}
	if len(f.store.UploadCalls) != 0 {
		t.Errorf("nothing should be uploaded")
	}
}

func TestRunCycleUploadFailureStillCleansUp(t *testing.T) {
	f := newFixture(t)
	f.store.Errors.Upload = fmt.Errorf("network down")

	err := f.syncer.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("expected upload error")
	}

	if len(f.store.UploadCalls) != 1 {
		t.Fatalf("Upload not attempted")
	}
	if _, statErr := os.Stat(f.store.UploadCalls[0].LocalPath); !os.IsNotExist(statErr) {
		t.Errorf("local artifact should be removed even when the upload fails")
	}
	if len(f.store.DeleteCalls) != 0 {
		t.Errorf("retention must not run after a failed upload")
	}
}

func TestBootstrapEmptyNamespaceIsQuiet(t *testing.T) {
	f := newFixture(t)

	// Must not panic or fail the caller; nothing to assert beyond the
	// absence of an extract call.
	f.syncer.Bootstrap(context.Background())

	if len(f.archiver.ExtractCalls) != 0 {
		t.Errorf("nothing should be extracted on first run")
	}
}

func TestBootstrapRestoresLatest(t *testing.T) {
	f := newFixture(t,
		"backup_20240101_000000.tar.gz",
		"backup_20240102_000000.tar.gz",
	)

	f.syncer.Bootstrap(context.Background())

	if len(f.archiver.ExtractCalls) != 1 {
		t.Fatalf("Extract called %d times, expected 1", len(f.archiver.ExtractCalls))
	}
	call := f.archiver.ExtractCalls[0]
	if filepath.Base(call.ArchivePath) != "backup_20240102_000000.tar.gz" {
		t.Errorf("restored %q, expected the latest archive", call.ArchivePath)
	}
	if call.DestDir != f.cfg.RestorePath {
		t.Errorf("restored into %q, expected %q", call.DestDir, f.cfg.RestorePath)
	}
}

func TestBootstrapDisabled(t *testing.T) {
	f := newFixture(t, "backup_20240101_000000.tar.gz")
	f.cfg.EnableAutoRestore = false

	f.syncer.Bootstrap(context.Background())

	if len(f.archiver.ExtractCalls) != 0 {
		t.Errorf("auto-restore disabled but Extract was called")
	}
}

func TestRunLoopSurvivesFailedCycles(t *testing.T) {
	f := newFixture(t)
	f.store.Errors.Upload = fmt.Errorf("remote down")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.syncer.Run(ctx)
		close(done)
	}()

	// First cycle fails, then the loop parks on the timer rather than
	// exiting.
	f.clock.BlockUntil(1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}

	if len(f.store.UploadCalls) == 0 {
		t.Errorf("cycle should have been attempted")
	}
}

func TestRunLoopRepeats(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.syncer.Run(ctx)
		close(done)
	}()

	// Let two cycles run by advancing past the interval once.
	f.clock.BlockUntil(1)
	f.clock.Advance(61 * time.Second)
	f.clock.BlockUntil(1)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}

	if len(f.store.UploadCalls) < 2 {
		t.Errorf("expected at least 2 cycles, got %d", len(f.store.UploadCalls))
	}
}
