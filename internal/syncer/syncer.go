// Package syncer drives the repeating archive-upload-prune cycle and the
// one-shot startup restore.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/archive"
	"github.com/mcdonaldj/stashd/internal/config"
	"github.com/mcdonaldj/stashd/internal/paths"
	"github.com/mcdonaldj/stashd/internal/ports"
	"github.com/mcdonaldj/stashd/internal/restore"
	"github.com/mcdonaldj/stashd/internal/retention"
)

// Syncer coordinates one full cycle and the interval loop around it. At most
// one cycle runs at a time by construction: the loop is a single goroutine
// and each stage completes before the next starts.
type Syncer struct {
	cfg       *config.Config
	collector *paths.Collector
	builder   *archive.Builder
	store     ports.ArchiveStore
	keeper    *retention.Manager
	restorer  *restore.Service
	clock     clockwork.Clock
	schedule  cron.Schedule

	// lastDryRun is the artifact kept by the previous dry-run cycle, removed
	// when the next one replaces it so repeated dry-run cycles never hold
	// more than one artifact in the temp dir.
	lastDryRun string
}

// New creates a Syncer. The schedule comes from cfg.SyncSchedule when set,
// otherwise from cfg.SyncIntervalSeconds.
func New(
	cfg *config.Config,
	collector *paths.Collector,
	builder *archive.Builder,
	store ports.ArchiveStore,
	keeper *retention.Manager,
	restorer *restore.Service,
	clock clockwork.Clock,
) (*Syncer, error) {
	spec := cfg.SyncSchedule
	if spec == "" {
		spec = fmt.Sprintf("@every %ds", cfg.SyncIntervalSeconds)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing sync schedule %q: %w", spec, err)
	}

	return &Syncer{
		cfg:       cfg,
		collector: collector,
		builder:   builder,
		store:     store,
		keeper:    keeper,
		restorer:  restorer,
		clock:     clock,
		schedule:  schedule,
	}, nil
}

// RunCycle executes one archive → upload → prune cycle. In dry-run mode the
// local artifact is kept and no remote calls are made. The local artifact is
// otherwise deleted whether or not the upload succeeded.
func (s *Syncer) RunCycle(ctx context.Context) error {
	srcs, err := s.collector.Collect(s.cfg.ArchivePaths)
	if err != nil {
		return err
	}

	arch, err := s.builder.Build(srcs, s.cfg.ExcludeList())
	if err != nil {
		return err
	}

	if s.cfg.DryRun {
		if s.lastDryRun != "" && s.lastDryRun != arch.LocalPath {
			if err := os.Remove(s.lastDryRun); err != nil && !os.IsNotExist(err) {
				log.WithField("path", s.lastDryRun).WithError(err).Warn("could not remove previous dry-run archive")
			}
		}
		s.lastDryRun = arch.LocalPath
		log.WithFields(log.Fields{
			"archive": arch.Name,
			"path":    arch.LocalPath,
			"files":   arch.FileCount,
		}).Info("dry run: keeping local archive, skipping upload")
		return nil
	}

	defer func() {
		if err := os.Remove(arch.LocalPath); err != nil && !os.IsNotExist(err) {
			log.WithField("path", arch.LocalPath).WithError(err).Warn("could not remove local archive")
		}
	}()

	if err := s.store.Upload(ctx, arch.LocalPath, arch.Name); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"archive": arch.Name,
		"dataset": s.cfg.DatasetID,
		"bytes":   arch.SizeBytes,
		"sha256":  arch.SHA256,
	}).Info("uploaded archive")

	if _, err := s.keeper.Enforce(ctx, s.cfg.MaxArchives, arch.Name); err != nil {
		// The archive is uploaded; a failed prune only delays cleanup.
		log.WithError(err).Warn("retention enforcement failed")
	}

	return nil
}

// Bootstrap performs the optional startup restore. A failed or not-found
// restore is a warning, never an error: the sync loop must still start.
func (s *Syncer) Bootstrap(ctx context.Context) {
	if !s.cfg.EnableAutoRestore {
		log.Debug("auto-restore disabled")
		return
	}

	name, err := s.restorer.RestoreTarget(ctx, restore.Latest, s.cfg.RestorePath)
	switch {
	case errors.Is(err, ports.ErrNoArchives):
		log.Info("no archives to restore yet, starting fresh")
	case err != nil:
		log.WithField("archive", name).WithError(err).Warn("startup restore failed")
	default:
		log.WithField("archive", name).Info("startup restore complete")
	}
}

// Run executes cycles forever on the configured schedule. Any stage failure
// is logged at the cycle boundary and the loop proceeds to the next sleep; a
// single failed cycle never stops future cycles. Returns when ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	log.WithField("dataset", s.cfg.DatasetID).Info("sync loop started")

	for {
		if err := s.RunCycle(ctx); err != nil {
			log.WithError(err).Error("sync cycle failed")
		}

		now := s.clock.Now()
		next := s.schedule.Next(now)

		select {
		case <-ctx.Done():
			log.Info("sync loop stopped")
			return
		case <-s.clock.After(next.Sub(now)):
		}
	}
}
