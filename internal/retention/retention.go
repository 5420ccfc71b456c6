// Package retention prunes remote archives beyond the configured maximum.
package retention

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// Manager enforces the archive count cap on the remote namespace.
type Manager struct {
	store  ports.ArchiveStore
	prefix string
	ext    string
}

// NewManager creates a Manager for the given naming scheme.
func NewManager(store ports.ArchiveStore, prefix, ext string) *Manager {
	return &Manager{store: store, prefix: prefix, ext: ext}
}

// Enforce deletes the oldest archives so that at most maxArchives remain in
// the namespace. Names sort lexicographically in creation order, so "oldest"
// is the ascending head of the list.
//
// justUploaded is the name uploaded by the current cycle; it is never a
// deletion candidate and is not counted as pre-existing, which is what the
// count - maxArchives + 1 excess formula assumes: the +1 reserves its slot,
// leaving exactly maxArchives archives after the prune. Pass "" outside a
// sync cycle.
//
// A single deletion failure is logged and skipped, never fatal to the cycle.
// Returns the names actually pruned.
func (m *Manager) Enforce(ctx context.Context, maxArchives int, justUploaded string) ([]string, error) {
	if maxArchives < 1 {
		return nil, fmt.Errorf("maxArchives must be at least 1, got %d", maxArchives)
	}

	listed, err := m.store.List(ctx, m.prefix, m.ext)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	names := listed[:0:0]
	for _, name := range listed {
		if name != justUploaded {
			names = append(names, name)
		}
	}

	if len(names) < maxArchives {
		return nil, nil
	}

	sort.Strings(names) // oldest first

	excess := len(names) - maxArchives + 1
	if excess > len(names) {
		excess = len(names)
	}

	var pruned []string
	for _, name := range names[:excess] {
		if err := m.store.Delete(ctx, name); err != nil {
			// Best effort: keep going with the remaining names.
			log.WithField("archive", name).WithError(err).Warn("failed to prune archive")
			continue
		}
		log.WithField("archive", name).Info("pruned old archive")
		pruned = append(pruned, name)
	}

	return pruned, nil
}
