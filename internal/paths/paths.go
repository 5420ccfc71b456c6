// Package paths resolves the configured archive paths into a validated list.
package paths

import (
	"errors"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// PlaceholderName is the file written into empty directories so the packer
// always has an entry to represent them.
const PlaceholderName = ".stashkeep"

// ErrNoValidPaths is returned when every configured path is missing. There
// is nothing meaningful to pack, so the archive cycle aborts.
var ErrNoValidPaths = errors.New("no valid archive paths")

// Collector validates archive paths against the filesystem.
type Collector struct {
	fs ports.FileSystem
}

// NewCollector creates a Collector using the given filesystem.
func NewCollector(fs ports.FileSystem) *Collector {
	return &Collector{fs: fs}
}

// Collect parses a comma-delimited path list and returns the entries that
// exist on disk, in input order. Missing paths are logged as warnings and
// skipped. Empty directories gain a placeholder file before inclusion.
func (c *Collector) Collect(pathList string) ([]string, error) {
	var valid []string

	for _, raw := range strings.Split(pathList, ",") {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}

		info, err := c.fs.Stat(p)
		if err != nil {
			log.WithField("path", p).Warn("archive path does not exist, skipping")
			continue
		}

		if info.IsDir() {
			if err := c.ensureNotEmpty(p); err != nil {
				log.WithField("path", p).WithError(err).Warn("could not write placeholder")
			}
		}

		valid = append(valid, p)
	}

	if len(valid) == 0 {
		return nil, ErrNoValidPaths
	}
	return valid, nil
}

// ensureNotEmpty writes a placeholder file into dir when it has no entries.
// Packers typically refuse or silently skip empty directories.
func (c *Collector) ensureNotEmpty(dir string) error {
	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return c.fs.WriteFile(filepath.Join(dir, PlaceholderName), []byte{}, 0644)
}
