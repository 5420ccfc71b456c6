// Package archive builds the local archive artifact for one sync cycle.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// NameTimeLayout is the timestamp component of archive names. Fixed-width and
// zero-padded so that lexicographic order of names matches creation order;
// retention and "latest" resolution both depend on this.
const NameTimeLayout = "20060102_150405"

// Archive describes one built artifact, local and ephemeral until uploaded.
type Archive struct {
	Name      string
	LocalPath string
	SizeBytes int64
	FileCount int
	SHA256    string
}

// Builder packs validated paths into a named artifact.
type Builder struct {
	archiver ports.Archiver
	clock    clockwork.Clock
	tempDir  string
	prefix   string
	ext      string
}

// NewBuilder creates a Builder that writes artifacts into tempDir with the
// given naming scheme.
func NewBuilder(archiver ports.Archiver, clock clockwork.Clock, tempDir, prefix, ext string) *Builder {
	return &Builder{
		archiver: archiver,
		clock:    clock,
		tempDir:  tempDir,
		prefix:   prefix,
		ext:      ext,
	}
}

// Build packs the given paths into a compressed archive, applying the
// exclude patterns. The name is computed once, at build start, so it stays
// stable even if the build runs long.
func (b *Builder) Build(paths []string, excludes []string) (*Archive, error) {
	name := fmt.Sprintf("%s_%s.%s", b.prefix, b.clock.Now().Format(NameTimeLayout), b.ext)
	localPath := filepath.Join(b.tempDir, name)

	if err := os.MkdirAll(b.tempDir, 0755); err != nil {
		return nil, &ports.PackError{Archive: name, Err: err}
	}

	count, err := b.archiver.Create(localPath, paths, excludes)
	if err != nil {
		// Don't leave half-written artifacts in the temp dir.
		_ = os.Remove(localPath)
		return nil, &ports.PackError{Archive: name, Err: err}
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, &ports.PackError{Archive: name, Err: err}
	}

	sum, err := ComputeSHA256(localPath)
	if err != nil {
		return nil, &ports.PackError{Archive: name, Err: err}
	}

	log.WithFields(log.Fields{
		"archive": name,
		"files":   count,
		"bytes":   info.Size(),
		"sha256":  sum,
	}).Debug("built archive")

	return &Archive{
		Name:      name,
		LocalPath: localPath,
		SizeBytes: info.Size(),
		FileCount: count,
		SHA256:    sum,
	}, nil
}

// ComputeSHA256 calculates the SHA256 hash of a file.
func ComputeSHA256(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
