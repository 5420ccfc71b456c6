package mocks

import (
	"os"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// MockArchiver implements ports.Archiver for testing.
type MockArchiver struct {
	// CreateCalls records calls to Create
	CreateCalls []CreateCall
	// ExtractCalls records calls to Extract
	ExtractCalls []ExtractCall
	// Errors maps method names to errors
	Errors map[string]error
	// CreateResult is the file count to return
	CreateResult int
	// WriteArtifact makes Create write an empty file at destPath so callers
	// that stat or hash the artifact succeed.
	WriteArtifact bool
}

// CreateCall records parameters of a Create call.
type CreateCall struct {
	DestPath    string
	SourcePaths []string
	Exclude     []string
}

// ExtractCall records parameters of an Extract call.
type ExtractCall struct {
	ArchivePath string
	DestDir     string
}

// NewMockArchiver creates a new mock archiver.
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{
		Errors:        make(map[string]error),
		CreateResult:  1, // Default to 1 file
		WriteArtifact: true,
	}
}

// Create records the call and optionally writes an empty artifact.
func (m *MockArchiver) Create(destPath string, sourcePaths []string, exclude []string) (int, error) {
	m.CreateCalls = append(m.CreateCalls, CreateCall{
		DestPath:    destPath,
		SourcePaths: sourcePaths,
		Exclude:     exclude,
	})
	if err, ok := m.Errors["Create"]; ok {
		return 0, err
	}
	if m.WriteArtifact {
		if err := os.WriteFile(destPath, []byte("mock archive"), 0644); err != nil {
			return 0, err
		}
	}
	return m.CreateResult, nil
}

// Extract records the call.
func (m *MockArchiver) Extract(archivePath, destDir string) error {
	m.ExtractCalls = append(m.ExtractCalls, ExtractCall{
		ArchivePath: archivePath,
		DestDir:     destDir,
	})
	if err, ok := m.Errors["Extract"]; ok {
		return err
	}
	return nil
}

// Compile-time check that MockArchiver implements ports.Archiver.
var _ ports.Archiver = (*MockArchiver)(nil)
