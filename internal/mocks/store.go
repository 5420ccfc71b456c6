// Package mocks provides hand-written mock implementations of the ports
// interfaces for testing.
package mocks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// MockArchiveStore implements ports.ArchiveStore for testing. It keeps the
// remote namespace in memory as a set of names.
type MockArchiveStore struct {
	// Archives is the current remote namespace content.
	Archives map[string]bool
	// UploadCalls records uploaded (localPath, remoteName) pairs in order.
	UploadCalls []UploadCall
	// DownloadCalls records downloaded names in order.
	DownloadCalls []string
	// DeleteCalls records deleted names in order.
	DeleteCalls []string
	// Errors allows simulating errors for specific operations.
	Errors struct {
		List     error
		Upload   error
		Download error
		Delete   error
	}
	// DeleteErrorFor simulates a failure deleting specific names only.
	DeleteErrorFor map[string]error
}

// UploadCall records parameters of an Upload call.
type UploadCall struct {
	LocalPath  string
	RemoteName string
}

// NewMockArchiveStore creates a new mock archive store.
func NewMockArchiveStore(names ...string) *MockArchiveStore {
	archives := make(map[string]bool)
	for _, n := range names {
		archives[n] = true
	}
	return &MockArchiveStore{
		Archives:       archives,
		DeleteErrorFor: make(map[string]error),
	}
}

// List returns names matching {prefix}*.{extension}, in map order.
func (m *MockArchiveStore) List(ctx context.Context, prefix, extension string) ([]string, error) {
	if m.Errors.List != nil {
		return nil, m.Errors.List
	}
	var names []string
	for name := range m.Archives {
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, "."+extension) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Upload records the call and marks remoteName present.
func (m *MockArchiveStore) Upload(ctx context.Context, localPath, remoteName string) error {
	m.UploadCalls = append(m.UploadCalls, UploadCall{LocalPath: localPath, RemoteName: remoteName})
	if m.Errors.Upload != nil {
		return &ports.UploadError{Name: remoteName, Err: m.Errors.Upload}
	}
	m.Archives[remoteName] = true
	return nil
}

// Download records the call and returns a path inside destDir without
// creating a file.
func (m *MockArchiveStore) Download(ctx context.Context, remoteName, destDir string) (string, error) {
	m.DownloadCalls = append(m.DownloadCalls, remoteName)
	if m.Errors.Download != nil {
		return "", &ports.DownloadError{Name: remoteName, Err: m.Errors.Download}
	}
	if !m.Archives[remoteName] {
		return "", &ports.DownloadError{Name: remoteName, Err: fmt.Errorf("object not found: %s", remoteName)}
	}
	return filepath.Join(destDir, remoteName), nil
}

// Delete records the call and removes remoteName from the namespace.
func (m *MockArchiveStore) Delete(ctx context.Context, remoteName string) error {
	m.DeleteCalls = append(m.DeleteCalls, remoteName)
	if m.Errors.Delete != nil {
		return &ports.DeleteError{Name: remoteName, Err: m.Errors.Delete}
	}
	if err, ok := m.DeleteErrorFor[remoteName]; ok {
		return &ports.DeleteError{Name: remoteName, Err: err}
	}
	delete(m.Archives, remoteName)
	return nil
}

// Names returns the current namespace content as a slice, unordered.
func (m *MockArchiveStore) Names() []string {
	var names []string
	for name := range m.Archives {
		names = append(names, name)
	}
	return names
}

// Compile-time check that MockArchiveStore implements ports.ArchiveStore.
var _ ports.ArchiveStore = (*MockArchiveStore)(nil)
