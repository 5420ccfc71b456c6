package mocks

import (
	"os"

	"github.com/mcdonaldj/stashd/internal/ports"
)

// MockFileSystem implements ports.FileSystem for testing. Operations pass
// through to the real filesystem so round-trip tests still work; every call
// is recorded for assertions.
type MockFileSystem struct {
	// ReadDirCalls records directories read, in order.
	ReadDirCalls []string
	// StatCalls records paths statted, in order.
	StatCalls []string
	// MkdirAllCalls records directories created, in order.
	MkdirAllCalls []string
	// WriteFileCalls records files written, in order.
	WriteFileCalls []string
	// RemoveAllCalls records paths removed, in order.
	RemoveAllCalls []string
	// Errors maps method names to errors
	Errors map[string]error
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{Errors: make(map[string]error)}
}

// ReadDir records the call and reads the real directory.
func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	m.ReadDirCalls = append(m.ReadDirCalls, name)
	if err, ok := m.Errors["ReadDir"]; ok {
		return nil, err
	}
	return os.ReadDir(name)
}

// Stat records the call and stats the real path.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	m.StatCalls = append(m.StatCalls, name)
	if err, ok := m.Errors["Stat"]; ok {
		return nil, err
	}
	return os.Stat(name)
}

// MkdirAll records the call and creates the real directory.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	m.MkdirAllCalls = append(m.MkdirAllCalls, path)
	if err, ok := m.Errors["MkdirAll"]; ok {
		return err
	}
	return os.MkdirAll(path, perm)
}

// WriteFile records the call and writes the real file.
func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.WriteFileCalls = append(m.WriteFileCalls, name)
	if err, ok := m.Errors["WriteFile"]; ok {
		return err
	}
	return os.WriteFile(name, data, perm)
}

// RemoveAll records the call and removes the real path.
func (m *MockFileSystem) RemoveAll(path string) error {
	m.RemoveAllCalls = append(m.RemoveAllCalls, path)
	if err, ok := m.Errors["RemoveAll"]; ok {
		return err
	}
	return os.RemoveAll(path)
}

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
