// Package fs wraps the filesystem operations used by the session core.
package fs

import (
	"io/fs"
	"os"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// AlspFS wraps the filesystem operations used by assist-lsp.
type AlspFS interface {
	MkdirAll(path string) error
	MkdirTemp(dir, pattern string) (string, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
	Stat(name string) (fs.FileInfo, error)
	FileExists(path string) (bool, error)
	DirExists(path string) (bool, error)
}

type fsImpl struct{}

// New creates a new AlspFS.
func New() AlspFS {
	return fsImpl{}
}

// MkdirAll creates a directory and all its parents.
func (fsImpl) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

// MkdirTemp creates a new unique temporary directory.
func (fsImpl) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

// ReadDir reads all the items in a directory (non-recursive).
func (fsImpl) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// ReadFile reads a file's full contents.
func (fsImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes data to a file, creating it if necessary.
func (fsImpl) WriteFile(name string, data []byte) error {
	return os.WriteFile(name, data, 0644)
}

// Remove deletes a single file.
func (fsImpl) Remove(name string) error { return os.Remove(name) }

// Stat returns file info for the given path.
func (fsImpl) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// FileExists reports whether path exists and is a regular file.
func (fsImpl) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DirExists reports whether path exists and is a directory.
func (fsImpl) DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
