package adapter

import (
	"io"
	"os"
)

// FileSystem defines an interface for file system operations to enable mocking
type FileSystem interface {
	// Open opens the named file for reading
	Open(name string) (File, error)

	// Create creates or truncates the named file
	Create(name string) (File, error)

	// Remove removes the named file
	Remove(name string) error

	// ReadDir reads the named directory, returning its entries
	ReadDir(name string) ([]os.DirEntry, error)

	// Stat returns file info for the named file
	Stat(name string) (os.FileInfo, error)
}

// File defines an interface for file operations
type File interface {
	io.Reader
	io.Writer
	io.Closer
}

// RealFileSystem implements FileSystem using the standard os package
type RealFileSystem struct{}

// NewFileSystem creates a new real file system
func NewFileSystem() FileSystem {
	return &RealFileSystem{}
}

// Open opens the named file for reading
func (fs *RealFileSystem) Open(name string) (File, error) {
	return os.Open(name) //nolint:gosec,G304
}

// Create creates or truncates the named file
func (fs *RealFileSystem) Create(name string) (File, error) {
	return os.Create(name) //nolint:gosec,G304
}

// Remove removes the named file
func (fs *RealFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// ReadDir reads the named directory, returning its entries
func (fs *RealFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// Stat returns file info for the named file
func (fs *RealFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}
