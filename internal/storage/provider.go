// Package storage defines the asset library file-system abstraction.
package storage

import "github.com/starford/segue/internal/models"

// Provider is the interface for asset library file operations. Paths are
// slash-separated and relative to the library root.
type Provider interface {
	// Root returns the absolute library directory.
	Root() string
	// List returns metadata for every asset document under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the document at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the document at path.
	Write(path string, content []byte) error
	// Delete removes the document at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
