// Package storage defines the vault file-system abstraction.
package storage

import (
	"io/fs"

	"github.com/starford/rallylog/internal/models"
)

// Provider is the interface for vault file operations. All paths are
// relative to the vault root.
type Provider interface {
	// Root returns the absolute vault directory.
	Root() string
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
	// Write atomically replaces the content at path, creating it if needed.
	Write(path string, content []byte) error
	// Create atomically writes content to a path that must not exist yet.
	Create(path string, content []byte) error
}
