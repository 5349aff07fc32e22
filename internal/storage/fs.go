package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/models"
)

const tmpPattern = ".rallylog-tmp-*"

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to vault directory
	logger *slog.Logger
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithLogger sets the logger used to report entries List skips.
func WithLogger(l *slog.Logger) FSOption {
	return func(f *FS) { f.logger = l }
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute vault directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the vault root and rejects
// any result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidInput)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes vault root: %s: %w", rel, apperr.ErrInvalidInput)
	}
	return abs, nil
}

// List walks dir and returns metadata for every .md file. A missing dir
// yields an empty list. Hidden files (including in-flight temp files) are
// skipped, and so is any entry below dir that cannot be walked or stat'ed:
// one broken file never fails the listing. File contents are not read.
func (f *FS) List(dir string) ([]models.FileMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	out := []models.FileMetadata{}
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			f.skip(p, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != base && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			f.skip(p, err)
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.FileMetadata{
			Path:       filepath.ToSlash(rel),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

func (f *FS) skip(p string, err error) {
	rel, _ := filepath.Rel(f.root, p)
	f.logger.Warn("storage: skipping unlistable entry",
		slog.String("path", filepath.ToSlash(rel)),
		slog.String("error", err.Error()))
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Stat returns file info for a vault file.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	return f.commit(abs, content, func(tmpName string) error {
		if err := os.Rename(tmpName, abs); err != nil {
			return fmt.Errorf("storage: rename: %w", err)
		}
		return nil
	})
}

// Create writes content to a new file without ever replacing an existing
// one: tmp file → fsync → hard link. It fails with apperr.ErrAlreadyExists
// when path is taken.
func (f *FS) Create(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	return f.commit(abs, content, func(tmpName string) error {
		if err := os.Link(tmpName, abs); err != nil {
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("storage: create %s: %w", path, apperr.ErrAlreadyExists)
			}
			return fmt.Errorf("storage: link: %w", err)
		}
		_ = os.Remove(tmpName)
		return nil
	})
}

// commit stages content in a temp file next to abs and hands it to publish.
func (f *FS) commit(abs string, content []byte, publish func(tmpName string) error) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := publish(tmpName); err != nil {
		return err
	}
	success = true
	return nil
}
