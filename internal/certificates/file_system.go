package certificates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// FileSystem is the narrow set of file operations the certificate and trust store code needs.
type FileSystem interface {
	EnsureDirectory(path string, permissions fs.FileMode) error
	FileExists(path string) (bool, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte, permissions fs.FileMode) error
	WriteTemporaryFile(directory string, pattern string, content []byte) (string, error)
	Remove(path string) error
	ListDirectories(path string) ([]string, error)
}

// AferoFileSystem implements FileSystem on top of an afero.Fs.
type AferoFileSystem struct {
	backend afero.Fs
}

// NewFileSystem wraps the provided afero backend.
func NewFileSystem(backend afero.Fs) AferoFileSystem {
	return AferoFileSystem{backend: backend}
}

// NewOperatingSystemFileSystem constructs a FileSystem backed by the real disk.
func NewOperatingSystemFileSystem() AferoFileSystem {
	return NewFileSystem(afero.NewOsFs())
}

// Backend exposes the underlying afero file system.
func (fileSystem AferoFileSystem) Backend() afero.Fs {
	return fileSystem.backend
}

// EnsureDirectory creates the directory and its parents when missing.
func (fileSystem AferoFileSystem) EnsureDirectory(path string, permissions fs.FileMode) error {
	return fileSystem.backend.MkdirAll(path, permissions)
}

// FileExists reports whether a regular file exists at path.
func (fileSystem AferoFileSystem) FileExists(path string) (bool, error) {
	fileInfo, statErr := fileSystem.backend.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return false, nil
		}
		return false, statErr
	}
	return !fileInfo.IsDir(), nil
}

// ReadFile returns the file content.
func (fileSystem AferoFileSystem) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(fileSystem.backend, path)
}

// WriteFile replaces the file content and applies the permissions.
func (fileSystem AferoFileSystem) WriteFile(path string, content []byte, permissions fs.FileMode) error {
	if err := afero.WriteFile(fileSystem.backend, path, content, permissions); err != nil {
		return err
	}
	return fileSystem.backend.Chmod(path, permissions)
}

// WriteTemporaryFile stores content in a new uniquely named file and returns its path.
func (fileSystem AferoFileSystem) WriteTemporaryFile(directory string, pattern string, content []byte) (string, error) {
	if directory == "" {
		directory = os.TempDir()
	}
	temporaryFile, createErr := afero.TempFile(fileSystem.backend, directory, pattern)
	if createErr != nil {
		return "", fmt.Errorf("create temporary file: %w", createErr)
	}
	temporaryPath := temporaryFile.Name()
	_, writeErr := temporaryFile.Write(content)
	closeErr := temporaryFile.Close()
	if writeErr != nil || closeErr != nil {
		_ = fileSystem.backend.Remove(temporaryPath)
		return "", fmt.Errorf("write temporary file: %w", errors.Join(writeErr, closeErr))
	}
	return temporaryPath, nil
}

// ListDirectories returns the names of the immediate subdirectories of path.
func (fileSystem AferoFileSystem) ListDirectories(path string) ([]string, error) {
	entries, readErr := afero.ReadDir(fileSystem.backend, path)
	if readErr != nil {
		return nil, readErr
	}
	var directories []string
	for _, entry := range entries {
		if entry.IsDir() {
			directories = append(directories, entry.Name())
		}
	}
	return directories, nil
}

// Remove deletes the file. A missing file is not an error.
func (fileSystem AferoFileSystem) Remove(path string) error {
	removeErr := fileSystem.backend.Remove(path)
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return removeErr
	}
	return nil
}
