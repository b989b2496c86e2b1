// Package artifacts finds files to serve for impersonated requests.
package artifacts

import (
	"errors"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// EnvironmentAssetDirectory names an extra search root.
	EnvironmentAssetDirectory = "MIMIKRY_ASSET_DIR"

	downloadsDirectoryName = "Downloads"
	removableMediaRoot     = "/media"
	fallbackContentType    = "application/octet-stream"
)

// ErrNotFound is returned when no search root holds the requested file.
var ErrNotFound = errors.New("artifact not found")

var errStopWalk = errors.New("stop walk")

// Artifact is a located file.
type Artifact struct {
	Path        string
	ContentType string
	Size        int64
}

// SearchRoots builds the ordered root list: the real user's Downloads, removable media,
// then the configured asset directory. Empty values are skipped.
func SearchRoots(realUserHomeDirectory string, assetDirectory string) []string {
	var roots []string
	if realUserHomeDirectory != "" {
		roots = append(roots, filepath.Join(realUserHomeDirectory, downloadsDirectoryName))
	}
	roots = append(roots, removableMediaRoot)
	if assetDirectory != "" {
		roots = append(roots, assetDirectory)
	}
	return roots
}

// Locator walks its roots for a file whose name equals the last segment of a request path.
type Locator struct {
	fileSystem afero.Fs
	roots      []string
}

// NewLocator constructs a Locator.
func NewLocator(fileSystem afero.Fs, roots []string) Locator {
	return Locator{fileSystem: fileSystem, roots: append([]string{}, roots...)}
}

// Roots returns the search roots in order.
func (locator Locator) Roots() []string {
	return append([]string{}, locator.roots...)
}

// FileSystem exposes the backend files are opened from.
func (locator Locator) FileSystem() afero.Fs {
	return locator.fileSystem
}

// FileName returns the last segment of requestPath, or "" when there is none.
func FileName(requestPath string) string {
	cleaned := path.Clean("/" + requestPath)
	if cleaned == "/" {
		return ""
	}
	return path.Base(cleaned)
}

// Locate returns the first regular file named after requestPath. Roots are searched in order
// and each is walked in lexical order.
func (locator Locator) Locate(requestPath string) (Artifact, error) {
	fileName := FileName(requestPath)
	if fileName == "" {
		return Artifact{}, ErrNotFound
	}
	for _, root := range locator.roots {
		if info, statErr := locator.fileSystem.Stat(root); statErr != nil || !info.IsDir() {
			continue
		}
		var found Artifact
		walkErr := afero.Walk(locator.fileSystem, root, func(currentPath string, info os.FileInfo, err error) error {
			if err != nil {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.Name() != fileName || !info.Mode().IsRegular() {
				return nil
			}
			found = Artifact{Path: currentPath, ContentType: ContentType(currentPath), Size: info.Size()}
			return errStopWalk
		})
		if errors.Is(walkErr, errStopWalk) {
			return found, nil
		}
	}
	return Artifact{}, ErrNotFound
}

// Open opens a located artifact for reading.
func (locator Locator) Open(artifact Artifact) (afero.File, error) {
	return locator.fileSystem.Open(artifact.Path)
}

// ContentType infers a MIME type from the file extension.
func ContentType(filePath string) string {
	if contentType := mime.TypeByExtension(filepath.Ext(filePath)); contentType != "" {
		return contentType
	}
	return fallbackContentType
}
