package artifacts

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, fileSystem afero.Fs, filePath string, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fileSystem, filePath, []byte(content), 0o644))
}

func TestFileName(t *testing.T) {
	testCases := []struct {
		requestPath string
		expected    string
	}{
		{requestPath: "/", expected: ""},
		{requestPath: "", expected: ""},
		{requestPath: "/setup.exe", expected: "setup.exe"},
		{requestPath: "/releases/v2/setup.exe", expected: "setup.exe"},
		{requestPath: "/releases/../setup.exe", expected: "setup.exe"},
		{requestPath: "/folder/", expected: "folder"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.requestPath, func(t *testing.T) {
			assert.Equal(t, testCase.expected, FileName(testCase.requestPath))
		})
	}
}

func TestSearchRoots(t *testing.T) {
	assert.Equal(t, []string{"/media"}, SearchRoots("", ""))
	assert.Equal(t, []string{"/home/alice/Downloads", "/media", "/srv/assets"}, SearchRoots("/home/alice", "/srv/assets"))
}

func TestLocateFirstRootWins(t *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeArtifact(t, fileSystem, "/home/alice/Downloads/nested/deeper/logo.png", "downloads")
	writeArtifact(t, fileSystem, "/media/usb/logo.png", "media")
	writeArtifact(t, fileSystem, "/media/usb/firmware.bin", "firmware")
	locator := NewLocator(fileSystem, SearchRoots("/home/alice", "/srv/assets"))

	artifact, err := locator.Locate("/static/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/Downloads/nested/deeper/logo.png", artifact.Path)
	assert.Equal(t, "image/png", artifact.ContentType)
	assert.Equal(t, int64(len("downloads")), artifact.Size)

	artifact, err = locator.Locate("/firmware.bin")
	require.NoError(t, err)
	assert.Equal(t, "/media/usb/firmware.bin", artifact.Path)

	file, openErr := locator.Open(artifact)
	require.NoError(t, openErr)
	defer file.Close()
	content, readErr := io.ReadAll(file)
	require.NoError(t, readErr)
	assert.Equal(t, "firmware", string(content))
}

func TestLocateUsesLexicalOrderWithinRoot(t *testing.T) {
	fileSystem := afero.NewMemMapFs()
	writeArtifact(t, fileSystem, "/srv/assets/b/data.zzz", "b")
	writeArtifact(t, fileSystem, "/srv/assets/a/data.zzz", "a")
	locator := NewLocator(fileSystem, []string{"/srv/assets"})

	artifact, err := locator.Locate("/data.zzz")
	require.NoError(t, err)
	assert.Equal(t, "/srv/assets/a/data.zzz", artifact.Path)
	assert.Equal(t, "application/octet-stream", artifact.ContentType)
}

func TestLocateNotFound(t *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(t, fileSystem.MkdirAll("/media/usb/wanted.txt", 0o755))
	locator := NewLocator(fileSystem, []string{"/missing", "/media"})

	for _, requestPath := range []string{"/", "/wanted.txt", "/absent.txt"} {
		_, err := locator.Locate(requestPath)
		assert.ErrorIs(t, err, ErrNotFound, requestPath)
	}
}
