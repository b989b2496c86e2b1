package hosts

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHostsPath = "/etc/hosts"

func newTestManager(t *testing.T, content string) (*Manager, afero.Fs) {
	t.Helper()
	fileSystem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fileSystem, testHostsPath, []byte(content), 0o644))
	return NewManager(fileSystem, Configuration{Path: testHostsPath}), fileSystem
}

func readHosts(t *testing.T, fileSystem afero.Fs) string {
	t.Helper()
	content, err := afero.ReadFile(fileSystem, testHostsPath)
	require.NoError(t, err)
	return string(content)
}

func TestAddThenRemoveAllRestoresOriginalBytes(t *testing.T) {
	testCases := []struct {
		name     string
		original string
	}{
		{name: "typical file", original: "127.0.0.1 localhost\n::1 localhost ip6-localhost\n"},
		{name: "empty file", original: ""},
		{name: "crlf terminators", original: "127.0.0.1 localhost\r\n# comment\r\n"},
		{name: "blank lines and comments", original: "# header\n\n10.0.0.1 intranet # note\n\n"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			manager, fileSystem := newTestManager(t, testCase.original)

			require.NoError(t, manager.Add([]string{"example.test", "other.test"}))
			added := readHosts(t, fileSystem)
			assert.Equal(t, testCase.original+"127.0.0.1 example.test #mimikry-entry\n127.0.0.1 other.test #mimikry-entry\n", added)

			removed, err := manager.RemoveAll()
			require.NoError(t, err)
			assert.Equal(t, 2, removed)
			assert.Equal(t, testCase.original, readHosts(t, fileSystem))
		})
	}
}

func TestAddStartsOnFreshLineWhenFileLacksTrailingNewline(t *testing.T) {
	manager, fileSystem := newTestManager(t, "127.0.0.1 localhost")

	require.NoError(t, manager.Add([]string{"example.test"}))
	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 example.test #mimikry-entry\n", readHosts(t, fileSystem))

	_, err := manager.RemoveAll()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", readHosts(t, fileSystem))
}

func TestAddUsesConfiguredAddress(t *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fileSystem, testHostsPath, nil, 0o644))
	manager := NewManager(fileSystem, Configuration{Path: testHostsPath, Address: "192.168.1.20"})

	require.NoError(t, manager.Add([]string{"example.test"}))
	assert.Equal(t, "192.168.1.20 example.test #mimikry-entry\n", readHosts(t, fileSystem))
}

func TestAddRequiresExistingFile(t *testing.T) {
	manager := NewManager(afero.NewMemMapFs(), Configuration{Path: testHostsPath})
	err := manager.Add([]string{"example.test"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRemoveAllWithoutTaggedLinesDoesNotWrite(t *testing.T) {
	memory := afero.NewMemMapFs()
	original := "127.0.0.1 localhost\n# mimikry-entry is mentioned here but not at the end\n"
	require.NoError(t, afero.WriteFile(memory, testHostsPath, []byte(original), 0o644))
	manager := NewManager(afero.NewReadOnlyFs(memory), Configuration{Path: testHostsPath})

	removed, err := manager.RemoveAll()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, original, readHosts(t, memory))
}

func TestDoubleAddIsRemovedByOneRemoveAll(t *testing.T) {
	original := "127.0.0.1 localhost\n"
	manager, fileSystem := newTestManager(t, original)

	require.NoError(t, manager.Add([]string{"example.test"}))
	require.NoError(t, manager.Add([]string{"example.test"}))

	removed, err := manager.RemoveAll()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, original, readHosts(t, fileSystem))

	removed, err = manager.RemoveAll()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRemoveAllMatchesTagWithTrailingWhitespace(t *testing.T) {
	manager, fileSystem := newTestManager(t, "127.0.0.1 localhost\n127.0.0.1 stale.test #mimikry-entry   \n")

	removed, err := manager.RemoveAll()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "127.0.0.1 localhost\n", readHosts(t, fileSystem))
}

func TestRemoveAllPreservesPermissions(t *testing.T) {
	fileSystem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fileSystem, testHostsPath, []byte("127.0.0.1 a.test #mimikry-entry\n"), 0o640))
	require.NoError(t, fileSystem.Chmod(testHostsPath, 0o640))
	manager := NewManager(fileSystem, Configuration{Path: testHostsPath})

	_, err := manager.RemoveAll()
	require.NoError(t, err)
	fileInfo, statErr := fileSystem.Stat(testHostsPath)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o640), fileInfo.Mode().Perm())
}

type renameRefusingFs struct {
	afero.Fs
}

func (fileSystem renameRefusingFs) Rename(oldname string, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: errors.New("device or resource busy")}
}

func TestRemoveAllFallsBackToInPlaceWrite(t *testing.T) {
	memory := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memory, testHostsPath, []byte("127.0.0.1 localhost\n127.0.0.1 a.test #mimikry-entry\n"), 0o644))
	manager := NewManager(renameRefusingFs{Fs: memory}, Configuration{Path: testHostsPath})

	removed, err := manager.RemoveAll()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, "127.0.0.1 localhost\n", readHosts(t, memory))

	leftovers, listErr := afero.Glob(memory, "/etc/.mimikry-hosts-*")
	require.NoError(t, listErr)
	assert.Empty(t, leftovers)
}

func TestEntriesListsTaggedLines(t *testing.T) {
	manager, _ := newTestManager(t, "127.0.0.1 localhost\n")
	require.NoError(t, manager.Add([]string{"example.test", "cdn.example.test"}))

	entries, err := manager.Entries()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Address: "127.0.0.1", Domain: "example.test"},
		{Address: "127.0.0.1", Domain: "cdn.example.test"},
	}, entries)
}
