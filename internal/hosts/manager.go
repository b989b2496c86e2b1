// Package hosts maintains the tagged override lines in the static name resolution file.
package hosts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	// DefaultPath is the static resolution file on Linux.
	DefaultPath = "/etc/hosts"
	// DefaultAddress is where impersonated domains resolve.
	DefaultAddress = "127.0.0.1"
	// EntryTag marks every line this package owns. Removal matches on it alone.
	EntryTag = "#mimikry-entry"

	temporaryFilePattern = ".mimikry-hosts-*"
)

// Entry is one tagged override line.
type Entry struct {
	Address string
	Domain  string
}

// Configuration selects the mapping file and the address domains resolve to.
type Configuration struct {
	Path    string
	Address string
}

// Manager adds and removes tagged lines. Untagged lines are never altered.
type Manager struct {
	fileSystem    afero.Fs
	configuration Configuration
}

// NewManager constructs a Manager over fileSystem.
func NewManager(fileSystem afero.Fs, configuration Configuration) *Manager {
	if configuration.Path == "" {
		configuration.Path = DefaultPath
	}
	if configuration.Address == "" {
		configuration.Address = DefaultAddress
	}
	return &Manager{fileSystem: fileSystem, configuration: configuration}
}

// Path returns the mapping file location.
func (manager *Manager) Path() string {
	return manager.configuration.Path
}

// Add appends one tagged line per domain in a single write. The file must already exist.
func (manager *Manager) Add(domains []string) error {
	if len(domains) == 0 {
		return nil
	}
	existing, readErr := afero.ReadFile(manager.fileSystem, manager.configuration.Path)
	if readErr != nil {
		return fmt.Errorf("read %s: %w", manager.configuration.Path, readErr)
	}

	var block strings.Builder
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		block.WriteByte('\n')
	}
	for _, domain := range domains {
		block.WriteString(formatEntry(manager.configuration.Address, domain))
	}

	file, openErr := manager.fileSystem.OpenFile(manager.configuration.Path, os.O_WRONLY|os.O_APPEND, 0)
	if openErr != nil {
		return fmt.Errorf("open %s for append: %w", manager.configuration.Path, openErr)
	}
	_, writeErr := file.WriteString(block.String())
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("append to %s: %w", manager.configuration.Path, err)
	}
	return nil
}

// RemoveAll drops every tagged line and returns how many were dropped. A file without
// tagged lines is left untouched.
func (manager *Manager) RemoveAll() (int, error) {
	path := manager.configuration.Path
	content, readErr := afero.ReadFile(manager.fileSystem, path)
	if readErr != nil {
		return 0, fmt.Errorf("read %s: %w", path, readErr)
	}

	kept := make([]byte, 0, len(content))
	removed := 0
	for _, line := range bytes.SplitAfter(content, []byte("\n")) {
		if isTagged(line) {
			removed++
			continue
		}
		kept = append(kept, line...)
	}
	if removed == 0 {
		return 0, nil
	}

	fileInfo, statErr := manager.fileSystem.Stat(path)
	if statErr != nil {
		return 0, fmt.Errorf("stat %s: %w", path, statErr)
	}
	if err := manager.replace(path, kept, fileInfo.Mode().Perm()); err != nil {
		return 0, err
	}
	return removed, nil
}

// Entries lists the tagged lines currently present.
func (manager *Manager) Entries() ([]Entry, error) {
	content, readErr := afero.ReadFile(manager.fileSystem, manager.configuration.Path)
	if readErr != nil {
		return nil, fmt.Errorf("read %s: %w", manager.configuration.Path, readErr)
	}
	var entries []Entry
	for _, line := range bytes.SplitAfter(content, []byte("\n")) {
		if !isTagged(line) {
			continue
		}
		fields := strings.Fields(string(line))
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, Entry{Address: fields[0], Domain: fields[1]})
	}
	return entries, nil
}

// replace writes content through a sibling temporary file and a rename. Bind-mounted
// files refuse the rename, in which case the file is truncated and written in place.
func (manager *Manager) replace(path string, content []byte, permissions os.FileMode) error {
	temporaryFile, createErr := afero.TempFile(manager.fileSystem, filepath.Dir(path), temporaryFilePattern)
	if createErr == nil {
		temporaryPath := temporaryFile.Name()
		_, writeErr := temporaryFile.Write(content)
		closeErr := temporaryFile.Close()
		chmodErr := manager.fileSystem.Chmod(temporaryPath, permissions)
		if err := errors.Join(writeErr, closeErr, chmodErr); err == nil {
			if renameErr := manager.fileSystem.Rename(temporaryPath, path); renameErr == nil {
				return nil
			}
		}
		_ = manager.fileSystem.Remove(temporaryPath)
	}

	file, openErr := manager.fileSystem.OpenFile(path, os.O_WRONLY|os.O_TRUNC, permissions)
	if openErr != nil {
		return fmt.Errorf("rewrite %s: %w", path, openErr)
	}
	_, writeErr := file.Write(content)
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("rewrite %s: %w", path, err)
	}
	return nil
}

func formatEntry(address string, domain string) string {
	return address + " " + domain + " " + EntryTag + "\n"
}

func isTagged(line []byte) bool {
	return bytes.HasSuffix(bytes.TrimSpace(line), []byte(EntryTag))
}
