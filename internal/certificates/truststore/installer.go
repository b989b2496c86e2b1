package truststore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"

	"github.com/tyemirov/mimikry/internal/certificates"
)

const (
	commandNameCertutil          = "certutil"
	temporaryCertificatePattern  = "mimikry-ca-*.crt"
	defaultAnchorFilePermissions = 0o644
	defaultAnchorDirectoryMode   = 0o755
)

// Installer provisions and removes the impersonation authority from trust stores.
type Installer interface {
	Install(ctx context.Context, certificatePEM []byte) (Report, error)
	Uninstall(ctx context.Context) (Report, error)
}

// Report carries soft failures. A warning never changes whether an operation succeeded.
type Report struct {
	Warnings []error
}

func (report *Report) warn(err error) {
	report.Warnings = append(report.Warnings, err)
}

// Configuration controls where the authority is installed. Every location is derived
// from these values, so removal works without knowing what a previous process did.
type Configuration struct {
	CertificateLabel            string
	SystemAnchorDirectory       string
	SystemAnchorFileName        string
	SystemAnchorFilePermissions fs.FileMode
	RefreshCommand              string
	RefreshFreshArgument        string
	TemporaryDirectory          string
	RealUserHomeDirectory       string
	FirefoxProfileDirectories   []string
}

// AnchorPath is the system trust anchor file.
func (configuration Configuration) AnchorPath() string {
	return filepath.Join(configuration.SystemAnchorDirectory, configuration.SystemAnchorFileName)
}

func (configuration Configuration) withDefaults() Configuration {
	if configuration.CertificateLabel == "" {
		configuration.CertificateLabel = certificates.DefaultTrustLabel
	}
	if configuration.SystemAnchorDirectory == "" {
		configuration.SystemAnchorDirectory = certificates.DefaultSystemAnchorDirectory
	}
	if configuration.SystemAnchorFileName == "" {
		configuration.SystemAnchorFileName = certificates.DefaultAnchorFileName
	}
	if configuration.SystemAnchorFilePermissions == 0 {
		configuration.SystemAnchorFilePermissions = defaultAnchorFilePermissions
	}
	if configuration.RefreshCommand == "" {
		configuration.RefreshCommand = certificates.DefaultRefreshCommand
	}
	if configuration.RefreshFreshArgument == "" {
		configuration.RefreshFreshArgument = certificates.DefaultRefreshFreshArgument
	}
	return configuration
}

// NewInstaller constructs the Installer for the system anchor directory and the real user's NSS databases.
func NewInstaller(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) (Installer, error) {
	if commandRunner == nil {
		return nil, errors.New("command runner is required")
	}
	if fileSystem == nil {
		return nil, errors.New("file system is required")
	}
	return newSystemInstaller(commandRunner, fileSystem, configuration), nil
}

type systemInstaller struct {
	commandRunner certificates.CommandRunner
	fileSystem    certificates.FileSystem
	configuration Configuration
	lookPath      func(file string) (string, error)
	probeLabel    func(databaseDirectory string, label string) (bool, error)
}

func newSystemInstaller(commandRunner certificates.CommandRunner, fileSystem certificates.FileSystem, configuration Configuration) *systemInstaller {
	return &systemInstaller{
		commandRunner: commandRunner,
		fileSystem:    fileSystem,
		configuration: configuration.withDefaults(),
		lookPath:      exec.LookPath,
		probeLabel:    ProbeLabel,
	}
}

// Install writes the anchor file and refreshes the system bundle. A refresh failure is fatal
// because clients would not trust the authority. Browser database import is best effort.
func (installer *systemInstaller) Install(ctx context.Context, certificatePEM []byte) (Report, error) {
	if len(certificatePEM) == 0 {
		return Report{}, errors.New("certificate is required")
	}
	if err := installer.fileSystem.EnsureDirectory(installer.configuration.SystemAnchorDirectory, defaultAnchorDirectoryMode); err != nil {
		return Report{}, fmt.Errorf("ensure system trust anchor directory: %w", err)
	}
	anchorPath := installer.configuration.AnchorPath()
	if err := installer.fileSystem.WriteFile(anchorPath, certificatePEM, installer.configuration.SystemAnchorFilePermissions); err != nil {
		return Report{}, fmt.Errorf("write system trust anchor %s: %w", anchorPath, err)
	}
	if err := installer.commandRunner.Run(ctx, installer.configuration.RefreshCommand, nil); err != nil {
		return Report{}, fmt.Errorf("refresh system trust store: %w", err)
	}
	return installer.importIntoBrowserDatabases(ctx, certificatePEM), nil
}

// Uninstall deletes the anchor file, rebuilds the bundle from scratch, and removes the browser
// entries by label. It is safe to call when Install never ran.
func (installer *systemInstaller) Uninstall(ctx context.Context) (Report, error) {
	var failures []error
	anchorPath := installer.configuration.AnchorPath()
	if err := installer.fileSystem.Remove(anchorPath); err != nil {
		failures = append(failures, fmt.Errorf("remove system trust anchor %s: %w", anchorPath, err))
	}
	if err := installer.commandRunner.Run(ctx, installer.configuration.RefreshCommand, []string{installer.configuration.RefreshFreshArgument}); err != nil {
		failures = append(failures, fmt.Errorf("rebuild system trust store: %w", err))
	}
	report := installer.removeFromBrowserDatabases(ctx)
	return report, errors.Join(failures...)
}

func (installer *systemInstaller) certutilAvailable() bool {
	_, err := installer.lookPath(commandNameCertutil)
	return err == nil
}
