package truststore

import (
	"context"
	"fmt"
	"path/filepath"
)

const (
	nssDatabaseRelativePath  = ".pki/nssdb"
	nssDatabaseFileName      = "cert9.db"
	nssDatabaseURLPrefix     = "sql:"
	nssTrustFlagsCertificate = "C,,"
)

var defaultFirefoxProfileRoots = []string{
	".mozilla/firefox",
	"snap/firefox/common/.mozilla/firefox",
}

// NSSDatabases lists the NSS databases owned by the real user. The shared Chromium database is
// always included; Firefox profiles are included only when they already hold a cert9.db.
func (installer *systemInstaller) NSSDatabases() []string {
	homeDirectory := installer.configuration.RealUserHomeDirectory
	if homeDirectory == "" {
		return nil
	}
	databases := []string{filepath.Join(homeDirectory, nssDatabaseRelativePath)}

	profileRoots := installer.configuration.FirefoxProfileDirectories
	if len(profileRoots) == 0 {
		for _, relativeRoot := range defaultFirefoxProfileRoots {
			profileRoots = append(profileRoots, filepath.Join(homeDirectory, relativeRoot))
		}
	}
	for _, profileRoot := range profileRoots {
		profiles, listErr := installer.fileSystem.ListDirectories(profileRoot)
		if listErr != nil {
			continue
		}
		for _, profile := range profiles {
			profileDirectory := filepath.Join(profileRoot, profile)
			exists, existsErr := installer.fileSystem.FileExists(filepath.Join(profileDirectory, nssDatabaseFileName))
			if existsErr == nil && exists {
				databases = append(databases, profileDirectory)
			}
		}
	}
	return databases
}

func (installer *systemInstaller) importIntoBrowserDatabases(ctx context.Context, certificatePEM []byte) (report Report) {
	databases := installer.NSSDatabases()
	if len(databases) == 0 {
		return report
	}
	if !installer.certutilAvailable() {
		report.warn(fmt.Errorf("%s not found; browser databases were not updated", commandNameCertutil))
		return report
	}

	temporaryPath, writeErr := installer.fileSystem.WriteTemporaryFile(installer.configuration.TemporaryDirectory, temporaryCertificatePattern, certificatePEM)
	if writeErr != nil {
		report.warn(fmt.Errorf("stage certificate for %s: %w", commandNameCertutil, writeErr))
		return report
	}
	defer func() {
		if removeErr := installer.fileSystem.Remove(temporaryPath); removeErr != nil {
			report.warn(fmt.Errorf("remove staged certificate %s: %w", temporaryPath, removeErr))
		}
	}()

	for _, database := range databases {
		arguments := []string{
			"-A",
			"-n", installer.configuration.CertificateLabel,
			"-t", nssTrustFlagsCertificate,
			"-i", temporaryPath,
			"-d", nssDatabaseURLPrefix + database,
		}
		if runErr := installer.commandRunner.Run(ctx, commandNameCertutil, arguments); runErr != nil {
			report.warn(fmt.Errorf("import into nss database %s: %w", database, runErr))
		}
	}
	return report
}

// removeFromBrowserDatabases deletes the label from every database. A failed delete is only worth
// a warning when the label is still there or the database cannot be read.
func (installer *systemInstaller) removeFromBrowserDatabases(ctx context.Context) Report {
	var report Report
	databases := installer.NSSDatabases()
	certutilAvailable := len(databases) > 0 && installer.certutilAvailable()

	for _, database := range databases {
		var deleteErr error
		if certutilAvailable {
			arguments := []string{
				"-D",
				"-n", installer.configuration.CertificateLabel,
				"-d", nssDatabaseURLPrefix + database,
			}
			deleteErr = installer.commandRunner.Run(ctx, commandNameCertutil, arguments)
			if deleteErr == nil {
				continue
			}
		}

		present, probeErr := installer.probeLabel(database, installer.configuration.CertificateLabel)
		switch {
		case probeErr != nil:
			report.warn(fmt.Errorf("inspect nss database %s: %w", database, probeErr))
		case present && deleteErr != nil:
			report.warn(fmt.Errorf("remove %q from nss database %s: %w", installer.configuration.CertificateLabel, database, deleteErr))
		case present:
			report.warn(fmt.Errorf("%q remains in nss database %s; %s is not installed", installer.configuration.CertificateLabel, database, commandNameCertutil))
		}
	}
	return report
}
