package truststore

import (
	"github.com/tyemirov/mimikry/internal/certificates"
)

// Inspection describes what an earlier run may have left behind.
type Inspection struct {
	AnchorPath    string
	AnchorPresent bool
	Databases     []DatabaseInspection
}

// DatabaseInspection is the label status of one NSS database.
type DatabaseInspection struct {
	Path         string
	LabelPresent bool
	Err          error
}

// Inspector reads trust store state without changing it.
type Inspector struct {
	installer *systemInstaller
}

// NewInspector constructs an Inspector for the same locations NewInstaller would manage.
func NewInspector(fileSystem certificates.FileSystem, configuration Configuration) Inspector {
	return Inspector{installer: newSystemInstaller(nil, fileSystem, configuration)}
}

// Inspect reports the anchor file and the label in every known NSS database.
func (inspector Inspector) Inspect() (Inspection, error) {
	configuration := inspector.installer.configuration
	inspection := Inspection{AnchorPath: configuration.AnchorPath()}
	present, existsErr := inspector.installer.fileSystem.FileExists(inspection.AnchorPath)
	if existsErr != nil {
		return Inspection{}, existsErr
	}
	inspection.AnchorPresent = present

	for _, database := range inspector.installer.NSSDatabases() {
		labelPresent, probeErr := inspector.installer.probeLabel(database, configuration.CertificateLabel)
		inspection.Databases = append(inspection.Databases, DatabaseInspection{
			Path:         database,
			LabelPresent: labelPresent,
			Err:          probeErr,
		})
	}
	return inspection, nil
}

// Clean reports whether nothing labelled or anchored remains.
func (inspection Inspection) Clean() bool {
	if inspection.AnchorPresent {
		return false
	}
	for _, database := range inspection.Databases {
		if database.LabelPresent {
			return false
		}
	}
	return true
}
