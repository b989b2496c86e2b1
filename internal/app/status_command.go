package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/certificates/truststore"
	"github.com/tyemirov/mimikry/internal/hosts"
)

type statusReport struct {
	Clean      bool                `yaml:"clean"`
	HostsFile  string              `yaml:"hosts_file"`
	Entries    []statusHostsEntry  `yaml:"entries"`
	TrustStore statusTrustStore    `yaml:"trust_anchor"`
	Databases  []statusNSSDatabase `yaml:"nss_databases"`
}

type statusHostsEntry struct {
	Address string `yaml:"address"`
	Domain  string `yaml:"domain"`
}

type statusTrustStore struct {
	Path    string `yaml:"path"`
	Present bool   `yaml:"present"`
}

type statusNSSDatabase struct {
	Path         string `yaml:"path"`
	LabelPresent bool   `yaml:"label_present"`
	Error        string `yaml:"error,omitempty"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report what an earlier run left on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			report, err := buildStatusReport(resources)
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if encodeErr := encoder.Encode(report); encodeErr != nil {
				return fmt.Errorf("encode status: %w", encodeErr)
			}
			return encoder.Close()
		},
	}
}

func buildStatusReport(resources *applicationResources) (statusReport, error) {
	settings, err := loadSessionSettings(resources.configurationManager)
	if err != nil {
		return statusReport{}, err
	}
	system := resources.system
	homeDirectory := ""
	if realUser, found := system.privileges.RealUser(); found {
		homeDirectory = realUser.HomeDirectory
	}

	hostsManager := hosts.NewManager(system.fileSystem, settings.hostsConfiguration())
	entries, err := hostsManager.Entries()
	if err != nil {
		return statusReport{}, fmt.Errorf("read hosts file: %w", err)
	}
	inspector := truststore.NewInspector(certificates.NewFileSystem(system.fileSystem), settings.trustConfiguration(homeDirectory))
	inspection, err := inspector.Inspect()
	if err != nil {
		return statusReport{}, fmt.Errorf("inspect trust store: %w", err)
	}

	report := statusReport{
		Clean:      len(entries) == 0 && inspection.Clean(),
		HostsFile:  hostsManager.Path(),
		Entries:    []statusHostsEntry{},
		TrustStore: statusTrustStore{Path: inspection.AnchorPath, Present: inspection.AnchorPresent},
		Databases:  []statusNSSDatabase{},
	}
	for _, entry := range entries {
		report.Entries = append(report.Entries, statusHostsEntry{Address: entry.Address, Domain: entry.Domain})
	}
	for _, database := range inspection.Databases {
		databaseStatus := statusNSSDatabase{Path: database.Path, LabelPresent: database.LabelPresent}
		if database.Err != nil {
			databaseStatus.Error = database.Err.Error()
		}
		report.Databases = append(report.Databases, databaseStatus)
	}
	return report, nil
}
