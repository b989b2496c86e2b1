package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRootCommand(resources *applicationResources) *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   fmt.Sprintf("%s <domain[,domain...]>", defaultApplicationName),
		Short: "Temporarily impersonate domains on this machine",
		Long: "Generates a short-lived certificate authority, trusts it system wide, points the domains at this host, " +
			"and serves local artifacts for them until interrupted. Everything is undone on exit.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigurationFile(cmd); err != nil {
				return err
			}
			return applyLoggingConfiguration(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, args)
		},
	}

	rootCommand.PersistentFlags().String(flagNameConfigFile, "", "Path to configuration file")
	loggingFlags := pflag.NewFlagSet("logging", pflag.ContinueOnError)
	configureLoggingFlags(loggingFlags, resources.configurationManager)
	rootCommand.PersistentFlags().AddFlagSet(loggingFlags)

	sessionFlags := pflag.NewFlagSet("session", pflag.ContinueOnError)
	configureSessionFlags(sessionFlags, resources.configurationManager)
	rootCommand.PersistentFlags().AddFlagSet(sessionFlags)

	rootCommand.AddCommand(newCleanupCommand())
	rootCommand.AddCommand(newStatusCommand())

	return rootCommand
}

func configureLoggingFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.String(flagNameLoggingType, configurationManager.GetString(configKeyLogType), "Logging type (CONSOLE or JSON)")
	flagSet.String(flagNameLogFile, configurationManager.GetString(configKeyLogFile), "Also write logs to this rotated file")
	_ = configurationManager.BindPFlag(configKeyLogType, flagSet.Lookup(flagNameLoggingType))
	_ = configurationManager.BindPFlag(configKeyLogFile, flagSet.Lookup(flagNameLogFile))
}

func configureSessionFlags(flagSet *pflag.FlagSet, configurationManager *viper.Viper) {
	flagSet.String(flagNameBindAddress, configurationManager.GetString(configKeyListenBindAddress), "Specify bind address (all interfaces when empty)")
	flagSet.String(flagNameHTTPPort, configurationManager.GetString(configKeyListenHTTPPort), "Plaintext listener port")
	flagSet.String(flagNameHTTPSPort, configurationManager.GetString(configKeyListenHTTPSPort), "TLS listener port")
	flagSet.String(flagNameHostsFile, configurationManager.GetString(configKeyHostsPath), "Hosts file to override")
	flagSet.String(flagNameHostsAddress, configurationManager.GetString(configKeyHostsAddress), "Address the domains resolve to")
	flagSet.String(flagNameAnchorDirectory, configurationManager.GetString(configKeyTrustAnchorDirectory), "System trust anchor directory")
	flagSet.String(flagNameAssetDirectory, configurationManager.GetString(configKeyAssetsDirectory), "Additional directory searched for requested files")
	flagSet.Bool(flagNameNoStatusPage, false, "Disable the status page at /")
	flagSet.Int(flagNameAuthorityKeyBits, configurationManager.GetInt(configKeyCertificatesAuthorityBits), "RSA key size of the certificate authority")
	flagSet.Int(flagNameLeafKeyBits, configurationManager.GetInt(configKeyCertificatesLeafBits), "RSA key size of the leaf certificate")
	flagSet.Duration(flagNameValidity, configurationManager.GetDuration(configKeyCertificatesValidity), "Certificate validity period")
	_ = configurationManager.BindPFlag(configKeyListenBindAddress, flagSet.Lookup(flagNameBindAddress))
	_ = configurationManager.BindPFlag(configKeyListenHTTPPort, flagSet.Lookup(flagNameHTTPPort))
	_ = configurationManager.BindPFlag(configKeyListenHTTPSPort, flagSet.Lookup(flagNameHTTPSPort))
	_ = configurationManager.BindPFlag(configKeyHostsPath, flagSet.Lookup(flagNameHostsFile))
	_ = configurationManager.BindPFlag(configKeyHostsAddress, flagSet.Lookup(flagNameHostsAddress))
	_ = configurationManager.BindPFlag(configKeyTrustAnchorDirectory, flagSet.Lookup(flagNameAnchorDirectory))
	_ = configurationManager.BindPFlag(configKeyAssetsDirectory, flagSet.Lookup(flagNameAssetDirectory))
	_ = configurationManager.BindPFlag(configKeyCertificatesAuthorityBits, flagSet.Lookup(flagNameAuthorityKeyBits))
	_ = configurationManager.BindPFlag(configKeyCertificatesLeafBits, flagSet.Lookup(flagNameLeafKeyBits))
	_ = configurationManager.BindPFlag(configKeyCertificatesValidity, flagSet.Lookup(flagNameValidity))
}

func loadConfigurationFile(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager
	configFilePath, flagErr := cmd.Flags().GetString(flagNameConfigFile)
	if flagErr != nil {
		return fmt.Errorf("read config flag: %w", flagErr)
	}
	if configFilePath != "" {
		configurationManager.SetConfigFile(configFilePath)
	} else {
		configurationManager.AddConfigPath(resources.defaultConfigDirPath)
		configurationManager.SetConfigName(defaultConfigFileName)
		configurationManager.SetConfigType(defaultConfigFileType)
	}
	if readErr := configurationManager.ReadInConfig(); readErr != nil {
		if _, notFound := readErr.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("read configuration: %w", readErr)
		}
	}

	// --no-status-page inverts serve.status_page and only wins when given explicitly.
	if cmd.Flags().Changed(flagNameNoStatusPage) {
		disabled, boolErr := cmd.Flags().GetBool(flagNameNoStatusPage)
		if boolErr != nil {
			return fmt.Errorf("read %s flag: %w", flagNameNoStatusPage, boolErr)
		}
		configurationManager.Set(configKeyServeStatusPage, !disabled)
	}
	return nil
}

func applyLoggingConfiguration(cmd *cobra.Command) error {
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	configurationManager := resources.configurationManager
	return resources.updateLogger(configurationManager.GetString(configKeyLogType), configurationManager.GetString(configKeyLogFile))
}
