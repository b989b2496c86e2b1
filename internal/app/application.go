package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/tyemirov/mimikry/internal/artifacts"
	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/hosts"
	"github.com/tyemirov/mimikry/internal/privileges"
	"github.com/tyemirov/mimikry/pkg/logging"
)

type contextKey string

const (
	contextKeyApplicationResources contextKey = "application-resources"

	defaultConfigFileName  = "config"
	defaultConfigFileType  = "yaml"
	defaultApplicationName = "mimikry"
	defaultBindAddress     = ""
	defaultHTTPPort        = "80"
	defaultHTTPSPort       = "443"

	flagNameConfigFile       = "config"
	flagNameLoggingType      = "log-type"
	flagNameLogFile          = "log-file"
	flagNameBindAddress      = "bind"
	flagNameHTTPPort         = "http-port"
	flagNameHTTPSPort        = "https-port"
	flagNameHostsFile        = "hosts-file"
	flagNameHostsAddress     = "hosts-address"
	flagNameAnchorDirectory  = "anchor-dir"
	flagNameAssetDirectory   = "asset-dir"
	flagNameNoStatusPage     = "no-status-page"
	flagNameAuthorityKeyBits = "ca-key-bits"
	flagNameLeafKeyBits      = "leaf-key-bits"
	flagNameValidity         = "validity"

	configKeyListenBindAddress         = "listen.bind_address"
	configKeyListenHTTPPort            = "listen.http_port"
	configKeyListenHTTPSPort           = "listen.https_port"
	configKeyHostsPath                 = "hosts.path"
	configKeyHostsAddress              = "hosts.address"
	configKeyTrustAnchorDirectory      = "trust.anchor_directory"
	configKeyTrustRefreshCommand       = "trust.refresh_command"
	configKeyTrustLabel                = "trust.label"
	configKeyCertificatesAuthorityBits = "certificates.authority_key_bits"
	configKeyCertificatesLeafBits      = "certificates.leaf_key_bits"
	configKeyCertificatesValidity      = "certificates.validity"
	configKeyAssetsDirectory           = "assets.directory"
	configKeyServeStatusPage           = "serve.status_page"
	configKeyLogType                   = "log.type"
	configKeyLogFile                   = "log.file"
	environmentVariableAssetsDirectory = "MIMIKRY_ASSETS_DIRECTORY"
	logMessageFailedInitializeLogger   = "failed to initialize logger"
	logMessageResolveUserConfigDir     = "resolve user config directory"
	logMessageCommandExecutionFailed   = "command execution failed"
)

// systemAccess is what the commands need from the machine. Tests replace it wholesale.
type systemAccess struct {
	fileSystem       afero.Fs
	commandRunner    certificates.CommandRunner
	privileges       privilegeSource
	randomnessSource io.Reader
	clock            certificates.Clock
}

type privilegeSource interface {
	CheckElevated() error
	RealUser() (privileges.RealUser, bool)
}

func newOperatingSystemAccess() systemAccess {
	return systemAccess{
		fileSystem:       afero.NewOsFs(),
		commandRunner:    certificates.NewExecutableRunner(),
		privileges:       privileges.NewOperatingSystemChecker(),
		randomnessSource: rand.Reader,
		clock:            certificates.NewSystemClock(),
	}
}

type applicationResources struct {
	configurationManager *viper.Viper
	loggingService       *logging.Service
	defaultConfigDirPath string
	system               systemAccess
}

func (resources *applicationResources) updateLogger(loggingType string, logFilePath string) error {
	normalizedType, err := logging.NormalizeType(loggingType)
	if err != nil {
		return err
	}
	if logFilePath == "" && resources.loggingService != nil && resources.loggingService.Type() == normalizedType {
		return nil
	}
	var service *logging.Service
	if logFilePath != "" {
		service, err = logging.NewServiceWithFile(normalizedType, logging.FileConfiguration{Path: logFilePath})
	} else {
		service, err = logging.NewService(normalizedType)
	}
	if err != nil {
		return err
	}
	if resources.loggingService != nil {
		_ = resources.loggingService.Sync()
	}
	resources.loggingService = service
	return nil
}

func newConfigurationManager() *viper.Viper {
	configurationManager := viper.New()
	configurationManager.SetEnvPrefix(strings.ToUpper(defaultApplicationName))
	configurationManager.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configurationManager.AutomaticEnv()
	_ = configurationManager.BindEnv(configKeyAssetsDirectory, artifacts.EnvironmentAssetDirectory, environmentVariableAssetsDirectory)

	defaultChain := certificates.DefaultChainConfiguration()
	configurationManager.SetDefault(configKeyListenBindAddress, defaultBindAddress)
	configurationManager.SetDefault(configKeyListenHTTPPort, defaultHTTPPort)
	configurationManager.SetDefault(configKeyListenHTTPSPort, defaultHTTPSPort)
	configurationManager.SetDefault(configKeyHostsPath, hosts.DefaultPath)
	configurationManager.SetDefault(configKeyHostsAddress, hosts.DefaultAddress)
	configurationManager.SetDefault(configKeyTrustAnchorDirectory, certificates.DefaultSystemAnchorDirectory)
	configurationManager.SetDefault(configKeyTrustRefreshCommand, certificates.DefaultRefreshCommand)
	configurationManager.SetDefault(configKeyTrustLabel, certificates.DefaultTrustLabel)
	configurationManager.SetDefault(configKeyCertificatesAuthorityBits, defaultChain.Authority.RSAKeyBitSize)
	configurationManager.SetDefault(configKeyCertificatesLeafBits, defaultChain.Leaf.LeafPrivateKeyBitSize)
	configurationManager.SetDefault(configKeyCertificatesValidity, defaultChain.Authority.CertificateValidityDuration)
	configurationManager.SetDefault(configKeyAssetsDirectory, "")
	configurationManager.SetDefault(configKeyServeStatusPage, true)
	configurationManager.SetDefault(configKeyLogType, logging.TypeConsole)
	configurationManager.SetDefault(configKeyLogFile, "")
	return configurationManager
}

// Execute runs the CLI using the provided context and arguments, returning an exit code.
func Execute(ctx context.Context, arguments []string) int {
	initialService, err := logging.NewService(logging.TypeConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", logMessageFailedInitializeLogger, err)
		return 1
	}

	userConfigDir, userConfigErr := os.UserConfigDir()
	if userConfigErr != nil {
		initialService.Error(logMessageResolveUserConfigDir, userConfigErr)
		return 1
	}

	resources := &applicationResources{
		configurationManager: newConfigurationManager(),
		loggingService:       initialService,
		defaultConfigDirPath: filepath.Join(userConfigDir, defaultApplicationName),
		system:               newOperatingSystemAccess(),
	}
	return execute(ctx, resources, arguments)
}

func execute(ctx context.Context, resources *applicationResources, arguments []string) int {
	defer func() {
		if resources.loggingService != nil {
			_ = resources.loggingService.Sync()
		}
	}()

	rootCommand := newRootCommand(resources)
	baseContext := context.WithValue(ctx, contextKeyApplicationResources, resources)
	rootCommand.SetContext(baseContext)
	rootCommand.SetArgs(arguments)

	if executionErr := rootCommand.Execute(); executionErr != nil {
		resources.loggingService.Error(logMessageCommandExecutionFailed, executionErr)
		return 1
	}
	return 0
}
