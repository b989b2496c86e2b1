package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tyemirov/mimikry/internal/artifacts"
	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/certificates/truststore"
	"github.com/tyemirov/mimikry/internal/hosts"
	"github.com/tyemirov/mimikry/internal/server"
	"github.com/tyemirov/mimikry/internal/serverdetails"
	"github.com/tyemirov/mimikry/internal/session"
	"github.com/tyemirov/mimikry/pkg/logging"
)

const (
	logFieldSignal           = "signal"
	logFieldRealUser         = "real_user"
	logMessageReceivedSignal = "received signal"
	logMessageRealUser       = "resolved invoking user"
	logMessageNoRealUser     = "invoking user unknown; user NSS databases and Downloads are skipped"
)

// sessionAssembly holds the collaborators built for one invocation.
type sessionAssembly struct {
	homeDirectory string
	orchestrator  *session.Orchestrator
}

func runSession(cmd *cobra.Command, args []string) error {
	domains, err := session.ParseDomainSet(args[0])
	if err != nil {
		return err
	}
	resources, err := getApplicationResources(cmd)
	if err != nil {
		return err
	}
	assembly, err := assembleSession(resources)
	if err != nil {
		return err
	}

	sessionContext, cancel := createSignalContext(cmd.Context(), resources.loggingService)
	defer cancel()
	return assembly.orchestrator.Run(sessionContext, domains)
}

func assembleSession(resources *applicationResources) (sessionAssembly, error) {
	settings, err := loadSessionSettings(resources.configurationManager)
	if err != nil {
		return sessionAssembly{}, err
	}
	system := resources.system
	loggingService := resources.loggingService

	assembly := sessionAssembly{}
	if realUser, found := system.privileges.RealUser(); found {
		assembly.homeDirectory = realUser.HomeDirectory
		loggingService.Info(logMessageRealUser, logging.String(logFieldRealUser, realUser.Name))
	} else {
		loggingService.Info(logMessageNoRealUser)
	}

	installer, err := truststore.NewInstaller(system.commandRunner, certificates.NewFileSystem(system.fileSystem), settings.trustConfiguration(assembly.homeDirectory))
	if err != nil {
		return sessionAssembly{}, err
	}
	locator := artifacts.NewLocator(system.fileSystem, artifacts.SearchRoots(assembly.homeDirectory, settings.AssetDirectory))
	impersonationServer := server.NewImpersonationServer(loggingService, serverdetails.NewServingAddressFormatter(), locator)
	listener := session.ListenerFunc(func(ctx context.Context, certificate tls.Certificate, domains []string) error {
		return impersonationServer.Serve(ctx, server.ImpersonationConfiguration{
			BindAddress:      settings.BindAddress,
			HTTPPort:         settings.HTTPPort,
			HTTPSPort:        settings.HTTPSPort,
			Domains:          domains,
			Certificate:      certificate,
			EnableStatusPage: settings.EnableStatusPage,
		})
	})

	orchestrator, err := session.NewOrchestrator(session.Dependencies{
		Privileges:         system.privileges,
		Generator:          certificates.NewChainGenerator(system.clock, system.randomnessSource, settings.chainConfiguration()),
		TrustAnchors:       installer,
		ResolutionOverride: hosts.NewManager(system.fileSystem, settings.hostsConfiguration()),
		Listener:           listener,
		Logger:             loggingService,
	})
	if err != nil {
		return sessionAssembly{}, err
	}
	assembly.orchestrator = orchestrator
	return assembly, nil
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove mapping entries and trust anchors left by an interrupted run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := getApplicationResources(cmd)
			if err != nil {
				return err
			}
			assembly, err := assembleSession(resources)
			if err != nil {
				return err
			}
			if cleanupErr := assembly.orchestrator.Cleanup(cmd.Context()); cleanupErr != nil {
				return fmt.Errorf("cleanup incomplete: %w", cleanupErr)
			}
			return nil
		},
	}
}

func getApplicationResources(cmd *cobra.Command) (*applicationResources, error) {
	resourceValue := cmd.Context().Value(contextKeyApplicationResources)
	if resourceValue == nil {
		return nil, errors.New("application resources not configured")
	}
	resources, ok := resourceValue.(*applicationResources)
	if !ok {
		return nil, errors.New("invalid application resources type")
	}
	return resources, nil
}

func createSignalContext(parent context.Context, loggingService *logging.Service) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
			return
		case receivedSignal := <-signalChannel:
			if loggingService != nil {
				loggingService.Info(logMessageReceivedSignal, logging.String(logFieldSignal, receivedSignal.String()))
			}
			cancel()
		}
	}()

	return ctx, func() {
		signal.Stop(signalChannel)
		cancel()
	}
}
