// Package session sequences one impersonation run and always undoes what it changed.
package session

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/google/uuid"

	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/certificates/truststore"
	"github.com/tyemirov/mimikry/pkg/logging"
)

const (
	logFieldRunID      = "run_id"
	logFieldDomains    = "domains"
	logFieldFrom       = "from"
	logFieldTo         = "to"
	logFieldRemoved    = "removed"
	logFieldPhase      = "phase"
	phaseResidue       = "residue"
	phaseTeardown      = "teardown"
	logMessageStarting = "session starting"
	logMessageState    = "state changed"
	logMessageSkipped  = "interrupted before serving"
	logMessageStopped  = "session stopped"
	logMessageHosts    = "mapping entries removed"
	logMessageWarning  = "trust store warning"
	logMessageCleanup  = "cleanup step failed"
	logMessageClose    = "listener close failed"
)

var errListenerStopped = errors.New("listener stopped unexpectedly")

// ChainGenerator mints the authority and leaf.
type ChainGenerator interface {
	Generate(ctx context.Context, domains []string) (certificates.Chain, error)
}

// TrustAnchorManager installs and removes the authority.
type TrustAnchorManager interface {
	Install(ctx context.Context, certificatePEM []byte) (truststore.Report, error)
	Uninstall(ctx context.Context) (truststore.Report, error)
}

// ResolutionOverrideManager adds and removes mapping file entries.
type ResolutionOverrideManager interface {
	Add(domains []string) error
	RemoveAll() (int, error)
}

// Listener serves impersonated domains until ctx ends or it fails.
type Listener interface {
	Serve(ctx context.Context, certificate tls.Certificate, domains []string) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, certificate tls.Certificate, domains []string) error

// Serve calls listenerFunc.
func (listenerFunc ListenerFunc) Serve(ctx context.Context, certificate tls.Certificate, domains []string) error {
	return listenerFunc(ctx, certificate, domains)
}

// PrivilegeChecker verifies the process may change system state.
type PrivilegeChecker interface {
	CheckElevated() error
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Privileges         PrivilegeChecker
	Generator          ChainGenerator
	TrustAnchors       TrustAnchorManager
	ResolutionOverride ResolutionOverrideManager
	Listener           Listener
	Logger             *logging.Service
}

// Transition is reported to observers on every state change.
type Transition struct {
	RunID string
	From  State
	To    State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransitionObserver registers observer for every state change.
func WithTransitionObserver(observer func(Transition)) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.observer = observer
	}
}

// WithRunIDGenerator replaces the random run identifier source.
func WithRunIDGenerator(generate func() string) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.newRunID = generate
	}
}

// Orchestrator runs one session at a time.
type Orchestrator struct {
	dependencies Dependencies
	observer     func(Transition)
	newRunID     func() string
	state        State
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(dependencies Dependencies, options ...Option) (*Orchestrator, error) {
	switch {
	case dependencies.Privileges == nil:
		return nil, errors.New("privilege checker is required")
	case dependencies.Generator == nil:
		return nil, errors.New("chain generator is required")
	case dependencies.TrustAnchors == nil:
		return nil, errors.New("trust anchor manager is required")
	case dependencies.ResolutionOverride == nil:
		return nil, errors.New("resolution override manager is required")
	case dependencies.Listener == nil:
		return nil, errors.New("listener is required")
	case dependencies.Logger == nil:
		return nil, errors.New("logger is required")
	}
	orchestrator := &Orchestrator{dependencies: dependencies, newRunID: uuid.NewString, state: StateIdle}
	for _, option := range options {
		option(orchestrator)
	}
	return orchestrator, nil
}

// State returns the current state.
func (orchestrator *Orchestrator) State() State {
	return orchestrator.state
}

// Run performs one session: residue cleanup, generation, trust installation, resolution override,
// and serving until ctx is cancelled or the listener fails. Teardown always follows once startup
// began. Cancellation is a graceful stop and yields nil.
func (orchestrator *Orchestrator) Run(ctx context.Context, domains DomainSet) error {
	if domains.Len() == 0 {
		return errors.New("at least one domain is required")
	}
	if err := orchestrator.dependencies.Privileges.CheckElevated(); err != nil {
		return newError(KindPrivilege, err)
	}

	runID := orchestrator.newRunID()
	logger := orchestrator.dependencies.Logger.With(logging.String(logFieldRunID, runID))
	logger.Info(logMessageStarting, logging.Strings(logFieldDomains, domains.Names()))

	// Trust store commands must not be killed halfway by an interrupt.
	detached := context.WithoutCancel(ctx)
	orchestrator.removeAll(detached, logger, phaseResidue)

	runErr := orchestrator.runStages(ctx, detached, domains, runID, logger)

	orchestrator.transition(runID, logger, StateTearingDown)
	orchestrator.removeAll(detached, logger, phaseTeardown)
	orchestrator.transition(runID, logger, StateIdle)
	if runErr != nil {
		logger.Error(logMessageStopped, runErr)
		return runErr
	}
	logger.Info(logMessageStopped)
	return nil
}

// Cleanup removes anything a previous run left behind without starting a session.
func (orchestrator *Orchestrator) Cleanup(ctx context.Context) error {
	if err := orchestrator.dependencies.Privileges.CheckElevated(); err != nil {
		return newError(KindPrivilege, err)
	}
	return orchestrator.removeAll(context.WithoutCancel(ctx), orchestrator.dependencies.Logger, phaseResidue)
}

type stage struct {
	state State
	run   func() error
}

func (orchestrator *Orchestrator) runStages(ctx context.Context, detached context.Context, domains DomainSet, runID string, logger *logging.Service) error {
	var chain certificates.Chain
	stages := []stage{
		{state: StateGenerating, run: func() error {
			generated, err := orchestrator.dependencies.Generator.Generate(detached, domains.Names())
			if err != nil {
				return newError(KindCrypto, err)
			}
			chain = generated
			return nil
		}},
		{state: StateTrustInstalling, run: func() error {
			report, err := orchestrator.dependencies.TrustAnchors.Install(detached, chain.Authority.CertificateBytes)
			logWarnings(logger, report)
			if err != nil {
				return newError(KindTrustStore, err)
			}
			return nil
		}},
		{state: StateResolutionOverriding, run: func() error {
			if err := orchestrator.dependencies.ResolutionOverride.Add(domains.Names()); err != nil {
				return newError(KindResolutionOverride, err)
			}
			return nil
		}},
		{state: StateServing, run: func() error {
			serveErr := orchestrator.dependencies.Listener.Serve(ctx, chain.TLSCertificate, domains.Names())
			if ctx.Err() != nil {
				if serveErr != nil {
					logger.Warn(logMessageClose, serveErr)
				}
				return nil
			}
			if serveErr == nil {
				serveErr = errListenerStopped
			}
			return newError(KindListener, serveErr)
		}},
	}

	for _, current := range stages {
		if ctx.Err() != nil {
			logger.Info(logMessageSkipped, logging.String(logFieldTo, current.state.String()))
			return nil
		}
		orchestrator.transition(runID, logger, current.state)
		if err := current.run(); err != nil {
			return err
		}
	}
	return nil
}

// removeAll clears the mapping entries, then the trust anchors. Both always run; failures are
// logged and returned joined for callers that report them.
func (orchestrator *Orchestrator) removeAll(ctx context.Context, logger *logging.Service, phase string) error {
	var failures []error
	removed, removeErr := orchestrator.dependencies.ResolutionOverride.RemoveAll()
	if removeErr != nil {
		failure := newError(KindCleanup, removeErr)
		logger.Warn(logMessageCleanup, failure, logging.String(logFieldPhase, phase))
		failures = append(failures, failure)
	} else if removed > 0 {
		logger.Info(logMessageHosts, logging.Int(logFieldRemoved, removed), logging.String(logFieldPhase, phase))
	}

	report, uninstallErr := orchestrator.dependencies.TrustAnchors.Uninstall(ctx)
	logWarnings(logger, report)
	if uninstallErr != nil {
		failure := newError(KindCleanup, uninstallErr)
		logger.Warn(logMessageCleanup, failure, logging.String(logFieldPhase, phase))
		failures = append(failures, failure)
	}
	return errors.Join(failures...)
}

func (orchestrator *Orchestrator) transition(runID string, logger *logging.Service, next State) {
	previous := orchestrator.state
	orchestrator.state = next
	logger.Info(logMessageState, logging.String(logFieldFrom, previous.String()), logging.String(logFieldTo, next.String()))
	if orchestrator.observer != nil {
		orchestrator.observer(Transition{RunID: runID, From: previous, To: next})
	}
}

func logWarnings(logger *logging.Service, report truststore.Report) {
	for _, warning := range report.Warnings {
		logger.Warn(logMessageWarning, warning)
	}
}
