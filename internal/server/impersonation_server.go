package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tyemirov/mimikry/internal/artifacts"
	"github.com/tyemirov/mimikry/internal/serverdetails"
	"github.com/tyemirov/mimikry/pkg/logging"
)

const (
	serverHeaderName             = "Server"
	serverHeaderValue            = "mimikry"
	contentTypeHeaderName        = "Content-Type"
	schemeHTTP                   = "http"
	schemeHTTPS                  = "https"
	logFieldScheme               = "scheme"
	logFieldURL                  = "url"
	logFieldDomains              = "domains"
	logFieldFile                 = "file"
	logFieldLocation             = "location"
	logMessageServing            = "serving"
	logMessageImpersonating      = "impersonating"
	logMessageShutdownInitiated  = "shutdown initiated"
	logMessageServerError        = "server error"
	logMessageArtifactLookup     = "looking for artifact"
	logMessageArtifactFound      = "artifact found"
	logMessageArtifactOpenFailed = "artifact could not be opened"
	readHeaderTimeout            = 15 * time.Second
)

// ImpersonationConfiguration describes one pair of listeners for a DomainSet.
type ImpersonationConfiguration struct {
	BindAddress      string
	HTTPPort         string
	HTTPSPort        string
	Domains          []string
	Certificate      tls.Certificate
	EnableStatusPage bool
	// Pre-bound listeners take precedence over the ports.
	PlaintextListener net.Listener
	TLSListener       net.Listener
}

// ImpersonationServer answers requests for impersonated domains over plaintext and TLS.
type ImpersonationServer struct {
	loggingService          *logging.Service
	servingAddressFormatter serverdetails.ServingAddressFormatter
	locator                 artifacts.Locator
}

// NewImpersonationServer constructs an ImpersonationServer.
func NewImpersonationServer(loggingService *logging.Service, servingAddressFormatter serverdetails.ServingAddressFormatter, locator artifacts.Locator) ImpersonationServer {
	return ImpersonationServer{
		loggingService:          loggingService,
		servingAddressFormatter: servingAddressFormatter,
		locator:                 locator,
	}
}

// Serve runs both listeners until ctx is cancelled or either listener fails. Open
// connections are closed, not drained.
func (impersonationServer ImpersonationServer) Serve(ctx context.Context, configuration ImpersonationConfiguration) error {
	if impersonationServer.loggingService == nil {
		return errors.New("logging service not configured")
	}
	if len(configuration.Certificate.Certificate) == 0 {
		return errors.New("tls certificate not configured")
	}

	plaintextListener, listenErr := impersonationServer.listen(configuration.PlaintextListener, configuration.BindAddress, configuration.HTTPPort)
	if listenErr != nil {
		return listenErr
	}
	tlsListener, listenErr := impersonationServer.listen(configuration.TLSListener, configuration.BindAddress, configuration.HTTPSPort)
	if listenErr != nil {
		_ = plaintextListener.Close()
		return listenErr
	}

	handler := impersonationServer.Handler(configuration)
	plaintextServer := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	tlsServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{configuration.Certificate},
			MinVersion:   tls.VersionTLS12,
		},
	}

	impersonationServer.logStart(configuration, plaintextListener, tlsListener)

	serverErrors := make(chan error, 2)
	go func() {
		serverErrors <- wrapServeError(schemeHTTP, plaintextServer.Serve(plaintextListener))
	}()
	go func() {
		serverErrors <- wrapServeError(schemeHTTPS, tlsServer.ServeTLS(tlsListener, "", ""))
	}()

	select {
	case <-ctx.Done():
		impersonationServer.loggingService.Info(logMessageShutdownInitiated)
		return errors.Join(closeServer(plaintextServer), closeServer(tlsServer))
	case serveErr := <-serverErrors:
		_ = plaintextServer.Close()
		_ = tlsServer.Close()
		if serveErr == nil {
			serveErr = errors.New("listener stopped unexpectedly")
		}
		impersonationServer.loggingService.Error(logMessageServerError, serveErr)
		return serveErr
	}
}

// Handler builds the request router: an optional status page at the root and artifact
// lookup for every other path.
func (impersonationServer ImpersonationServer) Handler(configuration ImpersonationConfiguration) http.Handler {
	router := chi.NewRouter()
	router.Use(withServerHeader)
	router.Use(impersonationServer.requestLogger())
	if configuration.EnableStatusPage {
		router.Get("/", newStatusPageHandler(configuration.Domains, impersonationServer.locator.Roots()))
	}
	router.HandleFunc("/*", impersonationServer.serveArtifact)
	return router
}

func (impersonationServer ImpersonationServer) serveArtifact(responseWriter http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet && request.Method != http.MethodHead {
		responseWriter.Header().Set("Allow", "GET, HEAD")
		http.Error(responseWriter, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	fileName := artifacts.FileName(request.URL.Path)
	if fileName == "" {
		http.NotFound(responseWriter, request)
		return
	}
	impersonationServer.loggingService.Info(logMessageArtifactLookup, logging.String(logFieldFile, fileName))

	artifact, locateErr := impersonationServer.locator.Locate(request.URL.Path)
	if locateErr != nil {
		http.NotFound(responseWriter, request)
		return
	}
	impersonationServer.loggingService.Info(logMessageArtifactFound, logging.String(logFieldLocation, artifact.Path))

	file, openErr := impersonationServer.locator.Open(artifact)
	if openErr != nil {
		impersonationServer.loggingService.Warn(logMessageArtifactOpenFailed, openErr, logging.String(logFieldLocation, artifact.Path))
		http.NotFound(responseWriter, request)
		return
	}
	defer file.Close()

	modificationTime := time.Time{}
	if fileInfo, statErr := file.Stat(); statErr == nil {
		modificationTime = fileInfo.ModTime()
	}
	responseWriter.Header().Set(contentTypeHeaderName, artifact.ContentType)
	http.ServeContent(responseWriter, request, fileName, modificationTime, file)
}

func (impersonationServer ImpersonationServer) listen(prebound net.Listener, bindAddress string, port string) (net.Listener, error) {
	if prebound != nil {
		return prebound, nil
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(bindAddress, port))
	if err != nil {
		if isAddressInUse(err) {
			return nil, fmt.Errorf("%s: %w", formatAddressInUseMessage(bindAddress, port), err)
		}
		return nil, fmt.Errorf("listen on %s: %w", net.JoinHostPort(bindAddress, port), err)
	}
	return listener, nil
}

func (impersonationServer ImpersonationServer) logStart(configuration ImpersonationConfiguration, plaintextListener net.Listener, tlsListener net.Listener) {
	for _, binding := range []struct {
		scheme   string
		listener net.Listener
	}{{schemeHTTP, plaintextListener}, {schemeHTTPS, tlsListener}} {
		port := listenerPort(binding.listener)
		impersonationServer.loggingService.Info(
			logMessageServing,
			logging.String(logFieldScheme, binding.scheme),
			logging.String(logFieldURL, impersonationServer.servingAddressFormatter.FormatURLForLogging(binding.scheme, configuration.BindAddress, port)),
		)
	}
	tlsPort := listenerPort(tlsListener)
	urls := make([]string, 0, len(configuration.Domains))
	for _, domain := range configuration.Domains {
		urls = append(urls, impersonationServer.servingAddressFormatter.FormatDomainURL(schemeHTTPS, domain, tlsPort))
	}
	impersonationServer.loggingService.Info(logMessageImpersonating, logging.Strings(logFieldDomains, urls))
}

func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set(serverHeaderName, serverHeaderValue)
		next.ServeHTTP(responseWriter, request)
	})
}

func listenerPort(listener net.Listener) string {
	_, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		return ""
	}
	return port
}

func wrapServeError(scheme string, err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve %s: %w", scheme, err)
}

func closeServer(server *http.Server) error {
	if err := server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func formatAddressInUseMessage(bindAddress string, port string) string {
	if strings.TrimSpace(bindAddress) == "" {
		bindAddress = "0.0.0.0"
	}
	return fmt.Sprintf("Address already in use: %s", net.JoinHostPort(bindAddress, port))
}

func isAddressInUse(err error) bool {
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		return errors.Is(syscallErr.Err, syscall.EADDRINUSE)
	}
	return errors.Is(err, syscall.EADDRINUSE)
}
