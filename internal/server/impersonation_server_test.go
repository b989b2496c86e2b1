package server

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/mimikry/internal/artifacts"
	"github.com/tyemirov/mimikry/internal/certificates"
	"github.com/tyemirov/mimikry/internal/serverdetails"
	"github.com/tyemirov/mimikry/pkg/logging"
)

const testDomain = "example.test"

func newTestLocator(t *testing.T) artifacts.Locator {
	t.Helper()
	fileSystem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fileSystem, "/media/usb/installer.png", []byte("image"), 0o644))
	require.NoError(t, afero.WriteFile(fileSystem, "/media/usb/notes.zzz", []byte("opaque"), 0o644))
	return artifacts.NewLocator(fileSystem, []string{"/media"})
}

func newTestServer(t *testing.T, loggingService *logging.Service) ImpersonationServer {
	t.Helper()
	return NewImpersonationServer(loggingService, serverdetails.NewServingAddressFormatter(), newTestLocator(t))
}

func TestHandlerServesArtifacts(t *testing.T) {
	impersonationServer := newTestServer(t, logging.NewTestService(logging.TypeConsole))
	handler := impersonationServer.Handler(ImpersonationConfiguration{Domains: []string{testDomain}, EnableStatusPage: true})

	testCases := []struct {
		name                string
		method              string
		target              string
		expectedStatus      int
		expectedContentType string
		expectedBody        string
	}{
		{name: "artifact by last segment", method: http.MethodGet, target: "/downloads/v1/installer.png", expectedStatus: http.StatusOK, expectedContentType: "image/png", expectedBody: "image"},
		{name: "unknown extension", method: http.MethodGet, target: "/notes.zzz", expectedStatus: http.StatusOK, expectedContentType: "application/octet-stream", expectedBody: "opaque"},
		{name: "head request", method: http.MethodHead, target: "/installer.png", expectedStatus: http.StatusOK, expectedContentType: "image/png"},
		{name: "missing artifact", method: http.MethodGet, target: "/absent.bin", expectedStatus: http.StatusNotFound},
		{name: "post rejected", method: http.MethodPost, target: "/installer.png", expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(testCase.method, "http://"+testDomain+testCase.target, nil)
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, testCase.expectedStatus, recorder.Code)
			assert.Equal(t, "mimikry", recorder.Header().Get("Server"))
			if testCase.expectedContentType != "" {
				assert.Equal(t, testCase.expectedContentType, recorder.Header().Get("Content-Type"))
			}
			if testCase.expectedBody != "" {
				assert.Equal(t, testCase.expectedBody, recorder.Body.String())
			}
		})
	}
}

func TestHandlerStatusPage(t *testing.T) {
	impersonationServer := newTestServer(t, logging.NewTestService(logging.TypeConsole))

	enabled := impersonationServer.Handler(ImpersonationConfiguration{Domains: []string{testDomain, "cdn.example.test"}, EnableStatusPage: true})
	recorder := httptest.NewRecorder()
	enabled.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://"+testDomain+"/", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
	body := recorder.Body.String()
	assert.Contains(t, body, "<td>cdn.example.test</td>")
	assert.Contains(t, body, "<code>/media</code>")

	disabled := impersonationServer.Handler(ImpersonationConfiguration{Domains: []string{testDomain}})
	recorder = httptest.NewRecorder()
	disabled.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "http://"+testDomain+"/", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandlerLogsRequestsAsJSON(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	loggingService, err := logging.NewServiceWithLogger(logging.TypeJSON, zap.New(core))
	require.NoError(t, err)
	handler := newTestServer(t, loggingService).Handler(ImpersonationConfiguration{Domains: []string{testDomain}})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "http://"+testDomain+"/installer.png", nil))

	lookups := recorded.FilterMessage("artifact found").All()
	require.Len(t, lookups, 1)
	assert.Equal(t, "/media/usb/installer.png", lookups[0].ContextMap()["location"])

	requests := recorded.FilterMessage("request completed").All()
	require.Len(t, requests, 1)
	fields := requests[0].ContextMap()
	assert.Equal(t, testDomain, fields["host"])
	assert.Equal(t, "/installer.png", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, "5 B", fields["size"])
}

func TestFormatConsoleRequestLog(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "http://"+testDomain+"/installer.png?x=1", nil)
	request.RemoteAddr = "192.0.2.10:51000"
	startTime := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)

	line := formatConsoleRequestLog(request, http.StatusOK, 2048, startTime)
	assert.True(t, strings.HasPrefix(line, `192.0.2.10 example.test [02/Jan/2026 03:04:05] "GET /installer.png?x=1 HTTP/1.1" 200 2.0 kB`), line)

	line = formatConsoleRequestLog(request, http.StatusNotFound, 0, startTime)
	assert.Contains(t, line, `" 404 - `)
}

func TestServeAnswersOverTLSAndStopsOnCancel(t *testing.T) {
	chain := generateTestChain(t)
	plaintextListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tlsListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveResult := make(chan error, 1)
	go func() {
		serveResult <- newTestServer(t, logging.NewTestService(logging.TypeJSON)).Serve(ctx, ImpersonationConfiguration{
			BindAddress:       "127.0.0.1",
			Domains:           []string{testDomain},
			Certificate:       chain.TLSCertificate,
			PlaintextListener: plaintextListener,
			TLSListener:       tlsListener,
		})
	}()

	roots := x509.NewCertPool()
	roots.AddCert(chain.Authority.Certificate)
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: roots, ServerName: testDomain},
			DialContext: func(ctx context.Context, network string, address string) (net.Conn, error) {
				var dialer net.Dialer
				if strings.HasSuffix(address, ":443") {
					return dialer.DialContext(ctx, network, tlsListener.Addr().String())
				}
				return dialer.DialContext(ctx, network, plaintextListener.Addr().String())
			},
		},
	}

	for _, scheme := range []string{"https", "http"} {
		response, getErr := client.Get(scheme + "://" + testDomain + "/installer.png")
		require.NoError(t, getErr, scheme)
		body, readErr := io.ReadAll(response.Body)
		response.Body.Close()
		require.NoError(t, readErr)
		assert.Equal(t, http.StatusOK, response.StatusCode, scheme)
		assert.Equal(t, "image", string(body), scheme)
	}

	cancel()
	select {
	case serveErr := <-serveResult:
		assert.NoError(t, serveErr)
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop after cancellation")
	}
}

func TestServeReportsAddressInUse(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()
	port := strconv.Itoa(occupied.Addr().(*net.TCPAddr).Port)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = newTestServer(t, logging.NewTestService(logging.TypeConsole)).Serve(ctx, ImpersonationConfiguration{
		BindAddress: "127.0.0.1",
		HTTPPort:    port,
		HTTPSPort:   "0",
		Certificate: generateTestChain(t).TLSCertificate,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Address already in use")
}

func TestServeRequiresCertificate(t *testing.T) {
	err := newTestServer(t, logging.NewTestService(logging.TypeConsole)).Serve(context.Background(), ImpersonationConfiguration{})
	assert.Error(t, err)
}

func generateTestChain(t *testing.T) certificates.Chain {
	t.Helper()
	configuration := certificates.DefaultChainConfiguration()
	configuration.Authority.RSAKeyBitSize = 2048
	chain, err := certificates.NewChainGenerator(certificates.NewSystemClock(), rand.Reader, configuration).Generate(context.Background(), []string{testDomain})
	require.NoError(t, err)
	return chain
}
