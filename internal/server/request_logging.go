package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tyemirov/mimikry/pkg/logging"
)

const (
	consoleRequestTimeLayout = "02/Jan/2006 15:04:05"
	logFieldHost             = "host"
	logFieldMethod           = "method"
	logFieldPath             = "path"
	logFieldProtocol         = "protocol"
	logFieldRemote           = "remote"
	logFieldStatus           = "status"
	logFieldSize             = "size"
	logFieldDuration         = "duration"
	logMessageRequest        = "request completed"
)

func (impersonationServer ImpersonationServer) requestLogger() func(http.Handler) http.Handler {
	loggingService := impersonationServer.loggingService
	return func(handler http.Handler) http.Handler {
		if loggingService.Type() == logging.TypeConsole {
			return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
				recordedWriter := newStatusRecorder(responseWriter)
				startTime := time.Now()
				handler.ServeHTTP(recordedWriter, request)
				loggingService.Info(formatConsoleRequestLog(request, recordedWriter.statusCode, recordedWriter.bytesWritten, startTime))
			})
		}
		return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
			recordedWriter := newStatusRecorder(responseWriter)
			startTime := time.Now()
			handler.ServeHTTP(recordedWriter, request)
			loggingService.Info(
				logMessageRequest,
				logging.String(logFieldHost, request.Host),
				logging.String(logFieldMethod, request.Method),
				logging.String(logFieldPath, request.URL.Path),
				logging.String(logFieldProtocol, request.Proto),
				logging.String(logFieldRemote, request.RemoteAddr),
				logging.Int(logFieldStatus, recordedWriter.statusCode),
				logging.String(logFieldSize, humanize.Bytes(uint64(recordedWriter.bytesWritten))),
				logging.Duration(logFieldDuration, time.Since(startTime)),
			)
		})
	}
}

func formatConsoleRequestLog(request *http.Request, statusCode int, bytesWritten int, startTime time.Time) string {
	clientAddress := request.RemoteAddr
	if host, _, err := net.SplitHostPort(clientAddress); err == nil {
		clientAddress = host
	}
	timestamp := startTime.Format(consoleRequestTimeLayout)
	requestTarget := request.URL.RequestURI()
	if requestTarget == "" {
		requestTarget = request.URL.Path
	}
	requestLine := fmt.Sprintf("%s %s %s", request.Method, requestTarget, request.Proto)
	sizeField := "-"
	if bytesWritten > 0 {
		sizeField = humanize.Bytes(uint64(bytesWritten))
	}
	return fmt.Sprintf("%s %s [%s] \"%s\" %d %s %s", clientAddress, request.Host, timestamp, requestLine, statusCode, sizeField, time.Since(startTime).Round(time.Millisecond))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (recorder *statusRecorder) WriteHeader(statusCode int) {
	recorder.statusCode = statusCode
	recorder.ResponseWriter.WriteHeader(statusCode)
}

func (recorder *statusRecorder) Write(content []byte) (int, error) {
	written, err := recorder.ResponseWriter.Write(content)
	recorder.bytesWritten += written
	return written, err
}

func newStatusRecorder(responseWriter http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: responseWriter, statusCode: http.StatusOK}
}
