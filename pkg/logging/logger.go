package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	TypeConsole = "CONSOLE"
	TypeJSON    = "JSON"

	defaultFileMaxSizeMegabytes = 10
	defaultFileMaxBackups       = 3
	defaultFileMaxAgeDays       = 7
)

// Field represents a logging attribute.
type Field struct {
	Key   string
	Value any
}

// String creates a string Field.
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Strings creates a []string Field.
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int Field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool Field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a time.Duration Field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error Field using the key "error".
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// NormalizeType validates and normalizes a logging type string.
func NormalizeType(rawValue string) (string, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(rawValue))
	if sanitized == "" {
		sanitized = TypeConsole
	}
	switch sanitized {
	case TypeConsole, TypeJSON:
		return sanitized, nil
	default:
		return "", fmt.Errorf("unsupported logging type %s", rawValue)
	}
}

// FileConfiguration describes an optional rotated log file that receives JSON entries.
type FileConfiguration struct {
	Path               string
	MaxSizeMegabytes   int
	MaxBackups         int
	MaxAgeDays         int
	CompressRotatedLog bool
}

// Service provides logging capabilities with console and JSON modes.
type Service struct {
	loggingType string
	logger      *zap.Logger
	fields      []Field
	closeFile   func() error
}

// NewService constructs a logging Service using the provided type.
func NewService(loggingType string) (*Service, error) {
	return NewServiceWithFile(loggingType, FileConfiguration{})
}

// NewServiceWithFile constructs a Service that additionally writes JSON entries to a rotated file
// when the file configuration carries a path.
func NewServiceWithFile(loggingType string, fileConfiguration FileConfiguration) (*Service, error) {
	normalized, err := NormalizeType(loggingType)
	if err != nil {
		return nil, err
	}
	logger, err := newZapLogger(normalized)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fileConfiguration.Path) == "" {
		return NewServiceWithLogger(normalized, logger)
	}

	rotatingWriter := newRotatingWriter(fileConfiguration)
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(rotatingWriter), zapcore.InfoLevel)
	teeLogger := zap.New(zapcore.NewTee(logger.Core(), fileCore))
	service, err := NewServiceWithLogger(normalized, teeLogger)
	if err != nil {
		return nil, err
	}
	service.closeFile = rotatingWriter.Close
	return service, nil
}

// NewServiceWithLogger constructs a Service using an existing zap logger.
func NewServiceWithLogger(loggingType string, logger *zap.Logger) (*Service, error) {
	return &Service{loggingType: loggingType, logger: logger}, nil
}

// NewTestService constructs a Service that discards every entry.
func NewTestService(loggingType string) *Service {
	normalized, err := NormalizeType(loggingType)
	if err != nil {
		normalized = TypeConsole
	}
	return &Service{loggingType: normalized, logger: zap.NewNop()}
}

// Type returns the current logging type.
func (service *Service) Type() string {
	return service.loggingType
}

// With returns a Service that attaches the fields to every entry.
func (service *Service) With(fields ...Field) *Service {
	combined := make([]Field, 0, len(service.fields)+len(fields))
	combined = append(combined, service.fields...)
	combined = append(combined, fields...)
	return &Service{loggingType: service.loggingType, logger: service.logger, fields: combined}
}

// Info writes an informational message.
func (service *Service) Info(message string, fields ...Field) {
	service.log(zapcore.InfoLevel, message, nil, fields...)
}

// Warn writes a warning with an optional error.
func (service *Service) Warn(message string, err error, fields ...Field) {
	service.log(zapcore.WarnLevel, message, err, fields...)
}

// Error writes an error message with the provided error.
func (service *Service) Error(message string, err error, fields ...Field) {
	service.log(zapcore.ErrorLevel, message, err, fields...)
}

// Sync flushes buffered log entries and closes the log file when one is open.
func (service *Service) Sync() error {
	syncErr := service.logger.Sync()
	if service.closeFile != nil {
		if closeErr := service.closeFile(); closeErr != nil {
			return closeErr
		}
		service.closeFile = nil
	}
	return syncErr
}

func (service *Service) log(level zapcore.Level, message string, err error, fields ...Field) {
	if len(service.fields) > 0 {
		fields = append(append([]Field{}, service.fields...), fields...)
	}
	if err != nil {
		fields = append(fields, ErrorField(err))
	}
	if service.loggingType == TypeConsole {
		formatted := formatConsoleMessage(level, message, fields)
		service.logger.Info(formatted)
		return
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		zapFields = append(zapFields, convertToZapField(field))
	}
	switch level {
	case zapcore.ErrorLevel:
		service.logger.Error(message, zapFields...)
	case zapcore.WarnLevel:
		service.logger.Warn(message, zapFields...)
	default:
		service.logger.Info(message, zapFields...)
	}
}

func convertToZapField(field Field) zap.Field {
	switch value := field.Value.(type) {
	case error:
		return zap.NamedError(field.Key, value)
	case []string:
		return zap.Strings(field.Key, value)
	case string:
		return zap.String(field.Key, value)
	case time.Duration:
		return zap.Duration(field.Key, value)
	case int:
		return zap.Int(field.Key, value)
	case bool:
		return zap.Bool(field.Key, value)
	default:
		return zap.Any(field.Key, value)
	}
}

func formatConsoleMessage(level zapcore.Level, message string, fields []Field) string {
	var builder strings.Builder
	switch level {
	case zapcore.WarnLevel:
		builder.WriteString("warning: ")
	case zapcore.ErrorLevel:
		builder.WriteString("error: ")
	}
	builder.WriteString(message)
	for _, field := range fields {
		builder.WriteString(" ")
		builder.WriteString(field.Key)
		builder.WriteString("=")
		builder.WriteString(formatConsoleValue(field.Value))
	}
	return builder.String()
}

func formatConsoleValue(value any) string {
	switch typed := value.(type) {
	case string:
		return fmt.Sprintf("\"%s\"", typed)
	case []string:
		return fmt.Sprintf("[%s]", strings.Join(typed, ","))
	case error:
		return fmt.Sprintf("\"%s\"", typed.Error())
	default:
		return fmt.Sprint(typed)
	}
}

func newRotatingWriter(fileConfiguration FileConfiguration) *lumberjack.Logger {
	maxSize := fileConfiguration.MaxSizeMegabytes
	if maxSize <= 0 {
		maxSize = defaultFileMaxSizeMegabytes
	}
	maxBackups := fileConfiguration.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultFileMaxBackups
	}
	maxAge := fileConfiguration.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultFileMaxAgeDays
	}
	return &lumberjack.Logger{
		Filename:   fileConfiguration.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   fileConfiguration.CompressRotatedLog,
	}
}

func newZapLogger(loggingType string) (*zap.Logger, error) {
	switch loggingType {
	case TypeConsole:
		encoderConfig := zapcore.EncoderConfig{
			MessageKey:    "msg",
			LevelKey:      "",
			TimeKey:       "",
			NameKey:       "",
			CallerKey:     "",
			FunctionKey:   "",
			StacktraceKey: "",
			LineEnding:    zapcore.DefaultLineEnding,
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
		return zap.New(core), nil
	case TypeJSON:
		return zap.NewProduction()
	default:
		return nil, fmt.Errorf("unsupported logging type %s", loggingType)
	}
}
