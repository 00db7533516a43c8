package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "MYPV_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks MYPV_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		setLogger(zap.NewNop())
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	setLogger(built)
	return nil
}

// ParseLevel maps a level name onto a zap level. Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the global logger. Tests use it to capture output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	setLogger(l)
}

func setLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	// Fallback to silent logger if not initialized
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogDeviceRequest logs one HTTP exchange with a device. Successful requests
// are logged at debug level, failures at warn.
func LogDeviceRequest(l *zap.Logger, host, path string, status int, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("host", host),
		zap.String("path", path),
		zap.Duration("duration", elapsed),
	}
	if status != 0 {
		fields = append(fields, zap.Int("status_code", status))
	}
	if err != nil {
		l.Warn("Device request failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("Device request", fields...)
}

// LogCycle logs the outcome of a poll cycle or forced refresh
func LogCycle(l *zap.Logger, host string, cycle uint64, outcome string, forced bool, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("host", host),
		zap.Uint64("cycle", cycle),
		zap.String("outcome", outcome),
		zap.Bool("forced", forced),
		zap.Duration("duration", elapsed),
	}
	if err != nil {
		l.Warn("Poll cycle failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("Poll cycle completed", fields...)
}

// LogCommand logs a write command issued to a device
func LogCommand(l *zap.Logger, host, command string, value bool, err error) {
	fields := []zap.Field{
		zap.String("host", host),
		zap.String("command", command),
		zap.Bool("value", value),
	}
	if err != nil {
		l.Warn("Device command failed", append(fields, zap.Error(err))...)
		return
	}
	l.Info("Device command sent", fields...)
}

// LogHTTPRequest logs a request handled by the API server
func LogHTTPRequest(l *zap.Logger, remoteAddr, method, path string, status int, elapsed time.Duration) {
	l.Info("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", status),
		zap.Duration("duration", elapsed),
	)
}

// LogConnection logs a connection event (websocket, MQTT broker)
func LogConnection(remoteAddr string, event string) {
	Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
