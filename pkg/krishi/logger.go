package krishi

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging across the SDK.
type Logger struct {
	logger zerolog.Logger
}

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level  zerolog.Level
	Pretty bool
	Output io.Writer
	Fields map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  zerolog.InfoLevel,
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        config.Output,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(config.Output)
	}

	logger = logger.Level(config.Level).With().Timestamp().Logger()

	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &Logger{logger: logger}
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{logger: l.logger.With().Fields(fields).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// LogStateChange logs a session state transition with structured fields.
func (l *Logger) LogStateChange(from, to SessionState, event string) {
	l.logger.Debug().
		Str("event_type", "state").
		Str("from", string(from)).
		Str("to", string(to)).
		Str("event", event).
		Msg("Session state changed")
}

// LogTurnEvent logs turn-pipeline events (capture, transport, playback).
func (l *Logger) LogTurnEvent(event string, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "turn").
		Str("event", event).
		Fields(fields).
		Msg("Turn event")
}

// LogError logs a KrishiError with its code and details.
func (l *Logger) LogError(err *KrishiError) {
	l.logger.Error().
		Str("error_code", err.Code).
		Time("at", err.Timestamp).
		Fields(err.Details).
		Msg(err.Message)
}

// Global logger instance
var globalLogger = NewLogger(DefaultLogConfig())

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalLogger = logger
}
