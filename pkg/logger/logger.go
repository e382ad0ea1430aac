package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields type is an alias for logrus.Fields
type Fields = logrus.Fields

// Logger is a wrapper around logrus.Logger
type Logger struct {
	*logrus.Logger
	module string
}

// Global logger instance
var globalLogger *Logger

// Configuration for the logger
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Module     string `mapstructure:"module"`
	File       string `mapstructure:"file"`
	Journald   bool   `mapstructure:"journald"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`

	// Output replaces stdout as the console sink. Used by tests.
	Output io.Writer `mapstructure:"-"`
}

// Init initializes the global logger with the provided configuration
func Init(config Config) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			CallerPrettyfier: callerPrettyfier,
			TimestampFormat:  "2006-01-02 15:04:05",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			CallerPrettyfier:       callerPrettyfier,
			DisableSorting:         true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
			TimestampFormat:        "2006-01-02 15:04:05",
		})
	}

	console := config.Output
	if console == nil {
		console = os.Stdout
	}
	outputs := []io.Writer{console}

	// File output is optional on the appliance: /var/log may be a read-only overlay.
	if config.File != "" {
		logDir := filepath.Dir(config.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not create log directory %s: %v\n", logDir, err)
		} else {
			rotateLogger := &lumberjack.Logger{
				Filename:   config.File,
				MaxSize:    config.MaxSize,
				MaxAge:     config.MaxAge,
				MaxBackups: config.MaxBackups,
				Compress:   config.Compress,
			}

			if _, err := rotateLogger.Write([]byte("Logger initialization test\n")); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Could not write to log file %s: %v\n", config.File, err)
			} else {
				outputs = append(outputs, rotateLogger)
			}
		}
	}

	if len(outputs) > 1 {
		logger.SetOutput(io.MultiWriter(outputs...))
	} else {
		logger.SetOutput(outputs[0])
	}

	if config.Journald && journaldAvailable() {
		logger.AddHook(newJournalHook())
	}

	logger.SetReportCaller(true)

	globalLogger = &Logger{
		Logger: logger,
		module: config.Module,
	}

	globalLogger.WithFields(Fields{
		"log_file": config.File,
		"journald": config.Journald,
		"level":    level.String(),
		"format":   config.Format,
	}).Debug("Logger initialized")

	return nil
}

// callerPrettyfier is used to format the caller information
func callerPrettyfier(f *runtime.Frame) (string, string) {
	// Walk up the stack until we find the actual caller
	pcs := make([]uintptr, 15)
	n := runtime.Callers(4, pcs)
	if n == 0 {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		// Skip logrus and our logger package frames
		if !strings.Contains(frame.File, "pkg/logger") &&
			!strings.Contains(frame.File, "sirupsen/logrus") {
			return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}

	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

// NewLogger creates a logger tagging entries with module. Init must run first.
func NewLogger(module string) *Logger {
	if globalLogger == nil {
		panic("logger not initialized. Call logger.Init() first")
	}

	return &Logger{
		Logger: globalLogger.Logger,
		module: module,
	}
}

// withModule adds the module field to the entry
func (l *Logger) withModule(fields Fields) *logrus.Entry {
	if l.module != "" {
		if fields == nil {
			fields = Fields{}
		}
		fields["module"] = l.module
	}
	return l.Logger.WithFields(fields)
}

// Info logs a message at the info level
func (l *Logger) Info(args ...any) {
	l.withModule(nil).Info(args...)
}

// Infof logs a formatted message at the info level
func (l *Logger) Infof(format string, args ...any) {
	l.withModule(nil).Infof(format, args...)
}

// Warn logs a message at the warn level
func (l *Logger) Warn(args ...any) {
	l.withModule(nil).Warn(args...)
}

// Warnf logs a formatted message at the warn level
func (l *Logger) Warnf(format string, args ...any) {
	l.withModule(nil).Warnf(format, args...)
}

// Errorf logs a formatted message at the error level
func (l *Logger) Errorf(format string, args ...any) {
	l.withModule(nil).Errorf(format, args...)
}

// WithFields adds fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.withModule(fields)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithFields(Fields{"error": err})
}
