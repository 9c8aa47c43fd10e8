package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string    // Log level (e.g., "info", "debug", "error")
	Format     string    // Console format: "text" (plain messages) or "json"
	FilePath   string    // Path to the log file, empty to disable
	MaxSize    int       // Maximum size in megabytes before log rotation
	MaxBackups int       // Maximum number of old log files to retain
	MaxAge     int       // Maximum number of days to retain old log files
	Compress   bool      // Whether to compress rotated log files
	Console    io.Writer // Console destination, nil to disable
}

// NewLogger returns a new logrus.Logger configured according to the provided
// LoggerConfig. Console output uses the configured format; the log file, when
// set, always receives structured JSON through a rotating writer.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(newJSONFormatter())
	} else {
		logger.SetFormatter(&ConsoleFormatter{})
	}

	if config.Console != nil {
		logger.SetOutput(config.Console)
	} else {
		logger.SetOutput(io.Discard)
	}

	if config.FilePath != "" {
		dir := filepath.Dir(config.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		logger.AddHook(&FileHook{
			Writer:    fileWriter,
			Formatter: newJSONFormatter(),
		})
	}

	return logger, nil
}

func newJSONFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyFunc:  "function",
		},
	}
}

// ConsoleFormatter prints only the message, one entry per line.
type ConsoleFormatter struct{}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// FileHook writes every entry to Writer using its own Formatter.
type FileHook struct {
	Writer    io.Writer
	Formatter logrus.Formatter

	mu sync.Mutex
}

// Levels implements logrus.Hook.
func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.Formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.Writer.Write(line)
	return err
}

// Close closes the hook's writer when it supports it.
func (h *FileHook) Close() error {
	if c, ok := h.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CloseHooks closes every FileHook attached to logger.
func CloseHooks(logger *logrus.Logger) {
	for _, hooks := range logger.Hooks {
		for _, hook := range hooks {
			if fh, ok := hook.(*FileHook); ok {
				_ = fh.Close()
				return
			}
		}
	}
}

// WithFileOperation returns a logger entry with both file and operation context.
func WithFileOperation(logger *logrus.Logger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}

// DefaultConfig returns the default LoggerConfig.
func DefaultConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		Format:     "text",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
		Console:    os.Stdout,
	}
}
