package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// logging levels
const (
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

// switchWriter lets SetOutput redirect loggers that were already handed out.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

var (
	output = &switchWriter{w: os.Stdout}
	root   = hclog.New(&hclog.LoggerOptions{
		Name:   "monkafs",
		Level:  hclog.Info,
		Output: output,
	})
)

// SetLogLevel sets the log level for filtering logs. Unknown levels fall back to INFO.
func SetLogLevel(logLevel string) {
	level := hclog.LevelFromString(strings.ToLower(logLevel))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	root.SetLevel(level)
}

// SetOutput redirects all logs to w, including those of loggers returned by Named earlier.
func SetOutput(w io.Writer) {
	output.set(w)
}

// Named returns a sub-logger for components logging with key/value pairs.
func Named(name string) hclog.Logger {
	return root.Named(name)
}

func logger() hclog.Logger {
	return root
}

// Log writes a log message at a specified level, formatted with optional arguments
func Log(lvl, message string, a ...any) {
	msg := fmt.Sprintf(message, a...)
	switch lvl {
	case DEBUG:
		logger().Debug(msg)
	case WARN:
		logger().Warn(msg)
	case ERROR:
		logger().Error(msg)
	default:
		logger().Info(msg)
	}
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	Log(DEBUG, message, a...)
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	Log(INFO, message, a...)
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	Log(WARN, message, a...)
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	Log(ERROR, message, a...)
}
