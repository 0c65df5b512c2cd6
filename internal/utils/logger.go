package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Logger writes timestamped lines to a log file, falling back to stdout
// when no file is available.
type Logger struct {
	writeFile *os.File
}

// NewLogger opens the given log file for appending. An empty path or an
// open failure yields a stdout-only logger.
func NewLogger(logFile string) *Logger {
	logger := &Logger{}
	if logFile == "" {
		return logger
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file (%s): %v\n", logFile, err)
		return logger
	}
	logger.writeFile = f
	return logger
}

// Write appends a timestamped message to the log.
func (l *Logger) Write(message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	logMessage := fmt.Sprintf("%s: %s\n", timestamp, message)
	if l.writeFile != nil {
		l.writeFile.WriteString(logMessage)
		l.writeFile.Sync()
	} else {
		fmt.Print(logMessage)
	}
}

// Close flushes and closes the underlying file handle.
func (l *Logger) Close() {
	if l.writeFile != nil {
		l.writeFile.Close()
	}
}

// File returns the underlying write file handle when available.
func (l *Logger) File() *os.File {
	if l == nil {
		return nil
	}
	return l.writeFile
}
