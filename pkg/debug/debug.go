// Package debug provides conditional debug logging for cv and cvserve.
//
// Debug logging is enabled by setting the CV_DEBUG environment variable:
//
//	CV_DEBUG=1 cv
//
// The TUI owns the terminal, so when CV_DEBUG_FILE is set (or SetOutputFile
// is called) messages go to that file, rotated by size. Otherwise they go
// to stderr. When disabled (default), all debug functions are no-ops.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const prefix = "[CV_DEBUG] "

var (
	mu      sync.Mutex
	enabled bool
	logger  *log.Logger
	sink    io.WriteCloser
)

func init() {
	if os.Getenv("CV_DEBUG") == "" {
		return
	}
	enabled = true
	if path := os.Getenv("CV_DEBUG_FILE"); path != "" {
		setFileLocked(path)
		return
	}
	logger = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = e
	if e && logger == nil {
		logger = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
	}
}

// SetOutputFile redirects debug output to a size-rotated file at path.
// An empty path reverts to stderr.
func SetOutputFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		closeSinkLocked()
		logger = log.New(os.Stderr, prefix, log.Ltime|log.Lmicroseconds)
		return
	}
	setFileLocked(path)
}

// SetOutput redirects debug output to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeSinkLocked()
	logger = log.New(w, prefix, log.Ltime|log.Lmicroseconds)
}

// Close flushes and closes a file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeSinkLocked()
}

func setFileLocked(path string) {
	closeSinkLocked()
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7,
	}
	sink = lj
	logger = log.New(lj, prefix, log.LstdFlags|log.Lmicroseconds)
}

func closeSinkLocked() error {
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	return err
}

func active() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return nil
	}
	return logger
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if l := active(); l != nil {
		l.Printf(format, args...)
	}
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if l := active(); l != nil {
		l.Printf("%s took %v", name, d)
	}
}

// LogIf writes a debug message only if the condition is true.
func LogIf(cond bool, format string, args ...any) {
	if !cond {
		return
	}
	Log(format, args...)
}

// LogEnterExit logs function entry and exit with timing.
// Usage:
//
//	func myFunc() {
//	    defer debug.LogEnterExit("myFunc")()
//	    // ...
//	}
func LogEnterExit(name string) func() {
	l := active()
	if l == nil {
		return func() {}
	}
	l.Printf("-> %s", name)
	start := time.Now()
	return func() {
		l.Printf("<- %s (%v)", name, time.Since(start))
	}
}

// Dump logs a value with its type for debugging complex structures.
func Dump(name string, v any) {
	if l := active(); l != nil {
		l.Printf("%s: %T = %+v", name, v, v)
	}
}

// Assert logs a message and panics if the condition is false.
// Only active when debug is enabled.
func Assert(cond bool, msg string) {
	l := active()
	if l == nil || cond {
		return
	}
	l.Printf("ASSERTION FAILED: %s", msg)
	panic(fmt.Sprintf("debug assertion failed: %s", msg))
}
