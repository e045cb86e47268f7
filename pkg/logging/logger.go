package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Logger provides component-tagged operator logging for webpilot.
// Entries are appended to a per-process file in the log directory
// (~/.webpilot/logs by default) and mirrored to the console writer.
//
// Debugf writes only when debug output is enabled; Infof, Warnf and Errorf
// always write.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once

	// lazy loggers open their file on first write, after Configure has run.
	lazy     bool
	openOnce sync.Once
}

var (
	// Global session ID for the current process
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	// configuredDir overrides the default directory when set before first use
	configuredDir string

	// console receives a copy of every entry; nil disables mirroring
	console io.Writer = os.Stderr

	settingsMu sync.Mutex

	initOnce sync.Once
	initErr  error

	debugEnabled atomic.Bool
)

// Configure sets the log directory and console mirror. It must be called
// before the first logger is created; later calls only affect the console
// writer of loggers created afterwards.
func Configure(dir string, consoleOut io.Writer) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	configuredDir = dir
	console = consoleOut
}

// SetDebug toggles Debugf output for all loggers.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// getSessionID returns or creates the session ID for this process
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		settingsMu.Lock()
		dir := configuredDir
		settingsMu.Unlock()

		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			dir = filepath.Join(homeDir, ".webpilot", "logs")
		}

		if err := os.MkdirAll(dir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
		logDir = dir
	})
	return initErr
}

func consoleWriter() io.Writer {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	return console
}

// NewLogger creates a new logger for a specific component.
// The logger writes to <log dir>/<session-id>-webpilot.log.
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-webpilot.log", sessID))

	// Append mode: every component shares the same file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return newFallbackLogger(component, fmt.Errorf("failed to open log file: %w", err)), err
	}

	var out io.Writer = file
	if c := consoleWriter(); c != nil {
		out = io.MultiWriter(file, c)
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		logger:    log.New(out, "", 0),
		logPath:   logPath,
	}, nil
}

// MustLogger returns a logger that opens its file on first use, so it can
// be assigned to a package-level variable before Configure runs. If the file
// cannot be opened the logger writes to stderr.
func MustLogger(component string) *Logger {
	return &Logger{component: component, lazy: true}
}

func (l *Logger) open() {
	opened, _ := NewLogger(l.component)
	l.sessionID = opened.sessionID
	l.file = opened.file
	l.logger = opened.logger
	l.logPath = opened.logPath
}

// NewWriterLogger creates a logger that writes only to w. It is used for
// tests and for embedding webpilot where file logging is unwanted.
func NewWriterLogger(component string, w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    log.New(w, "", 0),
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		logger:    logger,
	}
	l.Warnf("Failed to initialize file logging, falling back to stderr: %v", err)
	return l
}

// formatLogEntry creates a log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level, format string, v ...any) {
	if l.lazy {
		l.openOnce.Do(l.open)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, v...)
	l.logger.Println(l.formatLogEntry(level, message))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...any) {
	if !debugEnabled.Load() {
		return
	}
	l.write("DEBUG", format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...any) {
	l.write("INFO", format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...any) {
	l.write("WARN", format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...any) {
	l.write("ERROR", format, v...)
}

// Component returns the component tag of this logger.
func (l *Logger) Component() string {
	return l.component
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	if l.lazy {
		l.openOnce.Do(l.open)
	}
	return l.sessionID
}

// LogPath returns the path to the log file, or "" when not file-backed.
func (l *Logger) LogPath() string {
	if l.lazy {
		l.openOnce.Do(l.open)
	}
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	if l.lazy {
		// Never opened loggers have nothing to close.
		l.openOnce.Do(func() {})
	}
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
