package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/gamemanager/pkg/redaction"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	CRITICAL
)

var logLevelNames = map[LogLevel]string{
	DEBUG:    "DEBUG",
	INFO:     "INFO",
	WARN:     "WARN",
	ERROR:    "ERROR",
	CRITICAL: "CRITICAL",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel maps a case-insensitive level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL", "FATAL":
		return CRITICAL, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// Options configures a Logger. A zero FilePath disables the file sink.
type Options struct {
	Level      LogLevel
	Console    io.Writer
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	Redaction  redaction.Config
}

// DefaultOptions mirrors the bot's historical rotating handler: 50 MiB files,
// five backups, console on stdout.
func DefaultOptions() Options {
	return Options{
		Level:      INFO,
		Console:    os.Stdout,
		MaxSizeMB:  50,
		MaxBackups: 5,
		Redaction:  redaction.DefaultConfig(),
	}
}

// core is shared between a Logger and the component loggers derived from it.
type core struct {
	mu       sync.Mutex
	level    LogLevel
	console  io.Writer
	file     io.WriteCloser
	redactor *redaction.Redactor
}

// Logger is passed explicitly to every component that logs. Component loggers
// created with Component share sinks, level and redaction with their parent.
type Logger struct {
	core      *core
	component string
}

func New(opts Options) (*Logger, error) {
	c := &core{
		level:    opts.Level,
		console:  opts.Console,
		redactor: redaction.NewRedactor(opts.Redaction),
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		c.file = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
	}

	return &Logger{core: c}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{core: &core{
		level:    CRITICAL + 1,
		redactor: redaction.NewRedactor(redaction.DefaultConfig()),
	}}
}

// Component returns a logger that tags its entries with name.
func (l *Logger) Component(name string) *Logger {
	if l == nil {
		return Nop().Component(name)
	}
	return &Logger{core: l.core, component: name}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

func (l *Logger) GetLevel() LogLevel {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

// Redactor exposes the redactor so callers can register configured secrets.
func (l *Logger) Redactor() *redaction.Redactor {
	return l.core.redactor
}

// Close releases the file sink, if any.
func (l *Logger) Close() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if l.core.file == nil {
		return nil
	}
	err := l.core.file.Close()
	l.core.file = nil
	return err
}

func (l *Logger) logMessage(level LogLevel, message string, fields map[string]any) {
	if l == nil || l.core == nil {
		return
	}
	c := l.core

	c.mu.Lock()
	defer c.mu.Unlock()

	if level < c.level {
		return
	}

	message = c.redactor.Redact(message)
	fields = c.redactor.RedactFields(fields)

	entry := LogEntry{
		Level:     level.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Component: l.component,
		Message:   message,
		Fields:    fields,
	}

	if pc, file, line, ok := runtime.Caller(2); ok {
		fn := runtime.FuncForPC(pc)
		if fn != nil {
			entry.Caller = fmt.Sprintf("%s:%d (%s)", file, line, fn.Name())
		}
	}

	if c.file != nil {
		jsonData, err := json.Marshal(entry)
		if err == nil {
			c.file.Write(append(jsonData, '\n'))
		}
	}

	if c.console == nil {
		return
	}

	var fieldStr string
	if len(fields) > 0 {
		fieldStr = " " + formatFields(fields)
	}

	fmt.Fprintf(c.console, "[%s] [%-8s]%s %s%s\n",
		entry.Timestamp,
		entry.Level,
		formatComponent(l.component),
		message,
		fieldStr,
	)
}

func formatComponent(component string) string {
	if component == "" {
		return ""
	}
	return fmt.Sprintf(" %s:", component)
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(fields))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
}

func (l *Logger) Debug(message string) {
	l.logMessage(DEBUG, message, nil)
}

func (l *Logger) DebugF(message string, fields map[string]any) {
	l.logMessage(DEBUG, message, fields)
}

func (l *Logger) Info(message string) {
	l.logMessage(INFO, message, nil)
}

func (l *Logger) InfoF(message string, fields map[string]any) {
	l.logMessage(INFO, message, fields)
}

func (l *Logger) Warn(message string) {
	l.logMessage(WARN, message, nil)
}

func (l *Logger) WarnF(message string, fields map[string]any) {
	l.logMessage(WARN, message, fields)
}

func (l *Logger) Error(message string) {
	l.logMessage(ERROR, message, nil)
}

func (l *Logger) ErrorF(message string, fields map[string]any) {
	l.logMessage(ERROR, message, fields)
}

// Critical logs at the highest level. Unlike the old FATAL level it never exits;
// callers decide what to do after reporting.
func (l *Logger) Critical(message string) {
	l.logMessage(CRITICAL, message, nil)
}

func (l *Logger) CriticalF(message string, fields map[string]any) {
	l.logMessage(CRITICAL, message, fields)
}
